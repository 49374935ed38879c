// Package waitlist re-admits players once a waitlist expires. One algorithm
// serves both the post-game and the post-vote waitlists; a Source supplies the
// pending rows, the optional teardown and the deletion.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"pickup/internal/admission"
	"pickup/internal/models"

	"gorm.io/gorm"
)

var errAlreadyReconciled = errors.New("waitlist: already reconciled")

// Pending is one player waiting to be re-added to one queue.
type Pending struct {
	QueueID  string
	PlayerID int64
}

// Batch is one expired waitlist with its pending rows.
type Batch struct {
	WaitlistID string
	GameID     string
	Players    []Pending
}

type Source interface {
	Name() string
	Expired(ctx context.Context, db *gorm.DB, now time.Time) ([]Batch, error)
	// Teardown releases external resources tied to the batch. Best effort.
	Teardown(ctx context.Context, db *gorm.DB, b Batch)
	// Delete removes the waitlist and everything it owns inside tx.
	Delete(tx *gorm.DB, b Batch) error
}

type InGameChecker interface {
	IsInGame(ctx context.Context, playerID int64) (bool, error)
}

type Options struct {
	Now     func() time.Time
	Shuffle func(n int, swap func(i, j int))
}

type Reconciler struct {
	db      *gorm.DB
	source  Source
	channel admission.Channel
	inGame  InGameChecker
	opts    Options
	log     *slog.Logger
}

func NewReconciler(db *gorm.DB, source Source, channel admission.Channel, inGame InGameChecker, opts Options, log *slog.Logger) *Reconciler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Shuffle == nil {
		opts.Shuffle = rand.Shuffle
	}
	return &Reconciler{
		db:      db,
		source:  source,
		channel: channel,
		inGame:  inGame,
		opts:    opts,
		log:     log,
	}
}

// Tick processes every expired waitlist. Each waitlist commits on its own, and
// only once all of its admissions are enqueued.
func (r *Reconciler) Tick(ctx context.Context) error {
	batches, err := r.source.Expired(ctx, r.db, r.opts.Now())
	if err != nil {
		return fmt.Errorf("%s: load expired: %w", r.source.Name(), err)
	}
	if len(batches) == 0 {
		return nil
	}

	var queues []models.Queue
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&queues).Error; err != nil {
		return fmt.Errorf("%s: load queues: %w", r.source.Name(), err)
	}

	for _, b := range batches {
		msgs, err := r.plan(ctx, b, queues)
		if err != nil {
			return fmt.Errorf("%s %s: %w", r.source.Name(), b.WaitlistID, err)
		}

		r.source.Teardown(ctx, r.db, b)

		// Enqueue before the delete commits. A failed push rolls the delete back and
		// the whole waitlist is replayed next tick; re-admission ignores duplicates.
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := r.source.Delete(tx, b); err != nil {
				return err
			}
			for _, msg := range msgs {
				if err := r.channel.Push(ctx, msg); err != nil {
					return fmt.Errorf("enqueue player %d: %w", msg.PlayerID, err)
				}
			}
			return nil
		})
		if errors.Is(err, errAlreadyReconciled) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", r.source.Name(), b.WaitlistID, err)
		}
		r.log.Info("waitlist reconciled", "waitlist_id", b.WaitlistID, "pending", len(b.Players), "readmitted", len(msgs))
	}
	return nil
}

// plan builds one single-queue admission per live pending row: queues in creation
// order, players shuffled within a queue. Rows for players in a game, for deleted
// queues or for unknown players are dropped.
func (r *Reconciler) plan(ctx context.Context, b Batch, queues []models.Queue) ([]admission.Message, error) {
	byQueue := make(map[string][]Pending)
	ids := make([]int64, 0, len(b.Players))
	for _, p := range b.Players {
		if p.QueueID == "" {
			continue
		}
		byQueue[p.QueueID] = append(byQueue[p.QueueID], p)
		ids = append(ids, p.PlayerID)
	}

	var players []models.Player
	if len(ids) > 0 {
		if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&players).Error; err != nil {
			return nil, fmt.Errorf("load players: %w", err)
		}
	}
	names := make(map[int64]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}

	var msgs []admission.Message
	for _, q := range queues {
		pending := byQueue[q.ID]
		r.opts.Shuffle(len(pending), func(i, j int) {
			pending[i], pending[j] = pending[j], pending[i]
		})
		for _, p := range pending {
			inGame, err := r.inGame.IsInGame(ctx, p.PlayerID)
			if err != nil {
				return nil, err
			}
			if inGame {
				continue
			}
			name, ok := names[p.PlayerID]
			if !ok {
				r.log.Debug("dropping waitlist row for unknown player", "player_id", p.PlayerID)
				continue
			}
			msgs = append(msgs, admission.NewMessage(p.PlayerID, name, []string{q.ID}, false))
		}
	}
	return msgs, nil
}

// deleteOwned removes the waitlist row, failing with errAlreadyReconciled when it is gone.
func deleteOwned(tx *gorm.DB, waitlist interface{}, id string) error {
	res := tx.Where("id = ?", id).Delete(waitlist)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errAlreadyReconciled
	}
	return nil
}
