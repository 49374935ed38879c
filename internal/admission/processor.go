package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"pickup/internal/models"
	"pickup/internal/notify"

	"gorm.io/gorm"
)

// Admitter is the game-formation collaborator. popped means the queue filled and
// the collaborator already cleared membership for every matched player.
type Admitter interface {
	AddPlayerToQueue(ctx context.Context, queueID string, playerID int64) (added, popped bool, err error)
}

type Options struct {
	ChannelID      int64
	PopRandomQueue bool
	// Shuffle permutes candidate queues; rand.Shuffle when nil.
	Shuffle func(n int, swap func(i, j int))
}

// Processor is the only writer of queue membership.
type Processor struct {
	db       *gorm.DB
	channel  Channel
	admitter Admitter
	notifier notify.Notifier
	opts     Options
	log      *slog.Logger
}

func NewProcessor(db *gorm.DB, channel Channel, admitter Admitter, notifier notify.Notifier, opts Options, log *slog.Logger) *Processor {
	if opts.Shuffle == nil {
		opts.Shuffle = rand.Shuffle
	}
	return &Processor{
		db:       db,
		channel:  channel,
		admitter: admitter,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
}

// Tick drains the messages queued when it starts. Messages pushed meanwhile wait
// for the next tick. On error the rest of the snapshot stays on the channel.
func (p *Processor) Tick(ctx context.Context) error {
	n, err := p.channel.Len(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	var queues []models.Queue
	if err := p.db.WithContext(ctx).Order("created_at ASC").Find(&queues).Error; err != nil {
		return fmt.Errorf("load queues: %w", err)
	}
	byID := make(map[string]models.Queue, len(queues))
	for _, q := range queues {
		byID[q.ID] = q
	}

	for i := 0; i < n; i++ {
		msg, err := p.channel.Pop(ctx)
		if errors.Is(err, ErrEmptyChannel) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.process(ctx, msg, queues, byID); err != nil {
			return fmt.Errorf("admit player %d: %w", msg.PlayerID, err)
		}
	}
	return nil
}

func (p *Processor) process(ctx context.Context, msg Message, queues []models.Queue, byID map[string]models.Queue) error {
	queueIDs := append([]string(nil), msg.QueueIDs...)
	if p.opts.PopRandomQueue {
		p.opts.Shuffle(len(queueIDs), func(i, j int) {
			queueIDs[i], queueIDs[j] = queueIDs[j], queueIDs[i]
		})
	}

	isolated, err := p.isolatedMemberships(ctx, msg.PlayerID, queueIDs, byID)
	if err != nil {
		return err
	}

	var addedTo []string
	popped := false
	for _, queueID := range queueIDs {
		queue, ok := byID[queueID]
		if !ok {
			p.log.Debug("skipping unknown queue", "queue_id", queueID, "player_id", msg.PlayerID)
			continue
		}
		if queue.IsLocked {
			continue
		}
		if queue.IsIsolated && holdsOther(isolated, queue.ID) {
			continue
		}

		added, queuePopped, err := p.admitter.AddPlayerToQueue(ctx, queue.ID, msg.PlayerID)
		if err != nil {
			return fmt.Errorf("queue %s: %w", queue.Name, err)
		}
		if queuePopped {
			popped = true
			break
		}
		if added {
			addedTo = append(addedTo, queue.Name)
			if queue.IsIsolated {
				isolated[queue.ID] = true
			}
		}
	}

	if popped || !msg.PrintStatus {
		return nil
	}

	statuses, err := QueueStatuses(ctx, p.db, queues)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		lines = append(lines, s.String())
	}
	p.notifier.Send(ctx, notify.Message{
		Target:      p.opts.ChannelID,
		Content:     fmt.Sprintf("%s added to: %s", msg.PlayerName, strings.Join(addedTo, ", ")),
		Description: strings.Join(lines, " "),
		Color:       notify.ColorGreen,
	})
	return nil
}

// isolatedMemberships returns the isolated queues the player already belongs to.
// It only hits the store when one of the candidates is isolated.
func (p *Processor) isolatedMemberships(ctx context.Context, playerID int64, queueIDs []string, byID map[string]models.Queue) (map[string]bool, error) {
	held := make(map[string]bool)
	anyIsolated := false
	for _, id := range queueIDs {
		if byID[id].IsIsolated {
			anyIsolated = true
			break
		}
	}
	if !anyIsolated {
		return held, nil
	}

	var ids []string
	err := p.db.WithContext(ctx).
		Model(&models.QueuePlayer{}).
		Joins("JOIN queues ON queues.id = queue_players.queue_id").
		Where("queue_players.player_id = ? AND queues.is_isolated = ?", playerID, true).
		Pluck("queue_players.queue_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load isolated memberships: %w", err)
	}
	for _, id := range ids {
		held[id] = true
	}
	return held, nil
}

func holdsOther(held map[string]bool, queueID string) bool {
	for id := range held {
		if id != queueID {
			return true
		}
	}
	return false
}
