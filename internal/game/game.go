// Package game implements the collaborators the scheduler loops consume:
// queue admission with pop detection, the in-game check, leaving, finishing a
// game and activity tracking. Team balancing is not done here; a popped game
// simply records its players.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pickup/internal/models"
	"pickup/internal/notify"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrQueueNotFound = errors.New("game: queue not found")
	ErrGameNotFound  = errors.New("game: game not found")
	ErrGameFinished  = errors.New("game: game already finished")
)

type Options struct {
	ChannelID  int64
	ReAddDelay time.Duration
	Now        func() time.Time
}

type Service struct {
	db       *gorm.DB
	notifier notify.Notifier
	opts     Options
	log      *slog.Logger
}

func NewService(db *gorm.DB, notifier notify.Notifier, opts Options, log *slog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{db: db, notifier: notifier, opts: opts, log: log}
}

// AddPlayerToQueue adds the player and pops the queue when it reaches its size.
// On a pop every matched player leaves all of their queues.
func (s *Service) AddPlayerToQueue(ctx context.Context, queueID string, playerID int64) (added, popped bool, err error) {
	inGame, err := s.IsInGame(ctx, playerID)
	if err != nil || inGame {
		return false, false, err
	}

	var game *models.InProgressGame
	var players []models.Player
	var queue models.Queue
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&queue, "id = ?", queueID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueNotFound
			}
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.QueuePlayer{
			QueueID:   queueID,
			PlayerID:  playerID,
			CreatedAt: s.opts.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		added = true

		var members []models.QueuePlayer
		if err := tx.Where("queue_id = ?", queueID).Order("created_at ASC").Find(&members).Error; err != nil {
			return err
		}
		if len(members) < queue.Size {
			return nil
		}

		game, players, err = s.pop(tx, queue, members[:queue.Size])
		return err
	})
	if err != nil {
		return false, false, fmt.Errorf("add player %d to queue %s: %w", playerID, queueID, err)
	}

	if game != nil {
		names := make([]string, 0, len(players))
		for _, p := range players {
			names = append(names, p.Name)
		}
		s.notifier.Send(ctx, notify.Message{
			Target:      s.opts.ChannelID,
			Content:     fmt.Sprintf("Game '%s' (%s) has begun!", queue.Name, shortID(game.ID)),
			Description: strings.Join(names, ", "),
			Color:       notify.ColorBlue,
		})
		return true, true, nil
	}
	return added, false, nil
}

func (s *Service) pop(tx *gorm.DB, queue models.Queue, members []models.QueuePlayer) (*models.InProgressGame, []models.Player, error) {
	game := &models.InProgressGame{QueueID: queue.ID, CreatedAt: s.opts.Now()}
	if err := tx.Create(game).Error; err != nil {
		return nil, nil, err
	}

	ids := make([]int64, 0, len(members))
	rows := make([]models.InProgressGamePlayer, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.PlayerID)
		rows = append(rows, models.InProgressGamePlayer{InProgressGameID: game.ID, PlayerID: m.PlayerID})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, nil, err
	}
	if err := tx.Where("player_id IN ?", ids).Delete(&models.QueuePlayer{}).Error; err != nil {
		return nil, nil, err
	}

	var players []models.Player
	if err := tx.Where("id IN ?", ids).Order("name ASC").Find(&players).Error; err != nil {
		return nil, nil, err
	}
	return game, players, nil
}

// IsInGame reports whether the player holds a slot in an unfinished game.
func (s *Service) IsInGame(ctx context.Context, playerID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.InProgressGamePlayer{}).
		Where("player_id = ?", playerID).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check in game %d: %w", playerID, err)
	}
	return n > 0, nil
}

// Leave removes the player from one queue, or from every queue and every pending
// waitlist when queueID is empty. It returns the number of memberships removed.
func (s *Service) Leave(ctx context.Context, playerID int64, queueID string) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("player_id = ?", playerID)
		if queueID != "" {
			q = q.Where("queue_id = ?", queueID)
		}
		res := q.Delete(&models.QueuePlayer{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		if queueID != "" {
			return nil
		}
		if err := tx.Where("player_id = ?", playerID).Delete(&models.QueueWaitlistPlayer{}).Error; err != nil {
			return err
		}
		return tx.Where("player_id = ?", playerID).Delete(&models.VotePassedWaitlistPlayer{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("leave player %d: %w", playerID, err)
	}
	return removed, nil
}

// FinishGame frees the game's players and puts them on a waitlist that re-adds
// them to the game's queue once ReAddDelay has passed.
func (s *Service) FinishGame(ctx context.Context, gameID string) (*models.QueueWaitlist, error) {
	var waitlist *models.QueueWaitlist
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var game models.InProgressGame
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGameNotFound
			}
			return err
		}
		var existing int64
		if err := tx.Model(&models.QueueWaitlist{}).Where("in_progress_game_id = ?", gameID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrGameFinished
		}

		var players []models.InProgressGamePlayer
		if err := tx.Where("in_progress_game_id = ?", gameID).Find(&players).Error; err != nil {
			return err
		}
		if err := tx.Where("in_progress_game_id = ?", gameID).Delete(&models.InProgressGamePlayer{}).Error; err != nil {
			return err
		}

		waitlist = &models.QueueWaitlist{
			InProgressGameID: gameID,
			EndWaitlistAt:    s.opts.Now().Add(s.opts.ReAddDelay),
		}
		if err := tx.Create(waitlist).Error; err != nil {
			return err
		}
		if len(players) == 0 {
			return nil
		}
		rows := make([]models.QueueWaitlistPlayer, 0, len(players))
		for _, p := range players {
			rows = append(rows, models.QueueWaitlistPlayer{
				QueueWaitlistID: waitlist.ID,
				QueueID:         game.QueueID,
				PlayerID:        p.PlayerID,
			})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("finish game %s: %w", gameID, err)
	}
	return waitlist, nil
}

// AttachChannel records a transient voice channel so the waitlist teardown can remove it.
func (s *Service) AttachChannel(ctx context.Context, gameID string, channelID int64) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.InProgressGame{}).Where("id = ?", gameID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrGameNotFound
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.InProgressGameChannel{InProgressGameID: gameID, ChannelID: channelID}).Error
}

// RecordActivity upserts the player and moves last_activity_at forward, never back.
func (s *Service) RecordActivity(ctx context.Context, playerID int64, name string) (models.Player, error) {
	now := s.opts.Now()
	var player models.Player
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&player, "id = ?", playerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			player = models.Player{ID: playerID, Name: name, LastActivityAt: now}
			return tx.Create(&player).Error
		}
		if err != nil {
			return err
		}
		if now.After(player.LastActivityAt) {
			player.LastActivityAt = now
		}
		if name != "" {
			player.Name = name
		}
		return tx.Save(&player).Error
	})
	if err != nil {
		return models.Player{}, fmt.Errorf("record activity %d: %w", playerID, err)
	}
	return player, nil
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
