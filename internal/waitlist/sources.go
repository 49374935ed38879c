package waitlist

import (
	"context"
	"log/slog"
	"time"

	"pickup/internal/models"

	"gorm.io/gorm"
)

// ChannelDeleter removes a transient game channel on the chat platform.
// A channel that no longer exists is not an error worth retrying.
type ChannelDeleter interface {
	DeleteChannel(ctx context.Context, channelID int64) error
}

// GameSource feeds post-game waitlists.
type GameSource struct {
	channels ChannelDeleter
	log      *slog.Logger
}

func NewGameSource(channels ChannelDeleter, log *slog.Logger) *GameSource {
	return &GameSource{channels: channels, log: log}
}

func (s *GameSource) Name() string { return "queue waitlist" }

func (s *GameSource) Expired(ctx context.Context, db *gorm.DB, now time.Time) ([]Batch, error) {
	var waitlists []models.QueueWaitlist
	if err := db.WithContext(ctx).Where("end_waitlist_at < ?", now).Order("end_waitlist_at ASC").Find(&waitlists).Error; err != nil {
		return nil, err
	}
	batches := make([]Batch, 0, len(waitlists))
	for _, w := range waitlists {
		var rows []models.QueueWaitlistPlayer
		if err := db.WithContext(ctx).Where("queue_waitlist_id = ?", w.ID).Find(&rows).Error; err != nil {
			return nil, err
		}
		b := Batch{WaitlistID: w.ID, GameID: w.InProgressGameID}
		for _, r := range rows {
			b.Players = append(b.Players, Pending{QueueID: r.QueueID, PlayerID: r.PlayerID})
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (s *GameSource) Teardown(ctx context.Context, db *gorm.DB, b Batch) {
	var channels []models.InProgressGameChannel
	if err := db.WithContext(ctx).Where("in_progress_game_id = ?", b.GameID).Find(&channels).Error; err != nil {
		s.log.Warn("could not load game channels", "game_id", b.GameID, "error", err)
		return
	}
	for _, ch := range channels {
		if err := s.channels.DeleteChannel(ctx, ch.ChannelID); err != nil {
			s.log.Warn("could not delete game channel", "game_id", b.GameID, "channel_id", ch.ChannelID, "error", err)
		}
	}
}

func (s *GameSource) Delete(tx *gorm.DB, b Batch) error {
	if err := deleteOwned(tx, &models.QueueWaitlist{}, b.WaitlistID); err != nil {
		return err
	}
	if err := tx.Where("queue_waitlist_id = ?", b.WaitlistID).Delete(&models.QueueWaitlistPlayer{}).Error; err != nil {
		return err
	}
	if err := tx.Where("in_progress_game_id = ?", b.GameID).Delete(&models.InProgressGameChannel{}).Error; err != nil {
		return err
	}
	if err := tx.Where("in_progress_game_id = ?", b.GameID).Delete(&models.InProgressGamePlayer{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", b.GameID).Delete(&models.InProgressGame{}).Error
}

// VoteSource feeds the single live post-vote waitlist.
type VoteSource struct{}

func (VoteSource) Name() string { return "vote passed waitlist" }

func (VoteSource) Expired(ctx context.Context, db *gorm.DB, now time.Time) ([]Batch, error) {
	var w models.VotePassedWaitlist
	res := db.WithContext(ctx).Where("end_waitlist_at < ?", now).Order("end_waitlist_at ASC").Limit(1).Find(&w)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var rows []models.VotePassedWaitlistPlayer
	if err := db.WithContext(ctx).Where("vote_passed_waitlist_id = ?", w.ID).Find(&rows).Error; err != nil {
		return nil, err
	}
	b := Batch{WaitlistID: w.ID}
	for _, r := range rows {
		b.Players = append(b.Players, Pending{QueueID: r.QueueID, PlayerID: r.PlayerID})
	}
	return []Batch{b}, nil
}

func (VoteSource) Teardown(context.Context, *gorm.DB, Batch) {}

func (VoteSource) Delete(tx *gorm.DB, b Batch) error {
	if err := deleteOwned(tx, &models.VotePassedWaitlist{}, b.WaitlistID); err != nil {
		return err
	}
	return tx.Where("vote_passed_waitlist_id = ?", b.WaitlistID).Delete(&models.VotePassedWaitlistPlayer{}).Error
}

// LogChannelDeleter is used when no chat platform client is wired in; it only logs.
type LogChannelDeleter struct {
	Log *slog.Logger
}

func (d LogChannelDeleter) DeleteChannel(_ context.Context, channelID int64) error {
	d.Log.Info("game channel released", "channel_id", channelID)
	return nil
}
