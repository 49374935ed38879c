// Package vote handles map votes and skip votes. A passed vote changes the map
// and parks every queued player on the post-vote waitlist.
package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pickup/internal/models"
	"pickup/internal/notify"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrMapNotFound = errors.New("vote: map not found")

// Rotator changes the active map and clears all votes inside the given transaction.
type Rotator interface {
	SetMapTx(tx *gorm.DB, mapID string) (*models.Map, error)
	SkipTx(tx *gorm.DB) (*models.Map, error)
}

type Options struct {
	ChannelID  int64
	Threshold  int
	ReAddDelay time.Duration
	Now        func() time.Time
}

type Result struct {
	Votes     int64  `json:"votes"`
	Threshold int    `json:"threshold"`
	Passed    bool   `json:"passed"`
	Map       string `json:"map,omitempty"`
}

type Service struct {
	db       *gorm.DB
	rotator  Rotator
	notifier notify.Notifier
	opts     Options
	log      *slog.Logger
}

func NewService(db *gorm.DB, rotator Rotator, notifier notify.Notifier, opts Options, log *slog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{db: db, rotator: rotator, notifier: notifier, opts: opts, log: log}
}

// CastMapVote records or replaces the player's vote for the map with shortName.
func (s *Service) CastMapVote(ctx context.Context, playerID int64, shortName string) (Result, error) {
	var m models.Map
	res := s.db.WithContext(ctx).Where("short_name = ?", shortName).Limit(1).Find(&m)
	if res.Error != nil {
		return Result{}, fmt.Errorf("load map %q: %w", shortName, res.Error)
	}
	if res.RowsAffected == 0 {
		return Result{}, ErrMapNotFound
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"map_id", "created_at"}),
	}).Create(&models.MapVote{PlayerID: playerID, MapID: m.ID, CreatedAt: s.opts.Now()}).Error
	if err != nil {
		return Result{}, fmt.Errorf("cast map vote: %w", err)
	}

	result := Result{Threshold: s.opts.Threshold, Map: m.ShortName}
	if err := s.db.WithContext(ctx).Model(&models.MapVote{}).Where("map_id = ?", m.ID).Count(&result.Votes).Error; err != nil {
		return Result{}, fmt.Errorf("count map votes: %w", err)
	}
	if result.Votes < int64(s.opts.Threshold) {
		return result, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.rotator.SetMapTx(tx, m.ID); err != nil {
			return err
		}
		return s.park(tx)
	})
	if err != nil {
		return Result{}, fmt.Errorf("pass map vote: %w", err)
	}
	result.Passed = true
	s.log.Info("map vote passed", "map", m.ShortName, "votes", result.Votes)
	s.notifier.Send(ctx, notify.Message{
		Target:      s.opts.ChannelID,
		Description: fmt.Sprintf("Vote for **%s** passed!\nQueues cleared, re-adding in %d seconds", m.FullName, int(s.opts.ReAddDelay/time.Second)),
		Color:       notify.ColorGreen,
	})
	return result, nil
}

// CastSkipVote records the player's vote to skip the current map.
func (s *Service) CastSkipVote(ctx context.Context, playerID int64) (Result, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SkipMapVote{PlayerID: playerID, CreatedAt: s.opts.Now()}).Error
	if err != nil {
		return Result{}, fmt.Errorf("cast skip vote: %w", err)
	}

	result := Result{Threshold: s.opts.Threshold}
	if err := s.db.WithContext(ctx).Model(&models.SkipMapVote{}).Count(&result.Votes).Error; err != nil {
		return Result{}, fmt.Errorf("count skip votes: %w", err)
	}
	if result.Votes < int64(s.opts.Threshold) {
		return result, nil
	}

	var next *models.Map
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		next, err = s.rotator.SkipTx(tx)
		if err != nil || next == nil {
			return err
		}
		return s.park(tx)
	})
	if err != nil {
		return Result{}, fmt.Errorf("pass skip vote: %w", err)
	}
	if next == nil {
		// Nothing to skip to; the votes stand.
		return result, nil
	}
	result.Passed = true
	result.Map = next.ShortName
	s.log.Info("skip vote passed", "map", next.ShortName, "votes", result.Votes)
	s.notifier.Send(ctx, notify.Message{
		Target:      s.opts.ChannelID,
		Description: fmt.Sprintf("Vote to skip the current map passed, new map is **%s**!\nQueues cleared, re-adding in %d seconds", next.FullName, int(s.opts.ReAddDelay/time.Second)),
		Color:       notify.ColorGreen,
	})
	return result, nil
}

// park moves every queued player onto a new post-vote waitlist. While one is
// still live nothing happens, so there is never more than one.
func (s *Service) park(tx *gorm.DB) error {
	var live int64
	if err := tx.Model(&models.VotePassedWaitlist{}).Count(&live).Error; err != nil {
		return err
	}
	if live > 0 {
		s.log.Debug("post-vote waitlist already live")
		return nil
	}

	var members []models.QueuePlayer
	if err := tx.Find(&members).Error; err != nil {
		return err
	}
	w := models.VotePassedWaitlist{EndWaitlistAt: s.opts.Now().Add(s.opts.ReAddDelay)}
	if err := tx.Create(&w).Error; err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	rows := make([]models.VotePassedWaitlistPlayer, 0, len(members))
	for _, m := range members {
		rows = append(rows, models.VotePassedWaitlistPlayer{
			VotePassedWaitlistID: w.ID,
			QueueID:              m.QueueID,
			PlayerID:             m.PlayerID,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return err
	}
	return tx.Where("1 = 1").Delete(&models.QueuePlayer{}).Error
}
