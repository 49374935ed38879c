package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pickup/internal/models"
	"pickup/internal/notify"

	"gorm.io/gorm"
)

type ReaperOptions struct {
	ChannelID int64
	AFKTime   time.Duration
	Now       func() time.Time
}

// Reaper evicts inactive players from queues and votes.
type Reaper struct {
	db       *gorm.DB
	notifier notify.Notifier
	opts     ReaperOptions
	log      *slog.Logger
}

func NewReaper(db *gorm.DB, notifier notify.Notifier, opts ReaperOptions, log *slog.Logger) *Reaper {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Reaper{db: db, notifier: notifier, opts: opts, log: log}
}

type reapCategory struct {
	name   string
	model  interface{}
	table  string
	notice string
}

var reapCategories = []reapCategory{
	{name: "queues", model: &models.QueuePlayer{}, table: "queue_players", notice: "%s was removed from all queues for being inactive for %d minutes"},
	{name: "map votes", model: &models.MapVote{}, table: "map_votes", notice: "%s's votes removed for being inactive for %d minutes"},
	{name: "skip votes", model: &models.SkipMapVote{}, table: "skip_map_votes", notice: "%s's votes removed for being inactive for %d minutes"},
}

// Tick removes memberships and votes of players idle past AFKTime. Each category
// commits on its own; a player hears about it at most once per tick.
func (r *Reaper) Tick(ctx context.Context) error {
	cutoff := r.opts.Now().Add(-r.opts.AFKTime)
	notified := make(map[int64]bool)
	for _, c := range reapCategories {
		if err := r.reap(ctx, c, cutoff, notified); err != nil {
			return fmt.Errorf("reap %s: %w", c.name, err)
		}
	}
	return nil
}

func (r *Reaper) reap(ctx context.Context, c reapCategory, cutoff time.Time, notified map[int64]bool) error {
	var stale []models.Player
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Player{}).
			Where("last_activity_at < ?", cutoff).
			Where(fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s.player_id = players.id)", c.table, c.table)).
			Order("id ASC").
			Find(&stale).Error
		if err != nil || len(stale) == 0 {
			return err
		}
		ids := make([]int64, 0, len(stale))
		for _, p := range stale {
			ids = append(ids, p.ID)
		}
		return tx.Where("player_id IN ?", ids).Delete(c.model).Error
	})
	if err != nil {
		return err
	}

	minutes := int(r.opts.AFKTime / time.Minute)
	for _, p := range stale {
		r.log.Info("inactive player reaped", "category", c.name, "player_id", p.ID)
		if notified[p.ID] {
			continue
		}
		notified[p.ID] = true
		r.notifier.Send(ctx, notify.Message{
			Target:      r.opts.ChannelID,
			Content:     mention(p.ID),
			Description: fmt.Sprintf(c.notice, p.Name, minutes),
			Color:       notify.ColorRed,
		})
	}
	return nil
}

func mention(playerID int64) string {
	return fmt.Sprintf("<@%d>", playerID)
}
