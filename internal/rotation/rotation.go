// Package rotation advances the active map on a timer and chooses the next map
// for both automatic rotation and passed votes.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"pickup/internal/models"
	"pickup/internal/notify"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrMapNotFound = errors.New("rotation: map not found")

type Options struct {
	ChannelID int64
	Random    bool
	Interval  time.Duration
	Now       func() time.Time
	// Pick returns a uniform index in [0, n); rand.IntN when nil.
	Pick func(n int) int
}

type Controller struct {
	db       *gorm.DB
	notifier notify.Notifier
	opts     Options
	log      *slog.Logger
}

func NewController(db *gorm.DB, notifier notify.Notifier, opts Options, log *slog.Logger) *Controller {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	return &Controller{db: db, notifier: notifier, opts: opts, log: log}
}

// SelectNext picks the map that follows current among positive-weight maps,
// never returning current itself. maps must be sorted by rotation index.
// Returns nil when there is nothing to rotate to.
func SelectNext(current *models.Map, maps []models.Map, random bool, pick func(n int) int) *models.Map {
	currentID := ""
	currentIndex := -1
	if current != nil {
		currentID = current.ID
		currentIndex = current.RotationIndex
	}

	eligible := make([]models.Map, 0, len(maps))
	for _, m := range maps {
		if m.RotationWeight > 0 && m.ID != currentID {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	if random {
		return &eligible[pick(len(eligible))]
	}
	for i := range eligible {
		if eligible[i].RotationIndex > currentIndex {
			return &eligible[i]
		}
	}
	return &eligible[0]
}

// Current returns the singleton CurrentMap row and its Map, or nils.
func (c *Controller) Current(ctx context.Context) (*models.CurrentMap, *models.Map, error) {
	var current models.CurrentMap
	res := c.db.WithContext(ctx).Where("id = ?", models.CurrentMapID).Limit(1).Find(&current)
	if res.Error != nil {
		return nil, nil, fmt.Errorf("load current map: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil, nil
	}
	var m models.Map
	res = c.db.WithContext(ctx).Where("id = ?", current.MapID).Limit(1).Find(&m)
	if res.Error != nil {
		return nil, nil, fmt.Errorf("load map %s: %w", current.MapID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &current, nil, nil
	}
	return &current, &m, nil
}

func (c *Controller) rotationMaps(ctx context.Context) ([]models.Map, error) {
	var maps []models.Map
	err := c.db.WithContext(ctx).Where("rotation_weight > ?", 0).Order("rotation_index ASC").Find(&maps).Error
	if err != nil {
		return nil, fmt.Errorf("load rotation maps: %w", err)
	}
	return maps, nil
}

// Tick advances the map when there is none or it has been up longer than Interval.
// In fixed order, rotation stops once it wraps back to the first map; a vote or an
// admin override has to move it on.
func (c *Controller) Tick(ctx context.Context) error {
	current, currentMap, err := c.Current(ctx)
	if err != nil {
		return err
	}

	if currentMap != nil && !c.opts.Random && current.AutoRotated {
		maps, err := c.rotationMaps(ctx)
		if err != nil {
			return err
		}
		if len(maps) > 0 && maps[0].RotationIndex == currentMap.RotationIndex {
			return nil
		}
	}

	if currentMap == nil || c.opts.Now().Sub(current.UpdatedAt) > c.opts.Interval {
		_, err := c.Advance(ctx)
		return err
	}
	return nil
}

// Advance rotates to the next map and announces it.
func (c *Controller) Advance(ctx context.Context) (*models.Map, error) {
	next, err := c.change(ctx, true, nil)
	if err != nil || next == nil {
		return next, err
	}
	c.notifier.Send(ctx, notify.Message{
		Target:      c.opts.ChannelID,
		Description: fmt.Sprintf("Map automatically rotated to **%s**, all votes removed", next.FullName),
		Color:       notify.ColorBlue,
	})
	return next, nil
}

// Skip moves to the next map on behalf of a passed skip vote. The caller announces it.
func (c *Controller) Skip(ctx context.Context) (*models.Map, error) {
	return c.change(ctx, false, nil)
}

// SetMap makes mapID current on behalf of a passed map vote or an admin.
func (c *Controller) SetMap(ctx context.Context, mapID string) (*models.Map, error) {
	return c.change(ctx, false, &mapID)
}

// SkipTx is Skip inside the caller's transaction, so the map change commits
// or rolls back together with the caller's writes.
func (c *Controller) SkipTx(tx *gorm.DB) (*models.Map, error) {
	return c.changeTx(tx, false, nil)
}

// SetMapTx is SetMap inside the caller's transaction.
func (c *Controller) SetMapTx(tx *gorm.DB, mapID string) (*models.Map, error) {
	return c.changeTx(tx, false, &mapID)
}

func (c *Controller) change(ctx context.Context, auto bool, mapID *string) (*models.Map, error) {
	var next *models.Map
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		next, err = c.changeTx(tx, auto, mapID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("change map: %w", err)
	}
	if next != nil {
		c.log.Info("map changed", "map", next.ShortName, "auto", auto)
	}
	return next, nil
}

// changeTx points CurrentMap at the chosen map and clears every vote. A nil map
// means there was nothing to rotate to and nothing was written.
func (c *Controller) changeTx(tx *gorm.DB, auto bool, mapID *string) (*models.Map, error) {
	var next *models.Map
	if mapID != nil {
		var m models.Map
		res := tx.Where("id = ?", *mapID).Limit(1).Find(&m)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrMapNotFound
		}
		next = &m
	} else {
		var current models.CurrentMap
		var currentMap *models.Map
		res := tx.Where("id = ?", models.CurrentMapID).Limit(1).Find(&current)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			var m models.Map
			res = tx.Where("id = ?", current.MapID).Limit(1).Find(&m)
			if res.Error != nil {
				return nil, res.Error
			}
			if res.RowsAffected > 0 {
				currentMap = &m
			}
		}
		var maps []models.Map
		if err := tx.Where("rotation_weight > ?", 0).Order("rotation_index ASC").Find(&maps).Error; err != nil {
			return nil, err
		}
		next = SelectNext(currentMap, maps, c.opts.Random, c.opts.Pick)
		if next == nil {
			return nil, nil
		}
	}

	err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&models.CurrentMap{
		ID:          models.CurrentMapID,
		MapID:       next.ID,
		UpdatedAt:   c.opts.Now(),
		AutoRotated: auto,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := tx.Where("1 = 1").Delete(&models.MapVote{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("1 = 1").Delete(&models.SkipMapVote{}).Error; err != nil {
		return nil, err
	}
	return next, nil
}
