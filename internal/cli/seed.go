package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pickup/internal/logging"
	"pickup/internal/models"
	"pickup/internal/storage"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func newSeedCommand(env envFunc) *cobra.Command {
	var queueSpecs, mapSpecs []string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create queues and maps",
		Example: `  pickup seed --queue 2v2:4 --queue ranked:10:isolated \
    --map dust:"Dust II":0:1 --map nuke:Nuke:1:1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			queues := make([]models.Queue, 0, len(queueSpecs))
			for _, s := range queueSpecs {
				q, err := parseQueueSpec(s)
				if err != nil {
					return err
				}
				queues = append(queues, q)
			}
			maps := make([]models.Map, 0, len(mapSpecs))
			for _, s := range mapSpecs {
				m, err := parseMapSpec(s)
				if err != nil {
					return err
				}
				maps = append(maps, m)
			}

			db, err := storage.ConnectDatabase(cfg, logging.Component(log, "gorm"))
			if err != nil {
				return err
			}
			if err := storage.Migrate(db); err != nil {
				return err
			}
			created, err := Seed(cmd.Context(), db, queues, maps)
			if err != nil {
				return err
			}
			log.Info("seed complete", "created", created)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&queueSpecs, "queue", nil, "queue as name:size[:isolated]")
	cmd.Flags().StringArrayVar(&mapSpecs, "map", nil, "map as short:full name:rotation index[:rotation weight]")
	return cmd
}

// Seed inserts queues and maps, skipping names that already exist. It returns
// how many rows were created.
func Seed(ctx context.Context, db *gorm.DB, queues []models.Queue, maps []models.Map) (int64, error) {
	var created int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range queues {
			res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).Create(&queues[i])
			if res.Error != nil {
				return fmt.Errorf("seed queue %s: %w", queues[i].Name, res.Error)
			}
			created += res.RowsAffected
		}
		for i := range maps {
			res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "short_name"}}, DoNothing: true}).Create(&maps[i])
			if res.Error != nil {
				return fmt.Errorf("seed map %s: %w", maps[i].ShortName, res.Error)
			}
			created += res.RowsAffected
		}
		return nil
	})
	return created, err
}

func parseQueueSpec(s string) (models.Queue, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return models.Queue{}, fmt.Errorf("queue %q: want name:size[:isolated]", s)
	}
	size, err := strconv.Atoi(parts[1])
	if err != nil || size < 1 {
		return models.Queue{}, fmt.Errorf("queue %q: size must be a positive integer", s)
	}
	q := models.Queue{Name: parts[0], Size: size}
	if len(parts) == 3 {
		if parts[2] != "isolated" {
			return models.Queue{}, fmt.Errorf("queue %q: unknown flag %q", s, parts[2])
		}
		q.IsIsolated = true
	}
	return q, nil
}

func parseMapSpec(s string) (models.Map, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 || parts[0] == "" || parts[1] == "" {
		return models.Map{}, fmt.Errorf("map %q: want short:full name:rotation index[:rotation weight]", s)
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil {
		return models.Map{}, fmt.Errorf("map %q: bad rotation index: %w", s, err)
	}
	weight := 1
	if len(parts) == 4 {
		weight, err = strconv.Atoi(parts[3])
		if err != nil || weight < 0 {
			return models.Map{}, fmt.Errorf("map %q: rotation weight must be a non-negative integer", s)
		}
	}
	return models.Map{ShortName: parts[0], FullName: parts[1], RotationIndex: index, RotationWeight: weight}, nil
}
