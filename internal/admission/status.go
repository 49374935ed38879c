package admission

import (
	"context"
	"fmt"

	"pickup/internal/models"

	"gorm.io/gorm"
)

// QueueStatus is the occupancy of one queue.
type QueueStatus struct {
	QueueID  string `json:"queue_id"`
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Players  int    `json:"players"`
	InGame   bool   `json:"in_game"`
	IsLocked bool   `json:"is_locked"`
}

// String renders the compact status line, e.g. "2v2 [3/4] *(In game)*".
func (s QueueStatus) String() string {
	if s.InGame {
		return fmt.Sprintf("%s [%d/%d] *(In game)*", s.Name, s.Players, s.Size)
	}
	return fmt.Sprintf("%s [%d/%d]", s.Name, s.Players, s.Size)
}

type countRow struct {
	QueueID string
	N       int
}

// QueueStatuses computes occupancy and in-progress-game presence for queues, in order.
func QueueStatuses(ctx context.Context, db *gorm.DB, queues []models.Queue) ([]QueueStatus, error) {
	var members, games []countRow
	if err := db.WithContext(ctx).Model(&models.QueuePlayer{}).
		Select("queue_id, count(*) AS n").Group("queue_id").Scan(&members).Error; err != nil {
		return nil, fmt.Errorf("count queue players: %w", err)
	}
	if err := db.WithContext(ctx).Model(&models.InProgressGame{}).
		Select("queue_id, count(*) AS n").Group("queue_id").Scan(&games).Error; err != nil {
		return nil, fmt.Errorf("count in-progress games: %w", err)
	}

	memberCount := make(map[string]int, len(members))
	for _, r := range members {
		memberCount[r.QueueID] = r.N
	}
	gameCount := make(map[string]int, len(games))
	for _, r := range games {
		gameCount[r.QueueID] = r.N
	}

	statuses := make([]QueueStatus, 0, len(queues))
	for _, q := range queues {
		statuses = append(statuses, QueueStatus{
			QueueID:  q.ID,
			Name:     q.Name,
			Size:     q.Size,
			Players:  memberCount[q.ID],
			InGame:   gameCount[q.ID] > 0,
			IsLocked: q.IsLocked,
		})
	}
	return statuses, nil
}

// AllQueueStatuses loads every queue in creation order and reports its status.
func AllQueueStatuses(ctx context.Context, db *gorm.DB) ([]QueueStatus, error) {
	var queues []models.Queue
	if err := db.WithContext(ctx).Order("created_at ASC").Find(&queues).Error; err != nil {
		return nil, fmt.Errorf("load queues: %w", err)
	}
	return QueueStatuses(ctx, db, queues)
}
