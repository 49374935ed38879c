// Package testutil builds throwaway databases and fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"pickup/internal/models"
	"pickup/internal/storage"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory sqlite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Epoch is a fixed clock origin for tests.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Clock is a settable time source.
type Clock struct{ T time.Time }

func (c *Clock) Now() time.Time          { return c.T }
func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

func CreatePlayer(t *testing.T, db *gorm.DB, id int64, name string, lastActive time.Time) models.Player {
	t.Helper()
	p := models.Player{ID: id, Name: name, LastActivityAt: lastActive}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// CreateQueue inserts a queue; created orders queues the way waitlist replay does.
func CreateQueue(t *testing.T, db *gorm.DB, name string, size int, created time.Time) models.Queue {
	t.Helper()
	q := models.Queue{Name: name, Size: size, CreatedAt: created}
	require.NoError(t, db.Create(&q).Error)
	return q
}

func Join(t *testing.T, db *gorm.DB, queueID string, playerID int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.QueuePlayer{QueueID: queueID, PlayerID: playerID, CreatedAt: Epoch}).Error)
}

func CreateMap(t *testing.T, db *gorm.DB, short string, index, weight int) models.Map {
	t.Helper()
	m := models.Map{ShortName: short, FullName: strings.ToUpper(short), RotationIndex: index, RotationWeight: weight}
	require.NoError(t, db.Create(&m).Error)
	return m
}
