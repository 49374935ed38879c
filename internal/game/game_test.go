package game

import (
	"context"
	"testing"
	"time"

	"pickup/internal/logging"
	"pickup/internal/models"
	"pickup/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *gorm.DB, *testutil.Recorder, *testutil.Clock) {
	db := testutil.NewDB(t)
	notes := &testutil.Recorder{}
	clock := &testutil.Clock{T: testutil.Epoch}
	svc := NewService(db, notes, Options{ChannelID: 7, ReAddDelay: 30 * time.Second, Now: clock.Now}, logging.Discard())
	return svc, db, notes, clock
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestAddPlayerToQueue(t *testing.T) {
	svc, db, notes, _ := newService(t)
	ctx := context.Background()
	q := testutil.CreateQueue(t, db, "2v2", 4, testutil.Epoch)

	added, popped, err := svc.AddPlayerToQueue(ctx, q.ID, 1)
	require.NoError(t, err)
	assert.True(t, added)
	assert.False(t, popped)

	added, popped, err = svc.AddPlayerToQueue(ctx, q.ID, 1)
	require.NoError(t, err)
	assert.False(t, added, "already in queue")
	assert.False(t, popped)
	assert.Equal(t, int64(1), countRows(t, db, &models.QueuePlayer{}, ""))
	assert.Empty(t, notes.Messages())
}

func TestAddPlayerToUnknownQueue(t *testing.T) {
	svc, _, _, _ := newService(t)
	_, _, err := svc.AddPlayerToQueue(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestPopClearsAllMemberships(t *testing.T) {
	svc, db, notes, _ := newService(t)
	ctx := context.Background()
	small := testutil.CreateQueue(t, db, "1v1", 2, testutil.Epoch)
	big := testutil.CreateQueue(t, db, "2v2", 4, testutil.Epoch.Add(time.Minute))
	for id, name := range map[int64]string{1: "alice", 2: "bob", 3: "carol"} {
		testutil.CreatePlayer(t, db, id, name, testutil.Epoch)
	}
	testutil.Join(t, db, big.ID, 1)
	testutil.Join(t, db, big.ID, 2)
	testutil.Join(t, db, big.ID, 3)

	_, popped, err := svc.AddPlayerToQueue(ctx, small.ID, 1)
	require.NoError(t, err)
	require.False(t, popped)

	added, popped, err := svc.AddPlayerToQueue(ctx, small.ID, 2)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, popped)

	var members []models.QueuePlayer
	require.NoError(t, db.Find(&members).Error)
	require.Len(t, members, 1, "popped players leave every queue")
	assert.Equal(t, int64(3), members[0].PlayerID)

	var game models.InProgressGame
	require.NoError(t, db.First(&game).Error)
	assert.Equal(t, small.ID, game.QueueID)
	assert.Equal(t, int64(2), countRows(t, db, &models.InProgressGamePlayer{}, "in_progress_game_id = ?", game.ID))

	msgs := notes.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(7), msgs[0].Target)
	assert.Equal(t, "alice, bob", msgs[0].Description)

	inGame, err := svc.IsInGame(ctx, 1)
	require.NoError(t, err)
	assert.True(t, inGame)

	added, popped, err = svc.AddPlayerToQueue(ctx, big.ID, 1)
	require.NoError(t, err)
	assert.False(t, added, "players in a game cannot queue")
	assert.False(t, popped)
}

func TestFinishGameCreatesWaitlist(t *testing.T) {
	svc, db, _, clock := newService(t)
	ctx := context.Background()
	q := testutil.CreateQueue(t, db, "1v1", 2, testutil.Epoch)
	testutil.CreatePlayer(t, db, 1, "alice", testutil.Epoch)
	testutil.CreatePlayer(t, db, 2, "bob", testutil.Epoch)
	svc.AddPlayerToQueue(ctx, q.ID, 1)
	_, popped, err := svc.AddPlayerToQueue(ctx, q.ID, 2)
	require.NoError(t, err)
	require.True(t, popped)

	var game models.InProgressGame
	require.NoError(t, db.First(&game).Error)

	waitlist, err := svc.FinishGame(ctx, game.ID)
	require.NoError(t, err)
	assert.True(t, waitlist.EndWaitlistAt.Equal(clock.T.Add(30*time.Second)))

	var rows []models.QueueWaitlistPlayer
	require.NoError(t, db.Where("queue_waitlist_id = ?", waitlist.ID).Order("player_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, q.ID, rows[0].QueueID)
	assert.Equal(t, int64(1), rows[0].PlayerID)

	inGame, err := svc.IsInGame(ctx, 1)
	require.NoError(t, err)
	assert.False(t, inGame)
	assert.Equal(t, int64(1), countRows(t, db, &models.InProgressGame{}, ""), "the game row lives until its waitlist is reconciled")

	_, err = svc.FinishGame(ctx, game.ID)
	assert.ErrorIs(t, err, ErrGameFinished)
	_, err = svc.FinishGame(ctx, "missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestLeave(t *testing.T) {
	svc, db, _, _ := newService(t)
	ctx := context.Background()
	q1 := testutil.CreateQueue(t, db, "a", 4, testutil.Epoch)
	q2 := testutil.CreateQueue(t, db, "b", 4, testutil.Epoch.Add(time.Minute))
	testutil.Join(t, db, q1.ID, 1)
	testutil.Join(t, db, q2.ID, 1)
	require.NoError(t, db.Create(&models.QueueWaitlistPlayer{QueueWaitlistID: "w", QueueID: q1.ID, PlayerID: 1}).Error)

	n, err := svc.Leave(ctx, 1, q1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), countRows(t, db, &models.QueueWaitlistPlayer{}, ""))

	n, err = svc.Leave(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, countRows(t, db, &models.QueuePlayer{}, ""))
	assert.Zero(t, countRows(t, db, &models.QueueWaitlistPlayer{}, ""))
}

func TestRecordActivityIsMonotonic(t *testing.T) {
	svc, _, _, clock := newService(t)
	ctx := context.Background()

	p, err := svc.RecordActivity(ctx, 1, "alice")
	require.NoError(t, err)
	assert.True(t, p.LastActivityAt.Equal(testutil.Epoch))

	clock.Advance(time.Minute)
	p, err = svc.RecordActivity(ctx, 1, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.True(t, p.LastActivityAt.Equal(testutil.Epoch.Add(time.Minute)))

	clock.Advance(-10 * time.Minute)
	p, err = svc.RecordActivity(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.True(t, p.LastActivityAt.Equal(testutil.Epoch.Add(time.Minute)), "activity never moves backwards")
}

func TestAttachChannel(t *testing.T) {
	svc, db, _, _ := newService(t)
	ctx := context.Background()
	assert.ErrorIs(t, svc.AttachChannel(ctx, "missing", 5), ErrGameNotFound)

	game := models.InProgressGame{QueueID: "q"}
	require.NoError(t, db.Create(&game).Error)
	require.NoError(t, svc.AttachChannel(ctx, game.ID, 5))
	require.NoError(t, svc.AttachChannel(ctx, game.ID, 5))
	assert.Equal(t, int64(1), countRows(t, db, &models.InProgressGameChannel{}, ""))
}
