package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"pickup/internal/admission"
	"pickup/internal/logging"
	"pickup/internal/models"
	"pickup/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeInGame struct {
	players map[int64]bool
	err     error
}

func (f fakeInGame) IsInGame(_ context.Context, playerID int64) (bool, error) {
	return f.players[playerID], f.err
}

type fakeDeleter struct {
	deleted []int64
	err     error
}

func (f *fakeDeleter) DeleteChannel(_ context.Context, channelID int64) error {
	f.deleted = append(f.deleted, channelID)
	return f.err
}

func drain(t *testing.T, ch admission.Channel) []admission.Message {
	var out []admission.Message
	for {
		msg, err := ch.Pop(context.Background())
		if errors.Is(err, admission.ErrEmptyChannel) {
			return out
		}
		require.NoError(t, err)
		out = append(out, msg)
	}
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func createGameWaitlist(t *testing.T, db *gorm.DB, end time.Time, rows map[int64]string) models.QueueWaitlist {
	game := models.InProgressGame{QueueID: "any"}
	require.NoError(t, db.Create(&game).Error)
	w := models.QueueWaitlist{InProgressGameID: game.ID, EndWaitlistAt: end}
	require.NoError(t, db.Create(&w).Error)
	for playerID, queueID := range rows {
		require.NoError(t, db.Create(&models.QueueWaitlistPlayer{QueueWaitlistID: w.ID, QueueID: queueID, PlayerID: playerID}).Error)
	}
	return w
}

func TestGameWaitlistReconcile(t *testing.T) {
	db := testutil.NewDB(t)
	ch := admission.NewMemoryChannel()
	clock := &testutil.Clock{T: testutil.Epoch}
	deleter := &fakeDeleter{err: errors.New("unknown channel")}
	r := NewReconciler(db, NewGameSource(deleter, logging.Discard()), ch,
		fakeInGame{players: map[int64]bool{2: true}}, Options{Now: clock.Now}, logging.Discard())

	older := testutil.CreateQueue(t, db, "older", 4, testutil.Epoch.Add(-2*time.Hour))
	newer := testutil.CreateQueue(t, db, "newer", 4, testutil.Epoch.Add(-time.Hour))
	for id, name := range map[int64]string{1: "alice", 2: "bob", 3: "carol", 4: "dave"} {
		testutil.CreatePlayer(t, db, id, name, testutil.Epoch)
	}

	expired := createGameWaitlist(t, db, clock.T.Add(-time.Second), map[int64]string{
		1: newer.ID,
		2: newer.ID,
		3: older.ID,
	})
	require.NoError(t, db.Create(&models.InProgressGameChannel{InProgressGameID: expired.InProgressGameID, ChannelID: 555}).Error)
	live := createGameWaitlist(t, db, clock.T.Add(time.Minute), map[int64]string{4: older.ID})

	require.NoError(t, r.Tick(context.Background()))

	msgs := drain(t, ch)
	require.Len(t, msgs, 2)
	assert.Equal(t, admission.NewMessage(3, "carol", []string{older.ID}, false), msgs[0], "queues replay in creation order")
	assert.Equal(t, admission.NewMessage(1, "alice", []string{newer.ID}, false), msgs[1])

	assert.Equal(t, []int64{555}, deleter.deleted, "teardown failures are tolerated")
	assert.Zero(t, count(t, db, &models.InProgressGameChannel{}))
	assert.Equal(t, int64(1), count(t, db, &models.QueueWaitlist{}))
	assert.Equal(t, int64(1), count(t, db, &models.QueueWaitlistPlayer{}))
	assert.Equal(t, int64(1), count(t, db, &models.InProgressGame{}))

	var remaining models.QueueWaitlist
	require.NoError(t, db.First(&remaining).Error)
	assert.Equal(t, live.ID, remaining.ID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ch := admission.NewMemoryChannel()
	clock := &testutil.Clock{T: testutil.Epoch}
	r := NewReconciler(db, NewGameSource(&fakeDeleter{}, logging.Discard()), ch,
		fakeInGame{}, Options{Now: clock.Now}, logging.Discard())

	q := testutil.CreateQueue(t, db, "q", 4, testutil.Epoch)
	testutil.CreatePlayer(t, db, 1, "alice", testutil.Epoch)
	createGameWaitlist(t, db, clock.T.Add(-time.Second), map[int64]string{1: q.ID})

	require.NoError(t, r.Tick(context.Background()))
	assert.Len(t, drain(t, ch), 1)

	clock.Advance(time.Hour)
	require.NoError(t, r.Tick(context.Background()))
	assert.Empty(t, drain(t, ch))
	assert.Zero(t, count(t, db, &models.QueueWaitlist{}))
}

func TestReconcileDropsStaleRows(t *testing.T) {
	db := testutil.NewDB(t)
	ch := admission.NewMemoryChannel()
	clock := &testutil.Clock{T: testutil.Epoch}
	r := NewReconciler(db, NewGameSource(&fakeDeleter{}, logging.Discard()), ch,
		fakeInGame{}, Options{Now: clock.Now}, logging.Discard())

	q := testutil.CreateQueue(t, db, "q", 4, testutil.Epoch)
	testutil.CreatePlayer(t, db, 1, "alice", testutil.Epoch)
	testutil.CreatePlayer(t, db, 2, "bob", testutil.Epoch)
	createGameWaitlist(t, db, clock.T.Add(-time.Second), map[int64]string{
		1: "deleted-queue",
		2: q.ID,
		3: q.ID, // no player row
	})

	require.NoError(t, r.Tick(context.Background()))

	msgs := drain(t, ch)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(2), msgs[0].PlayerID)
	assert.Zero(t, count(t, db, &models.QueueWaitlistPlayer{}))
}

func TestReconcileFailureKeepsWaitlist(t *testing.T) {
	db := testutil.NewDB(t)
	ch := admission.NewMemoryChannel()
	clock := &testutil.Clock{T: testutil.Epoch}
	inGame := fakeInGame{err: errors.New("database is locked")}
	r := NewReconciler(db, NewGameSource(&fakeDeleter{}, logging.Discard()), ch,
		inGame, Options{Now: clock.Now}, logging.Discard())

	q := testutil.CreateQueue(t, db, "q", 4, testutil.Epoch)
	testutil.CreatePlayer(t, db, 1, "alice", testutil.Epoch)
	createGameWaitlist(t, db, clock.T.Add(-time.Second), map[int64]string{1: q.ID})

	assert.Error(t, r.Tick(context.Background()))
	assert.Empty(t, drain(t, ch))
	assert.Equal(t, int64(1), count(t, db, &models.QueueWaitlist{}))
	assert.Equal(t, int64(1), count(t, db, &models.QueueWaitlistPlayer{}))

	r.inGame = fakeInGame{}
	require.NoError(t, r.Tick(context.Background()))
	assert.Len(t, drain(t, ch), 1)
}

// downChannel accepts the first ok pushes, then fails until healed.
type downChannel struct {
	*admission.MemoryChannel
	ok     int
	healed bool
}

func (c *downChannel) Push(ctx context.Context, msg admission.Message) error {
	if !c.healed && c.ok == 0 {
		return errors.New("redis down")
	}
	c.ok--
	return c.MemoryChannel.Push(ctx, msg)
}

func TestReconcilePushFailureKeepsWaitlist(t *testing.T) {
	db := testutil.NewDB(t)
	ch := &downChannel{MemoryChannel: admission.NewMemoryChannel(), ok: 1}
	clock := &testutil.Clock{T: testutil.Epoch}
	r := NewReconciler(db, NewGameSource(&fakeDeleter{}, logging.Discard()), ch,
		fakeInGame{}, Options{Now: clock.Now}, logging.Discard())

	q := testutil.CreateQueue(t, db, "q", 4, testutil.Epoch)
	testutil.CreatePlayer(t, db, 1, "alice", testutil.Epoch)
	testutil.CreatePlayer(t, db, 2, "bob", testutil.Epoch)
	createGameWaitlist(t, db, clock.T.Add(-time.Second), map[int64]string{1: q.ID, 2: q.ID})

	err := r.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, int64(1), count(t, db, &models.QueueWaitlist{}))
	assert.Equal(t, int64(2), count(t, db, &models.QueueWaitlistPlayer{}))
	assert.Equal(t, int64(1), count(t, db, &models.InProgressGame{}))

	ch.healed = true
	require.NoError(t, r.Tick(context.Background()))
	assert.Zero(t, count(t, db, &models.QueueWaitlist{}))

	// The push that succeeded before the failure is replayed; duplicates are
	// harmless, every player is enqueued at least once.
	seen := map[int64]int{}
	for _, msg := range drain(t, ch) {
		seen[msg.PlayerID]++
	}
	assert.Len(t, seen, 2)
	assert.Equal(t, 3, seen[1]+seen[2])
}

func TestReconcileMultipleExpiredWaitlists(t *testing.T) {
	db := testutil.NewDB(t)
	ch := admission.NewMemoryChannel()
	clock := &testutil.Clock{T: testutil.Epoch}
	r := NewReconciler(db, NewGameSource(&fakeDeleter{}, logging.Discard()), ch,
		fakeInGame{}, Options{Now: clock.Now}, logging.Discard())

	q := testutil.CreateQueue(t, db, "q", 4, testutil.Epoch)
	testutil.CreatePlayer(t, db, 1, "alice", testutil.Epoch)
	testutil.CreatePlayer(t, db, 2, "bob", testutil.Epoch)
	createGameWaitlist(t, db, clock.T.Add(-2*time.Second), map[int64]string{1: q.ID})
	createGameWaitlist(t, db, clock.T.Add(-time.Second), map[int64]string{2: q.ID})

	require.NoError(t, r.Tick(context.Background()))
	msgs := drain(t, ch)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].PlayerID)
	assert.Equal(t, int64(2), msgs[1].PlayerID)
	assert.Zero(t, count(t, db, &models.QueueWaitlist{}))
	assert.Zero(t, count(t, db, &models.InProgressGame{}))
}

func TestVoteWaitlistReconcile(t *testing.T) {
	db := testutil.NewDB(t)
	ch := admission.NewMemoryChannel()
	clock := &testutil.Clock{T: testutil.Epoch}
	r := NewReconciler(db, VoteSource{}, ch,
		fakeInGame{players: map[int64]bool{2: true}}, Options{Now: clock.Now}, logging.Discard())

	q1 := testutil.CreateQueue(t, db, "q1", 4, testutil.Epoch)
	testutil.CreatePlayer(t, db, 1, "p1", testutil.Epoch)
	testutil.CreatePlayer(t, db, 2, "p2", testutil.Epoch)
	w := models.VotePassedWaitlist{EndWaitlistAt: clock.T.Add(time.Minute)}
	require.NoError(t, db.Create(&w).Error)
	require.NoError(t, db.Create(&[]models.VotePassedWaitlistPlayer{
		{VotePassedWaitlistID: w.ID, QueueID: q1.ID, PlayerID: 1},
		{VotePassedWaitlistID: w.ID, QueueID: q1.ID, PlayerID: 2},
	}).Error)

	require.NoError(t, r.Tick(context.Background()))
	assert.Empty(t, drain(t, ch), "waitlist has not expired")

	clock.Advance(2 * time.Minute)
	require.NoError(t, r.Tick(context.Background()))

	msgs := drain(t, ch)
	require.Len(t, msgs, 1)
	assert.Equal(t, admission.NewMessage(1, "p1", []string{q1.ID}, false), msgs[0])
	assert.Zero(t, count(t, db, &models.VotePassedWaitlistPlayer{}))
	assert.Zero(t, count(t, db, &models.VotePassedWaitlist{}))

	require.NoError(t, r.Tick(context.Background()))
	assert.Empty(t, drain(t, ch))
}

func TestShuffleWithinQueue(t *testing.T) {
	db := testutil.NewDB(t)
	ch := admission.NewMemoryChannel()
	clock := &testutil.Clock{T: testutil.Epoch}
	var sizes []int
	shuffle := func(n int, swap func(i, j int)) {
		sizes = append(sizes, n)
		if n > 1 {
			swap(0, n-1)
		}
	}
	r := NewReconciler(db, VoteSource{}, ch, fakeInGame{}, Options{Now: clock.Now, Shuffle: shuffle}, logging.Discard())

	q1 := testutil.CreateQueue(t, db, "q1", 4, testutil.Epoch)
	q2 := testutil.CreateQueue(t, db, "q2", 4, testutil.Epoch.Add(time.Minute))
	for id := int64(1); id <= 3; id++ {
		testutil.CreatePlayer(t, db, id, "p", testutil.Epoch)
	}
	w := models.VotePassedWaitlist{EndWaitlistAt: clock.T.Add(-time.Minute)}
	require.NoError(t, db.Create(&w).Error)
	require.NoError(t, db.Create(&[]models.VotePassedWaitlistPlayer{
		{VotePassedWaitlistID: w.ID, QueueID: q1.ID, PlayerID: 1},
		{VotePassedWaitlistID: w.ID, QueueID: q1.ID, PlayerID: 2},
		{VotePassedWaitlistID: w.ID, QueueID: q2.ID, PlayerID: 3},
	}).Error)

	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, []int{2, 1}, sizes, "one shuffle per queue, in creation order")
	msgs := drain(t, ch)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{q2.ID}, msgs[2].QueueIDs)
}
