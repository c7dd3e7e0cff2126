package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/metadata"
	"github.com/signacast/signacast/pkg/models"
	"github.com/signacast/signacast/pkg/registry"
)

func newTestSaga(t *testing.T) (*Saga, *Pairing, *registry.Registry, *metadata.MemoryStore, *clock.Fake) {
	t.Helper()

	store := kv.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := logger.NewTestLogger()
	reg := registry.New(store, clk, log)
	p := New(reg, store, clk, log)
	meta := metadata.NewMemoryStore(clk)

	return NewSaga(meta, p, clk, log), p, reg, meta, clk
}

func TestSagaBeginCreatesPlaceholder(t *testing.T) {
	saga, _, _, meta, _ := newTestSaga(t)

	display, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)
	assert.NotEmpty(t, display.ID)
	assert.Equal(t, PendingDisplayName, display.Name)
	assert.Equal(t, models.StateOffline, display.Status)

	stored, found, err := meta.Get(context.Background(), "user-a", display.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, PendingDisplayName, stored.Name)
}

func TestSagaCompleteLinksAndRenames(t *testing.T) {
	saga, p, reg, meta, _ := newTestSaga(t)

	registerDevice(t, reg, "dev-1", "key-1")

	display, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)

	err = saga.Complete(context.Background(), "user-a", display.ID, "dev-1", "key-1")
	require.NoError(t, err)

	link, err := p.GetDeviceLink(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, display.ID, link.DisplayID)

	stored, found, err := meta.Get(context.Background(), "user-a", display.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, LinkedDisplayName, stored.Name)
	assert.Equal(t, models.StateOnline, stored.Status)
}

func TestSagaCompleteBadCredentialsKeepsPlaceholder(t *testing.T) {
	saga, p, reg, meta, _ := newTestSaga(t)

	registerDevice(t, reg, "dev-1", "key-1")

	display, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)

	err = saga.Complete(context.Background(), "user-a", display.ID, "dev-1", "wrong-key")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	link, err := p.GetDeviceLink(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Nil(t, link)

	stored, found, err := meta.Get(context.Background(), "user-a", display.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, PendingDisplayName, stored.Name)
}

func TestSagaAbandon(t *testing.T) {
	saga, _, _, meta, _ := newTestSaga(t)

	display, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)

	require.NoError(t, saga.Abandon(context.Background(), "user-a", display.ID))

	_, found, err := meta.Get(context.Background(), "user-a", display.ID)
	require.NoError(t, err)
	assert.False(t, found)

	// Abandoning again, or abandoning something that never existed, is fine.
	require.NoError(t, saga.Abandon(context.Background(), "user-a", display.ID))
	require.NoError(t, saga.Abandon(context.Background(), "user-a", "never-existed"))
}

func TestSagaReapOrphans(t *testing.T) {
	saga, _, _, meta, clk := newTestSaga(t)

	stale, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	fresh, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)

	reaped, err := saga.ReapOrphans(context.Background(), "user-a", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	_, found, err := meta.Get(context.Background(), "user-a", stale.ID)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = meta.Get(context.Background(), "user-a", fresh.ID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSagaReapOrphansSkipsRealDisplays(t *testing.T) {
	saga, _, _, meta, clk := newTestSaga(t)

	display, err := meta.Create(context.Background(), models.Display{
		UserID: "user-a",
		Name:   "Lobby Screen",
		Status: models.StateOnline,
	})
	require.NoError(t, err)

	clk.Advance(3 * time.Hour)

	reaped, err := saga.ReapOrphans(context.Background(), "user-a", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, reaped)

	_, found, err := meta.Get(context.Background(), "user-a", display.ID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOrphanSweeperSweepsTrackedUsers(t *testing.T) {
	saga, _, _, meta, clk := newTestSaga(t)

	stale, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	sweeper := NewOrphanSweeper(saga, 10*time.Minute, time.Hour, clk, logger.NewTestLogger())
	sweeper.Track("user-a")
	sweeper.sweepAll(context.Background())

	_, found, err := meta.Get(context.Background(), "user-a", stale.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOrphanSweeperUntrack(t *testing.T) {
	saga, _, _, meta, clk := newTestSaga(t)

	stale, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	sweeper := NewOrphanSweeper(saga, 10*time.Minute, time.Hour, clk, logger.NewTestLogger())
	sweeper.Track("user-a")
	sweeper.Track("user-a")
	sweeper.Untrack("user-a")
	sweeper.sweepAll(context.Background())

	// Still tracked by the second session.
	_, found, err := meta.Get(context.Background(), "user-a", stale.ID)
	require.NoError(t, err)
	assert.False(t, found)

	sweeper.Untrack("user-a")
	next, err := saga.Begin(context.Background(), "user-a")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	sweeper.sweepAll(context.Background())

	_, found, err = meta.Get(context.Background(), "user-a", next.ID)
	require.NoError(t, err)
	assert.True(t, found)
}
