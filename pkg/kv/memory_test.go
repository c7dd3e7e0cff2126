package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "a.b", []byte("v1")))

	value, found, err := store.Get(ctx, "a.b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), value)

	require.NoError(t, store.Delete(ctx, "a.b"))
	require.NoError(t, store.Delete(ctx, "a.b")) // absent delete is a no-op

	_, found, err = store.Get(ctx, "a.b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "k", []byte("abc")))

	value, _, err := store.Get(ctx, "k")
	require.NoError(t, err)

	value[0] = 'z'

	again, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryStoreListKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "users.u1.displays.d1.commands.c1", []byte("1")))
	require.NoError(t, store.Put(ctx, "users.u1.displays.d1.commands.c2", []byte("2")))
	require.NoError(t, store.Put(ctx, "users.u1.displays.d1.status", []byte("3")))

	keys, err := store.ListKeys(ctx, "users.u1.displays.d1.commands.")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"users.u1.displays.d1.commands.c1",
		"users.u1.displays.d1.commands.c2",
	}, keys)
}

func TestMemoryStoreWatchPattern(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "users.u1.displays.d1.status", []byte("initial")))

	entries, err := store.WatchPattern(ctx, "users.u1.displays.*.status")
	require.NoError(t, err)

	// Initial replay.
	entry := waitEntry(t, entries)
	assert.Equal(t, "users.u1.displays.d1.status", entry.Key)
	assert.Equal(t, []byte("initial"), entry.Value)

	// A non-matching key must not be delivered.
	require.NoError(t, store.Put(ctx, "users.u1.displays.d1.commands.c1", []byte("cmd")))
	// A matching update for another display must be.
	require.NoError(t, store.Put(ctx, "users.u1.displays.d2.status", []byte("live")))

	entry = waitEntry(t, entries)
	assert.Equal(t, "users.u1.displays.d2.status", entry.Key)
	assert.Equal(t, []byte("live"), entry.Value)

	require.NoError(t, store.Delete(ctx, "users.u1.displays.d2.status"))

	entry = waitEntry(t, entries)
	assert.True(t, entry.Deleted)
	assert.Nil(t, entry.Value)

	cancel()

	assertClosed(t, entries)
}

func TestMemoryStoreWatchSingleKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore()

	values, err := store.Watch(ctx, "device_links.dev-1")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "device_links.dev-1", []byte("link")))

	select {
	case v := <-values:
		assert.Equal(t, []byte("link"), v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch value")
	}

	require.NoError(t, store.Delete(ctx, "device_links.dev-1"))

	select {
	case v := <-values:
		assert.Nil(t, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delete notification")
	}
}

func TestMemoryStoreCloseStopsWatchers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entries, err := store.WatchPattern(ctx, ">")
	require.NoError(t, err)

	require.NoError(t, store.Close())

	assertClosed(t, entries)

	_, _, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, errStoreClosed)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"a.b.c", "a.b.c", true},
		{"a.b.c", "a.b", false},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.d", false},
		{"a.>", "a.b.c.d", true},
		{"a.>", "a", false},
		{">", "anything.at.all", true},
		{"users.*.displays.*.status", "users.u1.displays.d1.status", true},
		{"users.*.displays.*.status", "users.u1.displays.d1.commands.c1", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPattern(tt.pattern, tt.key), "pattern=%s key=%s", tt.pattern, tt.key)
	}
}

func waitEntry(t *testing.T, entries <-chan Entry) Entry {
	t.Helper()

	select {
	case entry, ok := <-entries:
		require.True(t, ok, "watch channel closed unexpectedly")

		return entry
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch entry")

		return Entry{}
	}
}

func assertClosed(t *testing.T, entries <-chan Entry) {
	t.Helper()

	deadline := time.After(time.Second)

	for {
		select {
		case _, ok := <-entries:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watch channel was not closed")
		}
	}
}
