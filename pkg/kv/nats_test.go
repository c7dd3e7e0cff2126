package kv

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signacast/signacast/pkg/logger"
)

// fakeKeyWatcher implements jetstream.KeyWatcher for tests.
type fakeKeyWatcher struct {
	updates chan jetstream.KeyValueEntry
	stopped bool
}

func (f *fakeKeyWatcher) Updates() <-chan jetstream.KeyValueEntry { return f.updates }

func (f *fakeKeyWatcher) Stop() error {
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}

	return nil
}

// fakeEntry implements jetstream.KeyValueEntry for tests.
type fakeEntry struct {
	key string
	val []byte
	op  jetstream.KeyValueOp
}

func (fakeEntry) Bucket() string                    { return "" }
func (e fakeEntry) Key() string                     { return e.key }
func (e fakeEntry) Value() []byte                   { return e.val }
func (fakeEntry) Revision() uint64                  { return 0 }
func (fakeEntry) Created() time.Time                { return time.Time{} }
func (fakeEntry) Delta() uint64                     { return 0 }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return e.op }

// fakeKV implements jetstream.KeyValue using embedding and overrides Watch.
type fakeKV struct {
	jetstream.KeyValue
	watcher jetstream.KeyWatcher
	err     error
}

func (f *fakeKV) Watch(_ context.Context, _ string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return f.watcher, f.err
}

func newWatchStore(kv jetstream.KeyValue) *NatsStore {
	return &NatsStore{
		kv:     kv,
		ctx:    context.Background(),
		logger: logger.NewTestLogger(),
	}
}

func TestNatsStoreWatchForwardsUpdates(t *testing.T) {
	updates := make(chan jetstream.KeyValueEntry, 2)
	watcher := &fakeKeyWatcher{updates: updates}
	ns := newWatchStore(&fakeKV{watcher: watcher})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := ns.Watch(ctx, "device_links.dev-1")
	require.NoError(t, err)

	// JetStream emits a nil marker after the initial replay; it must be
	// swallowed, not forwarded.
	updates <- nil
	updates <- fakeEntry{key: "device_links.dev-1", val: []byte("value"), op: jetstream.KeyValuePut}

	select {
	case v := <-ch:
		assert.Equal(t, []byte("value"), v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}

	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, watcher.stopped)
}

func TestNatsStoreWatchPatternDeletes(t *testing.T) {
	updates := make(chan jetstream.KeyValueEntry, 2)
	watcher := &fakeKeyWatcher{updates: updates}
	ns := newWatchStore(&fakeKV{watcher: watcher})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := ns.WatchPattern(ctx, "users.u1.displays.d1.commands.*")
	require.NoError(t, err)

	updates <- fakeEntry{key: "users.u1.displays.d1.commands.c1", val: []byte("cmd"), op: jetstream.KeyValuePut}
	updates <- fakeEntry{key: "users.u1.displays.d1.commands.c1", op: jetstream.KeyValueDelete}

	entry := waitEntry(t, ch)
	assert.Equal(t, "users.u1.displays.d1.commands.c1", entry.Key)
	assert.Equal(t, []byte("cmd"), entry.Value)
	assert.False(t, entry.Deleted)

	entry = waitEntry(t, ch)
	assert.True(t, entry.Deleted)
	assert.Nil(t, entry.Value)
}

func TestNatsStoreWatchError(t *testing.T) {
	ns := newWatchStore(&fakeKV{err: jetstream.ErrKeyNotFound})

	_, err := ns.Watch(context.Background(), "missing")
	assert.Error(t, err)
}
