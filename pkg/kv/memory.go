/*
 * Copyright 2026 Signacast Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package kv

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var errStoreClosed = errors.New("kv store is closed")

// watcherBuffer bounds how many undelivered entries a watcher may lag
// behind before new updates are dropped for it.
const watcherBuffer = 64

// MemoryStore is an in-memory Store used by tests and demo mode. Writes are
// serialized under one lock, which gives deterministic last-write-wins
// semantics; watch delivery is asynchronous, mirroring the eventual
// consistency of the real store.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[*memoryWatcher]struct{}
	closed   bool
}

type memoryWatcher struct {
	pattern string
	ch      chan Entry
	done    chan struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		watchers: make(map[*memoryWatcher]struct{}),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, errStoreClosed
	}

	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(value))
	copy(out, value)

	return out, true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errStoreClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored

	m.notifyLocked(Entry{Key: key, Value: stored})

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errStoreClosed
	}

	if _, ok := m.data[key]; !ok {
		return nil
	}

	delete(m.data, key)
	m.notifyLocked(Entry{Key: key, Deleted: true})

	return nil
}

func (m *MemoryStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errStoreClosed
	}

	var keys []string

	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

func (m *MemoryStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	entries, err := m.WatchPattern(ctx, key)
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, 1)

	go func() {
		defer close(ch)

		for entry := range entries {
			select {
			case ch <- entry.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (m *MemoryStore) WatchPattern(ctx context.Context, pattern string) (<-chan Entry, error) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil, errStoreClosed
	}

	// Replay current matches before any further updates, like a JetStream
	// watcher does.
	var initial []string

	for key := range m.data {
		if matchPattern(pattern, key) {
			initial = append(initial, key)
		}
	}

	sort.Strings(initial)

	w := &memoryWatcher{
		pattern: pattern,
		ch:      make(chan Entry, len(initial)+watcherBuffer),
		done:    make(chan struct{}),
	}

	for _, key := range initial {
		w.ch <- Entry{Key: key, Value: m.data[key]}
	}

	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	out := make(chan Entry, 1)

	go func() {
		defer func() {
			m.removeWatcher(w)
			close(out)
		}()

		for {
			select {
			case entry, ok := <-w.ch:
				if !ok {
					return
				}

				select {
				case out <- entry:
				case <-ctx.Done():
					return
				case <-w.done:
					return
				}
			case <-ctx.Done():
				return
			case <-w.done:
				return
			}
		}
	}()

	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true

	for w := range m.watchers {
		close(w.done)
	}

	m.watchers = make(map[*memoryWatcher]struct{})

	return nil
}

func (m *MemoryStore) notifyLocked(entry Entry) {
	for w := range m.watchers {
		if !matchPattern(w.pattern, entry.Key) {
			continue
		}

		select {
		case w.ch <- entry:
		default:
			// Watcher is not keeping up; drop the update. Consumers
			// re-read the store on every event, so a dropped
			// notification only delays convergence.
		}
	}
}

func (m *MemoryStore) removeWatcher(w *memoryWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.watchers, w)
}

// matchPattern reports whether a dot-separated key matches a subject
// pattern: '*' matches exactly one token, '>' matches one or more trailing
// tokens.
func matchPattern(pattern, key string) bool {
	pt := strings.Split(pattern, ".")
	kt := strings.Split(key, ".")

	for i, p := range pt {
		if p == ">" {
			return i < len(kt)
		}

		if i >= len(kt) {
			return false
		}

		if p != "*" && p != kt[i] {
			return false
		}
	}

	return len(pt) == len(kt)
}

var _ Store = (*MemoryStore)(nil)
