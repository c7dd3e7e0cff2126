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

// Package kv abstracts the shared realtime store the dashboard and the
// player devices coordinate through. The store is eventually consistent:
// a write is not guaranteed to be visible to the writer's own next watch
// callback, and there are no transactions across keys.
package kv

import "context"

// Entry is one key's state as delivered by a pattern watch. A nil Value
// with Deleted set reports a removal.
type Entry struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Store defines the operations the live-control core needs from the
// realtime store.
type Store interface {
	// Get retrieves the value associated with the given key. The boolean
	// reports whether the key was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores a value under the given key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeys returns every key with the given prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Watch monitors a single key. The channel receives the current value
	// first, then every subsequent value (nil on delete), and is closed when
	// the context is canceled or the store is closed.
	Watch(ctx context.Context, key string) (<-chan []byte, error)

	// WatchPattern monitors every key matching a subject pattern ('*'
	// matches one token, '>' matches the rest). Current matches are
	// delivered first, then changes. The channel is closed when the context
	// is canceled or the store is closed.
	WatchPattern(ctx context.Context, pattern string) (<-chan Entry, error)

	// Close shuts down the store, releasing any resources.
	Close() error
}
