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
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/signacast/signacast/pkg/logger"
)

// NatsStore implements Store on a NATS JetStream key-value bucket.
type NatsStore struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	ctx    context.Context
	logger logger.Logger
}

// NewNatsStore connects to NATS and opens (or creates) the bucket. The
// passed context bounds the lifetime of all watches opened on the store.
func NewNatsStore(ctx context.Context, natsURL, bucket string, log logger.Logger, opts ...nats.Option) (*NatsStore, error) {
	opts = append([]nats.Option{nats.Timeout(10 * time.Second)}, opts...)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create KV bucket: %w", err)
	}

	return &NatsStore{
		nc:     nc,
		kv:     kv,
		ctx:    ctx,
		logger: log.WithComponent("kv"),
	}, nil
}

func (n *NatsStore) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	entry, err := n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return entry.Value(), true, nil
}

func (n *NatsStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}

	return nil
}

func (n *NatsStore) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

func (n *NatsStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := n.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	defer func() {
		if stopErr := lister.Stop(); stopErr != nil {
			n.logger.Warn().Err(stopErr).Msg("Failed to stop key lister")
		}
	}()

	var keys []string

	for key := range lister.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (n *NatsStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := n.kv.Watch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to watch key %s: %w", key, err)
	}

	ch := make(chan []byte, 1)

	go func() {
		defer n.stopWatcher(key, watcher)
		defer close(ch)

		for {
			entry, ok := n.nextEntry(ctx, watcher)
			if !ok {
				return
			}

			if !n.send(ctx, ch, entry.Value()) {
				return
			}
		}
	}()

	return ch, nil
}

func (n *NatsStore) WatchPattern(ctx context.Context, pattern string) (<-chan Entry, error) {
	watcher, err := n.kv.Watch(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to watch pattern %s: %w", pattern, err)
	}

	ch := make(chan Entry, 16)

	go func() {
		defer n.stopWatcher(pattern, watcher)
		defer close(ch)

		for {
			update, ok := n.nextEntry(ctx, watcher)
			if !ok {
				return
			}

			entry := Entry{Key: update.Key(), Value: update.Value()}
			if update.Operation() != jetstream.KeyValuePut {
				entry.Value = nil
				entry.Deleted = true
			}

			select {
			case ch <- entry:
			case <-ctx.Done():
				return
			case <-n.ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// nextEntry waits for the next watcher update, skipping the nil marker
// JetStream emits once the initial replay is complete.
func (n *NatsStore) nextEntry(ctx context.Context, watcher jetstream.KeyWatcher) (jetstream.KeyValueEntry, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-n.ctx.Done():
			return nil, false
		case update, ok := <-watcher.Updates():
			if !ok {
				return nil, false
			}

			if update == nil {
				continue
			}

			return update, true
		}
	}
}

func (n *NatsStore) send(ctx context.Context, ch chan<- []byte, value []byte) bool {
	select {
	case ch <- value:
		return true
	case <-ctx.Done():
		return false
	case <-n.ctx.Done():
		return false
	}
}

func (n *NatsStore) stopWatcher(key string, watcher jetstream.KeyWatcher) {
	if err := watcher.Stop(); err != nil {
		n.logger.Warn().Err(err).Str("key", key).Msg("Failed to stop watcher")
	}
}

func (n *NatsStore) Close() error {
	n.nc.Close()

	return nil
}

var _ Store = (*NatsStore)(nil)
