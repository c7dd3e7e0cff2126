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

package metadata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/models"
)

const subscriberBuffer = 16

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu          sync.Mutex
	clock       clock.Clock
	displays    map[string]map[string]models.Display // userID -> displayID -> display
	subscribers map[string]map[*memorySubscriber]struct{}
}

type memorySubscriber struct {
	ch   chan []models.Display
	done chan struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}

	return &MemoryStore{
		clock:       clk,
		displays:    make(map[string]map[string]models.Display),
		subscribers: make(map[string]map[*memorySubscriber]struct{}),
	}
}

func (m *MemoryStore) Subscribe(ctx context.Context, userID string) (<-chan []models.Display, func(), error) {
	m.mu.Lock()

	sub := &memorySubscriber{
		ch:   make(chan []models.Display, subscriberBuffer),
		done: make(chan struct{}),
	}

	if m.subscribers[userID] == nil {
		m.subscribers[userID] = make(map[*memorySubscriber]struct{})
	}

	m.subscribers[userID][sub] = struct{}{}
	sub.ch <- m.listLocked(userID)
	m.mu.Unlock()

	out := make(chan []models.Display, 1)

	var once sync.Once

	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers[userID], sub)
			m.mu.Unlock()
			close(sub.done)
		})
	}

	go func() {
		defer close(out)

		for {
			select {
			case displays := <-sub.ch:
				select {
				case out <- displays:
				case <-ctx.Done():
					stop()

					return
				case <-sub.done:
					return
				}
			case <-ctx.Done():
				stop()

				return
			case <-sub.done:
				return
			}
		}
	}()

	return out, stop, nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]models.Display, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listLocked(userID), nil
}

func (m *MemoryStore) Get(_ context.Context, userID, displayID string) (*models.Display, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	display, ok := m.displays[userID][displayID]
	if !ok {
		return nil, false, nil
	}

	return &display, true, nil
}

func (m *MemoryStore) Create(_ context.Context, display models.Display) (models.Display, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if display.ID == "" {
		display.ID = uuid.NewString()
	}

	now := m.clock.Now()
	display.CreatedAt = now
	display.UpdatedAt = now

	if m.displays[display.UserID] == nil {
		m.displays[display.UserID] = make(map[string]models.Display)
	}

	m.displays[display.UserID][display.ID] = display
	m.notifyLocked(display.UserID)

	return display, nil
}

func (m *MemoryStore) Update(_ context.Context, display models.Display) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.displays[display.UserID][display.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDisplayNotFound, display.ID)
	}

	display.CreatedAt = existing.CreatedAt
	display.UpdatedAt = m.clock.Now()
	m.displays[display.UserID][display.ID] = display
	m.notifyLocked(display.UserID)

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID, displayID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.displays[userID][displayID]; !ok {
		return fmt.Errorf("%w: %s", ErrDisplayNotFound, displayID)
	}

	delete(m.displays[userID], displayID)
	m.notifyLocked(userID)

	return nil
}

func (m *MemoryStore) listLocked(userID string) []models.Display {
	displays := make([]models.Display, 0, len(m.displays[userID]))

	for _, display := range m.displays[userID] {
		displays = append(displays, display)
	}

	sort.Slice(displays, func(i, j int) bool {
		return displays[i].ID < displays[j].ID
	})

	return displays
}

func (m *MemoryStore) notifyLocked(userID string) {
	displays := m.listLocked(userID)

	for sub := range m.subscribers[userID] {
		select {
		case sub.ch <- displays:
		default:
			// Slow subscriber; it will catch up on the next change.
		}
	}
}

var _ Store = (*MemoryStore)(nil)
