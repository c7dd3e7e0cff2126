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

package pairing

import (
	"context"
	"sync"
	"time"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/logger"
)

const (
	defaultOrphanInterval = 10 * time.Minute
	defaultOrphanMaxAge   = time.Hour
)

// OrphanSweeper periodically garbage-collects abandoned placeholder
// displays for the users it tracks. Users are tracked while they have an
// active dashboard session; a user who closed their tab mid-pairing is
// swept on their next visit.
type OrphanSweeper struct {
	saga     *Saga
	interval time.Duration
	maxAge   time.Duration
	clock    clock.Clock
	logger   logger.Logger

	mu    sync.Mutex
	users map[string]int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewOrphanSweeper creates an OrphanSweeper. Zero durations select the
// defaults (10m interval, 1h max age).
func NewOrphanSweeper(saga *Saga, interval, maxAge time.Duration, clk clock.Clock, log logger.Logger) *OrphanSweeper {
	if interval <= 0 {
		interval = defaultOrphanInterval
	}

	if maxAge <= 0 {
		maxAge = defaultOrphanMaxAge
	}

	if clk == nil {
		clk = clock.New()
	}

	return &OrphanSweeper{
		saga:     saga,
		interval: interval,
		maxAge:   maxAge,
		clock:    clk,
		logger:   log.WithComponent("orphan_sweeper"),
		users:    make(map[string]int),
	}
}

// Track registers a user for sweeping. Calls are reference-counted so
// multiple dashboard sessions for one user untrack cleanly.
func (o *OrphanSweeper) Track(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.users[userID]++
}

// Untrack releases a Track.
func (o *OrphanSweeper) Untrack(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.users[userID] <= 1 {
		delete(o.users, userID)

		return
	}

	o.users[userID]--
}

// Start implements lifecycle.Service.
func (o *OrphanSweeper) Start(ctx context.Context) error {
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})

	go o.run(ctx)

	return nil
}

// Stop implements lifecycle.Service.
func (o *OrphanSweeper) Stop(ctx context.Context) error {
	if o.cancel == nil {
		return nil
	}

	o.cancel()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *OrphanSweeper) run(ctx context.Context) {
	defer close(o.done)

	ticker := o.clock.Ticker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			o.sweepAll(ctx)
		}
	}
}

func (o *OrphanSweeper) sweepAll(ctx context.Context) {
	o.mu.Lock()
	users := make([]string, 0, len(o.users))

	for userID := range o.users {
		users = append(users, userID)
	}
	o.mu.Unlock()

	for _, userID := range users {
		reaped, err := o.saga.ReapOrphans(ctx, userID, o.maxAge)
		if err != nil {
			o.logger.Warn().Err(err).Str("user_id", userID).Msg("Orphan sweep failed")

			continue
		}

		if reaped > 0 {
			o.logger.Info().Str("user_id", userID).Int("reaped", reaped).Msg("Orphan sweep complete")
		}
	}
}
