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

// Package reaper deletes resolved commands once they age past the retention
// window. Pending commands are never touched.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
)

const (
	defaultInterval  = 5 * time.Minute
	defaultRetention = time.Hour
)

// CommandSource is the slice of the command channel the reaper needs.
// Satisfied by command.Channel.
type CommandSource interface {
	List(ctx context.Context, userID, displayID string) (map[string]models.PlaybackCommand, error)
	Delete(ctx context.Context, userID, displayID, commandID string) error
}

type displayKey struct {
	userID    string
	displayID string
}

// Reaper periodically sweeps the command queues of tracked displays.
// Displays are tracked while a dashboard session subscribes to them.
type Reaper struct {
	commands  CommandSource
	interval  time.Duration
	retention time.Duration
	clock     clock.Clock
	logger    logger.Logger

	mu       sync.Mutex
	displays map[displayKey]int
	running  map[displayKey]bool

	cancel context.CancelFunc
	done   chan struct{}
	sweeps sync.WaitGroup
}

// New creates a Reaper. Zero durations select the defaults (5m interval,
// 1h retention).
func New(commands CommandSource, interval, retention time.Duration, clk clock.Clock, log logger.Logger) *Reaper {
	if interval <= 0 {
		interval = defaultInterval
	}

	if retention <= 0 {
		retention = defaultRetention
	}

	if clk == nil {
		clk = clock.New()
	}

	return &Reaper{
		commands:  commands,
		interval:  interval,
		retention: retention,
		clock:     clk,
		logger:    log.WithComponent("reaper"),
		displays:  make(map[displayKey]int),
		running:   make(map[displayKey]bool),
	}
}

// Track adds a display to the sweep set. Calls are reference-counted so a
// display stays tracked while any session watches it.
func (r *Reaper) Track(userID, displayID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.displays[displayKey{userID, displayID}]++
}

// Untrack releases a Track.
func (r *Reaper) Untrack(userID, displayID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := displayKey{userID, displayID}

	if r.displays[key] <= 1 {
		delete(r.displays, key)

		return
	}

	r.displays[key]--
}

// Start implements lifecycle.Service.
func (r *Reaper) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx)

	return nil
}

// Stop implements lifecycle.Service. It waits for in-flight sweeps.
func (r *Reaper) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}

	r.cancel()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)
	defer r.sweeps.Wait()

	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.sweepTracked(ctx)
		}
	}
}

// sweepTracked launches one sweep per tracked display. A display whose
// previous sweep is still running is skipped this tick.
func (r *Reaper) sweepTracked(ctx context.Context) {
	r.mu.Lock()

	keys := make([]displayKey, 0, len(r.displays))

	for key := range r.displays {
		if r.running[key] {
			continue
		}

		r.running[key] = true

		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, key := range keys {
		r.sweeps.Add(1)

		go func(key displayKey) {
			defer r.sweeps.Done()
			defer func() {
				r.mu.Lock()
				delete(r.running, key)
				r.mu.Unlock()
			}()

			if _, err := r.Sweep(ctx, key.userID, key.displayID); err != nil {
				if ctx.Err() != nil {
					return
				}

				// Retried on the next tick.
				r.logger.Warn().Err(err).
					Str("display_id", key.displayID).
					Msg("Command sweep failed")
			}
		}(key)
	}
}

// Sweep deletes the display's resolved commands older than the retention
// window and returns how many were removed.
func (r *Reaper) Sweep(ctx context.Context, userID, displayID string) (int, error) {
	commands, err := r.commands.List(ctx, userID, displayID)
	if err != nil {
		return 0, err
	}

	cutoff := r.clock.Now().Add(-r.retention).UnixMilli()
	reaped := 0

	for commandID, cmd := range commands {
		if !cmd.Resolved() || cmd.Timestamp > cutoff {
			continue
		}

		if err := r.commands.Delete(ctx, userID, displayID, commandID); err != nil {
			return reaped, err
		}

		reaped++

		r.logger.Debug().
			Str("display_id", displayID).
			Str("command_id", commandID).
			Str("status", string(cmd.Status)).
			Msg("Reaped resolved command")
	}

	return reaped, nil
}
