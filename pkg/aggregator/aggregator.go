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

// Package aggregator joins durable display metadata with live status
// records into the merged view the dashboard consumes.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
	"github.com/signacast/signacast/pkg/status"
)

// MetadataSource delivers full metadata snapshots for a user's displays.
// Satisfied by metadata.Store.
type MetadataSource interface {
	Subscribe(ctx context.Context, userID string) (<-chan []models.Display, func(), error)
}

// StatusSource delivers full live-status snapshots keyed by display ID.
// Satisfied by status.Channel.
type StatusSource interface {
	SubscribeAll(ctx context.Context, userID string) (<-chan map[string]models.PlaybackStatus, func(), error)
}

// Aggregator subscribes to both sources per user and emits merged
// snapshots. Nothing is emitted until the metadata side has loaded at least
// once; a live record for a display the metadata does not know is dropped.
type Aggregator struct {
	meta      MetadataSource
	statuses  StatusSource
	clock     clock.Clock
	staleness time.Duration
	logger    logger.Logger
}

// New creates an Aggregator. A non-positive staleness selects the default
// heartbeat threshold.
func New(meta MetadataSource, statuses StatusSource, clk clock.Clock, staleness time.Duration, log logger.Logger) *Aggregator {
	if staleness <= 0 {
		staleness = status.DefaultStaleThreshold
	}

	return &Aggregator{
		meta:      meta,
		statuses:  statuses,
		clock:     clk,
		staleness: staleness,
		logger:    log.WithComponent("aggregator"),
	}
}

// Subscribe starts both underlying subscriptions and emits a merged
// snapshot whenever either side changes, once metadata has arrived. The
// stop function tears down both subscriptions together.
func (a *Aggregator) Subscribe(ctx context.Context, userID string) (<-chan []models.MergedDisplay, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	metaCh, metaStop, err := a.meta.Subscribe(ctx, userID)
	if err != nil {
		cancel()

		return nil, nil, fmt.Errorf("failed to subscribe to display metadata: %w", err)
	}

	statusCh, statusStop, err := a.statuses.SubscribeAll(ctx, userID)
	if err != nil {
		metaStop()
		cancel()

		return nil, nil, fmt.Errorf("failed to subscribe to live statuses: %w", err)
	}

	out := make(chan []models.MergedDisplay, 1)

	stop := func() {
		cancel()
		metaStop()
		statusStop()
	}

	go func() {
		defer close(out)

		var (
			metadataLoaded bool
			displays       []models.Display
			statuses       map[string]models.PlaybackStatus
		)

		push := func() bool {
			if !metadataLoaded {
				return true
			}

			merged := a.mergeAll(displays, statuses)

			select {
			case out <- merged:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case snapshot, ok := <-metaCh:
				if !ok {
					return
				}

				displays = snapshot
				metadataLoaded = true

				if !push() {
					return
				}
			case snapshot, ok := <-statusCh:
				if !ok {
					return
				}

				statuses = snapshot

				if !push() {
					return
				}
			}
		}
	}()

	return out, stop, nil
}

func (a *Aggregator) mergeAll(displays []models.Display, statuses map[string]models.PlaybackStatus) []models.MergedDisplay {
	now := a.clock.Now()
	merged := make([]models.MergedDisplay, 0, len(displays))

	for _, display := range displays {
		live, ok := statuses[display.ID]
		if !ok {
			merged = append(merged, models.MergedDisplay{Display: display})

			continue
		}

		live = status.MarkStale(live, now, a.staleness)
		merged = append(merged, Merge(display, &live))
	}

	return merged
}

// Merge overlays one display's live status on its durable metadata. With a
// nil live record the durable fields pass through unchanged.
func Merge(display models.Display, live *models.PlaybackStatus) models.MergedDisplay {
	view := models.MergedDisplay{Display: display}

	if live == nil {
		return view
	}

	view.Status = live.Status
	view.LastUpdate = time.UnixMilli(live.LastHeartbeat)
	view.Uptime = live.Uptime

	volume := live.Volume
	view.Volume = &volume
	view.CurrentContent = live.CurrentContent
	view.Schedule = live.Schedule

	return view
}
