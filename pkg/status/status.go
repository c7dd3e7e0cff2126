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

// Package status implements the per-display live-state channel. Devices
// publish, dashboards subscribe; the record is fully device-owned.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
	"github.com/signacast/signacast/pkg/paths"
)

const (
	defaultVolume = 80

	// DefaultStaleThreshold is how long a record may go without a heartbeat
	// before consumers present the display as offline.
	DefaultStaleThreshold = 90 * time.Second
)

// Channel reads and writes PlaybackStatus records in the realtime store.
type Channel struct {
	store  kv.Store
	clock  clock.Clock
	logger logger.Logger
}

// NewChannel creates a status Channel on top of the given store.
func NewChannel(store kv.Store, clk clock.Clock, log logger.Logger) *Channel {
	return &Channel{
		store:  store,
		clock:  clk,
		logger: log.WithComponent("status"),
	}
}

// Initialize writes the full default record for a display that just came
// online after pairing. Any previous record is overwritten.
func (c *Channel) Initialize(ctx context.Context, userID, displayID, displayName string) error {
	record := models.PlaybackStatus{
		DisplayID:     displayID,
		DisplayName:   displayName,
		Status:        models.StateOnline,
		LastHeartbeat: c.clock.Now().UnixMilli(),
		Volume:        defaultVolume,
	}

	if err := c.put(ctx, userID, displayID, &record); err != nil {
		return err
	}

	c.logger.Info().Str("display_id", displayID).Msg("Status record initialized")

	return nil
}

// Publish merges a patch into the display's current record and stamps the
// heartbeat. The merge is read-modify-write at record granularity: two
// concurrent publishers race whole records, never mixed fields. A patch
// against a missing record starts from defaults.
func (c *Channel) Publish(ctx context.Context, userID, displayID string, patch models.StatusPatch) error {
	record, err := c.Get(ctx, userID, displayID)
	if err != nil {
		return err
	}

	if record == nil {
		record = &models.PlaybackStatus{
			DisplayID: displayID,
			Status:    models.StateOnline,
			Volume:    defaultVolume,
		}
	}

	applyPatch(record, &patch)
	record.LastHeartbeat = c.clock.Now().UnixMilli()

	return c.put(ctx, userID, displayID, record)
}

// Get returns the display's current record, or nil when none exists.
func (c *Channel) Get(ctx context.Context, userID, displayID string) (*models.PlaybackStatus, error) {
	data, found, err := c.store.Get(ctx, paths.DisplayStatus(userID, displayID))
	if err != nil {
		return nil, fmt.Errorf("failed to read status record: %w", err)
	}

	if !found {
		return nil, nil
	}

	var record models.PlaybackStatus
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status record: %w", err)
	}

	return &record, nil
}

// Delete removes the display's status record, if any.
func (c *Channel) Delete(ctx context.Context, userID, displayID string) error {
	if err := c.store.Delete(ctx, paths.DisplayStatus(userID, displayID)); err != nil {
		return fmt.Errorf("failed to delete status record: %w", err)
	}

	return nil
}

// SubscribeAll watches every status record under a user and pushes the full
// displayID-keyed map on any change, including one initial snapshot. The
// stop function releases the watch.
func (c *Channel) SubscribeAll(ctx context.Context, userID string) (<-chan map[string]models.PlaybackStatus, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	entries, err := c.store.WatchPattern(ctx, paths.AllDisplayStatuses(userID))
	if err != nil {
		cancel()

		return nil, nil, fmt.Errorf("failed to watch status records: %w", err)
	}

	out := make(chan map[string]models.PlaybackStatus, 1)

	go func() {
		defer close(out)
		defer cancel()

		statuses := make(map[string]models.PlaybackStatus)

		push := func() bool {
			snapshot := make(map[string]models.PlaybackStatus, len(statuses))
			for id, record := range statuses {
				snapshot[id] = record
			}

			select {
			case out <- snapshot:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !push() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}

				displayID, ok := paths.DisplayIDFromStatusKey(entry.Key)
				if !ok {
					continue
				}

				if entry.Deleted {
					delete(statuses, displayID)
				} else {
					var record models.PlaybackStatus
					if err := json.Unmarshal(entry.Value, &record); err != nil {
						c.logger.Warn().Err(err).Str("key", entry.Key).Msg("Skipping unreadable status record")

						continue
					}

					statuses[displayID] = record
				}

				if !push() {
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// MarkStale returns a copy of the record presented as offline when its
// heartbeat is older than threshold at the given instant. The stored record
// is never rewritten; staleness is a read-side judgment.
func MarkStale(record models.PlaybackStatus, now time.Time, threshold time.Duration) models.PlaybackStatus {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}

	if now.UnixMilli()-record.LastHeartbeat > threshold.Milliseconds() {
		record.Status = models.StateOffline
		record.CurrentContent = nil
	}

	return record
}

func (c *Channel) put(ctx context.Context, userID, displayID string, record *models.PlaybackStatus) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status record: %w", err)
	}

	if err := c.store.Put(ctx, paths.DisplayStatus(userID, displayID), data); err != nil {
		return fmt.Errorf("failed to write status record: %w", err)
	}

	return nil
}

func applyPatch(record *models.PlaybackStatus, patch *models.StatusPatch) {
	if patch.DisplayName != nil {
		record.DisplayName = *patch.DisplayName
	}

	if patch.Status != nil {
		record.Status = *patch.Status
	}

	if patch.CurrentContent != nil {
		record.CurrentContent = patch.CurrentContent
	} else if patch.ClearContent {
		record.CurrentContent = nil
	}

	if patch.Schedule != nil {
		record.Schedule = patch.Schedule
	} else if patch.ClearSchedule {
		record.Schedule = nil
	}

	if patch.Volume != nil {
		record.Volume = *patch.Volume
	}

	if patch.Brightness != nil {
		record.Brightness = patch.Brightness
	}

	if patch.Uptime != nil {
		record.Uptime = *patch.Uptime
	}

	if patch.ErrorMessage != nil {
		record.ErrorMessage = *patch.ErrorMessage
	}
}
