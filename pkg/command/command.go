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

// Package command implements the fire-and-forget command queue between the
// dashboard and a display's player device.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
	"github.com/signacast/signacast/pkg/paths"
)

var (
	// ErrInvalidType is returned for a command type outside the enumerated set.
	ErrInvalidType = errors.New("invalid command type")

	// ErrInvalidPayload is returned when the payload shape does not match the
	// command type, before anything is written.
	ErrInvalidPayload = errors.New("invalid command payload")

	// ErrInvalidResolution is returned when a command is resolved to anything
	// other than executed or failed.
	ErrInvalidResolution = errors.New("invalid command resolution")
)

// Channel writes, watches and resolves playback commands in the realtime
// store. Dashboards send, devices resolve, the reaper deletes.
type Channel struct {
	store  kv.Store
	clock  clock.Clock
	logger logger.Logger
}

// NewChannel creates a command Channel on top of the given store.
func NewChannel(store kv.Store, clk clock.Clock, log logger.Logger) *Channel {
	return &Channel{
		store:  store,
		clock:  clk,
		logger: log.WithComponent("command"),
	}
}

// Send validates and enqueues a command for a display. It stamps the
// creation timestamp and pending status and returns the generated command
// ID immediately; it never waits for the device.
func (c *Channel) Send(ctx context.Context, userID, displayID string, cmdType models.CommandType, payload *models.CommandPayload) (string, error) {
	if err := validate(cmdType, payload); err != nil {
		return "", err
	}

	cmd := models.PlaybackCommand{
		CommandID: uuid.New().String(),
		DisplayID: displayID,
		Type:      cmdType,
		Payload:   payload,
		Timestamp: c.clock.Now().UnixMilli(),
		Status:    models.CommandPending,
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to marshal command: %w", err)
	}

	key := paths.Command(userID, displayID, cmd.CommandID)
	if err := c.store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to write command: %w", err)
	}

	c.logger.Debug().
		Str("display_id", displayID).
		Str("command_id", cmd.CommandID).
		Str("type", string(cmdType)).
		Msg("Command sent")

	return cmd.CommandID, nil
}

// Resolve records the device-side outcome of a command. Only executed and
// failed are accepted. A missing command (already reaped) and a command
// that already reached a terminal status are benign no-ops; the status of a
// command never moves out of executed or failed.
func (c *Channel) Resolve(ctx context.Context, userID, displayID, commandID string, status models.CommandStatus, result string) error {
	if status != models.CommandExecuted && status != models.CommandFailed {
		return fmt.Errorf("%w: %q", ErrInvalidResolution, status)
	}

	key := paths.Command(userID, displayID, commandID)

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read command: %w", err)
	}

	if !found {
		c.logger.Debug().
			Str("display_id", displayID).
			Str("command_id", commandID).
			Msg("Resolve for missing command, ignoring")

		return nil
	}

	var cmd models.PlaybackCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	if cmd.Resolved() {
		c.logger.Debug().
			Str("command_id", commandID).
			Str("status", string(cmd.Status)).
			Msg("Resolve for already-resolved command, ignoring")

		return nil
	}

	cmd.Status = status
	cmd.Result = result

	data, err = json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	if err := c.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write command resolution: %w", err)
	}

	return nil
}

// List returns the current command map for a display, keyed by command ID.
func (c *Channel) List(ctx context.Context, userID, displayID string) (map[string]models.PlaybackCommand, error) {
	keys, err := c.store.ListKeys(ctx, paths.CommandPrefix(userID, displayID))
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}

	commands := make(map[string]models.PlaybackCommand, len(keys))

	for _, key := range keys {
		data, found, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read command: %w", err)
		}

		if !found {
			continue
		}

		var cmd models.PlaybackCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable command record")

			continue
		}

		commands[cmd.CommandID] = cmd
	}

	return commands, nil
}

// Delete removes a command record. Deleting an absent command is not an
// error.
func (c *Channel) Delete(ctx context.Context, userID, displayID, commandID string) error {
	if err := c.store.Delete(ctx, paths.Command(userID, displayID, commandID)); err != nil {
		return fmt.Errorf("failed to delete command: %w", err)
	}

	return nil
}

// Subscribe watches a display's command list and pushes the full current
// map on every change, including one initial snapshot. The caller diffs
// successive maps. The returned stop function releases the watch; the
// channel closes after stop or context cancellation.
func (c *Channel) Subscribe(ctx context.Context, userID, displayID string) (<-chan map[string]models.PlaybackCommand, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	entries, err := c.store.WatchPattern(ctx, paths.AllCommands(userID, displayID))
	if err != nil {
		cancel()

		return nil, nil, fmt.Errorf("failed to watch commands: %w", err)
	}

	out := make(chan map[string]models.PlaybackCommand, 1)

	go func() {
		defer close(out)
		defer cancel()

		if snapshot, err := c.List(ctx, userID, displayID); err == nil {
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-entries:
				if !ok {
					return
				}

				snapshot, err := c.List(ctx, userID, displayID)
				if err != nil {
					if ctx.Err() != nil {
						return
					}

					c.logger.Warn().Err(err).Str("display_id", displayID).Msg("Failed to snapshot command list")

					continue
				}

				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

func validate(cmdType models.CommandType, payload *models.CommandPayload) error {
	switch cmdType {
	case models.CommandPlay:
		if payload == nil || (payload.ContentID == "" && payload.ScheduleID == "") {
			return fmt.Errorf("%w: play requires a content or schedule ID", ErrInvalidPayload)
		}

		if payload.Volume != nil || payload.Brightness != nil {
			return fmt.Errorf("%w: unexpected numeric field on play", ErrInvalidPayload)
		}
	case models.CommandVolume:
		if payload == nil || payload.Volume == nil {
			return fmt.Errorf("%w: volume requires a numeric payload", ErrInvalidPayload)
		}

		if *payload.Volume < 0 || *payload.Volume > 100 {
			return fmt.Errorf("%w: volume %d out of range", ErrInvalidPayload, *payload.Volume)
		}
	case models.CommandBrightness:
		if payload == nil || payload.Brightness == nil {
			return fmt.Errorf("%w: brightness requires a numeric payload", ErrInvalidPayload)
		}

		if *payload.Brightness < 0 || *payload.Brightness > 100 {
			return fmt.Errorf("%w: brightness %d out of range", ErrInvalidPayload, *payload.Brightness)
		}
	case models.CommandPause, models.CommandStop, models.CommandSkip, models.CommandRestart:
		if payload != nil && *payload != (models.CommandPayload{}) {
			return fmt.Errorf("%w: %s takes no payload", ErrInvalidPayload, cmdType)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, cmdType)
	}

	return nil
}
