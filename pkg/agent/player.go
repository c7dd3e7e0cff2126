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

package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/signacast/signacast/pkg/models"
)

// Player is the playback surface the agent drives. Execute applies one
// command and returns a human-readable result for the command record.
type Player interface {
	Execute(ctx context.Context, cmd models.PlaybackCommand) (string, error)
	Snapshot() models.StatusPatch
}

// SimPlayer is an in-memory Player used by the simulator binary and tests.
// It tracks the state a real media player would expose.
type SimPlayer struct {
	mu      sync.Mutex
	state   models.PlaybackState
	volume  int
	content *models.CurrentContent
}

// NewSimPlayer creates a SimPlayer idling online at the default volume.
func NewSimPlayer() *SimPlayer {
	return &SimPlayer{
		state:  models.StateOnline,
		volume: 80,
	}
}

// Execute applies a command to the simulated player state.
func (p *SimPlayer) Execute(_ context.Context, cmd models.PlaybackCommand) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch cmd.Type {
	case models.CommandPlay:
		p.state = models.StatePlaying

		if cmd.Payload != nil && cmd.Payload.ContentID != "" {
			p.content = &models.CurrentContent{
				ID:        cmd.Payload.ContentID,
				StartedAt: cmd.Timestamp,
			}

			return fmt.Sprintf("playing content %s", cmd.Payload.ContentID), nil
		}

		return "playing", nil
	case models.CommandPause:
		p.state = models.StatePaused

		return "paused", nil
	case models.CommandStop:
		p.state = models.StateOnline
		p.content = nil

		return "stopped", nil
	case models.CommandSkip:
		if p.content == nil {
			return "", fmt.Errorf("nothing playing to skip")
		}

		return "skipped", nil
	case models.CommandVolume:
		p.volume = *cmd.Payload.Volume

		return fmt.Sprintf("volume set to %d", p.volume), nil
	case models.CommandBrightness:
		return fmt.Sprintf("brightness set to %d", *cmd.Payload.Brightness), nil
	case models.CommandRestart:
		p.state = models.StateOnline
		p.content = nil

		return "restarting player", nil
	default:
		return "", fmt.Errorf("unsupported command type %q", cmd.Type)
	}
}

// Snapshot returns the patch describing the player's current state.
func (p *SimPlayer) Snapshot() models.StatusPatch {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.state
	volume := p.volume

	patch := models.StatusPatch{
		Status: &state,
		Volume: &volume,
	}

	if p.content != nil {
		content := *p.content
		patch.CurrentContent = &content
	} else {
		patch.ClearContent = true
	}

	return patch
}

var _ Player = (*SimPlayer)(nil)
