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

// Package agent is the device-side process: it registers the device, waits
// to be paired, heartbeats its status and executes incoming commands.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	gopsnet "github.com/shirou/gopsutil/v3/net"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/command"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
	"github.com/signacast/signacast/pkg/pairing"
	"github.com/signacast/signacast/pkg/registry"
	"github.com/signacast/signacast/pkg/status"
)

const (
	defaultPollInterval      = 5 * time.Second
	defaultHeartbeatInterval = 10 * time.Second
)

// Config tunes the agent's loop timing. Zero values select the defaults.
type Config struct {
	PollInterval      time.Duration `json:"poll_interval"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
}

// Agent runs the device lifecycle: register, await pairing, initialize the
// status record, then heartbeat and execute commands until stopped.
type Agent struct {
	creds    Credentials
	registry *registry.Registry
	pairing  *pairing.Pairing
	statuses *status.Channel
	commands *command.Channel
	player   Player
	clock    clock.Clock
	logger   logger.Logger
	config   Config

	startedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Agent for the given device identity.
func New(creds Credentials, reg *registry.Registry, pair *pairing.Pairing, statuses *status.Channel,
	commands *command.Channel, player Player, config Config, clk clock.Clock, log logger.Logger) *Agent {
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}

	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultHeartbeatInterval
	}

	if clk == nil {
		clk = clock.New()
	}

	return &Agent{
		creds:    creds,
		registry: reg,
		pairing:  pair,
		statuses: statuses,
		commands: commands,
		player:   player,
		clock:    clk,
		logger:   log.WithComponent("agent").WithFields(map[string]interface{}{"device_id": creds.DeviceID}),
		config:   config,
	}
}

// Start implements lifecycle.Service. Registration happens synchronously so
// a bad identity fails fast; the rest of the lifecycle runs in the
// background.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.ensureRegistered(ctx); err != nil {
		return err
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	a.startedAt = a.clock.Now()

	go a.run(ctx)

	return nil
}

// Stop implements lifecycle.Service.
func (a *Agent) Stop(ctx context.Context) error {
	if a.cancel == nil {
		return nil
	}

	a.cancel()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) ensureRegistered(ctx context.Context) error {
	meta := collectHostMetadata()

	if err := a.registry.Register(ctx, a.creds.DeviceID, a.creds.DeviceKey, meta); err != nil {
		return fmt.Errorf("device registration failed: %w", err)
	}

	a.logger.Info().Str("display_name", meta.DisplayName).Msg("Device registered")

	return nil
}

func (a *Agent) run(ctx context.Context) {
	defer close(a.done)

	for {
		link := a.waitForLink(ctx)
		if link == nil {
			return
		}

		a.logger.Info().
			Str("user_id", link.UserID).
			Str("display_id", link.DisplayID).
			Msg("Device paired, starting session")

		if err := a.statuses.Initialize(ctx, link.UserID, link.DisplayID, collectHostMetadata().DisplayName); err != nil {
			a.logger.Error().Err(err).Msg("Failed to initialize status record")

			return
		}

		// serve returns when the link is severed; loop back to waiting so an
		// unlinked device can be re-paired without a restart.
		if !a.serve(ctx, link) {
			return
		}
	}
}

// waitForLink polls the device link until pairing completes. Returns nil on
// shutdown.
func (a *Agent) waitForLink(ctx context.Context) *models.DeviceLink {
	ticker := a.clock.Ticker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		link, err := a.pairing.GetDeviceLink(ctx, a.creds.DeviceID)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Failed to read device link")
		} else if link != nil {
			return link
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// serve heartbeats and executes commands for one pairing session. It
// returns true when the link disappeared (re-enter pairing) and false on
// shutdown or a fatal subscription error.
func (a *Agent) serve(ctx context.Context, link *models.DeviceLink) bool {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, stopSub, err := a.commands.Subscribe(sessionCtx, link.UserID, link.DisplayID)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to subscribe to commands")

		return false
	}
	defer stopSub()

	heartbeat := a.clock.Ticker(a.config.HeartbeatInterval)
	defer heartbeat.Stop()

	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.Chan():
			stillLinked, err := a.beat(ctx, link)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Heartbeat failed")

				continue
			}

			if !stillLinked {
				a.logger.Info().Msg("Device unlinked, leaving session")

				return true
			}
		case snapshot, ok := <-updates:
			if !ok {
				return ctx.Err() == nil
			}

			a.executePending(ctx, link, snapshot, seen)
		}
	}
}

// beat publishes the player's current state and refreshes last-seen. The
// bool reports whether the device link is still in place.
func (a *Agent) beat(ctx context.Context, link *models.DeviceLink) (bool, error) {
	current, err := a.pairing.GetDeviceLink(ctx, a.creds.DeviceID)
	if err != nil {
		return true, err
	}

	if current == nil || current.DisplayID != link.DisplayID {
		return false, nil
	}

	patch := a.player.Snapshot()
	uptime := a.clock.Now().Sub(a.startedAt).Round(time.Second).String()
	patch.Uptime = &uptime

	if err := a.statuses.Publish(ctx, link.UserID, link.DisplayID, patch); err != nil {
		return true, err
	}

	a.registry.TouchLastSeen(ctx, a.creds.DeviceID)

	return true, nil
}

// executePending runs each pending command exactly once per agent process.
// A command resolved here may still be re-delivered in a later snapshot;
// the seen set suppresses the rerun and the channel's monotonicity makes a
// duplicate resolve harmless.
func (a *Agent) executePending(ctx context.Context, link *models.DeviceLink, snapshot map[string]models.PlaybackCommand, seen map[string]struct{}) {
	for id := range seen {
		if _, ok := snapshot[id]; !ok {
			delete(seen, id)
		}
	}

	for id, cmd := range snapshot {
		if cmd.Status != models.CommandPending {
			seen[id] = struct{}{}

			continue
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}

		result, err := a.player.Execute(ctx, cmd)

		outcome := models.CommandExecuted
		if err != nil {
			outcome = models.CommandFailed
			result = err.Error()

			a.logger.Warn().Err(err).
				Str("command_id", id).
				Str("type", string(cmd.Type)).
				Msg("Command execution failed")
		} else {
			a.logger.Info().
				Str("command_id", id).
				Str("type", string(cmd.Type)).
				Msg("Command executed")
		}

		if err := a.commands.Resolve(ctx, link.UserID, link.DisplayID, id, outcome, result); err != nil {
			a.logger.Warn().Err(err).Str("command_id", id).Msg("Failed to resolve command")
		}
	}
}

// collectHostMetadata gathers the network and OS details recorded at
// registration time. Failures degrade to empty fields; registration must
// not depend on the host package working everywhere.
func collectHostMetadata() models.DeviceMetadata {
	meta := models.DeviceMetadata{DisplayName: "Signacast Player"}

	if info, err := host.Info(); err == nil {
		meta.DisplayName = info.Hostname
		meta.OSVersion = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
	}

	if ifaces, err := gopsnet.Interfaces(); err == nil {
		for _, iface := range ifaces {
			if iface.HardwareAddr == "" || len(iface.Addrs) == 0 {
				continue
			}

			meta.MACAddress = iface.HardwareAddr

			for _, addr := range iface.Addrs {
				if addr.Addr != "127.0.0.1/8" && addr.Addr != "::1/128" {
					meta.IPAddress = addr.Addr

					break
				}
			}

			if meta.IPAddress != "" {
				break
			}
		}
	}

	return meta
}
