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

// Package pairing binds a physical device to a user-owned display.
//
// The store offers no transaction across the DeviceLink record and the
// registry's link fields, so Pair writes the link first and the registry
// second. On a crash in between, readers must treat the link record as
// authoritative: GetDeviceLink never consults the registry.
package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
	"github.com/signacast/signacast/pkg/paths"
	"github.com/signacast/signacast/pkg/registry"
)

var (
	// ErrInvalidCredentials is returned when the device ID or key does not
	// verify. Never retried automatically.
	ErrInvalidCredentials = errors.New("invalid device credentials")

	// ErrAlreadyLinked is returned when the device is linked to a different
	// user. Surfaced distinctly so the dashboard can explain the device is
	// in use elsewhere.
	ErrAlreadyLinked = errors.New("device already linked to another user")
)

// Pairing implements the device-to-display pairing protocol.
type Pairing struct {
	registry *registry.Registry
	store    kv.Store
	clock    clock.Clock
	logger   logger.Logger
}

// New creates a Pairing on top of the device registry and the realtime
// store.
func New(reg *registry.Registry, store kv.Store, clk clock.Clock, log logger.Logger) *Pairing {
	if clk == nil {
		clk = clock.New()
	}

	return &Pairing{
		registry: reg,
		store:    store,
		clock:    clk,
		logger:   log.WithComponent("pairing"),
	}
}

// Pair binds a device to a user's display. Re-pairing by the same user is a
// no-op success so the dashboard can retry safely; pairing a device owned by
// another user fails with ErrAlreadyLinked.
func (p *Pairing) Pair(ctx context.Context, deviceID, deviceKey, userID, displayID string) error {
	valid, err := p.registry.VerifyCredentials(ctx, deviceID, deviceKey)
	if err != nil {
		return fmt.Errorf("failed to verify device credentials: %w", err)
	}

	if !valid {
		return ErrInvalidCredentials
	}

	record, found, err := p.registry.Get(ctx, deviceID)
	if err != nil {
		return err
	}

	if !found {
		return ErrInvalidCredentials
	}

	if record.LinkedToUser != "" && record.LinkedToUser != userID {
		return ErrAlreadyLinked
	}

	// Link record first: it is the source of truth, and a crash after this
	// write leaves the device discoverable by GetDeviceLink even though the
	// registry still says unlinked.
	link := models.DeviceLink{
		DeviceID:  deviceID,
		UserID:    userID,
		DisplayID: displayID,
		LinkedAt:  p.clock.Now(),
		Status:    models.LinkStatusActive,
	}

	value, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal device link: %w", err)
	}

	if err := p.store.Put(ctx, paths.DeviceLink(deviceID), value); err != nil {
		return fmt.Errorf("failed to write device link: %w", err)
	}

	if err := p.registry.SetLink(ctx, deviceID, userID, displayID); err != nil {
		return fmt.Errorf("failed to update registry link fields: %w", err)
	}

	p.logger.Info().
		Str("device_id", deviceID).
		Str("user_id", userID).
		Str("display_id", displayID).
		Msg("Device paired")

	return nil
}

// Unlink removes the device link and clears the registry's link fields.
// Unlinking an already-unlinked device succeeds silently.
func (p *Pairing) Unlink(ctx context.Context, deviceID string) error {
	if err := p.store.Delete(ctx, paths.DeviceLink(deviceID)); err != nil {
		return fmt.Errorf("failed to delete device link: %w", err)
	}

	if err := p.registry.ClearLink(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to clear registry link fields: %w", err)
	}

	p.logger.Info().Str("device_id", deviceID).Msg("Device unlinked")

	return nil
}

// GetDeviceLink is the device's boot-time discovery of where to publish:
// it returns the (userID, displayID) binding, or nil when the device is not
// linked. Only the link record is consulted; a registry record claiming
// "linked" without a link record means unlinked.
func (p *Pairing) GetDeviceLink(ctx context.Context, deviceID string) (*models.DeviceLink, error) {
	value, found, err := p.store.Get(ctx, paths.DeviceLink(deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to read device link: %w", err)
	}

	if !found {
		return nil, nil
	}

	var link models.DeviceLink

	if err := json.Unmarshal(value, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device link: %w", err)
	}

	return &link, nil
}
