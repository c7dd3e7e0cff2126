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

// Package registry stores device identity and credentials. It is the trust
// anchor for pairing: a device proves itself with the shared device key
// issued at provisioning time.
package registry

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
)

// ErrAlreadyRegistered is returned when a device ID is taken by a record
// with a different key. Re-registration with the identical key is
// idempotent and succeeds.
var ErrAlreadyRegistered = errors.New("device already registered with a different key")

// Registry manages device records in the realtime store.
type Registry struct {
	store  kv.Store
	clock  clock.Clock
	logger logger.Logger
}

// New creates a Registry.
func New(store kv.Store, clk clock.Clock, log logger.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}

	return &Registry{
		store:  store,
		clock:  clk,
		logger: log.WithComponent("registry"),
	}
}

// Register creates the registry record for a device at provisioning time.
func (r *Registry) Register(ctx context.Context, deviceID, deviceKey string, meta models.DeviceMetadata) error {
	existing, found, err := r.Get(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to check existing registration: %w", err)
	}

	if found {
		if existing.DeviceKey != deviceKey {
			return ErrAlreadyRegistered
		}

		// Same device re-announcing itself after a reinstall or reboot.
		return nil
	}

	now := r.clock.Now()
	record := models.DeviceRecord{
		DeviceID:     deviceID,
		DeviceKey:    deviceKey,
		DisplayName:  meta.DisplayName,
		RegisteredAt: now,
		LastSeen:     now,
		IPAddress:    meta.IPAddress,
		MACAddress:   meta.MACAddress,
		OSVersion:    meta.OSVersion,
		Status:       models.DeviceRegistered,
	}

	if err := r.put(ctx, &record); err != nil {
		return err
	}

	r.logger.Info().Str("device_id", deviceID).Msg("Device registered")

	return nil
}

// VerifyCredentials checks a device's key. Unknown device IDs and key
// mismatches both return false without an error so callers cannot
// enumerate device IDs.
func (r *Registry) VerifyCredentials(ctx context.Context, deviceID, deviceKey string) (bool, error) {
	record, found, err := r.Get(ctx, deviceID)
	if err != nil {
		return false, err
	}

	if !found {
		return false, nil
	}

	return record.DeviceKey == deviceKey, nil
}

// Get returns the registry record for a device.
func (r *Registry) Get(ctx context.Context, deviceID string) (*models.DeviceRecord, bool, error) {
	value, found, err := r.store.Get(ctx, paths.DeviceRegistry(deviceID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read device record: %w", err)
	}

	if !found {
		return nil, false, nil
	}

	var record models.DeviceRecord

	if err := json.Unmarshal(value, &record); err != nil {
		// A corrupt record is treated as absent so credential checks stay
		// opaque; the sweep tooling surfaces it.
		r.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Corrupt device record")

		return nil, false, nil
	}

	return &record, true, nil
}

// TouchLastSeen is the best-effort device heartbeat against the registry.
// Failures are logged, never returned.
func (r *Registry) TouchLastSeen(ctx context.Context, deviceID string) {
	record, found, err := r.Get(ctx, deviceID)
	if err != nil || !found {
		r.logger.Debug().Err(err).Str("device_id", deviceID).Msg("Skipping last-seen update")

		return
	}

	record.LastSeen = r.clock.Now()

	if err := r.put(ctx, record); err != nil {
		r.logger.Debug().Err(err).Str("device_id", deviceID).Msg("Failed to update last-seen")
	}
}

// SetLink records the link fields after a successful pairing. The DeviceLink
// record has already been written at this point; on a crash in between, the
// link record remains authoritative.
func (r *Registry) SetLink(ctx context.Context, deviceID, userID, displayID string) error {
	record, found, err := r.Get(ctx, deviceID)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("failed to set link: device %s not registered", deviceID)
	}

	record.LinkedToUser = userID
	record.LinkedDisplayID = displayID
	record.Status = models.DeviceLinked
	record.LastLinked = r.clock.Now()

	return r.put(ctx, record)
}

// ClearLink removes the link fields. Clearing an unlinked or unknown device
// succeeds silently.
func (r *Registry) ClearLink(ctx context.Context, deviceID string) error {
	record, found, err := r.Get(ctx, deviceID)
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	record.LinkedToUser = ""
	record.LinkedDisplayID = ""
	record.Status = models.DeviceRegistered
	record.LastUnlinked = r.clock.Now()

	return r.put(ctx, record)
}

func (r *Registry) put(ctx context.Context, record *models.DeviceRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal device record: %w", err)
	}

	if err := r.store.Put(ctx, paths.DeviceRegistry(record.DeviceID), value); err != nil {
		return fmt.Errorf("failed to write device record: %w", err)
	}

	return nil
}
