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
	"errors"
	"fmt"
	"time"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/metadata"
	"github.com/signacast/signacast/pkg/models"
)

// PendingDisplayName marks a placeholder display created while the pairing
// dialog is open.
const PendingDisplayName = "Pending Link..."

// LinkedDisplayName is the name a placeholder receives once pairing
// completes; the user renames it afterwards.
const LinkedDisplayName = "New Display"

// Saga is the create-placeholder / link-or-abandon compensating flow around
// Pair. The pairing protocol itself has no notion of "pending": the
// placeholder lives entirely in the metadata store, and abandoning the flow
// deletes it.
type Saga struct {
	meta    metadata.Store
	pairing *Pairing
	clock   clock.Clock
	logger  logger.Logger
}

// NewSaga creates a Saga.
func NewSaga(meta metadata.Store, pairing *Pairing, clk clock.Clock, log logger.Logger) *Saga {
	if clk == nil {
		clk = clock.New()
	}

	return &Saga{
		meta:    meta,
		pairing: pairing,
		clock:   clk,
		logger:  log.WithComponent("pairing_saga"),
	}
}

// Begin creates the placeholder display shown while the user enters device
// credentials.
func (s *Saga) Begin(ctx context.Context, userID string) (models.Display, error) {
	placeholder := models.Display{
		UserID:      userID,
		Name:        PendingDisplayName,
		Location:    "Not Set",
		Status:      models.StateOffline,
		Resolution:  "1920x1080",
		Uptime:      "0%",
		Brightness:  50,
		Orientation: "landscape",
		LastUpdate:  s.clock.Now(),
		Group:       "Uncategorized",
	}

	created, err := s.meta.Create(ctx, placeholder)
	if err != nil {
		return models.Display{}, fmt.Errorf("failed to create pending display: %w", err)
	}

	return created, nil
}

// Complete pairs the device against the placeholder and activates it. The
// pairing error is returned unchanged so callers can distinguish credential
// failures from ownership conflicts.
func (s *Saga) Complete(ctx context.Context, userID, displayID, deviceID, deviceKey string) error {
	if err := s.pairing.Pair(ctx, deviceID, deviceKey, userID, displayID); err != nil {
		return err
	}

	display, found, err := s.meta.Get(ctx, userID, displayID)
	if err != nil {
		return fmt.Errorf("failed to load display after pairing: %w", err)
	}

	if !found {
		// The placeholder vanished under us (deleted in another tab). The
		// device link stands; there is nothing to rename.
		s.logger.Warn().Str("display_id", displayID).Msg("Placeholder display missing after pairing")

		return nil
	}

	if display.Name == PendingDisplayName {
		display.Name = LinkedDisplayName
	}

	display.Status = models.StateOnline
	display.LastUpdate = s.clock.Now()

	if err := s.meta.Update(ctx, *display); err != nil {
		return fmt.Errorf("failed to activate display: %w", err)
	}

	return nil
}

// Abandon deletes the placeholder after the user cancels the flow. An
// already-deleted placeholder is not an error.
func (s *Saga) Abandon(ctx context.Context, userID, displayID string) error {
	err := s.meta.Delete(ctx, userID, displayID)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete pending display: %w", err)
	}

	return nil
}

// ReapOrphans deletes placeholder displays older than maxAge across all the
// given users. A browser tab closed mid-pairing never runs the cancel
// handler, so placeholders can leak; this sweep bounds their lifetime.
func (s *Saga) ReapOrphans(ctx context.Context, userID string, maxAge time.Duration) (int, error) {
	displays, err := s.meta.List(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list displays: %w", err)
	}

	cutoff := s.clock.Now().Add(-maxAge)
	reaped := 0

	for _, display := range displays {
		if display.Name != PendingDisplayName || display.CreatedAt.After(cutoff) {
			continue
		}

		if err := s.meta.Delete(ctx, userID, display.ID); err != nil {
			if isNotFound(err) {
				continue
			}

			s.logger.Warn().Err(err).Str("display_id", display.ID).Msg("Failed to reap orphaned placeholder")

			continue
		}

		reaped++

		s.logger.Info().
			Str("display_id", display.ID).
			Time("created_at", display.CreatedAt).
			Msg("Reaped orphaned placeholder display")
	}

	return reaped, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, metadata.ErrDisplayNotFound)
}
