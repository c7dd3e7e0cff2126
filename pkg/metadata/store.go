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

// Package metadata defines the contract to the durable display-metadata
// store. The production store is an external collaborator; this package
// holds only the subscription/CRUD surface the live-control core consumes,
// plus an in-memory implementation for tests and demo deployments.
package metadata

import (
	"context"
	"errors"

	"github.com/signacast/signacast/pkg/models"
)

// ErrDisplayNotFound is returned when an update or delete names a display
// that does not exist.
var ErrDisplayNotFound = errors.New("display not found")

// Store is the durable display-metadata collaborator.
type Store interface {
	// Subscribe delivers the full display list for a user on every change,
	// starting with the current list. The returned stop function releases
	// the subscription.
	Subscribe(ctx context.Context, userID string) (<-chan []models.Display, func(), error)

	// List returns the user's displays.
	List(ctx context.Context, userID string) ([]models.Display, error)

	// Get returns one display.
	Get(ctx context.Context, userID, displayID string) (*models.Display, bool, error)

	// Create stores a new display, assigning its ID and timestamps, and
	// returns the stored entity.
	Create(ctx context.Context, display models.Display) (models.Display, error)

	// Update replaces a display's metadata by ID.
	Update(ctx context.Context, display models.Display) error

	// Delete removes a display.
	Delete(ctx context.Context, userID, displayID string) error
}
