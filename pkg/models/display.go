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

package models

import "time"

// Display is the durable metadata entity for a logical signage endpoint.
// It lives in the metadata store, not the realtime store; this package only
// defines the fields the live-control core reads and merges.
type Display struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Name        string        `json:"name"`
	Location    string        `json:"location"`
	Status      PlaybackState `json:"status"`
	Resolution  string        `json:"resolution"`
	Uptime      string        `json:"uptime"`
	Brightness  int           `json:"brightness"`
	Orientation string        `json:"orientation"`
	LastUpdate  time.Time     `json:"last_update"`
	Group       string        `json:"group"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// MergedDisplay is the durable Display overlaid with the current live
// status, when one exists. It is derived, never stored.
type MergedDisplay struct {
	Display

	Volume         *int            `json:"volume,omitempty"`
	CurrentContent *CurrentContent `json:"current_content,omitempty"`
	Schedule       *ScheduleState  `json:"schedule,omitempty"`
}
