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

// PlaybackState is the live operational state a device reports for its
// display.
type PlaybackState string

const (
	StateOnline  PlaybackState = "online"
	StateOffline PlaybackState = "offline"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
	StateError   PlaybackState = "error"
)

// CurrentContent describes the media item a display is presenting.
type CurrentContent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	StartedAt int64  `json:"started_at"`
	Duration  int64  `json:"duration,omitempty"`
}

// ScheduleState describes the schedule a display is cycling through.
type ScheduleState struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ContentQueue []string `json:"content_queue"`
	CurrentIndex int      `json:"current_index"`
}

// PlaybackStatus is the live-state record for one display. It is fully
// owned and overwritten by the paired device; dashboards treat it as
// read-only. LastHeartbeat is unix milliseconds.
type PlaybackStatus struct {
	DisplayID      string          `json:"display_id"`
	DisplayName    string          `json:"display_name"`
	Status         PlaybackState   `json:"status"`
	CurrentContent *CurrentContent `json:"current_content"`
	Schedule       *ScheduleState  `json:"schedule"`
	LastHeartbeat  int64           `json:"last_heartbeat"`
	Volume         int             `json:"volume"`
	Brightness     *int            `json:"brightness,omitempty"`
	Uptime         string          `json:"uptime,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// StatusPatch is a partial update merged into a PlaybackStatus. Nil fields
// leave the stored value untouched; the Clear flags set the corresponding
// nullable field back to null.
type StatusPatch struct {
	DisplayName    *string         `json:"display_name,omitempty"`
	Status         *PlaybackState  `json:"status,omitempty"`
	CurrentContent *CurrentContent `json:"current_content,omitempty"`
	ClearContent   bool            `json:"clear_content,omitempty"`
	Schedule       *ScheduleState  `json:"schedule,omitempty"`
	ClearSchedule  bool            `json:"clear_schedule,omitempty"`
	Volume         *int            `json:"volume,omitempty"`
	Brightness     *int            `json:"brightness,omitempty"`
	Uptime         *string         `json:"uptime,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
}
