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

// CommandType identifies a one-shot playback directive.
type CommandType string

const (
	CommandPlay       CommandType = "play"
	CommandPause      CommandType = "pause"
	CommandStop       CommandType = "stop"
	CommandSkip       CommandType = "skip"
	CommandVolume     CommandType = "volume"
	CommandBrightness CommandType = "brightness"
	CommandRestart    CommandType = "restart"
)

// CommandStatus tracks a command through its lifecycle. The status is
// monotonic: once executed or failed, no further transition is observable.
type CommandStatus string

const (
	CommandPending  CommandStatus = "pending"
	CommandExecuted CommandStatus = "executed"
	CommandFailed   CommandStatus = "failed"
)

// CommandPayload carries the argument of a command. Exactly one field is
// populated per command type.
type CommandPayload struct {
	ContentID  string `json:"content_id,omitempty"`
	Volume     *int   `json:"volume,omitempty"`
	Brightness *int   `json:"brightness,omitempty"`
	ScheduleID string `json:"schedule_id,omitempty"`
}

// PlaybackCommand is one entry in a display's command queue. Timestamp is
// unix milliseconds, stamped at creation.
type PlaybackCommand struct {
	CommandID string          `json:"command_id"`
	DisplayID string          `json:"display_id"`
	Type      CommandType     `json:"type"`
	Payload   *CommandPayload `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Status    CommandStatus   `json:"status"`
	Result    string          `json:"result,omitempty"`
}

// Resolved reports whether the command reached a terminal status.
func (c *PlaybackCommand) Resolved() bool {
	return c.Status == CommandExecuted || c.Status == CommandFailed
}
