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

// Package paths defines the key layout of the realtime store.
//
// Keys are dot-separated subject tokens so pattern watches can cover a whole
// subtree (users.u1.displays.*.status). Link and status/command records are
// namespaced per user; registry and link records are global because a device
// is not yet associated with a user at registration time.
package paths

import "strings"

const (
	registryRoot = "device_registry"
	linksRoot    = "device_links"
	usersRoot    = "users"
	displaysSeg  = "displays"
	statusSeg    = "status"
	commandsSeg  = "commands"
)

// DeviceRegistry returns the registry key for a device.
func DeviceRegistry(deviceID string) string {
	return registryRoot + "." + deviceID
}

// DeviceLink returns the link key for a device.
func DeviceLink(deviceID string) string {
	return linksRoot + "." + deviceID
}

// DisplayStatus returns the live-status key for a display.
func DisplayStatus(userID, displayID string) string {
	return usersRoot + "." + userID + "." + displaysSeg + "." + displayID + "." + statusSeg
}

// AllDisplayStatuses returns the pattern matching every status record under
// a user.
func AllDisplayStatuses(userID string) string {
	return usersRoot + "." + userID + "." + displaysSeg + ".*." + statusSeg
}

// Command returns the key for one command in a display's queue.
func Command(userID, displayID, commandID string) string {
	return CommandPrefix(userID, displayID) + commandID
}

// CommandPrefix returns the key prefix of a display's command queue.
func CommandPrefix(userID, displayID string) string {
	return usersRoot + "." + userID + "." + displaysSeg + "." + displayID + "." + commandsSeg + "."
}

// AllCommands returns the pattern matching every command of a display.
func AllCommands(userID, displayID string) string {
	return CommandPrefix(userID, displayID) + "*"
}

// DisplayIDFromStatusKey extracts the display ID from a status key, such as
// the ones delivered by a pattern watch. Returns false when the key is not a
// status key.
func DisplayIDFromStatusKey(key string) (string, bool) {
	parts := strings.Split(key, ".")
	if len(parts) != 5 || parts[0] != usersRoot || parts[2] != displaysSeg || parts[4] != statusSeg {
		return "", false
	}

	return parts[3], true
}

// CommandIDFromKey extracts the command ID from a command key. Returns false
// when the key is not a command key.
func CommandIDFromKey(key string) (string, bool) {
	parts := strings.Split(key, ".")
	if len(parts) != 6 || parts[0] != usersRoot || parts[2] != displaysSeg || parts[4] != commandsSeg {
		return "", false
	}

	return parts[5], true
}
