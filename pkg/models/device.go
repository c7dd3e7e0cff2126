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

// Package models defines the records exchanged through the realtime store.
package models

import "time"

// DeviceState represents the registry-side link state of a device.
type DeviceState string

const (
	// DeviceRegistered indicates a provisioned device not yet linked to a user.
	DeviceRegistered DeviceState = "registered"
	// DeviceLinked indicates a device bound to a user's display.
	DeviceLinked DeviceState = "linked"
)

// DeviceMetadata carries the network/OS details captured at provisioning.
type DeviceMetadata struct {
	DisplayName string `json:"display_name"`
	IPAddress   string `json:"ip_address,omitempty"`
	MACAddress  string `json:"mac_address,omitempty"`
	OSVersion   string `json:"os_version,omitempty"`
}

// DeviceRecord is the registry entry for a physical player device. It is the
// trust anchor for pairing: the device key is the shared secret a device
// presents to prove its identity.
type DeviceRecord struct {
	DeviceID        string      `json:"device_id"`
	DeviceKey       string      `json:"device_key"`
	DisplayName     string      `json:"display_name"`
	RegisteredAt    time.Time   `json:"registered_at"`
	LastSeen        time.Time   `json:"last_seen"`
	IPAddress       string      `json:"ip_address,omitempty"`
	MACAddress      string      `json:"mac_address,omitempty"`
	OSVersion       string      `json:"os_version,omitempty"`
	LinkedToUser    string      `json:"linked_to_user,omitempty"`
	LinkedDisplayID string      `json:"linked_display_id,omitempty"`
	Status          DeviceState `json:"status"`
	LastLinked      time.Time   `json:"last_linked,omitzero"`
	LastUnlinked    time.Time   `json:"last_unlinked,omitzero"`
}

// DeviceLink binds a device to a user-owned display. It is the authoritative
// answer to "which user/display does this device belong to": when the
// registry and the link disagree, the link record wins.
type DeviceLink struct {
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id"`
	DisplayID string    `json:"display_id"`
	LinkedAt  time.Time `json:"linked_at"`
	Status    string    `json:"status"`
}

// LinkStatusActive is the only status a DeviceLink carries; an inactive link
// is expressed by deleting the record.
const LinkStatusActive = "active"
