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

package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credentials identify a player device to the core. The key is an opaque
// shared secret generated once and persisted beside the agent.
type Credentials struct {
	DeviceID  string `json:"device_id"`
	DeviceKey string `json:"device_key"`
}

// GenerateCredentials mints a fresh device identity. The ID embeds the
// creation time plus a short random suffix so fleets stay greppable.
func GenerateCredentials(now time.Time) Credentials {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:4]

	return Credentials{
		DeviceID:  fmt.Sprintf("DEVICE_%d_%s", now.UnixMilli(), suffix),
		DeviceKey: uuid.New().String(),
	}
}

// LoadOrCreateCredentials reads the credentials file, generating and
// persisting a new identity when none exists yet.
func LoadOrCreateCredentials(path string, now time.Time) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var creds Credentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return Credentials{}, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
		}

		if creds.DeviceID == "" || creds.DeviceKey == "" {
			return Credentials{}, fmt.Errorf("credentials file %s is incomplete", path)
		}

		return creds, nil
	}

	if !os.IsNotExist(err) {
		return Credentials{}, fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}

	creds := GenerateCredentials(now)

	data, err = json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Credentials{}, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Credentials{}, fmt.Errorf("failed to write credentials file %s: %w", path, err)
	}

	return creds, nil
}
