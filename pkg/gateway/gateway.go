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

// Package gateway exposes the live dashboard surface over WebSocket:
// merged display snapshots stream out, playback commands stream in.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signacast/signacast/pkg/aggregator"
	"github.com/signacast/signacast/pkg/command"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamMessage is one frame sent to the dashboard.
type StreamMessage struct {
	Type      string                 `json:"type"` // "displays", "command_ack", "error"
	Displays  []models.MergedDisplay `json:"displays,omitempty"`
	CommandID string                 `json:"command_id,omitempty"`
	DisplayID string                 `json:"display_id,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// clientFrame is one frame received from the dashboard.
type clientFrame struct {
	Action    string                 `json:"action"`
	DisplayID string                 `json:"display_id"`
	Type      models.CommandType     `json:"type"`
	Payload   *models.CommandPayload `json:"payload,omitempty"`
}

// DisplayTracker keeps the reaper's sweep set in step with the displays a
// session is watching. Satisfied by reaper.Reaper.
type DisplayTracker interface {
	Track(userID, displayID string)
	Untrack(userID, displayID string)
}

// UserTracker keeps the orphan sweeper's user set in step with active
// sessions. Satisfied by pairing.OrphanSweeper.
type UserTracker interface {
	Track(userID string)
	Untrack(userID string)
}

// Gateway upgrades dashboard connections and bridges them onto the
// aggregator and the command channel.
type Gateway struct {
	views    *aggregator.Aggregator
	commands *command.Channel
	displays DisplayTracker
	users    UserTracker
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// New creates a Gateway. Either tracker may be nil when the corresponding
// sweeper is not running.
func New(views *aggregator.Aggregator, commands *command.Channel, displays DisplayTracker, users UserTracker, log logger.Logger) *Gateway {
	return &Gateway{
		views:    views,
		commands: commands,
		displays: displays,
		users:    users,
		logger:   log.WithComponent("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeHTTP handles one dashboard session. The user is identified by the
// user_id query parameter; authentication happens upstream of this handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id parameter is required", http.StatusBadRequest)

		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade to WebSocket")

		return
	}

	g.logger.Info().
		Str("user_id", userID).
		Str("remote_addr", r.RemoteAddr).
		Msg("Dashboard session established")

	g.serve(r.Context(), conn, userID)
}

func (g *Gateway) serve(ctx context.Context, conn *websocket.Conn, userID string) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	views, stopViews, err := g.views.Subscribe(ctx, userID)
	if err != nil {
		g.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to subscribe to merged views")

		return
	}
	defer stopViews()

	if g.users != nil {
		g.users.Track(userID)
		defer g.users.Untrack(userID)
	}

	tracked := make(map[string]struct{})

	defer func() {
		if g.displays == nil {
			return
		}

		for displayID := range tracked {
			g.displays.Untrack(userID, displayID)
		}
	}()

	// All writes go through one channel; gorilla allows a single writer.
	out := make(chan StreamMessage, 16)

	go g.readLoop(ctx, cancel, conn, userID, out)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-views:
			if !ok {
				return
			}

			g.trackDisplays(userID, snapshot, tracked)

			if !g.write(conn, StreamMessage{Type: "displays", Displays: snapshot, Timestamp: time.Now()}) {
				return
			}
		case msg := <-out:
			if !g.write(conn, msg) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client frames until the connection drops. Command
// frames dispatch to the command channel; validation failures go back to
// the client as error frames instead of closing the session.
func (g *Gateway) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, userID string, out chan<- StreamMessage) {
	defer cancel()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug().Err(err).Str("user_id", userID).Msg("Dashboard session closed")
			}

			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.send(ctx, out, StreamMessage{Type: "error", Error: "malformed frame", Timestamp: time.Now()})

			continue
		}

		if frame.Action != "command" {
			g.send(ctx, out, StreamMessage{
				Type:      "error",
				Error:     "unknown action " + frame.Action,
				Timestamp: time.Now(),
			})

			continue
		}

		commandID, err := g.commands.Send(ctx, userID, frame.DisplayID, frame.Type, frame.Payload)
		if err != nil {
			msg := StreamMessage{Type: "error", DisplayID: frame.DisplayID, Timestamp: time.Now()}

			if errors.Is(err, command.ErrInvalidType) || errors.Is(err, command.ErrInvalidPayload) {
				msg.Error = err.Error()
			} else {
				g.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to send command")
				msg.Error = "command dispatch failed"
			}

			g.send(ctx, out, msg)

			continue
		}

		g.send(ctx, out, StreamMessage{
			Type:      "command_ack",
			CommandID: commandID,
			DisplayID: frame.DisplayID,
			Timestamp: time.Now(),
		})
	}
}

func (g *Gateway) trackDisplays(userID string, snapshot []models.MergedDisplay, tracked map[string]struct{}) {
	if g.displays == nil {
		return
	}

	current := make(map[string]struct{}, len(snapshot))

	for _, display := range snapshot {
		current[display.ID] = struct{}{}

		if _, ok := tracked[display.ID]; !ok {
			tracked[display.ID] = struct{}{}
			g.displays.Track(userID, display.ID)
		}
	}

	for displayID := range tracked {
		if _, ok := current[displayID]; !ok {
			delete(tracked, displayID)
			g.displays.Untrack(userID, displayID)
		}
	}
}

func (g *Gateway) write(conn *websocket.Conn, msg StreamMessage) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}

	if err := conn.WriteJSON(msg); err != nil {
		return false
	}

	return true
}

func (g *Gateway) send(ctx context.Context, out chan<- StreamMessage, msg StreamMessage) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}
