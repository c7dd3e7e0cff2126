package gateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signacast/signacast/pkg/aggregator"
	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/command"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/metadata"
	"github.com/signacast/signacast/pkg/models"
	"github.com/signacast/signacast/pkg/status"
)

type trackerRecorder struct {
	mu       sync.Mutex
	displays map[string]int
	users    map[string]int
}

func newTrackerRecorder() *trackerRecorder {
	return &trackerRecorder{
		displays: make(map[string]int),
		users:    make(map[string]int),
	}
}

func (r *trackerRecorder) Track(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ids) == 2 {
		r.displays[ids[0]+"/"+ids[1]]++
	} else {
		r.users[ids[0]]++
	}
}

func (r *trackerRecorder) Untrack(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ids) == 2 {
		r.displays[ids[0]+"/"+ids[1]]--
	} else {
		r.users[ids[0]]--
	}
}

type displayTracker struct{ rec *trackerRecorder }

func (d displayTracker) Track(userID, displayID string)   { d.rec.Track(userID, displayID) }
func (d displayTracker) Untrack(userID, displayID string) { d.rec.Untrack(userID, displayID) }

type userTracker struct{ rec *trackerRecorder }

func (u userTracker) Track(userID string)   { u.rec.Track(userID) }
func (u userTracker) Untrack(userID string) { u.rec.Untrack(userID) }

type gatewayRig struct {
	server   *httptest.Server
	meta     *metadata.MemoryStore
	statuses *status.Channel
	commands *command.Channel
	tracker  *trackerRecorder
}

func newGatewayRig(t *testing.T) *gatewayRig {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := logger.NewTestLogger()
	store := kv.NewMemoryStore()
	meta := metadata.NewMemoryStore(clk)
	statuses := status.NewChannel(store, clk, log)
	commands := command.NewChannel(store, clk, log)
	views := aggregator.New(meta, statuses, clk, 0, log)
	tracker := newTrackerRecorder()

	gw := New(views, commands, displayTracker{tracker}, userTracker{tracker}, log)
	server := httptest.NewServer(gw)

	t.Cleanup(server.Close)

	return &gatewayRig{
		server:   server,
		meta:     meta,
		statuses: statuses,
		commands: commands,
		tracker:  tracker,
	}
}

func (rig *gatewayRig) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(rig.server.URL, "http") + "/?user_id=" + userID

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.Cleanup(func() { conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func readFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) StreamMessage {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		msg := readFrame(t, conn)
		if msg.Type == frameType {
			return msg
		}
	}

	t.Fatalf("no %q frame before deadline", frameType)

	return StreamMessage{}
}

func TestGatewayRejectsMissingUser(t *testing.T) {
	rig := newGatewayRig(t)

	_, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(rig.server.URL, "http")+"/", nil)
	require.Error(t, err)
	require.NotNil(t, resp)

	defer resp.Body.Close()

	assert.Equal(t, 400, resp.StatusCode)
}

func TestGatewayStreamsMergedSnapshots(t *testing.T) {
	rig := newGatewayRig(t)

	display, err := rig.meta.Create(context.Background(), models.Display{
		UserID: "user-a",
		Name:   "Lobby",
	})
	require.NoError(t, err)

	conn := rig.dial(t, "user-a")

	msg := readFrameOfType(t, conn, "displays")
	require.Len(t, msg.Displays, 1)
	assert.Equal(t, "Lobby", msg.Displays[0].Name)

	// A live status write pushes a fresh snapshot with merged fields.
	require.NoError(t, rig.statuses.Initialize(context.Background(), "user-a", display.ID, "Lobby"))

	deadline := time.Now().Add(2 * time.Second)

	for {
		msg = readFrameOfType(t, conn, "displays")
		if len(msg.Displays) == 1 && msg.Displays[0].Volume != nil {
			assert.Equal(t, 80, *msg.Displays[0].Volume)

			break
		}

		require.True(t, time.Now().Before(deadline), "merged snapshot never arrived")
	}
}

func TestGatewayDispatchesCommands(t *testing.T) {
	rig := newGatewayRig(t)

	display, err := rig.meta.Create(context.Background(), models.Display{
		UserID: "user-a",
		Name:   "Lobby",
	})
	require.NoError(t, err)

	conn := rig.dial(t, "user-a")
	readFrameOfType(t, conn, "displays")

	err = conn.WriteJSON(map[string]interface{}{
		"action":     "command",
		"display_id": display.ID,
		"type":       "volume",
		"payload":    map[string]int{"volume": 45},
	})
	require.NoError(t, err)

	ack := readFrameOfType(t, conn, "command_ack")
	assert.NotEmpty(t, ack.CommandID)
	assert.Equal(t, display.ID, ack.DisplayID)

	commands, err := rig.commands.List(context.Background(), "user-a", display.ID)
	require.NoError(t, err)
	require.Contains(t, commands, ack.CommandID)
	assert.Equal(t, models.CommandPending, commands[ack.CommandID].Status)
	assert.Equal(t, 45, *commands[ack.CommandID].Payload.Volume)
}

func TestGatewayReturnsValidationErrors(t *testing.T) {
	rig := newGatewayRig(t)

	conn := rig.dial(t, "user-a")
	readFrameOfType(t, conn, "displays")

	err := conn.WriteJSON(map[string]interface{}{
		"action":     "command",
		"display_id": "d1",
		"type":       "brightness",
		"payload":    map[string]int{"brightness": 150},
	})
	require.NoError(t, err)

	msg := readFrameOfType(t, conn, "error")
	assert.Contains(t, msg.Error, "brightness")

	commands, err := rig.commands.List(context.Background(), "user-a", "d1")
	require.NoError(t, err)
	assert.Empty(t, commands)
}

func TestGatewayTracksDisplaysAndUsers(t *testing.T) {
	rig := newGatewayRig(t)

	display, err := rig.meta.Create(context.Background(), models.Display{
		UserID: "user-a",
		Name:   "Lobby",
	})
	require.NoError(t, err)

	conn := rig.dial(t, "user-a")
	readFrameOfType(t, conn, "displays")

	require.Eventually(t, func() bool {
		rig.tracker.mu.Lock()
		defer rig.tracker.mu.Unlock()

		return rig.tracker.users["user-a"] == 1 && rig.tracker.displays["user-a/"+display.ID] == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		rig.tracker.mu.Lock()
		defer rig.tracker.mu.Unlock()

		return rig.tracker.users["user-a"] == 0 && rig.tracker.displays["user-a/"+display.ID] == 0
	}, 2*time.Second, 10*time.Millisecond)
}
