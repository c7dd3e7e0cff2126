package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
)

func newTestChannel(t *testing.T) (*Channel, *kv.MemoryStore, *clock.Fake) {
	t.Helper()

	store := kv.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	return NewChannel(store, clk, logger.NewTestLogger()), store, clk
}

func intPtr(v int) *int {
	return &v
}

func TestSendStampsPendingCommand(t *testing.T) {
	ch, _, clk := newTestChannel(t)

	id, err := ch.Send(context.Background(), "user-a", "disp-1", models.CommandVolume,
		&models.CommandPayload{Volume: intPtr(45)})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	commands, err := ch.List(context.Background(), "user-a", "disp-1")
	require.NoError(t, err)
	require.Len(t, commands, 1)

	cmd := commands[id]
	assert.Equal(t, models.CommandVolume, cmd.Type)
	assert.Equal(t, models.CommandPending, cmd.Status)
	assert.Equal(t, 45, *cmd.Payload.Volume)
	assert.Equal(t, clk.Now().UnixMilli(), cmd.Timestamp)
	assert.Equal(t, "disp-1", cmd.DisplayID)
}

func TestSendInvalidType(t *testing.T) {
	ch, store, _ := newTestChannel(t)

	_, err := ch.Send(context.Background(), "user-a", "disp-1", models.CommandType("reboot"), nil)
	require.ErrorIs(t, err, ErrInvalidType)

	keys, err := store.ListKeys(context.Background(), "users.")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSendInvalidPayloadWritesNothing(t *testing.T) {
	ch, store, _ := newTestChannel(t)

	cases := []struct {
		name    string
		cmdType models.CommandType
		payload *models.CommandPayload
	}{
		{"brightness out of range", models.CommandBrightness, &models.CommandPayload{Brightness: intPtr(150)}},
		{"volume negative", models.CommandVolume, &models.CommandPayload{Volume: intPtr(-1)}},
		{"volume missing", models.CommandVolume, nil},
		{"play without target", models.CommandPlay, &models.CommandPayload{}},
		{"play nil payload", models.CommandPlay, nil},
		{"pause with payload", models.CommandPause, &models.CommandPayload{Volume: intPtr(10)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ch.Send(context.Background(), "user-a", "disp-1", tc.cmdType, tc.payload)
			require.ErrorIs(t, err, ErrInvalidPayload)
		})
	}

	keys, err := store.ListKeys(context.Background(), "users.")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSendPayloadlessTypes(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	for _, cmdType := range []models.CommandType{
		models.CommandPause, models.CommandStop, models.CommandSkip, models.CommandRestart,
	} {
		_, err := ch.Send(context.Background(), "user-a", "disp-1", cmdType, nil)
		require.NoError(t, err)
	}
}

func TestResolveMarksExecuted(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	id, err := ch.Send(context.Background(), "user-a", "disp-1", models.CommandPlay,
		&models.CommandPayload{ContentID: "content-1"})
	require.NoError(t, err)

	err = ch.Resolve(context.Background(), "user-a", "disp-1", id, models.CommandExecuted, "ok")
	require.NoError(t, err)

	commands, err := ch.List(context.Background(), "user-a", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, models.CommandExecuted, commands[id].Status)
	assert.Equal(t, "ok", commands[id].Result)
}

func TestResolveMonotonic(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	id, err := ch.Send(context.Background(), "user-a", "disp-1", models.CommandStop, nil)
	require.NoError(t, err)

	require.NoError(t, ch.Resolve(context.Background(), "user-a", "disp-1", id, models.CommandExecuted, ""))

	// A later failed resolution must not overwrite the terminal status.
	require.NoError(t, ch.Resolve(context.Background(), "user-a", "disp-1", id, models.CommandFailed, "too late"))

	commands, err := ch.List(context.Background(), "user-a", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, models.CommandExecuted, commands[id].Status)
	assert.Empty(t, commands[id].Result)
}

func TestResolveInvalidStatus(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	id, err := ch.Send(context.Background(), "user-a", "disp-1", models.CommandStop, nil)
	require.NoError(t, err)

	err = ch.Resolve(context.Background(), "user-a", "disp-1", id, models.CommandPending, "")
	require.ErrorIs(t, err, ErrInvalidResolution)

	err = ch.Resolve(context.Background(), "user-a", "disp-1", id, models.CommandStatus("done"), "")
	require.ErrorIs(t, err, ErrInvalidResolution)
}

func TestResolveMissingCommandIsNoOp(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	err := ch.Resolve(context.Background(), "user-a", "disp-1", "gone", models.CommandExecuted, "")
	require.NoError(t, err)
}

func TestDeleteAbsentCommand(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	require.NoError(t, ch.Delete(context.Background(), "user-a", "disp-1", "nope"))
}

func TestSubscribePushesFullMap(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	updates, stop, err := ch.Subscribe(context.Background(), "user-a", "disp-1")
	require.NoError(t, err)

	defer stop()

	// Initial snapshot is empty.
	assert.Empty(t, waitMap(t, updates))

	id, err := ch.Send(context.Background(), "user-a", "disp-1", models.CommandSkip, nil)
	require.NoError(t, err)

	snapshot := waitMap(t, updates)
	require.Contains(t, snapshot, id)
	assert.Equal(t, models.CommandPending, snapshot[id].Status)

	require.NoError(t, ch.Delete(context.Background(), "user-a", "disp-1", id))

	assert.Empty(t, waitMap(t, updates))
}

func TestSubscribeStopClosesChannel(t *testing.T) {
	ch, _, _ := newTestChannel(t)

	updates, stop, err := ch.Subscribe(context.Background(), "user-a", "disp-1")
	require.NoError(t, err)

	waitMap(t, updates)
	stop()

	deadline := time.After(2 * time.Second)

	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed after stop")
		}
	}
}

func waitMap(t *testing.T, updates <-chan map[string]models.PlaybackCommand) map[string]models.PlaybackCommand {
	t.Helper()

	select {
	case snapshot, ok := <-updates:
		require.True(t, ok, "subscription channel closed unexpectedly")

		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command snapshot")

		return nil
	}
}
