// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propstream/propstream/internal/identity"
)

func testIdentity(id string) identity.Identity {
	return identity.Identity{ID: id, Role: identity.RoleUser, Tier: identity.TierBasic}
}

func TestConnection_SendAndReceive(t *testing.T) {
	conn := NewConnection(testIdentity("user-1"), 4)

	event := NewEvent(EventAlertNew, json.RawMessage(`{"price":250000}`))
	require.NoError(t, conn.Send(event))

	got := <-conn.Events()
	assert.Equal(t, EventAlertNew, got.Type)
	assert.JSONEq(t, `{"price":250000}`, string(got.Data))
	assert.False(t, got.Timestamp.IsZero())
}

func TestConnection_SendNeverBlocks(t *testing.T) {
	conn := NewConnection(testIdentity("user-1"), 2)

	require.NoError(t, conn.Send(NewEvent(EventAlertNew, nil)))
	require.NoError(t, conn.Send(NewEvent(EventAlertNew, nil)))

	err := conn.Send(NewEvent(EventAlertNew, nil))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestConnection_SendAfterClose(t *testing.T) {
	conn := NewConnection(testIdentity("user-1"), 4)
	conn.Close()

	err := conn.Send(NewEvent(EventAlertNew, nil))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnection_CloseRunsHookOnce(t *testing.T) {
	conn := NewConnection(testIdentity("user-1"), 4)

	calls := 0
	conn.setOnClose(func(*Connection) { calls++ })

	conn.Close()
	conn.Close()
	conn.Close()

	assert.Equal(t, 1, calls, "terminal hook must fire exactly once")
	assert.True(t, conn.Closed())
}

func TestConnection_CloseClosesEventStream(t *testing.T) {
	conn := NewConnection(testIdentity("user-1"), 4)
	conn.Close()

	_, open := <-conn.Events()
	assert.False(t, open, "event channel should be closed")
}

func TestConnection_RoomMembership(t *testing.T) {
	conn := NewConnection(testIdentity("user-1"), 4)

	assert.True(t, conn.joinRoom("alerts:austin"))
	assert.False(t, conn.joinRoom("alerts:austin"), "re-join should be a no-op")
	assert.True(t, conn.InRoom("alerts:austin"))

	assert.True(t, conn.leaveRoom("alerts:austin"))
	assert.False(t, conn.leaveRoom("alerts:austin"))
	assert.False(t, conn.InRoom("alerts:austin"))
}

func TestConnection_JoinAfterCloseRefused(t *testing.T) {
	conn := NewConnection(testIdentity("user-1"), 4)
	conn.Close()

	assert.False(t, conn.joinRoom("alerts:austin"))
}

func TestConnection_DefaultQueueSize(t *testing.T) {
	conn := NewConnection(testIdentity("user-1"), 0)
	assert.Equal(t, DefaultQueueSize, cap(conn.out))
}

func TestConnection_UniqueIDs(t *testing.T) {
	a := NewConnection(testIdentity("user-1"), 1)
	b := NewConnection(testIdentity("user-1"), 1)
	assert.NotEqual(t, a.ID, b.ID)
}
