package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostDisconnect_PausesRunningQuestion(t *testing.T) {
	room, clock := newTestRoom(t, ModeFFA)
	hostID, hostConn := admitHost(t, room)
	_, aliceConn := admitPlayer(t, room, "Алиса")
	admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))
	require.Equal(t, PhaseQuestion, roomPhase(room))

	clock.Advance(10 * time.Second)
	room.HandleDisconnect(hostID, hostConn)

	withLock(room, func() {
		assert.Equal(t, PhaseHostReconnect, room.phase)
		require.NotNil(t, room.pausedState)
		assert.Equal(t, PhaseQuestion, room.pausedState.Phase)
		assert.Equal(t, int64(20000), room.pausedState.RemainingMs)
		assert.Nil(t, room.questionEndsAt)
		require.NotNil(t, room.hostReconnectEndsAt)
		assert.Equal(t, room.nowMs()+HostReconnectWaitMs, *room.hostReconnectEndsAt)
		require.NotNil(t, room.disconnectedHostName)
		assert.Equal(t, "Организатор", *room.disconnectedHostName)
	})

	state := aliceConn.lastState()
	require.NotNil(t, state)
	assert.Equal(t, PhaseHostReconnect, state.Room.Phase)
	assert.NotNil(t, state.Room.HostReconnectEndsAt)
}

func TestHostDisconnect_ResultsPhaseKeepsRunning(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	hostID, hostConn := admitHost(t, room)
	aliceID, _ := admitPlayer(t, room, "Алиса")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	for range 5 {
		question := currentQuestion(t, room)
		submitAnswer(room, aliceID, question.CorrectIndex)
		withLock(room, room.advanceAfterRevealLocked)
	}
	require.Equal(t, PhaseResults, roomPhase(room))

	room.HandleDisconnect(hostID, hostConn)
	// No reconnect window: a remaining player is promoted instead.
	assert.Equal(t, PhaseResults, roomPhase(room))
	withLock(room, func() {
		assert.True(t, room.players[aliceID].IsHost)
	})
}

func TestHostReconnect_ResumesWithRemainingTime(t *testing.T) {
	room, clock := newTestRoom(t, ModeFFA)
	hostID, hostConn := admitHost(t, room)
	admitPlayer(t, room, "Алиса")
	admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	clock.Advance(12 * time.Second)
	room.HandleDisconnect(hostID, hostConn)
	require.Equal(t, PhaseHostReconnect, roomPhase(room))

	clock.Advance(5 * time.Second)
	rejoined := &mockConn{}
	_, rejection := room.Admit(rejoined, JoinRequest{
		Name:      "Организатор",
		WantsHost: true,
		HostToken: testHostToken,
	})
	require.Nil(t, rejection)

	withLock(room, func() {
		assert.Equal(t, PhaseQuestion, room.phase)
		assert.Nil(t, room.hostReconnectEndsAt)
		assert.Nil(t, room.disconnectedHostName)
		assert.Nil(t, room.pausedState)
		require.NotNil(t, room.questionEndsAt)
		// 18s were left on the question when the host dropped.
		assert.Equal(t, room.nowMs()+18000, *room.questionEndsAt)
	})
}

func TestHostReconnectTimeout_PromotesNewHost(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	hostID, hostConn := admitHost(t, room)
	aliceID, aliceConn := admitPlayer(t, room, "Алиса")
	admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))
	room.HandleDisconnect(hostID, hostConn)
	require.Equal(t, PhaseHostReconnect, roomPhase(room))

	// The expiry path the reconnect timer runs once the window lapses.
	withLock(room, func() {
		room.assignNewHostLocked()
		room.resumeAfterHostReconnectLocked()
	})

	withLock(room, func() {
		assert.Equal(t, PhaseQuestion, room.phase)
		assert.True(t, room.players[aliceID].IsHost)
		assert.False(t, room.players[aliceID].IsSpectator)
		assert.Equal(t, aliceID, room.hostPeerID)
	})
	frame := aliceConn.lastState()
	require.NotNil(t, frame)
	assert.Equal(t, PhaseQuestion, frame.Room.Phase)
}

func TestManualPause_TogglePausesAndResumes(t *testing.T) {
	room, clock := newTestRoom(t, ModeFFA)
	hostID, _ := admitHost(t, room)
	aliceID, aliceConn := admitPlayer(t, room, "Алиса")
	admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	// Only the host can pause.
	room.HandleMessage(aliceID, []byte(`{"type":"toggle-pause"}`))
	require.Equal(t, PhaseQuestion, roomPhase(room))

	clock.Advance(10 * time.Second)
	room.HandleMessage(hostID, []byte(`{"type":"toggle-pause"}`))
	withLock(room, func() {
		assert.Equal(t, PhaseManualPause, room.phase)
		require.NotNil(t, room.manualPauseByName)
		assert.Equal(t, "Организатор", *room.manualPauseByName)
		require.NotNil(t, room.pausedState)
		assert.Equal(t, int64(20000), room.pausedState.RemainingMs)
	})

	// Chat opens to everyone while paused.
	sendChat(room, aliceID, "передышка")
	assert.Contains(t, chatTexts(aliceConn), "передышка")

	clock.Advance(time.Minute)
	room.HandleMessage(hostID, []byte(`{"type":"toggle-pause"}`))
	withLock(room, func() {
		assert.Equal(t, PhaseQuestion, room.phase)
		assert.Nil(t, room.manualPauseByName)
		assert.Nil(t, room.pausedState)
		require.NotNil(t, room.questionEndsAt)
		assert.Equal(t, room.nowMs()+20000, *room.questionEndsAt)
	})
}

func TestManualPause_NotAvailableInLobby(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	hostID, _ := admitHost(t, room)
	admitPlayer(t, room, "Алиса")

	room.HandleMessage(hostID, []byte(`{"type":"toggle-pause"}`))
	assert.Equal(t, PhaseLobby, roomPhase(room))
}

func TestHostReconnect_LobbyJoinersAreNotSpectators(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	hostID, hostConn := admitHost(t, room)
	admitPlayer(t, room, "Алиса")
	room.HandleDisconnect(hostID, hostConn)
	require.Equal(t, PhaseHostReconnect, roomPhase(room))

	// A lobby paused for the host still admits active players.
	_, conn := admitPlayer(t, room, "Борис")
	frame := conn.connected()
	require.NotNil(t, frame)
	assert.False(t, frame.IsSpectator)
}
