package game

import (
	"fmt"
	mrand "math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupClassicQuestionPhase drives a classic room with a host and four
// players through team reveal, captain vote and team naming into the
// first question. Phase timers are bypassed by invoking the same
// callbacks they would run.
func setupClassicQuestionPhase(t *testing.T, room *Room) (hostID string, conns map[string]*mockConn) {
	t.Helper()
	conns = make(map[string]*mockConn)

	hostID, hostConn := admitHost(t, room)
	conns[hostID] = hostConn
	for _, name := range []string{"Алиса", "Борис", "Вера", "Глеб"} {
		peerID, conn := admitPlayer(t, room, name)
		conns[peerID] = conn
	}

	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))
	require.Equal(t, PhaseTeamReveal, roomPhase(room))

	withLock(room, room.afterTeamRevealLocked)
	require.Equal(t, PhaseCaptainVote, roomPhase(room))

	for _, team := range TeamKeys {
		members := playersOnTeam(room, team)
		require.Len(t, members, 2)
		voteCaptain(room, members[0], members[1])
		voteCaptain(room, members[1], members[0])
	}
	require.Equal(t, PhaseTeamNaming, roomPhase(room))

	for _, team := range TeamKeys {
		captainID := captainOf(room, team)
		require.NotEmpty(t, captainID)
		room.HandleMessage(captainID, []byte(fmt.Sprintf(`{"type":"set-team-name","name":"Команда %s-тест"}`, team)))
	}
	require.Equal(t, PhaseQuestion, roomPhase(room))
	return hostID, conns
}

func captainOf(r *Room, team Team) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captains[team]
}

func teamScore(r *Room, team Team) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scores[team]
}

func TestClassic_StartAssignsAlternatingTeams(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	hostID, _ := admitHost(t, room)
	for _, name := range []string{"Алиса", "Борис", "Вера", "Глеб"} {
		admitPlayer(t, room, name)
	}

	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	assert.Equal(t, PhaseTeamReveal, roomPhase(room))
	assert.Len(t, playersOnTeam(room, TeamA), 2)
	assert.Len(t, playersOnTeam(room, TeamB), 2)
}

func TestClassic_FullFlowReachesQuestionPhase(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	_, conns := setupClassicQuestionPhase(t, room)

	withLock(room, func() {
		assert.Equal(t, 0, room.currentQuestionIndex)
		assert.Equal(t, TeamA, room.activeTeam)
		assert.Equal(t, 0, room.scores[TeamA])
		assert.Equal(t, 0, room.scores[TeamB])
		assert.True(t, room.players[room.captains[TeamA]].IsCaptain)
		assert.True(t, room.players[room.captains[TeamB]].IsCaptain)
		assert.Equal(t, "Команда A-тест", room.teamNames[TeamA])
		assert.Equal(t, "Команда B-тест", room.teamNames[TeamB])
	})
	for _, conn := range conns {
		state := conn.lastState()
		require.NotNil(t, state)
		assert.Equal(t, PhaseQuestion, state.Room.Phase)
	}
}

func TestClassic_OnlyActiveCaptainMayAnswer(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	setupClassicQuestionPhase(t, room)

	captainA := captainOf(room, TeamA)
	var teammateA string
	for _, peerID := range playersOnTeam(room, TeamA) {
		if peerID != captainA {
			teammateA = peerID
		}
	}
	captainB := captainOf(room, TeamB)
	question := currentQuestion(t, room)

	// Neither a regular teammate nor the idle team's captain locks an answer.
	submitAnswer(room, teammateA, question.CorrectIndex)
	assert.Equal(t, PhaseQuestion, roomPhase(room))
	submitAnswer(room, captainB, question.CorrectIndex)
	assert.Equal(t, PhaseQuestion, roomPhase(room))

	submitAnswer(room, captainA, question.CorrectIndex)
	assert.Equal(t, PhaseReveal, roomPhase(room))
	// Immediate correct answer: base point plus the full speed bonus.
	assert.Equal(t, 3, teamScore(room, TeamA))
}

func TestClassic_RevealScopedToPlayingTeam(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	hostID, conns := setupClassicQuestionPhase(t, room)

	captainA := captainOf(room, TeamA)
	question := currentQuestion(t, room)
	submitAnswer(room, captainA, question.CorrectIndex)
	require.Equal(t, PhaseReveal, roomPhase(room))

	hostState := conns[hostID].lastState()
	require.NotNil(t, hostState)
	require.NotNil(t, hostState.Room.LastReveal)
	assert.True(t, hostState.Room.LastReveal.IsCorrect)

	for _, peerID := range playersOnTeam(room, TeamB) {
		state := conns[peerID].lastState()
		require.NotNil(t, state)
		assert.Nil(t, state.Room.LastReveal, "team B must not see team A's reveal")
	}
	for _, peerID := range playersOnTeam(room, TeamA) {
		state := conns[peerID].lastState()
		require.NotNil(t, state)
		assert.NotNil(t, state.Room.LastReveal)
	}
}

func TestClassic_QuestionOptionsHiddenFromIdleTeam(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	hostID, conns := setupClassicQuestionPhase(t, room)

	hostState := conns[hostID].lastState()
	require.NotNil(t, hostState)
	require.NotNil(t, hostState.Room.CurrentQuestion)
	assert.NotEmpty(t, hostState.Room.CurrentQuestion.Options)

	for _, peerID := range playersOnTeam(room, TeamA) {
		state := conns[peerID].lastState()
		require.NotNil(t, state.Room.CurrentQuestion)
		assert.NotEmpty(t, state.Room.CurrentQuestion.Options)
	}
	for _, peerID := range playersOnTeam(room, TeamB) {
		state := conns[peerID].lastState()
		require.NotNil(t, state.Room.CurrentQuestion)
		assert.Empty(t, state.Room.CurrentQuestion.Options)
	}
}

func TestClassic_TurnAlternatesAcrossTeams(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	setupClassicQuestionPhase(t, room)

	question := currentQuestion(t, room)
	submitAnswer(room, captainOf(room, TeamA), question.CorrectIndex)
	require.Equal(t, PhaseReveal, roomPhase(room))

	withLock(room, room.advanceAfterRevealLocked)
	withLock(room, func() {
		assert.Equal(t, PhaseQuestion, room.phase)
		assert.Equal(t, TeamB, room.activeTeam)
		assert.Equal(t, 0, room.currentQuestionIndex, "team B plays the same question")
	})

	wrong := (question.CorrectIndex + 1) % len(question.Options)
	submitAnswer(room, captainOf(room, TeamB), wrong)
	require.Equal(t, PhaseReveal, roomPhase(room))
	assert.Equal(t, 0, teamScore(room, TeamB))

	withLock(room, room.advanceAfterRevealLocked)
	withLock(room, func() {
		assert.Equal(t, PhaseQuestion, room.phase)
		assert.Equal(t, TeamA, room.activeTeam)
		assert.Equal(t, 1, room.currentQuestionIndex)
	})
}

func TestClassic_HostSkipAdvancesQuestionForBothTeams(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	hostID, _ := setupClassicQuestionPhase(t, room)

	room.HandleMessage(hostID, []byte(`{"type":"skip-question"}`))
	withLock(room, func() {
		require.Equal(t, PhaseReveal, room.phase)
		require.NotNil(t, room.lastReveal)
		assert.True(t, room.lastReveal.SkippedByHost)
	})

	withLock(room, room.advanceAfterRevealLocked)
	withLock(room, func() {
		assert.Equal(t, PhaseQuestion, room.phase)
		assert.Equal(t, 1, room.currentQuestionIndex)
		assert.Equal(t, TeamA, room.activeTeam)
	})
}

func TestFFA_HostSkipLeavesPlayerStatsUntouched(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	hostID, _ := admitHost(t, room)
	aliceID, _ := admitPlayer(t, room, "Алиса")
	admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))
	require.Equal(t, PhaseQuestion, roomPhase(room))

	room.HandleMessage(hostID, []byte(`{"type":"skip-question"}`))

	withLock(room, func() {
		assert.Equal(t, PhaseQuestion, room.phase)
		assert.Equal(t, 1, room.currentQuestionIndex)
		require.NotEmpty(t, room.questionHistory)
		entry := room.questionHistory[0]
		assert.True(t, entry.SkippedByHost)
		require.Len(t, entry.PlayerResults, 2)
		for _, result := range entry.PlayerResults {
			assert.Equal(t, "skipped_by_host", result.Status)
		}

		// A host skip is recorded in the history only. The skipped counter
		// grows when the question clock runs out, not on a host skip.
		stat := room.playerStats[aliceID]
		require.NotNil(t, stat)
		assert.Equal(t, 0, stat.SkippedAnswers)
		assert.Equal(t, 0, stat.Answers)
	})
}

func TestFFA_StartSkipsTeamPhases(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	hostID, _ := admitHost(t, room)
	_, alice := admitPlayer(t, room, "Алиса")
	admitPlayer(t, room, "Борис")

	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	assert.Equal(t, PhaseQuestion, roomPhase(room))
	state := alice.lastState()
	require.NotNil(t, state)
	assert.Equal(t, 0, state.Room.CurrentQuestionIndex)
	require.NotNil(t, state.Room.CurrentQuestion)
	assert.NotEmpty(t, state.Room.CurrentQuestion.Options)
}

func TestFFA_AllAnswersFinalizeWithSpeedBonus(t *testing.T) {
	room, clock := newTestRoom(t, ModeFFA)
	hostID, _ := admitHost(t, room)
	aliceID, _ := admitPlayer(t, room, "Алиса")
	borisID, _ := admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	question := currentQuestion(t, room)
	submitAnswer(room, aliceID, question.CorrectIndex)
	assert.Equal(t, PhaseQuestion, roomPhase(room), "waits for the second player")

	clock.Advance(15 * time.Second)
	submitAnswer(room, borisID, question.CorrectIndex)
	require.Equal(t, PhaseReveal, roomPhase(room))

	withLock(room, func() {
		// Instant answer keeps the full bonus, the half-time answer one point.
		assert.Equal(t, 3, room.playerScores[aliceID])
		assert.Equal(t, 2, room.playerScores[borisID])
		require.NotNil(t, room.lastReveal)
		assert.Equal(t, ModeFFA, room.lastReveal.Mode)
		assert.Len(t, room.lastReveal.PlayerResults, 2)
	})
}

func TestFFA_HostAnswersIgnored(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	hostID, _ := admitHost(t, room)
	admitPlayer(t, room, "Алиса")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	question := currentQuestion(t, room)
	submitAnswer(room, hostID, question.CorrectIndex)
	assert.Equal(t, PhaseQuestion, roomPhase(room))
}

func TestFFA_GameRunsToResults(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	hostID, hostConn := admitHost(t, room)
	aliceID, aliceConn := admitPlayer(t, room, "Алиса")
	borisID, _ := admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	for range 5 {
		require.Equal(t, PhaseQuestion, roomPhase(room))
		question := currentQuestion(t, room)
		submitAnswer(room, aliceID, question.CorrectIndex)
		submitAnswer(room, borisID, (question.CorrectIndex+1)%len(question.Options))
		require.Equal(t, PhaseReveal, roomPhase(room))
		withLock(room, room.advanceAfterRevealLocked)
	}

	require.Equal(t, PhaseResults, roomPhase(room))

	hostState := hostConn.lastState()
	require.NotNil(t, hostState)
	require.NotNil(t, hostState.Room.ResultsSummary)
	assert.Contains(t, hostState.Room.ResultsSummary, "ranking")
	assert.Contains(t, hostState.Room.ResultsSummary, "hostDetails")

	aliceState := aliceConn.lastState()
	require.NotNil(t, aliceState.Room.ResultsSummary)
	assert.NotContains(t, aliceState.Room.ResultsSummary, "hostDetails")
}

func TestChaos_TeamVotesResolveByPlurality(t *testing.T) {
	room, _ := newTestRoom(t, ModeChaos)
	hostID, _ := admitHost(t, room)
	for _, name := range []string{"Алиса", "Борис", "Вера", "Глеб"} {
		admitPlayer(t, room, name)
	}
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))
	require.Equal(t, PhaseTeamReveal, roomPhase(room))

	withLock(room, room.afterTeamRevealLocked)
	require.Equal(t, PhaseTeamNaming, roomPhase(room))
	room.HandleMessage(playersOnTeam(room, TeamA)[0], []byte(`{"type":"set-team-name","name":"Ракеты"}`))
	room.HandleMessage(playersOnTeam(room, TeamB)[0], []byte(`{"type":"random-team-name"}`))
	require.Equal(t, PhaseQuestion, roomPhase(room))

	question := currentQuestion(t, room)
	wrong := (question.CorrectIndex + 1) % len(question.Options)
	for _, peerID := range playersOnTeam(room, TeamA) {
		submitAnswer(room, peerID, question.CorrectIndex)
	}
	for _, peerID := range playersOnTeam(room, TeamB) {
		submitAnswer(room, peerID, wrong)
	}
	require.Equal(t, PhaseReveal, roomPhase(room))

	withLock(room, func() {
		require.NotNil(t, room.lastReveal)
		require.NotNil(t, room.lastReveal.ChaosTeamResults[TeamA])
		require.NotNil(t, room.lastReveal.ChaosTeamResults[TeamB])
		assert.True(t, room.lastReveal.ChaosTeamResults[TeamA].IsCorrect)
		assert.False(t, room.lastReveal.ChaosTeamResults[TeamB].IsCorrect)
		assert.Equal(t, 3, room.scores[TeamA])
		assert.Equal(t, 0, room.scores[TeamB])
	})
}

// setupChaosQuestionPhase drives a chaos room with two teams of two
// through team reveal and naming into the first question.
func setupChaosQuestionPhase(t *testing.T, room *Room) (hostID string) {
	t.Helper()
	hostID, _ = admitHost(t, room)
	for _, name := range []string{"Алиса", "Борис", "Вера", "Глеб"} {
		admitPlayer(t, room, name)
	}
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))
	withLock(room, room.afterTeamRevealLocked)
	require.Equal(t, PhaseTeamNaming, roomPhase(room))
	room.HandleMessage(playersOnTeam(room, TeamA)[0], []byte(`{"type":"random-team-name"}`))
	room.HandleMessage(playersOnTeam(room, TeamB)[0], []byte(`{"type":"random-team-name"}`))
	require.Equal(t, PhaseQuestion, roomPhase(room))
	return hostID
}

func TestChaos_TiedTeamVoteResolvedRandomly(t *testing.T) {
	var firstPicks, secondPicks int

	for seed := range int64(40) {
		room, _ := newTestRoom(t, ModeChaos)
		setupChaosQuestionPhase(t, room)

		question := currentQuestion(t, room)
		first := question.CorrectIndex
		second := (question.CorrectIndex + 1) % len(question.Options)
		withLock(room, func() {
			room.deps.Rand = mrand.New(mrand.NewSource(seed))
		})

		a := playersOnTeam(room, TeamA)
		b := playersOnTeam(room, TeamB)
		submitAnswer(room, a[0], first)
		submitAnswer(room, a[1], second)
		submitAnswer(room, b[0], second)
		submitAnswer(room, b[1], second)
		require.Equal(t, PhaseReveal, roomPhase(room))

		withLock(room, func() {
			require.NotNil(t, room.lastReveal)
			result := room.lastReveal.ChaosTeamResults[TeamA]
			require.NotNil(t, result)
			assert.True(t, result.TieResolvedRandomly)
			require.NotNil(t, result.SelectedIndex)
			assert.Contains(t, []int{first, second}, *result.SelectedIndex)
			assert.Equal(t, map[string]int{
				fmt.Sprintf("%d", first):  1,
				fmt.Sprintf("%d", second): 1,
			}, result.VoteCounts)

			// A unanimous team never reports a tie.
			assert.False(t, room.lastReveal.ChaosTeamResults[TeamB].TieResolvedRandomly)

			if *result.SelectedIndex == first {
				firstPicks++
			} else {
				secondPicks++
			}
		})
	}

	// The tied options each win a fair share of the 40 seeded draws.
	assert.GreaterOrEqual(t, firstPicks, 8)
	assert.GreaterOrEqual(t, secondPicks, 8)
}

func TestChaos_TeamGameStopsWhenTeamEmpties(t *testing.T) {
	room, _ := newTestRoom(t, ModeChaos)
	hostID, hostConn := admitHost(t, room)
	aliceID, aliceConn := admitPlayer(t, room, "Алиса")
	borisID, borisConn := admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))
	withLock(room, room.afterTeamRevealLocked)
	require.Equal(t, PhaseTeamNaming, roomPhase(room))
	room.HandleMessage(aliceID, []byte(`{"type":"random-team-name"}`))
	room.HandleMessage(borisID, []byte(`{"type":"random-team-name"}`))
	require.Equal(t, PhaseQuestion, roomPhase(room))

	leaverID, leaverConn := aliceID, aliceConn
	if teamOf(room, aliceID) != TeamB {
		leaverID, leaverConn = borisID, borisConn
	}
	room.HandleDisconnect(leaverID, leaverConn)

	assert.Equal(t, PhaseLobby, roomPhase(room))
	state := hostConn.lastState()
	require.NotNil(t, state)
	var stopped bool
	for _, msg := range state.Room.Chat {
		if msg.Kind == "system" {
			stopped = true
			assert.Contains(t, msg.Text, "Игра остановлена")
		}
	}
	assert.True(t, stopped)
}

func TestNewGame_ResetsToLobby(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	hostID, _ := admitHost(t, room)
	aliceID, aliceConn := admitPlayer(t, room, "Алиса")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))
	require.Equal(t, PhaseQuestion, roomPhase(room))

	// Only the host may restart.
	room.HandleMessage(aliceID, []byte(`{"type":"new-game"}`))
	assert.Equal(t, PhaseQuestion, roomPhase(room))

	room.HandleMessage(hostID, []byte(`{"type":"new-game"}`))
	assert.Equal(t, PhaseLobby, roomPhase(room))
	withLock(room, func() {
		assert.Equal(t, -1, room.currentQuestionIndex)
		assert.Empty(t, room.playerScores)
	})

	state := aliceConn.lastState()
	require.NotNil(t, state)
	assert.Equal(t, PhaseLobby, state.Room.Phase)
}

func TestPing_RepliesWithPong(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	peerID, conn := admitPlayer(t, room, "Алиса")

	room.HandleMessage(peerID, []byte(`{"type":"ping"}`))
	pong := conn.lastMapFrame("pong")
	require.NotNil(t, pong)
	assert.NotNil(t, pong["serverTime"])
}
