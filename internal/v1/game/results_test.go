package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizbattle/quizroom/internal/v1/store"
)

func TestBuildFFARanking_SharesPlacesOnTies(t *testing.T) {
	rows := []ResultPlayer{
		{PeerID: "p1", Name: "Алиса", Points: 9, CorrectAnswers: 4},
		{PeerID: "p2", Name: "Борис", Points: 9, CorrectAnswers: 4},
		{PeerID: "p3", Name: "Вера", Points: 5, CorrectAnswers: 3},
		{PeerID: "p4", Name: "Глеб", Points: 5, CorrectAnswers: 2},
	}

	ranking := buildFFARanking(rows)
	require.Len(t, ranking, 4)
	assert.Equal(t, 1, ranking[0].Place)
	assert.Equal(t, 1, ranking[1].Place)
	assert.Equal(t, 3, ranking[2].Place)
	// Same points but fewer correct answers is a distinct place.
	assert.Equal(t, 4, ranking[3].Place)
}

func TestWinnerTeam(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	withLock(room, func() {
		room.scores = map[Team]int{TeamA: 4, TeamB: 2}
		assert.Equal(t, TeamA, room.winnerTeamLocked())
		room.scores = map[Team]int{TeamA: 1, TeamB: 5}
		assert.Equal(t, TeamB, room.winnerTeamLocked())
		room.scores = map[Team]int{TeamA: 3, TeamB: 3}
		assert.Equal(t, Team(""), room.winnerTeamLocked())
	})
}

func TestBuildGameResult_Classic(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	admitHost(t, room)
	admitPlayer(t, room, "Алиса")
	admitPlayer(t, room, "Борис")

	var result *store.GameResult
	withLock(room, func() {
		room.teamNames = map[Team]string{TeamA: "Ракеты", TeamB: "Кометы"}
		room.scores = map[Team]int{TeamA: 7, TeamB: 4}
		result = room.buildGameResultLocked()
	})

	assert.Equal(t, "ROOM01", result.RoomID)
	assert.Equal(t, "Ракеты", result.TeamAName)
	assert.Equal(t, "Кометы", result.TeamBName)
	assert.Equal(t, 7, result.ScoreA)
	assert.Equal(t, 4, result.ScoreB)
	assert.Equal(t, string(TeamA), result.WinnerTeam)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	assert.Contains(t, payload, "captainContribution")
	assert.Contains(t, payload, "teamNames")
	assert.Contains(t, payload, "questionHistory")
}

func TestBuildGameResult_FFAUsesLeaderColumns(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	admitHost(t, room)
	aliceID, _ := admitPlayer(t, room, "Алиса")
	borisID, _ := admitPlayer(t, room, "Борис")

	var result *store.GameResult
	withLock(room, func() {
		room.playerScores = map[string]int{aliceID: 9, borisID: 6}
		result = room.buildGameResultLocked()
	})

	assert.Equal(t, "Лидер: Алиса", result.TeamAName)
	assert.Equal(t, "2 место: Борис", result.TeamBName)
	assert.Equal(t, 9, result.ScoreA)
	assert.Equal(t, 6, result.ScoreB)
	assert.Equal(t, string(TeamA), result.WinnerTeam)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	assert.Contains(t, payload, "ranking")
	assert.Equal(t, aliceID, payload["leaderPeerId"])
}

func TestBuildGameResult_FFADrawHasNoWinner(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	aliceID, _ := admitPlayer(t, room, "Алиса")
	borisID, _ := admitPlayer(t, room, "Борис")

	var result *store.GameResult
	withLock(room, func() {
		room.playerScores = map[string]int{aliceID: 5, borisID: 5}
		result = room.buildGameResultLocked()
	})
	assert.Empty(t, result.WinnerTeam)
}

func TestResultPlayers_SortedByModeSpecificOrder(t *testing.T) {
	room, _ := newTestRoom(t, ModeFFA)
	aliceID, _ := admitPlayer(t, room, "Алиса")
	borisID, _ := admitPlayer(t, room, "Борис")

	withLock(room, func() {
		room.playerStats = map[string]*PlayerStat{
			aliceID: {PeerID: aliceID, Name: "Алиса", Points: 3, CorrectAnswers: 2},
			borisID: {PeerID: borisID, Name: "Борис", Points: 8, CorrectAnswers: 4},
		}
		room.playerScores = map[string]int{aliceID: 3, borisID: 8}

		rows := room.buildResultPlayersLocked()
		require.Len(t, rows, 2)
		assert.Equal(t, borisID, rows[0].PeerID)
		assert.Equal(t, aliceID, rows[1].PeerID)
	})
}

func TestPlayerStats_RecordedDuringFFAGame(t *testing.T) {
	room, clock := newTestRoom(t, ModeFFA)
	hostID, _ := admitHost(t, room)
	aliceID, _ := admitPlayer(t, room, "Алиса")
	borisID, _ := admitPlayer(t, room, "Борис")
	room.HandleMessage(hostID, []byte(`{"type":"start-game"}`))

	question := currentQuestion(t, room)
	clock.Advance(3 * time.Second)
	submitAnswer(room, aliceID, question.CorrectIndex)
	submitAnswer(room, borisID, (question.CorrectIndex+1)%len(question.Options))
	require.Equal(t, PhaseReveal, roomPhase(room))

	withLock(room, func() {
		alice := room.playerStats[aliceID]
		require.NotNil(t, alice)
		assert.Equal(t, 1, alice.Answers)
		assert.Equal(t, 1, alice.CorrectAnswers)
		assert.Equal(t, 0, alice.WrongAnswers)
		assert.Positive(t, alice.Points)
		require.NotNil(t, alice.FastestResponseMs)
		assert.Equal(t, int64(3000), *alice.FastestResponseMs)

		boris := room.playerStats[borisID]
		require.NotNil(t, boris)
		assert.Equal(t, 1, boris.WrongAnswers)
		assert.Equal(t, 0, boris.Points)
	})
}

func TestEventHistory_Trimmed(t *testing.T) {
	room, _ := newTestRoom(t, ModeClassic)
	withLock(room, func() {
		for range EventHistoryLimit + 50 {
			room.appendResultEventLocked("событие", "test", nil)
		}
		assert.Len(t, room.eventHistory, EventHistoryLimit)
	})
}
