package game

import (
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/catalog"
	"github.com/quizbattle/quizroom/internal/v1/store"
)

// snapshotPlayer is the roster entry stored with a snapshot. It exists
// for operators inspecting stored rooms; connections never survive a
// restart, so apply ignores it.
type snapshotPlayer struct {
	PeerID      string  `json:"peerId"`
	Name        string  `json:"name"`
	Team        *Team   `json:"team"`
	IsHost      bool    `json:"isHost"`
	IsSpectator bool    `json:"isSpectator"`
	IsCaptain   bool    `json:"isCaptain"`
	Avatar      *string `json:"avatar"`
}

// snapshotState is the persisted room state. Pointer fields keep null
// round-tripping intact.
type snapshotState struct {
	StateVersion         int64                  `json:"stateVersion"`
	LastEventID          int                    `json:"lastEventId"`
	DeadlineEpochMs      *int64                 `json:"deadlineEpochMs"`
	Topic                string                 `json:"topic"`
	DifficultyMode       catalog.DifficultyMode `json:"difficultyMode"`
	GameMode             GameMode               `json:"gameMode"`
	QuestionCount        int                    `json:"questionCount"`
	Questions            []catalog.Question     `json:"questions"`
	Phase                string                 `json:"phase"`
	CurrentQuestionIndex int                    `json:"currentQuestionIndex"`
	ActiveTeam           string                 `json:"activeTeam"`

	QuestionEndsAt      *int64 `json:"questionEndsAt"`
	TeamRevealEndsAt    *int64 `json:"teamRevealEndsAt"`
	CaptainVoteEndsAt   *int64 `json:"captainVoteEndsAt"`
	TeamNamingEndsAt    *int64 `json:"teamNamingEndsAt"`
	RevealEndsAt        *int64 `json:"revealEndsAt"`
	HostReconnectEndsAt *int64 `json:"hostReconnectEndsAt"`

	HostTokenHash                string       `json:"hostTokenHash"`
	RoomPasswordHash             string       `json:"roomPasswordHash"`
	DisconnectedHostName         *string      `json:"disconnectedHostName"`
	DisconnectedHostExpectedName *string      `json:"disconnectedHostExpectedName"`
	PausedState                  *PausedState `json:"pausedState"`
	ManualPauseByName            *string      `json:"manualPauseByName"`

	ActiveAnswer         *ActiveAnswer          `json:"activeAnswer"`
	AnswerSubmissions    map[string]*Submission `json:"answerSubmissions"`
	SkipRequesters       []string               `json:"skipRequesters"`
	SkipRequestStatus    string                 `json:"skipRequestStatus"`
	SkipRequestMessageID *string                `json:"skipRequestMessageId"`
	LastReveal           *RevealRecord          `json:"lastReveal"`

	Scores                map[Team]int           `json:"scores"`
	PlayerScores          map[string]int         `json:"playerScores"`
	PlayerStats           map[string]*PlayerStat `json:"playerStats"`
	QuestionHistory       []QuestionHistoryEntry `json:"questionHistory"`
	EventHistory          []EventEntry           `json:"eventHistory"`
	Chat                  []ChatMessage          `json:"chat"`
	ChatModerationStrikes map[string]int         `json:"chatModerationStrikes"`

	Captains              map[Team]*string          `json:"captains"`
	CaptainVotes          map[Team]map[string]int   `json:"captainVotes"`
	CaptainBallots        map[Team]map[string]string `json:"captainBallots"`
	CaptainVoteReadyTeams map[Team]bool             `json:"captainVoteReadyTeams"`
	TeamNamingReadyTeams  map[Team]bool             `json:"teamNamingReadyTeams"`
	TeamNames             map[Team]string           `json:"teamNames"`
	UsedTeamNames         []string                  `json:"usedTeamNames"`

	Players []snapshotPlayer `json:"players"`
}

// phaseDeadlineEpochMsLocked is the single client-facing deadline of the
// current phase.
func (r *Room) phaseDeadlineEpochMsLocked() *int64 {
	switch r.phase {
	case PhaseQuestion:
		return r.questionEndsAt
	case PhaseTeamReveal:
		return r.teamRevealEndsAt
	case PhaseCaptainVote:
		return r.captainVoteEndsAt
	case PhaseTeamNaming:
		return r.teamNamingEndsAt
	case PhaseReveal:
		return r.revealEndsAt
	case PhaseHostReconnect:
		return r.hostReconnectEndsAt
	}
	return nil
}

func (r *Room) serializeSnapshotLocked() *snapshotState {
	players := make([]snapshotPlayer, 0, len(r.players))
	for _, p := range r.playersInOrderLocked() {
		players = append(players, snapshotPlayer{
			PeerID:      p.PeerID,
			Name:        p.Name,
			Team:        teamPtr(p.Team),
			IsHost:      p.IsHost,
			IsSpectator: p.IsSpectator,
			IsCaptain:   p.IsCaptain,
			Avatar:      p.Avatar,
		})
	}

	captains := make(map[Team]*string, 2)
	for _, team := range TeamKeys {
		if peerID := r.captains[team]; peerID != "" {
			captains[team] = strPtr(peerID)
		} else {
			captains[team] = nil
		}
	}

	skipRequesters := make([]string, 0, len(r.skipRequesters))
	for peerID := range r.skipRequesters {
		skipRequesters = append(skipRequesters, peerID)
	}
	sort.Strings(skipRequesters)

	usedTeamNames := make([]string, 0, len(r.usedTeamNames))
	for name := range r.usedTeamNames {
		usedTeamNames = append(usedTeamNames, name)
	}
	sort.Strings(usedTeamNames)

	version := r.stateVersion
	if version < 1 {
		version = 1
	}

	return &snapshotState{
		StateVersion:         version,
		LastEventID:          len(r.eventHistory),
		DeadlineEpochMs:      r.phaseDeadlineEpochMsLocked(),
		Topic:                r.topic,
		DifficultyMode:       r.difficultyMode,
		GameMode:             r.gameMode,
		QuestionCount:        r.questionCount,
		Questions:            r.questions,
		Phase:                string(r.phase),
		CurrentQuestionIndex: r.currentQuestionIndex,
		ActiveTeam:           string(r.activeTeam),

		QuestionEndsAt:      r.questionEndsAt,
		TeamRevealEndsAt:    r.teamRevealEndsAt,
		CaptainVoteEndsAt:   r.captainVoteEndsAt,
		TeamNamingEndsAt:    r.teamNamingEndsAt,
		RevealEndsAt:        r.revealEndsAt,
		HostReconnectEndsAt: r.hostReconnectEndsAt,

		HostTokenHash:                r.hostTokenHash,
		RoomPasswordHash:             r.roomPasswordHash,
		DisconnectedHostName:         r.disconnectedHostName,
		DisconnectedHostExpectedName: r.disconnectedHostExpectedName,
		PausedState:                  r.pausedState,
		ManualPauseByName:            r.manualPauseByName,

		ActiveAnswer:         r.activeAnswer,
		AnswerSubmissions:    r.answerSubmissions,
		SkipRequesters:       skipRequesters,
		SkipRequestStatus:    string(r.skipRequestStatus),
		SkipRequestMessageID: r.skipRequestMessageID,
		LastReveal:           r.lastReveal,

		Scores:                r.scores,
		PlayerScores:          r.playerScores,
		PlayerStats:           r.playerStats,
		QuestionHistory:       r.questionHistory,
		EventHistory:          r.eventHistory,
		Chat:                  r.chat,
		ChatModerationStrikes: r.chatModerationStrikes,

		Captains:              captains,
		CaptainVotes:          r.captainVotes,
		CaptainBallots:        r.captainBallots,
		CaptainVoteReadyTeams: r.captainVoteReadyTeams,
		TeamNamingReadyTeams:  r.teamNamingReadyTeams,
		TeamNames:             r.teamNames,
		UsedTeamNames:         usedTeamNames,

		Players: players,
	}
}

// serializeStoreSnapshotLocked wraps the state for the tiered store.
func (r *Room) serializeStoreSnapshotLocked() *store.Snapshot {
	state, err := json.Marshal(r.serializeSnapshotLocked())
	if err != nil {
		r.logger.Error("failed to encode room snapshot", zap.Error(err))
		state = []byte("{}")
	}
	return &store.Snapshot{
		RoomID:        r.roomID,
		Topic:         r.topic,
		QuestionCount: r.questionCount,
		State:         state,
		UpdatedAt:     time.UnixMilli(r.nowMs()).UTC(),
	}
}

// ApplySnapshot restores a stored room. Nobody is connected after a
// restart, so any mid-game phase collapses back to an empty lobby; only
// a lobby snapshot keeps its configuration untouched.
func (r *Room) ApplySnapshot(raw json.RawMessage) error {
	var state snapshotState
	if err := json.Unmarshal(raw, &state); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.applySnapshotLocked(&state)
	if r.phase != PhaseLobby {
		r.resetRoomForEmptyConnectionsLocked()
	}
	return nil
}

func (r *Room) applySnapshotLocked(state *snapshotState) {
	if state.Topic != "" {
		r.topic = state.Topic
		if r.deps.Catalog != nil {
			r.topic = r.deps.Catalog.NormalizeTopic(state.Topic)
		}
	}
	r.difficultyMode = catalog.NormalizeDifficultyMode(string(state.DifficultyMode))
	r.gameMode = NormalizeGameMode(string(state.GameMode))
	r.questionCount = catalog.ClampQuestionCount(state.QuestionCount)

	if len(state.Questions) > 0 {
		r.questions = state.Questions
	} else {
		r.questions = r.createQuestions()
	}

	if ValidPhase(state.Phase) {
		r.phase = Phase(state.Phase)
	}
	r.currentQuestionIndex = state.CurrentQuestionIndex
	if state.ActiveTeam == string(TeamA) || state.ActiveTeam == string(TeamB) {
		r.activeTeam = Team(state.ActiveTeam)
	}

	r.questionEndsAt = state.QuestionEndsAt
	r.teamRevealEndsAt = state.TeamRevealEndsAt
	r.captainVoteEndsAt = state.CaptainVoteEndsAt
	r.teamNamingEndsAt = state.TeamNamingEndsAt
	r.revealEndsAt = state.RevealEndsAt
	r.hostReconnectEndsAt = state.HostReconnectEndsAt

	r.disconnectedHostName = state.DisconnectedHostName
	r.disconnectedHostExpectedName = state.DisconnectedHostExpectedName
	if state.HostTokenHash != "" {
		r.hostTokenHash = state.HostTokenHash
	}
	if state.RoomPasswordHash != "" {
		r.roomPasswordHash = state.RoomPasswordHash
	}
	r.pausedState = state.PausedState
	r.manualPauseByName = state.ManualPauseByName
	r.activeAnswer = state.ActiveAnswer

	r.answerSubmissions = make(map[string]*Submission)
	for peerID, submission := range state.AnswerSubmissions {
		if peerID != "" && submission != nil {
			r.answerSubmissions[peerID] = submission
		}
	}

	r.skipRequesters = make(map[string]struct{})
	for _, peerID := range state.SkipRequesters {
		if peerID != "" {
			r.skipRequesters[peerID] = struct{}{}
		}
	}
	switch SkipRequestStatus(state.SkipRequestStatus) {
	case SkipPending, SkipRejected:
		r.skipRequestStatus = SkipRequestStatus(state.SkipRequestStatus)
	default:
		r.skipRequestStatus = SkipIdle
	}
	r.skipRequestMessageID = state.SkipRequestMessageID
	r.lastReveal = state.LastReveal

	r.scores = map[Team]int{TeamA: state.Scores[TeamA], TeamB: state.Scores[TeamB]}
	r.playerScores = make(map[string]int)
	for peerID, score := range state.PlayerScores {
		r.playerScores[peerID] = score
	}
	r.playerStats = make(map[string]*PlayerStat)
	for peerID, stat := range state.PlayerStats {
		if stat != nil {
			r.playerStats[peerID] = stat
		}
	}

	r.questionHistory = historyTail(state.QuestionHistory, QuestionHistoryLimit)
	r.eventHistory = historyTail(state.EventHistory, EventHistoryLimit)
	r.chat = historyTail(state.Chat, ChatHistoryLimit)

	r.chatModerationStrikes = make(map[string]int)
	for peerID, strikes := range state.ChatModerationStrikes {
		if strikes > 0 {
			r.chatModerationStrikes[peerID] = strikes
		}
	}

	r.captains = map[Team]string{}
	for _, team := range TeamKeys {
		if peerID := state.Captains[team]; peerID != nil && *peerID != "" {
			r.captains[team] = *peerID
		}
	}
	r.captainVotes = map[Team]map[string]int{TeamA: {}, TeamB: {}}
	for _, team := range TeamKeys {
		for peerID, count := range state.CaptainVotes[team] {
			if peerID != "" && count > 0 {
				r.captainVotes[team][peerID] = count
			}
		}
	}
	r.captainBallots = map[Team]map[string]string{TeamA: {}, TeamB: {}}
	for _, team := range TeamKeys {
		for voter, candidate := range state.CaptainBallots[team] {
			if voter != "" && candidate != "" {
				r.captainBallots[team][voter] = candidate
			}
		}
	}
	r.captainVoteReadyTeams = map[Team]bool{
		TeamA: state.CaptainVoteReadyTeams[TeamA],
		TeamB: state.CaptainVoteReadyTeams[TeamB],
	}
	r.teamNamingReadyTeams = map[Team]bool{
		TeamA: state.TeamNamingReadyTeams[TeamA],
		TeamB: state.TeamNamingReadyTeams[TeamB],
	}

	r.teamNames = map[Team]string{
		TeamA: SanitizeTeamName(state.TeamNames[TeamA], "Команда A"),
		TeamB: SanitizeTeamName(state.TeamNames[TeamB], "Команда B"),
	}
	r.usedTeamNames = make(map[string]struct{})
	for _, name := range state.UsedTeamNames {
		if normalized := NormalizeTeamName(name); normalized != "" {
			r.usedTeamNames[normalized] = struct{}{}
		}
	}

	if state.StateVersion > 1 {
		r.stateVersion = state.StateVersion
	} else {
		r.stateVersion = 1
	}
}

// resetRoomForEmptyConnectionsLocked rewinds a restored room to a clean
// lobby, keeping only its identity and credentials.
func (r *Room) resetRoomForEmptyConnectionsLocked() {
	r.clearTimersLocked()
	r.players = make(map[string]*Player)
	r.playerOrder = nil
	r.playerTokens = make(map[string]string)
	r.hostPeerID = ""

	r.phase = PhaseLobby
	r.currentQuestionIndex = -1
	r.activeTeam = TeamA
	r.clearPhaseDeadlinesLocked()
	r.hostReconnectEndsAt = nil
	r.disconnectedHostName = nil
	r.disconnectedHostExpectedName = nil
	r.pausedState = nil
	r.manualPauseByName = nil

	r.activeAnswer = nil
	r.answerSubmissions = make(map[string]*Submission)
	r.skipRequesters = make(map[string]struct{})
	r.skipRequestStatus = SkipIdle
	r.skipRequestMessageID = nil
	r.lastReveal = nil
	r.chat = nil

	r.scores = map[Team]int{TeamA: 0, TeamB: 0}
	r.playerScores = make(map[string]int)
	r.playerStats = make(map[string]*PlayerStat)
	r.questionHistory = nil
	r.eventHistory = nil
	r.chatModerationStrikes = make(map[string]int)

	r.resetCaptainStateLocked()
	r.teamNames = map[Team]string{TeamA: "Команда A", TeamB: "Команда B"}
	r.questions = r.createQuestions()
}
