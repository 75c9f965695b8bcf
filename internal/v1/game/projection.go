package game

// The projection layer renders one viewer-scoped state-sync frame. All
// scoping rules live here: option masking, reveal and vote visibility,
// chat filtering and the host-only results details.

type mascotSkins struct {
	Cat *string `json:"cat"`
	Dog *string `json:"dog"`
}

type victoryEffects struct {
	Front *string `json:"front"`
	Back  *string `json:"back"`
}

type statePlayer struct {
	PeerID         string         `json:"peerId"`
	AuthUserID     *int64         `json:"authUserId"`
	Name           string         `json:"name"`
	Team           *Team          `json:"team"`
	IsHost         bool           `json:"isHost"`
	IsSpectator    bool           `json:"isSpectator"`
	IsCaptain      bool           `json:"isCaptain"`
	Avatar         *string        `json:"avatar"`
	ProfileFrame   *string        `json:"profileFrame"`
	MascotSkins    mascotSkins    `json:"mascotSkins"`
	VictoryEffects victoryEffects `json:"victoryEffects"`
}

type stateChatMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
}

type questionView struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty"`
}

type answerProgressView struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

type myAnswerView struct {
	SelectedIndex       int   `json:"selectedIndex"`
	IsCorrect           bool  `json:"isCorrect"`
	BasePoints          int   `json:"basePoints"`
	SpeedBonus          int   `json:"speedBonus"`
	TimeRemainingMs     int64 `json:"timeRemainingMs"`
	PointsAwarded       int   `json:"pointsAwarded"`
	ProjectedTotalScore int   `json:"projectedTotalScore"`
}

type chaosProgressView struct {
	Submitted      bool         `json:"submitted"`
	AnsweredByTeam map[Team]int `json:"answeredByTeam"`
	TotalByTeam    map[Team]int `json:"totalByTeam"`
}

type skipRequestView struct {
	Count       int               `json:"count"`
	MeRequested bool              `json:"meRequested"`
	Names       []string          `json:"names"`
	Status      SkipRequestStatus `json:"status"`
	Notice      *string           `json:"notice"`
	MessageID   *string           `json:"messageId"`
}

type voteProgress struct {
	Votes int `json:"votes"`
	Total int `json:"total"`
}

type roomStateView struct {
	RoomID               string                    `json:"roomId"`
	Topic                string                    `json:"topic"`
	DifficultyMode       string                    `json:"difficultyMode"`
	GameMode             GameMode                  `json:"gameMode"`
	QuestionCount        int                       `json:"questionCount"`
	StateVersion         int64                     `json:"stateVersion"`
	LastEventID          int                       `json:"lastEventId"`
	DeadlineEpochMs      *int64                    `json:"deadlineEpochMs"`
	Phase                Phase                     `json:"phase"`
	CurrentQuestionIndex int                       `json:"currentQuestionIndex"`
	ActiveTeam           Team                      `json:"activeTeam"`
	QuestionEndsAt       *int64                    `json:"questionEndsAt"`
	TeamRevealEndsAt     *int64                    `json:"teamRevealEndsAt"`
	CaptainVoteEndsAt    *int64                    `json:"captainVoteEndsAt"`
	TeamNamingEndsAt     *int64                    `json:"teamNamingEndsAt"`
	HostReconnectEndsAt  *int64                    `json:"hostReconnectEndsAt"`
	DisconnectedHostName *string                   `json:"disconnectedHostName"`
	ManualPauseByName    *string                   `json:"manualPauseByName"`
	Scores               map[Team]int              `json:"scores"`
	PlayerScores         map[string]int            `json:"playerScores"`
	HasPassword          bool                      `json:"hasPassword"`
	TeamNames            map[Team]string           `json:"teamNames"`
	Captains             map[Team]*string          `json:"captains"`
	CaptainVotes         map[Team]map[string]int   `json:"captainVotes"`
	MyCaptainVote        *string                   `json:"myCaptainVote"`
	CaptainVoteReady     map[Team]bool             `json:"captainVoteReadyTeams"`
	CaptainVoteProgress  map[Team]voteProgress     `json:"captainVoteProgress"`
	TeamNamingReady      map[Team]bool             `json:"teamNamingReadyTeams"`
	Players              []statePlayer             `json:"players"`
	CurrentQuestion      *questionView             `json:"currentQuestion"`
	LastReveal           *RevealRecord             `json:"lastReveal"`
	AnswerProgress       *answerProgressView       `json:"answerProgress"`
	MyAnswer             *myAnswerView             `json:"myAnswer"`
	PendingPlayers       []string                  `json:"pendingPlayers"`
	ChaosProgress        *chaosProgressView        `json:"chaosProgress"`
	SkipRequest          *skipRequestView          `json:"skipRequest"`
	ResultsSummary       map[string]any            `json:"resultsSummary"`
	Chat                 []stateChatMessage        `json:"chat"`
}

type statePayload struct {
	Type       string        `json:"type"`
	ServerTime int64         `json:"serverTime"`
	Room       roomStateView `json:"room"`
}

// visibleTeamForViewerLocked hides team assignments until the game shows
// them: never in ffa, never in the lobby, and not from teamless players.
func (r *Room) visibleTeamForViewerLocked(viewer, target *Player) *Team {
	if r.gameMode == ModeFFA {
		return nil
	}
	isPausedLobby := r.phase == PhaseHostReconnect &&
		r.pausedState != nil && r.pausedState.Phase == PhaseLobby
	if r.phase == PhaseLobby || isPausedLobby {
		return nil
	}
	if viewer.IsHost || viewer.IsSpectator {
		return teamPtr(target.Team)
	}
	if viewer.Team != TeamA && viewer.Team != TeamB {
		return nil
	}
	return teamPtr(target.Team)
}

func (r *Room) buildQuestionForViewerLocked(viewer *Player) *questionView {
	if r.currentQuestionIndex < 0 || r.currentQuestionIndex >= len(r.questions) {
		return nil
	}
	question := r.questions[r.currentQuestionIndex]

	canSeeOptions := false
	switch r.phase {
	case PhaseQuestion:
		if r.gameMode == ModeFFA || r.gameMode == ModeChaos {
			canSeeOptions = true
		} else {
			canSeeOptions = viewer.IsHost || viewer.IsSpectator || viewer.Team == r.activeTeam
		}
	case PhaseReveal:
		if r.gameMode == ModeFFA || r.gameMode == ModeChaos {
			canSeeOptions = true
		} else {
			canSeeOptions = viewer.IsHost || viewer.IsSpectator ||
				(r.lastReveal != nil && r.lastReveal.Team != nil && *r.lastReveal.Team == viewer.Team && viewer.Team != "")
		}
	case PhaseResults, PhaseTeamNaming, PhaseCaptainVote, PhaseTeamReveal, PhaseHostReconnect:
		canSeeOptions = true
	}

	options := []string{}
	if canSeeOptions {
		options = append(options, question.Options...)
	}
	difficulty := string(question.Difficulty)
	switch question.Difficulty {
	case "easy", "medium", "hard":
	default:
		difficulty = "medium"
	}
	return &questionView{
		ID:         question.ID,
		Text:       question.Text,
		Options:    options,
		Difficulty: difficulty,
	}
}

// buildRevealForViewerLocked: team modes scope the reveal to the playing
// team; skips and the host's view are always full.
func (r *Room) buildRevealForViewerLocked(viewer *Player) *RevealRecord {
	if r.phase == PhaseResults && !viewer.IsHost {
		return nil
	}
	if r.lastReveal == nil {
		return nil
	}
	if r.gameMode == ModeFFA || r.gameMode == ModeChaos {
		return r.lastReveal
	}
	if r.lastReveal.Team == nil || (*r.lastReveal.Team != TeamA && *r.lastReveal.Team != TeamB) {
		return nil
	}
	if r.lastReveal.SkippedByHost {
		return r.lastReveal
	}
	if viewer.IsHost || viewer.IsSpectator {
		return r.lastReveal
	}
	if viewer.Team != *r.lastReveal.Team {
		return nil
	}
	return r.lastReveal
}

func (r *Room) buildAnswerProgressLocked() *answerProgressView {
	if r.phase != PhaseQuestion {
		return nil
	}
	return &answerProgressView{
		Answered: len(r.answerSubmissions),
		Total:    len(r.answerEligiblePlayersLocked()),
	}
}

// buildFFAAnswerForViewerLocked projects the viewer's own pending score
// while the question is still open.
func (r *Room) buildFFAAnswerForViewerLocked(viewer *Player) *myAnswerView {
	if r.gameMode != ModeFFA || r.phase != PhaseQuestion || viewer.IsHost || viewer.IsSpectator {
		return nil
	}
	if r.currentQuestionIndex < 0 || r.currentQuestionIndex >= len(r.questions) {
		return nil
	}
	submission := r.answerSubmissions[viewer.PeerID]
	if submission == nil {
		return nil
	}

	question := r.questions[r.currentQuestionIndex]
	answeredAt := submission.AnsweredAt
	if answeredAt <= 0 {
		answeredAt = r.nowMs()
	}
	questionEndsAt := r.nowMs()
	if r.questionEndsAt != nil {
		questionEndsAt = *r.questionEndsAt
	}
	remainingMs := max64(0, questionEndsAt-answeredAt)
	isCorrect := submission.SelectedIndex == question.CorrectIndex
	speedBonus := 0
	basePoints := 0
	if isCorrect {
		speedBonus = CalculateSpeedBonus(remainingMs)
		basePoints = BaseCorrectPoints
	}
	shownRemaining := remainingMs
	if !isCorrect {
		shownRemaining = 0
	}
	pointsAwarded := basePoints + speedBonus
	return &myAnswerView{
		SelectedIndex:       submission.SelectedIndex,
		IsCorrect:           isCorrect,
		BasePoints:          basePoints,
		SpeedBonus:          speedBonus,
		TimeRemainingMs:     shownRemaining,
		PointsAwarded:       pointsAwarded,
		ProjectedTotalScore: r.playerScores[viewer.PeerID] + pointsAwarded,
	}
}

// buildFFAPendingPlayersLocked names who the viewer is still waiting on,
// shown only after the viewer answered.
func (r *Room) buildFFAPendingPlayersLocked(viewer *Player) []string {
	pending := []string{}
	if r.gameMode != ModeFFA || r.phase != PhaseQuestion {
		return pending
	}
	if viewer.IsHost || viewer.IsSpectator {
		return pending
	}
	if _, submitted := r.answerSubmissions[viewer.PeerID]; !submitted {
		return pending
	}
	for _, p := range r.activeNonHostPlayersLocked() {
		if _, submitted := r.answerSubmissions[p.PeerID]; !submitted {
			pending = append(pending, p.Name)
		}
	}
	return pending
}

func (r *Room) buildChaosProgressLocked(viewer *Player) *chaosProgressView {
	if r.gameMode != ModeChaos || r.phase != PhaseQuestion {
		return nil
	}
	answeredByTeam := map[Team]int{TeamA: 0, TeamB: 0}
	for peerID := range r.answerSubmissions {
		p, ok := r.players[peerID]
		if !ok || p.IsHost || p.IsSpectator || (p.Team != TeamA && p.Team != TeamB) {
			continue
		}
		answeredByTeam[p.Team]++
	}
	_, submitted := r.answerSubmissions[viewer.PeerID]
	return &chaosProgressView{
		Submitted:      submitted,
		AnsweredByTeam: answeredByTeam,
		TotalByTeam: map[Team]int{
			TeamA: len(r.activeTeamPlayersLocked(TeamA)),
			TeamB: len(r.activeTeamPlayersLocked(TeamB)),
		},
	}
}

// buildSkipRequestLocked: requester names are host/spectator-only; other
// players just see the count and the notice text.
func (r *Room) buildSkipRequestLocked(viewer *Player) *skipRequestView {
	if r.phase != PhaseQuestion {
		return nil
	}
	names := r.skipRequesterNamesLocked()
	status := r.skipRequestStatus
	switch status {
	case SkipIdle, SkipPending, SkipRejected:
	default:
		status = SkipIdle
	}

	var notice *string
	if status == SkipPending && len(names) > 0 {
		if len(names) == 1 {
			notice = strPtr("Участник " + names[0] + " попросил пропустить вопрос.")
		} else {
			joined := names[0]
			for _, name := range names[1:] {
				joined += ", " + name
			}
			notice = strPtr("Участники " + joined + " попросили пропустить вопрос.")
		}
	} else if status == SkipRejected {
		notice = strPtr("Запрос на пропуск вопроса отклонён ведущим.")
	}

	visibleNames := []string{}
	if viewer.IsHost || viewer.IsSpectator {
		visibleNames = names
	}
	_, meRequested := r.skipRequesters[viewer.PeerID]
	return &skipRequestView{
		Count:       len(names),
		MeRequested: meRequested,
		Names:       visibleNames,
		Status:      status,
		Notice:      notice,
		MessageID:   r.skipRequestMessageID,
	}
}

// buildResultsSummaryLocked renders the final standings. The full stat
// table and histories ride along for the host only.
func (r *Room) buildResultsSummaryLocked(viewer *Player) map[string]any {
	if r.phase != PhaseResults {
		return nil
	}
	playersFull := r.buildResultPlayersLocked()
	hostDetails := map[string]any{
		"players":         playersFull,
		"questionHistory": historyTail(r.questionHistory, 120),
		"eventHistory":    historyTail(r.eventHistory, 180),
	}

	if r.gameMode == ModeFFA {
		summary := map[string]any{
			"mode":    ModeFFA,
			"ranking": buildFFARanking(playersFull),
		}
		if viewer.IsHost {
			summary["hostDetails"] = hostDetails
		}
		return summary
	}

	var winnerForPayload *Team
	if winner := r.winnerTeamLocked(); winner != "" {
		winnerForPayload = teamPtr(winner)
	}

	publicPlayers := make([]map[string]any, 0, len(playersFull))
	for _, row := range playersFull {
		publicPlayers = append(publicPlayers, map[string]any{
			"peerId":         row.PeerID,
			"name":           row.Name,
			"team":           row.Team,
			"correctAnswers": row.CorrectAnswers,
		})
	}

	captainContribution := map[string]any{"A": nil, "B": nil}
	if r.gameMode == ModeClassic {
		for _, team := range TeamKeys {
			captainPeerID := r.captains[team]
			if captainPeerID == "" {
				continue
			}
			entry := map[string]any{
				"peerId":         captainPeerID,
				"name":           r.playerNameForPeerLocked(captainPeerID, fallbackPlayerName),
				"team":           team,
				"correctAnswers": 0,
				"wrongAnswers":   0,
				"points":         0,
			}
			for _, row := range playersFull {
				if row.PeerID == captainPeerID {
					entry["name"] = row.Name
					entry["correctAnswers"] = row.CorrectAnswers
					entry["wrongAnswers"] = row.WrongAnswers
					entry["points"] = row.Points
					break
				}
			}
			captainContribution[string(team)] = entry
		}
	} else {
		captainContribution["note"] = "В этом режиме капитанов нет."
	}

	summary := map[string]any{
		"mode":                r.gameMode,
		"teamScores":          r.scores,
		"winnerTeam":          winnerForPayload,
		"teamNames":           r.teamNames,
		"players":             publicPlayers,
		"captainContribution": captainContribution,
	}
	if viewer.IsHost {
		summary["hostDetails"] = hostDetails
	}
	return summary
}

// buildVotesForViewerLocked scopes captain ballots: everything for host
// and spectators, own team for members, nothing after the results.
func (r *Room) buildVotesForViewerLocked(viewer *Player) map[Team]map[string]int {
	empty := map[Team]map[string]int{TeamA: {}, TeamB: {}}
	if r.phase == PhaseResults && !viewer.IsHost {
		return empty
	}
	copyVotes := func(team Team) map[string]int {
		out := make(map[string]int, len(r.captainVotes[team]))
		for peerID, count := range r.captainVotes[team] {
			out[peerID] = count
		}
		return out
	}
	if viewer.IsHost || viewer.IsSpectator {
		return map[Team]map[string]int{TeamA: copyVotes(TeamA), TeamB: copyVotes(TeamB)}
	}
	if viewer.Team != TeamA && viewer.Team != TeamB {
		return empty
	}
	out := map[Team]map[string]int{TeamA: {}, TeamB: {}}
	out[viewer.Team] = copyVotes(viewer.Team)
	return out
}

func (r *Room) viewerCaptainVoteLocked(viewer *Player) *string {
	if viewer.IsHost || (viewer.Team != TeamA && viewer.Team != TeamB) {
		return nil
	}
	if candidate, ok := r.captainBallots[viewer.Team][viewer.PeerID]; ok && candidate != "" {
		return strPtr(candidate)
	}
	return nil
}

func (r *Room) buildCaptainVoteProgressLocked() map[Team]voteProgress {
	return map[Team]voteProgress{
		TeamA: {Votes: r.teamVotesCountLocked(TeamA), Total: len(r.teamPlayersLocked(TeamA))},
		TeamB: {Votes: r.teamVotesCountLocked(TeamB), Total: len(r.teamPlayersLocked(TeamB))},
	}
}

// buildStateLocked assembles the full state-sync frame for one viewer.
func (r *Room) buildStateLocked(viewer *Player) *statePayload {
	players := make([]statePlayer, 0, len(r.players))
	for _, p := range r.playersInOrderLocked() {
		players = append(players, statePlayer{
			PeerID:       p.PeerID,
			AuthUserID:   p.AuthUserID,
			Name:         p.Name,
			Team:         r.visibleTeamForViewerLocked(viewer, p),
			IsHost:       p.IsHost,
			IsSpectator:  p.IsSpectator,
			IsCaptain:    p.IsCaptain,
			Avatar:       p.Avatar,
			ProfileFrame: p.ProfileFrame,
			MascotSkins:  mascotSkins{Cat: p.MascotSkinCat, Dog: p.MascotSkinDog},
			VictoryEffects: victoryEffects{
				Front: p.VictoryEffectFront,
				Back:  p.VictoryEffectBack,
			},
		})
	}

	chat := make([]stateChatMessage, 0, len(r.chat))
	for _, msg := range historyTail(r.chat, ChatHistoryLimit) {
		if !r.canPlayerSeeMessageLocked(viewer, msg) {
			continue
		}
		chat = append(chat, stateChatMessage{
			ID:        msg.ID,
			From:      msg.From,
			Name:      msg.Name,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
			Kind:      msg.Kind,
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

	version := r.stateVersion
	if version < 1 {
		version = 1
	}

	return &statePayload{
		Type:       "state-sync",
		ServerTime: r.nowMs(),
		Room: roomStateView{
			RoomID:               r.roomID,
			Topic:                r.topic,
			DifficultyMode:       string(r.difficultyMode),
			GameMode:             r.gameMode,
			QuestionCount:        r.questionCount,
			StateVersion:         version,
			LastEventID:          len(r.eventHistory),
			DeadlineEpochMs:      r.phaseDeadlineEpochMsLocked(),
			Phase:                r.phase,
			CurrentQuestionIndex: r.currentQuestionIndex,
			ActiveTeam:           r.activeTeam,
			QuestionEndsAt:       r.questionEndsAt,
			TeamRevealEndsAt:     r.teamRevealEndsAt,
			CaptainVoteEndsAt:    r.captainVoteEndsAt,
			TeamNamingEndsAt:     r.teamNamingEndsAt,
			HostReconnectEndsAt:  r.hostReconnectEndsAt,
			DisconnectedHostName: r.disconnectedHostName,
			ManualPauseByName:    r.manualPauseByName,
			Scores:               r.scores,
			PlayerScores:         r.playerScores,
			HasPassword:          r.roomPasswordHash != "",
			TeamNames:            r.teamNames,
			Captains:             captains,
			CaptainVotes:         r.buildVotesForViewerLocked(viewer),
			MyCaptainVote:        r.viewerCaptainVoteLocked(viewer),
			CaptainVoteReady:     r.captainVoteReadyTeams,
			CaptainVoteProgress:  r.buildCaptainVoteProgressLocked(),
			TeamNamingReady:      r.teamNamingReadyTeams,
			Players:              players,
			CurrentQuestion:      r.buildQuestionForViewerLocked(viewer),
			LastReveal:           r.buildRevealForViewerLocked(viewer),
			AnswerProgress:       r.buildAnswerProgressLocked(),
			MyAnswer:             r.buildFFAAnswerForViewerLocked(viewer),
			PendingPlayers:       r.buildFFAPendingPlayersLocked(viewer),
			ChaosProgress:        r.buildChaosProgressLocked(viewer),
			SkipRequest:          r.buildSkipRequestLocked(viewer),
			ResultsSummary:       r.buildResultsSummaryLocked(viewer),
			Chat:                 chat,
		},
	}
}
