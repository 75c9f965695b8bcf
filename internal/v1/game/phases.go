package game

import "github.com/quizbattle/quizroom/internal/v1/metrics"

const gameFinishedEventText = "Игра завершена. Переход к финальной статистике."

// assignTeamsForStartLocked deals shuffled players onto alternating teams.
func (r *Room) assignTeamsForStartLocked() {
	var candidates []*Player
	for _, p := range r.playersInOrderLocked() {
		if !p.IsHost {
			candidates = append(candidates, p)
		}
	}
	team := TeamA
	for _, p := range r.shufflePlayersLocked(candidates) {
		p.Team = team
		team = NextTeam(team)
	}
}

// startGameLocked resets all per-game state and enters either the first
// question (ffa) or the team reveal.
func (r *Room) startGameLocked() {
	r.clearTimersLocked()
	r.resetCaptainStateLocked()

	r.hostReconnectEndsAt = nil
	r.disconnectedHostName = nil
	r.disconnectedHostExpectedName = nil
	r.pausedState = nil
	r.teamNames = map[Team]string{TeamA: "Команда A", TeamB: "Команда B"}
	r.currentQuestionIndex = -1
	r.activeTeam = TeamA
	r.questionEndsAt = nil
	r.teamRevealEndsAt = nil
	r.captainVoteEndsAt = nil
	r.teamNamingEndsAt = nil
	r.revealEndsAt = nil
	r.chat = nil
	r.activeAnswer = nil
	r.answerSubmissions = make(map[string]*Submission)
	r.skipRequesters = make(map[string]struct{})
	r.skipRequestStatus = SkipIdle
	r.skipRequestMessageID = nil
	r.lastReveal = nil
	r.scores = map[Team]int{TeamA: 0, TeamB: 0}
	r.playerScores = make(map[string]int)
	r.playerStats = make(map[string]*PlayerStat)
	r.questionHistory = nil
	r.eventHistory = nil
	r.chatModerationStrikes = make(map[string]int)

	if r.gameMode == ModeFFA {
		for _, p := range r.players {
			if !p.IsHost {
				p.IsSpectator = false
				p.Team = ""
				p.IsCaptain = false
			}
		}
		r.initializeResultTrackingLocked()
		r.appendResultEventLocked("Игра началась (Все против всех).", "phase", nil)
		r.currentQuestionIndex = 0
		r.startQuestionPhaseLocked()
		return
	}

	r.assignTeamsForStartLocked()
	r.initializeResultTrackingLocked()
	r.appendResultEventLocked("Игра началась ("+string(r.gameMode)+").", "phase", nil)
	r.phase = PhaseTeamReveal
	r.teamRevealEndsAt = int64Ptr(r.nowMs() + TeamRevealTimeMs)
	r.scheduleTimerLocked(timerTeamReveal, TeamRevealTimeMs, r.afterTeamRevealLocked)
	r.broadcastAndPersistLocked()
}

func (r *Room) afterTeamRevealLocked() {
	if r.phase != PhaseTeamReveal {
		return
	}
	if r.gameMode == ModeClassic {
		r.startCaptainVoteLocked()
		return
	}
	r.startTeamNamingPhaseLocked()
}

func (r *Room) startCaptainVoteLocked() {
	if r.gameMode != ModeClassic {
		r.startTeamNamingPhaseLocked()
		return
	}

	r.phase = PhaseCaptainVote
	r.teamRevealEndsAt = nil
	r.captainVoteEndsAt = int64Ptr(r.nowMs() + CaptainVoteTimeMs)
	r.teamNamingEndsAt = nil
	r.teamNamingReadyTeams = map[Team]bool{TeamA: false, TeamB: false}
	r.captains = map[Team]string{}
	r.captainVoteReadyTeams = map[Team]bool{TeamA: false, TeamB: false}

	r.refreshCaptainVoteProgressLocked()
	r.scheduleSingleMemberAutoCaptainLocked()

	if r.areAllTeamsReadyLocked(r.captainVoteReadyTeams) {
		r.finalizeCaptainVoteLocked()
		return
	}
	r.scheduleTimerLocked(timerCaptainVote, CaptainVoteTimeMs, r.finalizeCaptainVoteLocked)
	r.broadcastAndPersistLocked()
}

func (r *Room) finalizeCaptainVoteLocked() {
	if r.phase != PhaseCaptainVote {
		return
	}
	r.cancelTimerLocked(timerCaptainVote)
	r.cancelTimerLocked(timerCaptainAuto)

	if r.gameMode != ModeClassic {
		r.captains = map[Team]string{}
		r.captainVoteReadyTeams = map[Team]bool{TeamA: true, TeamB: true}
		r.applyCaptainFlagsLocked()
		r.startTeamNamingPhaseLocked()
		return
	}

	for _, team := range TeamKeys {
		if r.captains[team] == "" {
			r.captains[team] = r.chooseCaptainByVotesLocked(team)
		}
	}
	r.captainVoteReadyTeams = map[Team]bool{TeamA: true, TeamB: true}
	r.applyCaptainFlagsLocked()
	r.startTeamNamingPhaseLocked()
}

// initializeTeamNamingProgressLocked: empty teams are done; in classic a
// captainless team has nobody entitled to pick a name, so it is done too.
func (r *Room) initializeTeamNamingProgressLocked() {
	for _, team := range TeamKeys {
		members := len(r.teamPlayersLocked(team))
		if members == 0 {
			r.teamNamingReadyTeams[team] = true
		} else if r.gameMode == ModeClassic {
			r.teamNamingReadyTeams[team] = r.captains[team] == ""
		} else {
			r.teamNamingReadyTeams[team] = false
		}
	}
}

func (r *Room) startTeamNamingPhaseLocked() {
	r.phase = PhaseTeamNaming
	r.teamRevealEndsAt = nil
	r.captainVoteEndsAt = nil
	r.teamNamingEndsAt = int64Ptr(r.nowMs() + TeamNamingTimeMs)
	r.initializeTeamNamingProgressLocked()

	if r.areAllTeamsReadyLocked(r.teamNamingReadyTeams) {
		r.finalizeTeamNamingLocked()
		return
	}
	r.scheduleTimerLocked(timerTeamNaming, TeamNamingTimeMs, r.finalizeTeamNamingLocked)
	r.broadcastAndPersistLocked()
}

// finalizeTeamNamingLocked zeroes all scores and starts the first question.
func (r *Room) finalizeTeamNamingLocked() {
	if r.phase != PhaseTeamNaming {
		return
	}
	r.cancelTimerLocked(timerTeamNaming)
	r.teamNamingReadyTeams = map[Team]bool{TeamA: true, TeamB: true}

	r.currentQuestionIndex = 0
	r.activeTeam = TeamA
	r.chat = nil
	r.lastReveal = nil
	r.activeAnswer = nil
	r.answerSubmissions = make(map[string]*Submission)
	r.skipRequesters = make(map[string]struct{})
	r.skipRequestStatus = SkipIdle
	r.skipRequestMessageID = nil
	r.scores = map[Team]int{TeamA: 0, TeamB: 0}
	r.playerScores = make(map[string]int)

	r.startQuestionPhaseLocked()
}

func (r *Room) startQuestionPhaseLocked() {
	r.phase = PhaseQuestion
	r.questionEndsAt = int64Ptr(r.nowMs() + QuestionTimeMs)
	r.teamRevealEndsAt = nil
	r.captainVoteEndsAt = nil
	r.teamNamingEndsAt = nil
	r.activeAnswer = nil
	r.answerSubmissions = make(map[string]*Submission)
	r.skipRequesters = make(map[string]struct{})
	r.skipRequestStatus = SkipIdle
	r.skipRequestMessageID = nil
	r.lastReveal = nil
	r.revealEndsAt = nil

	r.scheduleTimerLocked(timerQuestion, QuestionTimeMs, r.finalizeQuestionLocked)
	r.broadcastAndPersistLocked()
}

// finishGameLocked enters the results phase and records the game result.
func (r *Room) finishGameLocked() {
	r.phase = PhaseResults
	r.questionEndsAt = nil
	r.activeAnswer = nil
	r.answerSubmissions = make(map[string]*Submission)
	r.appendResultEventLocked(gameFinishedEventText, "phase", nil)
	metrics.GamesFinished.WithLabelValues(string(r.gameMode)).Inc()
	r.broadcastAndPersistLocked()
	r.persistGameResultLocked()
}

// advanceAfterRevealLocked moves from a reveal to the next question, the
// other team's turn, or the results.
func (r *Room) advanceAfterRevealLocked() {
	if r.phase != PhaseReveal {
		return
	}
	r.cancelTimerLocked(timerReveal)
	r.revealEndsAt = nil

	lastQuestion := r.currentQuestionIndex >= len(r.questions)-1

	if r.gameMode == ModeFFA || r.gameMode == ModeChaos {
		if lastQuestion {
			r.finishGameLocked()
			return
		}
		r.currentQuestionIndex++
		r.chat = nil
		r.lastReveal = nil
		r.activeAnswer = nil
		r.answerSubmissions = make(map[string]*Submission)
		if r.gameMode == ModeChaos {
			r.activeTeam = TeamA
		}
		r.startQuestionPhaseLocked()
		return
	}

	// Classic: a host skip advances the question for both teams at once.
	skippedByHost := r.lastReveal != nil && r.lastReveal.SkippedByHost
	if skippedByHost {
		if lastQuestion {
			r.finishGameLocked()
			return
		}
		r.currentQuestionIndex++
		r.chat = nil
		r.activeAnswer = nil
		r.answerSubmissions = make(map[string]*Submission)
		r.lastReveal = nil
		r.activeTeam = TeamA
		r.startQuestionPhaseLocked()
		return
	}

	// Each classic question is played by team A, then team B.
	if r.activeTeam == TeamA {
		r.chat = nil
		r.activeAnswer = nil
		r.answerSubmissions = make(map[string]*Submission)
		r.lastReveal = nil
		r.activeTeam = TeamB
		r.startQuestionPhaseLocked()
		return
	}

	if lastQuestion {
		r.finishGameLocked()
		return
	}
	r.currentQuestionIndex++
	r.chat = nil
	r.activeTeam = TeamA
	r.answerSubmissions = make(map[string]*Submission)
	r.startQuestionPhaseLocked()
}

// resetGameLocked returns the room to a fresh lobby with new questions.
func (r *Room) resetGameLocked(systemMessage string) {
	r.clearTimersLocked()
	r.questions = r.createQuestions()
	r.phase = PhaseLobby
	r.currentQuestionIndex = -1
	r.activeTeam = TeamA
	r.questionEndsAt = nil
	r.teamRevealEndsAt = nil
	r.captainVoteEndsAt = nil
	r.teamNamingEndsAt = nil
	r.revealEndsAt = nil
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
	r.chat = nil
	r.lastReveal = nil
	r.scores = map[Team]int{TeamA: 0, TeamB: 0}
	r.playerScores = make(map[string]int)
	r.playerStats = make(map[string]*PlayerStat)
	r.questionHistory = nil
	r.eventHistory = nil
	r.chatModerationStrikes = make(map[string]int)

	r.resetCaptainStateLocked()
	r.teamNames = map[Team]string{TeamA: "Команда A", TeamB: "Команда B"}

	for _, p := range r.players {
		if !p.IsHost {
			p.IsSpectator = false
			p.Team = ""
		}
	}

	if systemMessage != "" {
		r.appendSystemChatMessageLocked(systemMessage, "system")
	}
	r.broadcastAndPersistLocked()
}

// stopTeamModeIfNotEnoughPlayersLocked aborts a running team game once a
// team has no active members left. Returns true when the game was reset.
func (r *Room) stopTeamModeIfNotEnoughPlayersLocked(reason string) bool {
	if r.gameMode != ModeClassic && r.gameMode != ModeChaos {
		return false
	}
	if r.phase == PhaseLobby || r.phase == PhaseResults {
		return false
	}

	teamACount := len(r.activeTeamPlayersLocked(TeamA))
	teamBCount := len(r.activeTeamPlayersLocked(TeamB))
	if teamACount+teamBCount > 1 && teamACount > 0 && teamBCount > 0 {
		return false
	}

	message := reason
	if message == "" {
		message = "Игра остановлена: в комнате недостаточно участников для двух команд."
	}
	r.resetGameLocked(message)
	return true
}
