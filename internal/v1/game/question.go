package game

import (
	"fmt"
	"time"

	"github.com/quizbattle/quizroom/internal/v1/metrics"
)

// handleSubmitAnswerLocked records an answer according to the game mode.
// Classic locks the captain's single answer and finalizes immediately;
// ffa and chaos collect one submission per eligible player.
func (r *Room) handleSubmitAnswerLocked(p *Player, answerIndex int, ok bool) {
	if r.phase != PhaseQuestion || p.IsSpectator || !ok {
		return
	}

	if r.gameMode == ModeClassic {
		if p.Team != r.activeTeam || !p.IsCaptain {
			return
		}
		if r.activeAnswer != nil {
			return
		}
		r.activeAnswer = &ActiveAnswer{
			SelectedIndex: answerIndex,
			ByPeerID:      p.PeerID,
			ByName:        p.Name,
			AnsweredAt:    r.nowMs(),
		}
		r.finalizeQuestionLocked()
		return
	}

	if r.gameMode == ModeChaos {
		if p.IsHost || (p.Team != TeamA && p.Team != TeamB) {
			return
		}
	} else if p.IsHost {
		return
	}

	if _, submitted := r.answerSubmissions[p.PeerID]; submitted {
		return
	}
	r.answerSubmissions[p.PeerID] = &Submission{
		SelectedIndex: answerIndex,
		ByPeerID:      p.PeerID,
		ByName:        p.Name,
		AnsweredAt:    r.nowMs(),
	}

	eligible := r.answerEligiblePlayersLocked()
	if len(eligible) > 0 && len(r.answerSubmissions) >= len(eligible) {
		r.finalizeQuestionLocked()
		return
	}
	r.broadcastAndPersistLocked()
}

// finalizeQuestionLocked scores the current question and enters reveal.
func (r *Room) finalizeQuestionLocked() {
	if r.phase != PhaseQuestion || r.currentQuestionIndex < 0 {
		return
	}
	r.cancelTimerLocked(timerQuestion)
	if r.currentQuestionIndex >= len(r.questions) {
		return
	}

	started := time.Now()
	defer func() {
		metrics.QuestionFinalizeDuration.WithLabelValues(string(r.gameMode)).Observe(time.Since(started).Seconds())
	}()

	question := r.questions[r.currentQuestionIndex]
	correctIndex := question.CorrectIndex
	questionEndsAt := r.questionEndsAt
	var fallbackRemainingMs int64
	if questionEndsAt != nil {
		fallbackRemainingMs = max64(0, *questionEndsAt-r.nowMs())
	}

	if r.gameMode == ModeFFA {
		r.finalizeFFALocked(correctIndex, questionEndsAt)
		return
	}

	r.chat = nil
	r.phase = PhaseReveal
	r.questionEndsAt = nil
	r.revealEndsAt = int64Ptr(r.nowMs() + RevealTimeMs)

	switch r.gameMode {
	case ModeClassic:
		r.finalizeClassicLocked(correctIndex, questionEndsAt, fallbackRemainingMs)
	case ModeChaos:
		r.finalizeChaosLocked(correctIndex, questionEndsAt, fallbackRemainingMs)
	}

	r.activeAnswer = nil
	r.answerSubmissions = make(map[string]*Submission)
	r.scheduleTimerLocked(timerReveal, RevealTimeMs, r.advanceAfterRevealLocked)
	r.broadcastAndPersistLocked()
}

// finalizeFFALocked scores each participant independently against their
// own submission timestamp.
func (r *Room) finalizeFFALocked(correctIndex int, questionEndsAt *int64) {
	question := r.questions[r.currentQuestionIndex]
	participants := r.activeNonHostPlayersLocked()
	results := make([]PlayerResult, 0, len(participants))
	totalPointsAwarded := 0

	for _, participant := range participants {
		submission := r.answerSubmissions[participant.PeerID]
		if submission == nil {
			r.recordPlayerSkipStatLocked(participant)
			results = append(results, PlayerResult{
				PeerID:        participant.PeerID,
				Name:          participant.Name,
				Team:          teamPtr(participant.Team),
				SelectedIndex: nil,
				TotalScore:    intPtr(r.playerScores[participant.PeerID]),
				Status:        "timeout",
			})
			continue
		}

		var remainingMs int64
		if questionEndsAt != nil && submission.AnsweredAt > 0 {
			remainingMs = max64(0, *questionEndsAt-submission.AnsweredAt)
		}
		isCorrect := submission.SelectedIndex == correctIndex
		speedBonus := 0
		basePoints := 0
		if isCorrect {
			speedBonus = CalculateSpeedBonus(remainingMs)
			basePoints = BaseCorrectPoints
		}
		pointsAwarded := basePoints + speedBonus
		if pointsAwarded > 0 {
			r.playerScores[participant.PeerID] += pointsAwarded
		}
		totalPointsAwarded += pointsAwarded
		r.recordPlayerAnswerStatLocked(participant, isCorrect, pointsAwarded, remainingMs, submission.AnsweredAt)

		shownRemaining := remainingMs
		if !isCorrect {
			shownRemaining = 0
		}
		results = append(results, PlayerResult{
			PeerID:          participant.PeerID,
			Name:            participant.Name,
			Team:            teamPtr(participant.Team),
			SelectedIndex:   intPtr(submission.SelectedIndex),
			IsCorrect:       isCorrect,
			BasePoints:      basePoints,
			SpeedBonus:      speedBonus,
			TimeRemainingMs: shownRemaining,
			PointsAwarded:   pointsAwarded,
			TotalScore:      intPtr(r.playerScores[participant.PeerID]),
			Status:          "answered",
		})
	}

	r.appendQuestionHistoryLocked(QuestionHistoryEntry{
		ID:             randomID(),
		Timestamp:      r.nowMs(),
		Mode:           ModeFFA,
		QuestionNumber: r.currentQuestionIndex + 1,
		Difficulty:     question.Difficulty,
		CorrectIndex:   correctIndex,
		PlayerResults:  results,
	})

	r.chat = nil
	r.phase = PhaseReveal
	r.questionEndsAt = nil
	r.revealEndsAt = int64Ptr(r.nowMs() + RevealTimeMs)
	r.activeAnswer = nil
	r.answerSubmissions = make(map[string]*Submission)
	r.skipRequesters = make(map[string]struct{})
	r.skipRequestStatus = SkipIdle
	r.skipRequestMessageID = nil
	r.lastReveal = &RevealRecord{
		Mode:              ModeFFA,
		CorrectIndex:      correctIndex,
		AnsweredByName:    strPtr("Индивидуальная проверка"),
		PointsAwarded:     totalPointsAwarded,
		ParticipantsCount: intPtr(len(participants)),
		PlayerResults:     results,
	}

	r.scheduleTimerLocked(timerReveal, RevealTimeMs, r.advanceAfterRevealLocked)
	r.broadcastAndPersistLocked()
}

// finalizeClassicLocked scores the captain's answer for the active team.
// The speed bonus is computed from the captain's submission time, so a
// timer-driven finalize does not erase an early answer's bonus.
func (r *Room) finalizeClassicLocked(correctIndex int, questionEndsAt *int64, fallbackRemainingMs int64) {
	question := r.questions[r.currentQuestionIndex]
	selected := r.activeAnswer

	var selectedIndex *int
	var remainingMs int64
	if selected != nil {
		selectedIndex = intPtr(selected.SelectedIndex)
		if questionEndsAt != nil && selected.AnsweredAt > 0 {
			remainingMs = max64(0, *questionEndsAt-selected.AnsweredAt)
		} else {
			remainingMs = fallbackRemainingMs
		}
	}
	isCorrect := selectedIndex != nil && *selectedIndex == correctIndex
	speedBonus := 0
	basePoints := 0
	if isCorrect {
		speedBonus = CalculateSpeedBonus(remainingMs)
		basePoints = BaseCorrectPoints
	}
	pointsAwarded := basePoints + speedBonus
	if pointsAwarded > 0 {
		r.scores[r.activeTeam] += pointsAwarded
	}

	var answeredBy, answeredByName *string
	if selected != nil {
		answeredBy = strPtr(selected.ByPeerID)
		answeredByName = strPtr(selected.ByName)
		if answeredPlayer, ok := r.players[selected.ByPeerID]; ok && !answeredPlayer.IsHost {
			r.recordPlayerAnswerStatLocked(answeredPlayer, isCorrect, pointsAwarded, remainingMs, selected.AnsweredAt)
		}
	} else if captainPeerID := r.captains[r.activeTeam]; captainPeerID != "" {
		if captain, ok := r.players[captainPeerID]; ok && !captain.IsHost {
			r.recordPlayerSkipStatLocked(captain)
		}
	}

	shownRemaining := remainingMs
	if !isCorrect {
		shownRemaining = 0
	}
	activeTeam := r.activeTeam
	r.lastReveal = &RevealRecord{
		Mode:            ModeClassic,
		CorrectIndex:    correctIndex,
		SelectedIndex:   selectedIndex,
		AnsweredBy:      answeredBy,
		AnsweredByName:  answeredByName,
		Team:            &activeTeam,
		IsCorrect:       isCorrect,
		BasePoints:      basePoints,
		SpeedBonus:      speedBonus,
		TimeRemainingMs: shownRemaining,
		PointsAwarded:   pointsAwarded,
	}

	status := "timeout"
	if answeredBy != nil {
		status = "answered"
	}
	r.appendQuestionHistoryLocked(QuestionHistoryEntry{
		ID:              randomID(),
		Timestamp:       r.nowMs(),
		Mode:            ModeClassic,
		QuestionNumber:  r.currentQuestionIndex + 1,
		Difficulty:      question.Difficulty,
		Team:            &activeTeam,
		CorrectIndex:    correctIndex,
		SelectedIndex:   selectedIndex,
		AnsweredBy:      answeredBy,
		AnsweredByName:  answeredByName,
		IsCorrect:       boolPtr(isCorrect),
		BasePoints:      intPtr(basePoints),
		SpeedBonus:      intPtr(speedBonus),
		TimeRemainingMs: int64Ptr(shownRemaining),
		PointsAwarded:   intPtr(pointsAwarded),
		Status:          status,
	})
}

// finalizeChaosLocked resolves each team's plurality vote; the team's
// speed is measured by its slowest submission.
func (r *Room) finalizeChaosLocked(correctIndex int, questionEndsAt *int64, fallbackRemainingMs int64) {
	question := r.questions[r.currentQuestionIndex]
	chaosTeamResults := make(map[Team]*ChaosTeamResult, 2)
	totalPointsAwarded := 0
	var playerResults []PlayerResult

	for _, team := range TeamKeys {
		participants := r.activeTeamPlayersLocked(team)
		voteCounts := make(map[int]int)
		teamAnsweredCount := 0
		var latestAnsweredAt *int64

		for _, participant := range participants {
			submission := r.answerSubmissions[participant.PeerID]
			if submission == nil {
				r.recordPlayerSkipStatLocked(participant)
				playerResults = append(playerResults, PlayerResult{
					PeerID: participant.PeerID,
					Name:   participant.Name,
					Team:   teamPtr(team),
					Status: "timeout",
				})
				continue
			}
			teamAnsweredCount++

			answeredAt := submission.AnsweredAt
			if answeredAt > 0 && (latestAnsweredAt == nil || answeredAt > *latestAnsweredAt) {
				latestAnsweredAt = int64Ptr(answeredAt)
			}
			playerRemainingMs := fallbackRemainingMs
			if questionEndsAt != nil && answeredAt > 0 {
				playerRemainingMs = max64(0, *questionEndsAt-answeredAt)
			}

			voteCounts[submission.SelectedIndex]++
			playerIsCorrect := submission.SelectedIndex == correctIndex
			r.recordPlayerAnswerStatLocked(participant, playerIsCorrect, 0, playerRemainingMs, answeredAt)
			shownRemaining := playerRemainingMs
			if !playerIsCorrect {
				shownRemaining = 0
			}
			playerResults = append(playerResults, PlayerResult{
				PeerID:          participant.PeerID,
				Name:            participant.Name,
				Team:            teamPtr(team),
				SelectedIndex:   intPtr(submission.SelectedIndex),
				IsCorrect:       playerIsCorrect,
				TimeRemainingMs: shownRemaining,
				Status:          "answered",
			})
		}

		var selectedIndex *int
		tieResolvedRandomly := false
		if len(voteCounts) > 0 {
			maxVotes := 0
			for _, count := range voteCounts {
				if count > maxVotes {
					maxVotes = count
				}
			}
			var leaders []int
			for index, count := range voteCounts {
				if count == maxVotes {
					leaders = append(leaders, index)
				}
			}
			tieResolvedRandomly = len(leaders) > 1
			selectedIndex = intPtr(leaders[r.deps.Rand.Intn(len(leaders))])
		}

		isCorrect := selectedIndex != nil && *selectedIndex == correctIndex
		teamRemainingMs := fallbackRemainingMs
		if questionEndsAt != nil && latestAnsweredAt != nil {
			teamRemainingMs = max64(0, *questionEndsAt-*latestAnsweredAt)
		}
		speedBonus := 0
		basePoints := 0
		if isCorrect {
			speedBonus = CalculateSpeedBonus(teamRemainingMs)
			basePoints = BaseCorrectPoints
		}
		pointsAwarded := basePoints + speedBonus
		if pointsAwarded > 0 {
			r.scores[team] += pointsAwarded
		}
		totalPointsAwarded += pointsAwarded

		shownTeamRemaining := teamRemainingMs
		if !isCorrect {
			shownTeamRemaining = 0
		}
		voteCountsPayload := make(map[string]int, len(voteCounts))
		for index, count := range voteCounts {
			voteCountsPayload[fmt.Sprintf("%d", index)] = count
		}
		chaosTeamResults[team] = &ChaosTeamResult{
			Team:                team,
			SelectedIndex:       selectedIndex,
			IsCorrect:           isCorrect,
			BasePoints:          basePoints,
			SpeedBonus:          speedBonus,
			TimeRemainingMs:     shownTeamRemaining,
			PointsAwarded:       pointsAwarded,
			VoteCounts:          voteCountsPayload,
			TieResolvedRandomly: tieResolvedRandomly,
			ParticipantsCount:   len(participants),
			AnsweredCount:       teamAnsweredCount,
		}
	}

	r.lastReveal = &RevealRecord{
		Mode:             ModeChaos,
		CorrectIndex:     correctIndex,
		AnsweredByName:   strPtr("Голосование команд"),
		PointsAwarded:    totalPointsAwarded,
		ChaosTeamResults: chaosTeamResults,
	}
	r.appendQuestionHistoryLocked(QuestionHistoryEntry{
		ID:               randomID(),
		Timestamp:        r.nowMs(),
		Mode:             ModeChaos,
		QuestionNumber:   r.currentQuestionIndex + 1,
		Difficulty:       question.Difficulty,
		CorrectIndex:     correctIndex,
		ChaosTeamResults: chaosTeamResults,
		PlayerResults:    playerResults,
	})
}

// skipQuestionByHostLocked discards the current question. FFA jumps
// straight to the next question; team modes show a short reveal so the
// skip is visible to both teams.
func (r *Room) skipQuestionByHostLocked(host *Player) {
	if r.phase != PhaseQuestion || r.currentQuestionIndex < 0 {
		return
	}
	r.cancelTimerLocked(timerQuestion)
	if r.currentQuestionIndex >= len(r.questions) {
		return
	}

	question := r.questions[r.currentQuestionIndex]
	var remainingMs int64
	if r.questionEndsAt != nil {
		remainingMs = max64(0, *r.questionEndsAt-r.nowMs())
	}

	var skippedParticipants []*Player
	switch r.gameMode {
	case ModeFFA:
		skippedParticipants = r.activeNonHostPlayersLocked()
	case ModeChaos:
		for _, p := range r.activeNonHostPlayersLocked() {
			if p.Team == TeamA || p.Team == TeamB {
				skippedParticipants = append(skippedParticipants, p)
			}
		}
	default:
		if captainPeerID := r.captains[r.activeTeam]; captainPeerID != "" {
			if captain, ok := r.players[captainPeerID]; ok {
				skippedParticipants = []*Player{captain}
			}
		}
	}

	skippedResults := make([]PlayerResult, 0, len(skippedParticipants))
	for _, p := range skippedParticipants {
		skippedResults = append(skippedResults, PlayerResult{
			PeerID: p.PeerID,
			Name:   p.Name,
			Team:   teamPtr(p.Team),
			Status: "skipped_by_host",
		})
	}

	var historyTeam *Team
	if r.gameMode != ModeFFA {
		historyTeam = teamPtr(r.activeTeam)
	}
	r.appendQuestionHistoryLocked(QuestionHistoryEntry{
		ID:              randomID(),
		Timestamp:       r.nowMs(),
		Mode:            r.gameMode,
		QuestionNumber:  r.currentQuestionIndex + 1,
		Difficulty:      question.Difficulty,
		CorrectIndex:    question.CorrectIndex,
		Team:            historyTeam,
		SkippedByHost:   true,
		SkippedByName:   host.Name,
		TimeRemainingMs: int64Ptr(remainingMs),
		PlayerResults:   skippedResults,
	})
	r.appendResultEventLocked(
		fmt.Sprintf("Ведущий %s пропустил вопрос №%d.", hostDisplayName(host.Name), r.currentQuestionIndex+1),
		"question-skip",
		map[string]any{"questionNumber": r.currentQuestionIndex + 1, "mode": r.gameMode},
	)

	r.chat = nil
	r.questionEndsAt = nil
	r.activeAnswer = nil
	r.answerSubmissions = make(map[string]*Submission)
	r.skipRequesters = make(map[string]struct{})
	r.skipRequestStatus = SkipIdle
	r.skipRequestMessageID = nil

	if r.gameMode == ModeFFA {
		r.lastReveal = nil
		r.revealEndsAt = nil
		if r.currentQuestionIndex >= len(r.questions)-1 {
			r.finishGameLocked()
			return
		}
		r.currentQuestionIndex++
		r.startQuestionPhaseLocked()
		return
	}

	r.phase = PhaseReveal
	r.revealEndsAt = int64Ptr(r.nowMs() + SkipRevealTimeMs)
	activeTeam := r.activeTeam
	r.lastReveal = &RevealRecord{
		Mode:            r.gameMode,
		CorrectIndex:    question.CorrectIndex,
		Team:            &activeTeam,
		TimeRemainingMs: remainingMs,
		SkippedByHost:   true,
		SkippedByName:   host.Name,
	}

	r.scheduleTimerLocked(timerReveal, SkipRevealTimeMs, r.advanceAfterRevealLocked)
	r.broadcastAndPersistLocked()
}

func hostDisplayName(name string) string {
	if name == "" {
		name = "Ведущий"
	}
	return truncateRunes(name, 24)
}
