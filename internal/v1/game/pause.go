package game

import (
	"fmt"

	"go.uber.org/zap"
)

// phaseRemainingMsForPauseLocked reads how long the given phase still had
// to run. Phases without a deadline report zero.
func (r *Room) phaseRemainingMsForPauseLocked(phase Phase) int64 {
	now := r.nowMs()
	deadline := func(endsAt *int64) int64 {
		if endsAt == nil {
			return 0
		}
		return max64(0, *endsAt-now)
	}
	switch phase {
	case PhaseQuestion:
		return deadline(r.questionEndsAt)
	case PhaseTeamReveal:
		return deadline(r.teamRevealEndsAt)
	case PhaseCaptainVote:
		return deadline(r.captainVoteEndsAt)
	case PhaseTeamNaming:
		return deadline(r.teamNamingEndsAt)
	case PhaseReveal:
		return deadline(r.revealEndsAt)
	}
	return 0
}

// schedulePhaseTimerLocked restores the deadline and completion timer of
// a phase that was interrupted by a pause.
func (r *Room) schedulePhaseTimerLocked(phase Phase, remainingMs int64) {
	delay := remainingMs
	if delay < MinTimerDelayMs {
		delay = MinTimerDelayMs
	}
	endsAt := int64Ptr(r.nowMs() + delay)

	switch phase {
	case PhaseQuestion:
		r.questionEndsAt = endsAt
		r.scheduleTimerLocked(timerQuestion, delay, r.finalizeQuestionLocked)
	case PhaseTeamReveal:
		r.teamRevealEndsAt = endsAt
		r.scheduleTimerLocked(timerTeamReveal, delay, r.afterTeamRevealLocked)
	case PhaseCaptainVote:
		r.captainVoteEndsAt = endsAt
		r.scheduleTimerLocked(timerCaptainVote, delay, r.finalizeCaptainVoteLocked)
	case PhaseTeamNaming:
		r.teamNamingEndsAt = endsAt
		r.scheduleTimerLocked(timerTeamNaming, delay, r.finalizeTeamNamingLocked)
	case PhaseReveal:
		r.revealEndsAt = endsAt
		r.scheduleTimerLocked(timerReveal, delay, r.advanceAfterRevealLocked)
	}
}

func (r *Room) clearPhaseDeadlinesLocked() {
	r.questionEndsAt = nil
	r.teamRevealEndsAt = nil
	r.captainVoteEndsAt = nil
	r.teamNamingEndsAt = nil
	r.revealEndsAt = nil
}

// shouldPauseOnHostDisconnect: the results phase keeps running without a
// host, every other pre-results phase freezes.
func shouldPauseOnHostDisconnect(phase Phase) bool {
	switch phase {
	case PhaseLobby, PhaseTeamReveal, PhaseCaptainVote, PhaseTeamNaming, PhaseQuestion, PhaseReveal:
		return true
	}
	return false
}

// pauseForHostReconnectLocked freezes the game and gives the departed
// host a window to return before a new host is promoted.
func (r *Room) pauseForHostReconnectLocked(hostName string) bool {
	if !shouldPauseOnHostDisconnect(r.phase) {
		return false
	}

	previousPhase := r.phase
	remainingMs := r.phaseRemainingMsForPauseLocked(previousPhase)
	r.clearTimersLocked()

	r.pausedState = &PausedState{Phase: previousPhase, RemainingMs: remainingMs}
	r.phase = PhaseHostReconnect
	r.clearPhaseDeadlinesLocked()
	r.hostReconnectEndsAt = int64Ptr(r.nowMs() + HostReconnectWaitMs)
	r.manualPauseByName = nil
	displayName := hostName
	if displayName == "" {
		displayName = "Ведущий"
	}
	r.disconnectedHostName = strPtr(displayName)
	r.disconnectedHostExpectedName = strPtr(NormalizePlayerName(hostName))

	r.logger.Warn("host disconnected, pausing for reconnect",
		zap.String("phase", string(previousPhase)),
		zap.Int64("remaining_ms", remainingMs))

	r.broadcastAndPersistLocked()

	r.scheduleTimerLocked(timerHostReconnect, HostReconnectWaitMs, func() {
		if r.phase != PhaseHostReconnect {
			return
		}
		r.assignNewHostLocked()
		r.resumeAfterHostReconnectLocked()
	})
	return true
}

// resumeAfterHostReconnectLocked restores the paused phase and rearms its
// timer with the time that was left when the pause started.
func (r *Room) resumeAfterHostReconnectLocked() {
	if r.pausedState == nil {
		r.hostReconnectEndsAt = nil
		r.disconnectedHostName = nil
		r.disconnectedHostExpectedName = nil
		r.broadcastAndPersistLocked()
		return
	}

	r.clearTimersLocked()

	restoredPhase := r.pausedState.Phase
	if !ValidPhase(string(restoredPhase)) {
		restoredPhase = PhaseLobby
	}
	remainingMs := r.pausedState.RemainingMs

	r.phase = restoredPhase
	r.hostReconnectEndsAt = nil
	r.disconnectedHostName = nil
	r.disconnectedHostExpectedName = nil
	r.pausedState = nil
	r.manualPauseByName = nil
	r.clearPhaseDeadlinesLocked()

	r.logger.Info("host reconnect resume", zap.String("phase", string(restoredPhase)))

	r.schedulePhaseTimerLocked(restoredPhase, remainingMs)
	r.broadcastAndPersistLocked()
}

// assignNewHostLocked promotes the earliest joined non-spectator (any
// player as a fallback) to host.
func (r *Room) assignNewHostLocked() *Player {
	var candidate, fallback *Player
	for _, p := range r.playersInOrderLocked() {
		p.IsHost = false
		if fallback == nil {
			fallback = p
		}
		if candidate == nil && !p.IsSpectator {
			candidate = p
		}
	}
	if candidate == nil {
		candidate = fallback
	}
	if candidate == nil {
		return nil
	}

	candidate.IsHost = true
	candidate.IsSpectator = false
	r.hostPeerID = candidate.PeerID
	if r.phase == PhaseLobby {
		candidate.Team = ""
	}
	r.logger.Warn("host reassigned",
		zap.String("new_host_peer_id", candidate.PeerID),
		zap.String("phase", string(r.phase)))
	return candidate
}

func manualPauseAllowedPhase(phase Phase) bool {
	switch phase {
	case PhaseTeamReveal, PhaseCaptainVote, PhaseTeamNaming, PhaseQuestion, PhaseReveal:
		return true
	}
	return false
}

// pauseGameByHostLocked is the host's manual pause. Chat opens to
// everyone while the game is frozen.
func (r *Room) pauseGameByHostLocked(host *Player) {
	if !manualPauseAllowedPhase(r.phase) {
		return
	}

	previousPhase := r.phase
	remainingMs := r.phaseRemainingMsForPauseLocked(previousPhase)
	r.clearTimersLocked()

	r.pausedState = &PausedState{Phase: previousPhase, RemainingMs: remainingMs}
	r.phase = PhaseManualPause
	r.manualPauseByName = strPtr(host.Name)
	r.clearPhaseDeadlinesLocked()
	r.hostReconnectEndsAt = nil

	r.appendSystemChatMessageLocked(
		fmt.Sprintf("Ведущий %s поставил игру на паузу. Чат открыт для всех.", hostDisplayName(host.Name)),
		"pause",
	)
	r.broadcastAndPersistLocked()
}

// resumeGameByHostLocked ends a manual pause and rearms the interrupted
// phase timer.
func (r *Room) resumeGameByHostLocked(host *Player) {
	if r.phase != PhaseManualPause {
		return
	}

	restoredPhase := PhaseQuestion
	var remainingMs int64
	if r.pausedState != nil {
		if manualPauseAllowedPhase(r.pausedState.Phase) {
			restoredPhase = r.pausedState.Phase
		}
		remainingMs = r.pausedState.RemainingMs
	}

	r.clearTimersLocked()
	r.phase = restoredPhase
	r.pausedState = nil
	r.manualPauseByName = nil
	r.clearPhaseDeadlinesLocked()

	r.schedulePhaseTimerLocked(restoredPhase, remainingMs)
	r.appendSystemChatMessageLocked(
		fmt.Sprintf("Ведущий %s возобновил игру.", hostDisplayName(host.Name)),
		"pause",
	)
	r.broadcastAndPersistLocked()
}

// togglePauseLocked flips between manual pause and resume.
func (r *Room) togglePauseLocked(host *Player) {
	if !host.IsHost || r.phase == PhaseHostReconnect {
		return
	}
	if r.phase == PhaseManualPause {
		r.resumeGameByHostLocked(host)
		return
	}
	r.pauseGameByHostLocked(host)
}
