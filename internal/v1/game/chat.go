package game

import (
	"fmt"
	"strings"
)

const (
	chatSystemPeerID = "system"
	chatSystemName   = "Система"
	chatTextLimit    = 280
)

// appendChatMessageLocked appends one message and trims the chat to its
// retention window. Returns the stored message id.
func (r *Room) appendChatMessageLocked(msg ChatMessage) string {
	r.chat = append(r.chat, msg)
	if len(r.chat) > ChatHistoryLimit {
		r.chat = r.chat[len(r.chat)-ChatHistoryLimit:]
	}
	return msg.ID
}

// appendSystemChatMessageLocked posts an announcement visible to everyone
// and mirrors it into the event log.
func (r *Room) appendSystemChatMessageLocked(text, kind string) string {
	id := r.appendChatMessageLocked(ChatMessage{
		ID:         randomID(),
		From:       chatSystemPeerID,
		Name:       chatSystemName,
		Text:       text,
		Timestamp:  r.nowMs(),
		Visibility: "all",
		Kind:       kind,
	})
	r.appendResultEventLocked(text, kind, nil)
	return id
}

// canPlayerSeeMessageLocked decides chat visibility for one viewer. The
// checks are ordered: announcements first, then the host/spectator
// bypass, then mode-specific team scoping.
func (r *Room) canPlayerSeeMessageLocked(viewer *Player, msg ChatMessage) bool {
	if msg.Kind == "presence" && msg.Visibility == "all" {
		return true
	}
	if msg.Kind == "skip-request" && msg.Visibility == "all" {
		return true
	}
	if msg.Visibility == "host" {
		return viewer.IsHost || viewer.IsSpectator
	}
	if r.gameMode == ModeFFA && r.phase == PhaseQuestion {
		if viewer.IsHost || viewer.IsSpectator {
			return true
		}
		_, submitted := r.answerSubmissions[viewer.PeerID]
		return submitted
	}
	if r.phase == PhaseManualPause {
		return true
	}
	if viewer.IsHost || viewer.IsSpectator {
		return true
	}
	if r.gameMode == ModeFFA {
		return true
	}
	if r.gameMode == ModeChaos {
		return msg.Visibility == "all" || msg.Visibility == string(viewer.Team)
	}
	if r.phase == PhaseQuestion {
		if viewer.Team != r.activeTeam {
			return false
		}
		return msg.Visibility == "all" || msg.Visibility == string(r.activeTeam)
	}
	return msg.Visibility == "all" || msg.Visibility == string(viewer.Team)
}

// handleSendChatLocked posts a player message. During the question phase
// the chat narrows: ffa players must have answered, chaos players need a
// team, and classic restricts to the active team's channel.
func (r *Room) handleSendChatLocked(p *Player, rawText string) {
	if p.IsSpectator {
		return
	}
	text := truncateRunes(strings.TrimSpace(rawText), chatTextLimit)
	if text == "" {
		return
	}

	visibility := "all"
	if r.phase == PhaseQuestion {
		switch r.gameMode {
		case ModeFFA:
			if !p.IsHost {
				if _, submitted := r.answerSubmissions[p.PeerID]; !submitted {
					return
				}
			}
		case ModeChaos:
			if p.IsHost || (p.Team != TeamA && p.Team != TeamB) {
				return
			}
		default:
			if p.IsHost || p.Team != r.activeTeam {
				return
			}
			visibility = string(r.activeTeam)
		}
	}

	r.appendChatMessageLocked(ChatMessage{
		ID:         randomID(),
		From:       p.PeerID,
		Name:       p.Name,
		Text:       text,
		Timestamp:  r.nowMs(),
		Visibility: visibility,
	})
	r.broadcastAndPersistLocked()
}

// moderateChatMessageLocked removes a message and strikes its author.
// Three strikes disqualify the offender to spectator.
func (r *Room) moderateChatMessageLocked(host *Player, messageID string) {
	if !host.IsHost || r.phase == PhaseLobby || messageID == "" {
		return
	}

	index := -1
	for i, msg := range r.chat {
		if msg.ID == messageID {
			index = i
			break
		}
	}
	if index < 0 {
		return
	}
	removed := r.chat[index]
	if removed.From == chatSystemPeerID || removed.Kind == "skip-request" {
		return
	}
	r.chat = append(r.chat[:index], r.chat[index+1:]...)

	offender, present := r.players[removed.From]
	if !present {
		r.broadcastAndPersistLocked()
		return
	}

	r.chatModerationStrikes[offender.PeerID]++
	strikes := r.chatModerationStrikes[offender.PeerID]
	if strikes >= StrikesToDisqualify {
		r.disqualifyPlayerLocked(offender, strikes)
	} else {
		remaining := StrikesToDisqualify - strikes
		times := "раза"
		if remaining == 1 {
			times = "раз"
		}
		message := fmt.Sprintf("Ваше сообщение удалено ведущим. Если получите бан ещё %d %s, вас дисквалифицируют.", remaining, times)
		r.sendTo(offender, map[string]any{
			"type":         "moderation-notice",
			"message":      message,
			"level":        "warning",
			"strikes":      strikes,
			"disqualified": false,
		})
	}

	r.runRosterCascadeLocked()
	r.broadcastAndPersistLocked()
}

// disqualifyPlayerLocked demotes the offender to spectator and unwinds
// their in-flight game participation.
func (r *Room) disqualifyPlayerLocked(offender *Player, strikes int) {
	wasCaptainTeam := Team("")
	if offender.IsCaptain && r.gameMode == ModeClassic {
		wasCaptainTeam = offender.Team
	}

	offender.IsSpectator = true
	offender.Team = ""
	offender.IsCaptain = false
	delete(r.answerSubmissions, offender.PeerID)
	r.cleanupVotesForPlayerLocked(offender.PeerID)
	r.removeSkipRequesterLocked(offender.PeerID)

	if wasCaptainTeam == TeamA || wasCaptainTeam == TeamB {
		r.captains[wasCaptainTeam] = ""
		if r.phase == PhaseTeamNaming {
			r.teamNamingReadyTeams[wasCaptainTeam] = false
			r.reassignCaptainIfNeededLocked(wasCaptainTeam)
			if r.captains[wasCaptainTeam] == "" {
				r.teamNamingReadyTeams[wasCaptainTeam] = true
			}
		}
		r.applyCaptainFlagsLocked()
	}

	message := fmt.Sprintf("Участник %s дисквалифицирован за повторные нарушения.", offender.Name)
	r.appendSystemChatMessageLocked(message, "moderation")
	r.sendTo(offender, map[string]any{
		"type":         "moderation-notice",
		"message":      message,
		"level":        "error",
		"strikes":      strikes,
		"disqualified": true,
	})
}

// runRosterCascadeLocked re-evaluates phase completion after a player
// stopped participating: a vote may now be complete, a naming round
// ready, or a question fully answered.
func (r *Room) runRosterCascadeLocked() {
	switch r.phase {
	case PhaseCaptainVote:
		r.refreshCaptainVoteProgressLocked()
		r.scheduleSingleMemberAutoCaptainLocked()
		if r.areAllTeamsReadyLocked(r.captainVoteReadyTeams) {
			r.finalizeCaptainVoteLocked()
		}
	case PhaseTeamNaming:
		r.recomputeTeamNamingReadinessLocked()
		if r.areAllTeamsReadyLocked(r.teamNamingReadyTeams) {
			r.finalizeTeamNamingLocked()
		}
	case PhaseQuestion:
		if r.gameMode == ModeFFA || r.gameMode == ModeChaos {
			eligible := r.answerEligiblePlayersLocked()
			if len(eligible) > 0 && len(r.answerSubmissions) >= len(eligible) {
				r.finalizeQuestionLocked()
			}
		}
	}
}

// requestSkipQuestionLocked registers one player's wish to skip the
// current question. A host rejection latches until the next question.
func (r *Room) requestSkipQuestionLocked(p *Player) {
	if r.phase != PhaseQuestion || p.IsHost || p.IsSpectator {
		return
	}
	if r.skipRequestStatus == SkipRejected {
		return
	}
	if _, requested := r.skipRequesters[p.PeerID]; requested {
		return
	}
	r.skipRequesters[p.PeerID] = struct{}{}
	r.skipRequestStatus = SkipPending
	r.upsertSkipRequestHostMessageLocked()
	r.broadcastAndPersistLocked()
}

// resolveSkipRequestLocked applies the host's decision on a pending skip.
func (r *Room) resolveSkipRequestLocked(host *Player, decision string) {
	if !host.IsHost || r.phase != PhaseQuestion {
		return
	}
	switch decision {
	case "approve":
		if r.skipRequestStatus == SkipPending && len(r.skipRequesters) > 0 {
			r.skipQuestionByHostLocked(host)
		}
	case "reject":
		if r.skipRequestStatus == SkipPending {
			r.skipRequestStatus = SkipRejected
			r.upsertSkipRequestHostMessageLocked()
			r.broadcastAndPersistLocked()
		}
	}
}

// removeSkipRequesterLocked drops one requester, returning the request to
// idle when nobody is left asking.
func (r *Room) removeSkipRequesterLocked(peerID string) {
	if _, requested := r.skipRequesters[peerID]; !requested {
		return
	}
	delete(r.skipRequesters, peerID)
	if r.skipRequestStatus == SkipPending && len(r.skipRequesters) == 0 {
		r.skipRequestStatus = SkipIdle
	}
	r.upsertSkipRequestHostMessageLocked()
}

// skipRequesterNamesLocked lists requester names in join order.
func (r *Room) skipRequesterNamesLocked() []string {
	names := make([]string, 0, len(r.skipRequesters))
	for _, p := range r.playersInOrderLocked() {
		if _, requested := r.skipRequesters[p.PeerID]; requested {
			names = append(names, p.Name)
		}
	}
	return names
}

// upsertSkipRequestHostMessageLocked maintains the pinned system message
// mirroring the skip request state. An empty state removes the pin.
func (r *Room) upsertSkipRequestHostMessageLocked() {
	if r.phase != PhaseQuestion {
		r.skipRequesters = make(map[string]struct{})
		r.skipRequestStatus = SkipIdle
	}
	if r.skipRequestStatus == SkipPending && len(r.skipRequesters) == 0 {
		r.skipRequestStatus = SkipIdle
	}

	var text string
	switch {
	case r.skipRequestStatus == SkipRejected:
		text = "Запрос на пропуск вопроса отклонён."
	case r.skipRequestStatus == SkipPending && len(r.skipRequesters) > 0:
		names := r.skipRequesterNamesLocked()
		if len(names) == 1 {
			text = fmt.Sprintf("Участник %s попросил пропустить вопрос.", names[0])
		} else {
			text = fmt.Sprintf("Участники %s попросили пропустить вопрос.", strings.Join(names, ", "))
		}
	}

	if text == "" {
		if r.skipRequestMessageID != nil {
			id := *r.skipRequestMessageID
			for i, msg := range r.chat {
				if msg.ID == id {
					r.chat = append(r.chat[:i], r.chat[i+1:]...)
					break
				}
			}
			r.skipRequestMessageID = nil
		}
		return
	}

	if r.skipRequestMessageID != nil {
		for i := range r.chat {
			if r.chat[i].ID == *r.skipRequestMessageID {
				r.chat[i].Text = text
				r.chat[i].Timestamp = r.nowMs()
				r.chat[i].Visibility = "all"
				r.chat[i].Kind = "skip-request"
				return
			}
		}
	}

	id := r.appendChatMessageLocked(ChatMessage{
		ID:         randomID(),
		From:       chatSystemPeerID,
		Name:       chatSystemName,
		Text:       text,
		Timestamp:  r.nowMs(),
		Visibility: "all",
		Kind:       "skip-request",
	})
	r.skipRequestMessageID = &id
}
