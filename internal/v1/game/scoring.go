package game

// appendResultEventLocked records one line of the game event log,
// trimming to the retention window.
func (r *Room) appendResultEventLocked(text, kind string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	r.eventHistory = append(r.eventHistory, EventEntry{
		ID:        randomID(),
		Timestamp: r.nowMs(),
		Kind:      kind,
		Text:      truncateRunes(text, 280),
		Payload:   payload,
	})
	if len(r.eventHistory) > EventHistoryLimit {
		r.eventHistory = r.eventHistory[len(r.eventHistory)-EventHistoryLimit:]
	}
}

func (r *Room) appendQuestionHistoryLocked(entry QuestionHistoryEntry) {
	r.questionHistory = append(r.questionHistory, entry)
	if len(r.questionHistory) > QuestionHistoryLimit {
		r.questionHistory = r.questionHistory[len(r.questionHistory)-QuestionHistoryLimit:]
	}
}

// ensurePlayerStatEntryLocked fetches or creates the stat row for a
// player, refreshing the mutable identity fields.
func (r *Room) ensurePlayerStatEntryLocked(p *Player) *PlayerStat {
	stat, ok := r.playerStats[p.PeerID]
	if !ok {
		stat = &PlayerStat{PeerID: p.PeerID}
		r.playerStats[p.PeerID] = stat
	}
	stat.Name = p.Name
	stat.Team = teamPtr(p.Team)
	stat.AccountUserID = p.AuthUserID
	return stat
}

// recordPlayerAnswerStatLocked folds one answer into the per-player
// aggregates. Response time is measured from the question start.
func (r *Room) recordPlayerAnswerStatLocked(p *Player, isCorrect bool, pointsAwarded int, remainingMs int64, answeredAt int64) *PlayerStat {
	stat := r.ensurePlayerStatEntryLocked(p)
	stat.Answers++
	if isCorrect {
		stat.CorrectAnswers++
	} else {
		stat.WrongAnswers++
	}
	if pointsAwarded > 0 {
		stat.Points += pointsAwarded
	}

	responseMs := QuestionTimeMs - max64(0, remainingMs)
	if responseMs < 0 {
		responseMs = 0
	}
	stat.TotalResponseMs += responseMs
	if stat.FastestResponseMs == nil || responseMs < *stat.FastestResponseMs {
		stat.FastestResponseMs = int64Ptr(responseMs)
	}
	if answeredAt <= 0 {
		answeredAt = r.nowMs()
	}
	stat.LastAnsweredAt = int64Ptr(answeredAt)
	return stat
}

func (r *Room) recordPlayerSkipStatLocked(p *Player) *PlayerStat {
	stat := r.ensurePlayerStatEntryLocked(p)
	stat.SkippedAnswers++
	return stat
}

// initializeResultTrackingLocked resets histories and seeds a stat row
// for every active participant at game start.
func (r *Room) initializeResultTrackingLocked() {
	r.playerStats = make(map[string]*PlayerStat)
	r.questionHistory = nil
	r.eventHistory = nil
	for _, p := range r.playersInOrderLocked() {
		if p.IsHost || p.IsSpectator {
			continue
		}
		r.ensurePlayerStatEntryLocked(p)
	}
}

// syncPlayerStatsMetadataLocked refreshes names and teams on stat rows of
// players still connected, keeping result tables consistent after renames.
func (r *Room) syncPlayerStatsMetadataLocked() {
	for _, p := range r.players {
		stat, ok := r.playerStats[p.PeerID]
		if !ok {
			continue
		}
		stat.Name = p.Name
		stat.Team = teamPtr(p.Team)
		stat.AccountUserID = p.AuthUserID
	}
}
