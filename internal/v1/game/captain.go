package game

// resetCaptainStateLocked wipes votes, ballots and captain flags.
func (r *Room) resetCaptainStateLocked() {
	r.captainVotes = map[Team]map[string]int{TeamA: {}, TeamB: {}}
	r.captainBallots = map[Team]map[string]string{TeamA: {}, TeamB: {}}
	r.captains = map[Team]string{}
	r.captainVoteReadyTeams = map[Team]bool{TeamA: false, TeamB: false}
	r.teamNamingReadyTeams = map[Team]bool{TeamA: false, TeamB: false}
	for _, p := range r.players {
		p.IsCaptain = false
	}
}

func (r *Room) applyCaptainFlagsLocked() {
	for _, p := range r.players {
		if p.IsHost {
			p.IsCaptain = false
			continue
		}
		p.IsCaptain = (p.Team == TeamA && r.captains[TeamA] == p.PeerID) ||
			(p.Team == TeamB && r.captains[TeamB] == p.PeerID)
	}
}

func (r *Room) teamVotesCountLocked(team Team) int {
	total := 0
	for _, count := range r.captainVotes[team] {
		if count > 0 {
			total += count
		}
	}
	return total
}

// chooseCaptainByVotesLocked picks the plurality leader, breaking ties
// uniformly. Teams without votes get a random member.
func (r *Room) chooseCaptainByVotesLocked(team Team) string {
	players := r.teamPlayersLocked(team)
	if len(players) == 0 {
		return ""
	}

	votes := r.captainVotes[team]
	if len(votes) == 0 {
		if candidate := r.randomPlayerLocked(players); candidate != nil {
			return candidate.PeerID
		}
		return ""
	}

	maxVotes := 0
	for _, count := range votes {
		if count > maxVotes {
			maxVotes = count
		}
	}
	var leaders []string
	for _, p := range players {
		if votes[p.PeerID] == maxVotes && maxVotes > 0 {
			leaders = append(leaders, p.PeerID)
		}
	}
	if len(leaders) == 0 {
		if candidate := r.randomPlayerLocked(players); candidate != nil {
			return candidate.PeerID
		}
		return ""
	}
	return leaders[r.deps.Rand.Intn(len(leaders))]
}

// isCaptainVoteReadyForTeamLocked: empty teams are trivially ready, a
// lone member with a captain is ready, otherwise every member must vote.
func (r *Room) isCaptainVoteReadyForTeamLocked(team Team) bool {
	members := len(r.teamPlayersLocked(team))
	if members == 0 {
		return true
	}
	if members == 1 && r.captains[team] != "" {
		return true
	}
	return r.teamVotesCountLocked(team) >= members
}

func (r *Room) areAllTeamsReadyLocked(ready map[Team]bool) bool {
	return ready[TeamA] && ready[TeamB]
}

// refreshCaptainVoteProgressLocked recomputes readiness and provisional
// captains after any vote or roster change.
func (r *Room) refreshCaptainVoteProgressLocked() {
	for _, team := range TeamKeys {
		ready := r.isCaptainVoteReadyForTeamLocked(team)
		r.captainVoteReadyTeams[team] = ready
		if ready {
			if r.captains[team] == "" {
				r.captains[team] = r.chooseCaptainByVotesLocked(team)
			}
		} else {
			r.captains[team] = ""
		}
	}
	r.applyCaptainFlagsLocked()
}

func (r *Room) singleMemberTeamsWaitingCaptainLocked() []Team {
	if r.phase != PhaseCaptainVote {
		return nil
	}
	var teams []Team
	for _, team := range TeamKeys {
		if r.captainVoteReadyTeams[team] {
			continue
		}
		if len(r.teamPlayersLocked(team)) == 1 {
			teams = append(teams, team)
		}
	}
	return teams
}

// scheduleSingleMemberAutoCaptainLocked promotes lone team members to
// captain after a short grace so a joining teammate can still trigger a
// real vote.
func (r *Room) scheduleSingleMemberAutoCaptainLocked() {
	r.cancelTimerLocked(timerCaptainAuto)
	teamsForAuto := r.singleMemberTeamsWaitingCaptainLocked()
	if len(teamsForAuto) == 0 {
		return
	}

	r.scheduleTimerLocked(timerCaptainAuto, CaptainAutoPickDelayMs, func() {
		if r.phase != PhaseCaptainVote {
			return
		}
		changed := false
		for _, team := range teamsForAuto {
			if r.captainVoteReadyTeams[team] {
				continue
			}
			members := r.teamPlayersLocked(team)
			if len(members) != 1 {
				continue
			}
			r.captains[team] = members[0].PeerID
			r.captainVoteReadyTeams[team] = true
			changed = true
		}
		if changed {
			r.applyCaptainFlagsLocked()
		}
		if r.areAllTeamsReadyLocked(r.captainVoteReadyTeams) {
			r.finalizeCaptainVoteLocked()
			return
		}
		if changed {
			r.broadcastAndPersistLocked()
		}
	})
}

// handleVoteCaptainLocked records or recasts one ballot.
func (r *Room) handleVoteCaptainLocked(p *Player, candidatePeerID string) {
	if r.gameMode != ModeClassic || r.phase != PhaseCaptainVote {
		return
	}
	if p.IsHost || (p.Team != TeamA && p.Team != TeamB) {
		return
	}
	if r.captainVoteReadyTeams[p.Team] {
		return
	}
	if candidatePeerID == "" || candidatePeerID == p.PeerID {
		return
	}
	candidate, ok := r.players[candidatePeerID]
	if !ok || candidate.IsHost || candidate.Team != p.Team {
		return
	}

	team := p.Team
	if previous, voted := r.captainBallots[team][p.PeerID]; voted && previous != "" {
		next := r.captainVotes[team][previous] - 1
		if next <= 0 {
			delete(r.captainVotes[team], previous)
		} else {
			r.captainVotes[team][previous] = next
		}
	}
	r.captainBallots[team][p.PeerID] = candidatePeerID
	r.captainVotes[team][candidatePeerID]++

	r.refreshCaptainVoteProgressLocked()
	r.scheduleSingleMemberAutoCaptainLocked()
	if r.areAllTeamsReadyLocked(r.captainVoteReadyTeams) {
		r.finalizeCaptainVoteLocked()
		return
	}
	r.broadcastAndPersistLocked()
}

// cleanupVotesForPlayerLocked unwinds a departing player's ballot and any
// ballots cast for them.
func (r *Room) cleanupVotesForPlayerLocked(peerID string) {
	for _, team := range TeamKeys {
		if previous, voted := r.captainBallots[team][peerID]; voted && previous != "" {
			next := r.captainVotes[team][previous] - 1
			if next <= 0 {
				delete(r.captainVotes[team], previous)
			} else {
				r.captainVotes[team][previous] = next
			}
		}
		delete(r.captainBallots[team], peerID)
		delete(r.captainVotes[team], peerID)

		for voter, candidate := range r.captainBallots[team] {
			if candidate == peerID {
				delete(r.captainBallots[team], voter)
			}
		}
	}
}

// reassignCaptainIfNeededLocked picks a replacement captain at random
// when a team lost its captain mid team-naming.
func (r *Room) reassignCaptainIfNeededLocked(team Team) {
	if r.captains[team] != "" {
		return
	}
	candidate := r.randomPlayerLocked(r.teamPlayersLocked(team))
	if candidate != nil {
		r.captains[team] = candidate.PeerID
	} else {
		r.captains[team] = ""
	}
	r.applyCaptainFlagsLocked()
}
