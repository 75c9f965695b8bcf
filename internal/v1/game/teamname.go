package game

// canSetTeamNameLocked: in classic only the captain names the team; other
// modes let any non-host member do it.
func (r *Room) canSetTeamNameLocked(p *Player) bool {
	if r.phase != PhaseTeamNaming {
		return false
	}
	if p.Team != TeamA && p.Team != TeamB {
		return false
	}
	if r.gameMode == ModeClassic {
		return p.IsCaptain
	}
	return !p.IsHost
}

func defaultTeamName(team Team) string {
	if team == TeamA {
		return "Команда A"
	}
	return "Команда B"
}

// handleSetTeamNameLocked applies a chosen team name and marks the team
// ready. The first valid name locks the team in.
func (r *Room) handleSetTeamNameLocked(p *Player, rawName string) {
	if !r.canSetTeamNameLocked(p) || r.teamNamingReadyTeams[p.Team] {
		return
	}

	name := SanitizeTeamName(rawName, defaultTeamName(p.Team))
	r.teamNames[p.Team] = name
	r.usedTeamNames[NormalizeTeamName(name)] = struct{}{}
	r.teamNamingReadyTeams[p.Team] = true

	if r.areAllTeamsReadyLocked(r.teamNamingReadyTeams) {
		r.finalizeTeamNamingLocked()
		return
	}
	r.broadcastAndPersistLocked()
}

// handleRandomTeamNameLocked draws an unused name from the pool.
func (r *Room) handleRandomTeamNameLocked(p *Player) {
	if !r.canSetTeamNameLocked(p) || r.teamNamingReadyTeams[p.Team] {
		return
	}

	r.teamNames[p.Team] = r.randomUniqueTeamNameLocked(defaultTeamName(p.Team))
	r.teamNamingReadyTeams[p.Team] = true

	if r.areAllTeamsReadyLocked(r.teamNamingReadyTeams) {
		r.finalizeTeamNamingLocked()
		return
	}
	r.broadcastAndPersistLocked()
}

// randomUniqueTeamNameLocked picks a pool name not used in this room yet,
// falling back to the default once the pool runs dry.
func (r *Room) randomUniqueTeamNameLocked(fallback string) string {
	var available []string
	for _, name := range dynamicTeamNames {
		if _, used := r.usedTeamNames[NormalizeTeamName(name)]; !used {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return fallback
	}
	selected := available[r.deps.Rand.Intn(len(available))]
	r.usedTeamNames[NormalizeTeamName(selected)] = struct{}{}
	return selected
}

// recomputeTeamNamingReadinessLocked re-checks readiness after a roster
// change. Readiness only latches on; an empty team or a captainless
// classic team has nothing left to decide.
func (r *Room) recomputeTeamNamingReadinessLocked() {
	if r.phase != PhaseTeamNaming {
		return
	}
	for _, team := range TeamKeys {
		if r.teamNamingReadyTeams[team] {
			continue
		}
		if len(r.teamPlayersLocked(team)) == 0 {
			r.teamNamingReadyTeams[team] = true
			continue
		}
		if r.gameMode == ModeClassic && r.captains[team] == "" {
			r.teamNamingReadyTeams[team] = true
		}
	}
}
