package game

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/metrics"
	"github.com/quizbattle/quizroom/internal/v1/store"
)

// ProfileAssets carries the cosmetic profile of an authenticated player.
type ProfileAssets struct {
	Avatar             *string
	ProfileFrame       *string
	MascotSkinCat      *string
	MascotSkinDog      *string
	VictoryEffectFront *string
	VictoryEffectBack  *string
}

// JoinRequest is a decoded join payload with the caller's identity
// already resolved by the gateway.
type JoinRequest struct {
	Name         string
	WantsHost    bool
	HostToken    string
	RoomPassword string
	PlayerToken  string
	IdentityKey  string
	AuthUserID   *int64
	Assets       ProfileAssets
}

type connectedFrame struct {
	Type         string  `json:"type"`
	PeerID       string  `json:"peerId"`
	RoomID       string  `json:"roomId"`
	IsHost       bool    `json:"isHost"`
	IsSpectator  bool    `json:"isSpectator"`
	AssignedTeam *Team   `json:"assignedTeam"`
	PlayerToken  *string `json:"playerToken"`
}

func (p *Player) applyAssets(assets ProfileAssets) {
	p.Avatar = assets.Avatar
	p.ProfileFrame = assets.ProfileFrame
	p.MascotSkinCat = assets.MascotSkinCat
	p.MascotSkinDog = assets.MascotSkinDog
	p.VictoryEffectFront = assets.VictoryEffectFront
	p.VictoryEffectBack = assets.VictoryEffectBack
}

// Admit joins a connection to the room. A returning token or identity
// takes over its old seat (the stale socket is closed with 4002); the
// caller delivers the rejection frame and closes on a non-nil Rejection.
func (r *Room) Admit(conn Conn, req JoinRequest) (string, *Rejection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var duplicate *Player
	if req.PlayerToken != "" {
		if mappedPeerID, ok := r.playerTokens[req.PlayerToken]; ok {
			duplicate = r.players[mappedPeerID]
		}
	}
	if duplicate == nil && req.IdentityKey != "" {
		for _, p := range r.playersInOrderLocked() {
			if p.IdentityKey != "" && p.IdentityKey == req.IdentityKey {
				duplicate = p
				break
			}
		}
	}

	if duplicate != nil {
		if req.WantsHost != duplicate.IsHost {
			metrics.Admissions.WithLabelValues("rejected").Inc()
			return "", &Rejection{
				Code:    CodeAccountAlreadyInRoom,
				Message: "Этот пользователь уже находится в комнате. Повторный вход запрещен.",
			}
		}
		r.handoffLocked(duplicate, conn, req)
		return duplicate.PeerID, nil
	}

	if len(r.players) >= r.maxPlayers {
		metrics.Admissions.WithLabelValues("rejected").Inc()
		return "", &Rejection{
			Code:    CodeRoomFull,
			Message: fmt.Sprintf("Комната заполнена. Максимум %d участников.", r.maxPlayers),
		}
	}

	isHost := req.WantsHost
	if isHost {
		if r.hostTokenHash == "" || HashSecret(req.HostToken) != r.hostTokenHash {
			metrics.Admissions.WithLabelValues("rejected").Inc()
			return "", &Rejection{Code: CodeHostTokenInvalid, Message: "Недействительный токен ведущего"}
		}
	} else if r.roomPasswordHash != "" {
		if req.RoomPassword == "" {
			metrics.Admissions.WithLabelValues("rejected").Inc()
			return "", &Rejection{Code: CodeRoomPasswordRequired, Message: "Для этой комнаты требуется пароль"}
		}
		if HashSecret(req.RoomPassword) != r.roomPasswordHash {
			metrics.Admissions.WithLabelValues("rejected").Inc()
			return "", &Rejection{Code: CodeRoomPasswordInvalid, Message: "Неверный пароль комнаты"}
		}
	}

	peerID := randomID()
	var playerToken string
	if isHost {
		r.hostPeerID = peerID
		for _, existing := range r.players {
			existing.IsHost = false
			existing.IsSpectator = false
		}
	} else {
		playerToken = req.PlayerToken
		if playerToken == "" {
			playerToken = GenerateSecret(18)
		}
		for {
			if _, taken := r.playerTokens[playerToken]; !taken {
				break
			}
			playerToken = GenerateSecret(18)
		}
		r.playerTokens[playerToken] = peerID
	}

	// Joining mid-game means watching: late arrivals become spectators
	// until the next lobby.
	isPausedLobby := r.phase == PhaseHostReconnect &&
		r.pausedState != nil && r.pausedState.Phase == PhaseLobby
	isSpectator := false
	if !isHost && r.phase != PhaseLobby && !isPausedLobby {
		isSpectator = true
	}

	player := &Player{
		PeerID:      peerID,
		Name:        r.makeUniquePlayerNameLocked(req.Name, ""),
		IsHost:      isHost,
		IsSpectator: isSpectator,
		IdentityKey: req.IdentityKey,
		PlayerToken: playerToken,
		Conn:        conn,
		AuthUserID:  req.AuthUserID,
	}
	player.applyAssets(req.Assets)
	r.addPlayerLocked(player)

	if r.gameMode == ModeClassic && r.phase == PhaseCaptainVote {
		r.refreshCaptainVoteProgressLocked()
		r.scheduleSingleMemberAutoCaptainLocked()
	}

	metrics.Admissions.WithLabelValues("success").Inc()
	r.sendConnectedLocked(player)
	r.logger.Info("player connected",
		zap.String("peer_id", peerID),
		zap.Bool("is_host", isHost),
		zap.Bool("is_spectator", isSpectator))

	if isHost && r.phase == PhaseHostReconnect && r.hostReconnectEndsAt != nil {
		r.resumeAfterHostReconnectLocked()
	} else {
		r.broadcastAndPersistLocked()
	}
	return peerID, nil
}

// handoffLocked moves an existing seat onto a fresh connection.
func (r *Room) handoffLocked(p *Player, conn Conn, req JoinRequest) {
	if p.Conn != nil {
		p.Conn.CloseWithCode(CloseSessionHandoff)
	}
	p.Conn = conn
	p.Name = r.makeUniquePlayerNameLocked(req.Name, p.PeerID)
	p.IdentityKey = req.IdentityKey
	p.AuthUserID = req.AuthUserID
	p.applyAssets(req.Assets)

	metrics.Admissions.WithLabelValues("handoff").Inc()
	r.sendConnectedLocked(p)
	r.logger.Info("session handoff",
		zap.String("peer_id", p.PeerID),
		zap.Bool("is_host", p.IsHost))

	if p.IsHost && r.phase == PhaseHostReconnect && r.hostReconnectEndsAt != nil {
		r.resumeAfterHostReconnectLocked()
		return
	}
	r.markStateChangedLocked()
	r.broadcastStateLocked()
	r.persistLocked(store.SaveOptions{ForceHot: true})
}

func (r *Room) sendConnectedLocked(p *Player) {
	var assignedTeam *Team
	if r.phase != PhaseLobby {
		assignedTeam = teamPtr(p.Team)
	}
	var playerToken *string
	if p.PlayerToken != "" {
		playerToken = strPtr(p.PlayerToken)
	}
	r.sendTo(p, &connectedFrame{
		Type:         "connected",
		PeerID:       p.PeerID,
		RoomID:       r.roomID,
		IsHost:       p.IsHost,
		IsSpectator:  p.IsSpectator,
		AssignedTeam: assignedTeam,
		PlayerToken:  playerToken,
	})
}

// UpdateProfileAssets applies freshly resolved cosmetics for a player.
// Returns false when nothing changed.
func (r *Room) UpdateProfileAssets(peerID string, assets ProfileAssets) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[peerID]
	if !ok {
		return false
	}

	same := func(a, b *string) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	if same(p.Avatar, assets.Avatar) &&
		same(p.ProfileFrame, assets.ProfileFrame) &&
		same(p.MascotSkinCat, assets.MascotSkinCat) &&
		same(p.MascotSkinDog, assets.MascotSkinDog) &&
		same(p.VictoryEffectFront, assets.VictoryEffectFront) &&
		same(p.VictoryEffectBack, assets.VictoryEffectBack) {
		return false
	}
	p.applyAssets(assets)
	r.broadcastAndPersistLocked()
	return true
}

// PlayerAuthUserID exposes the account id bound to a seat, if any.
func (r *Room) PlayerAuthUserID(peerID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[peerID]
	if !ok || p.AuthUserID == nil {
		return 0, false
	}
	return *p.AuthUserID, true
}

// HandleDisconnect removes a departed connection and re-balances the
// game around the gap. Returns true when the room emptied out and
// should be evicted.
func (r *Room) HandleDisconnect(peerID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.players[peerID]
	if !ok {
		return false
	}
	if conn != nil && current.Conn != conn {
		// Stale close from the old socket after a session handoff.
		metrics.StaleDisconnects.Inc()
		return false
	}

	removed := r.removePlayerLocked(peerID)
	if removed == nil {
		return false
	}
	if removed.PlayerToken != "" && r.playerTokens[removed.PlayerToken] == peerID {
		delete(r.playerTokens, removed.PlayerToken)
	}
	delete(r.answerSubmissions, peerID)
	delete(r.chatModerationStrikes, peerID)
	r.removeSkipRequesterLocked(peerID)

	var leftMessage string
	if !removed.IsHost {
		name := removed.Name
		if name == "" {
			name = fallbackPlayerName
		}
		leftMessage = fmt.Sprintf("Участник %s вышел из игры.", truncateRunes(name, 24))
	}

	r.cleanupVotesForPlayerLocked(peerID)

	if len(r.players) == 0 {
		r.clearTimersLocked()
		r.markStateChangedLocked()
		r.persistLocked(store.SaveOptions{})
		r.logger.Info("room emptied", zap.String("peer_id", peerID))
		return true
	}

	if removed.IsHost || r.hostPeerID == peerID {
		if !r.pauseForHostReconnectLocked(removed.Name) {
			r.assignNewHostLocked()
		}
	}

	if r.gameMode == ModeClassic && (removed.Team == TeamA || removed.Team == TeamB) &&
		r.captains[removed.Team] == peerID {
		r.captains[removed.Team] = ""
		if r.phase == PhaseTeamNaming {
			r.teamNamingReadyTeams[removed.Team] = false
			r.reassignCaptainIfNeededLocked(removed.Team)
			if r.captains[removed.Team] == "" {
				r.teamNamingReadyTeams[removed.Team] = true
			}
		}
		r.applyCaptainFlagsLocked()
	}

	if r.phase == PhaseLobby {
		for _, p := range r.players {
			if !p.IsHost {
				p.IsSpectator = false
				p.Team = ""
				p.IsCaptain = false
			}
		}
	}

	stopReason := ""
	if leftMessage != "" {
		stopReason = leftMessage + " Игра остановлена: в комнате недостаточно участников для двух команд."
	}
	if r.stopTeamModeIfNotEnoughPlayersLocked(stopReason) {
		return false
	}

	if r.gameMode == ModeClassic && r.phase == PhaseCaptainVote {
		r.refreshCaptainVoteProgressLocked()
		r.scheduleSingleMemberAutoCaptainLocked()
		if r.areAllTeamsReadyLocked(r.captainVoteReadyTeams) {
			r.finalizeCaptainVoteLocked()
			r.appendLeftAndBroadcastLocked(leftMessage)
			return false
		}
	}

	if r.phase == PhaseTeamNaming {
		r.recomputeTeamNamingReadinessLocked()
		if r.areAllTeamsReadyLocked(r.teamNamingReadyTeams) {
			r.finalizeTeamNamingLocked()
			r.appendLeftAndBroadcastLocked(leftMessage)
			return false
		}
	}

	if r.phase == PhaseQuestion && (r.gameMode == ModeFFA || r.gameMode == ModeChaos) {
		eligible := r.answerEligiblePlayersLocked()
		if len(eligible) > 0 && len(r.answerSubmissions) >= len(eligible) {
			r.finalizeQuestionLocked()
			r.appendLeftAndBroadcastLocked(leftMessage)
			return false
		}
	}

	r.appendLeftAndBroadcastLocked(leftMessage)
	return false
}

func (r *Room) appendLeftAndBroadcastLocked(leftMessage string) {
	if leftMessage != "" {
		r.appendSystemChatMessageLocked(leftMessage, "presence")
	}
	r.broadcastAndPersistLocked()
}
