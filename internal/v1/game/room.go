package game

import (
	"context"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/catalog"
	"github.com/quizbattle/quizroom/internal/v1/logging"
	"github.com/quizbattle/quizroom/internal/v1/metrics"
	"github.com/quizbattle/quizroom/internal/v1/store"
)

const persistTimeout = 5 * time.Second

// Config fixes the immutable identity of a room at creation time.
type Config struct {
	RoomID           string
	Topic            string
	QuestionCount    int
	DifficultyMode   catalog.DifficultyMode
	GameMode         GameMode
	HostTokenHash    string
	RoomPasswordHash string
}

// Deps are the collaborators a room needs. Store may be nil in tests;
// Now and Rand default to the real clock and a seeded source.
type Deps struct {
	Store      *store.Tiered
	Catalog    *catalog.Catalog
	Logger     *zap.Logger
	Now        func() time.Time
	Rand       *mrand.Rand
	MaxPlayers int
}

// Room is a single quiz session. All mutable state is guarded by mu;
// methods with the Locked suffix require it to be held.
type Room struct {
	mu sync.Mutex

	roomID         string
	topic          string
	difficultyMode catalog.DifficultyMode
	gameMode       GameMode
	questionCount  int
	questions      []catalog.Question

	players      map[string]*Player
	playerOrder  []string
	playerTokens map[string]string
	hostPeerID   string

	hostTokenHash    string
	roomPasswordHash string

	phase                Phase
	currentQuestionIndex int
	activeTeam           Team

	questionEndsAt      *int64
	teamRevealEndsAt    *int64
	captainVoteEndsAt   *int64
	teamNamingEndsAt    *int64
	revealEndsAt        *int64
	hostReconnectEndsAt *int64

	disconnectedHostName         *string
	disconnectedHostExpectedName *string
	pausedState                  *PausedState
	manualPauseByName            *string

	activeAnswer         *ActiveAnswer
	answerSubmissions    map[string]*Submission
	skipRequesters       map[string]struct{}
	skipRequestStatus    SkipRequestStatus
	skipRequestMessageID *string
	lastReveal           *RevealRecord

	scores               map[Team]int
	playerScores         map[string]int
	playerStats          map[string]*PlayerStat
	questionHistory      []QuestionHistoryEntry
	eventHistory         []EventEntry
	chat                 []ChatMessage
	chatModerationStrikes map[string]int

	captains               map[Team]string
	captainVotes           map[Team]map[string]int
	captainBallots         map[Team]map[string]string
	captainVoteReadyTeams  map[Team]bool
	teamNamingReadyTeams   map[Team]bool
	teamNames              map[Team]string
	usedTeamNames          map[string]struct{}

	stateVersion int64

	timers   map[string]*time.Timer
	timerGen map[string]uint64
	closed   bool

	deps       Deps
	maxPlayers int
	logger     *zap.Logger
}

// RandomRoomCode builds a join code from the unambiguous alphabet.
func RandomRoomCode(rng *mrand.Rand, length int) string {
	if length < 4 {
		length = 4
	}
	code := make([]byte, length)
	for i := range code {
		code[i] = roomCodeChars[rng.Intn(len(roomCodeChars))]
	}
	return string(code)
}

// NewRoom builds an empty lobby with a fresh question set.
func NewRoom(cfg Config, deps Deps) *Room {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	if deps.Logger == nil {
		deps.Logger = logging.GetLogger()
	}
	if deps.MaxPlayers < 2 {
		deps.MaxPlayers = DefaultMaxPlayers
	}

	topic := cfg.Topic
	count := catalog.ClampQuestionCount(cfg.QuestionCount)
	mode := catalog.NormalizeDifficultyMode(string(cfg.DifficultyMode))
	if deps.Catalog != nil {
		topic = deps.Catalog.NormalizeTopic(topic)
	}

	r := &Room{
		roomID:           SanitizeRoomID(cfg.RoomID),
		topic:            topic,
		difficultyMode:   mode,
		gameMode:         NormalizeGameMode(string(cfg.GameMode)),
		questionCount:    count,
		hostTokenHash:    cfg.HostTokenHash,
		roomPasswordHash: cfg.RoomPasswordHash,

		players:      make(map[string]*Player),
		playerTokens: make(map[string]string),

		phase:                PhaseLobby,
		currentQuestionIndex: -1,
		activeTeam:           TeamA,

		answerSubmissions:     make(map[string]*Submission),
		skipRequesters:        make(map[string]struct{}),
		skipRequestStatus:     SkipIdle,
		scores:                map[Team]int{TeamA: 0, TeamB: 0},
		playerScores:          make(map[string]int),
		playerStats:           make(map[string]*PlayerStat),
		chatModerationStrikes: make(map[string]int),

		captains:              map[Team]string{},
		captainVotes:          map[Team]map[string]int{TeamA: {}, TeamB: {}},
		captainBallots:        map[Team]map[string]string{TeamA: {}, TeamB: {}},
		captainVoteReadyTeams: map[Team]bool{TeamA: false, TeamB: false},
		teamNamingReadyTeams:  map[Team]bool{TeamA: false, TeamB: false},
		teamNames:             map[Team]string{TeamA: "Команда A", TeamB: "Команда B"},
		usedTeamNames:         make(map[string]struct{}),

		stateVersion: 1,
		timers:       make(map[string]*time.Timer),
		timerGen:     make(map[string]uint64),

		deps:       deps,
		maxPlayers: deps.MaxPlayers,
	}
	r.logger = deps.Logger.With(zap.String("room_id", r.roomID))
	r.questions = r.createQuestions()
	return r
}

// RoomID returns the immutable join code.
func (r *Room) RoomID() string { return r.roomID }

// PlayerCount reports the number of connected participants.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// IsEmpty reports whether no participant is connected.
func (r *Room) IsEmpty() bool { return r.PlayerCount() == 0 }

func (r *Room) nowMs() int64 {
	return r.deps.Now().UnixMilli()
}

func (r *Room) createQuestions() []catalog.Question {
	if r.deps.Catalog == nil {
		return nil
	}
	return r.deps.Catalog.CreateTopicQuestions(r.topic, r.questionCount, r.difficultyMode)
}

func (r *Room) markStateChangedLocked() {
	if r.stateVersion < 1 {
		r.stateVersion = 1
	}
	r.stateVersion++
}

// playersInOrderLocked iterates participants in join order, matching the
// order clients see in the lobby list.
func (r *Room) playersInOrderLocked() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, peerID := range r.playerOrder {
		if p, ok := r.players[peerID]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) addPlayerLocked(p *Player) {
	r.players[p.PeerID] = p
	r.playerOrder = append(r.playerOrder, p.PeerID)
	metrics.RoomParticipants.WithLabelValues(r.roomID).Set(float64(len(r.players)))
}

func (r *Room) removePlayerLocked(peerID string) *Player {
	p, ok := r.players[peerID]
	if !ok {
		return nil
	}
	delete(r.players, peerID)
	for i, id := range r.playerOrder {
		if id == peerID {
			r.playerOrder = append(r.playerOrder[:i], r.playerOrder[i+1:]...)
			break
		}
	}
	metrics.RoomParticipants.WithLabelValues(r.roomID).Set(float64(len(r.players)))
	return p
}

func (r *Room) teamPlayersLocked(team Team) []*Player {
	var out []*Player
	for _, p := range r.playersInOrderLocked() {
		if !p.IsHost && p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) nonHostPlayersLocked() []*Player {
	var out []*Player
	for _, p := range r.playersInOrderLocked() {
		if !p.IsHost {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) activeNonHostPlayersLocked() []*Player {
	var out []*Player
	for _, p := range r.playersInOrderLocked() {
		if !p.IsHost && !p.IsSpectator {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) activeTeamPlayersLocked(team Team) []*Player {
	var out []*Player
	for _, p := range r.playersInOrderLocked() {
		if !p.IsHost && !p.IsSpectator && p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

// answerEligiblePlayersLocked lists who must answer the current question.
func (r *Room) answerEligiblePlayersLocked() []*Player {
	switch r.gameMode {
	case ModeFFA:
		return r.activeNonHostPlayersLocked()
	case ModeChaos:
		var out []*Player
		for _, p := range r.activeNonHostPlayersLocked() {
			if p.Team == TeamA || p.Team == TeamB {
				out = append(out, p)
			}
		}
		return out
	default:
		captainPeerID := r.captains[r.activeTeam]
		if captainPeerID == "" {
			return nil
		}
		captain, ok := r.players[captainPeerID]
		if !ok || captain.IsHost {
			return nil
		}
		return []*Player{captain}
	}
}

func (r *Room) playerNameForPeerLocked(peerID, fallback string) string {
	if p, ok := r.players[peerID]; ok && p.Name != "" {
		return p.Name
	}
	if stat, ok := r.playerStats[peerID]; ok && stat.Name != "" {
		return truncateRunes(stat.Name, 24)
	}
	return fallback
}

// makeUniquePlayerNameLocked appends " #N" until the name is unique.
func (r *Room) makeUniquePlayerNameLocked(requested string, excludePeerID string) string {
	base := SanitizePlayerName(requested)
	used := make(map[string]struct{}, len(r.players))
	for _, p := range r.players {
		if excludePeerID != "" && p.PeerID == excludePeerID {
			continue
		}
		used[NormalizePlayerName(p.Name)] = struct{}{}
	}
	if _, taken := used[NormalizePlayerName(base)]; !taken {
		return base
	}
	for index := 2; index < 1000; index++ {
		suffix := fmt.Sprintf(" #%d", index)
		limit := 24 - len([]rune(suffix))
		if limit < 1 {
			limit = 1
		}
		candidate := fmt.Sprintf("%s%s", trimRightSpace(truncateRunes(base, limit)), suffix)
		if _, taken := used[NormalizePlayerName(candidate)]; !taken {
			return candidate
		}
	}
	return fmt.Sprintf("%s #%d", trimRightSpace(truncateRunes(base, 20)), 1000+r.deps.Rand.Intn(9000))
}

func trimRightSpace(s string) string {
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func (r *Room) randomPlayerLocked(players []*Player) *Player {
	if len(players) == 0 {
		return nil
	}
	return players[r.deps.Rand.Intn(len(players))]
}

func (r *Room) shufflePlayersLocked(players []*Player) []*Player {
	out := make([]*Player, len(players))
	copy(out, players)
	r.deps.Rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// sendTo pushes a frame to one participant, counting drops.
func (r *Room) sendTo(p *Player, payload any) {
	if p == nil || p.Conn == nil {
		return
	}
	if !p.Conn.Send(payload) {
		metrics.SendFailures.Inc()
		r.logger.Debug("frame dropped", zap.String("peer_id", p.PeerID))
	}
}

func (r *Room) broadcastStateLocked() {
	for _, p := range r.playersInOrderLocked() {
		r.sendTo(p, r.buildStateLocked(p))
	}
}

func (r *Room) broadcastAndPersistLocked() {
	r.markStateChangedLocked()
	r.broadcastStateLocked()
	r.persistLocked(store.SaveOptions{})
}

func (r *Room) persistLocked(opts store.SaveOptions) {
	if r.deps.Store == nil {
		return
	}
	snap := r.serializeStoreSnapshotLocked()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.deps.Store.Save(ctx, snap, opts); err != nil {
		r.logger.Error("failed to persist room snapshot", zap.Error(err))
	}
}

// ForcePersist flushes the snapshot through both tiers, used on shutdown
// and when a room is evicted from memory.
func (r *Room) ForcePersist() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistLocked(store.SaveOptions{ForceHot: true, ForceDurable: true})
}

// Close cancels all timers and detaches the room from its scheduler.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.clearTimersLocked()
}
