// Package gateway owns the network edge of the orchestrator: the room
// registry, the HTTP room API and the WebSocket connection lifecycle.
// Game semantics live in internal/v1/game; this package only decodes
// join payloads, resolves identities and shuttles frames.
package gateway

import (
	"context"
	"errors"
	mrand "math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/auth"
	"github.com/quizbattle/quizroom/internal/v1/catalog"
	"github.com/quizbattle/quizroom/internal/v1/game"
	"github.com/quizbattle/quizroom/internal/v1/logging"
	"github.com/quizbattle/quizroom/internal/v1/metrics"
	"github.com/quizbattle/quizroom/internal/v1/ratelimit"
	"github.com/quizbattle/quizroom/internal/v1/store"
)

const (
	roomCodeLength    = 6
	roomCodeAttempts  = 24
	cleanupGraceDflt  = 5 * time.Second
	storeCallTimeout  = 5 * time.Second
	joinReadTimeout   = 8 * time.Second
)

// IdentityResolver resolves a bearer token into an account identity.
// *auth.Validator and *auth.MockValidator both satisfy it.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (*auth.Identity, error)
}

// Deps are the collaborators the hub needs. Validator may be nil for
// guest-only deployments; RateLimiter may be nil in tests.
type Deps struct {
	Store       *store.Tiered
	Catalog     *catalog.Catalog
	Validator   IdentityResolver
	RateLimiter *ratelimit.RateLimiter
	Logger      *zap.Logger
	Rand        *mrand.Rand
	MaxPlayers  int
}

// Hub is the registry of resident rooms. Rooms are created through the
// HTTP API, revived from snapshots on WebSocket join, and evicted after
// a grace period once their last participant leaves.
type Hub struct {
	mu              sync.Mutex
	rooms           map[string]*game.Room
	pendingCleanups map[string]*time.Timer

	deps               Deps
	cleanupGracePeriod time.Duration
	logger             *zap.Logger
}

// NewHub builds a hub around the given collaborators.
func NewHub(deps Deps) *Hub {
	if deps.Logger == nil {
		deps.Logger = logging.GetLogger()
	}
	if deps.Rand == nil {
		deps.Rand = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	return &Hub{
		rooms:              make(map[string]*game.Room),
		pendingCleanups:    make(map[string]*time.Timer),
		deps:               deps,
		cleanupGracePeriod: cleanupGraceDflt,
		logger:             deps.Logger,
	}
}

// CreateRoomParams mirrors the normalized room creation request.
type CreateRoomParams struct {
	Topic         string
	QuestionCount int
	Difficulty    string
	GameMode      string
	RoomType      string
	RoomPassword  string
}

var (
	errRoomCodeExhausted = errors.New("failed to allocate room code")
	errNoValidator       = errors.New("no identity validator configured")
)

// CreateRoom allocates a fresh room code, registers the room and
// persists its initial snapshot. Returns the code and the raw host
// token; only the token hash is retained server-side.
func (h *Hub) CreateRoom(ctx context.Context, params CreateRoomParams) (string, string, error) {
	topic := params.Topic
	if h.deps.Catalog != nil {
		topic = h.deps.Catalog.NormalizeTopic(params.Topic)
	}

	passwordHash := ""
	if strings.TrimSpace(strings.ToLower(params.RoomType)) == "password" {
		password := strings.TrimSpace(params.RoomPassword)
		if password != "" {
			passwordHash = game.HashSecret(truncate(password, 64))
		}
	}
	hostToken := game.GenerateSecret(24)

	cfg := game.Config{
		Topic:            topic,
		QuestionCount:    catalog.ClampQuestionCount(params.QuestionCount),
		DifficultyMode:   catalog.NormalizeDifficultyMode(params.Difficulty),
		GameMode:         game.NormalizeGameMode(params.GameMode),
		HostTokenHash:    game.HashSecret(hostToken),
		RoomPasswordHash: passwordHash,
	}

	var created *game.Room
	h.mu.Lock()
	for range roomCodeAttempts {
		code := game.RandomRoomCode(h.deps.Rand, roomCodeLength)
		if _, taken := h.rooms[code]; taken {
			continue
		}
		cfg.RoomID = code
		created = game.NewRoom(cfg, h.roomDeps())
		h.rooms[code] = created
		metrics.ActiveRooms.Inc()
		break
	}
	h.mu.Unlock()

	if created == nil {
		return "", "", errRoomCodeExhausted
	}

	created.ForcePersist()
	h.logger.Info("room created",
		zap.String("room_id", created.RoomID()),
		zap.String("topic", topic),
		zap.String("game_mode", string(cfg.GameMode)))
	return created.RoomID(), hostToken, nil
}

func (h *Hub) roomDeps() game.Deps {
	return game.Deps{
		Store:      h.deps.Store,
		Catalog:    h.deps.Catalog,
		Logger:     h.logger,
		Rand:       h.deps.Rand,
		MaxPlayers: h.deps.MaxPlayers,
	}
}

// lookupRoom returns the resident room for the code, reviving it from
// the snapshot store when needed. A nil result means the room does not
// exist anywhere.
func (h *Hub) lookupRoom(ctx context.Context, roomID string) *game.Room {
	h.mu.Lock()
	if r, ok := h.rooms[roomID]; ok {
		h.cancelPendingCleanupLocked(roomID)
		h.mu.Unlock()
		return r
	}
	h.mu.Unlock()

	if h.deps.Store == nil {
		return nil
	}
	loadCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	snap, err := h.deps.Store.Load(loadCtx, roomID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Error("snapshot load failed", zap.String("room_id", roomID), zap.Error(err))
		}
		return nil
	}

	revived := game.NewRoom(game.Config{
		RoomID:        snap.RoomID,
		Topic:         snap.Topic,
		QuestionCount: snap.QuestionCount,
	}, h.roomDeps())
	if err := revived.ApplySnapshot(snap.State); err != nil {
		h.logger.Error("snapshot apply failed", zap.String("room_id", roomID), zap.Error(err))
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		// Another connection revived the room concurrently.
		h.cancelPendingCleanupLocked(roomID)
		return r
	}
	h.rooms[roomID] = revived
	metrics.ActiveRooms.Inc()
	h.logger.Info("room revived from snapshot", zap.String("room_id", roomID))
	return revived
}

func (h *Hub) cancelPendingCleanupLocked(roomID string) {
	if timer, ok := h.pendingCleanups[roomID]; ok {
		timer.Stop()
		delete(h.pendingCleanups, roomID)
	}
}

// scheduleRoomCleanup evicts an emptied room after a grace period. A
// reconnect within the window cancels the eviction.
func (h *Hub) scheduleRoomCleanup(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancelPendingCleanupLocked(roomID)
	h.pendingCleanups[roomID] = time.AfterFunc(h.cleanupGracePeriod, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.pendingCleanups, roomID)
		r, ok := h.rooms[roomID]
		if !ok || !r.IsEmpty() {
			return
		}
		r.Close()
		r.ForcePersist()
		if h.deps.Store != nil {
			h.deps.Store.Forget(roomID)
		}
		delete(h.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(roomID)
		h.logger.Info("room evicted after grace period", zap.String("room_id", roomID))
	})
}

// Shutdown flushes every resident room through both snapshot tiers.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for roomID, timer := range h.pendingCleanups {
		timer.Stop()
		delete(h.pendingCleanups, roomID)
	}
	rooms := make([]*game.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[string]*game.Room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.Close()
		r.ForcePersist()
		if h.deps.Store != nil {
			h.deps.Store.Forget(r.RoomID())
		}
	}
	h.logger.Info("all rooms persisted on shutdown", zap.Int("count", len(rooms)))
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
