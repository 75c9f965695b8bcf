// Package store implements the two persistence tiers behind the room
// registry: a best-effort hot cache in Redis and the authoritative
// durable store in Postgres. The tiered wrapper decides, per mutation,
// which tier a snapshot write lands in.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when neither tier holds a snapshot for a room.
var ErrNotFound = errors.New("store: room snapshot not found")

// Snapshot is one persisted room state. State is the full serialized room
// (players, scores, history, hashes) as produced by the game package.
type Snapshot struct {
	RoomID        string          `json:"roomId"`
	Topic         string          `json:"topic"`
	QuestionCount int             `json:"questionCount"`
	State         json.RawMessage `json:"stateJson"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// GameResult is one finished game appended to the results log.
type GameResult struct {
	RoomID     string          `json:"roomId"`
	TeamAName  string          `json:"teamAName"`
	TeamBName  string          `json:"teamBName"`
	ScoreA     int             `json:"scoreA"`
	ScoreB     int             `json:"scoreB"`
	WinnerTeam string          `json:"winnerTeam,omitempty"` // "A", "B" or "" for a draw
	Payload    json.RawMessage `json:"payloadJson"`
}

// HotCache is the short-TTL snapshot tier. A miss returns (nil, nil);
// implementations must be safe for concurrent callers.
type HotCache interface {
	GetSnapshot(ctx context.Context, roomID string) (*Snapshot, error)
	SetSnapshot(ctx context.Context, snap *Snapshot) error
	Ping(ctx context.Context) error
	Close() error
}

// DurableStore is the authoritative snapshot tier plus the results log.
// A snapshot miss returns (nil, nil).
type DurableStore interface {
	LoadSnapshot(ctx context.Context, roomID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	AppendGameResult(ctx context.Context, result *GameResult) error
	Ping(ctx context.Context) error
	Close()
}
