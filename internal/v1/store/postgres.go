package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/quizbattle/quizroom/internal/v1/metrics"
)

// Schema creates the tables the durable store relies on. Applied at startup;
// every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS room_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	room_id        VARCHAR(8) NOT NULL UNIQUE,
	topic          VARCHAR(80) NOT NULL,
	question_count INTEGER NOT NULL,
	state_json     JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_room_snapshots_room_id ON room_snapshots (room_id);

CREATE TABLE IF NOT EXISTS game_results (
	id           BIGSERIAL PRIMARY KEY,
	room_id      VARCHAR(8) NOT NULL,
	team_a_name  VARCHAR(32) NOT NULL,
	team_b_name  VARCHAR(32) NOT NULL,
	score_a      INTEGER NOT NULL,
	score_b      INTEGER NOT NULL,
	winner_team  VARCHAR(1),
	payload_json JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_game_results_room_id ON game_results (room_id);
CREATE INDEX IF NOT EXISTS idx_game_results_created_at ON game_results (created_at);
`

// PostgresStore is the authoritative snapshot store backed by a pgx pool.
// Writes go through a circuit breaker so a dying database degrades the
// persistence tier instead of stalling every room mutation.
type PostgresStore struct {
	db *pgxpool.Pool
	cb *gobreaker.CircuitBreaker
}

// NewPostgresStore connects the pool, verifies connectivity and applies the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return NewPostgresStoreFromPool(db), nil
}

// NewPostgresStoreFromPool wraps an existing pool (used by integration tests).
func NewPostgresStoreFromPool(db *pgxpool.Pool) *PostgresStore {
	st := gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("postgres").Set(stateVal)
		},
	}

	return &PostgresStore{db: db, cb: gobreaker.NewCircuitBreaker(st)}
}

// LoadSnapshot fetches the durable snapshot for a room, or (nil, nil) if absent.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRow(ctx,
		`SELECT room_id, topic, question_count, state_json, updated_at
		 FROM room_snapshots
		 WHERE room_id = $1`,
		roomID,
	).Scan(&snap.RoomID, &snap.Topic, &snap.QuestionCount, &snap.State, &snap.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		metrics.SnapshotLoads.WithLabelValues("durable", "miss").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.SnapshotLoads.WithLabelValues("durable", "error").Inc()
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	metrics.SnapshotLoads.WithLabelValues("durable", "hit").Inc()
	return &snap, nil
}

// SaveSnapshot upserts the snapshot row for a room.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		_, execErr := s.db.Exec(ctx,
			`INSERT INTO room_snapshots (room_id, topic, question_count, state_json)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (room_id) DO UPDATE
			 SET topic = EXCLUDED.topic,
			     question_count = EXCLUDED.question_count,
			     state_json = EXCLUDED.state_json,
			     updated_at = now()`,
			snap.RoomID, snap.Topic, snap.QuestionCount, []byte(snap.State),
		)
		return nil, execErr
	})
	if err != nil {
		metrics.SnapshotWrites.WithLabelValues("durable", "error").Inc()
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	metrics.SnapshotWrites.WithLabelValues("durable", "success").Inc()
	return nil
}

// AppendGameResult inserts one finished game into the results log.
func (s *PostgresStore) AppendGameResult(ctx context.Context, result *GameResult) error {
	var winner *string
	if result.WinnerTeam != "" {
		winner = &result.WinnerTeam
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		_, execErr := s.db.Exec(ctx,
			`INSERT INTO game_results
			   (room_id, team_a_name, team_b_name, score_a, score_b, winner_team, payload_json)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			result.RoomID, result.TeamAName, result.TeamBName,
			result.ScoreA, result.ScoreB, winner, []byte(result.Payload),
		)
		return nil, execErr
	})
	if err != nil {
		return fmt.Errorf("failed to append game result: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}
