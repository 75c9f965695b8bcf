package store

import (
	"context"
	"sync"
	"time"
)

// SaveOptions lets a caller force a write into a specific tier regardless of
// the elapsed-interval policy. Room eviction and shutdown force the durable tier.
type SaveOptions struct {
	ForceHot     bool
	ForceDurable bool
}

// Tiered applies the snapshot cadence policy on top of the two tiers:
//
//   - durable write when forced, or when the durable interval has elapsed
//     (a durable write also refreshes the hot timestamp)
//   - otherwise a hot write when forced, or when the hot interval has elapsed
//
// Loads prefer the hot tier and fall back to durable. The hot tier is
// optional; with a nil HotCache everything lands in Postgres.
type Tiered struct {
	hot     HotCache
	durable DurableStore

	hotInterval     time.Duration
	durableInterval time.Duration

	mu    sync.Mutex
	marks map[string]*writeMarks

	now func() time.Time
}

type writeMarks struct {
	lastHot     time.Time
	lastDurable time.Time
}

// NewTiered builds the tiered store. hot may be nil.
func NewTiered(hot HotCache, durable DurableStore, hotInterval, durableInterval time.Duration) *Tiered {
	return &Tiered{
		hot:             hot,
		durable:         durable,
		hotInterval:     hotInterval,
		durableInterval: durableInterval,
		marks:           make(map[string]*writeMarks),
		now:             time.Now,
	}
}

// Load returns the freshest snapshot available, ErrNotFound when neither
// tier has one. Hot-tier failures fall through to the durable store.
func (t *Tiered) Load(ctx context.Context, roomID string) (*Snapshot, error) {
	if t.hot != nil {
		if snap, err := t.hot.GetSnapshot(ctx, roomID); err == nil && snap != nil {
			return snap, nil
		}
	}

	snap, err := t.durable.LoadSnapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNotFound
	}
	return snap, nil
}

// Save applies the cadence policy for one room mutation.
func (t *Tiered) Save(ctx context.Context, snap *Snapshot, opts SaveOptions) error {
	now := t.now()
	marks := t.marksFor(snap.RoomID)

	t.mu.Lock()
	durableDue := opts.ForceDurable || marks.lastDurable.IsZero() || now.Sub(marks.lastDurable) >= t.durableInterval
	hotDue := opts.ForceHot || marks.lastHot.IsZero() || now.Sub(marks.lastHot) >= t.hotInterval
	t.mu.Unlock()

	if durableDue {
		if err := t.durable.SaveSnapshot(ctx, snap); err != nil {
			return err
		}
		t.mu.Lock()
		marks.lastDurable = now
		marks.lastHot = now
		t.mu.Unlock()

		if t.hot != nil {
			// Keep the hot tier in step with the durable write.
			if err := t.hot.SetSnapshot(ctx, snap); err != nil {
				return err
			}
		}
		return nil
	}

	if t.hot != nil && hotDue {
		if err := t.hot.SetSnapshot(ctx, snap); err != nil {
			return err
		}
		t.mu.Lock()
		marks.lastHot = now
		t.mu.Unlock()
	}
	return nil
}

// AppendGameResult forwards to the durable store.
func (t *Tiered) AppendGameResult(ctx context.Context, result *GameResult) error {
	return t.durable.AppendGameResult(ctx, result)
}

// Forget drops the cadence marks for an evicted room.
func (t *Tiered) Forget(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.marks, roomID)
}

func (t *Tiered) marksFor(roomID string) *writeMarks {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.marks[roomID]
	if !ok {
		m = &writeMarks{}
		t.marks[roomID] = m
	}
	return m
}
