package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	mrand "math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/auth"
	"github.com/quizbattle/quizroom/internal/v1/catalog"
	"github.com/quizbattle/quizroom/internal/v1/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type readResult struct {
	data []byte
	err  error
}

// fakeSocket is an in-memory wsConnection with scripted inbound frames
// and recorded outbound writes.
type fakeSocket struct {
	mu         sync.Mutex
	reads      chan readResult
	text       [][]byte
	closeCodes []int

	closeOnce sync.Once
	done      chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		reads: make(chan readResult, 16),
		done:  make(chan struct{}),
	}
}

func (s *fakeSocket) queueRead(data []byte)  { s.reads <- readResult{data: data} }
func (s *fakeSocket) queueReadErr(err error) { s.reads <- readResult{err: err} }

// finishReads makes every further ReadMessage fail like a dropped socket.
func (s *fakeSocket) finishReads() { close(s.reads) }

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case r, ok := <-s.reads:
		if !ok {
			return 0, nil, io.EOF
		}
		if r.err != nil {
			return 0, nil, r.err
		}
		return websocket.TextMessage, r.data, nil
	case <-s.done:
		return 0, nil, io.EOF
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch messageType {
	case websocket.TextMessage:
		s.text = append(s.text, append([]byte(nil), data...))
	case websocket.CloseMessage:
		if len(data) >= 2 {
			s.closeCodes = append(s.closeCodes, int(binary.BigEndian.Uint16(data[:2])))
		}
	}
	return nil
}

func (s *fakeSocket) SetReadDeadline(time.Time) error  { return nil }
func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// frameOfType returns the most recent written text frame with the given
// "type" field, decoded loosely.
func (s *fakeSocket) frameOfType(frameType string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.text) - 1; i >= 0; i-- {
		var m map[string]any
		if json.Unmarshal(s.text[i], &m) == nil && m["type"] == frameType {
			return m
		}
	}
	return nil
}

func (s *fakeSocket) wroteContaining(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, data := range s.text {
		if strings.Contains(string(data), sub) {
			return true
		}
	}
	return false
}

func (s *fakeSocket) closedWith(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, got := range s.closeCodes {
		if got == code {
			return true
		}
	}
	return false
}

func waitSocketClosed(t *testing.T, s *fakeSocket) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("socket was never closed")
	}
}

// timeoutError mimics the deadline error a real conn returns.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// stubResolver is a canned IdentityResolver.
type stubResolver struct {
	identity *auth.Identity
	err      error
}

func (s *stubResolver) ResolveIdentity(context.Context, string) (*auth.Identity, error) {
	return s.identity, s.err
}

// memDurable keeps snapshots and results in memory. The cleanup timer
// persists from its own goroutine, so everything is guarded.
type memDurable struct {
	mu      sync.Mutex
	snaps   map[string]*store.Snapshot
	results []*store.GameResult
}

func newMemDurable() *memDurable {
	return &memDurable{snaps: make(map[string]*store.Snapshot)}
}

func (m *memDurable) LoadSnapshot(_ context.Context, roomID string) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[roomID], nil
}

func (m *memDurable) SaveSnapshot(_ context.Context, snap *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.RoomID] = snap
	return nil
}

func (m *memDurable) AppendGameResult(_ context.Context, result *store.GameResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func (m *memDurable) Ping(context.Context) error { return nil }
func (m *memDurable) Close()                     {}

func (m *memDurable) snapshot(roomID string) *store.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[roomID]
}

// queuedContaining scans the client's outbound queue without a write
// pump running.
func queuedContaining(cl *client, sub string) bool {
	for {
		select {
		case data := <-cl.send:
			if strings.Contains(string(data), sub) {
				return true
			}
		default:
			return false
		}
	}
}

func newTestHub(t *testing.T, resolver IdentityResolver) (*Hub, *memDurable) {
	t.Helper()
	rng := mrand.New(mrand.NewSource(7))
	bank, err := catalog.Load("", rng)
	require.NoError(t, err)

	durable := newMemDurable()
	hub := NewHub(Deps{
		Store:      store.NewTiered(nil, durable, 750*time.Millisecond, 3500*time.Millisecond),
		Catalog:    bank,
		Validator:  resolver,
		Logger:     zap.NewNop(),
		Rand:       rng,
		MaxPlayers: 8,
	})
	t.Cleanup(func() {
		require.NoError(t, hub.Shutdown(context.Background()))
	})
	return hub, durable
}

func createTestRoom(t *testing.T, hub *Hub, params CreateRoomParams) (roomID, hostToken string) {
	t.Helper()
	roomID, hostToken, err := hub.CreateRoom(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, roomID, roomCodeLength)
	require.NotEmpty(t, hostToken)
	return roomID, hostToken
}
