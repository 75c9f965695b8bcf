package gateway

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/game"
)

func TestClient_SendDeliversThroughPump(t *testing.T) {
	sock := newFakeSocket()
	cl := newClient(sock, zap.NewNop())
	go cl.writePump()

	require.True(t, cl.Send(map[string]any{"type": "pong"}))
	require.Eventually(t, func() bool {
		return sock.frameOfType("pong") != nil
	}, 2*time.Second, 5*time.Millisecond)

	cl.CloseWithCode(websocket.CloseNormalClosure)
	waitSocketClosed(t, sock)
	assert.True(t, sock.closedWith(websocket.CloseNormalClosure))
}

func TestClient_SendDropsWhenBufferFull(t *testing.T) {
	cl := newClient(newFakeSocket(), zap.NewNop())

	for range sendBufferSize {
		require.True(t, cl.Send(map[string]any{"type": "state-sync"}))
	}
	assert.False(t, cl.Send(map[string]any{"type": "state-sync"}))
}

func TestClient_SendAfterCloseIsDropped(t *testing.T) {
	cl := newClient(newFakeSocket(), zap.NewNop())
	cl.CloseWithCode(websocket.CloseNormalClosure)
	assert.False(t, cl.Send(map[string]any{"type": "pong"}))
}

func TestClient_SendUnmarshalableFrame(t *testing.T) {
	cl := newClient(newFakeSocket(), zap.NewNop())
	assert.False(t, cl.Send(make(chan int)))
}

func TestClient_CloseWithCodeIsIdempotent(t *testing.T) {
	sock := newFakeSocket()
	cl := newClient(sock, zap.NewNop())
	cl.CloseWithCode(game.CloseSessionHandoff)
	cl.CloseWithCode(websocket.CloseNormalClosure)

	go cl.writePump()
	waitSocketClosed(t, sock)
	// Only the first code wins.
	assert.True(t, sock.closedWith(game.CloseSessionHandoff))
	assert.False(t, sock.closedWith(websocket.CloseNormalClosure))
}

func TestWritePump_DrainsQueueBeforeCloseFrame(t *testing.T) {
	sock := newFakeSocket()
	cl := newClient(sock, zap.NewNop())

	require.True(t, cl.Send(map[string]any{"type": "connected"}))
	require.True(t, cl.Send(map[string]any{"type": "state-sync"}))
	require.True(t, cl.Send(map[string]any{"type": "error"}))
	cl.CloseWithCode(game.ClosePolicyViolation)

	cl.writePump()

	sock.mu.Lock()
	frames := len(sock.text)
	sock.mu.Unlock()
	assert.Equal(t, 3, frames, "queued frames go out ahead of the close frame")
	assert.True(t, sock.closedWith(game.ClosePolicyViolation))
}
