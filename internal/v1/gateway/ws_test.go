package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/auth"
	"github.com/quizbattle/quizroom/internal/v1/game"
)

func TestReadJoinPayload_LegacyQueryParams(t *testing.T) {
	sock := newFakeSocket()
	query := url.Values{
		"roomId":    {"abcd12"},
		"name":      {"Алиса"},
		"hostToken": {" token-with-spaces "},
	}

	payload, rejection := readJoinPayload(sock, query)
	require.Nil(t, rejection)
	require.NotNil(t, payload)
	assert.Equal(t, "ABCD12", payload.RoomID)
	assert.Equal(t, "Алиса", payload.Name)
	assert.Equal(t, "token-with-spaces", payload.HostToken)
}

func TestReadJoinPayload_LegacyNameFallback(t *testing.T) {
	sock := newFakeSocket()
	query := url.Values{"roomId": {"ABCD12"}, "clientId": {"client-1"}}

	payload, rejection := readJoinPayload(sock, query)
	require.Nil(t, rejection)
	require.NotNil(t, payload)
	assert.Equal(t, "Игрок", payload.Name)
}

func TestReadJoinPayload_JoinFrame(t *testing.T) {
	sock := newFakeSocket()
	sock.queueRead([]byte(`{"type":"join","roomId":"ABCD12","name":"Борис"}`))

	payload, rejection := readJoinPayload(sock, url.Values{})
	require.Nil(t, rejection)
	require.NotNil(t, payload)
	assert.Equal(t, "ABCD12", payload.RoomID)
	assert.Equal(t, "Борис", payload.Name)
}

func TestReadJoinPayload_JoinFrameUsesRoomIDHint(t *testing.T) {
	sock := newFakeSocket()
	sock.queueRead([]byte(`{"type":"join","name":"Борис"}`))

	payload, rejection := readJoinPayload(sock, url.Values{"roomId": {"abcd12"}})
	require.Nil(t, rejection)
	require.NotNil(t, payload)
	assert.Equal(t, "ABCD12", payload.RoomID)
}

func TestReadJoinPayload_BadJSON(t *testing.T) {
	sock := newFakeSocket()
	sock.queueRead([]byte(`{"type":`))

	payload, rejection := readJoinPayload(sock, url.Values{})
	assert.Nil(t, payload)
	require.NotNil(t, rejection)
	assert.Equal(t, game.CodeInvalidJoinPayload, rejection.Code)
}

func TestReadJoinPayload_WrongFrameType(t *testing.T) {
	sock := newFakeSocket()
	sock.queueRead([]byte(`{"type":"send-chat","text":"привет"}`))

	payload, rejection := readJoinPayload(sock, url.Values{})
	assert.Nil(t, payload)
	require.NotNil(t, rejection)
	assert.Equal(t, game.CodeInvalidJoinPayload, rejection.Code)
	assert.Equal(t, "Ожидалось join-сообщение", rejection.Message)
}

func TestReadJoinPayload_Timeout(t *testing.T) {
	sock := newFakeSocket()
	sock.queueReadErr(timeoutError{})

	payload, rejection := readJoinPayload(sock, url.Values{})
	assert.Nil(t, payload)
	require.NotNil(t, rejection)
	assert.Equal(t, game.CodeJoinTimeout, rejection.Code)
}

func TestReadJoinPayload_SocketGoneIsSilent(t *testing.T) {
	sock := newFakeSocket()
	sock.queueReadErr(io.EOF)

	payload, rejection := readJoinPayload(sock, url.Values{})
	assert.Nil(t, payload)
	assert.Nil(t, rejection)
}

func TestHandleSession_HostJoinsAndPlays(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	roomID, hostToken := createTestRoom(t, hub, CreateRoomParams{GameMode: "ffa"})

	sock := newFakeSocket()
	sock.queueRead([]byte(`{"type":"ping"}`))
	sock.finishReads()

	hub.handleSession(context.Background(), sock, url.Values{
		"roomId":    {roomID},
		"name":      {"Организатор"},
		"hostToken": {hostToken},
	})
	waitSocketClosed(t, sock)

	connected := sock.frameOfType("connected")
	require.NotNil(t, connected)
	assert.Equal(t, roomID, connected["roomId"])
	assert.Equal(t, true, connected["isHost"])
	assert.NotEmpty(t, connected["peerId"])

	assert.NotNil(t, sock.frameOfType("pong"))
	assert.NotNil(t, sock.frameOfType("state-sync"))
	assert.True(t, sock.closedWith(websocket.CloseNormalClosure))

	// The last participant left, so the room is queued for eviction.
	assert.Equal(t, 1, pendingCleanupCount(hub))
}

func TestHandleSession_InvalidRoomID(t *testing.T) {
	hub, _ := newTestHub(t, nil)

	sock := newFakeSocket()
	hub.handleSession(context.Background(), sock, url.Values{"name": {"Алиса"}})
	waitSocketClosed(t, sock)

	frame := sock.frameOfType("error")
	require.NotNil(t, frame)
	assert.Equal(t, game.CodeInvalidRoomID, frame["code"])
	assert.True(t, sock.closedWith(game.ClosePolicyViolation))
}

func TestHandleSession_RoomNotFound(t *testing.T) {
	hub, _ := newTestHub(t, nil)

	sock := newFakeSocket()
	hub.handleSession(context.Background(), sock, url.Values{
		"roomId": {"ZZZZ99"},
		"name":   {"Алиса"},
	})
	waitSocketClosed(t, sock)

	frame := sock.frameOfType("error")
	require.NotNil(t, frame)
	assert.Equal(t, game.CodeRoomNotFound, frame["code"])
	assert.Equal(t, "Комната не найдена", frame["message"])
}

func TestHandleSession_AuthTokenInvalid(t *testing.T) {
	hub, _ := newTestHub(t, &stubResolver{err: errors.New("token expired")})
	roomID, _ := createTestRoom(t, hub, CreateRoomParams{})

	sock := newFakeSocket()
	hub.handleSession(context.Background(), sock, url.Values{
		"roomId": {roomID},
		"token":  {"Bearer broken-token"},
	})
	waitSocketClosed(t, sock)

	frame := sock.frameOfType("error")
	require.NotNil(t, frame)
	assert.Equal(t, game.CodeAuthTokenInvalid, frame["code"])
}

func TestHandleSession_RejectionSchedulesCleanupOfEmptyRoom(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	roomID, _ := createTestRoom(t, hub, CreateRoomParams{
		RoomType:     "password",
		RoomPassword: "secret123",
	})

	sock := newFakeSocket()
	hub.handleSession(context.Background(), sock, url.Values{
		"roomId": {roomID},
		"name":   {"Алиса"},
	})
	waitSocketClosed(t, sock)

	frame := sock.frameOfType("error")
	require.NotNil(t, frame)
	assert.Equal(t, game.CodeRoomPasswordRequired, frame["code"])
	assert.Equal(t, 1, pendingCleanupCount(hub))
}

func TestHandleSession_AuthenticatedIdentity(t *testing.T) {
	hub, _ := newTestHub(t, &stubResolver{identity: &auth.Identity{
		UserID:      "42",
		DisplayName: "Мария",
		AvatarURL:   "https://cdn.example/maria.png",
	}})
	roomID, _ := createTestRoom(t, hub, CreateRoomParams{})

	sock := newFakeSocket()
	sock.queueRead([]byte(`{"type":"join","roomId":"` + roomID + `","token":"Bearer good-token"}`))

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.handleSession(context.Background(), sock, url.Values{})
	}()

	var connected map[string]any
	require.Eventually(t, func() bool {
		connected = sock.frameOfType("connected")
		return connected != nil
	}, 2*time.Second, 10*time.Millisecond)

	// The display name from the token fills the missing join name.
	require.Eventually(t, func() bool {
		return sock.wroteContaining("Мария") && sock.wroteContaining("https://cdn.example/maria.png")
	}, 2*time.Second, 10*time.Millisecond)

	room := residentRoom(hub, roomID)
	require.NotNil(t, room)
	peerID, _ := connected["peerId"].(string)
	authID, ok := room.PlayerAuthUserID(peerID)
	require.True(t, ok)
	assert.Equal(t, int64(42), authID)

	sock.finishReads()
	<-done
	waitSocketClosed(t, sock)
}

func TestInterceptProfileRefresh(t *testing.T) {
	hub, _ := newTestHub(t, &stubResolver{identity: &auth.Identity{
		UserID:    "42",
		AvatarURL: "https://cdn.example/new-avatar.png",
	}})
	roomID, _ := createTestRoom(t, hub, CreateRoomParams{})
	room := residentRoom(hub, roomID)
	require.NotNil(t, room)

	sock := newFakeSocket()
	cl := newClient(sock, zap.NewNop())
	peerID, rejection := room.Admit(cl, game.JoinRequest{Name: "Алиса"})
	require.Nil(t, rejection)
	cl.room = room
	cl.peerID = peerID
	cl.authToken = "good-token"

	ctx := context.Background()
	assert.False(t, hub.interceptProfileRefresh(ctx, cl, []byte(`{"type":"send-chat","text":"привет"}`)))
	assert.True(t, hub.interceptProfileRefresh(ctx, cl, []byte(`{"type":"refresh-profile-assets"}`)))

	// The refreshed avatar lands in the next state broadcast.
	assert.True(t, queuedContaining(cl, "https://cdn.example/new-avatar.png"))
}

// Guest sessions consume the frame too, without hitting the resolver.
func TestInterceptProfileRefresh_GuestIsNoOp(t *testing.T) {
	hub, _ := newTestHub(t, nil)
	roomID, _ := createTestRoom(t, hub, CreateRoomParams{})
	room := residentRoom(hub, roomID)

	sock := newFakeSocket()
	cl := newClient(sock, zap.NewNop())
	peerID, rejection := room.Admit(cl, game.JoinRequest{Name: "Алиса"})
	require.Nil(t, rejection)
	cl.room = room
	cl.peerID = peerID

	assert.True(t, hub.interceptProfileRefresh(context.Background(), cl, []byte(`{"type":"refresh-profile-assets"}`)))
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://quiz.example.com"}

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin header", "", true},
		{"allowed localhost", "http://localhost:3000", true},
		{"allowed production", "https://quiz.example.com", true},
		{"scheme mismatch", "http://quiz.example.com", false},
		{"foreign host", "https://evil.example.com", false},
		{"malformed origin", "://broken", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "http://server/ws", nil)
			require.NoError(t, err)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.want, originAllowed(req, allowed))
		})
	}
}
