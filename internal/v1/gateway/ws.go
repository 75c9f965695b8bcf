package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/auth"
	"github.com/quizbattle/quizroom/internal/v1/game"
	"github.com/quizbattle/quizroom/internal/v1/metrics"
)

// joinPayload is the first frame a client must deliver, either as an
// explicit join message or through legacy query parameters.
type joinPayload struct {
	Type         string `json:"type"`
	RoomID       string `json:"roomId"`
	Name         string `json:"name"`
	HostToken    string `json:"hostToken"`
	PlayerToken  string `json:"playerToken"`
	RoomPassword string `json:"roomPassword"`
	Token        string `json:"token"`
	ClientID     string `json:"clientId"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWs upgrades the request and runs the connection until it drops.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.deps.RateLimiter != nil && !h.deps.RateLimiter.CheckWebSocket(c) {
		return
	}

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.IncConnection()
	defer metrics.DecConnection()
	h.handleSession(c.Request.Context(), conn, c.Request.URL.Query())
}

func originAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients carry no origin.
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(strings.TrimSpace(allowed))
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

// handleSession reads the join payload, admits the seat and pumps
// frames until the socket closes.
func (h *Hub) handleSession(ctx context.Context, conn wsConnection, query url.Values) {
	cl := newClient(conn, h.logger)

	payload, rejection := readJoinPayload(conn, query)
	if payload == nil {
		metrics.Admissions.WithLabelValues("rejected").Inc()
		if rejection != nil {
			rejectDirect(conn, rejection.Code, rejection.Message)
			h.logger.Warn("connect rejected", zap.String("code", rejection.Code))
		} else {
			conn.Close()
		}
		return
	}

	roomID := game.SanitizeRoomID(payload.RoomID)
	if roomID == "" {
		metrics.Admissions.WithLabelValues("rejected").Inc()
		rejectDirect(conn, game.CodeInvalidRoomID, "Room id required")
		return
	}

	req := game.JoinRequest{
		Name:         payload.Name,
		WantsHost:    strings.TrimSpace(payload.HostToken) != "",
		HostToken:    strings.TrimSpace(payload.HostToken),
		RoomPassword: strings.TrimSpace(payload.RoomPassword),
		PlayerToken:  game.NormalizePlayerToken(payload.PlayerToken),
	}

	authToken := strings.TrimSpace(payload.Token)
	if lower := strings.ToLower(authToken); strings.HasPrefix(lower, "bearer ") {
		authToken = strings.TrimSpace(authToken[len("bearer "):])
	}
	if authToken != "" {
		identity, err := h.resolveIdentity(ctx, authToken)
		if err != nil {
			metrics.Admissions.WithLabelValues("rejected").Inc()
			rejectDirect(conn, game.CodeAuthTokenInvalid, "Сессия недействительна. Войдите снова.")
			h.logger.Warn("connect rejected", zap.String("room_id", roomID),
				zap.String("code", game.CodeAuthTokenInvalid), zap.Error(err))
			return
		}
		req.IdentityKey = "acct:" + identity.UserID
		req.AuthUserID = parseAccountID(identity.UserID)
		req.Assets = assetsFromIdentity(identity)
		if strings.TrimSpace(req.Name) == "" && identity.DisplayName != "" {
			req.Name = identity.DisplayName
		}
	} else {
		req.IdentityKey = game.BuildGuestIdentityKey(payload.ClientID)
	}

	if h.deps.RateLimiter != nil && req.IdentityKey != "" {
		if err := h.deps.RateLimiter.CheckWebSocketIdentity(ctx, req.IdentityKey); err != nil {
			metrics.Admissions.WithLabelValues("rejected").Inc()
			rejectDirect(conn, "RATE_LIMITED", "Слишком много подключений. Попробуйте позже.")
			return
		}
	}

	room := h.lookupRoom(ctx, roomID)
	if room == nil {
		metrics.Admissions.WithLabelValues("rejected").Inc()
		rejectDirect(conn, game.CodeRoomNotFound, "Комната не найдена")
		h.logger.Warn("connect rejected", zap.String("room_id", roomID),
			zap.String("code", game.CodeRoomNotFound))
		return
	}

	peerID, rej := room.Admit(cl, req)
	if rej != nil {
		rejectDirect(conn, rej.Code, rej.Message)
		if room.IsEmpty() {
			h.scheduleRoomCleanup(roomID)
		}
		return
	}

	cl.room = room
	cl.peerID = peerID
	cl.authToken = authToken
	go cl.writePump()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if h.interceptProfileRefresh(ctx, cl, data) {
			continue
		}
		room.HandleMessage(peerID, data)
	}

	if room.HandleDisconnect(peerID, cl) {
		h.scheduleRoomCleanup(roomID)
	}
	cl.CloseWithCode(websocket.CloseNormalClosure)
}

func (h *Hub) resolveIdentity(ctx context.Context, token string) (*auth.Identity, error) {
	if h.deps.Validator == nil {
		return nil, errNoValidator
	}
	return h.deps.Validator.ResolveIdentity(ctx, token)
}

// interceptProfileRefresh handles the one frame type that needs the
// auth backend. Returns true when the frame was consumed.
func (h *Hub) interceptProfileRefresh(ctx context.Context, cl *client, data []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Type != "refresh-profile-assets" {
		return false
	}
	metrics.FramesIn.WithLabelValues("refresh-profile-assets").Inc()

	if cl.authToken == "" {
		return true
	}
	identity, err := h.resolveIdentity(ctx, cl.authToken)
	if err != nil {
		h.logger.Warn("profile refresh failed", zap.String("peer_id", cl.peerID), zap.Error(err))
		return true
	}
	cl.room.UpdateProfileAssets(cl.peerID, assetsFromIdentity(identity))
	return true
}

// readJoinPayload collects the join data, preferring legacy query
// parameters and falling back to the first text frame within 8s.
func readJoinPayload(conn wsConnection, query url.Values) (*joinPayload, *game.Rejection) {
	roomIDHint := game.SanitizeRoomID(query.Get("roomId"))
	legacy := &joinPayload{
		RoomID:       roomIDHint,
		Name:         query.Get("name"),
		HostToken:    strings.TrimSpace(query.Get("hostToken")),
		PlayerToken:  game.NormalizePlayerToken(query.Get("playerToken")),
		RoomPassword: strings.TrimSpace(query.Get("roomPassword")),
		Token:        query.Get("token"),
		ClientID:     query.Get("clientId"),
	}
	if legacy.Name != "" || legacy.HostToken != "" || legacy.PlayerToken != "" ||
		legacy.RoomPassword != "" || legacy.Token != "" || legacy.ClientID != "" {
		if legacy.Name == "" {
			legacy.Name = "Игрок"
		}
		return legacy, nil
	}

	_ = conn.SetReadDeadline(time.Now().Add(joinReadTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, &game.Rejection{Code: game.CodeJoinTimeout, Message: "Не получены данные подключения"}
		}
		// Client went away before joining, nothing to answer.
		return nil, nil
	}

	var payload joinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &game.Rejection{Code: game.CodeInvalidJoinPayload, Message: "Некорректный формат join payload"}
	}
	if payload.Type != "join" {
		return nil, &game.Rejection{Code: game.CodeInvalidJoinPayload, Message: "Ожидалось join-сообщение"}
	}
	if payload.RoomID == "" {
		payload.RoomID = roomIDHint
	}
	if payload.Name == "" {
		payload.Name = "Игрок"
	}
	payload.PlayerToken = game.NormalizePlayerToken(payload.PlayerToken)
	return &payload, nil
}

// rejectDirect writes an error frame and a policy close directly on the
// socket. Only valid before the write pump starts.
func rejectDirect(conn wsConnection, code, message string) {
	data, err := json.Marshal(&errorFrame{Type: "error", Code: code, Message: message})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(game.ClosePolicyViolation, ""))
	conn.Close()
}

func assetsFromIdentity(identity *auth.Identity) game.ProfileAssets {
	return game.ProfileAssets{
		Avatar:             optString(identity.AvatarURL),
		ProfileFrame:       optString(identity.ProfileFrame),
		MascotSkinCat:      optString(identity.MascotSkinCat),
		MascotSkinDog:      optString(identity.MascotSkinDog),
		VictoryEffectFront: optString(identity.VictoryEffectFront),
		VictoryEffectBack:  optString(identity.VictoryEffectBack),
	}
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func parseAccountID(userID string) *int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
