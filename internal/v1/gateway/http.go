package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/game"
	"github.com/quizbattle/quizroom/internal/v1/store"
)

// createRoomRequest mirrors the public room creation payload. Every
// field is optional; unknown values normalize to defaults.
type createRoomRequest struct {
	Topic         string `json:"topic"`
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"questionCount"`
	GameMode      string `json:"gameMode"`
	RoomType      string `json:"roomType"`
	RoomPassword  string `json:"roomPassword"`
}

// RegisterRoutes mounts the room API and both WebSocket paths.
func (h *Hub) RegisterRoutes(r gin.IRouter) {
	if h.deps.RateLimiter != nil {
		r.POST("/api/rooms/create", h.deps.RateLimiter.RoomCreateMiddleware(), h.handleCreateRoom)
	} else {
		r.POST("/api/rooms/create", h.handleCreateRoom)
	}
	r.GET("/api/rooms/:roomId", h.handleRoomSnapshot)
	r.GET("/api/ws", h.ServeWs)
	r.GET("/ws", h.ServeWs)
}

func (h *Hub) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный запрос"})
		return
	}

	roomType := strings.ToLower(strings.TrimSpace(req.RoomType))
	if roomType != "password" {
		roomType = "public"
	}
	password := strings.TrimSpace(req.RoomPassword)
	if roomType == "password" && len([]rune(password)) < 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Пароль комнаты должен содержать минимум 3 символа"})
		return
	}

	roomID, hostToken, err := h.CreateRoom(c.Request.Context(), CreateRoomParams{
		Topic:         req.Topic,
		QuestionCount: req.QuestionCount,
		Difficulty:    req.Difficulty,
		GameMode:      req.GameMode,
		RoomType:      roomType,
		RoomPassword:  password,
	})
	if err != nil {
		h.logger.Error("room creation failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Не удалось создать комнату"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":      roomID,
		"hostToken":   hostToken,
		"hasPassword": roomType == "password",
	})
}

// handleRoomSnapshot returns the persisted room state with the secret
// hashes stripped out.
func (h *Hub) handleRoomSnapshot(c *gin.Context) {
	roomID := game.SanitizeRoomID(c.Param("roomId"))
	if roomID == "" || h.deps.Store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeCallTimeout)
	defer cancel()
	snap, err := h.deps.Store.Load(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		h.logger.Error("snapshot load failed", zap.String("room_id", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Snapshot unavailable"})
		return
	}

	state := make(map[string]any)
	if len(snap.State) > 0 {
		if err := json.Unmarshal(snap.State, &state); err != nil {
			h.logger.Error("snapshot decode failed", zap.String("room_id", roomID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Snapshot unavailable"})
			return
		}
	}

	delete(state, "hostTokenHash")
	passwordHash, _ := state["roomPasswordHash"].(string)
	hasPassword := strings.TrimSpace(passwordHash) != ""
	delete(state, "roomPasswordHash")

	difficulty, _ := state["difficultyMode"].(string)
	if difficulty == "" {
		difficulty = "medium"
	}
	gameMode, _ := state["gameMode"].(string)
	if gameMode == "" {
		gameMode = "classic"
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":        snap.RoomID,
		"topic":         snap.Topic,
		"difficulty":    difficulty,
		"gameMode":      gameMode,
		"questionCount": snap.QuestionCount,
		"hasPassword":   hasPassword,
		"state":         state,
		"updatedAt":     snap.UpdatedAt,
	})
}
