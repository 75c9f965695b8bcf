package game

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/quizbattle/quizroom/internal/v1/metrics"
)

var knownFrameTypes = map[string]struct{}{
	"ping":                  {},
	"refresh-profile-assets": {},
	"toggle-pause":          {},
	"start-game":            {},
	"vote-captain":          {},
	"set-team-name":         {},
	"random-team-name":      {},
	"submit-answer":         {},
	"skip-question":         {},
	"request-skip-question": {},
	"resolve-skip-request":  {},
	"new-game":              {},
	"moderate-chat-message": {},
	"send-chat":             {},
}

// decodeRawString accepts both a JSON string and any scalar the client
// might send where a string is expected.
func decodeRawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

// decodeAnswerIndex accepts an integer or a numeric string.
func decodeAnswerIndex(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var index int
	if err := json.Unmarshal(raw, &index); err == nil {
		return index, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// HandleMessage decodes and dispatches one inbound frame. Unknown types
// and malformed payloads are dropped silently; per-frame guards live in
// the handlers. The gateway resolves "refresh-profile-assets" itself
// since it needs the auth backend.
func (r *Room) HandleMessage(peerID string, raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}
	if frame.Type == "" {
		return
	}
	frameLabel := frame.Type
	if _, known := knownFrameTypes[frameLabel]; !known {
		frameLabel = "unknown"
	}
	metrics.FramesIn.WithLabelValues(frameLabel).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[peerID]
	if !ok {
		return
	}

	switch frame.Type {
	case "ping":
		r.sendTo(p, map[string]any{"type": "pong", "serverTime": r.nowMs()})
	case "toggle-pause":
		r.togglePauseLocked(p)
	case "start-game":
		if p.IsHost && r.phase == PhaseLobby {
			r.startGameLocked()
		}
	case "vote-captain":
		r.handleVoteCaptainLocked(p, frame.CandidatePeerID)
	case "set-team-name":
		r.handleSetTeamNameLocked(p, decodeRawString(frame.Name))
	case "random-team-name":
		r.handleRandomTeamNameLocked(p)
	case "submit-answer":
		index, valid := decodeAnswerIndex(frame.AnswerIndex)
		r.handleSubmitAnswerLocked(p, index, valid)
	case "skip-question":
		if p.IsHost && r.phase == PhaseQuestion {
			r.skipQuestionByHostLocked(p)
		}
	case "request-skip-question":
		r.requestSkipQuestionLocked(p)
	case "resolve-skip-request":
		r.resolveSkipRequestLocked(p, strings.ToLower(strings.TrimSpace(frame.Decision)))
	case "new-game":
		if p.IsHost {
			r.resetGameLocked("")
		}
	case "moderate-chat-message":
		r.moderateChatMessageLocked(p, strings.TrimSpace(frame.MessageID))
	case "send-chat":
		r.handleSendChatLocked(p, frame.Text)
	}
}
