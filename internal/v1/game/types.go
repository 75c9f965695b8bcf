// Package game implements the quiz room state machine: admission, the
// phase flow from lobby through results, answer scoring, captain votes,
// team naming, chat and host pause handling. A Room is the single
// synchronization domain; the gateway package owns the sockets and feeds
// decoded frames in.
package game

import (
	"encoding/json"

	"github.com/quizbattle/quizroom/internal/v1/catalog"
)

// Phase is the room lifecycle stage.
type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseTeamReveal    Phase = "team-reveal"
	PhaseCaptainVote   Phase = "captain-vote"
	PhaseTeamNaming    Phase = "team-naming"
	PhaseQuestion      Phase = "question"
	PhaseReveal        Phase = "reveal"
	PhaseResults       Phase = "results"
	PhaseHostReconnect Phase = "host-reconnect"
	PhaseManualPause   Phase = "manual-pause"
)

// ValidPhase reports whether raw names a known phase.
func ValidPhase(raw string) bool {
	switch Phase(raw) {
	case PhaseLobby, PhaseTeamReveal, PhaseCaptainVote, PhaseTeamNaming,
		PhaseQuestion, PhaseReveal, PhaseResults, PhaseHostReconnect, PhaseManualPause:
		return true
	}
	return false
}

// GameMode selects how answers are collected and scored.
type GameMode string

const (
	ModeClassic GameMode = "classic"
	ModeFFA     GameMode = "ffa"
	ModeChaos   GameMode = "chaos"
)

// Team identifies one of the two fixed teams.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// TeamKeys in canonical order.
var TeamKeys = [2]Team{TeamA, TeamB}

// SkipRequestStatus tracks the player-initiated question skip workflow.
type SkipRequestStatus string

const (
	SkipIdle     SkipRequestStatus = "idle"
	SkipPending  SkipRequestStatus = "pending"
	SkipRejected SkipRequestStatus = "rejected"
)

// Phase and scoring timings, in milliseconds.
const (
	QuestionTimeMs            = 30000
	RevealTimeMs              = 4000
	SkipRevealTimeMs          = 1800
	TeamRevealTimeMs          = 6000
	CaptainVoteTimeMs         = 30000
	CaptainAutoPickDelayMs    = 3000
	TeamNamingTimeMs          = 30000
	HostReconnectWaitMs       = 30000
	MinTimerDelayMs           = 120
	BaseCorrectPoints         = 1
	ChatHistoryLimit          = 100
	QuestionHistoryLimit      = 200
	EventHistoryLimit         = 300
	StrikesToDisqualify       = 3
	DefaultMaxPlayers         = 20
)

// Timer keys used by the room scheduler.
const (
	timerQuestion      = "question"
	timerReveal        = "reveal"
	timerTeamReveal    = "teamReveal"
	timerCaptainVote   = "captainVote"
	timerCaptainAuto   = "captainAuto"
	timerTeamNaming    = "teamNaming"
	timerHostReconnect = "hostReconnect"
)

// Rejection codes surfaced on the error frame before closing with 1008.
const (
	CodeInvalidRoomID        = "INVALID_ROOM_ID"
	CodeInvalidJoinPayload   = "INVALID_JOIN_PAYLOAD"
	CodeJoinTimeout          = "JOIN_TIMEOUT"
	CodeRoomNotFound         = "ROOM_NOT_FOUND"
	CodeRoomFull             = "ROOM_FULL"
	CodeHostTokenInvalid     = "HOST_TOKEN_INVALID"
	CodeAuthTokenInvalid     = "AUTH_TOKEN_INVALID"
	CodeAccountAlreadyInRoom = "ACCOUNT_ALREADY_IN_ROOM"
	CodeRoomPasswordRequired = "ROOM_PASSWORD_REQUIRED"
	CodeRoomPasswordInvalid  = "ROOM_PASSWORD_INVALID"
)

// Websocket close codes.
const (
	ClosePolicyViolation = 1008
	CloseSessionHandoff  = 4002
)

// Conn delivers server frames to one participant. Send must not block the
// caller; implementations drop the frame and return false when the peer
// cannot keep up. CloseWithCode tears the transport down asynchronously.
type Conn interface {
	Send(v any) bool
	CloseWithCode(code int)
}

// Player is one connected participant of a room.
type Player struct {
	PeerID      string
	Name        string
	Team        Team // empty when unassigned
	IsHost      bool
	IsSpectator bool
	IsCaptain   bool
	IdentityKey string
	PlayerToken string
	Conn        Conn

	AuthUserID         *int64
	Avatar             *string
	ProfileFrame       *string
	MascotSkinCat      *string
	MascotSkinDog      *string
	VictoryEffectFront *string
	VictoryEffectBack  *string
}

// ChatMessage is one entry of the room chat. Visibility is "all", "host"
// or a team key; the projection layer filters per viewer.
type ChatMessage struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Visibility string `json:"visibility"`
	Kind       string `json:"kind,omitempty"`
}

// Submission is one player's answer during a question.
type Submission struct {
	SelectedIndex int    `json:"selectedIndex"`
	ByPeerID      string `json:"byPeerId"`
	ByName        string `json:"byName"`
	AnsweredAt    int64  `json:"answeredAt"`
}

// ActiveAnswer is the captain's locked answer in classic mode. AnsweredAt
// is captured at submission so the speed bonus reflects the real response
// time even when finalization runs later.
type ActiveAnswer struct {
	SelectedIndex int    `json:"selectedIndex"`
	ByPeerID      string `json:"byPeerId"`
	ByName        string `json:"byName"`
	AnsweredAt    int64  `json:"answeredAt"`
}

// PausedState remembers the interrupted phase across a pause.
type PausedState struct {
	Phase       Phase `json:"phase"`
	RemainingMs int64 `json:"remainingMs"`
}

// PlayerResult is one participant's outcome for a single question.
type PlayerResult struct {
	PeerID          string `json:"peerId"`
	Name            string `json:"name"`
	Team            *Team  `json:"team"`
	SelectedIndex   *int   `json:"selectedIndex"`
	IsCorrect       bool   `json:"isCorrect"`
	BasePoints      int    `json:"basePoints"`
	SpeedBonus      int    `json:"speedBonus"`
	TimeRemainingMs int64  `json:"timeRemainingMs"`
	PointsAwarded   int    `json:"pointsAwarded"`
	TotalScore      *int   `json:"totalScore,omitempty"`
	Status          string `json:"status"`
}

// ChaosTeamResult is the per-team outcome of a chaos vote round.
type ChaosTeamResult struct {
	Team                Team           `json:"team"`
	SelectedIndex       *int           `json:"selectedIndex"`
	IsCorrect           bool           `json:"isCorrect"`
	BasePoints          int            `json:"basePoints"`
	SpeedBonus          int            `json:"speedBonus"`
	TimeRemainingMs     int64          `json:"timeRemainingMs"`
	PointsAwarded       int            `json:"pointsAwarded"`
	VoteCounts          map[string]int `json:"voteCounts"`
	TieResolvedRandomly bool           `json:"tieResolvedRandomly"`
	ParticipantsCount   int            `json:"participantsCount"`
	AnsweredCount       int            `json:"answeredCount"`
}

// RevealRecord is what clients see during the reveal phase. Mode-specific
// sections (playerResults, chaosTeamResults) are populated per game mode.
type RevealRecord struct {
	Mode              GameMode                  `json:"mode"`
	CorrectIndex      int                       `json:"correctIndex"`
	SelectedIndex     *int                      `json:"selectedIndex"`
	AnsweredBy        *string                   `json:"answeredBy"`
	AnsweredByName    *string                   `json:"answeredByName"`
	Team              *Team                     `json:"team"`
	IsCorrect         bool                      `json:"isCorrect"`
	BasePoints        int                       `json:"basePoints"`
	SpeedBonus        int                       `json:"speedBonus"`
	TimeRemainingMs   int64                     `json:"timeRemainingMs"`
	PointsAwarded     int                       `json:"pointsAwarded"`
	ParticipantsCount *int                      `json:"participantsCount,omitempty"`
	PlayerResults     []PlayerResult            `json:"playerResults,omitempty"`
	ChaosTeamResults  map[Team]*ChaosTeamResult `json:"chaosTeamResults,omitempty"`
	SkippedByHost     bool                      `json:"skippedByHost,omitempty"`
	SkippedByName     string                    `json:"skippedByName,omitempty"`
}

// QuestionHistoryEntry records one finished question for the host report.
type QuestionHistoryEntry struct {
	ID               string                    `json:"id"`
	Timestamp        int64                     `json:"timestamp"`
	Mode             GameMode                  `json:"mode"`
	QuestionNumber   int                       `json:"questionNumber"`
	Difficulty       catalog.Difficulty        `json:"difficulty"`
	CorrectIndex     int                       `json:"correctIndex"`
	Team             *Team                     `json:"team,omitempty"`
	SelectedIndex    *int                      `json:"selectedIndex,omitempty"`
	AnsweredBy       *string                   `json:"answeredBy,omitempty"`
	AnsweredByName   *string                   `json:"answeredByName,omitempty"`
	IsCorrect        *bool                     `json:"isCorrect,omitempty"`
	BasePoints       *int                      `json:"basePoints,omitempty"`
	SpeedBonus       *int                      `json:"speedBonus,omitempty"`
	TimeRemainingMs  *int64                    `json:"timeRemainingMs,omitempty"`
	PointsAwarded    *int                      `json:"pointsAwarded,omitempty"`
	Status           string                    `json:"status,omitempty"`
	SkippedByHost    bool                      `json:"skippedByHost,omitempty"`
	SkippedByName    string                    `json:"skippedByName,omitempty"`
	ChaosTeamResults map[Team]*ChaosTeamResult `json:"chaosTeamResults,omitempty"`
	PlayerResults    []PlayerResult            `json:"playerResults,omitempty"`
}

// EventEntry is one line of the game event log.
type EventEntry struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Kind      string         `json:"kind"`
	Text      string         `json:"text"`
	Payload   map[string]any `json:"payload"`
}

// PlayerStat accumulates one participant's per-game statistics.
type PlayerStat struct {
	PeerID            string `json:"peerId"`
	AccountUserID     *int64 `json:"accountUserId"`
	Name              string `json:"name"`
	Team              *Team  `json:"team"`
	Answers           int    `json:"answers"`
	CorrectAnswers    int    `json:"correctAnswers"`
	WrongAnswers      int    `json:"wrongAnswers"`
	SkippedAnswers    int    `json:"skippedAnswers"`
	Points            int    `json:"points"`
	TotalResponseMs   int64  `json:"totalResponseMs"`
	FastestResponseMs *int64 `json:"fastestResponseMs"`
	LastAnsweredAt    *int64 `json:"lastAnsweredAt"`
}

// Rejection describes why an admission attempt was refused.
type Rejection struct {
	Code    string
	Message string
}

// clientFrame is the decoded shape of every inbound message; fields are
// sparse and interpreted per frame type.
type clientFrame struct {
	Type            string          `json:"type"`
	CandidatePeerID string          `json:"candidatePeerId"`
	Name            json.RawMessage `json:"name"`
	AnswerIndex     json.RawMessage `json:"answerIndex"`
	Decision        string          `json:"decision"`
	MessageID       string          `json:"messageId"`
	Text            string          `json:"text"`
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

// teamPtr returns nil for an unassigned team so JSON renders null.
func teamPtr(t Team) *Team {
	if t == TeamA || t == TeamB {
		v := t
		return &v
	}
	return nil
}
