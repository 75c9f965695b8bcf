package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the quiz room orchestrator.
//
// Naming convention: namespace_subsystem_name
// - namespace: quizroom (application-level grouping)
// - subsystem: websocket, room, game, snapshot (feature-level grouping)
// - name: specific metric (connections_active, admissions_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (frames processed, errors)
// - Histogram: Latency distributions (question finalize time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizroom",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of rooms resident in the registry (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizroom",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of participants in each room (GaugeVec with room_id label)
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quizroom",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// Admissions counts join outcomes by result code ("ok" or the rejection code)
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizroom",
		Subsystem: "room",
		Name:      "admissions_total",
		Help:      "Total join attempts by outcome",
	}, []string{"outcome"})

	// FramesIn counts inbound client frames by type
	FramesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizroom",
		Subsystem: "websocket",
		Name:      "frames_in_total",
		Help:      "Total inbound WebSocket frames by type",
	}, []string{"frame_type"})

	// SendFailures counts frames dropped because a client socket was slow or closed
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizroom",
		Subsystem: "websocket",
		Name:      "send_failures_total",
		Help:      "Total outbound frames dropped due to send failure or full buffer",
	})

	// StaleDisconnects counts disconnects of sockets that were already replaced by a handoff
	StaleDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizroom",
		Subsystem: "websocket",
		Name:      "stale_disconnects_total",
		Help:      "Total disconnects of sockets no longer bound to a seat",
	})

	// QuestionFinalizeDuration tracks how long the scoring pipeline takes per question
	QuestionFinalizeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quizroom",
		Subsystem: "game",
		Name:      "question_finalize_seconds",
		Help:      "Time spent finalizing a question",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1},
	}, []string{"game_mode"})

	// GamesFinished counts games that reached the results phase, by mode
	GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizroom",
		Subsystem: "game",
		Name:      "games_finished_total",
		Help:      "Total games that reached the results phase",
	}, []string{"game_mode"})

	// SnapshotWrites counts snapshot persistence operations by tier and status
	SnapshotWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizroom",
		Subsystem: "snapshot",
		Name:      "writes_total",
		Help:      "Total snapshot writes by tier and status",
	}, []string{"tier", "status"})

	// SnapshotLoads counts snapshot loads by tier and status
	SnapshotLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizroom",
		Subsystem: "snapshot",
		Name:      "loads_total",
		Help:      "Total snapshot loads by tier and status",
	}, []string{"tier", "status"})

	// CircuitBreakerState exposes breaker state for external stores (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quizroom",
		Subsystem: "snapshot",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per store (0=closed, 1=open, 2=half-open)",
	}, []string{"store"})

	// RateLimitExceeded counts requests rejected by the rate limiter
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizroom",
		Subsystem: "websocket",
		Name:      "rate_limit_exceeded_total",
		Help:      "Total requests rejected by the rate limiter",
	}, []string{"scope", "limit_type"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
