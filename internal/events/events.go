// Package events provides an event system for benchmark progress notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventIndexReady is emitted when the server finished populating its index
	EventIndexReady EventType = "index_ready"
	// EventWorkerStarted is emitted when a client or server thread starts its event loop
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerStopped is emitted when a thread leaves its event loop
	EventWorkerStopped EventType = "worker_stopped"
	// EventSessionConnected is emitted when a client session completes its handshake
	EventSessionConnected EventType = "session_connected"
	// EventSessionFailed is emitted when a client session fails or disconnects
	EventSessionFailed EventType = "session_failed"
	// EventLatencyReport is emitted for every periodic client latency report
	EventLatencyReport EventType = "latency_report"
)

// Event represents a benchmark event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  string    `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Remote  string       `json:"remote,omitempty"`
	Session int          `json:"session,omitempty"`
	Keys    uint64       `json:"keys,omitempty"`
	Error   string       `json:"error,omitempty"`
	Latency *LatencyData `json:"latency,omitempty"`
}

// LatencyData はレポート1件分のレイテンシ（マイクロ秒）
type LatencyData struct {
	Completions uint64  `json:"completions"`
	PointCount  uint64  `json:"point_count"`
	RangeCount  uint64  `json:"range_count"`
	PointP50    float64 `json:"point_p50_us,omitempty"`
	PointP99    float64 `json:"point_p99_us,omitempty"`
	RangeP90    float64 `json:"range_p90_us,omitempty"`
}

// NewIndexReadyEvent creates an index ready event
func NewIndexReadyEvent(workerID string, keys uint64) Event {
	return Event{
		Type:      EventIndexReady,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data:      EventData{Keys: keys},
	}
}

// NewWorkerStartedEvent creates a worker started event
func NewWorkerStartedEvent(workerID string) Event {
	return Event{
		Type:      EventWorkerStarted,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewWorkerStoppedEvent creates a worker stopped event
func NewWorkerStoppedEvent(workerID string) Event {
	return Event{
		Type:      EventWorkerStopped,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewSessionConnectedEvent creates a session connected event
func NewSessionConnectedEvent(workerID, remote string, session int) Event {
	return Event{
		Type:      EventSessionConnected,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Remote:  remote,
			Session: session,
		},
	}
}

// NewSessionFailedEvent creates a session failed event
func NewSessionFailedEvent(workerID string, session int, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventSessionFailed,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Session: session,
			Error:   errMsg,
		},
	}
}

// NewLatencyReportEvent creates a latency report event
func NewLatencyReportEvent(workerID string, at time.Time, latency LatencyData) Event {
	return Event{
		Type:      EventLatencyReport,
		Timestamp: at,
		WorkerID:  workerID,
		Data:      EventData{Latency: &latency},
	}
}
