package session

import (
	"encoding/json"
	"time"
)

// EventType classifies session log events
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeSessionStart
	EventTypeLock
	EventTypeLineClear
	EventTypeGameOver
	EventTypeRestart
	EventTypeScoreSubmitted
	EventTypeSessionEnd
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is one line of the session log.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // assigned by the log
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns the snake_case event name.
func (t EventType) String() string {
	switch t {
	case EventTypeSessionStart:
		return "session_start"
	case EventTypeLock:
		return "lock"
	case EventTypeLineClear:
		return "line_clear"
	case EventTypeGameOver:
		return "game_over"
	case EventTypeRestart:
		return "restart"
	case EventTypeScoreSubmitted:
		return "score_submitted"
	case EventTypeSessionEnd:
		return "session_end"
	default:
		return "unknown"
	}
}

// MarshalText encodes the type by name so log lines stay readable.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// StartPayload records what is needed to replay a session's piece sequence.
type StartPayload struct {
	Seed   int64 `json:"seed"`
	Width  int   `json:"width"`
	Height int   `json:"height"`
}

// LockPayload describes a piece coming to rest
type LockPayload struct {
	Kind  string `json:"kind"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Steps int    `json:"steps"`
	Score int    `json:"score"`
}

// LineClearPayload describes rows removed by one lock.
type LineClearPayload struct {
	Lines      int `json:"lines"`
	Points     int `json:"points"`
	TotalLines int `json:"totalLines"`
	Level      int `json:"level"`
}

// GameOverPayload holds the final tallies.
type GameOverPayload struct {
	Score int `json:"score"`
	Lines int `json:"lines"`
	Level int `json:"level"`
}

// ScorePayload records a high-score submission.
type ScorePayload struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Rank  int    `json:"rank"`
}

// EncodePayload marshals a payload, returning nil on failure.
func EncodePayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, sessionID string, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		SessionID: sessionID,
		Payload:   EncodePayload(payload),
	}
}
