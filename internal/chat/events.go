package chat

import (
	"encoding/json"

	"github.com/clawdeck/clawdeck/internal/gateway/protocol"
)

// EventState classifies one streamed chat event.
type EventState string

const (
	EventDelta   EventState = "delta"
	EventFinal   EventState = "final"
	EventError   EventState = "error"
	EventUnknown EventState = "unknown"
)

// EventStateFrom parses a state string, defaulting to EventUnknown.
func EventStateFrom(value string) EventState {
	switch value {
	case "delta":
		return EventDelta
	case "final":
		return EventFinal
	case "error":
		return EventError
	default:
		return EventUnknown
	}
}

// Event is one update of a streamed assistant turn, correlated by RunID.
type Event struct {
	RunID        string
	SessionKey   string
	Seq          *int
	State        EventState
	Message      *Message
	ErrorMessage string
}

// EventFromFrame filters and maps a gateway event into a chat event. Only
// "chat" events with both correlation fields map; everything else is dropped.
// Events are best-effort, so a malformed payload is never an error.
func EventFromFrame(frame protocol.EventFrame) (Event, bool) {
	if frame.Event != protocol.EventChat {
		return Event{}, false
	}
	var payload map[string]any
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return Event{}, false
	}
	runID, _ := payload["runId"].(string)
	sessionKey, _ := payload["sessionKey"].(string)
	if runID == "" || sessionKey == "" {
		return Event{}, false
	}

	seq := frame.Seq
	if v, ok := payload["seq"].(float64); ok {
		n := int(v)
		seq = &n
	}

	stateRaw, _ := payload["state"].(string)
	errorMessage, _ := payload["errorMessage"].(string)

	var message *Message
	if rec, ok := payload["message"].(map[string]any); ok {
		decoded := messageFromRecord(rec, timeNow(), 0)
		message = &decoded
	}

	return Event{
		RunID:        runID,
		SessionKey:   sessionKey,
		Seq:          seq,
		State:        EventStateFrom(stateRaw),
		Message:      message,
		ErrorMessage: errorMessage,
	}, true
}
