package chat

import (
	"encoding/json"
	"fmt"

	"github.com/clawdeck/clawdeck/internal/gateway/protocol"
)

// Gateway request methods for the chat domain.
const (
	methodHistory = "chat.history"
	methodSend    = "chat.send"
	methodAbort   = "chat.abort"
)

// Requester issues one RPC over the gateway connection.
type Requester interface {
	Request(method string, payload []byte) ([]byte, error)
}

// EventSource yields the gateway's raw event stream.
type EventSource interface {
	Events() <-chan protocol.EventFrame
}

// Gateway is the connection surface the chat service needs.
type Gateway interface {
	Requester
	EventSource
}

// SendResult identifies the streamed assistant turn a send started.
type SendResult struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// Service translates chat operations into gateway requests and the gateway
// event stream into chat events.
type Service struct {
	gw Gateway
}

// NewService wraps a gateway connection.
func NewService(gw Gateway) *Service {
	return &Service{gw: gw}
}

// History fetches and decodes the server-side message log for a session.
func (s *Service) History(sessionKey string) ([]Message, error) {
	params, err := json.Marshal(map[string]string{"sessionKey": sessionKey})
	if err != nil {
		return nil, fmt.Errorf("marshal history params: %w", err)
	}
	payload, err := s.gw.Request(methodHistory, params)
	if err != nil {
		return nil, err
	}
	var res struct {
		Messages []any `json:"messages"`
	}
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode history payload: %w", err)
	}
	return MessagesFromHistory(res.Messages), nil
}

// Send submits a user message. thinking is an optional effort hint; the
// idempotency key lets the server dedup a resubmitted send.
func (s *Service) Send(sessionKey, message, thinking, idempotencyKey string) (SendResult, error) {
	params, err := json.Marshal(map[string]string{
		"sessionKey":     sessionKey,
		"message":        message,
		"thinking":       thinking,
		"idempotencyKey": idempotencyKey,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal send params: %w", err)
	}
	payload, err := s.gw.Request(methodSend, params)
	if err != nil {
		return SendResult{}, err
	}
	var res SendResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return SendResult{}, fmt.Errorf("decode send payload: %w", err)
	}
	return res, nil
}

// Abort stops the named run, or the session's active run when runID is
// empty. Fire-and-forget: only ok/not-ok comes back.
func (s *Service) Abort(sessionKey, runID string) error {
	fields := map[string]string{"sessionKey": sessionKey}
	if runID != "" {
		fields["runId"] = runID
	}
	params, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal abort params: %w", err)
	}
	_, err = s.gw.Request(methodAbort, params)
	return err
}

// Events maps the gateway event stream into chat events, dropping whatever
// does not map. The returned channel closes when the gateway stream does.
// A consumer that stops draining loses events rather than wedging the
// mapping goroutine, matching the connection's own drop-when-full policy.
func (s *Service) Events() <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for frame := range s.gw.Events() {
			ev, ok := EventFromFrame(frame)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()
	return out
}
