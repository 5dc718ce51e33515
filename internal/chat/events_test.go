package chat

import (
	"encoding/json"
	"testing"

	"github.com/clawdeck/clawdeck/internal/gateway/protocol"
)

func chatFrame(payload string, seq *int) protocol.EventFrame {
	return protocol.EventFrame{
		Type:    protocol.TypeEvent,
		Event:   protocol.EventChat,
		Payload: json.RawMessage(payload),
		Seq:     seq,
	}
}

func intPtr(n int) *int { return &n }

func TestEventFromFrame(t *testing.T) {
	tests := []struct {
		name      string
		frame     protocol.EventFrame
		wantOK    bool
		wantState EventState
		wantText  string
	}{
		{
			name:      "delta",
			frame:     chatFrame(`{"runId":"r1","sessionKey":"main","state":"delta","seq":3,"message":{"role":"assistant","content":"partial"}}`, nil),
			wantOK:    true,
			wantState: EventDelta,
			wantText:  "partial",
		},
		{
			name:      "final",
			frame:     chatFrame(`{"runId":"r1","sessionKey":"main","state":"final","message":{"role":"assistant","content":"done"}}`, nil),
			wantOK:    true,
			wantState: EventFinal,
			wantText:  "done",
		},
		{
			name:      "error",
			frame:     chatFrame(`{"runId":"r1","sessionKey":"main","state":"error","errorMessage":"boom"}`, nil),
			wantOK:    true,
			wantState: EventError,
		},
		{
			name:      "unknown_state",
			frame:     chatFrame(`{"runId":"r1","sessionKey":"main","state":"thinking"}`, nil),
			wantOK:    true,
			wantState: EventUnknown,
		},
		{
			name:   "missing_run_id",
			frame:  chatFrame(`{"sessionKey":"main","state":"delta"}`, nil),
			wantOK: false,
		},
		{
			name:   "missing_session_key",
			frame:  chatFrame(`{"runId":"r1","state":"delta"}`, nil),
			wantOK: false,
		},
		{
			name:   "malformed_payload",
			frame:  chatFrame(`not json`, nil),
			wantOK: false,
		},
		{
			name: "wrong_event_name",
			frame: protocol.EventFrame{
				Type:    protocol.TypeEvent,
				Event:   "presence.update",
				Payload: json.RawMessage(`{"runId":"r1","sessionKey":"main"}`),
			},
			wantOK: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := EventFromFrame(tc.frame)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v; want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if ev.State != tc.wantState {
				t.Errorf("state = %q; want %q", ev.State, tc.wantState)
			}
			if tc.wantText != "" {
				if ev.Message == nil || ev.Message.Text != tc.wantText {
					t.Errorf("message = %+v; want text %q", ev.Message, tc.wantText)
				}
			}
			if tc.wantState == EventError && ev.ErrorMessage != "boom" {
				t.Errorf("errorMessage = %q; want boom", ev.ErrorMessage)
			}
		})
	}
}

// The payload seq wins over the frame-level seq when both are present.
func TestEventSeqSource(t *testing.T) {
	ev, ok := EventFromFrame(chatFrame(`{"runId":"r1","sessionKey":"main","state":"delta","seq":9}`, intPtr(4)))
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Seq == nil || *ev.Seq != 9 {
		t.Errorf("seq = %v; want payload seq 9", ev.Seq)
	}

	ev, ok = EventFromFrame(chatFrame(`{"runId":"r1","sessionKey":"main","state":"delta"}`, intPtr(4)))
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Seq == nil || *ev.Seq != 4 {
		t.Errorf("seq = %v; want frame seq 4", ev.Seq)
	}

	ev, ok = EventFromFrame(chatFrame(`{"runId":"r1","sessionKey":"main","state":"delta"}`, nil))
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Seq != nil {
		t.Errorf("seq = %v; want nil", ev.Seq)
	}
}
