package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	data := []byte(`{"type":"req","id":"42","method":"chat.send","params":{"message":"hi"}}`)
	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Req == nil {
		t.Fatal("expected request frame")
	}
	if frame.Req.ID != "42" || frame.Req.Method != "chat.send" {
		t.Errorf("got id=%q method=%q; want 42 chat.send", frame.Req.ID, frame.Req.Method)
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantOK  bool
		wantMsg string
	}{
		{
			name:   "ok_with_payload",
			data:   `{"type":"res","id":"1","ok":true,"payload":{"runId":"r1"}}`,
			wantOK: true,
		},
		{
			name:    "error",
			data:    `{"type":"res","id":"2","ok":false,"error":{"code":"denied","message":"no access"}}`,
			wantOK:  false,
			wantMsg: "no access",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Decode([]byte(tc.data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if frame.Res == nil {
				t.Fatal("expected response frame")
			}
			if frame.Res.OK != tc.wantOK {
				t.Errorf("ok = %v; want %v", frame.Res.OK, tc.wantOK)
			}
			if tc.wantMsg != "" {
				if frame.Res.Error == nil || frame.Res.Error.Message != tc.wantMsg {
					t.Errorf("error = %+v; want message %q", frame.Res.Error, tc.wantMsg)
				}
			}
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	data := []byte(`{"type":"event","event":"chat","seq":7,"payload":{"runId":"r1"}}`)
	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Event == nil {
		t.Fatal("expected event frame")
	}
	if frame.Event.Event != "chat" {
		t.Errorf("event = %q; want chat", frame.Event.Event)
	}
	if frame.Event.Seq == nil || *frame.Event.Seq != 7 {
		t.Errorf("seq = %v; want 7", frame.Event.Seq)
	}
}

// Unknown event names are not a decode error; only unknown frame types are.
func TestDecodeUnknownEventName(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"event","event":"presence.update","payload":{}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Event == nil || frame.Event.Event != "presence.update" {
		t.Errorf("got %+v; want presence.update event", frame.Event)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not_json", `{{{`},
		{"unknown_type", `{"type":"push","id":"1"}`},
		{"missing_type", `{"id":"1"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.data)); err == nil {
				t.Errorf("Decode(%q) succeeded; want error", tc.data)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	req := NewRequest("abc", "chat.history", json.RawMessage(`{"sessionKey":"main"}`))
	data, err := Encode(Frame{Req: &req})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Req == nil || frame.Req.ID != "abc" || frame.Req.Method != "chat.history" {
		t.Errorf("round trip lost fields: %+v", frame.Req)
	}
}

func TestEncodeEmptyFrame(t *testing.T) {
	if _, err := Encode(Frame{}); err == nil {
		t.Error("Encode(empty) succeeded; want error")
	}
}

func TestHelloOkDecode(t *testing.T) {
	data := []byte(`{"auth":{"deviceToken":"tok-1","role":"operator","scopes":["operator.read"]}}`)
	var hello HelloOk
	if err := json.Unmarshal(data, &hello); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if hello.Auth == nil || hello.Auth.DeviceToken != "tok-1" {
		t.Fatalf("auth = %+v; want deviceToken tok-1", hello.Auth)
	}
	if hello.Auth.Role != "operator" || len(hello.Auth.Scopes) != 1 {
		t.Errorf("grant = %+v; want operator role with one scope", hello.Auth)
	}
}

func TestConnectParamsOmitsEmptyDevice(t *testing.T) {
	params := ConnectParams{ClientID: "clawdeck", Mode: "ui", Role: "operator"}
	data, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["device"]; ok {
		t.Error("device present in JSON; want omitted")
	}
	if _, ok := decoded["token"]; ok {
		t.Error("token present in JSON; want omitted")
	}
}
