// Package protocol defines the framed JSON protocol spoken by the gateway.
// Three frame shapes travel on one socket (requests, responses, and
// unsolicited events), discriminated by the "type" field. This matches the
// TypeScript gateway's wire format for compatibility with existing clients.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame type discriminants.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// Well-known event names.
const (
	EventChat             = "chat"
	EventConnectChallenge = "connect.challenge"
)

// ConnectRequestID is the reserved request id used by the connect handshake.
const ConnectRequestID = "connect"

// RequestFrame is a client-initiated RPC call.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers exactly one outstanding RequestFrame, matched by id.
type ResponseFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError carries the failure detail of a non-ok response.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// EventFrame is an unsolicited server push. Events of the same logical
// stream are partially ordered by Seq.
type EventFrame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     *int            `json:"seq,omitempty"`
}

// Frame is one decoded wire unit. Exactly one of the variant pointers is set.
type Frame struct {
	Req   *RequestFrame
	Res   *ResponseFrame
	Event *EventFrame
}

// NewRequest builds an encodable request frame. params may be nil.
func NewRequest(id, method string, params json.RawMessage) RequestFrame {
	return RequestFrame{Type: TypeRequest, ID: id, Method: method, Params: params}
}

// Encode serializes a frame variant for the wire.
func Encode(f Frame) ([]byte, error) {
	switch {
	case f.Req != nil:
		return json.Marshal(f.Req)
	case f.Res != nil:
		return json.Marshal(f.Res)
	case f.Event != nil:
		return json.Marshal(f.Event)
	}
	return nil, fmt.Errorf("encode frame: empty frame")
}

// Decode parses one wire unit. Malformed envelopes and unknown frame types
// return an error so the caller can drop the frame; unknown *event names*
// decode fine and are left for downstream mapping.
func Decode(data []byte) (Frame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch head.Type {
	case TypeRequest:
		var f RequestFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return Frame{}, fmt.Errorf("decode request frame: %w", err)
		}
		return Frame{Req: &f}, nil
	case TypeResponse:
		var f ResponseFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return Frame{}, fmt.Errorf("decode response frame: %w", err)
		}
		return Frame{Res: &f}, nil
	case TypeEvent:
		var f EventFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return Frame{}, fmt.Errorf("decode event frame: %w", err)
		}
		return Frame{Event: &f}, nil
	default:
		return Frame{}, fmt.Errorf("decode frame: unknown type %q", head.Type)
	}
}

// ConnectParams is sent by clients as the params of the connect request.
type ConnectParams struct {
	ClientID    string      `json:"clientId"`
	Mode        string      `json:"mode"`
	DisplayName string      `json:"displayName"`
	Role        string      `json:"role"`
	Scopes      []string    `json:"scopes"`
	Device      *DeviceInfo `json:"device,omitempty"`
	Token       string      `json:"token,omitempty"`
	Nonce       string      `json:"nonce,omitempty"`
}

// DeviceInfo identifies the connecting device. Signature is an optional
// attestation over the challenge nonce.
type DeviceInfo struct {
	ID        string `json:"id"`
	Signature string `json:"signature,omitempty"`
}

// HelloOk is the payload of a successful connect response.
type HelloOk struct {
	Auth *AuthGrant `json:"auth,omitempty"`
}

// AuthGrant carries the rotated device token and the granted role/scopes.
type AuthGrant struct {
	DeviceToken string   `json:"deviceToken,omitempty"`
	Role        string   `json:"role,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// ChallengePayload is the payload of a connect.challenge event.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
}
