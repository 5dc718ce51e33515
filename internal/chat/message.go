// Package chat maps gateway traffic into the conversation domain: typed
// requests and streamed events on one side, the reconciled message log on
// the other.
package chat

import (
	"strings"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleUnknown   Role = "unknown"
)

// RoleFrom parses a role case-insensitively, defaulting to RoleUnknown.
func RoleFrom(value string) Role {
	switch strings.ToLower(value) {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return RoleUnknown
	}
}

// DeliveryState tracks a message through the send pipeline.
type DeliveryState string

const (
	StateSending DeliveryState = "sending"
	StateSent    DeliveryState = "sent"
	StateFailed  DeliveryState = "failed"
)

// ReplyRef quotes the message being replied to.
type ReplyRef struct {
	ID     string `json:"id"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Message is one entry in the conversation log. A message in StateSent that
// came from the server is treated as immutable; local edit and delete only
// touch messages still sending or failed.
type Message struct {
	ID            string        `json:"id"`
	Role          Role          `json:"role"`
	Text          string        `json:"text"`
	State         DeliveryState `json:"state"`
	CreatedAt     time.Time     `json:"createdAt"`
	ReplyTo       *ReplyRef     `json:"replyTo,omitempty"`
	ForwardedFrom string        `json:"forwardedFrom,omitempty"`
	Edited        bool          `json:"edited,omitempty"`
	Deleted       bool          `json:"deleted,omitempty"`
}

// hasLocalMeta reports whether the message carries metadata that exists only
// locally and must survive a history merge.
func (m Message) hasLocalMeta() bool {
	return m.ReplyTo != nil || m.ForwardedFrom != "" || m.Edited || m.Deleted
}
