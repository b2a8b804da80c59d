// Package adapter defines the narrow Message adapter boundary the
// core consumes (spec §6): a unified external Message envelope plus
// AdapterSend/AdapterReply, nothing else — the core never talks to a
// chat platform directly.
//
// The envelope shape is adapted from the teacher's
// internal/types.Message bus envelope (ID, Timestamp, From/To, Type,
// Payload), generalized from the teacher's fixed internal Role pair
// into the external platform/channel/sender triple spec §6 names.
package adapter

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of content carried in a Message.
type MessageType string

const (
	TypeText    MessageType = "text"
	TypeCommand MessageType = "command"
	TypeFile    MessageType = "file"
	TypeSystem  MessageType = "system"
)

// Entity is a structured span inside Content.Text (e.g. a mention or
// URL), as platforms like Slack/Discord commonly report them.
type Entity struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Value string `json:"value,omitempty"`
}

// Attachment is a file or link bundled with a Message.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
}

// Content is the body of a Message.
type Content struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Entities    []Entity     `json:"entities,omitempty"`
}

// Message is the unified envelope the core receives from, and sends
// through, an external platform adapter (spec §6).
type Message struct {
	ID        string          `json:"id"`
	Platform  string          `json:"platform"`
	Channel   string          `json:"channel"`
	Sender    string          `json:"sender"`
	Type      MessageType     `json:"type"`
	Content   Content         `json:"content"`
	ReplyTo   string          `json:"replyTo,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Adapter is the narrow interface the core consumes to talk back out
// to whatever platform a Message arrived from. The core calls these
// two methods only — it holds no platform-specific send logic.
type Adapter interface {
	AdapterSend(channel string, response string) error
	AdapterReply(message Message, response string) error
}
