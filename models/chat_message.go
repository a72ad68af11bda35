package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"labchat_server/apperrors"
)

// ChatMessage is an immutable group chat message. SortKey orders messages inside a group.
type ChatMessage struct {
	GroupID    string    `dynamodbav:"groupId" json:"groupId"`
	SortKey    string    `dynamodbav:"sortKey" json:"-"`
	MessageID  string    `dynamodbav:"messageId" json:"id"`
	UserID     string    `dynamodbav:"userId" json:"userId"`
	UserName   string    `dynamodbav:"userName" json:"userName"`
	UserAvatar *string   `dynamodbav:"userAvatar,omitempty" json:"userAvatar,omitempty"`
	Content    string    `dynamodbav:"content" json:"content"`
	AudioURL   *string   `dynamodbav:"audioUrl,omitempty" json:"audioUrl,omitempty"`
	Timestamp  time.Time `dynamodbav:"timestamp" json:"timestamp"`
}

// MessageSortKey is "<19-digit unix nanos>#<message id>". The zero padding keeps lexical order
// chronological, and the id (a UUIDv7) breaks timestamp ties in insertion order.
func MessageSortKey(ts time.Time, messageID string) string {
	return fmt.Sprintf("%019d#%s", ts.UnixNano(), messageID)
}

// SortKeyAfter is the smallest sort key whose timestamp is strictly greater than ts.
func SortKeyAfter(ts time.Time) string {
	return fmt.Sprintf("%019d", ts.UnixNano()+1)
}

// MessagePage is one page of history in ascending timestamp order.
type MessagePage struct {
	Messages   []ChatMessage `json:"messages"`
	NextCursor *string       `json:"nextCursor,omitempty"`
}

// InboundFrame is what a client sent over the socket: either plain text or a structured document.
type InboundFrame interface {
	isInboundFrame()
	Body() (content string, audioURL *string)
}

// TextFrame is a plain text message.
type TextFrame struct {
	Text string
}

func (TextFrame) isInboundFrame() {}

func (f TextFrame) Body() (string, *string) { return f.Text, nil }

// StructuredFrame is a JSON document carrying content and an optional audio reference.
type StructuredFrame struct {
	Content  string  `json:"content"`
	AudioURL *string `json:"audioUrl,omitempty"`
}

func (StructuredFrame) isInboundFrame() {}

func (f StructuredFrame) Body() (string, *string) { return f.Content, f.AudioURL }

// ParseInboundFrame classifies a raw frame: a payload whose first non-blank byte is '{' must be a
// structured document; anything else is text.
func ParseInboundFrame(raw []byte) (InboundFrame, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var frame StructuredFrame
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&frame); err != nil {
			return nil, apperrors.InvalidInput("malformed structured message")
		}
		if frame.AudioURL != nil && strings.TrimSpace(*frame.AudioURL) == "" {
			frame.AudioURL = nil
		}
		if strings.TrimSpace(frame.Content) == "" && frame.AudioURL == nil {
			return nil, apperrors.InvalidInput("message must have content or audio")
		}
		return frame, nil
	}
	if len(trimmed) == 0 {
		return nil, apperrors.InvalidInput("message must have content or audio")
	}
	return TextFrame{Text: string(raw)}, nil
}

// Outbound envelope types.
const (
	EnvelopeMessage = "message"
	EnvelopeStatus  = "status"
	EnvelopeError   = "error"
)

// Envelope is the tagged frame sent to clients.
type Envelope struct {
	Type        string       `json:"type"`
	Data        *ChatMessage `json:"data,omitempty"`
	OnlineUsers []string     `json:"onlineUsers,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func MessageEnvelope(msg ChatMessage) Envelope {
	return Envelope{Type: EnvelopeMessage, Data: &msg}
}

func StatusEnvelope(onlineUsers []string) Envelope {
	return Envelope{Type: EnvelopeStatus, OnlineUsers: onlineUsers}
}

func ErrorEnvelope(message string) Envelope {
	return Envelope{Type: EnvelopeError, Error: message}
}

// MarshalJSON writes only the fields of the envelope's type; a status frame always carries
// onlineUsers, even when nobody is left.
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EnvelopeMessage:
		return json.Marshal(struct {
			Type string       `json:"type"`
			Data *ChatMessage `json:"data"`
		}{e.Type, e.Data})
	case EnvelopeStatus:
		users := e.OnlineUsers
		if users == nil {
			users = []string{}
		}
		return json.Marshal(struct {
			Type        string   `json:"type"`
			OnlineUsers []string `json:"onlineUsers"`
		}{e.Type, users})
	default:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{e.Type, e.Error})
	}
}
