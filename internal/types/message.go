package types

import "time"

// MessageKind classifies a unit in a session's read buffer.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindToolUse    MessageKind = "tool_use"
	KindToolResult MessageKind = "tool_result"
	KindCode       MessageKind = "code"
	KindThinking   MessageKind = "thinking"
	KindError      MessageKind = "error"
	KindResult     MessageKind = "result"
	KindUser       MessageKind = "user"
)

// SessionMessage is a typed unit in a session's read buffer. Ordered by
// insertion; the cursor used by Read is its index in that order.
type SessionMessage struct {
	Kind      MessageKind       `json:"kind"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Metadata keys recognized by consumers of SessionMessage.Metadata.
const (
	MetaTool      = "tool"
	MetaFile      = "file"
	MetaLanguage  = "language"
	MetaToolUseID = "toolUseId"
)
