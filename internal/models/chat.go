package models

import "time"

// CompletionMode selects how a prompt against the session is completed.
// A session flips to assistant mode when its first file is attached and
// back to freeform when the last one is detached.
type CompletionMode string

const (
	ModeFreeform  CompletionMode = "freeform"
	ModeAssistant CompletionMode = "assistant"
)

type ChatSession struct {
	ID           string
	UserID       string
	Mode         CompletionMode
	AssistantRef string // non-empty iff Mode == ModeAssistant
	Attachments  []Attachment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Exchange is one completed prompt/response pair. The provider-facing
// role-tagged turn sequence is derived from exchanges, so the two views
// cannot drift apart.
type Exchange struct {
	Seq       int
	Prompt    string
	Response  string
	CreatedAt time.Time
}

type Attachment struct {
	SessionID      string
	FileName       string
	ProviderFileID string
	ObjectKey      string
	CreatedAt      time.Time
}

type SessionHistory struct {
	SessionID string
	Exchanges []Exchange
}

type Turn struct {
	Role    string
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// RawTurns expands exchanges into the role-tagged conversation context,
// two turns per exchange.
func RawTurns(exchanges []Exchange) []Turn {
	turns := make([]Turn, 0, len(exchanges)*2)
	for _, ex := range exchanges {
		turns = append(turns,
			Turn{Role: RoleUser, Content: ex.Prompt},
			Turn{Role: RoleAssistant, Content: ex.Response},
		)
	}
	return turns
}
