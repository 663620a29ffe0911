package model

// WebSocket push event types
const (
	EventConversation = "conversation"
	EventDirectory    = "directory"
	EventError        = "error"
)

// Event is pushed to WebSocket clients
type Event struct {
	Type         string           `json:"type"`
	Conversation *Conversation    `json:"conversation,omitempty"`
	Entries      []DirectoryEntry `json:"entries,omitempty"`
	Error        string           `json:"error,omitempty"`
	// Ref echoes the client command ref so replies can be correlated
	Ref string `json:"ref,omitempty"`
}
