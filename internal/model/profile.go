package model

import "time"

// Profile is a read-only snapshot of a participant owned by the user directory.
type Profile struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Icon     string    `json:"icon,omitempty" yaml:"icon"`
	LastSeen time.Time `json:"last_seen,omitempty" yaml:"last_seen"`
}

// DirectoryEntry is one row of a participant's conversation listing. Friends
// without a conversation yet have a nil Conversation.
type DirectoryEntry struct {
	Conversation     *Conversation `json:"conversation,omitempty"`
	OtherParticipant string        `json:"other_participant,omitempty"`
	Profile          *Profile      `json:"profile,omitempty"`
	Title            string        `json:"title"`
	Icon             string        `json:"icon,omitempty"`
}
