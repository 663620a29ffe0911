package model

import "time"

// Tombstone replaces the content of a deleted message.
const Tombstone = "This message was deleted"

// Message is a single entry in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	IsEdited  bool      `json:"is_edited"`
	IsDeleted bool      `json:"is_deleted"`
	// Reply is the id of the message this one answers. The target may be
	// edited, deleted or missing; it is never owned by this message.
	Reply string `json:"reply,omitempty"`
}

// Conversation is the unit of consistency in the store: participants plus
// the full ordered message list.
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	DisplayName  string    `json:"display_name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	// Revision is assigned by the store and grows by one on every put.
	Revision int64 `json:"revision"`
}

// Clone returns a deep copy so callers can mutate slices freely.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Participants != nil {
		out.Participants = append([]string(nil), c.Participants...)
	}
	if c.Messages != nil {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	return out
}

// Has reports whether p is a participant.
func (c Conversation) Has(p string) bool {
	for _, x := range c.Participants {
		if x == p {
			return true
		}
	}
	return false
}

// Other returns the first participant that is not self, or "".
func (c Conversation) Other(self string) string {
	for _, x := range c.Participants {
		if x != self {
			return x
		}
	}
	return ""
}

// LastMessage returns the tail of the message list.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// LastActivity is the timestamp of the newest message, falling back to the
// document's update and creation times.
func (c Conversation) LastActivity() time.Time {
	if m, ok := c.LastMessage(); ok {
		return m.Timestamp
	}
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}
