package core

import (
	"sort"
	"time"
)

// DeliveryState tracks how far a message got on its way to the recipients.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateSeen      DeliveryState = "seen"
	StateFailed    DeliveryState = "failed"
)

// rank orders states so a stale echo never downgrades a message.
func (s DeliveryState) rank() int {
	switch s {
	case StatePending:
		return 1
	case StateSent:
		return 2
	case StateDelivered:
		return 3
	case StateSeen:
		return 4
	default:
		return 0
	}
}

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
	MessageTypeVoice MessageType = "voice"
)

// Attachment references uploaded media.
type Attachment struct {
	URL  string
	Name string
	Size int64
	MIME string
}

// Reaction is an emoji with the set of users who used it.
type Reaction struct {
	Emoji    string
	Reactors map[string]struct{}
}

// Count returns the number of reactors.
func (r Reaction) Count() int {
	return len(r.Reactors)
}

// Users returns reactor ids in sorted order.
func (r Reaction) Users() []string {
	users := make([]string, 0, len(r.Reactors))
	for id := range r.Reactors {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// Message is the client-side model of a chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Type           MessageType
	Text           string
	Attachments    []Attachment
	CreatedAt      time.Time
	State          DeliveryState
	ReplyTo        string
	Reactions      []Reaction
	Edited         bool
}

// Provisional reports whether the message still carries a locally generated id.
func (m *Message) Provisional() bool {
	return IsProvisionalID(m.ID)
}

// Clone returns a deep copy so snapshots never alias store internals.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Reactions != nil {
		out.Reactions = make([]Reaction, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			reactors := make(map[string]struct{}, len(r.Reactors))
			for id := range r.Reactors {
				reactors[id] = struct{}{}
			}
			out.Reactions = append(out.Reactions, Reaction{Emoji: r.Emoji, Reactors: reactors})
		}
	}
	return &out
}

// sameContent is the matching rule between an optimistic entry and a pushed echo.
func (m *Message) sameContent(other *Message) bool {
	if m.Text != other.Text || m.ReplyTo != other.ReplyTo {
		return false
	}
	if len(m.Attachments) != len(other.Attachments) {
		return false
	}
	for i := range m.Attachments {
		if m.Attachments[i].URL != other.Attachments[i].URL {
			return false
		}
	}
	return true
}

// applyReaction adds or removes userID from the emoji's reactor set.
// Returns true if the message changed.
func (m *Message) applyReaction(emoji, userID string, add bool) bool {
	for i := range m.Reactions {
		r := &m.Reactions[i]
		if r.Emoji != emoji {
			continue
		}
		_, has := r.Reactors[userID]
		if add {
			if has {
				return false
			}
			r.Reactors[userID] = struct{}{}
			return true
		}
		if !has {
			return false
		}
		delete(r.Reactors, userID)
		if len(r.Reactors) == 0 {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
		}
		return true
	}
	if !add {
		return false
	}
	m.Reactions = append(m.Reactions, Reaction{
		Emoji:    emoji,
		Reactors: map[string]struct{}{userID: {}},
	})
	return true
}

// HasReaction reports whether userID reacted with emoji.
func (m *Message) HasReaction(emoji, userID string) bool {
	for _, r := range m.Reactions {
		if r.Emoji == emoji {
			_, ok := r.Reactors[userID]
			return ok
		}
	}
	return false
}

// Summary is the last-message preview kept on a conversation.
type Summary struct {
	MessageID  string
	SenderID   string
	SenderName string
	Type       MessageType
	Text       string
	CreatedAt  time.Time
}

func summarize(m *Message) *Summary {
	if m == nil {
		return nil
	}
	return &Summary{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Type:       m.Type,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}
