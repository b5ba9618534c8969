package core

import (
	"fmt"
	"sort"
)

// MessageStore is the ordered record of messages per conversation.
// It is not safe for concurrent use; the Syncer serializes access to it.
type MessageStore struct {
	threads map[string][]*Message
	// where maps every message id to its conversation.
	where map[string]string
}

// NewMessageStore constructs an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		threads: make(map[string][]*Message),
		where:   make(map[string]string),
	}
}

func (s *MessageStore) indexOf(conversationID, messageID string) int {
	for i, m := range s.threads[conversationID] {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

// Append inserts msg at the tail of the conversation.
func (s *MessageStore) Append(conversationID string, msg *Message) error {
	if msg.ConversationID != conversationID {
		return fmt.Errorf("append %s to %s: %w", msg.ID, conversationID, ErrConversationMismatch)
	}
	if _, exists := s.where[msg.ID]; exists {
		return fmt.Errorf("append %s: %w", msg.ID, ErrDuplicateMessage)
	}
	s.threads[conversationID] = append(s.threads[conversationID], msg.Clone())
	s.where[msg.ID] = conversationID
	return nil
}

// Replace substitutes the provisional entry with final, keeping its position.
// Returns false if provisionalID is no longer present.
func (s *MessageStore) Replace(conversationID, provisionalID string, final *Message) bool {
	idx := s.indexOf(conversationID, provisionalID)
	if idx < 0 {
		return false
	}
	thread := s.threads[conversationID]
	delete(s.where, provisionalID)

	// A durable copy that got in first (push echo) must not survive next to it.
	if dup := s.indexOf(conversationID, final.ID); dup >= 0 && dup != idx {
		thread = append(thread[:dup], thread[dup+1:]...)
		if dup < idx {
			idx--
		}
	} else if owner, ok := s.where[final.ID]; ok && owner != conversationID {
		s.removeAt(owner, s.indexOf(owner, final.ID))
	}

	next := final.Clone()
	next.ConversationID = conversationID
	thread[idx] = next
	s.threads[conversationID] = thread
	s.where[next.ID] = conversationID
	return true
}

// MarkFailed flags a provisional entry as failed; it stays visible.
func (s *MessageStore) MarkFailed(conversationID, provisionalID string) bool {
	idx := s.indexOf(conversationID, provisionalID)
	if idx < 0 {
		return false
	}
	s.threads[conversationID][idx].State = StateFailed
	return true
}

// Remove deletes a message by durable or provisional id.
func (s *MessageStore) Remove(conversationID, messageID string) bool {
	idx := s.indexOf(conversationID, messageID)
	if idx < 0 {
		return false
	}
	s.removeAt(conversationID, idx)
	return true
}

func (s *MessageStore) removeAt(conversationID string, idx int) {
	thread := s.threads[conversationID]
	delete(s.where, thread[idx].ID)
	s.threads[conversationID] = append(thread[:idx], thread[idx+1:]...)
}

// UpsertFromPush updates the message in place when its durable id is known,
// otherwise appends it. Returns true if the message was inserted.
func (s *MessageStore) UpsertFromPush(conversationID string, msg *Message) bool {
	if idx := s.indexOf(conversationID, msg.ID); idx >= 0 {
		cur := s.threads[conversationID][idx]
		next := msg.Clone()
		next.ConversationID = conversationID
		if next.State.rank() < cur.State.rank() {
			next.State = cur.State
		}
		s.threads[conversationID][idx] = next
		return false
	}
	next := msg.Clone()
	next.ConversationID = conversationID
	if err := s.Append(conversationID, next); err != nil {
		// id lives in another conversation; move it here.
		owner := s.where[msg.ID]
		s.removeAt(owner, s.indexOf(owner, msg.ID))
		s.threads[conversationID] = append(s.threads[conversationID], next)
		s.where[next.ID] = conversationID
	}
	return true
}

// Load replaces the settled history of a conversation with a fetched page.
// Local provisional entries are kept after it in their original order.
func (s *MessageStore) Load(conversationID string, history []*Message) {
	var local []*Message
	for _, m := range s.threads[conversationID] {
		if m.Provisional() {
			local = append(local, m)
			continue
		}
		delete(s.where, m.ID)
	}

	thread := make([]*Message, 0, len(history)+len(local))
	seen := make(map[string]int, len(history))
	for _, m := range history {
		if m.Provisional() {
			continue
		}
		next := m.Clone()
		next.ConversationID = conversationID
		if i, dup := seen[m.ID]; dup {
			thread[i] = next
			continue
		}
		if owner, ok := s.where[m.ID]; ok && owner != conversationID {
			s.removeAt(owner, s.indexOf(owner, m.ID))
		}
		seen[m.ID] = len(thread)
		thread = append(thread, next)
	}
	sort.SliceStable(thread, func(i, j int) bool {
		return thread[i].CreatedAt.Before(thread[j].CreatedAt)
	})
	thread = append(thread, local...)

	for _, m := range thread {
		s.where[m.ID] = conversationID
	}
	s.threads[conversationID] = thread
}

// Messages returns a deep-copied snapshot of the conversation's messages.
func (s *MessageStore) Messages(conversationID string) []*Message {
	thread := s.threads[conversationID]
	out := make([]*Message, 0, len(thread))
	for _, m := range thread {
		out = append(out, m.Clone())
	}
	return out
}

// Get returns a copy of a single message.
func (s *MessageStore) Get(conversationID, messageID string) (*Message, bool) {
	idx := s.indexOf(conversationID, messageID)
	if idx < 0 {
		return nil, false
	}
	return s.threads[conversationID][idx].Clone(), true
}

// Last returns the newest entry of the conversation, or nil.
func (s *MessageStore) Last(conversationID string) *Message {
	thread := s.threads[conversationID]
	if len(thread) == 0 {
		return nil
	}
	return thread[len(thread)-1].Clone()
}

// Locate returns the conversation holding messageID.
func (s *MessageStore) Locate(messageID string) (string, bool) {
	conv, ok := s.where[messageID]
	return conv, ok
}

// FindPendingEcho returns the id of the oldest pending provisional entry from
// senderID whose content matches msg, or "" if none.
// Failed entries are never matched: only the durable id settles them.
func (s *MessageStore) FindPendingEcho(conversationID, senderID string, msg *Message, skip map[string]*Message) string {
	for _, m := range s.threads[conversationID] {
		if !m.Provisional() || m.State != StatePending || m.SenderID != senderID {
			continue
		}
		if _, parked := skip[m.ID]; parked {
			continue
		}
		if m.sameContent(msg) {
			return m.ID
		}
	}
	return ""
}

// ApplyReaction mutates the reactor set of a message.
func (s *MessageStore) ApplyReaction(conversationID, messageID, emoji, userID string, add bool) bool {
	idx := s.indexOf(conversationID, messageID)
	if idx < 0 {
		return false
	}
	return s.threads[conversationID][idx].applyReaction(emoji, userID, add)
}

// Drop forgets every message of a conversation.
func (s *MessageStore) Drop(conversationID string) {
	for _, m := range s.threads[conversationID] {
		delete(s.where, m.ID)
	}
	delete(s.threads, conversationID)
}
