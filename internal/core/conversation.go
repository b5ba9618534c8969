package core

import (
	"sort"
	"time"
)

// ConversationKind distinguishes one-to-one chats from groups.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Member is a participant of a conversation.
type Member struct {
	ID   string
	Name string
}

// Conversation is the summary row shown in the conversation list.
type Conversation struct {
	ID           string
	Kind         ConversationKind
	Name         string
	Description  string
	Members      []Member
	LastMessage  *Summary
	Unread       int
	Typing       bool
	TypingUsers  []string
	Pinned       bool
	Muted        bool
	Archived     bool
	LastActivity time.Time
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Members = append([]Member(nil), c.Members...)
	out.TypingUsers = append([]string(nil), c.TypingUsers...)
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	return &out
}

type conversationEntry struct {
	conv   *Conversation
	typing map[string]struct{}
	// touched orders conversations that received a message after the initial load.
	touched uint64
}

// ConversationList keeps recency-ordered conversation summaries.
// Not safe for concurrent use; the Syncer serializes access to it.
type ConversationList struct {
	localUser string
	entries   map[string]*conversationEntry
	openID    string
	clock     uint64
}

// NewConversationList constructs an empty list for the given local user.
func NewConversationList(localUser string) *ConversationList {
	return &ConversationList{
		localUser: localUser,
		entries:   make(map[string]*conversationEntry),
	}
}

// Load replaces the whole list with fetched conversations. Typing state of
// conversations that survive the reload is kept.
func (l *ConversationList) Load(convs []*Conversation) {
	next := make(map[string]*conversationEntry, len(convs))
	for _, c := range convs {
		entry := &conversationEntry{conv: c.Clone(), typing: make(map[string]struct{})}
		if prev, ok := l.entries[c.ID]; ok {
			entry.typing = prev.typing
			entry.touched = prev.touched
		}
		if entry.conv.Unread < 0 {
			entry.conv.Unread = 0
		}
		if c.ID == l.openID {
			entry.conv.Unread = 0
		}
		next[c.ID] = entry
	}
	l.entries = next
}

// Upsert inserts or refreshes a single conversation, keeping local state.
func (l *ConversationList) Upsert(c *Conversation) {
	entry, ok := l.entries[c.ID]
	if !ok {
		conv := c.Clone()
		if conv.Unread < 0 {
			conv.Unread = 0
		}
		l.entries[c.ID] = &conversationEntry{conv: conv, typing: make(map[string]struct{})}
		return
	}
	cur := entry.conv
	next := c.Clone()
	next.Unread = cur.Unread
	if next.LastMessage == nil || (cur.LastMessage != nil && cur.LastMessage.CreatedAt.After(next.LastMessage.CreatedAt)) {
		next.LastMessage = cur.LastMessage
	}
	if cur.LastActivity.After(next.LastActivity) {
		next.LastActivity = cur.LastActivity
	}
	entry.conv = next
}

// Get returns a copy of one conversation.
func (l *ConversationList) Get(id string) (*Conversation, bool) {
	entry, ok := l.entries[id]
	if !ok {
		return nil, false
	}
	return l.snapshot(entry), true
}

// Has reports whether the conversation is known.
func (l *ConversationList) Has(id string) bool {
	_, ok := l.entries[id]
	return ok
}

// Accept records a newly accepted message: summary update, move to head,
// unread bookkeeping.
func (l *ConversationList) Accept(msg *Message) {
	entry, ok := l.entries[msg.ConversationID]
	if !ok {
		entry = &conversationEntry{
			conv:   &Conversation{ID: msg.ConversationID, Kind: KindDirect},
			typing: make(map[string]struct{}),
		}
		l.entries[msg.ConversationID] = entry
	}
	entry.conv.LastMessage = summarize(msg)
	if msg.CreatedAt.After(entry.conv.LastActivity) {
		entry.conv.LastActivity = msg.CreatedAt
	}
	l.clock++
	entry.touched = l.clock

	if msg.ConversationID != l.openID && msg.SenderID != l.localUser {
		entry.conv.Unread++
	}
}

// Refresh rewrites the summary after the last message changed or vanished.
func (l *ConversationList) Refresh(id string, last *Message) {
	entry, ok := l.entries[id]
	if !ok {
		return
	}
	entry.conv.LastMessage = summarize(last)
}

// Open marks the conversation as the one on screen and clears its unread count.
func (l *ConversationList) Open(id string) {
	l.openID = id
	if entry, ok := l.entries[id]; ok {
		entry.conv.Unread = 0
	}
}

// Close forgets the open conversation.
func (l *ConversationList) Close() {
	l.openID = ""
}

// OpenID returns the currently open conversation.
func (l *ConversationList) OpenID() string {
	return l.openID
}

// SetTyping toggles userID's typing state. Returns true if the flag set changed.
func (l *ConversationList) SetTyping(id, userID string, typing bool) bool {
	entry, ok := l.entries[id]
	if !ok {
		return false
	}
	_, has := entry.typing[userID]
	if typing == has {
		return false
	}
	if typing {
		entry.typing[userID] = struct{}{}
	} else {
		delete(entry.typing, userID)
	}
	return true
}

// IsTyping reports whether userID is typing in the conversation.
func (l *ConversationList) IsTyping(id, userID string) bool {
	entry, ok := l.entries[id]
	if !ok {
		return false
	}
	_, has := entry.typing[userID]
	return has
}

// SetPinned moves a conversation into or out of the pinned group.
func (l *ConversationList) SetPinned(id string, pinned bool) bool {
	return l.setFlag(id, func(c *Conversation) { c.Pinned = pinned })
}

// SetMuted toggles notifications for a conversation.
func (l *ConversationList) SetMuted(id string, muted bool) bool {
	return l.setFlag(id, func(c *Conversation) { c.Muted = muted })
}

// SetArchived toggles the archive flag.
func (l *ConversationList) SetArchived(id string, archived bool) bool {
	return l.setFlag(id, func(c *Conversation) { c.Archived = archived })
}

func (l *ConversationList) setFlag(id string, set func(*Conversation)) bool {
	entry, ok := l.entries[id]
	if !ok {
		return false
	}
	set(entry.conv)
	return true
}

// Remove drops a conversation from the list.
func (l *ConversationList) Remove(id string) bool {
	if _, ok := l.entries[id]; !ok {
		return false
	}
	delete(l.entries, id)
	if l.openID == id {
		l.openID = ""
	}
	return true
}

// Ordered returns the list with pinned conversations first, each group ordered
// by recency.
func (l *ConversationList) Ordered() []*Conversation {
	entries := make([]*conversationEntry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.conv.Pinned != b.conv.Pinned {
			return a.conv.Pinned
		}
		if a.touched != b.touched {
			return a.touched > b.touched
		}
		if !a.conv.LastActivity.Equal(b.conv.LastActivity) {
			return a.conv.LastActivity.After(b.conv.LastActivity)
		}
		return a.conv.ID < b.conv.ID
	})

	out := make([]*Conversation, 0, len(entries))
	for _, e := range entries {
		out = append(out, l.snapshot(e))
	}
	return out
}

func (l *ConversationList) snapshot(e *conversationEntry) *Conversation {
	out := e.conv.Clone()
	out.TypingUsers = out.TypingUsers[:0]
	for id := range e.typing {
		out.TypingUsers = append(out.TypingUsers, id)
	}
	sort.Strings(out.TypingUsers)
	out.Typing = len(out.TypingUsers) > 0
	return out
}
