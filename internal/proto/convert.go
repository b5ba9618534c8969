package proto

import (
	"github.com/vovakirdan/wirechat-client/internal/core"
)

// ToCore converts a wire message into the client model.
func (m *Message) ToCore() *core.Message {
	if m == nil {
		return nil
	}
	out := &core.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Type:           core.MessageType(m.Type),
		Text:           m.Text,
		ReplyTo:        m.ReplyTo,
		CreatedAt:      m.CreatedAt,
		State:          core.DeliveryState(m.Status),
		Edited:         m.Edited,
	}
	if out.Type == "" {
		out.Type = core.MessageTypeText
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, core.Attachment{URL: a.URL, Name: a.Name, Size: a.Size, MIME: a.MIME})
	}
	for _, r := range m.Reactions {
		if len(r.Users) == 0 {
			continue
		}
		reactors := make(map[string]struct{}, len(r.Users))
		for _, u := range r.Users {
			reactors[u] = struct{}{}
		}
		out.Reactions = append(out.Reactions, core.Reaction{Emoji: r.Emoji, Reactors: reactors})
	}
	return out
}

// MessageFromCore converts a client message to its wire form.
func MessageFromCore(m *core.Message) Message {
	out := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Type:           string(m.Type),
		Text:           m.Text,
		Attachments:    AttachmentsFromCore(m.Attachments),
		ReplyTo:        m.ReplyTo,
		Status:         string(m.State),
		Edited:         m.Edited,
		CreatedAt:      m.CreatedAt,
	}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, Reaction{Emoji: r.Emoji, Users: r.Users()})
	}
	return out
}

// AttachmentsFromCore converts attachment references to their wire form.
func AttachmentsFromCore(in []core.Attachment) []Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, Attachment{URL: a.URL, Name: a.Name, Size: a.Size, MIME: a.MIME})
	}
	return out
}

// ToCore converts a wire conversation into the client model.
func (c *Conversation) ToCore() *core.Conversation {
	out := &core.Conversation{
		ID:           c.ID,
		Kind:         core.ConversationKind(c.Type),
		Name:         c.Name,
		Description:  c.Description,
		Unread:       c.Unread,
		LastActivity: c.LastActivity,
	}
	if out.Kind == "" {
		out.Kind = core.KindDirect
	}
	for _, m := range c.Members {
		out.Members = append(out.Members, core.Member{ID: m.ID, Name: m.Username})
	}
	if c.LastMessage != nil {
		last := c.LastMessage.ToCore()
		out.LastMessage = &core.Summary{
			MessageID:  last.ID,
			SenderID:   last.SenderID,
			SenderName: last.SenderName,
			Type:       last.Type,
			Text:       last.Text,
			CreatedAt:  last.CreatedAt,
		}
		if out.LastActivity.Before(last.CreatedAt) {
			out.LastActivity = last.CreatedAt
		}
	}
	return out
}

// ConversationFromCore converts a client conversation to its wire form.
func ConversationFromCore(c *core.Conversation) Conversation {
	out := Conversation{
		ID:           c.ID,
		Type:         string(c.Kind),
		Name:         c.Name,
		Description:  c.Description,
		Unread:       c.Unread,
		LastActivity: c.LastActivity,
	}
	for _, m := range c.Members {
		out.Members = append(out.Members, Member{ID: m.ID, Username: m.Name})
	}
	if c.LastMessage != nil {
		out.LastMessage = &Message{
			ID:             c.LastMessage.MessageID,
			ConversationID: c.ID,
			SenderID:       c.LastMessage.SenderID,
			SenderName:     c.LastMessage.SenderName,
			Type:           string(c.LastMessage.Type),
			Text:           c.LastMessage.Text,
			CreatedAt:      c.LastMessage.CreatedAt,
		}
	}
	return out
}
