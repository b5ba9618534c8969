package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// FetchConversations lists the session user's chats.
// GET /chats
func (c *Client) FetchConversations(ctx context.Context) ([]*core.Conversation, error) {
	var resp []proto.Conversation
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]*core.Conversation, 0, len(resp))
	for i := range resp {
		out = append(out, resp[i].ToCore())
	}
	return out, nil
}

// FetchMessages returns a chat's history.
// GET /messages/:chat_id
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]*core.Message, error) {
	var resp []proto.Message
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(conversationID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]*core.Message, 0, len(resp))
	for i := range resp {
		m := resp[i].ToCore()
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		out = append(out, m)
	}
	return out, nil
}

// SendMessage stores a message.
// POST /messages/:chat_id
func (c *Client) SendMessage(ctx context.Context, req core.SendRequest) (*core.Message, error) {
	body := proto.SendMessageRequest{
		Type:        string(req.Type),
		Text:        req.Text,
		Attachments: proto.AttachmentsFromCore(req.Attachments),
		ReplyTo:     req.ReplyTo,
	}
	var resp proto.Message
	if err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(req.ConversationID), body, &resp); err != nil {
		return nil, err
	}
	m := resp.ToCore()
	if m.ConversationID == "" {
		m.ConversationID = req.ConversationID
	}
	return m, nil
}

// CreateConversation creates a direct or group chat.
// POST /chats
func (c *Client) CreateConversation(ctx context.Context, req core.CreateConversationRequest) (*core.Conversation, error) {
	body := proto.CreateConversationRequest{
		Type:         string(req.Kind),
		Name:         req.Name,
		Description:  req.Description,
		Participants: req.MemberIDs,
	}
	var resp proto.Conversation
	if err := c.do(ctx, http.MethodPost, "/chats", body, &resp); err != nil {
		return nil, err
	}
	return resp.ToCore(), nil
}

// DeleteMessage removes a message.
// DELETE /messages/:id
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

// AddReaction reacts to a message.
// POST /messages/:id/reactions
func (c *Client) AddReaction(ctx context.Context, messageID, emoji string) error {
	return c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions", proto.ReactionRequest{Emoji: emoji}, nil)
}

// RemoveReaction withdraws a reaction.
// DELETE /messages/:id/reactions/:emoji
func (c *Client) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID)+"/reactions/"+url.PathEscape(emoji), nil, nil)
}

// MarkRead marks messages as seen.
// POST /messages/read
func (c *Client) MarkRead(ctx context.Context, messageIDs []string) error {
	return c.do(ctx, http.MethodPost, "/messages/read", proto.MarkReadRequest{MessageIDs: messageIDs}, nil)
}

var _ core.API = (*Client)(nil)
