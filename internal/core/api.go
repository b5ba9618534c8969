package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// API is the request/response backend the Syncer talks to.
type API interface {
	// FetchConversations lists the conversations of the session user.
	FetchConversations(ctx context.Context) ([]*Conversation, error)

	// FetchMessages returns the ordered history of a conversation.
	FetchMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// SendMessage stores a message and returns the durable record.
	SendMessage(ctx context.Context, req SendRequest) (*Message, error)

	// CreateConversation creates a direct or group conversation.
	CreateConversation(ctx context.Context, req CreateConversationRequest) (*Conversation, error)

	// DeleteMessage removes a durable message.
	DeleteMessage(ctx context.Context, messageID string) error

	// AddReaction reacts to a message as the session user.
	AddReaction(ctx context.Context, messageID, emoji string) error

	// RemoveReaction withdraws the session user's reaction.
	RemoveReaction(ctx context.Context, messageID, emoji string) error

	// MarkRead marks messages as seen by the session user.
	MarkRead(ctx context.Context, messageIDs []string) error
}

// Emitter publishes outbound events on the push channel.
type Emitter interface {
	Emit(ctx context.Context, cmd *Command) error
}

// Notifier surfaces in-app notifications for messages outside the open conversation.
type Notifier interface {
	NotifyMessage(conv *Conversation, msg *Message)
}

// Cache persists settled state between sessions.
type Cache interface {
	SaveMessages(ctx context.Context, conversationID string, msgs []*Message) error
	DeleteMessage(ctx context.Context, messageID string) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	SaveConversations(ctx context.Context, convs []*Conversation) error
	ListConversations(ctx context.Context) ([]*Conversation, error)
}

// SendRequest is the payload of API.SendMessage.
type SendRequest struct {
	ConversationID string
	Type           MessageType
	Text           string
	Attachments    []Attachment
	ReplyTo        string
}

// CreateConversationRequest is the payload of API.CreateConversation.
type CreateConversationRequest struct {
	Kind        ConversationKind `validate:"required,oneof=direct group"`
	Name        string           `validate:"required_if=Kind group,max=64"`
	Description string           `validate:"max=256"`
	MemberIDs   []string         `validate:"required,min=1,dive,required"`
}

// Draft is what the user composed.
type Draft struct {
	Type        MessageType
	Text        string       `validate:"required_without=Attachments,max=4096"`
	Attachments []Attachment `validate:"required_without=Text,dive"`
	ReplyTo     string
}

var validate = validator.New()

func (d *Draft) normalize() error {
	d.Text = strings.TrimSpace(d.Text)
	if len(d.Attachments) == 0 {
		d.Attachments = nil
	}
	if d.Type == "" {
		d.Type = MessageTypeText
		if d.Text == "" && len(d.Attachments) > 0 {
			d.Type = MessageTypeFile
		}
	}
	if err := validate.Struct(d); err != nil {
		if d.Text == "" && d.Attachments == nil {
			return coreError(ErrCodeBadRequest, "message is empty", ErrEmptyMessage)
		}
		return coreError(ErrCodeBadRequest, formatValidation(err), err)
	}
	return nil
}

func (r *CreateConversationRequest) validate(localUser string) error {
	members := make([]string, 0, len(r.MemberIDs))
	seen := make(map[string]struct{}, len(r.MemberIDs))
	for _, id := range r.MemberIDs {
		id = strings.TrimSpace(id)
		if id == "" || id == localUser {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	r.MemberIDs = members
	r.Name = strings.TrimSpace(r.Name)

	if err := validate.Struct(r); err != nil {
		return coreError(ErrCodeBadRequest, formatValidation(err), fmt.Errorf("%w: %w", ErrInvalidConversation, err))
	}
	if r.Kind == KindDirect && len(r.MemberIDs) != 1 {
		return coreError(ErrCodeBadRequest, "direct conversation needs exactly one peer", ErrInvalidConversation)
	}
	return nil
}

// formatValidation converts validator errors to human-readable messages.
func formatValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required", "required_if", "required_without":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have at least %s entries", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s long", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", field, fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, ", ")
}
