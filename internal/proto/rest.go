package proto

import "time"

// Member is a conversation participant.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Conversation is the REST form of a chat.
type Conversation struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Members      []Member  `json:"participants"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	Unread       int       `json:"unread_count"`
	LastActivity time.Time `json:"last_activity"`
}

// CreateConversationRequest is the body of POST /chats.
type CreateConversationRequest struct {
	Type         string   `json:"type"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Participants []string `json:"participants"`
}

// SendMessageRequest is the body of POST /messages/:chat_id.
type SendMessageRequest struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
}

// ReactionRequest is the body of POST /messages/:id/reactions.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// MarkReadRequest is the body of POST /messages/read.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// CredentialsRequest is the body of login and register.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	Token string `json:"token"`
}

// User is a public user profile.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online,omitempty"`
}

// FriendRequest is the body of POST /friends/requests.
type FriendRequest struct {
	UserID string `json:"user_id"`
}

// Friend is a friendship record as seen by the session user.
type Friend struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	FriendID       string    `json:"friend_id"`
	Status         string    `json:"status"`
	FriendUsername string    `json:"friend_username,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DirectCallRequest is the body of POST /calls/direct.
type DirectCallRequest struct {
	ToUserID string `json:"to_user_id"`
}

// Call is a call record.
type Call struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	InitiatorUserID string `json:"initiator_user_id"`
	Status          string `json:"status"`
}

// JoinInfo carries the media server url and join token of a call.
type JoinInfo struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
