package core

// EventKind describes something that arrived from the push channel.
type EventKind int

const (
	// EventMessageReceived carries a new or updated durable message.
	EventMessageReceived EventKind = iota
	// EventMessageDeleted removes a message everywhere.
	EventMessageDeleted
	// EventTypingStarted marks a user as typing in a conversation.
	EventTypingStarted
	// EventTypingStopped clears a user's typing flag.
	EventTypingStopped
	// EventPresenceChanged reports a single user going online or offline.
	EventPresenceChanged
	// EventOnlineUsers replaces the whole online set.
	EventOnlineUsers
	// EventReactionChanged adds or removes one reactor.
	EventReactionChanged
	// EventConversationUpdated upserts a conversation created or edited elsewhere.
	EventConversationUpdated
	// EventCall carries call signalling; the Syncer ignores it and leaves it to
	// the calls tracker.
	EventCall

	// eventTypingExpired is raised internally when a remote typing flag times out.
	eventTypingExpired
)

var eventKindNames = map[EventKind]string{
	EventMessageReceived:     "message",
	EventMessageDeleted:      "message_deleted",
	EventTypingStarted:       "typing",
	EventTypingStopped:       "stop_typing",
	EventPresenceChanged:     "presence",
	EventOnlineUsers:         "online_users",
	EventReactionChanged:     "reaction",
	EventConversationUpdated: "conversation",
	EventCall:                "call",
	eventTypingExpired:       "typing_expired",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is delivered to the Syncer in receipt order.
type Event struct {
	Kind           EventKind
	ConversationID string
	UserID         string
	Message        *Message
	MessageID      string
	Emoji          string
	Add            bool
	Online         bool
	Users          []string
	Conversation   *Conversation
	Call           *CallEvent

	// typingGen pins an expiry to the typing-start that armed it.
	typingGen uint64
}

// CallEvent holds call signalling data pushed by the server.
type CallEvent struct {
	Action         string // incoming, accepted, rejected, join_info, ended
	CallID         string
	CallType       string // direct or room
	FromUserID     string
	FromUsername   string
	ConversationID string
	Reason         string
	JoinURL        string
	JoinToken      string
}
