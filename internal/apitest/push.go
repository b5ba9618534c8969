package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

const pushBuffer = 64

// pushConn is one authenticated socket.
type pushConn struct {
	userID string
	send   chan proto.Outbound
}

// servePush upgrades GET /ws. The token comes from the Authorization header
// or, failing that, from the first hello frame.
func (b *Backend) servePush(c *gin.Context) {
	claims, _ := bearerClaims(c, b.jwt)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		b.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if claims == nil {
		claims, err = b.helloClaims(ctx, conn)
		if err != nil {
			_ = wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "unauthorized", Msg: err.Error()},
			})
			conn.Close(websocket.StatusPolicyViolation, "unauthorized")
			return
		}
	}

	pc := &pushConn{userID: claims.UserID, send: make(chan proto.Outbound, pushBuffer)}
	b.attach(pc)
	defer b.detach(pc)

	errCh := make(chan error, 2)
	go func() {
		errCh <- b.readLoop(ctx, conn, pc)
	}()
	go func() {
		errCh <- b.writeLoop(ctx, conn, pc)
	}()

	err = <-errCh
	cancel()
	<-errCh

	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
		b.log.Debug().Err(err).Str("user_id", pc.userID).Msg("push connection closed")
	}
	conn.Close(websocket.StatusNormalClosure, "closing")
}

func (b *Backend) helloClaims(ctx context.Context, conn *websocket.Conn) (*auth.Claims, error) {
	var in proto.Inbound
	if err := wsjson.Read(ctx, conn, &in); err != nil {
		return nil, err
	}
	if in.Type != proto.InboundTypeHello {
		return nil, fmt.Errorf("expected hello, got %q", in.Type)
	}
	var hello proto.HelloData
	if err := json.Unmarshal(in.Data, &hello); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	return auth.ValidateToken(b.jwt, hello.Token)
}

func (b *Backend) readLoop(ctx context.Context, conn *websocket.Conn, pc *pushConn) error {
	for {
		var in proto.Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return err
		}

		switch in.Type {
		case proto.InboundTypeTyping, proto.InboundTypeStopTyping:
			var data proto.ConversationData
			if err := json.Unmarshal(in.Data, &data); err != nil {
				continue
			}
			b.relayTyping(pc.userID, data.ConversationID, in.Type)
		case proto.InboundTypeHello, proto.InboundTypeJoin, proto.InboundTypeLeave, proto.InboundTypeSendMessage:
			// Messages arrive over REST; the rest only affect server-side presence.
		default:
			pc.deliver(proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "unknown_type", Msg: in.Type},
			})
		}
	}
}

func (b *Backend) writeLoop(ctx context.Context, conn *websocket.Conn, pc *pushConn) error {
	for {
		select {
		case out := <-pc.send:
			if err := wsjson.Write(ctx, conn, out); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Backend) relayTyping(userID, chatID, kind string) {
	event := proto.EventTyping
	if kind == proto.InboundTypeStopTyping {
		event = proto.EventStopTyping
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.chats[chatID]
	if !ok {
		return
	}
	if _, member := ch.members[userID]; !member {
		return
	}
	b.pushLocked(ch.others(userID), event, proto.EventTypingData{ConversationID: chatID, UserID: userID})
}

func (b *Backend) attach(pc *pushConn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	online := b.onlineLocked()
	_, already := online[pc.userID]
	b.conns[pc] = struct{}{}
	online[pc.userID] = struct{}{}

	users := make([]string, 0, len(online))
	for id := range online {
		users = append(users, id)
	}
	sort.Strings(users)
	if raw, err := json.Marshal(proto.EventOnlineUsersData{Users: users}); err == nil {
		pc.deliver(proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventOnlineUsers, Data: raw})
	}
	if !already {
		b.pushLocked(without(users, pc.userID), proto.EventUserOnline, proto.EventPresenceData{UserID: pc.userID})
	}
}

func (b *Backend) detach(pc *pushConn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.conns, pc)
	online := b.onlineLocked()
	if _, still := online[pc.userID]; still {
		return
	}
	users := make([]string, 0, len(online))
	for id := range online {
		users = append(users, id)
	}
	b.pushLocked(users, proto.EventUserOffline, proto.EventPresenceData{UserID: pc.userID})
}

func (b *Backend) onlineLocked() map[string]struct{} {
	out := make(map[string]struct{}, len(b.conns))
	for pc := range b.conns {
		out[pc.userID] = struct{}{}
	}
	return out
}

// pushLocked sends an event to every socket of the given users. Called with mu held.
func (b *Backend) pushLocked(userIDs []string, event string, data any) {
	if len(userIDs) == 0 {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("marshal push event")
		return
	}
	targets := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		targets[id] = struct{}{}
	}
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event, Data: raw}
	for pc := range b.conns {
		if _, ok := targets[pc.userID]; ok {
			pc.deliver(out)
		}
	}
}

// Push sends an arbitrary event to one user.
func (b *Backend) Push(userID, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushLocked([]string{userID}, event, data)
}

// Connected reports whether userID has at least one open socket.
func (b *Backend) Connected(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.onlineLocked()[userID]
	return ok
}

func (pc *pushConn) deliver(out proto.Outbound) {
	select {
	case pc.send <- out:
	default:
		// slow consumer; drop
	}
}

func without(ids []string, skip string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
