// Package calls tracks call signalling for the session user and fetches media
// join credentials.
package calls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	lkauth "github.com/livekit/protocol/auth"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Common errors for call operations.
var (
	ErrCallNotFound   = errors.New("call not found")
	ErrCallEnded      = errors.New("call has ended")
	ErrCannotCallSelf = errors.New("cannot call yourself")
	ErrBadJoinToken   = errors.New("join token is not a media token")
)

// State is where a call is in its lifecycle.
type State string

const (
	StateRinging State = "ringing"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

// Join holds what a media client needs to enter the call room.
type Join struct {
	URL      string
	Token    string
	Room     string
	Identity string
	APIKey   string
}

// Call is the client view of one call.
type Call struct {
	ID             string
	Type           string
	PeerID         string
	PeerName       string
	ConversationID string
	Incoming       bool
	State          State
	Reason         string
	Join           *Join
	UpdatedAt      time.Time
}

// API is the part of the REST API that manages calls.
type API interface {
	StartDirectCall(ctx context.Context, toUserID string) (*proto.Call, error)
	JoinCall(ctx context.Context, callID string) (*proto.JoinInfo, error)
	EndCall(ctx context.Context, callID string) error
}

// Tracker implements core.CallObserver.
type Tracker struct {
	api    API
	selfID string
	log    *zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	calls   map[string]*Call
	changes chan Call
}

// New creates a tracker. api may be nil; Start, Join and End then fail.
func New(api API, selfID string, logger *zerolog.Logger) *Tracker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "calls").Logger()
	return &Tracker{
		api:     api,
		selfID:  selfID,
		log:     &l,
		now:     time.Now,
		calls:   make(map[string]*Call),
		changes: make(chan Call, 16),
	}
}

// Changes delivers a copy of every call after it changes. Slow readers miss changes.
func (t *Tracker) Changes() <-chan Call {
	return t.changes
}

// HandleCall applies pushed signalling.
func (t *Tracker) HandleCall(ev *core.CallEvent) {
	if ev == nil || ev.CallID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c, known := t.calls[ev.CallID]
	if !known {
		c = &Call{ID: ev.CallID, Type: ev.CallType, State: StateRinging}
		t.calls[ev.CallID] = c
	}

	switch ev.Action {
	case "incoming":
		c.Incoming = true
		c.PeerID = ev.FromUserID
		c.PeerName = ev.FromUsername
		c.ConversationID = ev.ConversationID
		if c.Type == "" {
			c.Type = ev.CallType
		}
	case "accepted":
		if c.State != StateEnded {
			c.State = StateActive
		}
	case "rejected", "ended":
		c.State = StateEnded
		c.Reason = ev.Reason
		if c.Reason == "" {
			c.Reason = ev.Action
		}
	case "join_info":
		join, err := inspect(ev.JoinURL, ev.JoinToken)
		if err != nil {
			t.log.Warn().Err(err).Str("call_id", ev.CallID).Msg("ignoring join info")
			return
		}
		c.Join = join
	default:
		t.log.Debug().Str("action", ev.Action).Msg("unknown call action")
		return
	}
	t.changedLocked(c)
}

// Start rings toUserID.
func (t *Tracker) Start(ctx context.Context, toUserID string) (Call, error) {
	if toUserID == t.selfID {
		return Call{}, ErrCannotCallSelf
	}
	if t.api == nil {
		return Call{}, errors.New("calls are not available")
	}
	rec, err := t.api.StartDirectCall(ctx, toUserID)
	if err != nil {
		return Call{}, fmt.Errorf("start call: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Call{ID: rec.ID, Type: rec.Type, PeerID: toUserID, State: StateRinging}
	t.calls[rec.ID] = c
	t.changedLocked(c)
	return *c, nil
}

// Adopt tracks a call learned about outside the push channel, e.g. in an
// earlier session. Known calls are left alone.
func (t *Tracker) Adopt(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.calls[callID]; ok {
		return
	}
	t.calls[callID] = &Call{ID: callID, State: StateRinging, UpdatedAt: t.now()}
}

// Join fetches media credentials and marks the call active.
func (t *Tracker) Join(ctx context.Context, callID string) (Join, error) {
	if err := t.usable(callID); err != nil {
		return Join{}, err
	}
	info, err := t.api.JoinCall(ctx, callID)
	if err != nil {
		return Join{}, fmt.Errorf("join call: %w", err)
	}
	join, err := inspect(info.URL, info.Token)
	if err != nil {
		return Join{}, err
	}
	if join.Room == "" {
		join.Room = info.RoomName
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.calls[callID]
	c.Join = join
	c.State = StateActive
	t.changedLocked(c)
	return *join, nil
}

// End hangs up.
func (t *Tracker) End(ctx context.Context, callID string) error {
	if err := t.usable(callID); err != nil {
		return err
	}
	if err := t.api.EndCall(ctx, callID); err != nil {
		return fmt.Errorf("end call: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.calls[callID]
	c.State = StateEnded
	c.Reason = "hangup"
	t.changedLocked(c)
	return nil
}

// Get returns a copy of one call.
func (t *Tracker) Get(callID string) (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[callID]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

// Active lists calls that have not ended, most recently updated first.
func (t *Tracker) Active() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, 0, len(t.calls))
	for _, c := range t.calls {
		if c.State != StateEnded {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (t *Tracker) usable(callID string) error {
	if t.api == nil {
		return errors.New("calls are not available")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[callID]
	if !ok {
		return ErrCallNotFound
	}
	if c.State == StateEnded {
		return ErrCallEnded
	}
	return nil
}

func (t *Tracker) changedLocked(c *Call) {
	c.UpdatedAt = t.now()
	select {
	case t.changes <- *c:
	default:
	}
}

// inspect reads the identity and key out of a media join token. The
// signature is checked by the media server, not here.
func inspect(url, token string) (*Join, error) {
	if token == "" {
		return nil, ErrBadJoinToken
	}
	v, err := lkauth.ParseAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadJoinToken, err)
	}
	return &Join{
		URL:      url,
		Token:    token,
		Identity: v.Identity(),
		APIKey:   v.APIKey(),
	}, nil
}

var _ core.CallObserver = (*Tracker)(nil)
