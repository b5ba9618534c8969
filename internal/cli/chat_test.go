package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

func chatMessage(id, sender, text string, state core.DeliveryState) *core.Message {
	return &core.Message{
		ID:         id,
		SenderID:   sender,
		SenderName: sender,
		Text:       text,
		Type:       core.MessageTypeText,
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		State:      state,
	}
}

func TestChatViewShowsPendingThenSettled(t *testing.T) {
	var out bytes.Buffer
	v := &chatView{out: &out, self: "alice", printed: make(map[string]core.DeliveryState)}

	v.show([]*core.Message{chatMessage("tmp:1", "alice", "hi", core.StatePending)})
	if got := out.String(); !strings.HasPrefix(got, "… ") || !strings.Contains(got, "alice: hi") {
		t.Fatalf("pending line missing marker: %q", got)
	}

	out.Reset()
	v.show([]*core.Message{chatMessage("m1", "alice", "hi", core.StateSent)})
	if got := strings.TrimSpace(out.String()); got != `✓ "hi" sent as m1` {
		t.Fatalf("unexpected settle line %q", got)
	}

	out.Reset()
	v.show([]*core.Message{chatMessage("m1", "alice", "hi", core.StateDelivered)})
	if out.Len() != 0 {
		t.Fatalf("state upgrade should print nothing, got %q", out.String())
	}
}

func TestChatViewReportsFailure(t *testing.T) {
	var out bytes.Buffer
	v := &chatView{out: &out, self: "alice", printed: make(map[string]core.DeliveryState)}

	v.show([]*core.Message{chatMessage("tmp:1", "alice", "hi", core.StatePending)})
	out.Reset()
	v.show([]*core.Message{chatMessage("tmp:1", "alice", "hi", core.StateFailed)})
	if got := strings.TrimSpace(out.String()); got != "! hi failed, /resend tmp:1" {
		t.Fatalf("unexpected failure line %q", got)
	}

	// A message from another device is printed in full, not as a confirmation.
	out.Reset()
	v.show([]*core.Message{
		chatMessage("tmp:1", "alice", "hi", core.StateFailed),
		chatMessage("phone-1", "alice", "hi", core.StateSent),
	})
	if got := out.String(); strings.Contains(got, "✓") || !strings.Contains(got, "alice: hi") {
		t.Fatalf("unexpected output %q", got)
	}
}
