package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/calls"
	"github.com/vovakirdan/wirechat-client/internal/core"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

const chatHelp = `Type a message and press Enter to send. Commands:
  /resend <id>          retry a failed message
  /delete <id>          delete your message
  /react <id> <emoji>   toggle a reaction
  /answer <call-id>     join a call
  /hangup <call-id>     end a call
  /pin /unpin /mute /unmute /archive /unarchive
  /quit`

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Open a conversation and follow it live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, logger, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		client, err := a.Connect(ctx)
		if err != nil {
			return err
		}
		conversationID := args[0]
		conv, ok := client.Syncer.Conversation(conversationID)
		if !ok {
			client.Close()
			return fmt.Errorf("%w: conversation %s", core.ErrNotFound, conversationID)
		}

		runErr := make(chan error, 1)
		go func() { runErr <- client.Run(ctx) }()

		if err := client.Open(ctx, conversationID); err != nil {
			cancel()
			<-runErr
			return err
		}

		v := &chatView{
			out:     cmd.OutOrStdout(),
			client:  client,
			self:    client.Self.ID,
			convID:  conversationID,
			printed: make(map[string]core.DeliveryState),
		}
		v.printf("%s\n%s\n", title(conv, client.Self.ID), chatHelp)
		v.render()

		go v.follow(ctx)

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-client.Done():
				break loop
			case line, ok := <-lines:
				if !ok {
					break loop
				}
				if quit := v.handle(ctx, strings.TrimSpace(line)); quit {
					break loop
				}
			}
		}

		client.Syncer.Close()
		cancel()
		if err := <-runErr; err != nil {
			logger.Warn().Err(err).Msg("push channel closed with error")
		}
		return nil
	},
}

type chatView struct {
	mu      sync.Mutex
	out     io.Writer
	client  *app.Client
	self    string
	convID  string
	printed map[string]core.DeliveryState
	// pending lists printed optimistic entries in print order.
	pending []string
	typing  string
}

func (v *chatView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

// follow prints changes until the session ends.
func (v *chatView) follow(ctx context.Context) {
	c := v.client
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case u := <-c.Syncer.Updates():
			if u.ConversationID != v.convID {
				continue
			}
			switch u.Kind {
			case core.UpdateMessages:
				v.render()
			case core.UpdateConversations:
				v.renderTyping()
			}
		case n := <-c.Notify.Raised():
			v.printf("* %s in %s: %s\n", n.SenderName, n.ConversationName, n.Preview)
		case call := <-c.Calls.Changes():
			direction := "outgoing"
			if call.Incoming {
				direction = "incoming"
			}
			v.printf("* %s call %s with %s: %s\n", direction, call.ID, call.PeerName, call.State)
		}
	}
}

// render prints messages that are new or whose state changed.
func (v *chatView) render() {
	v.show(v.client.Syncer.Messages(v.convID))
}

func (v *chatView) show(msgs []*core.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	present := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		present[m.ID] = true
	}
	// Pending entries that left the thread were confirmed under a durable id.
	var settled, still []string
	for _, id := range v.pending {
		switch {
		case present[id]:
			still = append(still, id)
		case v.printed[id] == core.StatePending:
			settled = append(settled, id)
		}
		if !present[id] {
			delete(v.printed, id)
		}
	}
	v.pending = still

	for _, m := range msgs {
		prev, seen := v.printed[m.ID]
		switch {
		case !seen && m.State == core.StatePending:
			fmt.Fprintln(v.out, formatMessage(m))
			v.pending = append(v.pending, m.ID)
		case !seen && m.SenderID == v.self && !m.Provisional() && len(settled) > 0:
			fmt.Fprintf(v.out, "✓ %q sent as %s\n", m.Text, m.ID)
			settled = settled[1:]
		case !seen:
			fmt.Fprintln(v.out, formatMessage(m))
		case prev != m.State && m.State == core.StateFailed:
			fmt.Fprintf(v.out, "! %s failed, /resend %s\n", m.Text, m.ID)
		}
		v.printed[m.ID] = m.State
	}
}

func (v *chatView) renderTyping() {
	conv, ok := v.client.Syncer.Conversation(v.convID)
	if !ok {
		return
	}
	var names []string
	for _, id := range conv.TypingUsers {
		name := id
		for _, m := range conv.Members {
			if m.ID == id {
				name = m.Name
			}
		}
		names = append(names, name)
	}
	status := strings.Join(names, ", ")

	v.mu.Lock()
	defer v.mu.Unlock()
	if status == v.typing {
		return
	}
	v.typing = status
	if status != "" {
		fmt.Fprintf(v.out, "... %s typing\n", status)
	}
}

func formatMessage(m *core.Message) string {
	text := m.Text
	if text == "" && len(m.Attachments) > 0 {
		text = "[" + m.Attachments[0].Name + "]"
	}
	line := fmt.Sprintf("%s %s: %s", m.CreatedAt.Local().Format("15:04"), m.SenderName, text)
	if m.State == core.StatePending {
		line = "… " + line
	}
	if m.State == core.StateFailed {
		line += fmt.Sprintf("  (failed, /resend %s)", m.ID)
	}
	for _, r := range m.Reactions {
		line += fmt.Sprintf(" %s%d", r.Emoji, r.Count())
	}
	return line
}

// handle runs one input line and reports whether the session should end.
func (v *chatView) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	s := v.client.Syncer

	if !strings.HasPrefix(line, "/") {
		if _, err := s.Send(ctx, v.convID, core.Draft{Text: line}); err != nil {
			v.printf("! %v\n", err)
		}
		return false
	}

	fields := strings.Fields(line)
	var err error
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		v.printf("%s\n", chatHelp)
	case "/resend":
		if len(fields) != 2 {
			v.printf("usage: /resend <id>\n")
			return false
		}
		_, err = s.Resend(ctx, v.convID, fields[1])
	case "/delete":
		if len(fields) != 2 {
			v.printf("usage: /delete <id>\n")
			return false
		}
		err = s.Delete(ctx, v.convID, fields[1])
	case "/react":
		if len(fields) != 3 {
			v.printf("usage: /react <id> <emoji>\n")
			return false
		}
		err = s.ToggleReaction(ctx, v.convID, fields[1], fields[2])
	case "/answer":
		if len(fields) != 2 {
			v.printf("usage: /answer <call-id>\n")
			return false
		}
		v.client.Calls.Adopt(fields[1])
		var join calls.Join
		if join, err = v.client.Calls.Join(ctx, fields[1]); err == nil {
			v.printf("* media room %s at %s as %s\n", join.Room, join.URL, join.Identity)
		}
	case "/hangup":
		if len(fields) != 2 {
			v.printf("usage: /hangup <call-id>\n")
			return false
		}
		v.client.Calls.Adopt(fields[1])
		err = v.client.Calls.End(ctx, fields[1])
	case "/pin", "/unpin":
		err = s.SetPinned(v.convID, fields[0] == "/pin")
	case "/mute", "/unmute":
		err = s.SetMuted(v.convID, fields[0] == "/mute")
	case "/archive", "/unarchive":
		err = s.SetArchived(v.convID, fields[0] == "/archive")
	default:
		v.printf("unknown command %s\n", fields[0])
	}
	if err != nil {
		v.printf("! %v\n", err)
	}
	return false
}
