package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

func init() {
	createCmd.Flags().String("name", "", "group name")
	createCmd.Flags().String("description", "", "group description")
	conversationsCmd.Flags().Bool("all", false, "include archived conversations")

	rootCmd.AddCommand(conversationsCmd, createCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recent first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		all, _ := cmd.Flags().GetBool("all")

		a, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := a.Connect(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		for _, conv := range client.Syncer.Conversations() {
			if conv.Archived && !all {
				continue
			}
			printConversation(out, conv, client.Self.ID)
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create <user-id>...",
	Short: "Start a direct conversation, or a group when --name is set",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")

		req := core.CreateConversationRequest{Kind: core.KindDirect, MemberIDs: args}
		if name != "" {
			req.Kind = core.KindGroup
			req.Name = name
			req.Description = description
		}

		a, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := a.Connect(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		conv, err := client.Syncer.CreateConversation(cmd.Context(), req)
		if err != nil {
			return err
		}
		printConversation(cmd.OutOrStdout(), conv, client.Self.ID)
		return nil
	},
}

func printConversation(w io.Writer, conv *core.Conversation, selfID string) {
	var flags []string
	if conv.Pinned {
		flags = append(flags, "pinned")
	}
	if conv.Muted {
		flags = append(flags, "muted")
	}
	if conv.Archived {
		flags = append(flags, "archived")
	}
	if conv.Unread > 0 {
		flags = append(flags, fmt.Sprintf("%d unread", conv.Unread))
	}

	line := fmt.Sprintf("%s  %s", conv.ID, title(conv, selfID))
	if len(flags) > 0 {
		line += " [" + strings.Join(flags, ", ") + "]"
	}
	if last := conv.LastMessage; last != nil {
		line += "  " + summaryText(last)
	}
	fmt.Fprintln(w, line)
}

// title names a conversation the way the user sees it.
func title(conv *core.Conversation, selfID string) string {
	if conv.Kind == core.KindGroup || conv.Name != "" {
		return conv.Name
	}
	for _, m := range conv.Members {
		if m.ID != selfID {
			return m.Name
		}
	}
	return conv.ID
}

func summaryText(s *core.Summary) string {
	switch {
	case s.Text != "":
		return s.Text
	case s.Type == core.MessageTypeImage:
		return "[image]"
	case s.Type == core.MessageTypeVoice:
		return "[voice message]"
	default:
		return "[attachment]"
	}
}
