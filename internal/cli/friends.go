package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/service/friends"
)

func init() {
	friendsCmd.AddCommand(
		friendAction("request <user-id>", "Send a friend request", func(s *friends.Service, ctx context.Context, id string) error {
			_, err := s.SendRequest(ctx, id)
			return err
		}),
		friendAction("accept <user-id>", "Accept a pending request", (*friends.Service).AcceptRequest),
		friendAction("reject <user-id>", "Reject a pending request", (*friends.Service).RejectRequest),
		friendAction("block <user-id>", "Block a user", (*friends.Service).BlockUser),
		friendAction("unblock <user-id>", "Unblock a user", (*friends.Service).UnblockUser),
		friendsListCmd, friendsPendingCmd, searchCmd,
	)
	rootCmd.AddCommand(friendsCmd)
}

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Manage friends and find users",
}

// withFriends runs fn against a friends service for the session user.
func withFriends(cmd *cobra.Command, fn func(ctx context.Context, s *friends.Service) error) error {
	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	me, err := a.Auth.Current()
	if err != nil {
		return err
	}
	return fn(cmd.Context(), friends.New(a.API(), me.ID))
}

func friendAction(use, short string, fn func(*friends.Service, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFriends(cmd, func(ctx context.Context, s *friends.Service) error {
				if err := fn(s, ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
}

var friendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accepted friends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withFriends(cmd, func(ctx context.Context, s *friends.Service) error {
			list, err := s.ListFriends(ctx)
			if err != nil {
				return err
			}
			for _, f := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", s.Peer(f), f.FriendUsername)
			}
			return nil
		})
	},
}

var friendsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List incoming friend requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withFriends(cmd, func(ctx context.Context, s *friends.Service) error {
			list, err := s.ListPendingRequests(ctx)
			if err != nil {
				return err
			}
			for _, f := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  since %s\n", f.UserID, f.FriendUsername, f.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find users by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFriends(cmd, func(ctx context.Context, s *friends.Service) error {
			if _, err := s.ListFriends(ctx); err != nil {
				return err
			}
			users, err := s.Search(ctx, args[0])
			if err != nil {
				return err
			}
			for _, u := range users {
				status := "offline"
				if u.Online {
					status = "online"
				}
				if s.IsFriend(u.ID) {
					status += ", friend"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  (%s)\n", u.ID, u.Username, status)
			}
			return nil
		})
	},
}
