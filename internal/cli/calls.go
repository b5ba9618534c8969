package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/calls"
)

func init() {
	callCmd.AddCommand(callJoinCmd, callEndCmd)
	rootCmd.AddCommand(callCmd)
}

// openTracker builds a call tracker for the session user.
func openTracker(cmd *cobra.Command) (*calls.Tracker, func(), error) {
	a, logger, err := openApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	me, err := a.Auth.Current()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return calls.New(a.API(), me.ID, logger), a.Close, nil
}

var callCmd = &cobra.Command{
	Use:   "call <user-id>",
	Short: "Ring a user and print the media room to join",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, done, err := openTracker(cmd)
		if err != nil {
			return err
		}
		defer done()

		call, err := tr.Start(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		join, err := tr.Join(cmd.Context(), call.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "call %s ringing\n", call.ID)
		printJoin(cmd.OutOrStdout(), join)
		return nil
	},
}

var callJoinCmd = &cobra.Command{
	Use:   "join <call-id>",
	Short: "Answer or rejoin a call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, done, err := openTracker(cmd)
		if err != nil {
			return err
		}
		defer done()

		tr.Adopt(args[0])
		join, err := tr.Join(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJoin(cmd.OutOrStdout(), join)
		return nil
	},
}

var callEndCmd = &cobra.Command{
	Use:   "end <call-id>",
	Short: "Hang up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, done, err := openTracker(cmd)
		if err != nil {
			return err
		}
		defer done()

		tr.Adopt(args[0])
		return tr.End(cmd.Context(), args[0])
	},
}

func printJoin(w io.Writer, join calls.Join) {
	fmt.Fprintf(w, "url:      %s\nroom:     %s\nidentity: %s\ntoken:    %s\n", join.URL, join.Room, join.Identity, join.Token)
}
