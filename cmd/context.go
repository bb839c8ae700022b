package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threadkeep-ai/threadkeep/internal/chat"
)

// newContextCmd groups the per-user rolling context operations.
func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Inspect and manage per-user rolling context",
	}

	var maxCount int
	showCmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the budgeted recent-context transcript for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			transcript := a.contexts.RecentContext(args[0], maxCount)
			if transcript == "" {
				fmt.Println("(no context)")
				return nil
			}
			fmt.Println(transcript)
			return nil
		},
	}
	showCmd.Flags().IntVar(&maxCount, "max", 50, "maximum messages to include")

	listCmd := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List the raw rolling context entries for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			msgs := a.contexts.Load(args[0])
			if len(msgs) == 0 {
				fmt.Println("(no context)")
				return nil
			}
			for _, m := range msgs {
				fmt.Printf("%s  %-9s  %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
			}
			fmt.Printf("\n%d messages, ~%d tokens\n", len(msgs), chat.EstimateTokens(msgs))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <user-id>",
		Short: "Drop a user's rolling context and session pointer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.contexts.ClearAll(args[0]); err != nil {
				return err
			}
			fmt.Printf("Cleared context for %s\n", args[0])
			return nil
		},
	}

	sessionCmd := &cobra.Command{
		Use:   "session <user-id>",
		Short: "Show the user's last active session id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id := a.contexts.UserLastSessionID(args[0])
			if id == "" {
				fmt.Println("(none)")
				return nil
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.AddCommand(showCmd, listCmd, clearCmd, sessionCmd)
	return cmd
}
