package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/threadkeep-ai/threadkeep/internal/session"
)

func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage persisted sessions",
	}

	var (
		listUser   string
		listSort   string
		listOffset int
		listLimit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			metas := a.sessions.List(session.ListFilter{
				UserID: listUser,
				SortBy: session.SortField(listSort),
				Offset: listOffset,
				Limit:  listLimit,
			})
			if len(metas) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, m := range metas {
				fmt.Printf("%s  %4d msgs  %s  user=%s\n",
					m.SessionID, m.MessageCount,
					m.LastMessageAt.Format(time.DateTime), m.UserID)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&listUser, "user", "", "filter by user id")
	listCmd.Flags().StringVar(&listSort, "sort", "", "sort field: lastMessageAt|createdAt|messageCount")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "pagination offset")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "pagination limit (0 = all)")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session's metadata, summary, and messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rec := a.sessions.Get(args[0])
			if rec == nil {
				return fmt.Errorf("session %s not found", args[0])
			}
			m := rec.Metadata
			fmt.Printf("%s  user=%s  model=%s  %d messages  ~%d tokens  $%.4f\n",
				m.SessionID, m.UserID, m.Model, m.MessageCount, rec.EstimateTokens(), m.CostUSD)
			if rec.Summary != "" {
				fmt.Printf("\nSummary:\n%s\n", rec.Summary)
			}
			for _, msg := range rec.Messages {
				fmt.Printf("\n[%s] %s\n", msg.Role, msg.Content)
				for _, tc := range msg.ToolCalls {
					fmt.Printf("  tool %s: %s\n", tc.Tool, tc.Result)
				}
			}
			return nil
		},
	}

	forkCmd := &cobra.Command{
		Use:   "fork <session-id>",
		Short: "Fork a session into an independent copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			meta, err := a.sessions.Fork(args[0], session.CreateOptions{})
			if err != nil {
				return err
			}
			fmt.Printf("Forked %s → %s (%d messages)\n", args[0], meta.SessionID, meta.MessageCount)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Empty a session's message log and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions.Clear(args[0]); err != nil {
				return err
			}
			fmt.Printf("Cleared %s\n", args[0])
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session file and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	rebuildCmd := &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the session index from a full directory scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions.RebuildIndex(); err != nil {
				return err
			}
			fmt.Println("Index rebuilt.")
			return nil
		},
	}

	sessionsCmd.AddCommand(listCmd, showCmd, forkCmd, clearCmd, deleteCmd, rebuildCmd)
	return sessionsCmd
}
