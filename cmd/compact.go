package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threadkeep-ai/threadkeep/internal/compact"
)

func newCompactCmd() *cobra.Command {
	var instructions string

	compactCmd := &cobra.Command{
		Use:   "compact <session-id>",
		Short: "Summarize a session's history into a short synopsis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			engine, archive, err := a.buildEngine()
			if err != nil {
				return err
			}
			defer archive.Close()

			res := engine.Compact(context.Background(), args[0], compact.TriggerManual, instructions)
			if !res.Success {
				return fmt.Errorf("%s", res.Summary)
			}
			fmt.Printf("Compacted: ~%d → ~%d tokens.\nSummary:\n%s\n",
				res.PreviousTokens, res.NewTokens, res.Summary)
			return nil
		},
	}
	compactCmd.Flags().StringVar(&instructions, "instructions", "", "override the summarization instructions")
	return compactCmd
}
