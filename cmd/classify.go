package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/threadkeep-ai/threadkeep/internal/confirm"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>...",
		Short: "Show which gated operation, if any, a prompt would trigger",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			text := strings.Join(args, " ")
			if op, ok := confirm.RequiresConfirmation(text); ok {
				fmt.Printf("%s\n", op)
			} else {
				fmt.Println("none")
			}
		},
	}
}
