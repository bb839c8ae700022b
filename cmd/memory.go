package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/threadkeep-ai/threadkeep/internal/memory"
)

func newMemoryCmd() *cobra.Command {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage the cross-session memory archive",
	}

	openStore := func() (memory.Store, func(), error) {
		a, err := newApp()
		if err != nil {
			return nil, nil, err
		}
		store, err := a.openArchive()
		if err != nil {
			a.Close()
			return nil, nil, err
		}
		return store, func() { store.Close(); a.Close() }, nil
	}

	var addTags []string
	addCmd := &cobra.Command{
		Use:   "add <content>...",
		Short: "Record a manual note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()

			n, err := store.Add(strings.Join(args, " "), addTags, "manual", "")
			if err != nil {
				return err
			}
			if n != nil {
				fmt.Printf("Added %s\n", n.ID)
			}
			return nil
		},
	}
	addCmd.Flags().StringSliceVar(&addTags, "tag", nil, "tags for the note")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Keyword-search the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()

			notes, err := store.Search(args[0], 20)
			if err != nil {
				return err
			}
			printNotes(notes)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()

			notes, err := store.List(20)
			if err != nil {
				return err
			}
			printNotes(notes)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note by id (or id prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			return store.Delete(args[0])
		},
	}

	promptCmd := &cobra.Command{
		Use:   "prompt <query>",
		Short: "Render matching notes as a prompt-injection block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()

			notes, err := store.Search(args[0], 10)
			if err != nil {
				return err
			}
			block := memory.FormatForPrompt(notes, 2000)
			if block == "" {
				fmt.Println("(no matching notes)")
				return nil
			}
			fmt.Print(block)
			return nil
		},
	}

	memoryCmd.AddCommand(addCmd, searchCmd, listCmd, deleteCmd, promptCmd)
	return memoryCmd
}

func printNotes(notes []memory.Note) {
	if len(notes) == 0 {
		fmt.Println("No notes.")
		return
	}
	for _, n := range notes {
		line := n.Content
		if len(line) > 100 {
			line = line[:100] + "..."
		}
		tag := ""
		if len(n.Tags) > 0 {
			tag = " [" + strings.Join(n.Tags, ", ") + "]"
		}
		fmt.Printf("%s  %s%s\n", n.ID, line, tag)
	}
}
