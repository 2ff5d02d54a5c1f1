package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"intake-chat/internal/chat"
)

func newNotesCmd(a *app) *cobra.Command {
	notes := &cobra.Command{
		Use:   "notes",
		Short: "Edit and export the facilitators' workshop notes",
	}

	keys := make([]string, len(chat.NoteFields))
	for i, f := range chat.NoteFields {
		keys[i] = f.Key
	}

	set := &cobra.Command{
		Use:       "set <field> <text...>",
		Short:     "Replace one notes field (" + strings.Join(keys, ", ") + ")",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.controller().SetNote(args[0], strings.Join(args[1:], " "))
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the notes as Markdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprint(cmd.OutOrStdout(), a.controller().ExportNotes())
			return nil
		},
	}

	var out string
	var toClipboard bool
	export := &cobra.Command{
		Use:   "export",
		Short: "Export the notes as Markdown to a file, the clipboard or stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			md := a.controller().ExportNotes()
			if out == "" && !toClipboard {
				fmt.Fprint(cmd.OutOrStdout(), md)
				return nil
			}
			if out != "" {
				if err := os.WriteFile(out, []byte(md), 0600); err != nil {
					return fmt.Errorf("failed to write notes: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Notizen gespeichert: %s\n", out)
			}
			if toClipboard {
				if clipboard.Unsupported {
					return fmt.Errorf("clipboard is not available on this system")
				}
				if err := clipboard.WriteAll(md); err != nil {
					return fmt.Errorf("failed to copy notes: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Notizen in die Zwischenablage kopiert.")
			}
			return nil
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "Write the Markdown to this file")
	export.Flags().BoolVar(&toClipboard, "clipboard", false, "Copy the Markdown to the clipboard")

	notes.AddCommand(set, show, export)
	return notes
}
