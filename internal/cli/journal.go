package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"chat-widget/internal/journal"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
)

func newJournalCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal [query]",
		Short: "List recorded exchanges, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.JournalPath == "" {
				return errors.New("no journal configured (use --journal or CHATWIDGET_JOURNAL)")
			}
			j, err := journal.Open(a.cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.List(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of exchanges to list")
	return cmd
}

func printEntries(w io.Writer, entries []journal.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No exchanges recorded.")
		return err
	}
	for _, e := range entries {
		status := "ok"
		if e.Failed() {
			status = e.ErrorKind
		}
		_, err := fmt.Fprintf(w, "%s  %s #%d  [%s %dms]\n  you: %s\n  ai:  %s\n",
			journal.FormatUnix(e.StartedAt),
			shortID(e.SessionID),
			e.Seq,
			status,
			e.DurationMS,
			oneLine(e.Prompt, 100),
			oneLine(e.Reply, 100),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func oneLine(s string, n int) string {
	return ansi.Truncate(strings.Join(strings.Fields(s), " "), n, "...")
}
