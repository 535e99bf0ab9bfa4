package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/formnav/pkg/formnav/journal"
	"github.com/randalmurphal/formnav/pkg/formnav/sequence"
)

func newReplayCmd(a *app) *cobra.Command {
	var (
		raw    bool
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "replay FORM_ID",
		Short: "Print a form's journaled events in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no journaled events for form %s", args[0])
			}

			out := cmd.OutOrStdout()
			if raw {
				for _, e := range entries {
					fmt.Fprintln(out, string(e.Envelope))
				}
			} else {
				printEntries(out, entries)
			}

			if verify {
				return verifyEntries(out, entries)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print stored envelopes, one per line")
	cmd.Flags().BoolVar(&verify, "verify", false, "re-check ordering of the journaled events")
	return cmd
}

func printEntries(out io.Writer, entries []journal.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tEVENT\tCAUSE")
	for _, e := range entries {
		cause := e.CausationID
		if cause == "" {
			cause = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.Seq, e.Timestamp.Format(time.RFC3339), e.Type, e.EventID, cause)
	}
	_ = w.Flush()
}

// verifyEntries replays entries through a fresh ordering checker.
func verifyEntries(out io.Writer, entries []journal.Entry) error {
	checker := sequence.NewChecker()
	violations := 0
	for _, e := range entries {
		evt, err := e.Event()
		if err == nil {
			err = checker.Observe(evt)
		}
		if err != nil {
			violations++
			fmt.Fprintf(out, "seq %d: %v\n", e.Seq, err)
		}
	}
	if violations > 0 {
		return fmt.Errorf("%d journaled events out of order", violations)
	}
	fmt.Fprintln(out, "journal order verified")
	return nil
}
