package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/formnav/pkg/formnav"
	"github.com/randalmurphal/formnav/pkg/formnav/event"
	"github.com/randalmurphal/formnav/pkg/formnav/journal"
	"github.com/randalmurphal/formnav/pkg/formnav/sequence"
)

// maxLineBytes bounds a single envelope line.
const maxLineBytes = 1 << 20

func newValidateCmd(a *app) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a newline-delimited stream of event envelopes",
		Long: `Reads one event envelope per line ("-" for stdin), decodes each payload
strictly, checks that every changed event follows its changing event and
reports every rejected line. With --record, accepted events are appended to
the journal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return a.validate(cmd.Context(), in, cmd.OutOrStdout(), record)
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "append accepted events to the journal")
	return cmd
}

// report is the outcome of a validate run.
type report struct {
	total    int
	accepted int
	rejected []string
}

func (a *app) validate(ctx context.Context, in io.Reader, out io.Writer, record bool) error {
	router := a.newRouter()
	checker := sequence.NewChecker()

	bus := event.NewBus(event.BusConfig{
		BufferSize:     a.settings.Bus.BufferSize,
		NonBlocking:    a.settings.Bus.NonBlocking,
		DeduplicateTTL: a.settings.Bus.DedupeTTL,
	})
	if record {
		store, err := a.openJournal()
		if err != nil {
			return err
		}
		defer store.Close()
		journal.NewRecorder(store,
			journal.WithLogger(a.logger),
			journal.WithMetrics(a.metrics),
		).Attach(bus)
	}

	var r report
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for line := 1; scanner.Scan(); line++ {
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		r.total++

		events, err := a.check(ctx, router, checker, data)
		if err != nil {
			r.rejected = append(r.rejected, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		r.accepted++
		for _, evt := range events {
			if err := bus.Publish(ctx, evt); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading events: %w", err)
	}

	// Close waits for the journal recorder to drain.
	if err := bus.Close(); err != nil {
		return err
	}

	for _, msg := range r.rejected {
		fmt.Fprintln(out, msg)
	}
	for _, formID := range checker.Forms() {
		for _, p := range checker.Pending(formID) {
			fmt.Fprintf(out, "open: form %s %s transition to %d/%q (event %s)\n",
				formID, p.Level, p.To.Index, p.To.ID, p.EventID)
		}
	}
	fmt.Fprintf(out, "%d events, %d accepted, %d rejected\n", r.total, r.accepted, len(r.rejected))

	if len(r.rejected) > 0 {
		return fmt.Errorf("%d of %d events rejected", len(r.rejected), r.total)
	}
	return nil
}

// check decodes one envelope and runs it through the ordering checker and
// the schema-validating router. It returns the event followed by any events
// listeners derived from it.
func (a *app) check(ctx context.Context, router event.Router, checker *sequence.Checker, data []byte) (_ []event.Event, err error) {
	meta, payload, err := formnav.DecodeEnvelope(data)
	if err != nil {
		a.metrics.RecordShapeRejection(ctx, meta.EventType)
		return nil, err
	}

	ctx, span := a.spans.StartCheckSpan(ctx, meta.FormID, meta.EventType, meta.EventID)
	defer func() { a.spans.EndSpanWithError(span, err) }()

	if meta.EventID == "" || meta.FormID == "" {
		return nil, errors.New("envelope metadata needs an id and a form_id")
	}

	evt := &event.BaseEvent[formnav.Payload]{Meta: meta, Payload: payload}

	derived, err := router.Route(ctx, evt)
	if err != nil {
		return nil, err
	}
	if err := checker.Observe(evt); err != nil {
		return nil, err
	}
	a.metrics.RecordEvent(ctx, evt.Type())
	return append([]event.Event{evt}, derived...), nil
}
