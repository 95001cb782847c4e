// Package worker consumes ledger events and keeps the spreadsheet mirror up
// to date.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"kharch/internal/amqp"
	"kharch/internal/cycle"
	"kharch/internal/finance"
	"kharch/internal/metrics"
	"kharch/internal/sheets"
)

// Ledger is the read side the mirror needs. *services.Ledger satisfies it.
type Ledger interface {
	Summary(ctx context.Context, c cycle.Cycle, override *int64) (finance.Summary, error)
	CurrentCycle() cycle.Cycle
	RecentCycles(count int) []cycle.Cycle
	ParseCycle(key string) (cycle.Cycle, error)
	Location() *time.Location
	Now() time.Time
	Invalidate()
}

// Mirror rewrites the report of every cycle a ledger event touches.
type Mirror struct {
	ledger  Ledger
	writer  sheets.ReportWriter
	metrics *metrics.Metrics
	history int
}

// NewMirror builds a mirror. history is how many recent cycles a full
// refresh rewrites, used after a restore.
func NewMirror(ledger Ledger, writer sheets.ReportWriter, m *metrics.Metrics, history int) *Mirror {
	if history < 1 {
		history = 1
	}
	return &Mirror{ledger: ledger, writer: writer, metrics: m, history: history}
}

// HandleEvent is the amqp consumer callback. Returning an error requeues the
// message.
func (w *Mirror) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"routing_key", ev.RoutingKey(),
		"id", ev.ID,
		"timestamp", ev.Timestamp)

	w.ledger.Invalidate()

	// Every cycle's fund is the sum of the current members, so a member change
	// rewrites all mirrored cycles, as a restore does.
	if ev.Entity == amqp.EntityMember || (ev.Entity == amqp.EntityLedger && ev.Operation == amqp.OpRestored) {
		return w.RefreshRecent(ctx)
	}

	cycles, err := w.affectedCycles(ev)
	if err != nil {
		// A malformed key will never succeed; drop it instead of requeueing forever.
		slog.WarnContext(ctx, "Dropping ledger event with invalid cycle", "cycle_key", ev.CycleKey, "error", err)
		return nil
	}
	var errs []error
	for _, c := range cycles {
		if err := w.Refresh(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// affectedCycles maps an expense or carry-forward event to the cycles whose
// report changed. Without a key or dates it falls back to the current cycle.
func (w *Mirror) affectedCycles(ev *amqp.LedgerEvent) ([]cycle.Cycle, error) {
	if ev.CycleKey != "" {
		c, err := w.ledger.ParseCycle(ev.CycleKey)
		if err != nil {
			return nil, err
		}
		return []cycle.Cycle{c}, nil
	}
	if len(ev.Dates) == 0 {
		return []cycle.Cycle{w.ledger.CurrentCycle()}, nil
	}

	now := w.ledger.Now()
	seen := make(map[string]bool, len(ev.Dates))
	out := make([]cycle.Cycle, 0, len(ev.Dates))
	for _, d := range ev.Dates {
		c := cycle.For(d.In(w.ledger.Location()), now)
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		out = append(out, c)
	}
	return out, nil
}

// Refresh recomputes cycle c and writes its report.
func (w *Mirror) Refresh(ctx context.Context, c cycle.Cycle) error {
	err := w.refresh(ctx, c)
	w.metrics.MirrorRun(err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mirror cycle report", "cycle_key", c.Key(), "error", err)
		return err
	}
	slog.InfoContext(ctx, "Mirrored cycle report", "cycle_key", c.Key())
	return nil
}

func (w *Mirror) refresh(ctx context.Context, c cycle.Cycle) error {
	s, err := w.ledger.Summary(ctx, c, nil)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", c.Key(), err)
	}
	if err := w.writer.WriteCycleReport(ctx, c, s); err != nil {
		return fmt.Errorf("write report %s: %w", c.Key(), err)
	}
	return nil
}

// RefreshRecent rewrites the reports of the configured number of recent cycles.
func (w *Mirror) RefreshRecent(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, c := range w.ledger.RecentCycles(w.history) {
		g.Go(func() error { return w.Refresh(gctx, c) })
	}
	return g.Wait()
}

// Run refreshes the current cycle every interval until ctx is done, so the
// mirror catches up on events that were never published.
func (w *Mirror) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ledger.Invalidate()
			_ = w.Refresh(ctx, w.ledger.CurrentCycle())
		}
	}
}
