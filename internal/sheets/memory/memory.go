// Package memory keeps mirrored cycle reports in process. The worker uses it
// when no spreadsheet is configured.
package memory

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"kharch/internal/cycle"
	"kharch/internal/finance"
	ports "kharch/internal/sheets"
)

var _ ports.ReportWriter = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	reports map[string]finance.Summary
	writes  int
}

func New() *Store {
	return &Store{reports: make(map[string]finance.Summary)}
}

// WriteCycleReport replaces the stored report of c.
func (s *Store) WriteCycleReport(ctx context.Context, c cycle.Cycle, sum finance.Summary) error {
	s.mu.Lock()
	s.reports[c.Key()] = sum
	s.writes++
	s.mu.Unlock()

	slog.DebugContext(ctx, "Cycle report stored in memory",
		"cycle_key", c.Key(),
		"spent", sum.Spent,
		"balance", sum.Balance)
	return nil
}

// Report returns the last report written for key.
func (s *Store) Report(key string) (finance.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[key]
	return r, ok
}

// Keys lists the cycles that have a report, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.reports))
	for k := range s.reports {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Writes counts every WriteCycleReport call.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
