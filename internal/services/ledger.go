// Package services holds the ledger use cases shared by the HTTP server, the
// backup tool and the mirror worker.
package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kharch/internal/amqp"
	"kharch/internal/cache"
	"kharch/internal/core"
	"kharch/internal/cycle"
	"kharch/internal/export"
	"kharch/internal/finance"
	"kharch/internal/metrics"
	"kharch/internal/store"
)

// Publisher delivers ledger events. *amqp.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Options tune a Ledger. Zero values pick sensible defaults.
type Options struct {
	Location         *time.Location
	StrictCategories bool
	RecentLimit      int
	CacheSize        int
	CacheTTL         time.Duration
	Publisher        Publisher
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

// Ledger validates writes, keeps the summary cache coherent and announces
// every committed change.
type Ledger struct {
	store       store.Store
	publisher   Publisher
	metrics     *metrics.Metrics
	summaries   *cache.LRUCache[finance.Summary]
	loc         *time.Location
	strict      bool
	recentLimit int
	now         func() time.Time

	// gen counts writes; a summary loaded across a write is not cached.
	genMu sync.Mutex
	gen   uint64
}

// RestoreResult reports how many records a restore wrote.
type RestoreResult struct {
	Members  int `json:"members"`
	Expenses int `json:"expenses"`
}

func NewLedger(st store.Store, opts Options) *Ledger {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = finance.DefaultRecentLimit
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	summaries := cache.NewLRUCache[finance.Summary](opts.CacheSize, opts.CacheTTL)
	if opts.Metrics != nil {
		summaries.WithStats(opts.Metrics)
	}

	return &Ledger{
		store:       st,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		summaries:   summaries,
		loc:         opts.Location,
		strict:      opts.StrictCategories,
		recentLimit: opts.RecentLimit,
		now:         opts.Now,
	}
}

// SummaryCache exposes the dashboard cache so a cache.Manager can expire it.
func (l *Ledger) SummaryCache() *cache.LRUCache[finance.Summary] {
	return l.summaries
}

// Invalidate drops every cached summary. Processes that observe writes made
// elsewhere, such as the mirror worker, call it before reading.
func (l *Ledger) Invalidate() {
	l.genMu.Lock()
	l.gen++
	l.summaries.Purge()
	l.genMu.Unlock()
}

func (l *Ledger) generation() uint64 {
	l.genMu.Lock()
	defer l.genMu.Unlock()
	return l.gen
}

// cacheSummary stores s unless a write committed since start was read.
func (l *Ledger) cacheSummary(key string, s finance.Summary, start uint64) {
	l.genMu.Lock()
	defer l.genMu.Unlock()
	if l.gen == start {
		l.summaries.Set(key, s)
	}
}

// Location is the zone cycles and bare dates are evaluated in.
func (l *Ledger) Location() *time.Location { return l.loc }

// Now is the current time in the ledger's location.
func (l *Ledger) Now() time.Time { return l.now().In(l.loc) }

func (l *Ledger) CurrentCycle() cycle.Cycle {
	return cycle.Current(l.Now())
}

func (l *Ledger) RecentCycles(count int) []cycle.Cycle {
	return cycle.Recent(count, l.Now())
}

// ParseCycle resolves a cycle key; the empty key means the current cycle.
func (l *Ledger) ParseCycle(key string) (cycle.Cycle, error) {
	if strings.TrimSpace(key) == "" {
		return l.CurrentCycle(), nil
	}
	return cycle.ParseKey(key, l.loc, l.Now())
}

// ParseDate reads a request date in the ledger's location.
func (l *Ledger) ParseDate(s string) (time.Time, error) {
	return core.ParseDate(s, l.loc)
}

func (l *Ledger) ListMembers(ctx context.Context) ([]core.Member, error) {
	return l.store.ListMembers(ctx)
}

func (l *Ledger) GetMember(ctx context.Context, id int64) (core.Member, error) {
	return l.store.GetMember(ctx, id)
}

func (l *Ledger) CreateMember(ctx context.Context, in core.MemberInput) (core.Member, error) {
	in = in.Normalize()
	if err := core.ValidateMember(in); err != nil {
		return core.Member{}, err
	}
	m, err := l.store.CreateMember(ctx, in)
	if err != nil {
		return core.Member{}, fmt.Errorf("create member: %w", err)
	}
	l.committed(ctx, amqp.NewLedgerEvent(amqp.EntityMember, amqp.OpCreated, m.ID))
	return m, nil
}

// UpdateMember applies the fields set in p to member id.
func (l *Ledger) UpdateMember(ctx context.Context, id int64, p core.MemberPatch) (core.Member, error) {
	p = p.Normalize()
	if err := core.ValidateMemberPatch(p); err != nil {
		return core.Member{}, err
	}
	current, err := l.store.GetMember(ctx, id)
	if err != nil {
		return core.Member{}, err
	}
	if p.IsEmpty() {
		return current, nil
	}
	m, err := l.store.UpdateMember(ctx, current.Apply(p))
	if err != nil {
		return core.Member{}, fmt.Errorf("update member %d: %w", id, err)
	}
	l.committed(ctx, amqp.NewLedgerEvent(amqp.EntityMember, amqp.OpUpdated, id))
	return m, nil
}

func (l *Ledger) DeleteMember(ctx context.Context, id int64) error {
	if err := l.store.DeleteMember(ctx, id); err != nil {
		return err
	}
	l.committed(ctx, amqp.NewLedgerEvent(amqp.EntityMember, amqp.OpDeleted, id))
	return nil
}

func (l *Ledger) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	return l.store.ListExpenses(ctx)
}

func (l *Ledger) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	return l.store.GetExpense(ctx, id)
}

func (l *Ledger) CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	in = in.Normalize()
	if err := core.ValidateExpense(in, l.strict); err != nil {
		return core.Expense{}, err
	}
	e, err := l.store.CreateExpense(ctx, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	ev := amqp.NewLedgerEvent(amqp.EntityExpense, amqp.OpCreated, e.ID)
	ev.Dates = []time.Time{e.Date}
	l.committed(ctx, ev)
	return e, nil
}

// UpdateExpense applies the fields set in p to expense id.
func (l *Ledger) UpdateExpense(ctx context.Context, id int64, p core.ExpensePatch) (core.Expense, error) {
	p = p.Normalize()
	if err := core.ValidateExpensePatch(p, l.strict); err != nil {
		return core.Expense{}, err
	}
	current, err := l.store.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if p.IsEmpty() {
		return current, nil
	}
	e, err := l.store.UpdateExpense(ctx, current.Apply(p))
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	ev := amqp.NewLedgerEvent(amqp.EntityExpense, amqp.OpUpdated, id)
	ev.Dates = []time.Time{current.Date}
	if !e.Date.Equal(current.Date) {
		ev.Dates = append(ev.Dates, e.Date)
	}
	l.committed(ctx, ev)
	return e, nil
}

func (l *Ledger) DeleteExpense(ctx context.Context, id int64) error {
	current, err := l.store.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := l.store.DeleteExpense(ctx, id); err != nil {
		return err
	}
	ev := amqp.NewLedgerEvent(amqp.EntityExpense, amqp.OpDeleted, id)
	ev.Dates = []time.Time{current.Date}
	l.committed(ctx, ev)
	return nil
}

// SearchExpenses returns the expenses whose description or category contains
// query, ignoring case, optionally limited to cycle c. Results are newest first.
func (l *Ledger) SearchExpenses(ctx context.Context, query string, c *cycle.Cycle) ([]core.Expense, error) {
	all, err := l.store.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if c != nil {
		all = finance.FilterCycle(*c, all)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]core.Expense, 0, len(all))
	for _, e := range all {
		if q == "" ||
			strings.Contains(strings.ToLower(e.Description), q) ||
			strings.Contains(strings.ToLower(e.Category), q) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Expense) int {
		if n := b.Date.Compare(a.Date); n != 0 {
			return n
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// Summary aggregates cycle c. A nil override uses the previous balance saved
// for the cycle, or zero when none was saved. Results are cached until the
// next write; callers must not modify the returned slices.
func (l *Ledger) Summary(ctx context.Context, c cycle.Cycle, override *int64) (finance.Summary, error) {
	key := summaryCacheKey(c, override)
	if s, ok := l.summaries.Get(key); ok {
		return s, nil
	}
	start := l.generation()

	var (
		members  []core.Member
		expenses []core.Expense
		prev     int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = l.store.ListMembers(gctx)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		expenses, err = l.store.ListExpenses(gctx)
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		return nil
	})
	if override != nil {
		prev = *override
	} else {
		g.Go(func() error {
			cs, err := l.store.GetCycleSummary(gctx, c.Key())
			switch {
			case errors.Is(err, core.ErrNotFound):
				return nil
			case err != nil:
				return fmt.Errorf("get cycle summary: %w", err)
			}
			prev = cs.PreviousBalance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return finance.Summary{}, err
	}

	s := finance.AggregateWithLimit(c, members, expenses, prev, l.recentLimit)
	l.cacheSummary(key, s, start)
	return s, nil
}

// CycleSummary returns the saved carry-forward of c. When nothing was saved it
// returns the current totals with a zero previous balance, unsaved.
func (l *Ledger) CycleSummary(ctx context.Context, c cycle.Cycle) (core.CycleSummary, error) {
	cs, err := l.store.GetCycleSummary(ctx, c.Key())
	if err == nil {
		return cs, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.CycleSummary{}, fmt.Errorf("get cycle summary: %w", err)
	}
	zero := int64(0)
	s, err := l.Summary(ctx, c, &zero)
	if err != nil {
		return core.CycleSummary{}, err
	}
	return snapshot(s, time.Time{}), nil
}

// SetPreviousBalance stores the balance carried into c together with the
// totals it produces.
func (l *Ledger) SetPreviousBalance(ctx context.Context, c cycle.Cycle, amount int64) (core.CycleSummary, error) {
	s, err := l.Summary(ctx, c, &amount)
	if err != nil {
		return core.CycleSummary{}, err
	}
	cs := snapshot(s, l.now().UTC())
	if err := l.store.SaveCycleSummary(ctx, cs); err != nil {
		return core.CycleSummary{}, fmt.Errorf("save cycle summary: %w", err)
	}
	ev := amqp.NewLedgerEvent(amqp.EntityCycleSummary, amqp.OpUpdated, 0)
	ev.CycleKey = cs.CycleKey
	l.committed(ctx, ev)
	return cs, nil
}

// Backup snapshots every member and expense.
func (l *Ledger) Backup(ctx context.Context) (export.Backup, error) {
	var (
		members  []core.Member
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		members, err = l.store.ListMembers(gctx)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = l.store.ListExpenses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return export.Backup{}, fmt.Errorf("load ledger: %w", err)
	}
	return export.NewBackup(members, expenses, l.now()), nil
}

// Restore replaces the whole ledger with the backup read from r. Every record
// is validated before anything is written; ids in the file are discarded.
func (l *Ledger) Restore(ctx context.Context, r io.Reader) (RestoreResult, error) {
	b, err := export.DecodeBackup(r, l.loc)
	if err != nil {
		return RestoreResult{}, err
	}

	members := make([]core.Member, 0, len(b.Members))
	for i, m := range b.Members {
		in := m.Input().Normalize()
		if err := core.ValidateMember(in); err != nil {
			return RestoreResult{}, recordError("members", i, err)
		}
		members = append(members, core.Member{ID: m.ID, Name: in.Name, Contribution: in.Contribution})
	}
	expenses := make([]core.Expense, 0, len(b.Expenses))
	for i, e := range b.Expenses {
		in := e.Input().Normalize()
		// Backups may predate the fixed category list.
		if err := core.ValidateExpense(in, false); err != nil {
			return RestoreResult{}, recordError("expenses", i, err)
		}
		expenses = append(expenses, core.Expense{
			ID:          e.ID,
			Amount:      in.Amount,
			Category:    in.Category,
			Description: in.Description,
			Date:        in.Date,
		})
	}

	if err := l.store.ReplaceAll(ctx, members, expenses); err != nil {
		return RestoreResult{}, fmt.Errorf("replace ledger: %w", err)
	}
	slog.InfoContext(ctx, "Ledger restored from backup",
		"members", len(members),
		"expenses", len(expenses),
		"backup_created_at", b.CreatedAt)
	l.committed(ctx, amqp.NewLedgerEvent(amqp.EntityLedger, amqp.OpRestored, 0))
	return RestoreResult{Members: len(members), Expenses: len(expenses)}, nil
}

// committed runs after every successful write.
func (l *Ledger) committed(ctx context.Context, ev *amqp.LedgerEvent) {
	l.Invalidate()
	l.metrics.LedgerWrite(ev.Entity, ev.Operation)

	if l.publisher == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping ledger event",
			"routing_key", ev.RoutingKey())
		return
	}
	err := l.publisher.Publish(ctx, ev)
	l.metrics.EventPublished(err)
	if err != nil {
		// The write is already committed; the mirror catches up on its next refresh.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"routing_key", ev.RoutingKey(),
			"id", ev.ID,
			"error", err)
	}
}

func recordError(list string, i int, err error) error {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%w: %s[%d]: %w", core.ErrInvalidBackup, list, i, &core.ValidationError{
			Field:   fmt.Sprintf("%s[%d].%s", list, i, verr.Field),
			Message: verr.Message,
		})
	}
	return fmt.Errorf("%w: %s[%d]: %v", core.ErrInvalidBackup, list, i, err)
}

func summaryCacheKey(c cycle.Cycle, override *int64) string {
	key := c.Key() + "|" + strconv.FormatBool(c.IsCurrent) + "|"
	if override == nil {
		return key + "stored"
	}
	return key + strconv.FormatInt(*override, 10)
}

func snapshot(s finance.Summary, at time.Time) core.CycleSummary {
	return core.CycleSummary{
		CycleKey:        s.CycleKey,
		PreviousBalance: s.PreviousBalance,
		Fund:            s.Fund,
		Spent:           s.Spent,
		Balance:         s.Balance,
		UpdatedAt:       at,
	}
}
