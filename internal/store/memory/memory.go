// Package memory is an in-process ledger store used for development and tests.
package memory

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"kharch/internal/core"
)

type Store struct {
	mu        sync.Mutex
	members   map[int64]core.Member
	expenses  map[int64]core.Expense
	summaries map[string]core.CycleSummary
	lastID    int64
}

func New() *Store {
	return &Store{
		members:   make(map[int64]core.Member),
		expenses:  make(map[int64]core.Expense),
		summaries: make(map[string]core.CycleSummary),
	}
}

// NewFromFile seeds members from a "name,contribution" file. Blank lines and
// lines starting with # are skipped. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		name, raw, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected name,contribution", path, line)
		}
		v, err := core.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		in := core.MemberInput{Name: name, Contribution: core.Amount(v)}.Normalize()
		if err := core.ValidateMember(in); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		s.lastID++
		s.members[s.lastID] = core.Member{ID: s.lastID, Name: in.Name, Contribution: in.Contribution}
	}
	return s, sc.Err()
}

func (s *Store) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *Store) ListMembers(_ context.Context) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b core.Member) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetMember(_ context.Context, id int64) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return core.Member{}, notFound("member", id)
	}
	return m, nil
}

func (s *Store) CreateMember(_ context.Context, in core.MemberInput) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := core.Member{ID: s.nextID(), Name: in.Name, Contribution: in.Contribution}
	s.members[m.ID] = m
	return m, nil
}

func (s *Store) UpdateMember(_ context.Context, m core.Member) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.ID]; !ok {
		return core.Member{}, notFound("member", m.ID)
	}
	s.members[m.ID] = m
	return m, nil
}

func (s *Store) DeleteMember(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return notFound("member", id)
	}
	delete(s.members, id)
	return nil
}

func (s *Store) ListExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		if n := a.Date.Compare(b.Date); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, notFound("expense", id)
	}
	return e, nil
}

func (s *Store) CreateExpense(_ context.Context, in core.ExpenseInput) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := core.Expense{
		ID:          s.nextID(),
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        in.Date,
	}
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[e.ID]; !ok {
		return core.Expense{}, notFound("expense", e.ID)
	}
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return notFound("expense", id)
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) GetCycleSummary(_ context.Context, key string) (core.CycleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.summaries[key]
	if !ok {
		return core.CycleSummary{}, fmt.Errorf("cycle summary %q: %w", key, core.ErrNotFound)
	}
	return cs, nil
}

func (s *Store) SaveCycleSummary(_ context.Context, cs core.CycleSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[cs.CycleKey] = cs
	return nil
}

func (s *Store) ListCycleSummaries(_ context.Context) ([]core.CycleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.CycleSummary, 0, len(s.summaries))
	for _, cs := range s.summaries {
		out = append(out, cs)
	}
	slices.SortFunc(out, func(a, b core.CycleSummary) int { return strings.Compare(a.CycleKey, b.CycleKey) })
	return out, nil
}

// ReplaceAll drops every member and expense and inserts the given ones with
// fresh ids. Cycle summaries are kept.
func (s *Store) ReplaceAll(_ context.Context, members []core.Member, expenses []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range members {
		s.lastID = max(s.lastID, m.ID)
	}
	for _, e := range expenses {
		s.lastID = max(s.lastID, e.ID)
	}

	s.members = make(map[int64]core.Member, len(members))
	for _, m := range members {
		m.ID = s.nextID()
		s.members[m.ID] = m
	}
	s.expenses = make(map[int64]core.Expense, len(expenses))
	for _, e := range expenses {
		e.ID = s.nextID()
		s.expenses[e.ID] = e
	}
	return nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %s: %w", kind, strconv.FormatInt(id, 10), core.ErrNotFound)
}
