// Package finance derives the fund, spend and balance figures of a billing
// cycle from members and expenses. Everything here is pure: inputs are never
// modified and no I/O is performed.
package finance

import (
	"cmp"
	"slices"
	"strings"

	"kharch/internal/core"
	"kharch/internal/cycle"
)

// DefaultRecentLimit is how many expenses the dashboard lists by default.
const DefaultRecentLimit = 5

// Entry is one group of a breakdown.
type Entry struct {
	Key    string `json:"key"`
	Amount int64  `json:"amount"`
	Count  int    `json:"count"`
}

// Summary is the aggregated view of one cycle.
type Summary struct {
	CycleKey        string         `json:"cycleKey"`
	Label           string         `json:"label"`
	IsCurrent       bool           `json:"isCurrent"`
	Members         int            `json:"members"`
	Contributions   int64          `json:"contributions"`
	PreviousBalance int64          `json:"previousBalance"`
	Fund            int64          `json:"fund"`
	Spent           int64          `json:"spent"`
	Balance         int64          `json:"balance"`
	Warning         bool           `json:"warning"`
	Expenses        []core.Expense `json:"expenses"`
	ByDescription   []Entry        `json:"byDescription"`
	ByCategory      []Entry        `json:"byCategory"`
	Recent          []core.Expense `json:"recent"`
}

// KeyFunc picks the grouping key of an expense.
type KeyFunc func(core.Expense) string

// DescriptionKey groups by trimmed free-text description.
func DescriptionKey(e core.Expense) string {
	return strings.TrimSpace(e.Description)
}

// CategoryKey groups by category.
func CategoryKey(e core.Expense) string {
	return strings.TrimSpace(e.Category)
}

// Aggregate computes the summary of c using DefaultRecentLimit.
func Aggregate(c cycle.Cycle, members []core.Member, expenses []core.Expense, previousBalance int64) Summary {
	return AggregateWithLimit(c, members, expenses, previousBalance, DefaultRecentLimit)
}

// AggregateWithLimit computes the summary of c. Expenses outside c are ignored;
// the remaining ones are ordered by date then id.
func AggregateWithLimit(c cycle.Cycle, members []core.Member, expenses []core.Expense, previousBalance int64, limit int) Summary {
	var contributions int64
	for _, m := range members {
		contributions += int64(m.Contribution)
	}

	inCycle := FilterCycle(c, expenses)
	var spent int64
	for _, e := range inCycle {
		spent += int64(e.Amount)
	}

	fund := contributions + previousBalance
	return Summary{
		CycleKey:        c.Key(),
		Label:           c.Label(),
		IsCurrent:       c.IsCurrent,
		Members:         len(members),
		Contributions:   contributions,
		PreviousBalance: previousBalance,
		Fund:            fund,
		Spent:           spent,
		Balance:         fund - spent,
		Warning:         IsWarning(spent, fund),
		Expenses:        inCycle,
		ByDescription:   BreakdownBy(inCycle, DescriptionKey),
		ByCategory:      BreakdownBy(inCycle, CategoryKey),
		Recent:          RecentExpenses(inCycle, limit),
	}
}

// FilterCycle returns a new slice with the expenses whose calendar day falls in
// c, sorted by date ascending and id ascending.
func FilterCycle(c cycle.Cycle, expenses []core.Expense) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if c.ContainsDate(e.Date) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Expense) int {
		if n := a.Date.Compare(b.Date); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// BreakdownBy sums expense amounts per key. Blank keys are dropped. Entries are
// ordered by amount descending, then key ascending.
func BreakdownBy(expenses []core.Expense, key KeyFunc) []Entry {
	idx := make(map[string]int)
	out := make([]Entry, 0)
	for _, e := range expenses {
		k := key(e)
		if strings.TrimSpace(k) == "" {
			continue
		}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Entry{Key: k})
		}
		out[i].Amount += int64(e.Amount)
		out[i].Count++
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if n := cmp.Compare(b.Amount, a.Amount); n != 0 {
			return n
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// RecentExpenses returns up to limit expenses, newest date first. Expenses on
// the same date are ordered by id descending so the latest entry comes first.
func RecentExpenses(expenses []core.Expense, limit int) []core.Expense {
	if limit <= 0 {
		return []core.Expense{}
	}
	out := slices.Clone(expenses)
	if out == nil {
		out = []core.Expense{}
	}
	slices.SortStableFunc(out, func(a, b core.Expense) int {
		if n := b.Date.Compare(a.Date); n != 0 {
			return n
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IsWarning reports whether spent exceeds 90% of fund.
func IsWarning(spent, fund int64) bool {
	return 10*spent > 9*fund
}

// Total sums the amounts of a breakdown.
func Total(entries []Entry) int64 {
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	return sum
}
