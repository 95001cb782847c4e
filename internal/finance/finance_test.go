package finance

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kharch/internal/core"
	"kharch/internal/cycle"
)

var janCycle = cycle.Current(time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC))

func at(m time.Month, d, h, min int) time.Time {
	return time.Date(2025, m, d, h, min, 0, 0, time.UTC)
}

func members(contribs ...int64) []core.Member {
	out := make([]core.Member, len(contribs))
	for i, c := range contribs {
		out[i] = core.Member{ID: int64(i + 1), Name: "m", Contribution: core.Amount(c)}
	}
	return out
}

func TestAggregateBasic(t *testing.T) {
	expenses := []core.Expense{
		{ID: 1, Amount: 2000, Category: "Groceries", Description: "Rice", Date: at(time.January, 15, 10, 0)},
	}
	s := Aggregate(janCycle, members(50000, 30000), expenses, 0)

	assert.Equal(t, int64(80000), s.Fund)
	assert.Equal(t, int64(2000), s.Spent)
	assert.Equal(t, int64(78000), s.Balance)
	assert.False(t, s.Warning)
	assert.Equal(t, "2025-01-11_2025-02-10", s.CycleKey)
	assert.Equal(t, 2, s.Members)
	assert.Len(t, s.Expenses, 1)
}

func TestAggregateWarning(t *testing.T) {
	expenses := []core.Expense{
		{ID: 1, Amount: 50000, Category: "Utilities", Description: "Rent", Date: at(time.January, 12, 0, 0)},
		{ID: 2, Amount: 25000, Category: "Medical", Description: "Clinic", Date: at(time.February, 1, 0, 0)},
	}
	s := Aggregate(janCycle, members(50000, 30000), expenses, 0)
	assert.Equal(t, int64(75000), s.Spent)
	assert.True(t, s.Warning)
}

func TestAggregateCycleEdges(t *testing.T) {
	expenses := []core.Expense{
		{ID: 1, Amount: 100, Description: "late", Date: at(time.February, 10, 23, 59)},
		{ID: 2, Amount: 300, Description: "next", Date: at(time.February, 11, 0, 0)},
		{ID: 3, Amount: 500, Description: "prev", Date: at(time.January, 10, 23, 59)},
		{ID: 4, Amount: 700, Description: "first", Date: at(time.January, 11, 0, 0)},
	}
	s := Aggregate(janCycle, nil, expenses, 0)
	assert.Equal(t, int64(800), s.Spent)

	ids := make([]int64, 0, len(s.Expenses))
	for _, e := range s.Expenses {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{4, 1}, ids)

	next := Aggregate(cycle.For(at(time.February, 20, 0, 0), at(time.January, 20, 0, 0)), nil, expenses, 0)
	assert.Equal(t, int64(300), next.Spent)
}

func TestAggregatePreviousBalance(t *testing.T) {
	s := Aggregate(janCycle, members(1000), nil, -1500)
	assert.Equal(t, int64(-500), s.Fund)
	assert.Equal(t, int64(-500), s.Balance)
	assert.Equal(t, int64(1000), s.Contributions)
	assert.Equal(t, int64(-1500), s.PreviousBalance)

	s = Aggregate(janCycle, members(1000), nil, 250)
	assert.Equal(t, int64(1250), s.Fund)
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(janCycle, nil, nil, 0)
	assert.Zero(t, s.Fund)
	assert.Zero(t, s.Spent)
	assert.Zero(t, s.Balance)
	assert.False(t, s.Warning)
	assert.NotNil(t, s.Expenses)
	assert.Empty(t, s.Expenses)
	assert.NotNil(t, s.ByDescription)
	assert.Empty(t, s.ByCategory)
	assert.NotNil(t, s.Recent)
	assert.Empty(t, s.Recent)
}

func TestAggregateMalformed(t *testing.T) {
	expenses := []core.Expense{
		{ID: 1, Description: "missing amount", Date: at(time.January, 20, 0, 0)},
		{ID: 2, Amount: -50, Description: "refund", Date: at(time.January, 20, 0, 0)},
		{ID: 3, Amount: 100, Description: "no date"},
	}
	s := Aggregate(janCycle, []core.Member{{ID: 1}}, expenses, 0)
	assert.Equal(t, int64(-50), s.Spent)
	assert.Zero(t, s.Contributions)
	assert.Len(t, s.Expenses, 2)
}

func TestAggregateIdempotentAndPure(t *testing.T) {
	ms := members(500, 700)
	expenses := []core.Expense{
		{ID: 3, Amount: 30, Description: "b", Date: at(time.January, 25, 0, 0)},
		{ID: 1, Amount: 10, Description: "a", Date: at(time.January, 20, 0, 0)},
		{ID: 2, Amount: 20, Description: "a", Date: at(time.January, 20, 0, 0)},
	}
	before := slices.Clone(expenses)

	first := Aggregate(janCycle, ms, expenses, 5)
	second := Aggregate(janCycle, ms, expenses, 5)
	assert.Equal(t, first, second)
	assert.Equal(t, before, expenses, "input must not be reordered")
}

func TestBreakdownSumsToSpent(t *testing.T) {
	expenses := []core.Expense{
		{ID: 1, Amount: 100, Category: "Groceries", Description: " Milk ", Date: at(time.January, 12, 0, 0)},
		{ID: 2, Amount: 200, Category: "Groceries", Description: "Milk", Date: at(time.January, 13, 0, 0)},
		{ID: 3, Amount: 50, Category: "Other", Description: "   ", Date: at(time.January, 14, 0, 0)},
		{ID: 4, Amount: 400, Category: "", Description: "Gas", Date: at(time.January, 15, 0, 0)},
		{ID: 5, Amount: 300, Category: "Medical", Description: "दवा", Date: at(time.January, 16, 0, 0)},
	}
	s := Aggregate(janCycle, nil, expenses, 0)

	var blankDesc, blankCat int64
	for _, e := range s.Expenses {
		if DescriptionKey(e) == "" {
			blankDesc += int64(e.Amount)
		}
		if CategoryKey(e) == "" {
			blankCat += int64(e.Amount)
		}
	}
	assert.Equal(t, s.Spent, Total(s.ByDescription)+blankDesc)
	assert.Equal(t, s.Spent, Total(s.ByCategory)+blankCat)

	assert.Equal(t, []Entry{
		{Key: "Gas", Amount: 400, Count: 1},
		{Key: "Milk", Amount: 300, Count: 2},
		{Key: "दवा", Amount: 300, Count: 1},
	}, s.ByDescription)

	assert.Equal(t, []Entry{
		{Key: "Groceries", Amount: 300, Count: 2},
		{Key: "Medical", Amount: 300, Count: 1},
		{Key: "Other", Amount: 50, Count: 1},
	}, s.ByCategory)
}

func TestRecentExpenses(t *testing.T) {
	expenses := []core.Expense{
		{ID: 1, Date: at(time.January, 12, 0, 0)},
		{ID: 2, Date: at(time.January, 15, 0, 0)},
		{ID: 3, Date: at(time.January, 15, 0, 0)},
		{ID: 4, Date: at(time.January, 13, 0, 0)},
		{ID: 5, Date: at(time.January, 20, 0, 0)},
		{ID: 6, Date: at(time.January, 11, 0, 0)},
	}
	got := RecentExpenses(expenses, 5)
	require.Len(t, got, 5)
	ids := make([]int64, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []int64{5, 3, 2, 4, 1}, ids)
	assert.Equal(t, int64(1), expenses[0].ID)

	assert.Empty(t, RecentExpenses(expenses, 0))
	assert.Len(t, RecentExpenses(expenses[:2], 5), 2)
	assert.NotNil(t, RecentExpenses(nil, 5))
}

func TestIsWarning(t *testing.T) {
	cases := []struct {
		spent, fund int64
		want        bool
	}{
		{72000, 80000, false},
		{72001, 80000, true},
		{0, 0, false},
		{1, 0, true},
		{9, 10, false},
		{10, 10, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsWarning(tc.spent, tc.fund), "spent=%d fund=%d", tc.spent, tc.fund)
	}
}
