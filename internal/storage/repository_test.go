package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kharch/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "kharch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMigrationsApplied(t *testing.T) {
	repo := newTestRepo(t)
	assert.Equal(t, uint(2), repo.SchemaVersion())
	require.NoError(t, repo.Ping(context.Background()))

	// Reopening an up-to-date database is a no-op.
	path := filepath.Join(t.TempDir(), "again.db")
	first, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())
	second, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.SchemaVersion())
	require.NoError(t, second.Close())
}

func TestMemberRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	m, err := repo.CreateMember(ctx, core.MemberInput{Name: "Asha", Contribution: 50000})
	require.NoError(t, err)
	assert.Positive(t, m.ID)

	m.Name = "Asha K"
	_, err = repo.UpdateMember(ctx, m)
	require.NoError(t, err)

	got, err := repo.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	list, err := repo.ListMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Member{m}, list)

	require.NoError(t, repo.DeleteMember(ctx, m.ID))
	_, err = repo.GetMember(ctx, m.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteMember(ctx, m.ID), core.ErrNotFound)
	_, err = repo.UpdateMember(ctx, m)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestExpenseRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	ist := time.FixedZone("IST", 5*3600+1800)

	later, err := repo.CreateExpense(ctx, core.ExpenseInput{
		Amount: 200, Category: "Milk/Dairy", Description: "दूध", Date: time.Date(2025, 1, 20, 12, 0, 0, 0, ist),
	})
	require.NoError(t, err)
	earlier, err := repo.CreateExpense(ctx, core.ExpenseInput{
		Amount: 150, Category: "Groceries", Description: "Rice", Date: time.Date(2025, 1, 12, 12, 0, 0, 0, ist),
	})
	require.NoError(t, err)

	got, err := repo.GetExpense(ctx, later.ID)
	require.NoError(t, err)
	assert.True(t, got.Date.Equal(later.Date))
	assert.Equal(t, "दूध", got.Description)
	assert.Equal(t, core.Amount(200), got.Amount)

	list, err := repo.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, earlier.ID, list[0].ID)

	later.Amount = 250
	_, err = repo.UpdateExpense(ctx, later)
	require.NoError(t, err)
	got, _ = repo.GetExpense(ctx, later.ID)
	assert.Equal(t, core.Amount(250), got.Amount)

	require.NoError(t, repo.DeleteExpense(ctx, later.ID))
	_, err = repo.GetExpense(ctx, later.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCycleSummaryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	key := "2025-01-11_2025-02-10"

	_, err := repo.GetCycleSummary(ctx, key)
	assert.ErrorIs(t, err, core.ErrNotFound)

	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveCycleSummary(ctx, core.CycleSummary{CycleKey: key, PreviousBalance: -300, Fund: 700, Spent: 100, Balance: 600, UpdatedAt: now}))
	require.NoError(t, repo.SaveCycleSummary(ctx, core.CycleSummary{CycleKey: key, PreviousBalance: 500, Fund: 1500, Spent: 100, Balance: 1400, UpdatedAt: now.Add(time.Hour)}))

	cs, err := repo.GetCycleSummary(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(500), cs.PreviousBalance)
	assert.Equal(t, int64(1400), cs.Balance)
	assert.True(t, cs.UpdatedAt.Equal(now.Add(time.Hour)))

	list, err := repo.ListCycleSummaries(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReplaceAllNeverReusesBackupIDs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.CreateMember(ctx, core.MemberInput{Name: "old", Contribution: 1})
	require.NoError(t, err)

	date := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	members := []core.Member{{ID: 1, Name: "Asha", Contribution: 50000}, {ID: 2, Name: "Ravi", Contribution: 30000}}
	expenses := []core.Expense{
		{ID: 1, Amount: 100, Category: "Milk/Dairy", Description: "Milk", Date: date},
		{ID: 2, Amount: 200, Category: "Groceries", Description: "Rice", Date: date},
		{ID: 3, Amount: 300, Category: "Other", Description: "Gas", Date: date},
	}
	require.NoError(t, repo.ReplaceAll(ctx, members, expenses))

	gotM, err := repo.ListMembers(ctx)
	require.NoError(t, err)
	gotE, err := repo.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, gotM, 2)
	require.Len(t, gotE, 3)

	for _, m := range gotM {
		assert.Greater(t, m.ID, int64(3))
	}
	for _, e := range gotE {
		assert.Greater(t, e.ID, int64(3))
	}

	// A second restore must move past the ids handed out by the first.
	require.NoError(t, repo.ReplaceAll(ctx, members, expenses))
	again, _ := repo.ListMembers(ctx)
	for _, m := range again {
		assert.Greater(t, m.ID, gotM[len(gotM)-1].ID)
	}
}
