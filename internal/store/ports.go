// Package store declares the persistence ports of the ledger. Implementations
// live in internal/store/memory and internal/storage.
package store

import (
	"context"

	"kharch/internal/core"
)

type (
	MemberStore interface {
		ListMembers(ctx context.Context) ([]core.Member, error)
		GetMember(ctx context.Context, id int64) (core.Member, error)
		CreateMember(ctx context.Context, in core.MemberInput) (core.Member, error)
		// UpdateMember overwrites the member. It returns core.ErrNotFound when id is unknown.
		UpdateMember(ctx context.Context, m core.Member) (core.Member, error)
		DeleteMember(ctx context.Context, id int64) error
	}

	ExpenseStore interface {
		// ListExpenses returns every expense ordered by date then id.
		ListExpenses(ctx context.Context) ([]core.Expense, error)
		GetExpense(ctx context.Context, id int64) (core.Expense, error)
		CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, id int64) error
	}

	// SummaryStore keeps the carried-over balance of each cycle.
	SummaryStore interface {
		GetCycleSummary(ctx context.Context, cycleKey string) (core.CycleSummary, error)
		SaveCycleSummary(ctx context.Context, s core.CycleSummary) error
		ListCycleSummaries(ctx context.Context) ([]core.CycleSummary, error)
	}

	// Replacer swaps the whole dataset. Ids in the input are ignored; new ids
	// are assigned above every id previously handed out and above every id in
	// the input.
	Replacer interface {
		ReplaceAll(ctx context.Context, members []core.Member, expenses []core.Expense) error
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	Store interface {
		MemberStore
		ExpenseStore
		SummaryStore
		Replacer
		Pinger
	}
)
