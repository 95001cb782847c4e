// Package storage is the SQLite implementation of the ledger store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kharch/internal/core"

	_ "modernc.org/sqlite"
)

// dateLayout is fixed width in UTC so that dates sort lexically.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db            *sql.DB
	schemaVersion uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, schemaVersion: version}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SchemaVersion is the migration version applied when the repository was opened.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, contribution FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := make([]core.Member, 0)
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Contribution); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetMember(ctx context.Context, id int64) (core.Member, error) {
	var m core.Member
	err := r.db.QueryRowContext(ctx, `SELECT id, name, contribution FROM members WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Contribution)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, fmt.Errorf("member %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member %d: %w", id, err)
	}
	return m, nil
}

func (r *SQLiteRepository) CreateMember(ctx context.Context, in core.MemberInput) (core.Member, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO members (name, contribution) VALUES (?, ?)`,
		in.Name, int64(in.Contribution))
	if err != nil {
		return core.Member{}, fmt.Errorf("create member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Member{}, fmt.Errorf("create member: %w", err)
	}

	slog.InfoContext(ctx, "Member saved to SQLite", "id", id, "name", in.Name)
	return core.Member{ID: id, Name: in.Name, Contribution: in.Contribution}, nil
}

func (r *SQLiteRepository) UpdateMember(ctx context.Context, m core.Member) (core.Member, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET name = ?, contribution = ? WHERE id = ?`,
		m.Name, int64(m.Contribution), m.ID)
	if err != nil {
		return core.Member{}, fmt.Errorf("update member %d: %w", m.ID, err)
	}
	if err := expectOne(res, "member", m.ID); err != nil {
		return core.Member{}, err
	}
	return m, nil
}

func (r *SQLiteRepository) DeleteMember(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member %d: %w", id, err)
	}
	return expectOne(res, "member", id)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, amount, category, description, date FROM expenses ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, amount, category, description, date FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (amount, category, description, date) VALUES (?, ?, ?, ?)`,
		int64(in.Amount), in.Category, in.Description, formatDate(in.Date))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"description", in.Description,
		"amount", int64(in.Amount),
		"date", in.Date.Format(time.DateOnly))

	return core.Expense{
		ID:          id,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        in.Date,
	}, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount = ?, category = ?, description = ?, date = ? WHERE id = ?`,
		int64(e.Amount), e.Category, e.Description, formatDate(e.Date), e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	if err := expectOne(res, "expense", e.ID); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return expectOne(res, "expense", id)
}

func (r *SQLiteRepository) GetCycleSummary(ctx context.Context, key string) (core.CycleSummary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT cycle_key, previous_balance, fund, spent, balance, updated_at
		   FROM cycle_summaries WHERE cycle_key = ?`, key)
	cs, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CycleSummary{}, fmt.Errorf("cycle summary %q: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.CycleSummary{}, fmt.Errorf("get cycle summary %q: %w", key, err)
	}
	return cs, nil
}

func (r *SQLiteRepository) SaveCycleSummary(ctx context.Context, cs core.CycleSummary) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cycle_summaries (cycle_key, previous_balance, fund, spent, balance, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cycle_key) DO UPDATE SET
		   previous_balance = excluded.previous_balance,
		   fund = excluded.fund,
		   spent = excluded.spent,
		   balance = excluded.balance,
		   updated_at = excluded.updated_at`,
		cs.CycleKey, cs.PreviousBalance, cs.Fund, cs.Spent, cs.Balance, formatDate(cs.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save cycle summary %q: %w", cs.CycleKey, err)
	}
	return nil
}

func (r *SQLiteRepository) ListCycleSummaries(ctx context.Context) ([]core.CycleSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cycle_key, previous_balance, fund, spent, balance, updated_at
		   FROM cycle_summaries ORDER BY cycle_key`)
	if err != nil {
		return nil, fmt.Errorf("list cycle summaries: %w", err)
	}
	defer rows.Close()

	out := make([]core.CycleSummary, 0)
	for rows.Next() {
		cs, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cycle summary: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// ReplaceAll swaps members and expenses in one transaction. The AUTOINCREMENT
// sequences are moved past every id in the input so restored rows never reuse
// an id from the backup.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, members []core.Member, expenses []core.Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer tx.Rollback()

	var floor int64
	for _, m := range members {
		floor = max(floor, m.ID)
	}
	for _, e := range expenses {
		floor = max(floor, e.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM expenses`); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM members`); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for _, table := range []string{"members", "expenses"} {
		if err := bumpSequence(ctx, tx, table, floor); err != nil {
			return err
		}
	}

	for _, m := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO members (name, contribution) VALUES (?, ?)`,
			m.Name, int64(m.Contribution)); err != nil {
			return fmt.Errorf("restore member %q: %w", m.Name, err)
		}
	}
	for _, e := range expenses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (amount, category, description, date) VALUES (?, ?, ?, ?)`,
			int64(e.Amount), e.Category, e.Description, formatDate(e.Date)); err != nil {
			return fmt.Errorf("restore expense %q: %w", e.Description, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	slog.InfoContext(ctx, "Ledger replaced", "members", len(members), "expenses", len(expenses))
	return nil
}

func bumpSequence(ctx context.Context, tx *sql.Tx, table string, floor int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sqlite_sequence SET seq = MAX(seq, ?) WHERE name = ?`, floor, table)
	if err != nil {
		return fmt.Errorf("bump %s sequence: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)`, table, floor); err != nil {
		return fmt.Errorf("seed %s sequence: %w", table, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e    core.Expense
		date string
	)
	if err := s.Scan(&e.ID, &e.Amount, &e.Category, &e.Description, &date); err != nil {
		return core.Expense{}, err
	}
	t, err := parseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: %w", e.ID, err)
	}
	e.Date = t
	return e, nil
}

func scanSummary(s scanner) (core.CycleSummary, error) {
	var (
		cs      core.CycleSummary
		updated string
	)
	if err := s.Scan(&cs.CycleKey, &cs.PreviousBalance, &cs.Fund, &cs.Spent, &cs.Balance, &updated); err != nil {
		return core.CycleSummary{}, err
	}
	t, err := parseDate(updated)
	if err != nil {
		return core.CycleSummary{}, err
	}
	cs.UpdatedAt = t
	return cs, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err == nil {
		return t, nil
	}
	// Rows written by hand or by older tools.
	if t, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
}

func expectOne(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	return nil
}
