package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"kharch/internal/core"
)

// BackupVersion is the only backup layout this build reads and writes.
const BackupVersion = 1

// Backup is the full-ledger snapshot offered for download and restore.
type Backup struct {
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	Members   []core.Member  `json:"members"`
	Expenses  []core.Expense `json:"expenses"`
}

// NewBackup snapshots members and expenses. Nil slices are written as [].
func NewBackup(members []core.Member, expenses []core.Expense, now time.Time) Backup {
	if members == nil {
		members = []core.Member{}
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	return Backup{
		Version:   BackupVersion,
		CreatedAt: now.UTC(),
		Members:   members,
		Expenses:  expenses,
	}
}

// BackupFilename names the download after the day it was taken.
func BackupFilename(now time.Time) string {
	return "kharch-backup-" + now.Format(time.DateOnly) + ".json"
}

// EncodeBackup writes b as indented JSON.
func EncodeBackup(w io.Writer, b Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

type rawBackup struct {
	Version   *int           `json:"version"`
	CreatedAt string         `json:"createdAt"`
	Members   *[]core.Member `json:"members"`
	Expenses  *[]rawExpense  `json:"expenses"`
}

type rawExpense struct {
	ID          int64       `json:"id"`
	Amount      core.Amount `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
}

// DecodeBackup reads a backup document. Both the members and expenses keys
// must be present; a missing version is read as version 1. Expense dates may
// be full timestamps or bare dates, which are placed in loc. Record contents
// are not validated here.
func DecodeBackup(r io.Reader, loc *time.Location) (Backup, error) {
	var raw rawBackup
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Backup{}, fmt.Errorf("%w: %v", core.ErrInvalidBackup, err)
	}
	if raw.Members == nil || raw.Expenses == nil {
		return Backup{}, fmt.Errorf("%w: members and expenses are required", core.ErrInvalidBackup)
	}

	b := Backup{Version: BackupVersion, Members: *raw.Members}
	if raw.Version != nil {
		if *raw.Version < 1 || *raw.Version > BackupVersion {
			return Backup{}, fmt.Errorf("%w: unsupported version %d", core.ErrInvalidBackup, *raw.Version)
		}
		b.Version = *raw.Version
	}
	if raw.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
		if err != nil {
			return Backup{}, fmt.Errorf("%w: createdAt: %v", core.ErrInvalidBackup, err)
		}
		b.CreatedAt = t
	}

	b.Expenses = make([]core.Expense, 0, len(*raw.Expenses))
	for i, e := range *raw.Expenses {
		date, err := core.ParseDate(e.Date, loc)
		if err != nil {
			return Backup{}, fmt.Errorf("%w: expenses[%d].date %q", core.ErrInvalidBackup, i, e.Date)
		}
		b.Expenses = append(b.Expenses, core.Expense{
			ID:          e.ID,
			Amount:      e.Amount,
			Category:    e.Category,
			Description: e.Description,
			Date:        date,
		})
	}
	return b, nil
}
