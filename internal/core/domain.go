package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Member is a household member and the amount they put into the fund every cycle.
	Member struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		Contribution Amount `json:"contribution"`
	}

	// Expense is a single shared spend.
	Expense struct {
		ID          int64     `json:"id"`
		Amount      Amount    `json:"amount"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		Date        time.Time `json:"date"`
	}

	// MemberInput is a member without its store-assigned id.
	MemberInput struct {
		Name         string `json:"name" validate:"required,notblank,max=100"`
		Contribution Amount `json:"contribution" validate:"gt=0,lte=1000000000000"`
	}

	// ExpenseInput is an expense without its store-assigned id.
	ExpenseInput struct {
		Amount      Amount    `json:"amount" validate:"gt=0,lte=1000000000000"`
		Category    string    `json:"category" validate:"required,notblank,max=50"`
		Description string    `json:"description" validate:"required,notblank,max=200"`
		Date        time.Time `json:"date"`
	}

	// MemberPatch carries the fields of a partial member update. Nil means unchanged.
	MemberPatch struct {
		Name         *string `json:"name,omitempty"`
		Contribution *Amount `json:"contribution,omitempty"`
	}

	// ExpensePatch carries the fields of a partial expense update. Nil means unchanged.
	ExpensePatch struct {
		Amount      *Amount    `json:"amount,omitempty"`
		Category    *string    `json:"category,omitempty"`
		Description *string    `json:"description,omitempty"`
		Date        *time.Time `json:"date,omitempty"`
	}
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidBackup   = errors.New("invalid backup")
	ErrInvalidCycleKey = errors.New("invalid cycle key")
)

// Categories is the fixed list offered when adding an expense.
var Categories = []string{
	"Groceries",
	"Vegetables",
	"Milk/Dairy",
	"Utilities",
	"Medical",
	"Entertainment",
	"Dining Out",
	"Transportation",
	"Other",
}

// CanonicalCategory matches name against Categories ignoring case and surrounding
// whitespace, returning the canonical spelling.
func CanonicalCategory(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, c := range Categories {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return name, false
}

// IsKnownCategory reports whether name is one of Categories.
func IsKnownCategory(name string) bool {
	_, ok := CanonicalCategory(name)
	return ok
}

// Input returns the member's editable fields.
func (m Member) Input() MemberInput {
	return MemberInput{Name: m.Name, Contribution: m.Contribution}
}

// Apply returns a copy of m with the non-nil fields of p set.
func (m Member) Apply(p MemberPatch) Member {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Contribution != nil {
		m.Contribution = *p.Contribution
	}
	return m
}

// Input returns the expense's editable fields.
func (e Expense) Input() ExpenseInput {
	return ExpenseInput{
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
	}
}

// Apply returns a copy of e with the non-nil fields of p set.
func (e Expense) Apply(p ExpensePatch) Expense {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	return e
}

// Normalize trims text fields.
func (in MemberInput) Normalize() MemberInput {
	in.Name = strings.TrimSpace(in.Name)
	return in
}

// Normalize trims text fields and canonicalizes known categories.
func (in ExpenseInput) Normalize() ExpenseInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Category, _ = CanonicalCategory(in.Category)
	return in
}

// Normalize trims text fields that are being set.
func (p MemberPatch) Normalize() MemberPatch {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	return p
}

// Normalize trims text fields that are being set and canonicalizes known categories.
func (p ExpensePatch) Normalize() ExpensePatch {
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		p.Description = &desc
	}
	if p.Category != nil {
		cat, _ := CanonicalCategory(*p.Category)
		p.Category = &cat
	}
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p MemberPatch) IsEmpty() bool {
	return p.Name == nil && p.Contribution == nil
}

// IsEmpty reports whether the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Description == nil && p.Date == nil
}
