package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kharch/internal/core"
	"kharch/internal/cycle"
)

const (
	maxBodyBytes    = 1 << 20
	maxRestoreBytes = 10 << 20
	maxCycleCount   = 36
)

// expenseRequest is the body of POST /api/expenses. Dates arrive as strings
// so bare YYYY-MM-DD values land in the ledger's zone.
type expenseRequest struct {
	Amount      core.Amount `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
}

type expensePatchRequest struct {
	Amount      *core.Amount `json:"amount"`
	Category    *string      `json:"category"`
	Description *string      `json:"description"`
	Date        *string      `json:"date"`
}

type previousBalanceRequest struct {
	PreviousBalance *core.Amount `json:"previousBalance"`
}

// decodeJSON reads a single JSON document of at most maxBodyBytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			return &core.ValidationError{Message: "amount must be a whole number"}
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &core.ValidationError{Message: "request body too large"}
		}
		return &core.ValidationError{Message: "invalid JSON body"}
	}
	if dec.More() {
		return &core.ValidationError{Message: "invalid JSON body"}
	}
	return nil
}

// pathID parses the {id} wildcard.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fieldError("id", "id must be a positive integer")
	}
	return id, nil
}

// expenseInput converts a create request, defaulting a missing date to today.
func (s *Server) expenseInput(req expenseRequest) (core.ExpenseInput, error) {
	in := core.ExpenseInput{
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
	}
	if strings.TrimSpace(req.Date) == "" {
		in.Date = cycle.Midday(s.ledger.Now())
		return in, nil
	}
	d, err := s.ledger.ParseDate(req.Date)
	if err != nil {
		return core.ExpenseInput{}, fieldError("date", "date must be YYYY-MM-DD or RFC 3339")
	}
	in.Date = d
	return in, nil
}

func (s *Server) expensePatch(req expensePatchRequest) (core.ExpensePatch, error) {
	p := core.ExpensePatch{
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
	}
	if req.Date != nil {
		d, err := s.ledger.ParseDate(*req.Date)
		if err != nil {
			return core.ExpensePatch{}, fieldError("date", "date must be YYYY-MM-DD or RFC 3339")
		}
		p.Date = &d
	}
	return p, nil
}

// cycleParam resolves ?cycle=, the current cycle when absent.
func (s *Server) cycleParam(r *http.Request) (cycle.Cycle, error) {
	c, err := s.ledger.ParseCycle(r.URL.Query().Get("cycle"))
	if err != nil {
		return cycle.Cycle{}, fieldError("cycle", "unknown cycle %q", r.URL.Query().Get("cycle"))
	}
	return c, nil
}

// optionalCycleParam is like cycleParam but returns nil when ?cycle= is absent.
func (s *Server) optionalCycleParam(r *http.Request) (*cycle.Cycle, error) {
	if strings.TrimSpace(r.URL.Query().Get("cycle")) == "" {
		return nil, nil
	}
	c, err := s.cycleParam(r)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// previousBalanceParam reads ?previousBalance=. Absent means use the stored value.
func previousBalanceParam(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("previousBalance"))
	if raw == "" {
		return nil, nil
	}
	v, err := core.ParseAmount(raw)
	if err != nil {
		return nil, fieldError("previousBalance", "previousBalance must be a whole number")
	}
	return &v, nil
}

// countParam reads ?count=, falling back to def.
func countParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxCycleCount {
		return 0, fieldError("count", "count must be between 1 and %d", maxCycleCount)
	}
	return n, nil
}

// cycleView is the JSON form of a cycle.
type cycleView struct {
	Key        string    `json:"key"`
	Label      string    `json:"label"`
	ShortLabel string    `json:"shortLabel"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Days       int       `json:"days"`
	IsCurrent  bool      `json:"isCurrent"`
}

func newCycleView(c cycle.Cycle) cycleView {
	return cycleView{
		Key:        c.Key(),
		Label:      c.Label(),
		ShortLabel: c.ShortLabel(),
		Start:      c.Start,
		End:        c.End,
		Days:       c.Days(),
		IsCurrent:  c.IsCurrent,
	}
}

// limitRestoreBody caps the size of an uploaded backup.
func limitRestoreBody(w http.ResponseWriter, r *http.Request) io.Reader {
	return http.MaxBytesReader(w, r.Body, maxRestoreBytes)
}
