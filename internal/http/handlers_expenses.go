package http

import (
	"net/http"

	"kharch/internal/core"
	klog "kharch/internal/log"
)

// handleListExpenses lists expenses newest first, optionally filtered by ?q=
// and limited to ?cycle=.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	c, err := s.optionalCycleParam(r)
	if err != nil {
		s.fail(w, r, "list_expenses", err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	expenses, err := s.ledger.SearchExpenses(ctx, r.URL.Query().Get("q"), c)
	if err != nil {
		s.fail(w, r, "list_expenses", err)
		return
	}
	NewResponse().JSON(expenses).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, "get_expense", err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	e, err := s.ledger.GetExpense(ctx, id)
	if err != nil {
		s.fail(w, r, "get_expense", err)
		return
	}
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, klog.OpCreate, err)
		return
	}
	in, err := s.expenseInput(req)
	if err != nil {
		s.fail(w, r, klog.OpCreate, err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	e, err := s.ledger.CreateExpense(ctx, in)
	if err != nil {
		s.fail(w, r, klog.OpCreate, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Expense created",
		klog.FieldExpenseID, e.ID,
		klog.FieldAmount, e.Amount.Int64(),
		"category", e.Category)
	NewResponse().Status(http.StatusCreated).JSON(e).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	var req expensePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	p, err := s.expensePatch(req)
	if err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	e, err := s.ledger.UpdateExpense(ctx, id, p)
	if err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Expense updated", klog.FieldExpenseID, id)
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, klog.OpDelete, err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	if err := s.ledger.DeleteExpense(ctx, id); err != nil {
		s.fail(w, r, klog.OpDelete, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Expense deleted", klog.FieldExpenseID, id)
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(core.Categories).Write(w)
}
