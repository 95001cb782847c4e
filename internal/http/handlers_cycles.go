package http

import (
	"net/http"

	klog "kharch/internal/log"
)

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	n, err := countParam(r, s.history)
	if err != nil {
		s.fail(w, r, "list_cycles", err)
		return
	}
	cycles := s.ledger.RecentCycles(n)
	views := make([]cycleView, 0, len(cycles))
	for _, c := range cycles {
		views = append(views, newCycleView(c))
	}
	NewResponse().JSON(views).Write(w)
}

func (s *Server) handleCurrentCycle(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(newCycleView(s.ledger.CurrentCycle())).Write(w)
}

// handleDashboard returns the aggregated summary of ?cycle=. A
// ?previousBalance= value overrides the stored carry-forward without saving it.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	c, err := s.cycleParam(r)
	if err != nil {
		s.fail(w, r, "dashboard", err)
		return
	}
	override, err := previousBalanceParam(r)
	if err != nil {
		s.fail(w, r, "dashboard", err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	summary, err := s.ledger.Summary(ctx, c, override)
	if err != nil {
		s.fail(w, r, "dashboard", err)
		return
	}
	NewResponse().JSON(summary).Write(w)
}

func (s *Server) handleGetCycleSummary(w http.ResponseWriter, r *http.Request) {
	c, err := s.ledger.ParseCycle(r.PathValue("key"))
	if err != nil {
		s.fail(w, r, "get_cycle_summary", err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	cs, err := s.ledger.CycleSummary(ctx, c)
	if err != nil {
		s.fail(w, r, "get_cycle_summary", err)
		return
	}
	NewResponse().JSON(cs).Write(w)
}

// handlePutCycleSummary saves the balance carried into a cycle.
func (s *Server) handlePutCycleSummary(w http.ResponseWriter, r *http.Request) {
	c, err := s.ledger.ParseCycle(r.PathValue("key"))
	if err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	var req previousBalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	if req.PreviousBalance == nil {
		s.fail(w, r, klog.OpUpdate, fieldError("previousBalance", "previousBalance is required"))
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	cs, err := s.ledger.SetPreviousBalance(ctx, c, req.PreviousBalance.Int64())
	if err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Previous balance saved",
		klog.FieldCycleKey, cs.CycleKey,
		klog.FieldAmount, cs.PreviousBalance)
	NewResponse().JSON(cs).Write(w)
}
