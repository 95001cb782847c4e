package http

import (
	"bytes"
	"net/http"

	"kharch/internal/cycle"
	"kharch/internal/export"
	"kharch/internal/finance"
	klog "kharch/internal/log"
)

// reportSummary resolves the cycle and summary shared by both report formats.
func (s *Server) reportSummary(r *http.Request) (cycle.Cycle, finance.Summary, error) {
	c, err := s.cycleParam(r)
	if err != nil {
		return cycle.Cycle{}, finance.Summary{}, err
	}
	override, err := previousBalanceParam(r)
	if err != nil {
		return cycle.Cycle{}, finance.Summary{}, err
	}
	ctx, cancel := storeContext(r)
	defer cancel()
	summary, err := s.ledger.Summary(ctx, c, override)
	if err != nil {
		return cycle.Cycle{}, finance.Summary{}, err
	}
	return c, summary, nil
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	c, summary, err := s.reportSummary(r)
	if err != nil {
		s.fail(w, r, klog.OpExport, err)
		return
	}
	var buf bytes.Buffer
	if err := s.renderer.WriteCSV(&buf, c, summary); err != nil {
		s.fail(w, r, klog.OpExport, err)
		return
	}
	NewResponse().
		Body("text/csv; charset=utf-8", buf.Bytes()).
		Attachment(export.CSVFilename(c)).
		Write(w)
}

func (s *Server) handleReportPrint(w http.ResponseWriter, r *http.Request) {
	c, summary, err := s.reportSummary(r)
	if err != nil {
		s.fail(w, r, klog.OpExport, err)
		return
	}
	var buf bytes.Buffer
	if err := s.renderer.WriteHTML(&buf, c, summary); err != nil {
		s.fail(w, r, klog.OpExport, err)
		return
	}
	NewResponse().Body("text/html; charset=utf-8", buf.Bytes()).Write(w)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storeContext(r)
	defer cancel()

	b, err := s.ledger.Backup(ctx)
	if err != nil {
		s.fail(w, r, klog.OpExport, err)
		return
	}
	var buf bytes.Buffer
	if err := export.EncodeBackup(&buf, b); err != nil {
		s.fail(w, r, klog.OpExport, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Backup exported",
		"members", len(b.Members),
		"expenses", len(b.Expenses))
	NewResponse().
		Body("application/json; charset=utf-8", buf.Bytes()).
		Attachment(export.BackupFilename(s.ledger.Now())).
		Write(w)
}

// handleRestore replaces the whole ledger with the uploaded backup. Nothing
// is written unless every record in the file is valid.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storeContext(r)
	defer cancel()

	res, err := s.ledger.Restore(ctx, limitRestoreBody(w, r))
	if err != nil {
		s.fail(w, r, klog.OpRestore, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Ledger restored",
		"members", res.Members,
		"expenses", res.Expenses)
	NewResponse().JSON(res).Write(w)
}
