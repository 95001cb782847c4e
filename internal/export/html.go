package export

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"kharch/internal/cycle"
	"kharch/internal/finance"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html.tmpl").
		Funcs(template.FuncMap{
			// Replaced per render; registered here so parsing succeeds.
			"money": func(int64) string { return "" },
			"date":  func(time.Time) string { return "" },
		}).
		ParseFS(templatesFS, "templates/report.html.tmpl"),
)

type reportData struct {
	Title        string
	Label        string
	Summary      finance.Summary
	ShowPrevious bool
	Generated    string
}

// WriteHTML renders the printable cycle report.
func (r *Renderer) WriteHTML(w io.Writer, c cycle.Cycle, s finance.Summary) error {
	tmpl, err := reportTemplate.Clone()
	if err != nil {
		return fmt.Errorf("clone report template: %w", err)
	}
	tmpl.Funcs(template.FuncMap{
		"money": r.FormatAmount,
		"date":  r.Date,
	})

	data := reportData{
		Title:        "Home Expense Report",
		Label:        c.Label(),
		Summary:      s,
		ShowPrevious: s.PreviousBalance != 0,
		Generated:    time.Now().In(r.Location).Format("02 Jan 2006 15:04"),
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
