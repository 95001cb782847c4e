package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"kharch/internal/cycle"
	"kharch/internal/finance"
)

// WriteCSV writes the cycle report: a header block with the cycle and its
// totals, a blank line, then one Date,Description,Amount row per expense.
// Descriptions are always quoted; amounts are plain integers so the sheet
// stays machine readable.
func (r *Renderer) WriteCSV(w io.Writer, c cycle.Cycle, s finance.Summary) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("Home Expense Report\n")
	bw.WriteString("Cycle," + c.Label() + "\n\n")

	bw.WriteString("Total Fund," + strconv.FormatInt(s.Fund, 10) + "\n")
	bw.WriteString("Total Spent," + strconv.FormatInt(s.Spent, 10) + "\n")
	bw.WriteString("Balance," + strconv.FormatInt(s.Balance, 10) + "\n\n")

	bw.WriteString("Date,Description,Amount\n")
	for _, e := range s.Expenses {
		bw.WriteString(e.Date.In(c.Start.Location()).Format("02-01-2006"))
		bw.WriteString(",")
		bw.WriteString(quote(e.Description))
		bw.WriteString(",")
		bw.WriteString(strconv.FormatInt(int64(e.Amount), 10))
		bw.WriteString("\n")
	}

	return bw.Flush()
}

// CSVFilename names the download, e.g. "Home-Expense-Jan11-Feb10-2025.csv".
func CSVFilename(c cycle.Cycle) string {
	return "Home-Expense-" + c.ShortLabel() + ".csv"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
