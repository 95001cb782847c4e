// Package sheets declares the outbound port of the spreadsheet mirror.
package sheets

import (
	"context"

	"kharch/internal/cycle"
	"kharch/internal/finance"
)

// ReportWriter publishes a cycle summary somewhere people can read it.
type ReportWriter interface {
	WriteCycleReport(ctx context.Context, c cycle.Cycle, s finance.Summary) error
}
