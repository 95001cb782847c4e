package core

import "time"

// CycleSummary remembers the carried-over balance the operator entered for a
// cycle, together with the totals computed when it was saved.
type CycleSummary struct {
	CycleKey        string    `json:"cycleKey"`
	PreviousBalance int64     `json:"previousBalance"`
	Fund            int64     `json:"fund"`
	Spent           int64     `json:"spent"`
	Balance         int64     `json:"balance"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
