package core

import (
	"sort"
	"time"
)

// PeriodTotal is the summed amount of one time bucket.
type PeriodTotal struct {
	Period string
	Total  int64
}

// LabelTotal is the summed amount of one category or item.
type LabelTotal struct {
	Label string
	Total int64
}

// Share is a LabelTotal together with its fraction of the grand total.
type Share struct {
	Label string
	Total int64
	Ratio float64
}

// Window restricts a query to [Since, Until). Zero bounds are open.
type Window struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// IsOpen reports whether neither bound is set.
func (w Window) IsOpen() bool {
	return w.Since.IsZero() && w.Until.IsZero()
}

// MonthWindow returns the calendar month containing t, in loc.
func MonthWindow(t time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return Window{Since: start, Until: start.AddDate(0, 1, 0)}
}

// ShareQuery selects the transactions grouped for a ratio breakdown.
type ShareQuery struct {
	User      string
	Dimension Dimension
	Window    Window
}

// SortLabelTotals orders totals by descending amount, then label.
func SortLabelTotals(totals []LabelTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].Label < totals[j].Label
	})
}

// ComputeShares turns grouped totals into ratios of their sum. The ratio is
// zero for every entry when the sum is not positive.
func ComputeShares(totals []LabelTotal) []Share {
	var grand int64
	for _, t := range totals {
		grand += t.Total
	}
	sorted := append([]LabelTotal(nil), totals...)
	SortLabelTotals(sorted)

	shares := make([]Share, 0, len(sorted))
	for _, t := range sorted {
		s := Share{Label: t.Label, Total: t.Total}
		if grand > 0 {
			s.Ratio = float64(t.Total) / float64(grand)
		}
		shares = append(shares, s)
	}
	return shares
}

// SumPeriods returns the total across all periods.
func SumPeriods(periods []PeriodTotal) int64 {
	var sum int64
	for _, p := range periods {
		sum += p.Total
	}
	return sum
}
