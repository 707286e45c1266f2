package core

import (
	"math"
	"testing"
	"time"
)

func TestComputeShares(t *testing.T) {
	shares := ComputeShares([]LabelTotal{
		{Label: "Rent", Total: 600},
		{Label: "Food", Total: 300},
		{Label: "Books", Total: 100},
		{Label: "Bar", Total: 100},
	})
	if len(shares) != 4 {
		t.Fatalf("got %d shares", len(shares))
	}
	wantOrder := []string{"Rent", "Food", "Bar", "Books"}
	for i, l := range wantOrder {
		if shares[i].Label != l {
			t.Fatalf("shares[%d] = %q, want %q", i, shares[i].Label, l)
		}
	}
	if math.Abs(shares[0].Ratio-0.6) > 1e-9 || math.Abs(shares[3].Ratio-0.1) > 1e-9 {
		t.Errorf("unexpected ratios: %+v", shares)
	}
}

func TestComputeSharesNonPositiveTotal(t *testing.T) {
	shares := ComputeShares([]LabelTotal{{Label: "Refund", Total: -50}, {Label: "Food", Total: 50}})
	for _, s := range shares {
		if s.Ratio != 0 {
			t.Errorf("expected zero ratio, got %+v", s)
		}
	}
	if got := ComputeShares(nil); len(got) != 0 {
		t.Errorf("expected empty shares, got %v", got)
	}
}

func TestWindow(t *testing.T) {
	w := MonthWindow(time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC), time.UTC)
	if !w.Since.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) || !w.Until.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window %+v", w)
	}
	if !w.Contains(w.Since) {
		t.Error("window should include its start")
	}
	if w.Contains(w.Until) {
		t.Error("window should exclude its end")
	}
	if !(Window{}).IsOpen() || !(Window{}).Contains(time.Now()) {
		t.Error("zero window should be open")
	}
}

func TestSumPeriods(t *testing.T) {
	if got := SumPeriods([]PeriodTotal{{"2024-01", 10}, {"2024-02", -3}}); got != 7 {
		t.Errorf("SumPeriods = %d", got)
	}
}
