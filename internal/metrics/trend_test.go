package metrics

import (
	"testing"
	"time"
)

func TestCompareTrendDoubling(t *testing.T) {
	trend := CompareTrend(100, 50)
	if trend.DeltaPercent != 100 {
		t.Fatalf("expected +100%%, got %.2f", trend.DeltaPercent)
	}
	if trend.Direction != DirectionUp {
		t.Fatalf("expected up, got %s", trend.Direction)
	}
	if trend.NewGrowth {
		t.Fatal("doubling from a non-zero base is not new growth")
	}
}

func TestCompareTrendHalving(t *testing.T) {
	trend := CompareTrend(50, 100)
	if trend.DeltaPercent != -50 {
		t.Fatalf("expected -50%%, got %.2f", trend.DeltaPercent)
	}
	if trend.Direction != DirectionDown {
		t.Fatalf("expected down, got %s", trend.Direction)
	}
}

func TestCompareTrendBothZero(t *testing.T) {
	trend := CompareTrend(0, 0)
	if trend.Direction != DirectionFlat {
		t.Fatalf("expected flat, got %s", trend.Direction)
	}
	if trend.DeltaPercent != 0 || trend.NewGrowth {
		t.Fatalf("expected zero delta without new growth, got %+v", trend)
	}
}

func TestCompareTrendZeroPrior(t *testing.T) {
	trend := CompareTrend(10, 0)
	if !trend.NewGrowth {
		t.Fatal("expected new growth sentinel when prior is zero")
	}
	if trend.Direction != DirectionUp {
		t.Fatalf("expected up, got %s", trend.Direction)
	}
	if trend.DeltaPercent != 0 {
		t.Fatalf("delta must stay zero for new growth, got %.2f", trend.DeltaPercent)
	}
}

func TestCompareTrendRoundsToTwoDecimals(t *testing.T) {
	trend := CompareTrend(100, 30)
	if trend.DeltaPercent != 233.33 {
		t.Fatalf("expected 233.33, got %.4f", trend.DeltaPercent)
	}
}

func TestPriorWindowAlignsDaily(t *testing.T) {
	start := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	priorStart, priorEnd := PriorWindow(GranularityDaily, start, end)
	if !priorEnd.Equal(start) {
		t.Fatalf("prior window must end at the current start, got %s", priorEnd)
	}
	if !priorStart.Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected prior start 2025-06-02, got %s", priorStart)
	}
}

func TestPriorWindowAlignsMonthly(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	priorStart, priorEnd := PriorWindow(GranularityMonthly, start, end)
	if !priorEnd.Equal(start) {
		t.Fatalf("prior window must end at the current start, got %s", priorEnd)
	}
	// Three calendar months back, not 3x30 days.
	if !priorStart.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected prior start 2024-12-01, got %s", priorStart)
	}
}
