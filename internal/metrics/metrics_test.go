package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/numbering"
)

func TestNumberingCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Attempt(numbering.KindInbound)
	m.Attempt(numbering.KindInbound)
	m.Conflict(numbering.KindInbound)
	m.Exhausted(numbering.KindRequest)

	if got := testutil.ToFloat64(m.numberAttempts.WithLabelValues("BAST-M")); got != 2 {
		t.Fatalf("expected attempts=2, got %f", got)
	}
	if got := testutil.ToFloat64(m.numberConflicts.WithLabelValues("BAST-M")); got != 1 {
		t.Fatalf("expected conflicts=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.numberExhausted.WithLabelValues("SPB")); got != 1 {
		t.Fatalf("expected exhausted=1, got %f", got)
	}
}

func TestMovementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveMovements([]domain.LedgerEntry{
		{Direction: domain.DirectionIn, QtyIn: 5, SourceType: domain.SourceInbound},
		{Direction: domain.DirectionOut, QtyOut: 3, SourceType: domain.SourceOutbound},
		{Direction: domain.DirectionIn, QtyIn: 3, SourceType: domain.SourceOutbound, Correction: true},
	})

	if got := testutil.ToFloat64(m.movements.WithLabelValues("IN", "bast_keluar", "true")); got != 1 {
		t.Fatalf("expected one correction entry, got %f", got)
	}
	if got := testutil.ToFloat64(m.movementQty.WithLabelValues("in")); got != 8 {
		t.Fatalf("expected 8 units in, got %f", got)
	}
	if got := testutil.ToFloat64(m.movementQty.WithLabelValues("out")); got != 3 {
		t.Fatalf("expected 3 units out, got %f", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Attempt(numbering.KindRequest)
	m.ObserveMovements([]domain.LedgerEntry{{Direction: domain.DirectionIn, QtyIn: 1}})
	m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)

	unregistered := New(nil)
	unregistered.Conflict(numbering.KindOpname)
	unregistered.ObserveHTTP("GET", "", 500, time.Second)
}
