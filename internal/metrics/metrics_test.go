package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := unitsTotal
	Init()
	if unitsTotal != first {
		t.Fatal("Init() replaced collectors on second call")
	}
}

func TestObserveUnitAndFault(t *testing.T) {
	before := testutil.ToFloat64(unitsTotalFor("retry", OutcomeFaulted))
	ObserveUnit("retry", OutcomeFaulted)
	ObserveFault("timeout")
	if got := testutil.ToFloat64(unitsTotalFor("retry", OutcomeFaulted)); got != before+1 {
		t.Errorf("expected units counter %f, got %f", before+1, got)
	}
	if got := testutil.ToFloat64(faultsTotal.WithLabelValues("timeout")); got < 1 {
		t.Errorf("expected timeout faults >= 1, got %f", got)
	}
}

func TestGaugesMoveBothWays(t *testing.T) {
	IncInflight()
	IncInflight()
	DecInflight()
	IncActiveWorkers()
	DecActiveWorkers()
	AddVerdictsStored(0)
	AddVerdictsStored(3)
	ObserveFetch(OutcomeSucceeded, 150*time.Millisecond)
	ObserveCheckpointWrite(true)
	ObserveCheckpointWrite(false)
	ObserveRun("crawl", "completed")

	if got := testutil.ToFloat64(inflightUnits); got < 1 {
		t.Errorf("expected inflight gauge >= 1, got %f", got)
	}
	if got := testutil.ToFloat64(checkpointWritesTotal.WithLabelValues("error")); got < 1 {
		t.Errorf("expected checkpoint error counter >= 1, got %f", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveUnit("fresh", OutcomeSucceeded)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "verdict_units_total") {
		t.Fatal("expected verdict_units_total in exposition")
	}
}

func unitsTotalFor(origin, outcome string) prometheus.Counter {
	Init()
	return unitsTotal.WithLabelValues(origin, outcome)
}
