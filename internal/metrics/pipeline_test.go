package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(fenceSignals.WithLabelValues("cancelled"))
	RecordFenceSignal("cancelled")
	RecordFenceSignal("cancelled")
	if got := testutil.ToFloat64(fenceSignals.WithLabelValues("cancelled")) - before; got != 2 {
		t.Errorf("cancelled signals delta = %v, want 2", got)
	}

	RecordSubmission("fdhw-test", "skipped")
	if got := testutil.ToFloat64(submissions.WithLabelValues("fdhw-test", "skipped")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	RecordDispatch("fdhw-test", "resume")
	DeleteNode("fdhw-test")
	if got := testutil.CollectAndCount(submissions); got != 0 {
		t.Errorf("submissions series after DeleteNode = %d", got)
	}

	if Totals()["fence_cancelled"] < 2 {
		t.Errorf("Totals = %v", Totals())
	}
}

type fixedSampler struct{ g Gauges }

func (f fixedSampler) Gauges() Gauges { return f.g }

func TestCollectorExportsGauges(t *testing.T) {
	s := fixedSampler{Gauges{PendingUnits: 3, InFlightRequests: 2, OutstandingFences: 9}}
	c := NewCollector(func() Sampler { return s }, time.Hour)
	c.Start(context.Background())
	defer c.Stop()

	deadline := time.After(time.Second)
	for testutil.ToFloat64(outstandingFences) != 9 {
		select {
		case <-deadline:
			t.Fatal("gauges not exported")
		case <-time.After(time.Millisecond):
		}
	}
	if got := testutil.ToFloat64(pendingUnits); got != 3 {
		t.Errorf("pending_units = %v, want 3", got)
	}
	if got := testutil.ToFloat64(inflightRequests); got != 2 {
		t.Errorf("in_flight = %v, want 2", got)
	}
}

func TestCollectorNilSampler(_ *testing.T) {
	c := NewCollector(func() Sampler { return nil }, time.Millisecond)
	c.Start(context.Background())
	time.Sleep(3 * time.Millisecond)
	c.Stop()
	c.Stop()
}

func TestHandlerServesMetrics(t *testing.T) {
	RecordFlush()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "camgraph_pipeline_flushes_total") {
		t.Error("flush counter missing from /metrics output")
	}
}
