package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAreRegistered(t *testing.T) {
	m := New()
	m.RefreshSkipped.Inc()
	m.OrdersRejected.WithLabelValues("insufficient_funds").Add(2)

	if got := testutil.ToFloat64(m.RefreshSkipped); got != 1 {
		t.Fatalf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OrdersRejected.WithLabelValues("insufficient_funds")); got != 2 {
		t.Fatalf("rejected = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cloutmarket_refresh_skipped_total 1") {
		t.Fatalf("exposition missing skipped counter:\n%s", rec.Body.String())
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RefreshCycles.Inc()
	if got := testutil.ToFloat64(b.RefreshCycles); got != 0 {
		t.Fatalf("second registry saw %v cycles", got)
	}
}
