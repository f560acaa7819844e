package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/magicgate/metrics"
)

type fakeSource struct {
	snapshot metrics.Snapshot
	dropped  uint64
}

func (f fakeSource) Snapshot() metrics.Snapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64       { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: metrics.New(metrics.Config{}).Snapshot()})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistograms(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: metrics.Snapshot{
			Counters: map[metrics.MetricID]uint64{
				metrics.RedeemSuccess:  7,
				metrics.GateRedirected: 3,
			},
			Histograms: map[metrics.MetricID][]uint64{
				metrics.GateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"magicgate_redeem_success_total 7",
		"magicgate_gate_redirected_total 3",
		"magicgate_gate_latency_seconds_bucket{le=\"0.0005\"} 1",
		"magicgate_gate_latency_seconds_bucket{le=\"+Inf\"} 36",
		"magicgate_gate_latency_seconds_count 36",
		"magicgate_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "magicgate_redeem_latency_seconds") {
		t.Fatalf("histogram absent from snapshot must not be rendered, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	m := metrics.New(metrics.Config{Enabled: true})
	m.Inc(metrics.Logout)
	exp := NewExporter(fakeSource{snapshot: m.Snapshot()})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "magicgate_logout_total 1") {
		t.Fatalf("expected logout counter, got:\n%s", rec.Body.String())
	}
}
