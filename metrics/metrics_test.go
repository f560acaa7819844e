package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledNoIncrement(t *testing.T) {
	m := New(Config{Enabled: false})
	m.Inc(RedeemSuccess)

	if got := m.Value(RedeemSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(GateAllowed)
	m.Observe(GateLatency, time.Millisecond)
	if m.Enabled() || m.Value(GateAllowed) != 0 {
		t.Fatal("nil metrics must be inert")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("nil metrics must produce an empty snapshot")
	}
}

func TestConcurrentIncrementSafe(t *testing.T) {
	m := New(Config{Enabled: true})

	const goroutines = 32
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(GateAllowed)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(GateAllowed); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestHistogramBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})

	observations := []time.Duration{
		100 * time.Microsecond,
		800 * time.Microsecond,
		3 * time.Millisecond,
		8 * time.Millisecond,
		30 * time.Millisecond,
		80 * time.Millisecond,
		300 * time.Millisecond,
		2 * time.Second,
	}
	for _, d := range observations {
		m.Observe(GateLatency, d)
	}
	m.Observe(RedeemSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[GateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d: expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Counters[GateLatency]; ok {
		t.Fatal("histogram slots must not appear as counters")
	}
}

func TestHistogramsRequireOptIn(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Observe(GateLatency, time.Millisecond)
	if len(m.Snapshot().Histograms) != 0 {
		t.Fatal("expected no histograms without EnableLatencyHistograms")
	}
}
