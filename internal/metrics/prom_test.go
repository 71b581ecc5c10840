package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")
	RecordRequest("chat", "llama3.1", "success", 100*time.Millisecond)
	AddFragments("llama3.1", 2)
	AddFragments("llama3.1", 0)
	RecordUpstreamError("connect")
	RecordModelTokens("llama3.1", "in", 10)
	RecordModelTokens("llama3.1", "out", 0)
	StreamStart()
	StreamStart()
	StreamEnd()

	if v := testutil.ToFloat64(requests.WithLabelValues("chat", "llama3.1", "success")); v != 1 {
		t.Fatalf("requests: %v", v)
	}
	if v := testutil.ToFloat64(fragments.WithLabelValues("llama3.1")); v != 2 {
		t.Fatalf("fragments: %v", v)
	}
	if v := testutil.ToFloat64(upstreamErrors.WithLabelValues("connect")); v != 1 {
		t.Fatalf("upstream errors: %v", v)
	}
	if v := testutil.ToFloat64(modelTokens.WithLabelValues("in", "llama3.1")); v != 10 {
		t.Fatalf("model tokens: %v", v)
	}
	if v := testutil.ToFloat64(streamsInflight); v != 1 {
		t.Fatalf("inflight: %v", v)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
	if n := testutil.CollectAndCount(requestDuration, "chatrelay_request_duration_seconds"); n != 1 {
		t.Fatalf("duration series: %d", n)
	}
	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP chatrelay_upstream_errors_total Upstream failures by kind
# TYPE chatrelay_upstream_errors_total counter
chatrelay_upstream_errors_total{kind="connect"} 1
`), "chatrelay_upstream_errors_total"); err != nil {
		t.Fatalf("gather: %v", err)
	}
	StreamEnd()
}

func TestModelLabels(t *testing.T) {
	labels := NewModelLabels("llama3.1", "", "phi3")
	cases := map[string]string{
		"llama3.1":       "llama3.1",
		"phi3":           "phi3",
		"":               OtherModel,
		"made-up-123456": OtherModel,
	}
	for in, want := range cases {
		if got := labels.Label(in); got != want {
			t.Fatalf("Label(%q) = %q, want %q", in, got, want)
		}
	}
	var zero ModelLabels
	if got := zero.Label("llama3.1"); got != OtherModel {
		t.Fatalf("zero set should report other, got %q", got)
	}
}
