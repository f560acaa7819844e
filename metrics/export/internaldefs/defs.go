package internaldefs

import "github.com/MrEthical07/magicgate/metrics"

type CounterDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: metrics.RedeemSuccess, Name: "magicgate_redeem_success_total", Help: "Magic link tokens redeemed."},
	{ID: metrics.RedeemMalformed, Name: "magicgate_redeem_malformed_total", Help: "Redemptions rejected by the token syntax check."},
	{ID: metrics.RedeemUnknown, Name: "magicgate_redeem_unknown_total", Help: "Redemptions of unknown, consumed or unreachable tokens."},
	{ID: metrics.SessionIssued, Name: "magicgate_session_issued_total", Help: "Session credentials issued."},
	{ID: metrics.SessionIssueFailure, Name: "magicgate_session_issue_failure_total", Help: "Session credential issuance failures."},
	{ID: metrics.Logout, Name: "magicgate_logout_total", Help: "Logout requests."},
	{ID: metrics.GateAllowed, Name: "magicgate_gate_allowed_total", Help: "Gated requests admitted with a valid session."},
	{ID: metrics.GateBypassed, Name: "magicgate_gate_bypassed_total", Help: "Requests to public paths or static assets."},
	{ID: metrics.GateRedirected, Name: "magicgate_gate_redirected_total", Help: "Gated requests redirected to the auth entry point."},
	{ID: metrics.RedeemThrottled, Name: "magicgate_redeem_throttled_total", Help: "Redemptions refused after too many failures from one client."},
}

var HistogramDefs = []HistogramDef{
	{ID: metrics.GateLatency, Name: "magicgate_gate_latency_seconds", Help: "Access gate decision latency."},
	{ID: metrics.RedeemLatency, Name: "magicgate_redeem_latency_seconds", Help: "Token redemption latency including store round trips."},
}

var HistogramBounds = []string{
	"0.0005",
	"0.001",
	"0.005",
	"0.01",
	"0.05",
	"0.1",
	"0.5",
	"+Inf",
}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// HistogramBoundSuffix is HistogramBounds spelled for use inside instrument
// names.
var HistogramBoundSuffix = []string{
	"0_0005",
	"0_001",
	"0_005",
	"0_01",
	"0_05",
	"0_1",
	"0_5",
	"inf",
}
