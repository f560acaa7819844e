package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrEthical07/magicgate/internal/config"
	"github.com/MrEthical07/magicgate/session"
)

const e2eToken = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

func testConfig(redisAddr string) *config.Config {
	return &config.Config{
		AppEnv:         "development",
		AppPort:        "0",
		JWTSecret:      "app-test-secret-app-test-secret!",
		SessionTTL:     60 * 24 * time.Hour,
		RedisURL:       "redis://" + redisAddr,
		RedisToken:     "upstash-token",
		RedisTimeout:   time.Second,
		RedisKeyPrefix: "magic_link_token:",
		RedeemAtomic:   true,
		MetricsAddr:    "127.0.0.1:0",
		AuditBuffer:    16,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func call(t *testing.T, h http.Handler, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestEndToEndVerifySessionLogout(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("upstash-token")
	mr.Set("magic_link_token:"+e2eToken, `{"appId":"app_42"}`)

	a := newTestApp(t, testConfig(mr.Addr()))
	h := a.Handler()

	rec := call(t, h, http.MethodPost, "/api/auth", `{"action":"verify","token":"`+e2eToken+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if body := jsonBody(t, rec); body["success"] != true || body["appId"] != "app_42" {
		t.Fatalf("unexpected verify body %v", body)
	}
	if mr.Exists("magic_link_token:" + e2eToken) {
		t.Fatal("expected token to be consumed")
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if cookie.Secure {
		t.Fatal("cookie must not be Secure outside production")
	}

	rec = call(t, h, http.MethodGet, "/api/auth", "", cookie)
	body := jsonBody(t, rec)
	if body["authenticated"] != true {
		t.Fatalf("expected authenticated, got %v", body)
	}

	rec = call(t, h, http.MethodGet, "/", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("home with session: expected 200, got %d", rec.Code)
	}

	rec = call(t, h, http.MethodPost, "/api/auth", `{"action":"logout"}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}

	rec = call(t, h, http.MethodPost, "/api/auth", `{"action":"session"}`, nil)
	if body := jsonBody(t, rec); body["authenticated"] != false || body["session"] != nil {
		t.Fatalf("expected unauthenticated after logout, got %v", body)
	}

	rec = call(t, h, http.MethodPost, "/api/auth", `{"action":"verify","token":"`+e2eToken+`"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused token: expected 401, got %d", rec.Code)
	}
}

func TestMetricsExposedAfterTraffic(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("upstash-token")

	cfg := testConfig(mr.Addr())
	a := newTestApp(t, cfg)

	_ = call(t, a.Handler(), http.MethodGet, "/", "", nil)
	_ = call(t, a.Handler(), http.MethodPost, "/api/auth", `{"action":"verify","token":"nope"}`, nil)

	if a.metricsServer == nil {
		t.Fatal("expected metrics listener when METRICS_ADDR is set")
	}
	rec := call(t, a.metricsServer.Handler, http.MethodGet, "/metrics", "", nil)
	text := rec.Body.String()
	for _, want := range []string{
		"magicgate_gate_redirected_total 1",
		"magicgate_redeem_malformed_total 1",
		"magicgate_audit_dropped_total 0",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, text)
		}
	}
}

func TestStartsWithMissingConfiguration(t *testing.T) {
	a := newTestApp(t, &config.Config{
		AppPort:      "0",
		SessionTTL:   time.Hour,
		RedisTimeout: time.Second,
		RedeemAtomic: true,
	})
	h := a.Handler()

	if a.metricsServer != nil {
		t.Fatal("metrics listener must be off without METRICS_ADDR")
	}

	body := jsonBody(t, call(t, h, http.MethodGet, "/api/health", "", nil))
	if body["status"] != "unhealthy" {
		t.Fatalf("expected unhealthy, got %v", body)
	}
	missing, _ := body["missingEnvVars"].([]any)
	if len(missing) != 3 {
		t.Fatalf("expected three missing keys, got %v", body["missingEnvVars"])
	}

	rec := call(t, h, http.MethodPost, "/api/auth", `{"action":"verify","token":"`+e2eToken+`"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("verify without secret: expected 500, got %d", rec.Code)
	}

	rec = call(t, h, http.MethodGet, "/", "", &http.Cookie{Name: session.DefaultCookieName, Value: "a.b.c"})
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("gate without secret: expected 307, got %d", rec.Code)
	}
}

func TestMissingSecretKeepsToken(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("upstash-token")
	mr.Set("magic_link_token:"+e2eToken, `{"appId":"app_42"}`)

	cfg := testConfig(mr.Addr())
	cfg.JWTSecret = ""
	h := newTestApp(t, cfg).Handler()

	rec := call(t, h, http.MethodPost, "/api/auth", `{"action":"verify","token":"`+e2eToken+`"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without a signing secret, got %d", rec.Code)
	}
	rec = call(t, h, http.MethodGet, "/auth/magic-link?token="+e2eToken, "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("magic link without a signing secret: expected 500, got %d", rec.Code)
	}
	if !mr.Exists("magic_link_token:" + e2eToken) {
		t.Fatal("the token must survive until a credential can be issued")
	}
}

func TestCORSWrapsRouterWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr.Addr())
	cfg.RedisToken = ""
	cfg.CORSAllowedOrigins = []string{"https://app.example"}
	a := newTestApp(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}
}

func TestFailedRedemptionsAreThrottled(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("upstash-token")
	mr.Set("magic_link_token:"+e2eToken, `{"appId":"app_42"}`)

	cfg := testConfig(mr.Addr())
	cfg.RedeemMaxFailures = 2
	cfg.RedeemFailureWindow = time.Minute
	h := newTestApp(t, cfg).Handler()

	for i, unknown := range []string{
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000002",
	} {
		rec := call(t, h, http.MethodPost, "/api/auth", `{"action":"verify","token":"`+unknown+`"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}

	rec := call(t, h, http.MethodPost, "/api/auth", `{"action":"verify","token":"`+e2eToken+`"}`, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the budget is spent, got %d", rec.Code)
	}
	if !mr.Exists("magic_link_token:" + e2eToken) {
		t.Fatal("a throttled request must not consume the token")
	}

	rec = call(t, h, http.MethodGet, "/auth/magic-link?token="+e2eToken, "", nil)
	if loc := rec.Header().Get("Location"); loc != "/auth?error=rate_limited" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func verifyFrom(t *testing.T, h http.Handler, remoteAddr, forwardedFor, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{"action":"verify","token":"`+token+`"}`))
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestThrottleIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("upstash-token")
	mr.Set("magic_link_token:"+e2eToken, `{"appId":"app_42"}`)

	cfg := testConfig(mr.Addr())
	cfg.RedeemMaxFailures = 2
	cfg.RedeemFailureWindow = time.Minute
	h := newTestApp(t, cfg).Handler()

	for i := 0; i < 2; i++ {
		unknown := "00000000-0000-0000-0000-00000000000" + string(rune('1'+i))
		if code := verifyFrom(t, h, "198.51.100.9:4000", "203.0.113.7", unknown); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, code)
		}
	}

	if code := verifyFrom(t, h, "203.0.113.7:5000", "", e2eToken); code != http.StatusOK {
		t.Fatalf("a client that never failed must redeem, got %d", code)
	}

	code := verifyFrom(t, h, "198.51.100.9:4000", "192.0.2.99", "00000000-0000-0000-0000-000000000009")
	if code != http.StatusTooManyRequests {
		t.Fatalf("rotating the forwarded header must not reset the budget, got %d", code)
	}
}

func TestThrottleHonoursForwardedForFromTrustedProxy(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("upstash-token")
	mr.Set("magic_link_token:"+e2eToken, `{"appId":"app_42"}`)

	cfg := testConfig(mr.Addr())
	cfg.RedeemMaxFailures = 2
	cfg.RedeemFailureWindow = time.Minute
	cfg.TrustedProxies = []string{"198.51.100.0/24"}
	h := newTestApp(t, cfg).Handler()

	for i := 0; i < 2; i++ {
		unknown := "00000000-0000-0000-0000-00000000000" + string(rune('1'+i))
		if code := verifyFrom(t, h, "198.51.100.9:4000", "203.0.113.7", unknown); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, code)
		}
	}

	if code := verifyFrom(t, h, "198.51.100.9:4000", "203.0.113.8", e2eToken); code != http.StatusOK {
		t.Fatalf("another client behind the proxy must redeem, got %d", code)
	}
	if code := verifyFrom(t, h, "203.0.113.7:5000", "", "00000000-0000-0000-0000-000000000009"); code != http.StatusTooManyRequests {
		t.Fatalf("expected the forwarded client to be throttled, got %d", code)
	}
}

func TestRejectsInvalidTrustedProxy(t *testing.T) {
	cfg := testConfig(miniredis.RunT(t).Addr())
	cfg.RedisToken = ""
	cfg.TrustedProxies = []string{"not-an-address"}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an invalid proxy entry to be rejected")
	}
}
