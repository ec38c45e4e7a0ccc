package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thesecretlab-dev/anima-dashboard/internal/audit"
)

func serveThrough(t *testing.T, state *State, r *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	handler := state.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	return rec, reached
}

func TestMiddleware_SetsDefensiveHeaders(t *testing.T) {
	state := newTestState()
	rec, reached := serveThrough(t, state, httptest.NewRequest(http.MethodGet, "/health", nil))

	if !reached {
		t.Fatal("benign request should reach the handler")
	}
	headers := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("header %s = %q, want %q", name, got, want)
		}
	}
	if rec.Header().Get("Permissions-Policy") == "" {
		t.Error("Permissions-Policy header missing")
	}
}

func TestMiddleware_RejectsOversizedBody(t *testing.T) {
	state := newTestState(func(c *Config) {
		c.MaxRequestBodyBytes = 1024
	})

	req := httptest.NewRequest(http.MethodPost, "/api/send", nil)
	req.ContentLength = 2048
	rec, reached := serveThrough(t, state, req)

	if reached {
		t.Fatal("oversized request must not reach the handler")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}

	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Type != "oversized" {
		t.Errorf("error type = %q, want oversized", body.Error.Type)
	}
	if countType(state, audit.EventOversizedRequest) != 1 {
		t.Error("oversized_request not audited")
	}
}

func TestMiddleware_MissingContentLengthPasses(t *testing.T) {
	state := newTestState(func(c *Config) {
		c.MaxRequestBodyBytes = 1024
	})

	req := httptest.NewRequest(http.MethodPost, "/api/send", nil)
	req.ContentLength = -1
	if _, reached := serveThrough(t, state, req); !reached {
		t.Error("request without Content-Length should pass the size check")
	}
}

func TestMiddleware_RejectsPathTraversal(t *testing.T) {
	state := newTestState()

	tests := []string{
		"/files/..%2f..%2fetc%2fpasswd",
		"/a//b",
		"/a%5cb",
		"/x%2500",
		"/x%252e%252e/y",
		"/download?file=..%2f..%2fetc%2fpasswd",
		"/report?path=..%5c..%5csecrets",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec, reached := serveThrough(t, state, req)
			if reached {
				t.Fatal("traversal path must not reach the handler")
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var body ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Error.Type != "invalid_path" {
				t.Errorf("error type = %q, want invalid_path", body.Error.Type)
			}
		})
	}

	if got := countType(state, audit.EventPathTraversalAttempt); got != len(tests) {
		t.Errorf("path_traversal_attempt audited %d times, want %d", got, len(tests))
	}
}

func TestMiddleware_SuspiciousRequestLoggedNotBlocked(t *testing.T) {
	state := newTestState()

	req := httptest.NewRequest(http.MethodGet, "/wp-admin/setup.php", nil)
	rec, reached := serveThrough(t, state, req)

	if !reached {
		t.Fatal("scanner probe should pass through and fail naturally")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 from inner handler", rec.Code)
	}
	if countType(state, audit.EventSuspiciousRequest) != 1 {
		t.Error("suspicious_request not audited")
	}
}

func TestDetectSuspiciousRequest_Patterns(t *testing.T) {
	state := newTestState()

	hits := []string{
		"/.env",
		"/wp-login.php",
		"/phpMyAdmin/index.php",
		"/.git/config",
		"/actuator/health",
		"/cgi-bin/test.asp",
		"/uploads/webshell.jsp",
		"/../../etc/passwd",
		"/proc/self/environ",
	}
	for _, url := range hits {
		if !state.DetectSuspiciousRequest(url, "10.2.0.1") {
			t.Errorf("DetectSuspiciousRequest(%q) = false, want true", url)
		}
	}

	if state.DetectSuspiciousRequest("/api/sessions", "10.2.0.1") {
		t.Error("benign API path flagged as suspicious")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4312"
	if got := ClientIP(req); got != "192.0.2.7" {
		t.Errorf("ClientIP = %q, want 192.0.2.7", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("ClientIP with XFF = %q, want 203.0.113.9", got)
	}
}
