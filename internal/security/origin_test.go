package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestValidateOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		mutate  func(*Config)
		valid   bool
	}{
		{
			name:   "missing origin accepted",
			origin: "",
			valid:  true,
		},
		{
			name:   "loopback accepted by default",
			origin: "http://localhost:3000",
			valid:  true,
		},
		{
			name:   "loopback ip accepted by default",
			origin: "http://127.0.0.1:8080",
			valid:  true,
		},
		{
			name:   "loopback rejected when disabled",
			origin: "http://localhost:3000",
			mutate: func(c *Config) { c.DisableLoopbackOrigin = true },
			valid:  false,
		},
		{
			name:   "allow-listed origin accepted",
			origin: "https://app.example.com",
			mutate: func(c *Config) { c.AllowedOrigins = []string{"https://app.example.com"} },
			valid:  true,
		},
		{
			name:   "allow-listed origin with port must match exactly",
			origin: "https://app.example.com:8443",
			mutate: func(c *Config) { c.AllowedOrigins = []string{"https://app.example.com"} },
			valid:  false,
		},
		{
			name:   "unknown origin rejected",
			origin: "https://evil.example.net",
			valid:  false,
		},
		{
			name:   "malformed origin rejected",
			origin: "not a url",
			valid:  false,
		},
		{
			name:   "schemeless origin rejected",
			origin: "app.example.com",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newTestState(func(c *Config) {
				if tt.mutate != nil {
					tt.mutate(c)
				}
			})
			decision := state.ValidateOrigin(originRequest(tt.origin))
			if decision.Valid != tt.valid {
				t.Errorf("ValidateOrigin(%q) = %v (%s), want valid=%v",
					tt.origin, decision.Valid, decision.Reason, tt.valid)
			}
			if !decision.Valid && decision.Reason == "" {
				t.Error("rejection must carry a reason")
			}
		})
	}
}

func TestIsLoopbackHost(t *testing.T) {
	loopback := []string{"localhost", "LOCALHOST", "app.localhost", "127.0.0.1", "127.8.4.2", "::1", "[::1]"}
	for _, host := range loopback {
		if !IsLoopbackHost(host) {
			t.Errorf("IsLoopbackHost(%q) = false, want true", host)
		}
	}

	external := []string{"example.com", "10.0.0.1", "192.168.1.4", "8.8.8.8", ""}
	for _, host := range external {
		if IsLoopbackHost(host) {
			t.Errorf("IsLoopbackHost(%q) = true, want false", host)
		}
	}
}
