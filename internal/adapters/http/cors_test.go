package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jobrunner/hospigeo/internal/config"
)

func TestOriginHost(t *testing.T) {
	tests := map[string]string{
		"https://admin.example.com":      "admin.example.com",
		"http://localhost:3000":          "localhost",
		"https://example.com:8443/path":  "example.com",
		"example.com":                    "example.com",
		"http://[::1]:8080":              "::1",
		"https://geo.hospital.kr/?q=abc": "geo.hospital.kr",
	}
	for origin, want := range tests {
		assert.Equal(t, want, originHost(origin), origin)
	}
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		origin  string
		pattern string
		want    bool
	}{
		{"https://admin.example.com", "https://admin.example.com", true},
		{"https://admin.example.com", "http://admin.example.com", false},
		{"https://admin.example.com", "*.example.com", true},
		{"https://a.b.example.com:8443", "*.example.com", true},
		{"https://example.com", "*.example.com", false},
		{"https://badexample.com", "*.example.com", false},
		{"https://example.com.evil.io", "*.example.com", false},
		{"https://admin.example.com", "*example.com", false},
		{"https://admin.example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin+" "+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, matchOrigin(tt.origin, tt.pattern))
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	s := &Server{config: config.ServerConfig{
		CORS: config.CORSConfig{AllowedOrigins: []string{"https://ops.example.com", "*.hospital.kr"}},
	}}

	called := 0
	handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
		wantCalled int
	}{
		{"allowed exact", http.MethodPost, "https://ops.example.com", http.StatusOK, "https://ops.example.com", 1},
		{"allowed wildcard", http.MethodGet, "https://map.hospital.kr", http.StatusOK, "https://map.hospital.kr", 1},
		{"foreign origin", http.MethodGet, "https://other.io", http.StatusOK, "", 1},
		{"no origin", http.MethodGet, "", http.StatusOK, "", 1},
		{"preflight", http.MethodOptions, "https://ops.example.com", http.StatusNoContent, "https://ops.example.com", 0},
		{"foreign preflight", http.MethodOptions, "https://other.io", http.StatusNoContent, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = 0
			req := httptest.NewRequest(tt.method, "/api/admin/reindex/hospitals", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, corsAllowMethods, rr.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "Origin", rr.Header().Get("Vary"))
			}
		})
	}
}

func TestCORSConfig_Enabled(t *testing.T) {
	assert.False(t, (&config.CORSConfig{}).Enabled())
	assert.True(t, (&config.CORSConfig{AllowedOrigins: []string{"*.hospital.kr"}}).Enabled())
}
