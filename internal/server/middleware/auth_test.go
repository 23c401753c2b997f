package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func protected(key string) http.Handler {
	return Auth(key)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAuthDisabledWhenKeyEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	protected("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthAcceptsValidCredential(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"bearer token", "Authorization", "Bearer s3cret"},
		{"bearer case-insensitive", "Authorization", "bearer s3cret"},
		{"api key header", "X-API-Key", "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			req.Header.Set(tt.header, tt.value)
			rec := httptest.NewRecorder()
			protected("s3cret").ServeHTTP(rec, req)
			assert.Equal(t, http.StatusNoContent, rec.Code)
		})
	}
}

func TestAuthRejectsMissingOrWrongCredential(t *testing.T) {
	h := protected("s3cret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing authentication token"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthAPIKeyHeaderWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "s3cret")
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	protected("s3cret").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
