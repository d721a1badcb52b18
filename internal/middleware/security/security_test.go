package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware_Disabled(t *testing.T) {
	handler := Middleware(Config{})(okHandler())

	for _, path := range []string{"/wp-admin/", "/.git/config", "/phpinfo.php"} {
		rr := serve(handler, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, "Path %s should pass when disabled", path)
	}
	rr := serve(handler, http.MethodPost, "/api/v1/bids", "{}")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_BlocksScannerPaths(t *testing.T) {
	handler := Middleware(Config{FilterEnabled: true})(okHandler())

	blockedPaths := []string{
		"/wp-admin/",
		"/wp-login.php",
		"/xmlrpc.php",
		"/.git/config",
		"/.env",
		"/phpmyadmin/",
		"/cgi-bin/script.cgi",
		"/admin/login",
		"/.htaccess",
		"/server-status",
		"/config.php",
		"/WP-ADMIN/",
	}

	for _, path := range blockedPaths {
		rr := serve(handler, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, "Path %s should be blocked", path)
	}
}

func TestMiddleware_BlocksPathTraversal(t *testing.T) {
	handler := Middleware(Config{FilterEnabled: true})(okHandler())

	tests := []struct {
		name   string
		target string
	}{
		{"encoded slash", "/api/v1/domains/..%2f..%2fetc"},
		{"encoded backslash", "/api/v1/resolve/..%5cwin.ini"},
		{"null byte", "/api/v1/domains/alice.ntu%00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(handler, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestMiddleware_AllowsAPIRequests(t *testing.T) {
	handler := Middleware(Config{FilterEnabled: true, ReadOnly: true})(okHandler())

	paths := []string{
		"/api/v1/domains",
		"/api/v1/domains/alice.ntu?account=0x000000000000000000000000000000000000a11c",
		"/api/v1/resolve/my-name.ntu",
		"/api/v1/reverse/0x000000000000000000000000000000000000a11c",
		"/api/v1/bids?status=committed",
		"/health",
		"/metrics",
	}

	for _, path := range paths {
		rr := serve(handler, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, "Path %s should pass", path)
	}
}

func TestMiddleware_ReadOnly(t *testing.T) {
	handler := Middleware(Config{ReadOnly: true})(okHandler())

	tests := []struct {
		name     string
		method   string
		body     string
		wantCode int
	}{
		{"get", http.MethodGet, "", http.StatusOK},
		{"head", http.MethodHead, "", http.StatusOK},
		{"preflight", http.MethodOptions, "", http.StatusOK},
		{"post", http.MethodPost, "", http.StatusMethodNotAllowed},
		{"delete", http.MethodDelete, "", http.StatusMethodNotAllowed},
		{"get with body", http.MethodGet, `{"secret":"x"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(handler, tt.method, "/api/v1/domains", tt.body)
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}

	rr := serve(handler, http.MethodPut, "/api/v1/bids", "")
	assert.Equal(t, "GET, HEAD, OPTIONS", rr.Header().Get("Allow"))
}

func TestMiddleware_ResponseFormat(t *testing.T) {
	handler := Middleware(Config{FilterEnabled: true})(okHandler())

	rr := serve(handler, http.MethodGet, "/.env", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "BAD_REQUEST", body.Error.Code)
	assert.Equal(t, "Invalid request", body.Error.Message)
}
