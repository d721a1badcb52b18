// Package security guards the read-only API against writes and scanner
// traffic before any node read is spent on a request.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Config holds the configuration for security middleware
type Config struct {
	// FilterEnabled blocks scanner paths and path traversal.
	FilterEnabled bool
	// ReadOnly rejects every method but GET, HEAD and OPTIONS, and any
	// request that carries a body.
	ReadOnly bool
}

// exemptPaths are never filtered.
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// blockedPathPrefixes are scanner targets. Nothing the API serves starts with
// these.
var blockedPathPrefixes = []string{
	"/.php",
	"/wp-admin",
	"/wp-includes",
	"/wp-content",
	"/wp-login",
	"/.git/",
	"/.env",
	"/web-inf/",
	"/cgi-bin/",
	"/admin/",
	"/phpmyadmin",
	"/phpinfo",
	"/shell",
	"/config.",
	"/.htaccess",
	"/server-status",
	"/xmlrpc.php",
}

// blockedPathPatterns are rejected anywhere in the path, before and after
// decoding.
var blockedPathPatterns = []string{
	"../",
	"..%2f",
	"..%5c",
	"%2e%2e/",
	"%00",
}

// Middleware returns the request guard described by cfg.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.FilterEnabled && !cfg.ReadOnly {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.ReadOnly {
				switch r.Method {
				case http.MethodGet, http.MethodHead, http.MethodOptions:
				default:
					w.Header().Set("Allow", "GET, HEAD, OPTIONS")
					writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "The API is read-only")
					return
				}
				if r.ContentLength > 0 {
					writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
					return
				}
			}

			if cfg.FilterEnabled && blocked(r.URL) {
				writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func blocked(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, prefix := range blockedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	if containsPattern(path) {
		return true
	}

	// The escaped form catches traversal that decoding already collapsed.
	raw := u.EscapedPath()
	if containsPattern(strings.ToLower(raw)) {
		return true
	}
	decoded, err := url.PathUnescape(raw)
	return err == nil && containsPattern(strings.ToLower(decoded))
}

func containsPattern(path string) bool {
	for _, pattern := range blockedPathPatterns {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// writeError never says which rule matched.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
