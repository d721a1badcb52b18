// Package auth guards the bid journal routes with static API keys.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// KeySet is a fixed set of accepted API keys, held as hashes.
type KeySet struct {
	hashes [][]byte
}

// NewKeySet builds a set from plain keys. Empty entries are ignored.
func NewKeySet(keys ...string) *KeySet {
	s := &KeySet{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			s.hashes = append(s.hashes, []byte(HashAPIKey(k)))
		}
	}
	return s
}

// Len returns the number of accepted keys.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.hashes)
}

// Valid reports whether key is in the set. Every entry is compared.
func (s *KeySet) Valid(key string) bool {
	if s == nil || key == "" {
		return false
	}
	h := []byte(HashAPIKey(key))
	found := 0
	for _, want := range s.hashes {
		found |= subtle.ConstantTimeCompare(h, want)
	}
	return found == 1
}

// KeyFromRequest returns the key from X-API-Key or a bearer token.
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return ""
}

// Middleware returns an HTTP middleware that requires a key from keys. An
// empty set lets every request through.
func Middleware(keys *KeySet, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keys.Len() == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := KeyFromRequest(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}
			if !keys.Valid(apiKey) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
