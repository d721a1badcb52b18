package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pendergraft/ntunames/internal/middleware/ratelimit"
)

// routeCosts weights the limiter by the node reads behind each route. A
// domain status resolves the name, its expiry, the auction, the caller's
// bid and balance; the listing is usually served from cache.
var routeCosts = []ratelimit.PathCost{
	{Prefix: "/api/v1/domains/", Cost: 5},
	{Prefix: "/api/v1/resolve/", Cost: 2},
	{Prefix: "/api/v1/reverse/", Cost: 1},
}

// cors allows read-only cross-origin access.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestTimeout bounds the context handed to handlers, and with it every
// node read they make.
func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
