package web

import (
	"net/http"

	"github.com/JonMunkholm/crm/internal/core"
)

// requestMetadata adds the client IP and User-Agent to the context for the
// operation log. RemoteAddr has already been resolved by TrustedRealIP.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithIPAddress(r.Context(), r.RemoteAddr)
		ctx = core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
