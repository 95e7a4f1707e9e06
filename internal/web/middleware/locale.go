package middleware

import (
	"net/http"

	"github.com/JonMunkholm/crm/internal/i18n"
)

// Locale stores the best supported match for Accept-Language in the request
// context. Export workers read it back to localize headers and cells.
func Locale(b *i18n.Bundle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := b.Match(r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(i18n.WithLocale(r.Context(), locale)))
		})
	}
}
