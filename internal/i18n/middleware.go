package i18n

import "net/http"

const langCookie = "lang"

// Middleware injects a localizer into every request context. The language is
// lang unless the request picks another supported one with ?lang= (remembered
// in a cookie scoped to basePath).
func Middleware(lang, basePath string, secure bool) func(http.Handler) http.Handler {
	cookiePath := basePath + "/"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := lang
			if q := r.URL.Query().Get("lang"); q != "" {
				chosen = Match(q)
				http.SetCookie(w, &http.Cookie{
					Name:     langCookie,
					Value:    chosen,
					Path:     cookiePath,
					MaxAge:   365 * 24 * 60 * 60,
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			} else if c, err := r.Cookie(langCookie); err == nil && c.Value != "" {
				chosen = Match(c.Value)
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(chosen))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
