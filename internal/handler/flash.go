package handler

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pavelanni/examfix/internal/handler/views"
)

const flashCookieName = "flash"

// setNotice stores a one-shot notice shown on the next page load.
func (h *Handler) setNotice(w http.ResponseWriter, n views.Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		slog.Error("encode notice", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     h.cookiePath(),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// failNotice logs err and turns it into an error notice.
func (h *Handler) failNotice(w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn("command rejected", "path", r.URL.Path, "error", err)
	h.setNotice(w, views.Notice{Kind: "error", Text: errorText(r, err)})
}

// takeNotice reads and clears the pending notice, if any.
func (h *Handler) takeNotice(w http.ResponseWriter, r *http.Request) *views.Notice {
	c, err := r.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})

	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var n views.Notice
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	return &n
}
