package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/pulsedash/x-connector/internal/config"
)

// CookieMarkers keeps the marker in a cookie scoped to one request and its
// response. With a zero MaxAge the browser drops it when the session ends.
type CookieMarkers struct {
	tmpl config.CookieTemplate
	w    http.ResponseWriter
	r    *http.Request

	// written tracks changes made while handling the request
	written *string
}

var _ MarkerStore = (*CookieMarkers)(nil)

func NewCookieMarkers(tmpl config.CookieTemplate, w http.ResponseWriter, r *http.Request) *CookieMarkers {
	return &CookieMarkers{tmpl: tmpl, w: w, r: r}
}

func (c *CookieMarkers) Set(_ context.Context, state string) error {
	http.SetCookie(c.w, c.tmpl.ToCookie(state))
	c.written = &state

	return nil
}

func (c *CookieMarkers) Get(_ context.Context) (string, bool, error) {
	if c.written != nil {
		return *c.written, *c.written != "", nil
	}

	cookie, err := c.r.Cookie(c.tmpl.Name)
	if errors.Is(err, http.ErrNoCookie) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return cookie.Value, cookie.Value != "", nil
}

func (c *CookieMarkers) Clear(_ context.Context) error {
	http.SetCookie(c.w, c.tmpl.ToExpiredCookie())
	cleared := ""
	c.written = &cleared

	return nil
}
