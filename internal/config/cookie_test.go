package config

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCookie(t *testing.T) {
	tests := []struct {
		name     string
		template CookieTemplate
		value    string
		want     *http.Cookie
	}{
		{
			name: "defaults",
			template: CookieTemplate{
				Name: "foo",
			},
			want: &http.Cookie{
				Name:     "foo",
				SameSite: http.SameSiteDefaultMode,
			},
		}, {
			name: "pending marker",
			template: CookieTemplate{
				Name:     "oauth_state",
				Path:     "/",
				Secure:   true,
				SameSite: CookieSameSiteLax,
				HTTPOnly: true,
			},
			value: "0a1b2c",
			want: &http.Cookie{
				Name:     "oauth_state",
				Value:    "0a1b2c",
				MaxAge:   0,
				Path:     "/",
				Secure:   true,
				SameSite: http.SameSiteLaxMode,
				HttpOnly: true,
			},
		}, {
			name: "strict with domain",
			template: CookieTemplate{
				Name:     "marker",
				Path:     "/connect",
				Domain:   "dashboard.example.com",
				Secure:   true,
				SameSite: CookieSameSiteStrict,
				MaxAge:   900,
			},
			value: "v",
			want: &http.Cookie{
				Name:     "marker",
				Value:    "v",
				MaxAge:   900,
				Path:     "/connect",
				Domain:   "dashboard.example.com",
				Secure:   true,
				SameSite: http.SameSiteStrictMode,
			},
		}, {
			name: "none",
			template: CookieTemplate{
				Name:     "cross-site",
				Secure:   true,
				SameSite: CookieSameSiteNone,
			},
			want: &http.Cookie{
				Name:     "cross-site",
				Secure:   true,
				SameSite: http.SameSiteNoneMode,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.template.ToCookie(tt.value)
			assert.Equal(t, tt.want, c)
		})
	}
}

func TestToExpiredCookie(t *testing.T) {
	template := CookieTemplate{
		Name:     "oauth_state",
		Path:     "/",
		Secure:   true,
		SameSite: CookieSameSiteLax,
		HTTPOnly: true,
	}

	c := template.ToExpiredCookie()
	assert.Equal(t, "oauth_state", c.Name)
	assert.Empty(t, c.Value)
	assert.Equal(t, -1, c.MaxAge)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
}
