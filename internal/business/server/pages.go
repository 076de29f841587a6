package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/guard"
	"github.com/pulsedash/x-connector/internal/identity"
	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
)

const defaultReturnDelay = 3 * time.Second

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<p><a href="{{.ReturnTo}}">Back to dashboard</a></p>
</body>
</html>
`))

type pageData struct {
	Title    string
	Message  string
	ReturnTo string
	Refresh  string
}

// pages serve the browser side of the account link. Each request runs its
// own guard with the marker kept in a session cookie.
type pages struct {
	linker   *linker
	verifier *identity.Verifier
	linking  config.Linking
}

func newPages(l *linker, verifier *identity.Verifier, linking config.Linking) *pages {
	return &pages{
		linker:   l,
		verifier: verifier,
		linking:  linking,
	}
}

func (p *pages) newGuard(w http.ResponseWriter, r *http.Request, issuer guard.Issuer) *guard.Guard {
	exchanger := guard.ExchangerFunc(func(ctx context.Context, code, state string) (session.TokenPayload, error) {
		// the marker cookie already ties the callback to the browser that connected
		linked, err := p.linker.link(ctx, "", code, state)
		return linked.Token, err
	})

	return guard.New(issuer, exchanger, guard.NewCookieMarkers(p.linking.MarkerCookie, w, r), returnTo(p.linking))
}

func (p *pages) connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, err := p.verifier.Authenticate(r, p.linking.IdentityCookie)
	if err != nil {
		slogctx.Info(ctx, "Connect without a dashboard session", "error", err)
		p.render(ctx, w, http.StatusUnauthorized, "Sign in required", "Please sign in to the dashboard before connecting your X account.")

		return
	}

	redirect := redirectURI(p.linking, r.Header.Get("Origin"))
	issuer := guard.IssuerFunc(func(ctx context.Context) (session.AuthURL, error) {
		return p.linker.sessions.MakeAuthURL(ctx, caller.AccountID, redirect)
	})

	authURL, err := p.newGuard(w, r, issuer).Connect(ctx)
	if err != nil {
		slogctx.Error(ctx, "Failed to start the authorization", "error", err)

		svcErr := serviceerr.From(err)
		p.render(ctx, w, svcErr.HTTPStatus(), "Connection failed", svcErr.Message())

		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (p *pages) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	out := p.newGuard(w, r, nil).HandleCallback(ctx, r.URL.Query())
	if !out.Completed() {
		slogctx.Info(ctx, "Callback rejected", "reason", out.Reason, "error", out.Err)
		p.render(ctx, w, serviceerr.From(out.Err).HTTPStatus(), "Connection failed", out.Message)

		return
	}

	p.render(ctx, w, http.StatusOK, "X account connected", "Your X account is connected. Returning to the dashboard.")
}

func (p *pages) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := p.newGuard(w, r, nil).Logout(ctx); err != nil {
		slogctx.Warn(ctx, "Failed to clear the pending authorization", "error", err)
	}

	http.Redirect(w, r, returnTo(p.linking), http.StatusFound)
}

func (p *pages) render(ctx context.Context, w http.ResponseWriter, status int, title, message string) {
	delay := p.linking.ReturnDelay
	if delay <= 0 {
		delay = defaultReturnDelay
	}

	target := returnTo(p.linking)
	data := pageData{
		Title:    title,
		Message:  message,
		ReturnTo: target,
		Refresh:  fmt.Sprintf("%d;url=%s", int(delay.Seconds()), target),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := pageTemplate.Execute(w, data); err != nil {
		slogctx.Error(ctx, "Failed to render page", "error", err)
	}
}
