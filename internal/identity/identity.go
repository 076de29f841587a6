// Package identity authenticates dashboard users by the HS256 access tokens
// the dashboard's auth service issues.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/serviceerr"
)

var signatureAlgorithms = []jose.SignatureAlgorithm{jose.HS256}

// Caller is the authenticated dashboard user.
type Caller struct {
	AccountID string
	Email     string
	Role      string
}

type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

func NewVerifier(cfg config.Identity) (*Verifier, error) {
	secret, err := loadSecret(cfg)
	if err != nil {
		return nil, err
	}

	return &Verifier{
		secret:   secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		now:      time.Now,
	}, nil
}

// Verify checks the token signature and its registered claims.
func (v *Verifier) Verify(raw string) (Caller, error) {
	token, err := jwt.ParseSigned(raw, signatureAlgorithms)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: parsing token: %w", serviceerr.ErrUnauthorized, err)
	}

	type customClaims struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	var claims jwt.Claims
	var custom customClaims
	if err := token.Claims(v.secret, &claims, &custom); err != nil {
		return Caller{}, fmt.Errorf("%w: verifying token: %w", serviceerr.ErrUnauthorized, err)
	}

	expected := jwt.Expected{
		Issuer: v.issuer,
		Time:   v.now(),
	}
	if v.audience != "" {
		expected.AnyAudience = jwt.Audience{v.audience}
	}

	if err := claims.ValidateWithLeeway(expected, v.leeway); err != nil {
		return Caller{}, fmt.Errorf("%w: validating claims: %w", serviceerr.ErrUnauthorized, err)
	}

	if claims.Expiry == nil {
		return Caller{}, fmt.Errorf("%w: token without expiry", serviceerr.ErrUnauthorized)
	}

	if claims.Subject == "" {
		return Caller{}, fmt.Errorf("%w: token without subject", serviceerr.ErrUnauthorized)
	}

	return Caller{
		AccountID: claims.Subject,
		Email:     custom.Email,
		Role:      custom.Role,
	}, nil
}

// Authenticate verifies the bearer token of r, falling back to the named
// cookie when the request carries no Authorization header.
func (v *Verifier) Authenticate(r *http.Request, cookieName string) (Caller, error) {
	raw, err := tokenFromRequest(r, cookieName)
	if err != nil {
		return Caller{}, err
	}

	return v.Verify(raw)
}

func tokenFromRequest(r *http.Request, cookieName string) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", serviceerr.ErrUnauthorized.WithDetail("malformed authorization header")
		}

		return strings.TrimSpace(token), nil
	}

	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}

	return "", serviceerr.ErrUnauthorized.WithDetail("missing authorization")
}

func loadSecret(cfg config.Identity) ([]byte, error) {
	secret, err := commoncfg.LoadValueFromSourceRef(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("loading jwt secret: %w", err)
	}

	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}

	return secret, nil
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
