package session

import "time"

// State is a pending authorization. It is created when an authorization URL
// is issued and redeemed at most once when the code is exchanged.
type State struct {
	// ID is the opaque state token round-tripped through the provider.
	ID string `json:"state"`
	// AccountID identifies the dashboard account requesting the link.
	AccountID string `json:"account_id"`
	// PKCEVerifier is revealed to the provider only at redemption.
	PKCEVerifier string `json:"code_verifier"`
	// RedirectURI must be replayed verbatim on the token request.
	RedirectURI string    `json:"redirect_uri"`
	Expiry      time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the state can no longer be redeemed at now.
func (s State) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// AuthURL is the result of issuing an authorization request.
type AuthURL struct {
	URL   string `json:"auth_url"`
	State string `json:"state"`
}

// TokenPayload is the upstream token response handed back to the caller.
type TokenPayload struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Linked is the outcome of a successful exchange.
type Linked struct {
	AccountID string
	Token     TokenPayload
}
