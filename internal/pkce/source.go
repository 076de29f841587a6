package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/pulsedash/x-connector/internal/serviceerr"
)

const MethodS256 = "S256"

const (
	verifierEntropy = 32
	stateEntropy    = 16
)

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source generates PKCE pairs and state tokens. The zero value reads from
// crypto/rand.
type Source struct {
	Rand io.Reader
}

func (p Source) randBytes(n int) ([]byte, error) {
	r := p.Rand
	if r == nil {
		r = rand.Reader
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: %w", serviceerr.ErrEntropyUnavailable, err)
	}

	return b, nil
}

func (p Source) PKCE() (PKCE, error) {
	b, err := p.randBytes(verifierEntropy)
	if err != nil {
		return PKCE{}, err
	}

	verifier := base64.RawURLEncoding.EncodeToString(b)

	return PKCE{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}, nil
}

func (p Source) State() (string, error) {
	b, err := p.randBytes(stateEntropy)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// Generate draws a PKCE pair and an unrelated state token.
func (p Source) Generate() (PKCE, string, error) {
	pair, err := p.PKCE()
	if err != nil {
		return PKCE{}, "", fmt.Errorf("generating pkce pair: %w", err)
	}

	state, err := p.State()
	if err != nil {
		return PKCE{}, "", fmt.Errorf("generating state: %w", err)
	}

	return pair, state, nil
}

// Challenge derives the S256 code challenge of a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
