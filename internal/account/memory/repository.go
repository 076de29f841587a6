// Package accountmemory keeps linked accounts in process memory for local
// development. Nothing survives a restart.
package accountmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pulsedash/x-connector/internal/account"
	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
	"github.com/pulsedash/x-connector/internal/xapi"
)

type Repository struct {
	mu       sync.Mutex
	accounts *cache.Cache
	tweets   *cache.Cache
}

var _ = account.Repository(&Repository{})

func NewRepository() *Repository {
	return &Repository{
		accounts: cache.New(cache.NoExpiration, 0),
		tweets:   cache.New(cache.NoExpiration, 0),
	}
}

func (r *Repository) SaveTokens(_ context.Context, accountID string, token session.TokenPayload, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, _ := r.get(accountID)
	a.AccountID = accountID
	a.AccessToken = token.AccessToken
	a.RefreshToken = token.RefreshToken
	a.TokenExpiresAt = account.TokenExpiry(token, now)
	a.UpdatedAt = now

	r.accounts.SetDefault(accountID, a)

	return nil
}

func (r *Repository) Get(_ context.Context, accountID string) (account.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.get(accountID)
	if !ok {
		return account.LinkedAccount{}, serviceerr.ErrNotFound
	}

	return a, nil
}

func (r *Repository) UpdateProfile(_ context.Context, accountID string, user xapi.User, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.get(accountID)
	if !ok {
		return serviceerr.ErrNotFound
	}

	a.XUserID = user.ID
	a.Username = user.Username
	a.Name = user.Name
	a.ProfileImageURL = user.ProfileImageURL
	a.FollowersCount = user.PublicMetrics.FollowersCount
	a.FollowingCount = user.PublicMetrics.FollowingCount
	a.UpdatedAt = now

	r.accounts.SetDefault(accountID, a)

	return nil
}

func (r *Repository) UpsertTweets(_ context.Context, tweets []account.Tweet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tweets {
		if _, ok := r.get(t.AccountID); !ok {
			return serviceerr.ErrNotFound
		}
	}

	for _, t := range tweets {
		r.tweets.SetDefault(t.XTweetID, t)
	}

	return nil
}

func (r *Repository) Tweets(_ context.Context, accountID string) ([]account.Tweet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tweets []account.Tweet
	for _, item := range r.tweets.Items() {
		if t, ok := item.Object.(account.Tweet); ok && t.AccountID == accountID {
			tweets = append(tweets, t)
		}
	}

	slices.SortFunc(tweets, func(a, b account.Tweet) int {
		return cmp.Or(b.PostedAt.Compare(a.PostedAt), cmp.Compare(a.XTweetID, b.XTweetID))
	})

	return tweets, nil
}

func (r *Repository) get(accountID string) (account.LinkedAccount, bool) {
	v, ok := r.accounts.Get(accountID)
	if !ok {
		return account.LinkedAccount{}, false
	}

	a, ok := v.(account.LinkedAccount)

	return a, ok
}
