// Package account keeps the X credentials and profile linked to a dashboard
// account, together with the tweets fetched for it.
package account

import (
	"context"
	"time"

	"github.com/pulsedash/x-connector/internal/session"
	"github.com/pulsedash/x-connector/internal/xapi"
)

// LinkedAccount is a dashboard account connected to an X user.
type LinkedAccount struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	// TokenExpiresAt is zero when the provider did not report a lifetime.
	TokenExpiresAt time.Time

	XUserID         string
	Username        string
	Name            string
	ProfileImageURL string
	FollowersCount  int64
	FollowingCount  int64

	UpdatedAt time.Time
}

// Linked reports whether the account holds an access token.
func (a LinkedAccount) Linked() bool {
	return a.AccessToken != ""
}

// Tweet is a stored tweet with its computed metrics. Impressions holds the
// count reported by the API, zero when it reported none.
type Tweet struct {
	XTweetID  string
	AccountID string
	Content   string
	PostedAt  time.Time

	Likes       int64
	Retweets    int64
	Replies     int64
	Quotes      int64
	Impressions int64

	EngagementRate   float64
	PerformanceScore int
	UpdatedAt        time.Time
}

// Repository stores linked accounts. Get returns serviceerr.ErrNotFound for
// accounts that were never linked.
type Repository interface {
	SaveTokens(ctx context.Context, accountID string, token session.TokenPayload, now time.Time) error
	Get(ctx context.Context, accountID string) (LinkedAccount, error)
	UpdateProfile(ctx context.Context, accountID string, user xapi.User, now time.Time) error
	UpsertTweets(ctx context.Context, tweets []Tweet) error
	// Tweets lists the stored tweets of an account, newest first.
	Tweets(ctx context.Context, accountID string) ([]Tweet, error)
}

// TokenExpiry converts a relative token lifetime into an absolute time.
func TokenExpiry(token session.TokenPayload, now time.Time) time.Time {
	if token.ExpiresIn <= 0 {
		return time.Time{}
	}

	return now.Add(time.Duration(token.ExpiresIn) * time.Second)
}

func TweetFromScored(accountID string, t xapi.ScoredTweet, now time.Time) Tweet {
	m := t.PublicMetrics

	return Tweet{
		XTweetID:         t.ID,
		AccountID:        accountID,
		Content:          t.Text,
		PostedAt:         t.CreatedAt,
		Likes:            m.LikeCount,
		Retweets:         m.RetweetCount,
		Replies:          m.ReplyCount,
		Quotes:           m.QuoteCount,
		Impressions:      m.ImpressionCount,
		EngagementRate:   t.EngagementRate,
		PerformanceScore: t.PerformanceScore,
		UpdatedAt:        now,
	}
}
