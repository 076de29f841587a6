package accountsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsedash/x-connector/internal/account"
	"github.com/pulsedash/x-connector/internal/serviceerr"
	"github.com/pulsedash/x-connector/internal/session"
	"github.com/pulsedash/x-connector/internal/xapi"
)

// Repository keeps linked accounts and their tweets in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

var _ = account.Repository(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

// SaveTokens links the account or replaces the tokens of an existing link.
// Profile fields are left untouched.
func (r *Repository) SaveTokens(ctx context.Context, accountID string, token session.TokenPayload, now time.Time) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO linked_accounts (account_id, access_token, refresh_token, token_expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (account_id) DO UPDATE
SET access_token = excluded.access_token,
    refresh_token = excluded.refresh_token,
    token_expires_at = excluded.token_expires_at,
    updated_at = excluded.updated_at;`,
		accountID, token.AccessToken, token.RefreshToken, nullTime(account.TokenExpiry(token, now)), now,
	); err != nil {
		return fmt.Errorf("upserting linked_accounts: %w", err)
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, accountID string) (account.LinkedAccount, error) {
	var (
		a         account.LinkedAccount
		expiresAt pgtype.Timestamptz
	)

	if err := r.db.QueryRow(ctx,
		`SELECT account_id, access_token, refresh_token, token_expires_at, x_user_id, username, name,
       profile_image_url, followers_count, following_count, updated_at
FROM linked_accounts
WHERE account_id = $1;`,
		accountID,
	).
		Scan(&a.AccountID, &a.AccessToken, &a.RefreshToken, &expiresAt, &a.XUserID, &a.Username, &a.Name,
			&a.ProfileImageURL, &a.FollowersCount, &a.FollowingCount, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.LinkedAccount{}, serviceerr.ErrNotFound
		}

		return account.LinkedAccount{}, fmt.Errorf("selecting from linked_accounts: %w", err)
	}

	if expiresAt.Valid {
		a.TokenExpiresAt = expiresAt.Time
	}

	return a, nil
}

func (r *Repository) UpdateProfile(ctx context.Context, accountID string, user xapi.User, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE linked_accounts
SET x_user_id = $2, username = $3, name = $4, profile_image_url = $5,
    followers_count = $6, following_count = $7, updated_at = $8
WHERE account_id = $1;`,
		accountID, user.ID, user.Username, user.Name, user.ProfileImageURL,
		user.PublicMetrics.FollowersCount, user.PublicMetrics.FollowingCount, now,
	)
	if err != nil {
		return fmt.Errorf("updating linked_accounts: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return serviceerr.ErrNotFound
	}

	return nil
}

// UpsertTweets stores the tweets in one batch, replacing the metrics of
// tweets fetched before.
func (r *Repository) UpsertTweets(ctx context.Context, tweets []account.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}

	b := new(pgx.Batch)
	for _, t := range tweets {
		b.Queue(`INSERT INTO tweets (x_tweet_id, account_id, content, posted_at, likes, retweets, replies, quotes,
                    impressions, engagement_rate, performance_score, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (x_tweet_id) DO UPDATE
SET content = excluded.content,
    likes = excluded.likes,
    retweets = excluded.retweets,
    replies = excluded.replies,
    quotes = excluded.quotes,
    impressions = excluded.impressions,
    engagement_rate = excluded.engagement_rate,
    performance_score = excluded.performance_score,
    updated_at = excluded.updated_at;`,
			t.XTweetID, t.AccountID, t.Content, nullTime(t.PostedAt), t.Likes, t.Retweets, t.Replies, t.Quotes,
			t.Impressions, t.EngagementRate, t.PerformanceScore, t.UpdatedAt)
	}

	if err := r.db.SendBatch(ctx, b).Close(); err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("upserting tweets: %w", err)
	}

	return nil
}

func (r *Repository) Tweets(ctx context.Context, accountID string) ([]account.Tweet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT x_tweet_id, account_id, content, posted_at, likes, retweets, replies, quotes,
       impressions, engagement_rate, performance_score, updated_at
FROM tweets
WHERE account_id = $1
ORDER BY posted_at DESC NULLS LAST;`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting from tweets: %w", err)
	}

	tweets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (account.Tweet, error) {
		var (
			t        account.Tweet
			postedAt pgtype.Timestamptz
		)

		err := row.Scan(&t.XTweetID, &t.AccountID, &t.Content, &postedAt, &t.Likes, &t.Retweets, &t.Replies, &t.Quotes,
			&t.Impressions, &t.EngagementRate, &t.PerformanceScore, &t.UpdatedAt)
		if postedAt.Valid {
			t.PostedAt = postedAt.Time
		}

		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning tweets: %w", err)
	}

	return tweets, nil
}

func nullTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
