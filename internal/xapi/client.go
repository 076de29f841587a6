// Package xapi reads profile and timeline data from the X API on behalf of
// a linked account and derives engagement metrics from it.
package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/serviceerr"
)

const (
	DefaultMaxResults = 10

	userFields  = "profile_image_url,public_metrics"
	tweetFields = "created_at,public_metrics"

	// responses above this size are not read
	maxBodyBytes = 4 << 20
)

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func NewClient(cfg config.XAPI) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing x api base url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("x api base url %q must be an absolute URL", cfg.BaseURL)
	}

	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context, accessToken string) (User, error) {
	q := url.Values{"user.fields": {userFields}}

	var resp struct {
		Data User `json:"data"`
	}
	if err := c.get(ctx, accessToken, "/2/users/me", q, &resp); err != nil {
		return User{}, err
	}

	return resp.Data, nil
}

// UserTweets returns the most recent tweets of userID.
func (c *Client) UserTweets(ctx context.Context, accessToken, userID string, query TweetsQuery) (TweetsPage, error) {
	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	q := url.Values{
		"max_results":  {strconv.Itoa(maxResults)},
		"tweet.fields": {tweetFields},
		"expansions":   {"author_id"},
		"user.fields":  {userFields},
	}
	if !query.StartTime.IsZero() {
		q.Set("start_time", query.StartTime.UTC().Format(time.RFC3339))
	}
	if !query.EndTime.IsZero() {
		q.Set("end_time", query.EndTime.UTC().Format(time.RFC3339))
	}

	var page TweetsPage
	if err := c.get(ctx, accessToken, "/2/users/"+url.PathEscape(userID)+"/tweets", q, &page); err != nil {
		return TweetsPage{}, err
	}

	return page, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, q url.Values, into any) error {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: calling %s: %w", serviceerr.ErrUpstreamUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", serviceerr.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		slogctx.Warn(ctx, "X API request failed", "path", path, "status", resp.StatusCode)
		return statusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}

	return nil
}

func statusError(status int, body []byte) error {
	var apiErr struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(body, &apiErr)

	detail := apiErr.Detail
	if detail == "" {
		detail = apiErr.Title
	}
	if detail == "" {
		detail = "status " + strconv.Itoa(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return serviceerr.ErrUnauthorized.WithDetail("X access token rejected: " + detail)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return serviceerr.ErrUpstreamUnavailable.WithDetail(detail)
	default:
		return serviceerr.ErrUpstreamRequestFailed.WithDetail(detail)
	}
}
