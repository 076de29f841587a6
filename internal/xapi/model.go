package xapi

import "time"

type UserMetrics struct {
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
	TweetCount     int64 `json:"tweet_count"`
	ListedCount    int64 `json:"listed_count"`
}

type User struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Username        string      `json:"username"`
	ProfileImageURL string      `json:"profile_image_url,omitempty"`
	PublicMetrics   UserMetrics `json:"public_metrics"`
}

type TweetMetrics struct {
	RetweetCount    int64 `json:"retweet_count"`
	ReplyCount      int64 `json:"reply_count"`
	LikeCount       int64 `json:"like_count"`
	QuoteCount      int64 `json:"quote_count"`
	ImpressionCount int64 `json:"impression_count"`
}

type Tweet struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	AuthorID      string       `json:"author_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	PublicMetrics TweetMetrics `json:"public_metrics"`
}

// TweetsPage is one page of a user's timeline as the API returns it.
type TweetsPage struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Users []User `json:"users,omitempty"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token,omitempty"`
	} `json:"meta"`
}

// TweetsQuery narrows a timeline request. Zero values are omitted.
type TweetsQuery struct {
	StartTime  time.Time
	EndTime    time.Time
	MaxResults int
}
