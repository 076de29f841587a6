package xapi

import "math"

// impressionFallbackFactor estimates impressions when the API reports none.
// It is a placeholder until non-public metrics are requested.
const impressionFallbackFactor = 10

// Engagement is the sum of public interactions with a tweet.
func Engagement(m TweetMetrics) int64 {
	return m.LikeCount + m.RetweetCount + m.ReplyCount + m.QuoteCount
}

// Impressions returns the reported impressions or, when zero, the
// engagement-based estimate.
func Impressions(m TweetMetrics) int64 {
	if m.ImpressionCount > 0 {
		return m.ImpressionCount
	}

	return Engagement(m) * impressionFallbackFactor
}

// EngagementRate is engagement per impression in percent.
func EngagementRate(m TweetMetrics) float64 {
	impressions := Impressions(m)
	if impressions == 0 {
		return 0
	}

	return float64(Engagement(m)) / float64(impressions) * 100
}

// PerformanceScore maps the engagement rate onto 0..100.
func PerformanceScore(rate float64) int {
	return int(math.Min(100, math.Round(rate*20)))
}

// ScoredTweet is a tweet with its derived metrics.
type ScoredTweet struct {
	Tweet

	Engagement       int64   `json:"engagement"`
	Impressions      int64   `json:"impressions"`
	EngagementRate   float64 `json:"engagement_rate"`
	PerformanceScore int     `json:"performance_score"`
}

func Score(t Tweet) ScoredTweet {
	rate := EngagementRate(t.PublicMetrics)

	return ScoredTweet{
		Tweet:            t,
		Engagement:       Engagement(t.PublicMetrics),
		Impressions:      Impressions(t.PublicMetrics),
		EngagementRate:   rate,
		PerformanceScore: PerformanceScore(rate),
	}
}

type Summary struct {
	TotalTweets       int          `json:"total_tweets"`
	TotalEngagement   int64        `json:"total_engagement"`
	TotalImpressions  int64        `json:"total_impressions"`
	AvgEngagementRate float64      `json:"avg_engagement_rate"`
	TopTweet          *ScoredTweet `json:"top_tweet,omitempty"`
}

// Summarize aggregates scored tweets. The later tweet wins ties for TopTweet.
func Summarize(tweets []ScoredTweet) Summary {
	var s Summary
	if len(tweets) == 0 {
		return s
	}

	var rateSum float64
	for i := range tweets {
		t := &tweets[i]
		s.TotalEngagement += t.Engagement
		s.TotalImpressions += t.Impressions
		rateSum += t.EngagementRate

		if s.TopTweet == nil || t.PerformanceScore >= s.TopTweet.PerformanceScore {
			s.TopTweet = t
		}
	}

	s.TotalTweets = len(tweets)
	s.AvgEngagementRate = rateSum / float64(len(tweets))

	return s
}
