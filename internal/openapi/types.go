// Package openapi holds the models and the strict handler adapter of the
// JSON API described in api/openapi.yaml.
//
// The code follows the layout of oapi-codegen's strict-server output but is
// maintained by hand. Any change to api/openapi.yaml must be mirrored here;
// contract_test.go fails when paths, operations, schema properties or enum
// values drift apart.
package openapi

import (
	"time"

	"github.com/pulsedash/x-connector/internal/xapi"
)

// ErrorModel is the body of every failed API call.
type ErrorModel struct {
	Error string `json:"error"`
}

type XOAuthRequestAction string

const (
	GetAuthURL    XOAuthRequestAction = "get_auth_url"
	ExchangeToken XOAuthRequestAction = "exchange_token"
)

type XOAuthRequest struct {
	Action XOAuthRequestAction `json:"action"`
	Code   *string             `json:"code,omitempty"`
	State  *string             `json:"state,omitempty"`
}

type AuthURLResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type TokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token,omitempty"`
	ExpiresIn    *int64  `json:"expires_in,omitempty"`
	TokenType    *string `json:"token_type,omitempty"`
	Scope        *string `json:"scope,omitempty"`
}

type XAPIRequestEndpoint string

const (
	User   XAPIRequestEndpoint = "user"
	Tweets XAPIRequestEndpoint = "tweets"
)

type XAPIRequest struct {
	Endpoint   XAPIRequestEndpoint `json:"endpoint"`
	StartTime  *time.Time          `json:"start_time,omitempty"`
	EndTime    *time.Time          `json:"end_time,omitempty"`
	MaxResults *int                `json:"max_results,omitempty"`
}

type UserResponse struct {
	Data xapi.User `json:"data"`
}

type TweetsResponse struct {
	Data     []xapi.ScoredTweet `json:"data"`
	Includes struct {
		Users []xapi.User `json:"users,omitempty"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token,omitempty"`
	} `json:"meta"`
	Summary xapi.Summary `json:"summary"`
}

// XOAuthParams defines parameters for XOAuth.
type XOAuthParams struct {
	Origin *string `json:"Origin,omitempty"`
}

type XOAuthJSONRequestBody = XOAuthRequest

type XAPIJSONRequestBody = XAPIRequest
