// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`
	GRPC GRPCServer `yaml:"grpc"`

	Database     Database     `yaml:"database"`
	ValKey       ValKey       `yaml:"valkey"`
	SessionStore SessionStore `yaml:"sessionStore"`
	Linking      Linking      `yaml:"linking"`
	Identity     Identity     `yaml:"identity"`
	XAPI         XAPI         `yaml:"xapi"`
	Housekeeper  Housekeeper  `yaml:"housekeeper"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type GRPCServer struct {
	commoncfg.GRPCServer `mapstructure:",squash" yaml:",inline"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	SSLMode  string              `yaml:"sslMode" default:"disable"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"x-connector"`

	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type StoreBackend string

const (
	StoreBackendValKey   StoreBackend = "valkey"
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendMemory   StoreBackend = "memory"
)

type SessionStore struct {
	Backend StoreBackend `yaml:"backend" default:"valkey"`
	// TTL is the lifetime of a pending authorization.
	TTL time.Duration `yaml:"ttl" default:"15m"`
}

// Linking configures the upstream OAuth client and the browser pages
// driving the account link.
type Linking struct {
	ClientID     commoncfg.SourceRef `yaml:"clientID"`
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`

	AuthURL  string   `yaml:"authURL" default:"https://twitter.com/i/oauth2/authorize"`
	TokenURL string   `yaml:"tokenURL" default:"https://api.twitter.com/2/oauth2/token"`
	Scopes   []string `yaml:"scopes"`

	RedirectOrigin string        `yaml:"redirectOrigin"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	CallbackPath   string        `yaml:"callbackPath" default:"/callback"`
	ReturnTo       string        `yaml:"returnTo" default:"/"`
	ReturnDelay    time.Duration `yaml:"returnDelay" default:"3s"`

	MarkerCookie   CookieTemplate `yaml:"markerCookie"`
	IdentityCookie string         `yaml:"identityCookie" default:"access-token"`

	UpstreamTimeout time.Duration `yaml:"upstreamTimeout" default:"10s"`
}

// Identity configures verification of the bearer tokens issued by the
// dashboard's authentication service.
type Identity struct {
	JWTSecret commoncfg.SourceRef `yaml:"jwtSecret"`
	Issuer    string              `yaml:"issuer"`
	Audience  string              `yaml:"audience" default:"authenticated"`
	Leeway    time.Duration       `yaml:"leeway" default:"30s"`
}

type XAPI struct {
	BaseURL string        `yaml:"baseURL" default:"https://api.twitter.com"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"5m"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name" default:"oauth_state"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure" default:"true"`
	SameSite CookieSameSite `yaml:"sameSite" default:"Lax"`
	HTTPOnly bool           `yaml:"httpOnly" default:"true"`
}

// DefaultScopes are requested when the configuration lists none.
var DefaultScopes = []string{"tweet.read", "users.read", "offline.access"}
