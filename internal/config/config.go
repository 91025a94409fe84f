// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"citecrawler"`

	// OAuth (GitHub)
	GitHubClientID     string `env:"GITHUB_CLIENT_ID,required,notEmpty"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET,required,notEmpty"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL,required,notEmpty"`
	OAuthStrictState   bool   `env:"OAUTH_STRICT_STATE" envDefault:"true"`

	// Session
	SessionSecret string `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" envDefault:"604800"` // 7日（秒）

	// Search backend
	SearchBackendURL string        `env:"SEARCH_BACKEND_URL,required,notEmpty"`
	SearchTimeout    time.Duration `env:"SEARCH_TIMEOUT" envDefault:"10s"`
	SearchPageSize   int           `env:"SEARCH_PAGE_SIZE" envDefault:"10"`

	// Rate Limit (req/min/user)
	RateLimitGeneral       int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitBookmarkWrite int `env:"RATE_LIMIT_BOOKMARK_WRITE" envDefault:"30"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL"`
	AppEnv     string `env:"APP_ENV" envDefault:"development"`

	// Cookie
	CookieDomain string `env:"COOKIE_DOMAIN"`
	// CookieSecure はBASE_URLがhttpsか、APP_ENVがproductionの場合にtrueとなる。
	CookieSecure bool

	// CORS / CSRF
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
	CSRFProtection    bool   `env:"CSRF_PROTECTION" envDefault:"false"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は未設定の変数名を列挙したエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		if missing := missingKeys(err); len(missing) > 0 {
			return nil, fmt.Errorf("required environment variables are not set: %v", missing)
		}
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive: %d", cfg.SessionMaxAge)
	}
	if cfg.SearchPageSize <= 0 {
		return nil, fmt.Errorf("SEARCH_PAGE_SIZE must be positive: %d", cfg.SearchPageSize)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://") || cfg.IsProduction()

	return cfg, nil
}

// IsProduction は本番環境として起動しているかを返す。
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// SessionTTL はセッションの有効期間を返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

// ParseLogLevel はLOG_LEVELの値をslog.Levelに変換する。
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// missingKeys はenv.Parseのエラーから未設定・空の必須変数名を取り出す。
func missingKeys(err error) []string {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return nil
	}

	var keys []string
	for _, e := range agg.Errors {
		var notSet env.EnvVarIsNotSetError
		var empty env.EmptyVarError
		switch {
		case errors.As(e, &notSet):
			keys = append(keys, notSet.Key)
		case errors.As(e, &empty):
			keys = append(keys, empty.Key)
		}
	}
	return keys
}
