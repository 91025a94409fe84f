// Package auth はGitHub OAuthによるログインフローとセッショントークンを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/citecrawler/internal/model"
	"github.com/hitoshi/citecrawler/internal/user"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Login          string
	Email          string
	AvatarURL      string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code, state string) (*OAuthUserInfo, error)
}

// UserDirectory はログインしたユーザーの登録・更新を行う。
type UserDirectory interface {
	FindOrCreate(ctx context.Context, profile user.Profile) (*model.User, error)
}

// TokenIssuer はセッショントークンを発行する。
type TokenIssuer interface {
	Issue(u *model.User) (string, time.Time, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// StrictState がtrueの場合、コールバックのstateがログイン開始時に発行した値と一致することを要求する。
	StrictState bool
}

// LoginResult はコールバック処理の結果。
type LoginResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	directory UserDirectory
	tokens    TokenIssuer
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, directory UserDirectory, tokens TokenIssuer, config ServiceConfig) *Service {
	return &Service{
		oauth:     oauth,
		directory: directory,
		tokens:    tokens,
		config:    config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// expectedStateはログイン開始時にCookieへ保存したstate。
func (s *Service) HandleCallback(ctx context.Context, code, state, expectedState string) (*LoginResult, error) {
	// 1. パラメータ検証（ネットワーク呼び出しより前に行う）
	if code == "" || state == "" {
		return nil, model.NewMissingParameterError("Missing code or state")
	}
	if s.config.StrictState && state != expectedState {
		slog.Warn("oauth state mismatch", slog.Bool("cookie_present", expectedState != ""))
		return nil, model.NewInvalidStateError()
	}

	// 2. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := s.oauth.ExchangeCode(ctx, code, state)
	if err != nil {
		slog.Warn("github credential exchange failed", slog.String("error", err.Error()))
		return nil, model.NewUpstreamAuthFailureError()
	}

	// 3. ユーザーを登録または更新
	u, err := s.directory.FindOrCreate(ctx, user.Profile{
		ExternalID: info.ProviderUserID,
		Username:   info.Login,
		Email:      info.Email,
		AvatarURL:  info.AvatarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find or create user: %w", err)
	}

	// 4. セッショントークンを発行
	token, expiresAt, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", u.ID),
		slog.String("github_id", u.ExternalID),
	)

	return &LoginResult{User: u, Token: token, ExpiresAt: expiresAt}, nil
}

// GenerateState はOAuthのstateに使う暗号的に安全なランダム文字列を生成する。
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
