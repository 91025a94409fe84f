package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/citecrawler/internal/model"
)

// sessionClaims はセッショントークンのペイロード。
type sessionClaims struct {
	UserID    string `json:"userId"`
	GitHubID  string `json:"githubId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	jwt.RegisteredClaims
}

// TokenService はHS256で署名したセッショントークンを発行・検証する。
// サーバー側に状態を持たないため失効リストはなく、秘密鍵のローテーションで全トークンが無効になる。
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue はユーザーのセッショントークンを発行し、有効期限とともに返す。
func (s *TokenService) Issue(user *model.User) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, errors.New("user id is required to issue a token")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := sessionClaims{
		UserID:    user.ID,
		GitHubID:  user.ExternalID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンを検証してクレームを返す。
// 形式不正、署名不一致、期限切れ、想定外のアルゴリズムはいずれもnilを返し、区別しない。
func (s *TokenService) Verify(token string) *model.SessionClaims {
	if token == "" {
		return nil
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil
	}

	return &model.SessionClaims{
		UserID:     claims.UserID,
		ExternalID: claims.GitHubID,
		Username:   claims.Username,
		AvatarURL:  claims.AvatarURL,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
}
