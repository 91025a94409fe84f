// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/citecrawler/internal/auth"
	"github.com/hitoshi/citecrawler/internal/metrics"
	"github.com/hitoshi/citecrawler/internal/middleware"
	"github.com/hitoshi/citecrawler/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code, state, expectedState string) (*auth.LoginResult, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。collectorがnilの場合は記録しない。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

// Login はGitHub OAuthフローを開始する。
// GET /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理し、セッションCookieを設定して/homeへリダイレクトする。
// GET /api/auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	var expectedState string
	if c, err := r.Cookie(oauthStateCookie); err == nil {
		expectedState = c.Value
	}

	// stateクッキーは結果によらず使い捨てにする
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	result, err := h.service.HandleCallback(r.Context(), code, state, expectedState)
	if err != nil {
		h.writeCallbackError(w, err)
		return
	}
	h.metrics.RecordLogin(metrics.LoginSuccess)

	h.setSessionCookie(w, result.Token, h.config.SessionMaxAge)
	http.Redirect(w, r, h.redirectURL("/home"), http.StatusFound)
}

// writeCallbackError はコールバックの失敗を分類してレスポンスする。
// 予期しないエラーはdetailsに原因を含めて500を返す。
func (h *AuthHandler) writeCallbackError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status := mapAPIErrorToHTTPStatus(apiErr)
		switch status {
		case http.StatusBadRequest:
			h.metrics.RecordLogin(metrics.LoginInvalidRequest)
		case http.StatusUnauthorized:
			h.metrics.RecordLogin(metrics.LoginUpstreamFailure)
		default:
			h.metrics.RecordLogin(metrics.LoginError)
		}
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	h.metrics.RecordLogin(metrics.LoginError)
	slog.Error("oauth callback failed", slog.String("error", err.Error()))
	middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError(err.Error()))
}

// Logout はセッションCookieを削除する。
// POST /api/auth/logout はJSONを返し、GET /api/auth/logout はトップページへリダイレクトする。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)

	if r.Method == http.MethodGet {
		http.Redirect(w, r, h.redirectURL("/"), http.StatusFound)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// meResponse は現在のログインユーザー情報のレスポンス。
type meResponse struct {
	UserID    string `json:"userId"`
	GitHubID  string `json:"githubId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Me は現在のログインユーザー情報を返す。SessionMiddlewareの後に配置する。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, meResponse{
		UserID:    claims.UserID,
		GitHubID:  claims.ExternalID,
		Username:  claims.Username,
		AvatarURL: claims.AvatarURL,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectURL はBaseURLを基準にしたリダイレクト先を返す。BaseURLが空の場合は相対パスになる。
func (h *AuthHandler) redirectURL(path string) string {
	return strings.TrimRight(h.config.BaseURL, "/") + path
}
