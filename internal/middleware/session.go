// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/citecrawler/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストにセッションのクレームを格納するためのキー。
var claimsContextKey = contextKey("session_claims")

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// 無効なトークンにはnilを返す。
type TokenVerifier interface {
	Verify(token string) *model.SessionClaims
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 署名と有効期限を検証するミドルウェアを返す。
// 検証済みのクレームをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。期限切れと改ざんは区別しない。
func NewSessionMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromRequest(r, verifier)
			if claims == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			setLoggedUserID(r.Context(), claims.UserID)

			ctx := ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromRequest はリクエストのCookieからセッショントークンを検証してクレームを返す。
// Cookieが無い場合や検証に失敗した場合はnilを返す。
func ClaimsFromRequest(r *http.Request, verifier TokenVerifier) *model.SessionClaims {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return verifier.Verify(cookie.Value)
}

// ClaimsFromContext はリクエストコンテキストからセッションのクレームを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (*model.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*model.SessionClaims)
	return claims, ok && claims != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return claims.UserID, nil
}

// ContextWithClaims はコンテキストにクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *model.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
