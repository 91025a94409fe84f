package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// newGitHubStub はトークン、プロフィール、メール一覧の各エンドポイントを持つスタブサーバーを起動する。
func newGitHubStub(t *testing.T, emailsHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request: %v", err)
		}
		if r.FormValue("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "gho_test-token",
			"token_type":   "bearer",
			"scope":        "read:user,user:email",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer gho_test-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         42,
			"login":      "alice",
			"email":      "public@example.com",
			"avatar_url": "https://avatars.githubusercontent.com/u/42",
		})
	})
	mux.HandleFunc("/user/emails", emailsHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHubProvider(srv *httptest.Server) *GitHubOAuthProvider {
	return NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/api/auth/callback",
		AuthURL:      srv.URL + "/login/oauth/authorize",
		TokenURL:     srv.URL + "/login/oauth/access_token",
		APIBaseURL:   srv.URL,
	})
}

func TestGitHubOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/api/auth/callback",
	})

	raw := provider.GetLoginURL("test-state-value")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}
	if u.Host != "github.com" {
		t.Errorf("host = %q, want github.com", u.Host)
	}

	q := u.Query()
	tests := []struct {
		param string
		want  string
	}{
		{"client_id", "test-client-id"},
		{"redirect_uri", "http://localhost:8080/api/auth/callback"},
		{"state", "test-state-value"},
		{"response_type", "code"},
		{"scope", "read:user user:email"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			if got := q.Get(tt.param); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
			}
		})
	}
}

func TestGitHubOAuthProvider_ExchangeCode_Success(t *testing.T) {
	srv := newGitHubStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "primary@example.com", "primary": true, "verified": true},
		})
	})

	info, err := newTestGitHubProvider(srv).ExchangeCode(context.Background(), "good-code", "state-1")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if info.ProviderUserID != "42" {
		t.Errorf("ProviderUserID = %q, want %q", info.ProviderUserID, "42")
	}
	if info.Login != "alice" {
		t.Errorf("Login = %q, want %q", info.Login, "alice")
	}
	if info.Email != "primary@example.com" {
		t.Errorf("Email = %q, want %q", info.Email, "primary@example.com")
	}
	if info.AvatarURL != "https://avatars.githubusercontent.com/u/42" {
		t.Errorf("AvatarURL = %q", info.AvatarURL)
	}
}

func TestGitHubOAuthProvider_ExchangeCode_EmailsError_AbortsLogin(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusInternalServerError} {
		srv := newGitHubStub(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		info, err := newTestGitHubProvider(srv).ExchangeCode(context.Background(), "good-code", "state-1")
		if err == nil {
			t.Fatalf("status %d: expected error, got info %+v", status, info)
		}
		if info != nil {
			t.Errorf("status %d: info should be nil on failure", status)
		}
		if !strings.Contains(err.Error(), "user emails") {
			t.Errorf("status %d: error = %v, want emails fetch failure", status, err)
		}
	}
}

func TestGitHubOAuthProvider_ExchangeCode_NoPrimaryEmail(t *testing.T) {
	srv := newGitHubStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"email":"other@example.com","primary":false}]`))
	})

	info, err := newTestGitHubProvider(srv).ExchangeCode(context.Background(), "good-code", "state-1")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if info.Email != "public@example.com" {
		t.Errorf("Email = %q, want %q", info.Email, "public@example.com")
	}
}

func TestGitHubOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	srv := newGitHubStub(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("emails endpoint should not be called when token exchange fails")
	})

	_, err := newTestGitHubProvider(srv).ExchangeCode(context.Background(), "bad-code", "state-1")
	if err == nil {
		t.Fatal("expected error for rejected code")
	}
	if !strings.Contains(err.Error(), "exchange token") {
		t.Errorf("error = %v, want token exchange failure", err)
	}
}

func TestGitHubOAuthProvider_ExchangeCode_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer srv.Close()

	provider := newTestGitHubProvider(srv)
	if _, err := provider.ExchangeCode(context.Background(), "good-code", "state-1"); err == nil {
		t.Fatal("expected error when access_token is missing")
	}
}

func TestGitHubOAuthProvider_ExchangeCode_ProfileError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login/oauth/access_token" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"gho_test-token","token_type":"bearer"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestGitHubProvider(srv).ExchangeCode(context.Background(), "good-code", "state-1")
	if err == nil {
		t.Fatal("expected error when profile fetch fails")
	}
	if !strings.Contains(err.Error(), "user profile") {
		t.Errorf("error = %v, want profile failure", err)
	}
}
