// Package model はドメインモデルを定義する。
package model

import "time"

// User はGitHubでログインしたユーザーを表す。
// ブックマークはユーザーのドキュメントに埋め込まれ、単独では参照されない。
type User struct {
	ID         string
	ExternalID string // GitHubのユーザーID。不変の自然キー
	Username   string
	Email      string
	AvatarURL  string

	// Bookmarks は登録順に並ぶ。nilは未初期化を表す。
	Bookmarks []Bookmark

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasBookmark は指定IDのブックマークが既に存在するかを返す。
func (u *User) HasBookmark(paperID string) bool {
	for _, b := range u.Bookmarks {
		if b.ID == paperID {
			return true
		}
	}
	return false
}

// SessionClaims はセッショントークンに埋め込むユーザー識別情報。
type SessionClaims struct {
	UserID     string
	ExternalID string
	Username   string
	AvatarURL  string
	ExpiresAt  time.Time
}
