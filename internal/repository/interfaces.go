// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/citecrawler/internal/model"
)

// ErrDuplicateExternalID は同一の外部IDを持つユーザーが既に存在する場合に返される。
// 初回ログインが並行した場合に後から作成しようとした側が受け取る。
var ErrDuplicateExternalID = errors.New("user with the same external id already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalID は外部IdPのユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// Create はユーザーを作成し、user.IDに採番されたIDを設定する。
	// external_idが重複した場合はErrDuplicateExternalIDを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はusername、email、avatar_urlを更新する。
	UpdateProfile(ctx context.Context, user *model.User) error
}

// BookmarkRepository はユーザーに埋め込まれたブックマークの永続化インターフェース。
// 追加と削除はユーザー単位の単一の条件付き更新として実行する。
type BookmarkRepository interface {
	// InitBookmarks は未初期化のブックマークを空配列で初期化する。
	// 初期化済みの場合は何もしない。
	InitBookmarks(ctx context.Context, userID string) error

	// AddBookmark は同一IDのブックマークが存在しない場合のみ末尾に追加する。
	// 追加した場合はtrue、既に存在した場合（またはユーザーが存在しない場合）はfalseを返す。
	AddBookmark(ctx context.Context, userID string, bookmark model.Bookmark) (bool, error)

	// RemoveBookmark は指定IDのブックマークを削除する。存在しない場合も成功とする。
	RemoveBookmark(ctx context.Context, userID, paperID string) error
}

// UserStore はユーザーとブックマークの両方を扱うストレージ。
// バックエンド（MongoDB、PostgreSQL、メモリ）ごとに1つの実装を持つ。
type UserStore interface {
	UserRepository
	BookmarkRepository

	// Ping はストレージへの疎通を確認する。
	Ping(ctx context.Context) error
}
