package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/citecrawler/internal/model"
)

// MemoryUserRepo はプロセス内メモリにユーザーを保持するリポジトリ。
// ローカル開発（DATABASE_URL=memory://）とテストで使用する。
// 呼び出し側との共有を避けるため、入出力は常にコピーする。
type MemoryUserRepo struct {
	mu         sync.RWMutex
	users      map[string]*model.User
	byExternal map[string]string // external_id -> id
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:      make(map[string]*model.User),
		byExternal: make(map[string]string),
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

// FindByExternalID は外部IDでユーザーを検索する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	return cloneUser(r.users[id]), nil
}

// Create はユーザーを作成する。external_idが重複した場合はErrDuplicateExternalIDを返す。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byExternal[user.ExternalID]; exists {
		return ErrDuplicateExternalID
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Bookmarks == nil {
		user.Bookmarks = []model.Bookmark{}
	}
	r.users[user.ID] = cloneUser(user)
	r.byExternal[user.ExternalID] = user.ID
	return nil
}

// UpdateProfile はプロフィール項目を更新する。存在しないユーザーは無視する。
func (r *MemoryUserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return nil
	}
	stored.Username = user.Username
	stored.Email = user.Email
	stored.AvatarURL = user.AvatarURL
	stored.UpdatedAt = user.UpdatedAt
	return nil
}

// InitBookmarks は未初期化のブックマークを空配列で初期化する。
func (r *MemoryUserRepo) InitBookmarks(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok && u.Bookmarks == nil {
		u.Bookmarks = []model.Bookmark{}
		u.UpdatedAt = time.Now()
	}
	return nil
}

// AddBookmark は同一IDのブックマークが存在しない場合のみ末尾に追加する。
func (r *MemoryUserRepo) AddBookmark(_ context.Context, userID string, bookmark model.Bookmark) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.HasBookmark(bookmark.ID) {
		return false, nil
	}
	bookmark.Authors = slices.Clone(bookmark.Authors)
	if bookmark.Authors == nil {
		bookmark.Authors = []string{}
	}
	u.Bookmarks = append(u.Bookmarks, bookmark)
	u.UpdatedAt = time.Now()
	return true, nil
}

// RemoveBookmark は指定IDのブックマークを削除する。
func (r *MemoryUserRepo) RemoveBookmark(_ context.Context, userID, paperID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.Bookmarks == nil {
		return nil
	}
	u.Bookmarks = slices.DeleteFunc(u.Bookmarks, func(b model.Bookmark) bool {
		return b.ID == paperID
	})
	u.UpdatedAt = time.Now()
	return nil
}

// Ping は常に成功する。
func (r *MemoryUserRepo) Ping(_ context.Context) error {
	return nil
}

// Len は保持しているユーザー数を返す。テスト用。
func (r *MemoryUserRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// ClearBookmarks はブックマークを未初期化状態に戻す。
// 古いドキュメントを模したテストで使用する。
func (r *MemoryUserRepo) ClearBookmarks(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.Bookmarks = nil
	}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.Bookmarks != nil {
		c.Bookmarks = make([]model.Bookmark, len(u.Bookmarks))
		for i, b := range u.Bookmarks {
			b.Authors = slices.Clone(b.Authors)
			c.Bookmarks[i] = b
		}
	}
	return &c
}

// compile-time interface check
var _ UserStore = (*MemoryUserRepo)(nil)
