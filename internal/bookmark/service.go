// Package bookmark はユーザーごとのブックマーク一覧の操作を提供する。
package bookmark

import (
	"context"
	"log/slog"

	"github.com/hitoshi/citecrawler/internal/model"
	"github.com/hitoshi/citecrawler/internal/repository"
)

// Store はブックマーク操作に必要なストレージ操作。
type Store interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	repository.BookmarkRepository
}

// Service はブックマークのビジネスロジックを提供する。
// 呼び出し元で認証済みのユーザーIDを解決していることを前提とする。
type Service struct {
	store Store
}

// NewService はServiceを生成する。
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List はユーザーのブックマークを登録順で返す。
// ブックマークが未初期化の場合は空で初期化し、空のスライスを返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.Bookmark, error) {
	u, err := s.loadUser(ctx, userID, "Failed to fetch bookmarks")
	if err != nil {
		return nil, err
	}

	if u.Bookmarks == nil {
		if err := s.heal(ctx, userID, "Failed to fetch bookmarks"); err != nil {
			return nil, err
		}
		return []model.Bookmark{}, nil
	}
	return u.Bookmarks, nil
}

// Add はpaperを正規化してブックマークの末尾に追加する。
// 同じIDのブックマークが既にある場合はAlreadyBookmarkedを返す。
func (s *Service) Add(ctx context.Context, userID string, paper map[string]any) error {
	if paper == nil {
		return model.NewMissingParameterError("Paper data required")
	}
	b := Normalize(paper)
	if b.ID == "" {
		return model.NewMissingParameterError("Paper ID required")
	}

	u, err := s.loadUser(ctx, userID, "Failed to add bookmark")
	if err != nil {
		return err
	}
	if u.HasBookmark(b.ID) {
		return model.NewAlreadyBookmarkedError()
	}
	if u.Bookmarks == nil {
		if err := s.heal(ctx, userID, "Failed to add bookmark"); err != nil {
			return err
		}
	}

	// 重複チェックと追加はストレージ側で1回の条件付き更新として行う
	added, err := s.store.AddBookmark(ctx, userID, b)
	if err != nil {
		slog.Error("failed to add bookmark",
			slog.String("user_id", userID),
			slog.String("paper_id", b.ID),
			slog.String("error", err.Error()),
		)
		return model.NewStorageFailureError("Failed to add bookmark")
	}
	if !added {
		return model.NewAlreadyBookmarkedError()
	}

	slog.Info("bookmark added",
		slog.String("user_id", userID),
		slog.String("paper_id", b.ID),
	)
	return nil
}

// Remove は指定IDのブックマークを削除する。存在しないIDの場合も成功とする。
func (s *Service) Remove(ctx context.Context, userID, paperID string) error {
	if paperID == "" {
		return model.NewMissingParameterError("Paper ID required")
	}

	u, err := s.loadUser(ctx, userID, "Failed to remove bookmark")
	if err != nil {
		return err
	}
	// $pullの前にbookmarksを空配列にしておく
	if u.Bookmarks == nil {
		if err := s.heal(ctx, userID, "Failed to remove bookmark"); err != nil {
			return err
		}
	}

	if err := s.store.RemoveBookmark(ctx, userID, paperID); err != nil {
		slog.Error("failed to remove bookmark",
			slog.String("user_id", userID),
			slog.String("paper_id", paperID),
			slog.String("error", err.Error()),
		)
		return model.NewStorageFailureError("Failed to remove bookmark")
	}

	slog.Info("bookmark removed",
		slog.String("user_id", userID),
		slog.String("paper_id", paperID),
	)
	return nil
}

// loadUser はユーザーを取得する。存在しない場合はUserNotFoundを返す。
func (s *Service) loadUser(ctx context.Context, userID, failureMessage string) (*model.User, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		slog.Error("failed to load user",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageFailureError(failureMessage)
	}
	if u == nil {
		slog.Warn("session user not found", slog.String("user_id", userID))
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

func (s *Service) heal(ctx context.Context, userID, failureMessage string) error {
	if err := s.store.InitBookmarks(ctx, userID); err != nil {
		slog.Error("failed to initialize bookmarks",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewStorageFailureError(failureMessage)
	}
	slog.Info("bookmarks initialized", slog.String("user_id", userID))
	return nil
}
