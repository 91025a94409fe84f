// Package user はログインユーザーの登録・更新を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/citecrawler/internal/model"
	"github.com/hitoshi/citecrawler/internal/repository"
)

// Profile はIdPから取得したユーザーのプロフィール。
type Profile struct {
	ExternalID string
	Username   string
	Email      string
	AvatarURL  string
}

// Directory は外部IDをキーにユーザーを管理する。
type Directory struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewDirectory はDirectoryを生成する。
func NewDirectory(userRepo repository.UserRepository) *Directory {
	return &Directory{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// FindOrCreate は外部IDでユーザーを検索し、存在しなければ空のブックマークで作成する。
// 既存ユーザーはプロフィールが変わっていれば更新する。同じプロフィールで何度呼んでも結果は変わらない。
func (d *Directory) FindOrCreate(ctx context.Context, profile Profile) (*model.User, error) {
	if profile.ExternalID == "" {
		return nil, model.NewMissingParameterError("external id is required")
	}

	existing, err := d.userRepo.FindByExternalID(ctx, profile.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return d.refresh(ctx, existing, profile)
	}

	now := d.now()
	u := &model.User{
		ExternalID: profile.ExternalID,
		Username:   profile.Username,
		Email:      profile.Email,
		AvatarURL:  profile.AvatarURL,
		Bookmarks:  []model.Bookmark{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := d.userRepo.Create(ctx, u); err != nil {
		if !errors.Is(err, repository.ErrDuplicateExternalID) {
			return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
		}

		// 並行した初回ログインで先に作成された。作成済みのユーザーを使う
		existing, err := d.userRepo.FindByExternalID(ctx, profile.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの再取得に失敗しました: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("user %s vanished after duplicate create", profile.ExternalID)
		}
		return d.refresh(ctx, existing, profile)
	}

	slog.Info("new user created",
		slog.String("user_id", u.ID),
		slog.String("github_id", u.ExternalID),
	)
	return u, nil
}

// refresh はプロフィールの差分があれば保存し、更新後のユーザーを返す。
func (d *Directory) refresh(ctx context.Context, u *model.User, profile Profile) (*model.User, error) {
	if u.Username == profile.Username && u.Email == profile.Email && u.AvatarURL == profile.AvatarURL {
		return u, nil
	}

	u.Username = profile.Username
	u.Email = profile.Email
	u.AvatarURL = profile.AvatarURL
	u.UpdatedAt = d.now()

	if err := d.userRepo.UpdateProfile(ctx, u); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return u, nil
}
