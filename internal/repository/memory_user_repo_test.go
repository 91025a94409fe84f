package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hitoshi/citecrawler/internal/model"
)

func TestMemoryUserRepo_CreateAndFind(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()

	user := &model.User{ExternalID: "42", Username: "alice"}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected ID to be assigned")
	}

	byID, _ := repo.FindByID(ctx, user.ID)
	if byID == nil || byID.Username != "alice" {
		t.Errorf("FindByID() = %+v", byID)
	}
	byExt, _ := repo.FindByExternalID(ctx, "42")
	if byExt == nil || byExt.ID != user.ID {
		t.Errorf("FindByExternalID() = %+v", byExt)
	}
	if byExt.Bookmarks == nil {
		t.Error("new users should start with an initialized bookmark list")
	}

	missing, err := repo.FindByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("FindByID(nope) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestMemoryUserRepo_Create_DuplicateExternalID(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()

	if err := repo.Create(ctx, &model.User{ExternalID: "42"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, &model.User{ExternalID: "42"})
	if !errors.Is(err, ErrDuplicateExternalID) {
		t.Errorf("Create() error = %v, want ErrDuplicateExternalID", err)
	}
	if repo.Len() != 1 {
		t.Errorf("Len() = %d, want 1", repo.Len())
	}
}

func TestMemoryUserRepo_ReturnsCopies(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &model.User{ExternalID: "42"}
	repo.Create(ctx, user)
	repo.AddBookmark(ctx, user.ID, model.Bookmark{ID: "p1", Authors: []string{"A"}})

	got, _ := repo.FindByID(ctx, user.ID)
	got.Bookmarks[0].Authors[0] = "mutated"
	got.Bookmarks = append(got.Bookmarks, model.Bookmark{ID: "p2"})

	again, _ := repo.FindByID(ctx, user.ID)
	if len(again.Bookmarks) != 1 || again.Bookmarks[0].Authors[0] != "A" {
		t.Errorf("stored user was mutated through a returned copy: %+v", again.Bookmarks)
	}
}

func TestMemoryUserRepo_AddBookmark_RejectsDuplicateAndUnknownUser(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &model.User{ExternalID: "42"}
	repo.Create(ctx, user)

	if added, _ := repo.AddBookmark(ctx, user.ID, model.Bookmark{ID: "p1"}); !added {
		t.Fatal("first add should succeed")
	}
	if added, _ := repo.AddBookmark(ctx, user.ID, model.Bookmark{ID: "p1"}); added {
		t.Error("duplicate add should be rejected")
	}
	if added, _ := repo.AddBookmark(ctx, "unknown", model.Bookmark{ID: "p1"}); added {
		t.Error("add for unknown user should be rejected")
	}
}

// 同一ユーザーへの並行した追加がどちらも失われないことを検証する。
// ドキュメント単位の条件付き更新のため、後勝ちで片方が消えることはない。
func TestMemoryUserRepo_ConcurrentAdds_KeepAllBookmarks(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &model.User{ExternalID: "42"}
	repo.Create(ctx, user)

	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			repo.AddBookmark(ctx, user.ID, model.Bookmark{ID: id})
		}(id)
	}
	wg.Wait()

	got, _ := repo.FindByID(ctx, user.ID)
	if len(got.Bookmarks) != len(ids) {
		t.Errorf("len(Bookmarks) = %d, want %d", len(got.Bookmarks), len(ids))
	}
}

func TestMemoryUserRepo_InitBookmarks(t *testing.T) {
	repo := NewMemoryUserRepo()
	ctx := context.Background()
	user := &model.User{ExternalID: "42"}
	repo.Create(ctx, user)
	repo.ClearBookmarks(user.ID)

	got, _ := repo.FindByID(ctx, user.ID)
	if got.Bookmarks != nil {
		t.Fatal("expected bookmarks to be uninitialized")
	}

	if err := repo.InitBookmarks(ctx, user.ID); err != nil {
		t.Fatalf("InitBookmarks() error = %v", err)
	}
	got, _ = repo.FindByID(ctx, user.ID)
	if got.Bookmarks == nil {
		t.Error("expected bookmarks to be initialized")
	}
}
