package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/citecrawler/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// ブックマークはusers.bookmarks（JSONB配列）に埋め込んで保存する。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserColumns = `SELECT id, external_id, username, email, avatar_url, bookmarks, created_at, updated_at FROM users`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
// UUIDとして解釈できないIDも未検出として扱う。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	user, err := r.scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByExternalID は外部IDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := r.scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE external_id = $1`, externalID))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。IDが未設定の場合はUUIDを採番する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Bookmarks == nil {
		user.Bookmarks = []model.Bookmark{}
	}
	bookmarks, err := json.Marshal(user.Bookmarks)
	if err != nil {
		return fmt.Errorf("failed to encode bookmarks: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id, username, email, avatar_url, bookmarks, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.ExternalID, user.Username, user.Email, user.AvatarURL, bookmarks, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateExternalID
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィール項目を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = $2, email = $3, avatar_url = $4, updated_at = $5 WHERE id = $1`,
		user.ID, user.Username, user.Email, user.AvatarURL, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

// InitBookmarks はbookmarksがNULLの場合に空配列を設定する。
func (r *PostgresUserRepo) InitBookmarks(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET bookmarks = '[]'::jsonb, updated_at = now() WHERE id = $1 AND bookmarks IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize bookmarks: %w", err)
	}
	return nil
}

// AddBookmark は同一IDの要素が配列に含まれない場合のみ末尾に追加する。
// 存在確認と追加を1つのUPDATE文で行う。
func (r *PostgresUserRepo) AddBookmark(ctx context.Context, userID string, bookmark model.Bookmark) (bool, error) {
	if bookmark.Authors == nil {
		bookmark.Authors = []string{}
	}
	data, err := json.Marshal(bookmark)
	if err != nil {
		return false, fmt.Errorf("failed to encode bookmark: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET bookmarks = COALESCE(bookmarks, '[]'::jsonb) || jsonb_build_array($2::jsonb),
		     updated_at = now()
		 WHERE id = $1
		   AND NOT (COALESCE(bookmarks, '[]'::jsonb) @> jsonb_build_array(jsonb_build_object('id', $3::text)))`,
		userID, data, bookmark.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add bookmark: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// RemoveBookmark は指定IDの要素を除いた配列で置き換える。要素の順序は維持する。
func (r *PostgresUserRepo) RemoveBookmark(ctx context.Context, userID, paperID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET bookmarks = COALESCE((
		       SELECT jsonb_agg(b ORDER BY ord)
		       FROM jsonb_array_elements(COALESCE(bookmarks, '[]'::jsonb)) WITH ORDINALITY AS t(b, ord)
		       WHERE b->>'id' <> $2
		     ), '[]'::jsonb),
		     updated_at = now()
		 WHERE id = $1`,
		userID, paperID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove bookmark: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresUserRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// scanUser は1行をmodel.Userに変換する。行が存在しない場合はnilを返す。
func (r *PostgresUserRepo) scanUser(row *sql.Row) (*model.User, error) {
	var (
		user      model.User
		bookmarks []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&user.ID, &user.ExternalID, &user.Username, &user.Email, &user.AvatarURL,
		&bookmarks, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// NULLは未初期化としてnilのまま返す
	if bookmarks != nil {
		if err := json.Unmarshal(bookmarks, &user.Bookmarks); err != nil {
			return nil, fmt.Errorf("failed to decode bookmarks: %w", err)
		}
	}
	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return &user, nil
}

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// compile-time interface check
var _ UserStore = (*PostgresUserRepo)(nil)
