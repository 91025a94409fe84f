package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/hitoshi/citecrawler/internal/model"
)

// UsersCollection はユーザードキュメントを格納するコレクション名。
const UsersCollection = "users"

// mongoUser はusersコレクションのドキュメント表現。
// フィールド名は既存のWebアプリが作成したドキュメントと共通にする。
type mongoUser struct {
	ID         bson.ObjectID    `bson:"_id,omitempty"`
	ExternalID string           `bson:"githubId"`
	Username   string           `bson:"username"`
	Email      string           `bson:"email"`
	AvatarURL  string           `bson:"avatarUrl"`
	Bookmarks  []model.Bookmark `bson:"bookmarks"`
	CreatedAt  time.Time        `bson:"createdAt"`
	UpdatedAt  time.Time        `bson:"updatedAt"`
}

func (d *mongoUser) toModel() *model.User {
	return &model.User{
		ID:         d.ID.Hex(),
		ExternalID: d.ExternalID,
		Username:   d.Username,
		Email:      d.Email,
		AvatarURL:  d.AvatarURL,
		Bookmarks:  d.Bookmarks,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
// ブックマークはユーザードキュメントのbookmarks配列に埋め込む。
type MongoUserRepo struct {
	client *mongo.Client
	users  *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(client *mongo.Client, database string) *MongoUserRepo {
	return &MongoUserRepo{
		client: client,
		users:  client.Database(database).Collection(UsersCollection),
	}
}

// EnsureIndexes はgithubIdの一意インデックスを作成する。
// 起動時に1回だけ呼び出す。既に存在する場合は何もしない。
func (r *MongoUserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "githubId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("githubId_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create githubId index: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
// ObjectIDとして解釈できないIDも未検出として扱う。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	user, err := r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByExternalID は外部IDでユーザーを検索する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.D{{Key: "githubId", Value: externalID}})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// Create はユーザードキュメントを挿入し、採番された_idをuser.IDに設定する。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	bookmarks := user.Bookmarks
	if bookmarks == nil {
		// nilスライスはnullとしてエンコードされるため空配列を明示する
		bookmarks = []model.Bookmark{}
	}
	doc := mongoUser{
		ID:         bson.NewObjectID(),
		ExternalID: user.ExternalID,
		Username:   user.Username,
		Email:      user.Email,
		AvatarURL:  user.AvatarURL,
		Bookmarks:  bookmarks,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}

	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateExternalID
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.ID = doc.ID.Hex()
	user.Bookmarks = bookmarks
	return nil
}

// UpdateProfile はプロフィール項目を更新する。
func (r *MongoUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	oid, err := bson.ObjectIDFromHex(user.ID)
	if err != nil {
		return fmt.Errorf("invalid user ID %q: %w", user.ID, err)
	}
	_, err = r.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "username", Value: user.Username},
			{Key: "email", Value: user.Email},
			{Key: "avatarUrl", Value: user.AvatarURL},
			{Key: "updatedAt", Value: user.UpdatedAt},
		}}},
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

// InitBookmarks はbookmarksフィールドが存在しないかnullの場合に空配列を設定する。
func (r *MongoUserRepo) InitBookmarks(ctx context.Context, userID string) error {
	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("invalid user ID %q: %w", userID, err)
	}
	// {bookmarks: null} はフィールド欠落とnullの両方に一致する
	_, err = r.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "bookmarks", Value: nil}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "bookmarks", Value: bson.A{}},
			{Key: "updatedAt", Value: time.Now()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("failed to initialize bookmarks: %w", err)
	}
	return nil
}

// AddBookmark は同一IDの要素を含まないドキュメントに対してのみ$pushする。
// 存在確認と追加をドキュメント単位の1回の更新で行う。
func (r *MongoUserRepo) AddBookmark(ctx context.Context, userID string, bookmark model.Bookmark) (bool, error) {
	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}
	if bookmark.Authors == nil {
		bookmark.Authors = []string{}
	}

	result, err := r.users.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: oid},
			{Key: "bookmarks.id", Value: bson.D{{Key: "$ne", Value: bookmark.ID}}},
		},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "bookmarks", Value: bookmark}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now()}}},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to add bookmark: %w", err)
	}
	return result.MatchedCount == 1, nil
}

// RemoveBookmark は$pullで指定IDの要素を削除する。
// bookmarksが配列でないドキュメントには一致させず、何もしない。
func (r *MongoUserRepo) RemoveBookmark(ctx context.Context, userID, paperID string) error {
	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	_, err = r.users.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: oid},
			{Key: "bookmarks", Value: bson.D{{Key: "$type", Value: "array"}}},
		},
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: "bookmarks", Value: bson.D{{Key: "id", Value: paperID}}}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now()}}},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to remove bookmark: %w", err)
	}
	return nil
}

// Ping はプライマリへの疎通を確認する。
func (r *MongoUserRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.D) (*model.User, error) {
	var doc mongoUser
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// compile-time interface check
var _ UserStore = (*MongoUserRepo)(nil)
