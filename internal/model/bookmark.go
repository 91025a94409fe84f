package model

// Bookmark はユーザーが保存した論文への参照。
// IDは元論文のIDと一致し、重複判定のキーとなる。
type Bookmark struct {
	ID            string   `json:"id" bson:"id"`
	Title         string   `json:"title" bson:"title"`
	Link          string   `json:"link" bson:"link"`
	Source        string   `json:"source" bson:"source"`
	Keyword       string   `json:"keyword" bson:"keyword"`
	Abstract      string   `json:"abstract" bson:"abstract"`
	Authors       []string `json:"authors" bson:"authors"`
	PublishedDate string   `json:"publishedDate" bson:"publishedDate"`
}
