package search

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Paper は検索結果1件を表示用に正規化したもの。
type Paper struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Link          string   `json:"link"`
	PDFLink       string   `json:"pdfLink"`
	Source        string   `json:"source"`
	Keyword       string   `json:"keyword"`
	Abstract      string   `json:"abstract"`
	Authors       []string `json:"authors"`
	PublishedDate string   `json:"publishedDate"`
	Score         float64  `json:"score"`
}

const defaultSource = "Papers"

// フィールドごとの候補キー。先頭から順に最初に見つかった非空の値を使う。
var (
	titleKeys     = []string{"title", "name", "paper_title", "Title"}
	linkKeys      = []string{"link", "url", "pdf_url", "arxiv_url"}
	abstractKeys  = []string{"abstract", "summary", "description"}
	idKeys        = []string{"id", "paper_id"}
	sourceKeys    = []string{"source", "venue"}
	authorKeys    = []string{"authors", "author"}
	publishedKeys = []string{"publishedDate", "date", "published_date"}
)

// textPolicy は検索結果のテキストからマークアップを取り除く。
var textPolicy = bluemonday.StrictPolicy()

// Normalize は検索バックエンドが返す形の揃わないレコードをPaperに変換する。
// indexはページをまたいだ通し番号で、タイトルやIDが無い場合の既定値に使う。
// Keywordは設定しない。検索語は呼び出し側が設定する。
func Normalize(raw map[string]any, index int) Paper {
	p := Paper{
		ID:            firstString(raw, idKeys),
		Title:         plainText(firstString(raw, titleKeys)),
		Link:          firstString(raw, linkKeys),
		Source:        firstString(raw, sourceKeys),
		Abstract:      plainText(firstString(raw, abstractKeys)),
		Authors:       firstAuthors(raw, authorKeys),
		PublishedDate: firstString(raw, publishedKeys),
		Score:         number(raw["score"]),
	}

	if p.ID == "" {
		p.ID = fmt.Sprintf("paper-%d", index)
	}
	if p.Title == "" {
		p.Title = fmt.Sprintf("Paper %d", index+1)
	}
	if p.Source == "" {
		p.Source = defaultSource
	}
	p.PDFLink = PDFLink(p.Link)
	return p
}

// PDFLink はarXivの概要ページのリンクをPDFのリンクに変換する。
// 既にPDFのリンクやarXiv以外のリンクはそのまま返す。
func PDFLink(link string) string {
	const abs = "arxiv.org/abs/"
	i := strings.Index(link, abs)
	if i < 0 {
		return link
	}
	return link[:i] + "arxiv.org/pdf/" + link[i+len(abs):] + ".pdf"
}

func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if s := toString(raw[k]); s != "" {
			return s
		}
	}
	return ""
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// firstAuthors は候補キーのうち最初に著者を1人以上含むものを使う。
func firstAuthors(raw map[string]any, keys []string) []string {
	for _, k := range keys {
		if a := authors(raw[k]); len(a) > 0 {
			return a
		}
	}
	return []string{}
}

// authors は配列またはカンマ区切りの文字列を著者名のスライスに変換する。
func authors(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if s := toString(e); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func plainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}
