package bookmark

import (
	"strconv"

	"github.com/hitoshi/citecrawler/internal/model"
)

// Normalize はクライアントから受け取った論文データのうち、保存対象のフィールドだけを取り出す。
// 未知のフィールドは破棄し、authorsが無い場合は空のスライスとする。
func Normalize(paper map[string]any) model.Bookmark {
	return model.Bookmark{
		ID:            stringField(paper["id"]),
		Title:         stringField(paper["title"]),
		Link:          stringField(paper["link"]),
		Source:        stringField(paper["source"]),
		Keyword:       stringField(paper["keyword"]),
		Abstract:      stringField(paper["abstract"]),
		Authors:       stringsField(paper["authors"]),
		PublishedDate: stringField(paper["publishedDate"]),
	}
}

// stringField は文字列または数値を文字列に変換する。それ以外は空文字列とする。
func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func stringsField(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if s := stringField(e); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, t...)
	case string:
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
