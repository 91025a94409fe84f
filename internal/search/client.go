// Package search は外部の論文検索バックエンドの呼び出しと結果の正規化を提供する。
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultPageSize は1ページあたりの検索件数。
const DefaultPageSize = 10

// maxResponseSize は検索レスポンスの最大サイズ。
const maxResponseSize = 5 << 20

// ClientConfig は検索クライアントの設定。
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int

	// HTTPClient が指定された場合はTimeoutより優先する。
	HTTPClient *http.Client
}

// Page は検索結果の1ページ分。
type Page struct {
	Papers  []Paper `json:"papers"`
	Page    int     `json:"page"`
	HasMore bool    `json:"hasMore"`
}

// Client は検索バックエンドのHTTPクライアント。
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		pageSize:   pageSize,
		httpClient: httpClient,
	}
}

// PageSize は1ページあたりの件数を返す。
func (c *Client) PageSize() int {
	return c.pageSize
}

// Search は検索バックエンドにクエリを送り、結果を正規化して返す。
// バックエンドが2xx以外を返した場合や通信に失敗した場合はエラーを返す。
// 2xxでも解釈できない本文の場合は空のページを返す。
// 次ページの有無は取得件数がページサイズに達したかで判定するため、件数がちょうど割り切れる場合は空の次ページが生じる。
func (c *Client) Search(ctx context.Context, query string, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	params := url.Values{
		"q":     {query},
		"top_k": {strconv.Itoa(c.pageSize)},
		"page":  {strconv.Itoa(page)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	records, ok := decodeResults(body)
	if !ok {
		slog.Warn("search backend returned an unexpected body",
			slog.String("query", query),
			slog.Int("page", page),
		)
	}

	offset := (page - 1) * c.pageSize
	papers := make([]Paper, 0, len(records))
	for i, rec := range records {
		p := Normalize(rec, offset+i)
		p.Keyword = query
		papers = append(papers, p)
	}

	return &Page{
		Papers:  papers,
		Page:    page,
		HasMore: len(records) >= c.pageSize,
	}, nil
}

// decodeResults は配列そのもの、または{results: [...]}の形の本文からレコードを取り出す。
// どちらの形でもない場合はfalseを返す。
func decodeResults(body []byte) ([]map[string]any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false
	}

	var items []any
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false
		}
	case '{':
		var envelope struct {
			Results []any `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, false
		}
		items = envelope.Results
	default:
		return nil, false
	}

	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	return records, true
}
