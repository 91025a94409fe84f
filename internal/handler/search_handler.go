package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/citecrawler/internal/metrics"
	"github.com/hitoshi/citecrawler/internal/middleware"
	"github.com/hitoshi/citecrawler/internal/model"
	"github.com/hitoshi/citecrawler/internal/search"
)

// SearchClient は検索ハンドラーが必要とする検索バックエンドのインターフェース。
type SearchClient interface {
	Search(ctx context.Context, query string, page int) (*search.Page, error)
}

// SearchHandler は論文検索のHTTPハンドラー。
type SearchHandler struct {
	client  SearchClient
	metrics metrics.MetricsCollector
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(client SearchClient, collector metrics.MetricsCollector) *SearchHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &SearchHandler{client: client, metrics: collector}
}

// Search は検索バックエンドに問い合わせ、正規化済みの論文一覧を返す。
// GET /api/search?q=xxx&page=1
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingParameterError("Query parameter q is required"))
		return
	}

	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	start := time.Now()
	result, err := h.client.Search(r.Context(), query, page)
	if err != nil {
		h.metrics.RecordSearch(false, 0, time.Since(start))
		slog.Warn("search backend request failed",
			slog.String("query", query),
			slog.Int("page", page),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewSearchFailedError())
		return
	}
	h.metrics.RecordSearch(true, len(result.Papers), time.Since(start))

	middleware.WriteJSON(w, http.StatusOK, result)
}
