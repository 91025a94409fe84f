package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/citecrawler/internal/metrics"
	"github.com/hitoshi/citecrawler/internal/middleware"
	"github.com/hitoshi/citecrawler/internal/model"
)

// BookmarkServiceInterface はブックマークハンドラーが必要とするサービスインターフェース。
type BookmarkServiceInterface interface {
	List(ctx context.Context, userID string) ([]model.Bookmark, error)
	Add(ctx context.Context, userID string, paper map[string]any) error
	Remove(ctx context.Context, userID, paperID string) error
}

// BookmarkHandler はブックマーク関連のHTTPハンドラー。
type BookmarkHandler struct {
	service BookmarkServiceInterface
	metrics metrics.MetricsCollector
}

// NewBookmarkHandler はBookmarkHandlerを生成する。
func NewBookmarkHandler(service BookmarkServiceInterface, collector metrics.MetricsCollector) *BookmarkHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &BookmarkHandler{service: service, metrics: collector}
}

type addBookmarkRequest struct {
	Paper map[string]any `json:"paper"`
}

type removeBookmarkRequest struct {
	PaperID string `json:"paperId"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ListBookmarks はログインユーザーのブックマーク一覧を登録順に返す。
// GET /api/bookmarks
func (h *BookmarkHandler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	bookmarks, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.record(metrics.OpList, err)
		handleServiceError(w, err)
		return
	}
	h.record(metrics.OpList, nil)

	middleware.WriteJSON(w, http.StatusOK, bookmarks)
}

// AddBookmark は論文をブックマークに追加する。
// POST /api/bookmarks {"paper": {...}}
func (h *BookmarkHandler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingParameterError("Invalid request body"))
		return
	}

	if err := h.service.Add(r.Context(), userID, req.Paper); err != nil {
		h.record(metrics.OpAdd, err)
		handleServiceError(w, err)
		return
	}
	h.record(metrics.OpAdd, nil)

	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Bookmark added successfully"})
}

// RemoveBookmark はブックマークを削除する。存在しないIDの場合も成功を返す。
// DELETE /api/bookmarks {"paperId": "..."}
func (h *BookmarkHandler) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req removeBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingParameterError("Invalid request body"))
		return
	}

	if err := h.service.Remove(r.Context(), userID, req.PaperID); err != nil {
		h.record(metrics.OpRemove, err)
		handleServiceError(w, err)
		return
	}
	h.record(metrics.OpRemove, nil)

	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Bookmark removed successfully"})
}

func (h *BookmarkHandler) record(operation string, err error) {
	result := "ok"
	if err != nil {
		result = errorCode(err)
	}
	h.metrics.RecordBookmarkOperation(operation, result)
}

// requireUserID はコンテキストからユーザーIDを取り出す。取得できない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return "", false
	}
	return userID, true
}
