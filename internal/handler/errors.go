package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/citecrawler/internal/middleware"
	"github.com/hitoshi/citecrawler/internal/model"
)

// handleServiceError はサービス層のエラーを統一エラーフォーマットでレスポンスに書き込む。
// APIError以外は内部エラーとして扱い、詳細はログのみに残す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMissingParameter, model.ErrCodeInvalidState, model.ErrCodeAlreadyBookmarked:
		return http.StatusBadRequest
	case model.ErrCodeUnauthenticated, model.ErrCodeUpstreamAuthFailure:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFValidationFailed:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeSearchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorCode はメトリクスのラベルに使うエラーコードを返す。
func errorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return model.ErrCodeInternal
}
