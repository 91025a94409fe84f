package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/citecrawler/internal/model"
)

func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewAlreadyBookmarkedError())

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["error"] != "Paper already bookmarked" {
		t.Errorf("error = %v", body["error"])
	}
	if body["code"] != model.ErrCodeAlreadyBookmarked {
		t.Errorf("code = %v", body["code"])
	}
	if _, ok := body["details"]; ok {
		t.Error("details should be omitted when empty")
	}
}

func TestWriteErrorResponse_IncludesDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError("mongo: no reachable servers"))

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Error != "Internal server error" {
		t.Errorf("error = %q", body.Error)
	}
	if body.Details != "mongo: no reachable servers" {
		t.Errorf("details = %q", body.Details)
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Details != "" {
		t.Errorf("details should be empty, got %q", body.Details)
	}
}
