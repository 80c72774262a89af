package rest

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

// errorResponse 錯誤回應格式
type errorResponse struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// KindRateLimited 登入次數過多 (只存在於 HTTP 層)
const KindRateLimited domain.ErrorKind = "RateLimited"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf 錯誤分類 -> HTTP status
func statusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyExists, domain.KindPersistenceConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError 依錯誤分類回應；非預期錯誤只記 log，不把細節回給呼叫端
func writeError(w http.ResponseWriter, logger *zap.Logger, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Unexpected error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Kind: kind, Message: msg})
}

func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Kind: domain.KindValidation, Message: msg})
}
