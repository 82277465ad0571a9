package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Shortages []ShortageView `json:"shortages,omitempty"`
	Line      *LineErrorView `json:"line,omitempty"`
}

// ShortageView — позиция с нехваткой остатка.
type ShortageView struct {
	EntryID   string `json:"entry_id"`
	Name      string `json:"name"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
}

// LineErrorView указывает позицию запроса, к которой относится ошибка.
type LineErrorView struct {
	EntryID string `json:"entry_id"`
}

// errorResponse переводит доменную ошибку в HTTP-статус и тело ответа.
func errorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{Code: "unauthenticated", Message: err.Error()}
	case errors.Is(err, domain.ErrInsufficientStock):
		resp := ErrorResponse{Code: "insufficient_stock", Message: err.Error()}
		for _, s := range domain.ShortagesOf(err) {
			resp.Shortages = append(resp.Shortages, ShortageView{
				EntryID:   s.EntryID,
				Name:      s.Name,
				Available: s.Available,
				Requested: s.Requested,
			})
		}
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrValidation):
		resp := ErrorResponse{Code: "validation_failed", Message: err.Error()}
		var lineErr *domain.LineError
		if errors.As(err, &lineErr) {
			resp.Line = &LineErrorView{EntryID: lineErr.EntryID}
		}
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Code: "forbidden", Message: err.Error()}
	case errors.Is(err, domain.ErrPrecondition):
		return http.StatusPreconditionFailed, ErrorResponse{Code: "precondition_failed", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, ErrorResponse{Code: "conflict", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Code: "timeout", Message: "request timed out"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "internal error"}
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Error("unhandled storefront error")
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
