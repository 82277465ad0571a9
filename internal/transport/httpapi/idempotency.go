package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

type idempotentRequest struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource"`
}

// idempotent выполняет мутацию не более одного раза на Idempotency-Key
// и повторяет сохранённый ответ, включая ошибку. Без ключа вызов идёт напрямую.
func (h *Handler) idempotent(
	w http.ResponseWriter,
	r *http.Request,
	method string,
	resource string,
	run func(ctx context.Context) (int, any, error),
) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if h.guard == nil || key == "" {
		status, body, err := run(ctx)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, status, body)
		return
	}

	hash, err := idempotency.HashRequest(method, idempotentRequest{UserID: auth.CallerFrom(ctx).UserID, Resource: resource})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	replay, err := h.guard.Begin(ctx, key, hash)
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", "idempotency key is already used with different request")
		return
	case err != nil:
		h.fail(w, r, err)
		return
	case replay != nil:
		h.writeReplay(w, replay)
		return
	}

	status, body, runErr := run(ctx)
	if runErr != nil {
		errStatus, errBody := errorResponse(runErr)
		if errStatus == http.StatusInternalServerError {
			h.logger.WithError(runErr).WithField("method", method).Error("idempotent request failed")
		}
		payload, _ := json.Marshal(errBody)
		h.guard.Fail(ctx, key, payload, errStatus)
		writeRaw(w, errStatus, payload)
		return
	}

	payload, err := json.Marshal(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.guard.Complete(ctx, key, payload, status)
	writeRaw(w, status, payload)
}

func (h *Handler) writeReplay(w http.ResponseWriter, replay *idempotency.Replay) {
	switch {
	case replay.InProgress():
		writeError(w, http.StatusConflict, "request_in_progress", "request with the same idempotency key is already processing")
	case replay.Code <= 0 || len(replay.Body) == 0:
		writeError(w, http.StatusInternalServerError, "internal", "idempotency cache is empty")
	default:
		w.Header().Set("Idempotent-Replayed", "true")
		writeRaw(w, replay.Code, replay.Body)
	}
}

func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(payload, '\n'))
}
