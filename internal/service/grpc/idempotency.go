package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

// IdempotencyKeyHeader — ключ метаданных с ключом идемпотентности.
const IdempotencyKeyHeader = "idempotency-key"

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// idempotentRequest — то, что входит в отпечаток: запрос и его автор,
// чтобы один ключ разных пользователей не пересекался.
type idempotentRequest struct {
	UserID  string `json:"user_id"`
	Request any    `json:"request"`
}

// withIdempotency выполняет мутацию не более одного раза на ключ. Без ключа
// в метаданных вызов идёт напрямую, если required == false.
func withIdempotency[T any](
	s *BackOffice,
	ctx context.Context,
	method string,
	req any,
	required bool,
	handler func(context.Context) (*T, error),
) (*T, error) {
	if s.guard == nil {
		return handler(ctx)
	}

	key := readIdempotencyKey(ctx)
	if key == "" {
		if required {
			return nil, status.Error(codes.InvalidArgument, IdempotencyKeyHeader+" metadata is required")
		}
		return handler(ctx)
	}

	hash, err := idempotency.HashRequest(method, idempotentRequest{UserID: auth.CallerFrom(ctx).UserID, Request: req})
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	replay, err := s.guard.Begin(ctx, key, hash)
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case err != nil:
		s.logger.WithError(err).WithField("method", method).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	case replay != nil:
		return replayResponse[T](replay)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		s.guard.Fail(ctx, key, encodeFailure(runErr), int(status.Code(runErr)))
		return nil, runErr
	}

	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotent response")
		return resp, nil
	}
	s.guard.Complete(ctx, key, body, int(codes.OK))
	return resp, nil
}

func replayResponse[T any](replay *idempotency.Replay) (*T, error) {
	switch replay.Status {
	case domain.IdempotencyStatusDone:
		if len(replay.Body) == 0 {
			return nil, status.Error(codes.Internal, "idempotency cache is empty")
		}
		resp := new(T)
		if err := json.Unmarshal(replay.Body, resp); err != nil {
			return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
		}
		return resp, nil
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case domain.IdempotencyStatusFailed:
		return nil, decodeFailure(replay)
	default:
		return nil, status.Error(codes.Internal, "unknown idempotency record status")
	}
}

func encodeFailure(runErr error) []byte {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}
	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		return nil
	}
	return payload
}

func decodeFailure(replay *idempotency.Replay) error {
	const fallback = "previous request with the same idempotency key failed"

	if len(replay.Body) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(replay.Body, &payload); err == nil {
			if code, ok := grpcCode(int64(payload.Code)); ok && code != codes.OK {
				if payload.Message == "" {
					payload.Message = fallback
				}
				return status.Error(code, payload.Message)
			}
		}
	}
	if code, ok := grpcCode(int64(replay.Code)); ok && code != codes.OK {
		return status.Error(code, fallback)
	}
	return status.Error(codes.Internal, fallback)
}

func grpcCode(value int64) (codes.Code, bool) {
	if value < int64(codes.OK) || value > int64(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func readIdempotencyKey(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(IdempotencyKeyHeader); len(values) > 0 {
			if key := strings.TrimSpace(values[0]); key != "" {
				return key
			}
		}
	}
	return ""
}
