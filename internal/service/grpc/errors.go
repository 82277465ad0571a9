package grpcsvc

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// shortageViolationType — тип нарушения в PreconditionFailure для нехватки остатка.
const shortageViolationType = "STOCK"

// toStatus переводит доменную ошибку в gRPC-статус. Нехватка остатка
// дополнительно несёт PreconditionFailure с позициями.
func toStatus(logger *log.Entry, method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return shortageStatus(err)
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrPrecondition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrSupplierExists), errors.Is(err, domain.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		logger.WithError(err).WithField("method", method).Error("unhandled back-office error")
		return status.Error(codes.Internal, "internal error")
	}
}

func shortageStatus(err error) error {
	st := status.New(codes.ResourceExhausted, err.Error())
	shortages := domain.ShortagesOf(err)
	if len(shortages) == 0 {
		return st.Err()
	}

	failure := &errdetails.PreconditionFailure{}
	for _, s := range shortages {
		failure.Violations = append(failure.Violations, &errdetails.PreconditionFailure_Violation{
			Type:        shortageViolationType,
			Subject:     s.EntryID,
			Description: fmt.Sprintf("%s: available %d, requested %d", s.Name, s.Available, s.Requested),
		})
	}
	detailed, detailErr := st.WithDetails(failure)
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// StockViolations достаёт из статуса позиции с нехваткой остатка.
func StockViolations(err error) []*errdetails.PreconditionFailure_Violation {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	var result []*errdetails.PreconditionFailure_Violation
	for _, detail := range st.Details() {
		failure, ok := detail.(*errdetails.PreconditionFailure)
		if !ok {
			continue
		}
		for _, v := range failure.GetViolations() {
			if v.GetType() == shortageViolationType {
				result = append(result, v)
			}
		}
	}
	return result
}
