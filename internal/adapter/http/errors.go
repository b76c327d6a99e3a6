package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/payment"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrOrderTerminal), errors.Is(err, usecase.ErrAlreadyPaid),
		errors.Is(err, usecase.ErrDispatchInProgress), errors.Is(err, usecase.ErrDuplicate):
		return http.StatusConflict, "conflict"
	case errors.Is(err, usecase.ErrReferenceMismatch), errors.Is(err, usecase.ErrUnderpaid),
		errors.Is(err, usecase.ErrAmountMismatch), errors.Is(err, usecase.ErrMissingReference):
		return http.StatusUnprocessableEntity, "payment_mismatch"
	case errors.Is(err, payment.ErrUnsupportedGateway):
		return http.StatusBadRequest, "unsupported_gateway"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrMissingCustomerEmail),
		errors.Is(err, usecase.ErrEmptyContent), errors.Is(err, usecase.ErrEmptyReason):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, payment.ErrProviderCallFailed):
		return http.StatusBadGateway, "gateway_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.From(c).Error("request failed", "err", err)
		c.JSON(status, gin.H{"error": code})
		return
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
