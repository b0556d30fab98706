package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/milkbill/internal/audit/domain"
	"github.com/smallbiznis/milkbill/internal/authorization"
	billingdomain "github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/gateway"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	paymentdomain "github.com/smallbiznis/milkbill/internal/payment/domain"
	pricedomain "github.com/smallbiznis/milkbill/internal/price/domain"
	"github.com/smallbiznis/milkbill/internal/period"
	"github.com/smallbiznis/milkbill/internal/scheduler"
	"github.com/smallbiznis/milkbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrUnauthorized),
		errors.Is(err, gateway.ErrSignatureInvalid):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, orderdomain.ErrEditWindowClosed),
		errors.Is(err, orderdomain.ErrDateNotInFuture):
		return http.StatusForbidden, errorPayload{
			Type:    "edit_window_closed",
			Message: "order can no longer be changed",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, orderdomain.ErrStatusNotAllowed):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, gateway.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	period.ErrInvalidMonth,
	period.ErrInvalidDate,
	pagination.ErrInvalidPageToken,
	authorization.ErrInvalidRole,
	auditdomain.ErrInvalidTimeRange,
	orderdomain.ErrInvalidQuantity,
	orderdomain.ErrInvalidStatus,
	orderdomain.ErrInvalidDate,
	orderdomain.ErrInvalidDays,
	orderdomain.ErrInvalidOwner,
	pricedomain.ErrInvalidPrice,
	pricedomain.ErrPriceNotSet,
	billingdomain.ErrInvalidStatus,
	billingdomain.ErrInvalidMonth,
	billingdomain.ErrInvalidOwner,
	paymentdomain.ErrMissingBillRef,
	paymentdomain.ErrInvalidTransaction,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidStatus,
	gateway.ErrInvalidPayload,
	ownerdomain.ErrInvalidName,
	ownerdomain.ErrInvalidEmail,
	ownerdomain.ErrInvalidRole,
	ownerdomain.ErrInvalidQuantity,
	ownerdomain.ErrInvalidSkipDays,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, billingdomain.ErrBillAlreadyPaid),
		errors.Is(err, billingdomain.ErrPaymentRecordRequired),
		errors.Is(err, ownerdomain.ErrEmailAlreadyTaken),
		errors.Is(err, scheduler.ErrAlreadyRunning),
		errors.Is(err, scheduler.ErrNotRunning),
		errors.Is(err, scheduler.ErrJobRunning):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, billingdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrBillNotFound),
		errors.Is(err, ownerdomain.ErrNotFound),
		errors.Is(err, gateway.ErrPaymentNotFound),
		errors.Is(err, scheduler.ErrUnknownJob),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "missing_bill_reference":
		return "bill_id"
	case "price_not_set":
		return "price_per_liter"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "price_not_set":
		return "no milk price has been set"
	case "missing_bill_reference":
		return "payment does not reference a bill"
	default:
		return "invalid value"
	}
}
