package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
	"github.com/smallbiznis/pantry/internal/idempotency"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"github.com/smallbiznis/pantry/internal/upstream"
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
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware renders the last handler error. Business refusals
// become a 200 error envelope; everything else uses the error payload.
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

		if env, ok := businessEnvelope(lastErr.Err); ok {
			c.Set("business_status", statusError+":"+env.Code)
			c.AbortWithStatusJSON(http.StatusOK, env)
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

// bindingError turns a gin binding failure into field errors.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   toSnake(fe.Field()),
			Code:    fe.Tag(),
			Message: validationErrorMessage(fe.Tag()),
		})
	}
	return &ValidationErrors{Errors: out}
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

	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "request", Code: "invalid_request", Message: "invalid request"},
			},
		}
	}

	switch {
	case isUnavailableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: unavailableMessage(err),
		}
	case errors.Is(err, idempotency.ErrInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "event is being applied",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
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

func isUnavailableError(err error) bool {
	var upstreamErr *upstream.Error
	switch {
	case errors.As(err, &upstreamErr),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, orderdomain.ErrMenuUnavailable),
		errors.Is(err, orderdomain.ErrKitchenUnavailable),
		errors.Is(err, orderdomain.ErrStockUnavailable),
		errors.Is(err, kitchendomain.ErrOrderUnavailable):
		return true
	default:
		return false
	}
}

func unavailableMessage(err error) string {
	var upstreamErr *upstream.Error
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Service + " service unavailable"
	}
	return "service unavailable"
}

// businessErrors are refusals the caller can act on. They are answered
// with a 200 error envelope carrying the sentinel text as code.
var businessErrors = []error{
	ingredientdomain.ErrNotFound,
	ingredientdomain.ErrInvalidID,
	ingredientdomain.ErrInvalidName,
	ingredientdomain.ErrDuplicateName,
	ingredientdomain.ErrInvalidCategory,
	ingredientdomain.ErrInvalidUnit,
	ingredientdomain.ErrInvalidQuantity,
	ingredientdomain.ErrInvalidAction,

	flavordomain.ErrNotFound,
	flavordomain.ErrInvalidID,
	flavordomain.ErrInvalidName,
	flavordomain.ErrDuplicateName,
	flavordomain.ErrInvalidQuantity,
	flavordomain.ErrInvalidUnit,
	flavordomain.ErrIngredientNotFound,

	stockdomain.ErrInvalidOrderID,
	stockdomain.ErrEmptyItems,
	stockdomain.ErrInvalidItem,
	stockdomain.ErrNoRecipe,
	stockdomain.ErrUnknownFlavor,
	stockdomain.ErrRecordRolledBack,
	stockdomain.ErrNotConsumed,
	stockdomain.ErrNegativeStock,

	orderdomain.ErrInvalidOrderID,
	orderdomain.ErrInvalidCustomer,
	orderdomain.ErrInvalidRoom,
	orderdomain.ErrEmptyItems,
	orderdomain.ErrInvalidItem,
	orderdomain.ErrUnknownMenu,
	orderdomain.ErrFlavorRequired,
	orderdomain.ErrInvalidFlavor,
	orderdomain.ErrFlavorNotOffered,
	orderdomain.ErrKitchenClosed,
	orderdomain.ErrDuplicateOrder,
	orderdomain.ErrOutOfStock,
	orderdomain.ErrNotFound,
	orderdomain.ErrNotCancellable,
	orderdomain.ErrAlreadyCancelled,
	orderdomain.ErrOrderClosed,
	orderdomain.ErrReasonRequired,
	orderdomain.ErrItemSelector,
	orderdomain.ErrItemNotFound,
	orderdomain.ErrInvalidStatus,
	orderdomain.ErrInvalidTransition,
	orderdomain.ErrRoomExists,
	orderdomain.ErrRoomNotFound,
	orderdomain.ErrRoomInactive,
	orderdomain.ErrInvalidRoomName,

	kitchendomain.ErrInvalidOrderID,
	kitchendomain.ErrNotFound,
	kitchendomain.ErrKitchenClosed,
	kitchendomain.ErrInvalidStatus,
	kitchendomain.ErrInvalidTransition,
	kitchendomain.ErrReasonRequired,
}

// businessEnvelope reports whether err is a business refusal and renders it.
func businessEnvelope(err error) (Envelope, bool) {
	if err == nil || isUnavailableError(err) {
		return Envelope{}, false
	}

	var rejection *orderdomain.Rejection
	if errors.As(err, &rejection) {
		return errorEnvelope(rejection.Err.Error(), rejection.Error(), rejection.Data), true
	}

	var stockErr *stockdomain.ValidationError
	if errors.As(err, &stockErr) {
		return errorEnvelope(stockErr.Err.Error(), stockErr.Error(), gin.H{
			"invalid": stockErr.Invalid,
			"options": stockErr.Options,
		}), true
	}

	var rejected *upstream.Rejected
	if errors.As(err, &rejected) {
		var data any
		if len(rejected.Data) > 0 {
			data = json.RawMessage(rejected.Data)
		}
		return errorEnvelope(rejected.Code, rejected.Error(), data), true
	}

	for _, sentinel := range businessErrors {
		if errors.Is(err, sentinel) {
			return errorEnvelope(sentinel.Error(), humanize(err), nil), true
		}
	}
	return Envelope{}, false
}

// humanize turns "order_not_found: ORD1" into "Order not found: ORD1".
func humanize(err error) string {
	msg := err.Error()
	head, tail, found := strings.Cut(msg, ": ")
	head = strings.ReplaceAll(head, "_", " ")
	if head != "" {
		head = strings.ToUpper(head[:1]) + head[1:]
	}
	if found {
		return head + ": " + tail
	}
	return head
}

func validationErrorMessage(code string) string {
	switch code {
	case "required", "notblank":
		return "is required"
	case "min":
		return "is too small"
	default:
		return "invalid value"
	}
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// classifyErrorForLog feeds the request logger.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if env, ok := businessEnvelope(err); ok {
		return "business", env.Code
	}
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal", err.Error()
	}
	return payload.Type, payload.Message
}
