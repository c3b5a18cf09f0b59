package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/envelope-wallet/internal/contacts"
	"github.com/rongwang/envelope-wallet/internal/envelope"
	"github.com/rongwang/envelope-wallet/internal/idempotency"
	"github.com/rongwang/envelope-wallet/internal/ledger"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
	"github.com/rongwang/envelope-wallet/internal/notifications"
	"github.com/rongwang/envelope-wallet/internal/recurring"
	"github.com/rongwang/envelope-wallet/internal/service"
	"github.com/rongwang/envelope-wallet/internal/share"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is. More specific kinds come
// before generic ones: the store wraps money.ErrCurrencyMismatch, for one.
var errorMappings = []errorMapping{
	{service.ErrUserRequired, http.StatusUnauthorized, "USER_REQUIRED"},

	{envelope.ErrEnvelopeNotFound, http.StatusNotFound, "ENVELOPE_NOT_FOUND"},
	{ledger.ErrNotFound, http.StatusNotFound, "TRANSACTION_NOT_FOUND"},
	{recurring.ErrNotFound, http.StatusNotFound, "RECURRING_PAYMENT_NOT_FOUND"},
	{contacts.ErrNotFound, http.StatusNotFound, "CONTACT_NOT_FOUND"},
	{notifications.ErrNotFound, http.StatusNotFound, "NOTIFICATION_NOT_FOUND"},

	{envelope.ErrInsufficientMainBalance, http.StatusConflict, "INSUFFICIENT_MAIN_BALANCE"},
	{envelope.ErrInsufficientEnvelopeBalance, http.StatusConflict, "INSUFFICIENT_ENVELOPE_BALANCE"},
	{envelope.ErrEnvelopeNotEmpty, http.StatusConflict, "ENVELOPE_NOT_EMPTY"},
	{envelope.ErrNotShared, http.StatusConflict, "ENVELOPE_NOT_SHARED"},
	{ledger.ErrDuplicateID, http.StatusConflict, "DUPLICATE_TRANSACTION"},

	{idempotency.ErrKeyReused, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED"},

	{envelope.ErrInvalidName, http.StatusBadRequest, "INVALID_NAME"},
	{envelope.ErrInvalidGoal, http.StatusBadRequest, "INVALID_GOAL"},
	{envelope.ErrInvalidType, http.StatusBadRequest, "INVALID_ENVELOPE_TYPE"},
	{envelope.ErrInvalidCategory, http.StatusBadRequest, "INVALID_CATEGORY"},
	{envelope.ErrInvalidParticipant, http.StatusBadRequest, "INVALID_PARTICIPANT"},
	{envelope.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{recurring.ErrInvalidName, http.StatusBadRequest, "INVALID_NAME"},
	{recurring.ErrInvalidRecipient, http.StatusBadRequest, "INVALID_RECIPIENT"},
	{recurring.ErrInvalidRecipientType, http.StatusBadRequest, "INVALID_RECIPIENT_TYPE"},
	{recurring.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{contacts.ErrInvalidName, http.StatusBadRequest, "INVALID_NAME"},
	{contacts.ErrInvalidHandle, http.StatusBadRequest, "INVALID_CONTACT"},
	{ledger.ErrInvalidType, http.StatusBadRequest, "INVALID_TRANSACTION_TYPE"},
	{ledger.ErrInvalidStatus, http.StatusBadRequest, "INVALID_TRANSACTION_STATUS"},
	{ledger.ErrInvalidMethod, http.StatusBadRequest, "INVALID_PAYMENT_METHOD"},
	{service.ErrInvalidRate, http.StatusBadRequest, "INVALID_EXCHANGE_RATE"},
	{money.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{money.ErrCurrencyMismatch, http.StatusBadRequest, "CURRENCY_MISMATCH"},
	{money.ErrOverflow, http.StatusBadRequest, "AMOUNT_OUT_OF_RANGE"},
	{share.ErrInvalidToken, http.StatusBadRequest, "INVALID_SHARE_TOKEN"},

	{service.ErrSharingDisabled, http.StatusServiceUnavailable, "SHARING_DISABLED"},
}

// statusFor returns the HTTP status and error code for err
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// respondError writes the error envelope. Internal errors are logged and
// their message hidden from the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
		message = "Internal server error"
	}
	c.JSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func (h *Handler) respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	})
}
