package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/service"
	"github.com/rongwang/envelope-wallet/internal/utils"
)

// Handler serves the wallet HTTP API
type Handler struct {
	svc service.Service
	log *utils.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc service.Service, logger *utils.Logger) *Handler {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Handler{svc: svc, log: logger.WithComponent("api")}
}

// SetupRoutes registers every endpoint on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api")

	// Share links are opened by people outside the owner's wallet
	api.GET("/share/:token", h.ResolveShare)

	wallet := api.Group("")
	wallet.Use(UserMiddleware())
	{
		wallet.GET("/account", h.GetAccount)

		wallet.GET("/envelopes", h.ListEnvelopes)
		wallet.POST("/envelopes", h.CreateEnvelope)
		wallet.GET("/envelopes/:id", h.GetEnvelope)
		wallet.DELETE("/envelopes/:id", h.DeleteEnvelope)
		wallet.POST("/envelopes/:id/fund", h.FundEnvelope)
		wallet.POST("/envelopes/:id/withdraw", h.WithdrawFromEnvelope)
		wallet.POST("/envelopes/:id/participants", h.AddParticipant)

		wallet.GET("/transactions", h.ListTransactions)
		wallet.POST("/transactions", h.RecordTransaction)
		wallet.GET("/transactions/:id", h.GetTransaction)

		wallet.GET("/recurring", h.ListRecurring)
		wallet.POST("/recurring", h.CreateRecurring)
		wallet.PUT("/recurring/:id", h.UpdateRecurring)
		wallet.DELETE("/recurring/:id", h.DeleteRecurring)
		wallet.POST("/recurring/:id/pay", h.MarkRecurringPaid)

		wallet.GET("/contacts", h.ListContacts)
		wallet.POST("/contacts", h.AddContact)
		wallet.GET("/contacts/:id", h.GetContact)
		wallet.DELETE("/contacts/:id", h.RemoveContact)
		wallet.GET("/contacts/:id/transactions", h.ContactTransactions)

		wallet.GET("/notifications", h.ListNotifications)
		wallet.POST("/notifications/read-all", h.MarkAllNotificationsRead)
		wallet.POST("/notifications/:id/read", h.MarkNotificationRead)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.MessageResponse{Status: "success", Message: "ok"})
}

// Account
func (h *Handler) GetAccount(c *gin.Context) {
	resp, err := h.svc.GetAccount(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Envelopes
func (h *Handler) ListEnvelopes(c *gin.Context) {
	resp, err := h.svc.ListEnvelopes(c.Request.Context(), c.GetString(userIDKey), c.Query("type"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateEnvelope(c *gin.Context) {
	var req models.CreateEnvelopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	resp, err := h.svc.CreateEnvelope(c.Request.Context(), c.GetString(userIDKey), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetEnvelope(c *gin.Context) {
	resp, err := h.svc.GetEnvelope(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeleteEnvelope(c *gin.Context) {
	if err := h.svc.DeleteEnvelope(c.Request.Context(), c.GetString(userIDKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{
		Status:  "success",
		Message: "Envelope deleted successfully",
	})
}

func (h *Handler) FundEnvelope(c *gin.Context) {
	var req models.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	resp, err := h.svc.FundEnvelope(c.Request.Context(), c.GetString(userIDKey), c.Param("id"), req, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) WithdrawFromEnvelope(c *gin.Context) {
	var req models.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	resp, err := h.svc.WithdrawFromEnvelope(c.Request.Context(), c.GetString(userIDKey), c.Param("id"), req, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AddParticipant(c *gin.Context) {
	var req models.AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	resp, err := h.svc.AddParticipant(c.Request.Context(), c.GetString(userIDKey), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ResolveShare(c *gin.Context) {
	resp, err := h.svc.ResolveShareToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	resp, err := h.svc.ListTransactions(c.Request.Context(), c.GetString(userIDKey), c.Query("type"), c.Query("q"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RecordTransaction(c *gin.Context) {
	var req models.RecordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	resp, err := h.svc.RecordTransaction(c.Request.Context(), c.GetString(userIDKey), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetTransaction(c *gin.Context) {
	resp, err := h.svc.GetTransaction(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Recurring payments
func (h *Handler) ListRecurring(c *gin.Context) {
	resp, err := h.svc.ListRecurring(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateRecurring(c *gin.Context) {
	var req models.RecurringPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	resp, err := h.svc.CreateRecurring(c.Request.Context(), c.GetString(userIDKey), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) UpdateRecurring(c *gin.Context) {
	var req models.RecurringPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	resp, err := h.svc.UpdateRecurring(c.Request.Context(), c.GetString(userIDKey), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeleteRecurring(c *gin.Context) {
	if err := h.svc.DeleteRecurring(c.Request.Context(), c.GetString(userIDKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{
		Status:  "success",
		Message: "Recurring payment deleted successfully",
	})
}

func (h *Handler) MarkRecurringPaid(c *gin.Context) {
	resp, err := h.svc.MarkRecurringPaid(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Contacts
func (h *Handler) ListContacts(c *gin.Context) {
	resp, err := h.svc.ListContacts(c.Request.Context(), c.GetString(userIDKey), c.Query("q"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AddContact(c *gin.Context) {
	var req models.AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	resp, err := h.svc.AddContact(c.Request.Context(), c.GetString(userIDKey), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusOK
	if resp.Added {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (h *Handler) GetContact(c *gin.Context) {
	resp, err := h.svc.GetContact(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RemoveContact(c *gin.Context) {
	if err := h.svc.RemoveContact(c.Request.Context(), c.GetString(userIDKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{
		Status:  "success",
		Message: "Contact removed successfully",
	})
}

func (h *Handler) ContactTransactions(c *gin.Context) {
	resp, err := h.svc.ContactTransactions(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	resp, err := h.svc.ListNotifications(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	resp, err := h.svc.MarkNotificationRead(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	resp, err := h.svc.MarkAllNotificationsRead(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
