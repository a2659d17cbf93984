package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/dextersy/label-dashboard-sub004/internal/dto"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/labstack/echo/v4"
)

const (
	resultProcessed = "processed"
	resultDuplicate = "duplicate"
	resultIgnored   = "ignored"
)

// WebhookHandler receives payment provider notifications. Safe no-ops are
// acknowledged with 200 so the provider stops redelivering. Only store
// failures surface as 5xx.
type WebhookHandler struct {
	payments service.PaymentService
}

func NewWebhookHandler(payments service.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/webhooks/payment", h.PaymentNotification)
}

func (h *WebhookHandler) PaymentNotification(c echo.Context) error {
	var req dto.PaymentWebhookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	n := service.PaymentNotification{
		ProviderReference: req.ProviderReference,
		OrderReference:    req.OrderReference,
		Amount:            req.Amount,
	}

	switch outcome := strings.ToLower(strings.TrimSpace(req.Outcome)); outcome {
	case "paid", "succeeded":
		res, err := h.payments.ConfirmPayment(ctx, n)
		if err != nil {
			return h.failure(c, req, err)
		}
		result := resultProcessed
		if res.Duplicate {
			result = resultDuplicate
		}
		return c.JSON(http.StatusOK, webhookResponse(result, res.Order))

	case "failed", "expired", "canceled":
		order, err := h.payments.FailPayment(ctx, n, req.Reason)
		if err != nil {
			return h.failure(c, req, err)
		}
		return c.JSON(http.StatusOK, webhookResponse(resultProcessed, order))

	default:
		log.Printf("[Webhook] ignoring outcome %q for %s", outcome, req.ProviderReference)
		return c.JSON(http.StatusOK, dto.WebhookResponse{Result: resultIgnored})
	}
}

func (h *WebhookHandler) failure(c echo.Context, req dto.PaymentWebhookRequest, err error) error {
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrNotPayable) {
		log.Printf("[Webhook] ignoring %s notification %s: %v", req.Outcome, req.ProviderReference, err)
		return c.JSON(http.StatusOK, dto.WebhookResponse{Result: resultIgnored})
	}
	return serviceError(err)
}

func webhookResponse(result string, order *models.Order) dto.WebhookResponse {
	resp := dto.WebhookResponse{Result: result}
	if order != nil {
		resp.OrderCode = order.Code
		resp.OrderStatus = order.Status
	}
	return resp
}
