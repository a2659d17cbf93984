package handler

import (
	"net/http"

	"github.com/dextersy/label-dashboard-sub004/internal/dto"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orders    service.OrderService
	payments  service.PaymentService
	transfers service.TransferService
}

func NewOrderHandler(orders service.OrderService, payments service.PaymentService, transfers service.TransferService) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments, transfers: transfers}
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo) {
	events := e.Group("/api/v1/events")
	events.POST("/:id/orders", h.CreateOrder)
	events.GET("/:id/orders", h.ListOrders)

	orders := e.Group("/api/v1/orders")
	orders.GET("/:id", h.GetOrder)
	orders.GET("/code/:code", h.GetOrderByCode)
	orders.POST("/:id/payment-reference", h.AttachPaymentReference)
	orders.POST("/:id/cancel", h.CancelOrder)
	orders.POST("/:id/transfer", h.Transfer)
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	eventID, err := parseID(c, "event")
	if err != nil {
		return err
	}

	var req dto.CreateOrderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.orders.CreateOrder(c.Request().Context(), service.CreateOrderInput{
		EventID:      eventID,
		TicketTypeID: req.TicketTypeID,
		Buyer:        service.Buyer{Name: req.BuyerName, Email: req.BuyerEmail, Phone: req.BuyerPhone},
		Count:        req.Count,
		ReferrerCode: req.ReferrerCode,
	})
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusCreated, dto.ToOrderResponse(order))
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	eventID, err := parseID(c, "event")
	if err != nil {
		return err
	}

	var status *models.OrderStatus
	if s := c.QueryParam("status"); s != "" {
		os := models.OrderStatus(s)
		if !os.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		status = &os
	}

	orders, err := h.orders.ListOrders(c.Request().Context(), eventID, status)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, dto.ToOrderResponses(orders))
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := parseID(c, "order")
	if err != nil {
		return err
	}

	order, err := h.orders.GetOrder(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, dto.ToOrderResponse(order))
}

func (h *OrderHandler) GetOrderByCode(c echo.Context) error {
	order, err := h.orders.GetOrderByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, dto.ToOrderResponse(order))
}

func (h *OrderHandler) AttachPaymentReference(c echo.Context) error {
	id, err := parseID(c, "order")
	if err != nil {
		return err
	}

	var req dto.PaymentReferenceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.payments.AttachPaymentReference(c.Request().Context(), id, req.Reference)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, dto.ToOrderResponse(order))
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	id, err := parseID(c, "order")
	if err != nil {
		return err
	}

	var req dto.CancelOrderRequest
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
	}

	order, err := h.payments.CancelOrder(c.Request().Context(), id, req.Reason)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, dto.ToOrderResponse(order))
}

func (h *OrderHandler) Transfer(c echo.Context) error {
	id, err := parseID(c, "order")
	if err != nil {
		return err
	}

	var req dto.TransferRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.transfers.Transfer(c.Request().Context(), id, service.Buyer{
		Name:  req.BuyerName,
		Email: req.BuyerEmail,
		Phone: req.BuyerPhone,
	})
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusCreated, dto.ToOrderResponse(order))
}
