package handler

import (
	"net/http"

	"github.com/dextersy/label-dashboard-sub004/internal/dto"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/labstack/echo/v4"
)

type AvailabilityHandler struct {
	inventory service.InventoryService
}

func NewAvailabilityHandler(inventory service.InventoryService) *AvailabilityHandler {
	return &AvailabilityHandler{inventory: inventory}
}

func (h *AvailabilityHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/events/:id/availability", h.GetAvailability)
}

func (h *AvailabilityHandler) GetAvailability(c echo.Context) error {
	eventID, err := parseID(c, "event")
	if err != nil {
		return err
	}

	items, err := h.inventory.Availability(c.Request().Context(), eventID)
	if err != nil {
		return serviceError(err)
	}
	if items == nil {
		items = []service.TicketTypeAvailability{}
	}

	return c.JSON(http.StatusOK, dto.AvailabilityResponse{EventID: eventID, TicketTypes: items})
}
