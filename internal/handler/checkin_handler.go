package handler

import (
	"net/http"
	"strings"

	"github.com/dextersy/label-dashboard-sub004/internal/dto"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/labstack/echo/v4"
)

type CheckInHandler struct {
	checkin service.CheckInService
}

func NewCheckInHandler(checkin service.CheckInService) *CheckInHandler {
	return &CheckInHandler{checkin: checkin}
}

func (h *CheckInHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/events/:id/checkin/session", h.OpenSession)

	tickets := e.Group("/api/v1/checkin/tickets")
	tickets.GET("/:code", h.Lookup)
	tickets.POST("/:code/claim", h.Claim)
}

func (h *CheckInHandler) OpenSession(c echo.Context) error {
	eventID, err := parseID(c, "event")
	if err != nil {
		return err
	}

	var req dto.CheckInSessionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.checkin.Authenticate(c.Request().Context(), eventID, req.PIN)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusCreated, session)
}

func (h *CheckInHandler) Lookup(c echo.Context) error {
	token, err := bearerToken(c)
	if err != nil {
		return err
	}

	snap, err := h.checkin.Lookup(c.Request().Context(), token, c.Param("code"))
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, snap)
}

func (h *CheckInHandler) Claim(c echo.Context) error {
	token, err := bearerToken(c)
	if err != nil {
		return err
	}

	var req dto.ClaimRequest
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}

	res, err := h.checkin.Claim(c.Request().Context(), token, c.Param("code"), count)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, res)
}

func bearerToken(c echo.Context) (string, error) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", serviceError(service.ErrInvalidSession)
	}
	return strings.TrimSpace(token), nil
}
