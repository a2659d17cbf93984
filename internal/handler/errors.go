package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dextersy/label-dashboard-sub004/internal/dto"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/labstack/echo/v4"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Checked in order: ErrSaleClosed must match before ErrOutsideSaleWindow
// because intake wraps both.
var errorMappings = []errorMapping{
	{service.ErrInvalidCount, http.StatusBadRequest, "invalid_count"},
	{service.ErrInvalidBuyer, http.StatusBadRequest, "invalid_buyer"},
	{service.ErrInvalidReference, http.StatusBadRequest, "invalid_reference"},
	{service.ErrInvalidPIN, http.StatusUnauthorized, "invalid_pin"},
	{service.ErrInvalidSession, http.StatusUnauthorized, "invalid_session"},

	{service.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
	{service.ErrTicketTypeNotFound, http.StatusNotFound, "ticket_type_not_found"},
	{service.ErrNotFound, http.StatusNotFound, "ticket_not_found"},

	{service.ErrSaleClosed, http.StatusUnprocessableEntity, "sale_closed"},
	{service.ErrOutsideSaleWindow, http.StatusUnprocessableEntity, "sale_closed"},
	{service.ErrSoldOut, http.StatusConflict, "sold_out"},
	{service.ErrTicketTypeDisabled, http.StatusConflict, "ticket_type_disabled"},
	{service.ErrOverClaim, http.StatusConflict, "already_claimed"},
	{service.ErrNotPayable, http.StatusConflict, "not_payable"},
	{service.ErrNotTransferable, http.StatusConflict, "not_transferable"},
	{service.ErrNotCancelable, http.StatusConflict, "not_cancelable"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},

	{service.ErrCodeGenerationExhausted, http.StatusServiceUnavailable, "code_generation_exhausted"},
	{service.ErrStore, http.StatusServiceUnavailable, "store_unavailable"},
}

// serviceError turns a service error into an HTTPError carrying a
// machine-readable code. Store failures only expose the sentinel text.
func serviceError(err error) error {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		body := dto.ErrorResponse{Code: m.code, Message: err.Error()}
		if m.status >= http.StatusInternalServerError {
			body.Message = m.err.Error()
		}
		var oc *service.OverClaimError
		if errors.As(err, &oc) {
			body.Remaining = &oc.Remaining
		}
		return echo.NewHTTPError(m.status, body)
	}
	return err
}

// parseID reads the :id path parameter; what names it in the error.
func parseID(c echo.Context, what string) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+what+" id")
	}
	return uint(id), nil
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(req); err != nil {
			return err
		}
	}
	return nil
}
