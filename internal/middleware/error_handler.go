package middleware

import (
	"log"
	"net/http"

	"github.com/dextersy/label-dashboard-sub004/internal/dto"
	"github.com/labstack/echo/v4"
)

// ErrorHandler renders every error as {"code", "message"}. Handlers attach a
// dto.ErrorResponse to the HTTPError when the client needs a specific code.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := dto.ErrorResponse{Code: "internal_error", Message: http.StatusText(status)}

	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch m := he.Message.(type) {
		case dto.ErrorResponse:
			body = m
		case string:
			body = dto.ErrorResponse{Code: codeForStatus(status), Message: m}
		default:
			body = dto.ErrorResponse{Code: codeForStatus(status), Message: http.StatusText(status)}
		}
	} else {
		log.Printf("[HTTP] %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status >= 500 {
		return "internal_error"
	}
	return "error"
}
