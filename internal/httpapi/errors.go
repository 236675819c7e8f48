package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"factorycore/internal/core"
	"factorycore/pkg/domain"
)

// ErrorMessage is the JSON body of every failed request.
type ErrorMessage struct {
	Message string `json:"message"`
}

// StatusOf maps a domain error kind to its HTTP status.
func StatusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// toHTTPError converts err into an echo error. Errors raised by echo itself
// or by middleware keep their status.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	code := StatusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		var de *domain.Error
		if errors.As(err, &de) && de.Message != "" {
			msg = de.Message
		} else {
			msg = http.StatusText(code)
		}
	}
	return echo.NewHTTPError(code, ErrorMessage{Message: msg}).SetInternal(err)
}

func errorHandler(e *echo.Echo, logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		he := toHTTPError(err)
		if he.Code >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", he.Code,
				"error", err.Error(),
			)
		}
		e.DefaultHTTPErrorHandler(he, c)
	}
}

func badRequest(format string, args ...any) error {
	return domain.InvalidArgumentf(format, args...)
}
