package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tikcccc/Form-demo/internal/engine"
)

// Problem is an RFC 7807 error body extended with the engine's structured
// detail.
type Problem struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail"`
	Kind     string            `json:"kind,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Issues   []string          `json:"issues,omitempty"`
}

var kindStatus = map[engine.ErrorKind]int{
	engine.KindPermissionDenied:   http.StatusForbidden,
	engine.KindNotFound:           http.StatusNotFound,
	engine.KindInvalidTransition:  http.StatusConflict,
	engine.KindConflict:           http.StatusConflict,
	engine.KindValidationFailed:   http.StatusUnprocessableEntity,
	engine.KindPreconditionNotMet: http.StatusUnprocessableEntity,
	engine.KindPublishBlocked:     http.StatusUnprocessableEntity,
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	var ee *engine.Error
	if errors.As(err, &ee) {
		if status, ok := kindStatus[ee.Kind]; ok {
			return status
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func problemFor(err error) Problem {
	status := StatusFor(err)
	p := Problem{Type: "about:blank", Title: http.StatusText(status), Status: status}

	var ee *engine.Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ee):
		p.Detail = ee.Message
		p.Kind = string(ee.Kind)
		p.Instance = ee.InstanceID
		p.Fields = ee.Fields
		p.Issues = ee.Issues
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			p.Detail = msg
		} else {
			p.Detail = http.StatusText(he.Code)
		}
	default:
		p.Detail = "internal error"
	}
	return p
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	p := problemFor(err)
	if p.Status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method, "path", c.Path(), "error", err)
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	if err := c.JSON(p.Status, p); err != nil {
		s.logger.ErrorContext(c.Request().Context(), "write error response", "error", err)
	}
}
