package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aksver/aksver/pkg/upstream"
)

// errorResponse is the wire shape of every error the proxy returns. The
// error field names the failure category; detail carries the upstream's
// explanation where one exists (invalid locations in particular).
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps a failure class to the HTTP status returned to the
// caller. Exhausted retries surface as 503 regardless of the final
// attempt's class: the caller's remedy is the same, try again later.
func statusFor(err error) int {
	if errors.Is(err, upstream.ErrRetryExhausted) {
		return http.StatusServiceUnavailable
	}

	switch upstream.ClassOf(err) {
	case upstream.ClassInvalidInput, upstream.ClassInvalidLocation:
		return http.StatusBadRequest
	case upstream.ClassTransient, upstream.ClassCredential:
		return http.StatusServiceUnavailable
	case upstream.ClassParse, upstream.ClassNetwork, upstream.ClassUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. Client-side failures (4xx) are logged
// at debug to keep bad input from spamming error logs; everything else
// is an operational problem and logged at error level.
func (s *Server) writeError(c echo.Context, location string, err error) error {
	status := statusFor(err)
	class := upstream.ClassOf(err)

	resp := errorResponse{Error: string(class)}
	var ue *upstream.Error
	if errors.As(err, &ue) && ue.Detail != "" {
		resp.Detail = ue.Detail
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("location", location).
			Str("error_class", string(class)).
			Int("status", status).
			Msg("Request failed")
	} else {
		s.logger.Debug().
			Str("location", location).
			Str("error_class", string(class)).
			Int("status", status).
			Msg("Request rejected")
	}

	return c.JSON(status, resp)
}

// invalidInput renders a validation failure without touching the cache
// or the upstream.
func (s *Server) invalidInput(c echo.Context, detail string) error {
	s.logger.Debug().Str("detail", detail).Msg("Request rejected")
	return c.JSON(http.StatusBadRequest, errorResponse{
		Error:  string(upstream.ClassInvalidInput),
		Detail: detail,
	})
}
