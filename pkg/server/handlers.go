package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aksver/aksver/pkg/cache"
	"github.com/aksver/aksver/pkg/upstream"
)

// versionsResponse is the success shape of GET /versions.
type versionsResponse struct {
	Location    string   `json:"location"`
	ShowPreview bool     `json:"show_preview"`
	Versions    []string `json:"versions"`
}

// handleVersions serves GET /versions?location=<name>[&preview=<bool>].
// Validation runs before any cache or network activity: obviously
// malformed locations never cost an upstream round trip or a retry
// budget.
func (s *Server) handleVersions(c echo.Context) error {
	location := strings.TrimSpace(c.QueryParam("location"))
	if location == "" {
		return s.invalidInput(c, "location query parameter is required")
	}
	if !isAlphanumeric(location) {
		return s.invalidInput(c, "location must contain only letters and digits")
	}

	showPreview := s.cfg.ShowPreview
	if raw := c.QueryParam("preview"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return s.invalidInput(c, "preview must be a boolean")
		}
		showPreview = v
	}

	key := cache.Key{
		SubscriptionID: s.cfg.SubscriptionID,
		Location:       location,
		ShowPreview:    showPreview,
	}

	// The fetch may be shared with other callers, so it must not die
	// with this caller's connection.
	ctx := context.WithoutCancel(c.Request().Context())

	versions, err := s.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]string, error) {
		return upstream.FetchWithRetry(ctx, s.client, s.tokens, location, showPreview, s.cfg.MaxRetryAttempts)
	})
	if err != nil {
		return s.writeError(c, location, err)
	}

	return c.JSON(http.StatusOK, versionsResponse{
		Location:    strings.ToLower(location),
		ShowPreview: showPreview,
		Versions:    versions,
	})
}

// handleStatus serves GET /status: 200 when ready, 503 otherwise, with
// the full health report either way.
func (s *Server) handleStatus(c echo.Context) error {
	report := s.health.Report()

	status := http.StatusOK
	if !report.Ready() {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

// isAlphanumeric reports whether loc consists solely of ASCII letters
// and digits, the alphabet of Azure region names.
func isAlphanumeric(loc string) bool {
	for _, r := range loc {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
