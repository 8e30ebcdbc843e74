package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/wsrelay/internal/version"
)

func (g *Group) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"protocol":       g.protocol,
		"connections":    g.hub.Len(),
		"uptime_seconds": g.clock.Since(g.startTime).Seconds(),
		"version":        version.Get().Version,
	})
}
