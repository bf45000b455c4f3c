package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Register wires up stream endpoints on the given Echo instance.
func Register(e *echo.Echo, hub *Hub, broker *Broker) {
	e.GET("/stream/vessels", hub.handleWebSocket)
	e.GET("/stream/catch-reports", streamCatchReports(broker))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":      "ok",
			"ws_clients":  hub.Clients(),
			"sse_clients": broker.Subscribers(),
		})
	})
}
