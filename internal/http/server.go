// Package httpapp wires the JSON REST surface over the endpoint lifecycle.
package httpapp

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/hookbridge/hookbridge/internal/config"
	"github.com/hookbridge/hookbridge/internal/http/handlers"
)

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h *handlers.Handlers
	e *echo.Echo
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(cfg config.Config, h *handlers.Handlers) (*EchoServer, error) {
	es := &EchoServer{h: h, e: echo.New()}
	es.registerRoutes()
	return es, nil
}

func (es *EchoServer) registerRoutes() {
	es.e.GET("/healthz", es.h.HandleHealthz)

	api := es.e.Group("/api/v1")
	api.GET("/endpoints", es.h.HandleListEndpoints)
	api.POST("/endpoints", es.h.HandleCreateEndpoint)
	api.GET("/endpoints/:id", es.h.HandleGetEndpoint)
	api.PUT("/endpoints/:id", es.h.HandleUpdateEndpoint)
	api.DELETE("/endpoints/:id", es.h.HandleDeleteEndpoint)
	api.PUT("/endpoints/:id/enable", es.h.HandleEnableEndpoint)
	api.DELETE("/endpoints/:id/enable", es.h.HandleDisableEndpoint)
	api.PUT("/endpoints/:id/eventTypes", es.h.HandleReplaceEventTypes)
	api.PUT("/endpoints/:id/eventTypes/:eventTypeId", es.h.HandleLinkEventType)
	api.DELETE("/endpoints/:id/eventTypes/:eventTypeId", es.h.HandleUnlinkEventType)
	api.POST("/endpoints/system/email_subscription", es.h.HandleEmailSubscription)
	api.POST("/endpoints/system/drawer_subscription", es.h.HandleDrawerSubscription)
}

// Handler exposes the routed handler for an outer http.Server, which owns
// listen and shutdown.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}
