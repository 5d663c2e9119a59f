// Package api contains the HTTP handlers for the automation hub.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"automation-hub/backend/internal/intake"
	"automation-hub/backend/internal/llm"
	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/queue"
	"automation-hub/backend/internal/registry"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/internal/schema"
)

// Server holds the dependencies for the API server.
type Server struct {
	Registry *registry.Service
	Intake   *intake.Engine
	Jobs     repository.JobStore
	Producer queue.Producer
	Logger   *logging.Logger
}

// NewServer creates a new Server.
func NewServer(reg *registry.Service, engine *intake.Engine, jobs repository.JobStore, producer queue.Producer, logger *logging.Logger) *Server {
	return &Server{Registry: reg, Intake: engine, Jobs: jobs, Producer: producer, Logger: logger}
}

// RegisterRoutes mounts all handlers on the given group, normally /api/v1.
// chatLimiter guards the conversational endpoints, which fan out to the
// language model on every call.
func (s *Server) RegisterRoutes(g *echo.Group, chatLimiter echo.MiddlewareFunc) {
	g.GET("/systems", s.ListSystems)
	g.POST("/systems", s.CreateSystem)
	g.GET("/systems/:slug", s.GetSystem)
	g.PATCH("/systems/:slug", s.UpdateSystem)
	g.DELETE("/systems/:slug", s.DeleteSystem)
	g.POST("/systems/:slug/deploy", s.DeploySystem)

	chat := g.Group("/systems/:slug/chat")
	if chatLimiter != nil {
		chat.Use(chatLimiter)
	}
	chat.GET("/intro", s.ChatIntro)
	chat.POST("", s.Chat)

	g.POST("/systems/:slug/jobs", s.SubmitJob)
	g.GET("/jobs/:id", s.GetJob)
}

// mapError converts domain errors to HTTP errors. Anything unclassified is a
// 500 with the cause hidden from the client.
func (s *Server) mapError(err error) *echo.HTTPError {
	var schemaErr *schema.UpstreamError
	var llmErr *llm.UpstreamError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrSlugExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrJobTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, intake.ErrNotDeployed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrInvalidSlug):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, schema.ErrNoCompatibleEndpoint):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.As(err, &schemaErr), errors.As(err, &llmErr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		s.Logger.Error("internal error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
