package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"automation-hub/backend/internal/registry"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/pkg/models"
)

// ListSystems returns registered systems, optionally filtered.
// (GET /api/v1/systems?status=&category=)
func (s *Server) ListSystems(c echo.Context) error {
	ctx := c.Request().Context()

	filter := repository.SystemFilter{
		Status:   models.SystemStatus(c.QueryParam("status")),
		Category: models.SystemCategory(c.QueryParam("category")),
	}
	systems, err := s.Registry.List(ctx, filter)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, systems)
}

// CreateSystem registers a new system and scaffolds its project.
// (POST /api/v1/systems)
func (s *Server) CreateSystem(c echo.Context) error {
	ctx := c.Request().Context()

	var in registry.CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	system, err := s.Registry.Create(ctx, in)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, system)
}

// GetSystem returns one system by slug.
// (GET /api/v1/systems/:slug)
func (s *Server) GetSystem(c echo.Context) error {
	system, err := s.Registry.Get(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, system)
}

// UpdateSystem mutates the provided fields of a system.
// (PATCH /api/v1/systems/:slug)
func (s *Server) UpdateSystem(c echo.Context) error {
	var in registry.UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	system, err := s.Registry.Update(c.Request().Context(), c.Param("slug"), in)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, system)
}

// DeleteSystem removes a system; remove_files=true also deletes its scaffold.
// (DELETE /api/v1/systems/:slug)
func (s *Server) DeleteSystem(c echo.Context) error {
	removeFiles := c.QueryParam("remove_files") == "true"
	if err := s.Registry.Delete(c.Request().Context(), c.Param("slug"), removeFiles); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeploySystem pushes the system's scaffold to the runtime and records the
// resulting endpoint.
// (POST /api/v1/systems/:slug/deploy)
func (s *Server) DeploySystem(c echo.Context) error {
	system, err := s.Registry.Deploy(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, system)
}
