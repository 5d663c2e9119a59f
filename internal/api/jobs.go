package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"automation-hub/backend/pkg/models"
)

// SubmitResponse acknowledges an accepted job. Processing is asynchronous;
// poll GET /jobs/:id for progress.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// SubmitJob accepts a payload for a deployed system, records the job and
// enqueues it for the worker. The caller authenticates with the system's API
// key in X-API-Key and identifies the end client in X-Client-ID; client_id is
// injected into the stored payload, never collected from the payload itself.
// (POST /api/v1/systems/:slug/jobs)
func (s *Server) SubmitJob(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")

	system, err := s.Registry.Get(ctx, slug)
	if err != nil {
		return s.mapError(err)
	}
	key := c.Request().Header.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(system.APIKey)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
	}

	clientID := c.Request().Header.Get("X-Client-ID")
	if clientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "X-Client-ID header is required")
	}

	var payload map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["client_id"] = clientID
	raw, err := json.Marshal(payload)
	if err != nil {
		return s.mapError(err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:         uuid.NewString(),
		SystemSlug: slug,
		ClientID:   clientID,
		Status:     models.JobStatusReceived,
		Payload:    raw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return s.mapError(err)
	}

	if err := s.Producer.Enqueue(ctx, models.QueueMessage{
		JobID:      job.ID,
		SystemSlug: slug,
		ClientID:   clientID,
		Payload:    raw,
		EnqueuedAt: now,
	}); err != nil {
		// The record exists but will never run; mark it so the client is not
		// left polling a job nobody picked up.
		if failErr := s.Jobs.Fail(ctx, job.ID, "enqueue failed: "+err.Error()); failErr != nil {
			s.Logger.Error("job %s: recording enqueue failure: %v", job.ID, failErr)
		}
		return s.mapError(err)
	}

	return c.JSON(http.StatusAccepted, SubmitResponse{JobID: job.ID, Status: job.Status})
}

// GetJob returns the job record with its accumulated result.
// (GET /api/v1/jobs/:id)
func (s *Server) GetJob(c echo.Context) error {
	job, err := s.Jobs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, job)
}
