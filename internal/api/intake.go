package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"automation-hub/backend/internal/intake"
	"automation-hub/backend/pkg/models"
)

// ChatRequest is one stateless intake turn: the new message plus the full
// prior history, which the client replays on every call.
type ChatRequest struct {
	Message string            `json:"message"`
	History []models.ChatTurn `json:"history"`
}

// ChatResponse carries the assistant's reply. Ready flips to true when the
// reply is a finalization object whose payload passed schema validation.
type ChatResponse struct {
	Reply   string         `json:"reply"`
	Ready   bool           `json:"ready"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Chat answers one intake conversation turn.
// (POST /api/v1/systems/:slug/chat)
func (s *Server) Chat(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	reply, err := s.Intake.Chat(ctx, c.Param("slug"), req.Message, req.History)
	if err != nil {
		return s.mapError(err)
	}

	resp := ChatResponse{Reply: reply}
	if ready, ok := intake.ParseReady(reply); ok {
		resp.Ready = true
		resp.Payload = ready.Payload
	}
	return c.JSON(http.StatusOK, resp)
}

// ChatIntro returns the opening assistant message for a system.
// (GET /api/v1/systems/:slug/chat/intro)
func (s *Server) ChatIntro(c echo.Context) error {
	reply, err := s.Intake.Intro(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ChatResponse{Reply: reply})
}
