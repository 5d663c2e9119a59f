package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"automation-hub/backend/internal/intake"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/pkg/models"
)

// Server exposes the hub's intake conversations and job lookups as MCP tools
// so agent clients can drive submissions without the REST surface. The
// limiter guards the LLM-backed intake tools with the same budget as the
// REST chat routes; nil disables the check.
type Server struct {
	mcpServer *server.MCPServer
	intake    *intake.Engine
	systems   repository.SystemStore
	jobs      repository.JobStore
	limiter   *rate.Limiter
}

// NewChatLimiter builds the token bucket for the intake tools, defaulting
// the same way the REST rate limit middleware does.
func NewChatLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func NewServer(engine *intake.Engine, systems repository.SystemStore, jobs repository.JobStore, limiter *rate.Limiter) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Automation Hub",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		intake:  engine,
		systems: systems,
		jobs:    jobs,
		limiter: limiter,
	}

	s.registerTools()
	return s
}

func (s *Server) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_systems",
			mcp.WithDescription("List registered automation systems"),
		),
		s.handleListSystems,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"intake_intro",
			mcp.WithDescription("Get the opening message of an intake conversation for a system"),
			mcp.WithString("slug", mcp.Required(), mcp.Description("The system's slug")),
		),
		s.handleIntakeIntro,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"intake_chat",
			mcp.WithDescription("Send one intake conversation turn. Pass the full prior history as a JSON array of {role, content} turns."),
			mcp.WithString("slug", mcp.Required(), mcp.Description("The system's slug")),
			mcp.WithString("message", mcp.Required(), mcp.Description("The user's message")),
			mcp.WithString("history", mcp.Description("Prior turns as a JSON array")),
		),
		s.handleIntakeChat,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"job_status",
			mcp.WithDescription("Look up a submitted job's status and accumulated result"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The job ID")),
		),
		s.handleJobStatus,
	)
}

func (s *Server) handleListSystems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	systems, err := s.systems.List(ctx, repository.SystemFilter{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list systems: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(systems)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleIntakeIntro(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return mcp.NewToolResultError("Rate limit exceeded, retry shortly"), nil
	}

	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	slug, ok := args["slug"].(string)
	if !ok || slug == "" {
		return mcp.NewToolResultError("Missing required parameter: slug"), nil
	}

	reply, err := s.intake.Intro(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start intake: %v", err)), nil
	}
	return mcp.NewToolResultText(reply), nil
}

func (s *Server) handleIntakeChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return mcp.NewToolResultError("Rate limit exceeded, retry shortly"), nil
	}

	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	slug, ok := args["slug"].(string)
	if !ok || slug == "" {
		return mcp.NewToolResultError("Missing required parameter: slug"), nil
	}
	message, ok := args["message"].(string)
	if !ok || message == "" {
		return mcp.NewToolResultError("Missing required parameter: message"), nil
	}

	var history []models.ChatTurn
	if raw, ok := args["history"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid history: %v", err)), nil
		}
	}

	reply, err := s.intake.Chat(ctx, slug, message, history)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Chat failed: %v", err)), nil
	}

	result := map[string]any{"reply": reply}
	if ready, ok := intake.ParseReady(reply); ok {
		result["ready"] = true
		result["payload"] = ready.Payload
	}
	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to look up job: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(job)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
