// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/session"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *session.Service
}

// New creates a new MCP server with all Raido tools registered.
func New(svc *session.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("fetch_events",
		mcp.WithDescription("Fetch conflict events from the data provider for the given countries and date range, replacing the current session data."),
		mcp.WithString("countries", mcp.Required(), mcp.Description("Comma-separated country names (e.g. 'Ukraine,Syria')")),
		mcp.WithString("date_from", mcp.Required(), mcp.Description("Start date, YYYY-MM-DD")),
		mcp.WithString("date_to", mcp.Required(), mcp.Description("End date, YYYY-MM-DD")),
	), s.fetchEvents)

	s.mcp.AddTool(mcp.NewTool("query_events",
		mcp.WithDescription("Return events from the current session, optionally filtered to one date."),
		mcp.WithString("date", mcp.Description("Optional date filter, YYYY-MM-DD")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events to return (default 50)")),
	), s.queryEvents)

	s.mcp.AddTool(mcp.NewTool("get_summary",
		mcp.WithDescription("Summary metrics over the current session data: event count, total fatalities, distinct regions, date span."),
	), s.getSummary)

	s.mcp.AddTool(mcp.NewTool("get_playback_state",
		mcp.WithDescription("Current temporal playback state: mode, playing flag, selected date, date range."),
	), s.getPlaybackState)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) fetchEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	countriesArg, err := req.RequireString("countries")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fromArg, err := req.RequireString("date_from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	toArg, err := req.RequireString("date_to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var countries []string
	for _, c := range strings.Split(countriesArg, ",") {
		if c = strings.TrimSpace(c); c != "" {
			countries = append(countries, c)
		}
	}
	if len(countries) == 0 {
		return mcp.NewToolResultError("at least one country is required"), nil
	}

	from, err := time.ParseInLocation(models.DateLayout, fromArg, time.UTC)
	if err != nil {
		return mcp.NewToolResultError("date_from must be YYYY-MM-DD"), nil
	}
	to, err := time.ParseInLocation(models.DateLayout, toArg, time.UTC)
	if err != nil {
		return mcp.NewToolResultError("date_to must be YYYY-MM-DD"), nil
	}

	result, err := s.svc.FetchData(ctx, models.FetchRequest{
		Sources:  countries,
		DateFrom: from,
		DateTo:   to,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.MarshalIndent(map[string]any{
		"records":  result.Records,
		"dropped":  result.Dropped,
		"warnings": result.Warnings,
		"no_data":  result.NoData,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) queryEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records := s.svc.Records()
	if dateArg, err := req.RequireString("date"); err == nil && dateArg != "" {
		day, parseErr := time.ParseInLocation(models.DateLayout, dateArg, time.UTC)
		if parseErr != nil {
			return mcp.NewToolResultError("date must be YYYY-MM-DD"), nil
		}
		records = s.svc.RecordsOn(day)
	}

	limit := 50
	if n, err := req.RequireFloat("limit"); err == nil && n > 0 {
		limit = int(n)
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("no events in session"), nil
	}

	out, _ := json.MarshalIndent(records, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.svc.DataFetched() {
		return mcp.NewToolResultText("no data fetched yet"), nil
	}
	sum := s.svc.Summary()
	out, _ := json.MarshalIndent(sum, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getPlaybackState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.svc.Playback().State()
	out, _ := json.MarshalIndent(snap, "", "  ")
	if snap.DateCount == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no dates loaded\n%s", out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
