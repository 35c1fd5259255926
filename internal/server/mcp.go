// Package server exposes the optimizer as MCP tools and serves health checks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/boblangley/meeting-optimizer/internal/agenda"
	"github.com/boblangley/meeting-optimizer/internal/db"
	"github.com/boblangley/meeting-optimizer/internal/document"
	"github.com/boblangley/meeting-optimizer/internal/policy"
	"github.com/boblangley/meeting-optimizer/internal/runner"
	"github.com/boblangley/meeting-optimizer/internal/types"
	"github.com/boblangley/meeting-optimizer/internal/version"
)

// RunHistory reads past runs.
type RunHistory interface {
	LastRun(ctx context.Context) (*db.RunRecord, error)
}

// MCPServer provides the MCP interface to meeting-optimizer.
type MCPServer struct {
	server    *mcp.Server
	evaluator *agenda.Evaluator
	fetcher   policy.DocumentFetcher
	runner    *runner.Runner
	history   RunHistory
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// MCPConfig holds MCP server configuration. Nil collaborators disable the
// tools that need them.
type MCPConfig struct {
	Evaluator *agenda.Evaluator

	// Fetcher reads Google Docs for check_agenda.
	Fetcher policy.DocumentFetcher

	// Runner backs decide_meetings. It is always invoked as a dry run.
	Runner *runner.Runner

	History RunHistory

	// Location is the timezone "today" is computed in.
	Location *time.Location
	Now      func() time.Time

	Logger *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(cfg MCPConfig) *MCPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = agenda.NewEvaluator(agenda.Config{Logger: logger})
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		nil,
	)

	m := &MCPServer{
		server:    server,
		evaluator: evaluator,
		fetcher:   cfg.Fetcher,
		runner:    cfg.Runner,
		history:   cfg.History,
		location:  loc,
		now:       now,
		logger:    logger,
	}

	m.registerTools()
	return m
}

// HTTPHandler returns an http.Handler that serves the MCP protocol over HTTP
// using the streamable HTTP transport.
func (m *MCPServer) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return m.server
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Logger:       m.logger,
		},
	)
}

// RunStdio serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (m *MCPServer) RunStdio(ctx context.Context) error {
	return m.server.Run(ctx, &mcp.StdioTransport{})
}

func (m *MCPServer) registerTools() {
	m.registerCheckAgenda()

	if m.runner != nil {
		m.registerDecideMeetings()
	}
	if m.history != nil {
		m.registerLastRun()
	}
}

// Tool result helper
func toolResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}

// Error result helper
func errorResult(err error) (*mcp.CallToolResult, error) {
	res, mErr := toolResult(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
	if res != nil {
		res.IsError = true
	}
	return res, mErr
}

// day resolves an optional YYYY-MM-DD date, defaulting to today.
func (m *MCPServer) day(date string) (time.Time, error) {
	if date == "" {
		return m.now().In(m.location), nil
	}
	d, err := time.ParseInLocation(db.DayLayout, date, m.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

// ============ Agenda Tools ============

type checkAgendaInput struct {
	Path       string `json:"path,omitempty" jsonschema:"Local markdown or Docs JSON agenda file"`
	Markdown   string `json:"markdown,omitempty" jsonschema:"Agenda markdown text"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"Google Docs document id"`
	Date       string `json:"date,omitempty" jsonschema:"Day to check as YYYY-MM-DD (default today)"`
}

type checkAgendaOutput struct {
	Success bool          `json:"success"`
	Date    string        `json:"date"`
	Verdict string        `json:"verdict"`
	Result  agenda.Result `json:"result"`
}

func (m *MCPServer) checkAgenda(ctx context.Context, input checkAgendaInput) (*checkAgendaOutput, error) {
	sources := 0
	for _, s := range []string{input.Path, input.Markdown, input.DocumentID} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return nil, errors.New("exactly one of path, markdown, document_id is required")
	}

	day, err := m.day(input.Date)
	if err != nil {
		return nil, err
	}

	var blocks []types.Block
	switch {
	case input.Path != "":
		blocks, err = document.ParseFile(input.Path)
	case input.Markdown != "":
		blocks = document.ParseMarkdown([]byte(input.Markdown))
	default:
		if m.fetcher == nil {
			return nil, errors.New("document fetching is not configured")
		}
		blocks, err = m.fetcher.FetchDocument(ctx, input.DocumentID)
	}
	if err != nil {
		return nil, err
	}

	res := m.evaluator.Evaluate(blocks, day)
	return &checkAgendaOutput{
		Success: true,
		Date:    day.Format(db.DayLayout),
		Verdict: res.Verdict(),
		Result:  res,
	}, nil
}

func (m *MCPServer) registerCheckAgenda() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "check_agenda",
		Description: "Check whether an agenda lists topics for a day",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input checkAgendaInput) (*mcp.CallToolResult, any, error) {
		out, err := m.checkAgenda(ctx, input)
		if err != nil {
			m.logger.Error("check_agenda failed", "error", err)
			res, _ := errorResult(err)
			return res, nil, nil
		}
		res, _ := toolResult(out)
		return res, nil, nil
	})
}

type decideMeetingsInput struct {
	Date string `json:"date,omitempty" jsonschema:"Day to decide as YYYY-MM-DD (default today)"`
}

func (m *MCPServer) decideMeetings(ctx context.Context, input decideMeetingsInput) (*runner.Report, error) {
	day, err := m.day(input.Date)
	if err != nil {
		return nil, err
	}
	return m.runner.Run(ctx, day, runner.Options{DryRun: true})
}

func (m *MCPServer) registerDecideMeetings() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "decide_meetings",
		Description: "Decide which of a day's recurring meetings would be cancelled, without changing the calendar",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input decideMeetingsInput) (*mcp.CallToolResult, any, error) {
		report, err := m.decideMeetings(ctx, input)
		if err != nil {
			m.logger.Error("decide_meetings failed", "error", err)
			res, _ := errorResult(err)
			return res, nil, nil
		}
		res, _ := toolResult(map[string]any{
			"success": true,
			"report":  report,
		})
		return res, nil, nil
	})
}

type lastRunInput struct{}

func (m *MCPServer) registerLastRun() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "last_run",
		Description: "Show the most recent recorded run and its decisions",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ lastRunInput) (*mcp.CallToolResult, any, error) {
		run, err := m.history.LastRun(ctx)
		if err != nil {
			m.logger.Error("last_run failed", "error", err)
			res, _ := errorResult(err)
			return res, nil, nil
		}
		res, _ := toolResult(map[string]any{
			"success": true,
			"run":     run,
		})
		return res, nil, nil
	})
}
