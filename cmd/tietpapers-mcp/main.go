package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/tietpapers/models"
)

func main() {
	apiURL := os.Getenv("TIETPAPERS_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8000"
	}
	apiKey := os.Getenv("TIETPAPERS_API_KEY")

	s := server.NewMCPServer(
		"tietpapers",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	downloadTool := mcp.NewTool("download_papers",
		mcp.WithDescription("Search the university's old question paper archive and download every matching paper into per-course folders on the server. Returns the run's console output, ending in a 'SUCCESS: Downloaded X/Y file(s)' summary line."),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("Search field: 'code' for course code (e.g. UCS503) or 'name' for course name"),
			mcp.Enum("code", "name"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Course code or course name to search for"),
		),
		mcp.WithBoolean("merge",
			mcp.Description("Merge each course's papers into a single PDF (default: false)"),
		),
		mcp.WithString("exam_filter",
			mcp.Description("Keep only this exam type, e.g. 'MST' or 'EST' (default: 'all')"),
		),
	)
	s.AddTool(downloadTool, handleDownloadPapers(apiURL, apiKey))

	statusTool := mcp.NewTool("papers_status",
		mcp.WithDescription("Report whether the paper download backend is up and how many runs are in progress."),
	)
	s.AddTool(statusTool, handleStatus(apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the wrapper and returns the status and body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func handleDownloadPapers(apiURL, apiKey string) server.ToolHandlerFunc {
	// Longer than the wrapper's own run timeout.
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mode, err := request.RequireString("mode")
		if err != nil {
			return mcp.NewToolResultError("mode is required"), nil
		}
		value, err := request.RequireString("value")
		if err != nil || strings.TrimSpace(value) == "" {
			return mcp.NewToolResultError("value is required"), nil
		}

		option := "1"
		switch mode {
		case "code":
		case "name":
			option = "2"
		default:
			return mcp.NewToolResultError("mode must be 'code' or 'name'"), nil
		}

		payload := models.RunRequest{
			Option:     option,
			Value:      value,
			MergePdfs:  request.GetBool("merge", false),
			ExamFilter: request.GetString("exam_filter", ""),
		}
		payload.Defaults()

		status, body, err := apiPost(ctx, client, apiURL, apiKey, "/run-script", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if status != http.StatusOK {
			var failure models.FailureResponse
			if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
				if failure.Detail != nil {
					return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", failure.Detail.Code, failure.Error)), nil
				}
				return mcp.NewToolResultError(failure.Error), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("backend returned HTTP %d", status)), nil
		}

		var run models.RunResponse
		if err := json.Unmarshal(body, &run); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		result := strings.TrimRight(run.Output, "\n")
		if run.Error != "" {
			result += "\n\n--- stderr ---\n" + strings.TrimRight(run.Error, "\n")
		}
		if !strings.Contains(run.Output, "SUCCESS:") {
			return mcp.NewToolResultError(result), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}

func handleStatus(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/health", nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		resp, err := client.Do(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("backend unreachable: %v", err)), nil
		}
		defer resp.Body.Close()

		var h models.HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse health: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("status: %s\nuptime: %s\nactive runs: %d\nversion: %s",
			h.Status, h.Uptime, h.ActiveRuns, h.Version)), nil
	}
}
