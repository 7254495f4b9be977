package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/httpclient"
	"github.com/ternarybob/covera/internal/models"
)

// JobAPI is the part of the job API client the tools use
type JobAPI interface {
	StartJob(ctx context.Context, req models.StartJobRequest) (*httpclient.StartResponse, error)
	GetStatus(ctx context.Context, id string) (*httpclient.JobStatus, error)
	StopJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context) ([]models.Job, error)
	Results(ctx context.Context, id string) ([]models.ResultRecord, error)
	Categories(ctx context.Context) ([]models.CategoryDefinition, error)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(format string, args ...interface{}) *mcp.CallToolResult {
	result := textResult(fmt.Sprintf(format, args...))
	result.IsError = true
	return result
}

// handleStartJob implements the start_job tool
func handleStartJob(client JobAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		startURL, err := request.RequireString("start_url")
		if err != nil || startURL == "" {
			return errorResult("Error: start_url parameter is required"), nil
		}

		started, err := client.StartJob(ctx, models.StartJobRequest{
			StartURL:           startURL,
			SelectedCategories: request.GetStringSlice("categories", nil),
		})
		if err != nil {
			logger.Warn().Err(err).Str("start_url", startURL).Msg("start_job failed")
			return errorResult("Start error: %v", err), nil
		}
		return textResult(fmt.Sprintf("Started job `%s` for %s", started.JobID, startURL)), nil
	}
}

// handleJobStatus implements the job_status tool
func handleJobStatus(client JobAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult("Error: job_id parameter is required"), nil
		}

		status, err := client.GetStatus(ctx, jobID)
		if err != nil {
			return errorResult("Status error: %v", err), nil
		}
		return textResult(formatStatus(status)), nil
	}
}

// handleStopJob implements the stop_job tool
func handleStopJob(client JobAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult("Error: job_id parameter is required"), nil
		}

		if err := client.StopJob(ctx, jobID); err != nil {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("stop_job failed")
			return errorResult("Stop error: %v", err), nil
		}
		return textResult(fmt.Sprintf("Stop requested for job `%s`", jobID)), nil
	}
}

// handleListJobs implements the list_jobs tool
func handleListJobs(client JobAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}

		jobs, err := client.ListJobs(ctx)
		if err != nil {
			return errorResult("List error: %v", err), nil
		}
		if len(jobs) > limit {
			jobs = jobs[:limit]
		}
		return textResult(formatJobs(jobs)), nil
	}
}

func handleJobResults(client JobAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult("Error: job_id parameter is required"), nil
		}
		limit := request.GetInt("limit", 50)

		records, err := client.Results(ctx, jobID)
		if err != nil {
			return errorResult("Results error: %v", err), nil
		}
		return textResult(formatResults(jobID, records, limit)), nil
	}
}

func handleListCategories(client JobAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		categories, err := client.Categories(ctx)
		if err != nil {
			return errorResult("Categories error: %v", err), nil
		}
		return textResult(formatCategories(categories)), nil
	}
}
