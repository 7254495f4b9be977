package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createStartJobTool returns the start_job tool definition
func createStartJobTool() mcp.Tool {
	return mcp.NewTool("start_job",
		mcp.WithDescription("Start a catalog ingestion job that crawls a partner site and prices eligible products"),
		mcp.WithString("start_url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL of the partner site"),
		),
		mcp.WithArray("categories",
			mcp.WithStringItems(),
			mcp.Description("Category keys to keep (see list_categories); all categories when omitted"),
		),
	)
}

// createJobStatusTool returns the job_status tool definition
func createJobStatusTool() mcp.Tool {
	return mcp.NewTool("job_status",
		mcp.WithDescription("Get the status and progress counters of a job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID returned by start_job"),
		),
	)
}

// createStopJobTool returns the stop_job tool definition
func createStopJobTool() mcp.Tool {
	return mcp.NewTool("stop_job",
		mcp.WithDescription("Request a cooperative stop of a running job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID to stop"),
		),
	)
}

// createListJobsTool returns the list_jobs tool definition
func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List known jobs, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Max jobs (default: 20)"),
		),
	)
}

func createJobResultsTool() mcp.Tool {
	return mcp.NewTool("job_results",
		mcp.WithDescription("List the persisted product records and premiums of a job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max records (default: 50)"),
		),
	)
}

func createListCategoriesTool() mcp.Tool {
	return mcp.NewTool("list_categories",
		mcp.WithDescription("List the category keys accepted by start_job"),
	)
}
