package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/httpclient"
)

func main() {
	serverURL := os.Getenv("COVERA_SERVER")
	if serverURL == "" {
		serverURL = "http://localhost:8085"
	}

	// Console only at warn so stdio stays clean for the protocol
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:       arbor_models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
	}).WithLevelFromString("warn")

	client, err := httpclient.New(serverURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		os.Exit(1)
	}

	mcpServer := newMCPServer(client, logger)

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}

func newMCPServer(client JobAPI, logger arbor.ILogger) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"covera",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createStartJobTool(), handleStartJob(client, logger))
	mcpServer.AddTool(createJobStatusTool(), handleJobStatus(client, logger))
	mcpServer.AddTool(createStopJobTool(), handleStopJob(client, logger))
	mcpServer.AddTool(createListJobsTool(), handleListJobs(client, logger))
	mcpServer.AddTool(createJobResultsTool(), handleJobResults(client, logger))
	mcpServer.AddTool(createListCategoriesTool(), handleListCategories(client, logger))

	return mcpServer
}
