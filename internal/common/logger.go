package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const logTimeFormat = "15:04:05"

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

func consoleWriter() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: logTimeFormat,
	}
}

// GetLogger returns the global logger, creating a console logger on first use
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		defer loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleWriter())
	}
	return globalLogger
}

// InitLogger builds the service logger from the logging section and installs it globally.
// File output lands in a logs directory next to the executable.
func InitLogger(config *Config) arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	timeFormat := config.Logging.TimeFormat
	if timeFormat == "" {
		timeFormat = logTimeFormat
	}

	logger := arbor.NewLogger()

	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			logsDir, err := logDirectory()
			if err != nil {
				fmt.Printf("Warning: file logging disabled: %v\n", err)
				continue
			}
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filepath.Join(logsDir, "covera.log"),
				TimeFormat: timeFormat,
				MaxSize:    100 * 1024 * 1024, // 100 MB
				MaxBackups: 3,
				OutputType: outputFormat(config.Logging.Format),
			})
		case "stdout", "console":
			writer := consoleWriter()
			writer.TimeFormat = timeFormat
			writer.OutputType = outputFormat(config.Logging.Format)
			logger = logger.WithConsoleWriter(writer)
		}
	}

	logger = logger.WithLevelFromString(config.Logging.Level)
	globalLogger = logger

	return logger
}

// outputFormat maps the configured log format to arbor's output type (logfmt text unless json)
func outputFormat(format string) models.OutputFormat {
	if format == "json" {
		return models.OutputFormatJSON
	}
	return models.OutputFormatLogfmt
}

// LogDirectory returns the directory used for log and crash files
func LogDirectory() string {
	dir, err := logDirectory()
	if err != nil {
		return "./logs"
	}
	return dir
}

func logDirectory() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	logsDir := filepath.Join(filepath.Dir(execPath), "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return logsDir, nil
}
