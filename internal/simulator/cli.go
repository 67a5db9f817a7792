package simulator

import (
	"context"
	"fmt"
	"os"

	"github.com/okian/shopstudy/pkg/logger"
)

// SetupLogging initializes the global logger, optionally teeing into a
// rotated log file.
func SetupLogging(logFile string, verbose bool) error {
	var opts []logger.Option
	if logFile != "" {
		opts = append(opts, logger.WithFile(logFile))
	}
	if err := logger.Init(opts...); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			return err
		}
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Shopstudy Participant Simulator
===============================

Runs synthetic participants through the full study workflow against a running
server, then checks through the admin API that what was stored matches what
the participants did.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -admin-password string
        Admin password used for verification (default "dev-admin")
  -participants int
        Number of synthetic participants (default 50)
  -concurrency int
        Participants in flight at once (default CPU cores * 2)
  -passive float
        Share of participants who let every countdown expire (default 0.3)
  -decline float
        Share of participants who decline consent (default 0.1)
  -pace float
        Multiplier applied to the workflow delays (default 0.01)
  -timeout duration
        HTTP request timeout (default 10s)
  -output string
        Write per-participant results to this JSON file
  -log string
        Also write logs to this file
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  # Fifty participants at 1/100th of real pacing
  go run ./cmd/simulate

  # A slower, larger run with results saved for inspection
  go run ./cmd/simulate -participants 500 -pace 0.05 -output results.json
`)
}
