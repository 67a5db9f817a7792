package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/shopstudy/internal/simulator"
)

// Default configuration constants.
const (
	defaultParticipants = 50
	defaultConcurrency  = 2 // multiplier for runtime.NumCPU()
	defaultPassiveRate  = 0.3
	defaultDeclineRate  = 0.1
	defaultPacingScale  = 0.01
	defaultTimeout      = 10 * time.Second
	defaultRunTimeout   = 30 * time.Minute
)

func main() {
	var (
		baseURL       = flag.String("url", "http://localhost:8080", "Base URL of the service")
		adminPassword = flag.String("admin-password", "dev-admin", "Admin password used for verification")
		participants  = flag.Int("participants", defaultParticipants, "Number of synthetic participants")
		concurrency   = flag.Int("concurrency", runtime.NumCPU()*defaultConcurrency, "Participants in flight at once")
		passiveRate   = flag.Float64("passive", defaultPassiveRate, "Share of participants who let every countdown expire")
		declineRate   = flag.Float64("decline", defaultDeclineRate, "Share of participants who decline consent")
		pacingScale   = flag.Float64("pace", defaultPacingScale, "Multiplier applied to the workflow delays")
		timeout       = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile    = flag.String("output", "", "Write per-participant results to this JSON file")
		logFile       = flag.String("log", "", "Also write logs to this file")
		verbose       = flag.Bool("verbose", false, "Enable debug logging")
		help          = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulator.ShowHelp()
		return
	}

	if err := simulator.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &simulator.Config{
		BaseURL:       *baseURL,
		AdminPassword: *adminPassword,
		Participants:  *participants,
		Concurrency:   *concurrency,
		PassiveRate:   *passiveRate,
		DeclineRate:   *declineRate,
		PacingScale:   *pacingScale,
		Timeout:       *timeout,
		OutputFile:    *outputFile,
		LogFile:       *logFile,
		Verbose:       *verbose,
	}

	if _, err := simulator.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
