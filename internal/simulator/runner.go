// Package simulator drives synthetic participants through the real
// workflow against a running server and checks what was stored.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/shopstudy/internal/client"
	"github.com/okian/shopstudy/internal/content"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percentage          = 100
)

// Run executes the complete simulation and returns its statistics. It
// fails when the service is unreachable or the stored data does not match
// what the participants did.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{
		Participants: cfg.Participants,
		ByCondition:  make(map[types.Condition]int),
		ByBehaviour:  make(map[Behaviour]int),
		StartTime:    time.Now(),
	}
	log := logger.Get()

	log.Info(ctx, "starting participant simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("participants", cfg.Participants),
		logger.Int("concurrency", cfg.Concurrency),
		logger.Float64("passiveRate", cfg.PassiveRate),
		logger.Float64("declineRate", cfg.DeclineRate),
		logger.Float64("pacingScale", cfg.PacingScale),
		logger.Duration("timeout", cfg.Timeout),
	)

	api, err := client.New(cfg.BaseURL,
		client.WithTimeout(cfg.Timeout),
		client.WithAdminPassword(cfg.AdminPassword),
		client.WithLogger(logger.Named("client")),
	)
	if err != nil {
		return nil, err
	}

	// Step 1: Check service health
	if err := api.Health(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	log.Info(ctx, "service is healthy")

	// Step 2: Run participants
	results, err := runParticipants(ctx, cfg, api)
	if err != nil {
		return nil, fmt.Errorf("participant run aborted: %w", err)
	}
	tally(results, stats)

	// Step 3: Save results
	if cfg.OutputFile != "" {
		if err := saveResults(ctx, cfg.OutputFile, results); err != nil {
			log.Warn(ctx, "failed to save results", logger.Error(err))
		}
	}

	// Step 4: Verify stored data
	verifyErr := verifyResults(ctx, api, results, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if verifyErr != nil {
		return stats, verifyErr
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// runParticipants fans the participants out over an errgroup bounded by
// the configured concurrency. A participant failure is recorded in its
// result and does not stop the others.
func runParticipants(ctx context.Context, cfg *Config, api *client.Client) ([]Result, error) {
	catalog := content.Default()
	behaviours := Assign(cfg)
	results := make([]Result, len(behaviours))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, b := range behaviours {
		results[i] = Result{Index: i, Behaviour: b}
		g.Go(func() error {
			if err := runParticipant(gctx, cfg, api, catalog, &results[i]); err != nil {
				results[i].Err = err.Error()
				logger.Get().Warn(gctx, "participant failed",
					logger.Int("index", i),
					logger.String("behaviour", string(b)),
					logger.Error(err),
				)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func tally(results []Result, stats *Stats) {
	for _, r := range results {
		stats.ByBehaviour[r.Behaviour]++
		stats.SyncFailures += r.SyncFailures
		switch {
		case r.Err != "":
			stats.Failed++
		case r.Aborted:
			stats.Aborted++
		default:
			stats.Completed++
		}
	}
}

// saveResults writes the per-participant results as a JSON array.
func saveResults(ctx context.Context, filename string, results []Result) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, append(raw, '\n'), filePermission); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	logger.Get().Info(ctx, "results saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the run summary, including the condition split.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var completionRate, perSecond float64
	if stats.Participants > 0 {
		completionRate = float64(stats.Completed) / float64(stats.Participants) * percentage
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Participants) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("participants", stats.Participants),
		logger.Int("completed", stats.Completed),
		logger.Int("aborted", stats.Aborted),
		logger.Int("failed", stats.Failed),
		logger.Int("syncFailures", stats.SyncFailures),
		logger.Int("sessionsVerified", stats.SessionsVerified),
		logger.Int("eventsVerified", stats.EventsVerified),
		logger.Int("control", stats.ByCondition[types.ConditionControl]),
		logger.Int("treatment", stats.ByCondition[types.ConditionTreatment]),
		logger.Int("engaged", stats.ByBehaviour[Engaged]),
		logger.Int("passive", stats.ByBehaviour[Passive]),
		logger.Int("decliners", stats.ByBehaviour[Decliner]),
		logger.Duration("duration", stats.Duration),
		logger.Float64("completionRate", completionRate),
		logger.Float64("participantsPerSecond", perSecond),
	)
}
