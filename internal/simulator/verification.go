package simulator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/shopstudy/internal/client"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/pkg/logger"
)

const maxReportedProblems = 5

// verifyResults compares what each participant did with what the server
// stored: the session exists with the same condition, the rating count
// matches, completion matches the outcome, and every participant's events
// are in timestamp order.
func verifyResults(ctx context.Context, api *client.Client, results []Result, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "verifying stored data")

	sessions, err := api.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	events, err := api.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	byID := make(map[string]*model.Session, len(sessions))
	for _, s := range sessions {
		byID[s.ParticipantID] = s
	}

	var problems []string
	ours := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Err != "" {
			problems = append(problems, fmt.Sprintf("participant %d failed: %s", r.Index, r.Err))
			continue
		}
		ours[r.ParticipantID] = true
		problems = append(problems, checkSession(r, byID[r.ParticipantID])...)
		if s := byID[r.ParticipantID]; s != nil {
			stats.ByCondition[s.Condition]++
			stats.SessionsVerified++
		}
	}
	problems = append(problems, checkEventOrder(events, ours, stats)...)

	if len(problems) == 0 {
		log.Info(ctx, "stored data verified",
			logger.Int("sessions", stats.SessionsVerified),
			logger.Int("events", stats.EventsVerified),
		)
		return nil
	}
	for _, p := range problems {
		log.Warn(ctx, "verification problem", logger.String("problem", p))
	}
	shown := problems
	if len(shown) > maxReportedProblems {
		shown = shown[:maxReportedProblems]
	}
	return fmt.Errorf("%w: %d problems: %s", ErrInconsistent, len(problems), strings.Join(shown, "; "))
}

func checkSession(r Result, s *model.Session) []string {
	if s == nil {
		return []string{fmt.Sprintf("participant %s: session missing", r.ParticipantID)}
	}
	var out []string
	if s.Condition != r.Condition {
		out = append(out, fmt.Sprintf("participant %s: condition %s, client saw %s", r.ParticipantID, s.Condition, r.Condition))
	}
	if len(s.ProductRatings) != r.Ratings {
		out = append(out, fmt.Sprintf("participant %s: %d ratings stored, %d made", r.ParticipantID, len(s.ProductRatings), r.Ratings))
	}
	if r.Aborted == s.Completed() {
		out = append(out, fmt.Sprintf("participant %s: completed=%t but aborted=%t", r.ParticipantID, s.Completed(), r.Aborted))
	}
	if !r.Aborted && (s.ChoiceProductID == nil || *s.ChoiceProductID != r.Choice) {
		out = append(out, fmt.Sprintf("participant %s: choice %q not stored", r.ParticipantID, r.Choice))
	}
	return out
}

// checkEventOrder walks the global log, which is in append order, and
// requires each participant's timestamps to never go backwards.
func checkEventOrder(events []*model.Event, ours map[string]bool, stats *Stats) []string {
	var out []string
	last := make(map[string]time.Time)
	for _, e := range events {
		if !ours[e.ParticipantID] {
			continue
		}
		stats.EventsVerified++
		if prev, ok := last[e.ParticipantID]; ok && e.Timestamp.Before(prev) {
			out = append(out, fmt.Sprintf("participant %s: event %s at %s precedes %s",
				e.ParticipantID, e.EventType, e.Timestamp.Format(time.RFC3339Nano), prev.Format(time.RFC3339Nano)))
		}
		last[e.ParticipantID] = e.Timestamp
	}
	return out
}
