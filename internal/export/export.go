// Package export renders sessions and their events into analysis files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
)

// ErrWrite wraps failures of the underlying writer.
var ErrWrite = errors.New("export write failed")

// Bundle is one session with its events, serialized as the session's
// fields plus an "events" array.
type Bundle struct {
	*model.Session
	Events []*model.Event `json:"events"`
}

// Bundles groups events by participant and pairs them with sessions,
// keeping the order of sessions and the append order of events.
func Bundles(sessions []*model.Session, events []*model.Event) []Bundle {
	byParticipant := make(map[string][]*model.Event, len(sessions))
	for _, ev := range events {
		byParticipant[ev.ParticipantID] = append(byParticipant[ev.ParticipantID], ev)
	}
	out := make([]Bundle, len(sessions))
	for i, s := range sessions {
		evs := byParticipant[s.ParticipantID]
		if evs == nil {
			evs = []*model.Event{}
		}
		out[i] = Bundle{Session: s, Events: evs}
	}
	return out
}

// WriteJSONL writes one JSON document per bundle.
func WriteJSONL(w io.Writer, bundles []Bundle) error {
	enc := json.NewEncoder(w)
	for _, b := range bundles {
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("%w: jsonl %s: %w", ErrWrite, b.ParticipantID, err)
		}
	}
	return nil
}

// Columns is the CSV header.
var Columns = []string{
	"participant_id", "condition", "created_at", "updated_at", "completed_at",
	"consent_age", "consent_data", "pre_survey",
	"requirements", "normalized_target", "deviation_flags",
	"ratings_count", "interested_count",
	"guide_view_start_ts", "guide_continue_ts", "guide_read_seconds",
	"choice_product_id", "choice_timestamp", "post_survey",
	"event_count",
}

// WriteCSV writes a header and one flattened row per bundle. Structured
// fields are JSON-encoded in their cells.
func WriteCSV(w io.Writer, bundles []Bundle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("%w: csv header: %w", ErrWrite, err)
	}
	for _, b := range bundles {
		row, err := csvRow(b)
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("%w: csv %s: %w", ErrWrite, b.ParticipantID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: csv flush: %w", ErrWrite, err)
	}
	return nil
}

func csvRow(b Bundle) ([]string, error) {
	s := b.Session
	cells := make([]string, 0, len(Columns))

	interested := 0
	for _, r := range s.ProductRatings {
		if r.Action == types.RatingInterested {
			interested++
		}
	}

	var enc jsonCells
	preSurvey := enc.cell(s.PreSurvey != nil, s.PreSurvey)
	requirements := enc.cell(s.Requirements != nil, s.Requirements)
	target := enc.cell(s.NormalizedTarget != nil, s.NormalizedTarget)
	flags := enc.cell(s.DeviationFlags != nil, s.DeviationFlags)
	postSurvey := enc.cell(s.PostSurvey != nil, s.PostSurvey)
	if enc.err != nil {
		return nil, fmt.Errorf("%w: csv %s: %w", ErrWrite, s.ParticipantID, enc.err)
	}

	cells = append(cells,
		s.ParticipantID,
		string(s.Condition),
		timeCell(&s.CreatedAt),
		timeCell(&s.UpdatedAt),
		timeCell(s.CompletedAt),
		strconv.FormatBool(s.ConsentAge),
		strconv.FormatBool(s.ConsentData),
		preSurvey,
		requirements,
		target,
		flags,
		strconv.Itoa(len(s.ProductRatings)),
		strconv.Itoa(interested),
		timeCell(s.GuideViewStartTs),
		timeCell(s.GuideContinueTs),
		floatCell(s.GuideReadSeconds),
		stringCell(s.ChoiceProductID),
		timeCell(s.ChoiceTimestamp),
		postSurvey,
		strconv.Itoa(len(b.Events)),
	)
	return cells, nil
}

// jsonCells encodes structured cells, keeping the first error. Absent
// records stay empty.
type jsonCells struct{ err error }

func (j *jsonCells) cell(present bool, v any) string {
	if !present || j.err != nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		j.err = err
		return ""
	}
	return string(raw)
}

func timeCell(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func floatCell(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func stringCell(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
