package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/pkg/logger"
)

const sqlBackend = "sql"

// sessionRow is the study_sessions table. Structured fields are JSON columns
// that always hold a document (possibly the literal null).
type sessionRow struct {
	ParticipantID string    `gorm:"primaryKey;size:64"`
	Condition     string    `gorm:"size:32;not null"`
	CreatedAt     time.Time `gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime:false"`

	ConsentAge  bool `gorm:"not null;default:false"`
	ConsentData bool `gorm:"not null;default:false"`

	PreSurvey        datatypes.JSON `gorm:"not null"`
	PostSurvey       datatypes.JSON `gorm:"not null"`
	Requirements     datatypes.JSON `gorm:"not null"`
	NormalizedTarget datatypes.JSON `gorm:"not null"`
	DeviationFlags   datatypes.JSON `gorm:"not null"`
	ProductRatings   datatypes.JSON `gorm:"not null"`

	GuideViewStartTs *time.Time
	GuideContinueTs  *time.Time
	GuideReadSeconds *float64

	ChoiceProductID *string `gorm:"size:64"`
	ChoiceTimestamp *time.Time

	CompletedAt *time.Time
}

func (sessionRow) TableName() string { return "study_sessions" }

// eventRow is the study_events table. Seq preserves insertion order.
type eventRow struct {
	Seq           uint64         `gorm:"primaryKey;autoIncrement"`
	EventID       string         `gorm:"size:64;uniqueIndex;not null"`
	ParticipantID string         `gorm:"size:64;index;not null"`
	EventType     string         `gorm:"size:64;not null"`
	Step          string         `gorm:"size:32"`
	EventData     datatypes.JSON `gorm:"not null"`
	Timestamp     time.Time      `gorm:"not null"`
}

func (eventRow) TableName() string { return "study_events" }

// GormStore persists sessions and events in a relational database.
type GormStore struct {
	db   *gorm.DB
	opts options
}

// OpenGormStore opens the database named by dsn and migrates the schema.
// postgres:// and postgresql:// URLs use PostgreSQL; sqlite://path, file: URIs
// and paths ending in .db or .sqlite use SQLite.
func OpenGormStore(ctx context.Context, dsn string, opts ...Option) (*GormStore, error) {
	o := applyOptions(opts)
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newGormLogger(o.log.Named("gorm"), o.slowQuery),
		NowFunc: func() time.Time { return model.Normalize(o.now()) },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrStorage, err)
	}
	if dialector.Name() == "sqlite" {
		// SQLite allows a single writer.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return NewGormStore(ctx, db, opts...)
}

// NewGormStore wraps an open connection and migrates the schema.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...Option) (*GormStore, error) {
	s := &GormStore{db: db, opts: applyOptions(opts)}
	if err := db.WithContext(ctx).AutoMigrate(&sessionRow{}, &eventRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %w", ErrStorage, err)
	}
	s.opts.log.Info(ctx, "sql store ready", logger.String("dialect", db.Name()))
	return s, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:",
		strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"):
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDSN, redact(dsn))
	}
}

// redact keeps the scheme only, so credentials never reach logs.
func redact(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i+3] + "..."
	}
	return "..."
}

// Backend implements Store.
func (s *GormStore) Backend() string { return sqlBackend }

// DB exposes the connection for offline tooling.
func (s *GormStore) DB() *gorm.DB { return s.db }

// CreateSession implements Store.
func (s *GormStore) CreateSession(ctx context.Context, condition types.Condition) (sess *model.Session, err error) {
	start := time.Now()
	defer func() { observe(sqlBackend, "create", start, err) }()

	row, err := toSessionRow(model.NewSession(s.opts.newID(), condition, s.opts.now()))
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("%w: create session: %w", ErrStorage, err)
	}
	return fromSessionRow(row)
}

// GetSession implements Store.
func (s *GormStore) GetSession(ctx context.Context, participantID string) (*model.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("participant_id = ?", participantID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get session: %w", ErrStorage, err)
	}
	return fromSessionRow(row)
}

// UpdateSession implements Store. The read-merge-write runs in one transaction.
func (s *GormStore) UpdateSession(ctx context.Context, participantID string, patch model.SessionPatch) (merged *model.Session, err error) {
	start := time.Now()
	defer func() { observe(sqlBackend, "update", start, err) }()

	var saved sessionRow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		if err := tx.Where("participant_id = ?", participantID).Take(&row).Error; err != nil {
			return err
		}
		if patch.Empty() {
			saved = row
			return nil
		}
		prev, err := fromSessionRow(row)
		if err != nil {
			return err
		}
		next := prev.Clone()
		patch.Apply(next)
		next.UpdatedAt = model.NextTimestamp(s.opts.now(), prev.UpdatedAt)

		saved, err = toSessionRow(next)
		if err != nil {
			return err
		}
		return tx.Save(&saved).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case errors.Is(err, ErrStorage):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: update session: %w", ErrStorage, err)
	}
	return fromSessionRow(saved)
}

// ListSessions implements Store.
func (s *GormStore) ListSessions(ctx context.Context) ([]*model.Session, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", ErrStorage, err)
	}
	out := make([]*model.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := fromSessionRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// LogEvent implements Store.
func (s *GormStore) LogEvent(ctx context.Context, in model.EventInput) (ev *model.Event, err error) {
	start := time.Now()
	defer func() { observe(sqlBackend, "log_event", start, err) }()

	var row eventRow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last eventRow
		var prev time.Time
		err := tx.Where("participant_id = ?", in.ParticipantID).Order("seq DESC").Limit(1).Find(&last).Error
		if err != nil {
			return err
		}
		if last.Seq != 0 {
			prev = last.Timestamp
		}
		row, err = toEventRow(model.NewEvent(s.opts.newID(), in, s.opts.now(), model.Normalize(prev)))
		if err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		if errors.Is(err, ErrStorage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: log event: %w", ErrStorage, err)
	}
	return fromEventRow(row)
}

// Events implements Store.
func (s *GormStore) Events(ctx context.Context, participantID string) ([]*model.Event, error) {
	return s.findEvents(s.db.WithContext(ctx).Where("participant_id = ?", participantID))
}

// AllEvents implements Store.
func (s *GormStore) AllEvents(ctx context.Context) ([]*model.Event, error) {
	return s.findEvents(s.db.WithContext(ctx))
}

func (s *GormStore) findEvents(q *gorm.DB) ([]*model.Event, error) {
	var rows []eventRow
	if err := q.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list events: %w", ErrStorage, err)
	}
	out := make([]*model.Event, 0, len(rows))
	for _, r := range rows {
		ev, err := fromEventRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Counts implements Store.
func (s *GormStore) Counts(ctx context.Context) (int, int, error) {
	var sessions, events int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&sessionRow{}).Count(&sessions).Error; err != nil {
		return 0, 0, fmt.Errorf("%w: count sessions: %w", ErrStorage, err)
	}
	if err := db.Model(&eventRow{}).Count(&events).Error; err != nil {
		return 0, 0, fmt.Errorf("%w: count events: %w", ErrStorage, err)
	}
	return int(sessions), int(events), nil
}

// Close releases the connection pool.
func (s *GormStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrStorage, err)
	}
	s.opts.log.Info(ctx, "sql store closed")
	return nil
}

func dbTime(t time.Time) time.Time {
	return model.Normalize(t)
}

func dbTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := dbTime(*t)
	return &v
}

func readTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := model.Normalize(*t)
	return &v
}

func toJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode column: %w", ErrStorage, err)
	}
	return datatypes.JSON(raw), nil
}

func fromJSON(raw datatypes.JSON, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode column: %w", ErrCorrupt, err)
	}
	return nil
}

func toSessionRow(s *model.Session) (sessionRow, error) {
	row := sessionRow{
		ParticipantID:    s.ParticipantID,
		Condition:        string(s.Condition),
		CreatedAt:        dbTime(s.CreatedAt),
		UpdatedAt:        dbTime(s.UpdatedAt),
		ConsentAge:       s.ConsentAge,
		ConsentData:      s.ConsentData,
		GuideViewStartTs: dbTimePtr(s.GuideViewStartTs),
		GuideContinueTs:  dbTimePtr(s.GuideContinueTs),
		GuideReadSeconds: s.GuideReadSeconds,
		ChoiceProductID:  s.ChoiceProductID,
		ChoiceTimestamp:  dbTimePtr(s.ChoiceTimestamp),
		CompletedAt:      dbTimePtr(s.CompletedAt),
	}
	ratings := make([]model.RatingAction, len(s.ProductRatings))
	for i, r := range s.ProductRatings {
		r.ClientTimestamp = dbTime(r.ClientTimestamp)
		ratings[i] = r
	}

	var err error
	cols := []struct {
		dst *datatypes.JSON
		src any
	}{
		{&row.PreSurvey, s.PreSurvey},
		{&row.PostSurvey, s.PostSurvey},
		{&row.Requirements, s.Requirements},
		{&row.NormalizedTarget, s.NormalizedTarget},
		{&row.DeviationFlags, s.DeviationFlags},
		{&row.ProductRatings, ratings},
	}
	for _, c := range cols {
		if *c.dst, err = toJSON(c.src); err != nil {
			return sessionRow{}, err
		}
	}
	return row, nil
}

func fromSessionRow(row sessionRow) (*model.Session, error) {
	s := &model.Session{
		ParticipantID:    row.ParticipantID,
		Condition:        types.Condition(row.Condition),
		CreatedAt:        model.Normalize(row.CreatedAt),
		UpdatedAt:        model.Normalize(row.UpdatedAt),
		ConsentAge:       row.ConsentAge,
		ConsentData:      row.ConsentData,
		GuideViewStartTs: readTimePtr(row.GuideViewStartTs),
		GuideContinueTs:  readTimePtr(row.GuideContinueTs),
		GuideReadSeconds: row.GuideReadSeconds,
		ChoiceProductID:  row.ChoiceProductID,
		ChoiceTimestamp:  readTimePtr(row.ChoiceTimestamp),
		CompletedAt:      readTimePtr(row.CompletedAt),
	}
	if err := errors.Join(
		fromJSON(row.PreSurvey, &s.PreSurvey),
		fromJSON(row.PostSurvey, &s.PostSurvey),
		fromJSON(row.Requirements, &s.Requirements),
		fromJSON(row.NormalizedTarget, &s.NormalizedTarget),
		fromJSON(row.DeviationFlags, &s.DeviationFlags),
		fromJSON(row.ProductRatings, &s.ProductRatings),
	); err != nil {
		return nil, err
	}
	if s.ProductRatings == nil {
		s.ProductRatings = []model.RatingAction{}
	}
	for i := range s.ProductRatings {
		s.ProductRatings[i].ClientTimestamp = model.Normalize(s.ProductRatings[i].ClientTimestamp)
	}
	return s, nil
}

func toEventRow(ev *model.Event) (eventRow, error) {
	data, err := toJSON(ev.EventData)
	if err != nil {
		return eventRow{}, err
	}
	return eventRow{
		EventID:       ev.ID,
		ParticipantID: ev.ParticipantID,
		EventType:     string(ev.EventType),
		Step:          string(ev.Step),
		EventData:     data,
		Timestamp:     dbTime(ev.Timestamp),
	}, nil
}

func fromEventRow(row eventRow) (*model.Event, error) {
	ev := &model.Event{
		ID:            row.EventID,
		ParticipantID: row.ParticipantID,
		EventType:     types.EventType(row.EventType),
		Step:          types.Step(row.Step),
		Timestamp:     model.Normalize(row.Timestamp),
	}
	if err := fromJSON(row.EventData, &ev.EventData); err != nil {
		return nil, err
	}
	return ev, nil
}
