package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/pkg/logger"
)

const fileBackend = "file"

// FileStore keeps the authoritative state in memory and mirrors every
// mutation to two JSON-lines files before returning. The session file is
// rewritten wholesale per mutation; the event file is appended to.
// Reads never touch disk.
type FileStore struct {
	mu   sync.RWMutex
	dir  string
	opts options

	sessions map[string]*model.Session
	order    []string // creation order, the session file's line order

	events        []*model.Event
	byParticipant map[string][]int
	lastEventTS   map[string]time.Time
	eventsFile    *os.File

	closed bool
}

// OpenFileStore loads dir (creating it if needed) and returns a ready store.
// Malformed lines fail the load.
func OpenFileStore(ctx context.Context, dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty data directory", ErrStorage)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, dir, err)
	}

	s := &FileStore{
		dir:           dir,
		opts:          applyOptions(opts),
		sessions:      make(map[string]*model.Session),
		byParticipant: make(map[string][]int),
		lastEventTS:   make(map[string]time.Time),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("%w: open events: %w", ErrStorage, err)
	}
	s.eventsFile = f

	s.opts.log.Info(ctx, "file store opened",
		logger.String("dir", dir),
		logger.Int("sessions", len(s.sessions)),
		logger.Int("events", len(s.events)),
	)
	return s, nil
}

func (s *FileStore) load(ctx context.Context) error {
	sessions, err := readLines[*model.Session](filepath.Join(s.dir, SessionsFile))
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if sess == nil || sess.ParticipantID == "" {
			return fmt.Errorf("%w: session without participantId", ErrCorrupt)
		}
		if sess.ProductRatings == nil {
			sess.ProductRatings = []model.RatingAction{}
		}
		if _, dup := s.sessions[sess.ParticipantID]; !dup {
			s.order = append(s.order, sess.ParticipantID)
		}
		s.sessions[sess.ParticipantID] = sess
	}

	eventsPath := filepath.Join(s.dir, EventsFile)
	events, end, torn, err := readLog[*model.Event](eventsPath)
	if err != nil {
		return err
	}
	if torn {
		// An append that never completed. Its caller was not told it succeeded.
		s.opts.log.Warn(ctx, "dropping torn event record",
			logger.String("file", eventsPath),
			logger.Int64("offset", end),
		)
		if err := os.Truncate(eventsPath, end); err != nil {
			return fmt.Errorf("%w: truncate torn event: %w", ErrStorage, err)
		}
	}
	for _, ev := range events {
		if ev == nil {
			return fmt.Errorf("%w: null event", ErrCorrupt)
		}
		s.appendEventLocked(ev)
	}
	return nil
}

// Backend implements Store.
func (s *FileStore) Backend() string { return fileBackend }

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

// CreateSession implements Store.
func (s *FileStore) CreateSession(_ context.Context, condition types.Condition) (sess *model.Session, err error) {
	start := time.Now()
	defer func() { observe(fileBackend, "create", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	created := model.NewSession(s.opts.newID(), condition, s.opts.now())
	s.sessions[created.ParticipantID] = created
	s.order = append(s.order, created.ParticipantID)
	if err := s.persistSessionsLocked(); err != nil {
		delete(s.sessions, created.ParticipantID)
		s.order = s.order[:len(s.order)-1]
		return nil, err
	}
	return created.Clone(), nil
}

// GetSession implements Store.
func (s *FileStore) GetSession(_ context.Context, participantID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// UpdateSession implements Store.
func (s *FileStore) UpdateSession(_ context.Context, participantID string, patch model.SessionPatch) (merged *model.Session, err error) {
	start := time.Now()
	defer func() { observe(fileBackend, "update", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	prev, ok := s.sessions[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Empty() {
		return prev.Clone(), nil
	}
	next := prev.Clone()
	patch.Apply(next)
	next.UpdatedAt = model.NextTimestamp(s.opts.now(), prev.UpdatedAt)

	s.sessions[participantID] = next
	if err := s.persistSessionsLocked(); err != nil {
		s.sessions[participantID] = prev
		return nil, err
	}
	return next.Clone(), nil
}

// ListSessions implements Store.
func (s *FileStore) ListSessions(_ context.Context) ([]*model.Session, error) {
	s.mu.RLock()
	out := make([]*model.Session, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.sessions[s.order[i]].Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// LogEvent implements Store.
func (s *FileStore) LogEvent(_ context.Context, in model.EventInput) (ev *model.Event, err error) {
	start := time.Now()
	defer func() { observe(fileBackend, "log_event", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	ev = model.NewEvent(s.opts.newID(), in, s.opts.now(), s.lastEventTS[in.ParticipantID])
	line, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: encode event: %w", ErrStorage, err)
	}
	line = append(line, '\n')
	info, err := s.eventsFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat events: %w", ErrStorage, err)
	}
	if _, err := s.eventsFile.Write(line); err != nil {
		// Cut off partial bytes so the next append starts on a clean line.
		if terr := s.eventsFile.Truncate(info.Size()); terr != nil {
			err = errors.Join(err, terr)
		}
		return nil, fmt.Errorf("%w: append event: %w", ErrStorage, err)
	}
	s.appendEventLocked(ev)
	return ev.Clone(), nil
}

func (s *FileStore) appendEventLocked(ev *model.Event) {
	s.byParticipant[ev.ParticipantID] = append(s.byParticipant[ev.ParticipantID], len(s.events))
	s.events = append(s.events, ev)
	if ev.Timestamp.After(s.lastEventTS[ev.ParticipantID]) {
		s.lastEventTS[ev.ParticipantID] = ev.Timestamp
	}
}

// Events implements Store.
func (s *FileStore) Events(_ context.Context, participantID string) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byParticipant[participantID]
	out := make([]*model.Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.events[i].Clone())
	}
	return out, nil
}

// AllEvents implements Store.
func (s *FileStore) AllEvents(_ context.Context) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Event, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Clone()
	}
	return out, nil
}

// Counts implements Store.
func (s *FileStore) Counts(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), len(s.events), nil
}

// Close flushes the session table and closes the event file. It is safe to
// call more than once.
func (s *FileStore) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.persistSessionsLocked()
	if cerr := s.eventsFile.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: close events: %w", ErrStorage, cerr)
	}
	s.mu.Unlock()

	s.opts.log.Info(ctx, "file store closed", logger.String("dir", s.dir))
	return err
}

// persistSessionsLocked rewrites the session file. Caller holds s.mu.
func (s *FileStore) persistSessionsLocked() error {
	rows := make([]*model.Session, len(s.order))
	for i, id := range s.order {
		rows[i] = s.sessions[id]
	}
	return writeLines(filepath.Join(s.dir, SessionsFile), rows)
}
