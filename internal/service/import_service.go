package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/member-dashboard-api/internal/config"
	"github.com/member-dashboard-api/internal/csvimport"
	"github.com/member-dashboard-api/internal/metrics"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/repository"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// importEntry is one in-memory import session and the pipeline behind it
type importEntry struct {
	mu       sync.Mutex
	session  models.ImportSession
	pipeline *csvimport.Pipeline
	running  bool
}

func (e *importEntry) snapshot() *models.ImportSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	s.State = e.pipeline.State().String()
	if e.running {
		s.Progress = e.pipeline.Progress()
	}
	return &s
}

// importService is the concrete implementation of ImportService
type importService struct {
	repos    *repository.Repositories
	notifier Notifier
	metrics  *metrics.Metrics
	cfg      config.ImportConfig
	now      func() time.Time
	log      zerolog.Logger

	// id -> *importEntry; idle sessions expire after cfg.SessionTTL
	sessions *cache.Cache
}

// newImportService creates a new ImportService
func newImportService(repos *repository.Repositories, notifier Notifier, m *metrics.Metrics, cfg config.ImportConfig, log zerolog.Logger) *importService {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	sessions := cache.New(ttl, time.Minute)

	svc := &importService{
		repos:    repos,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("service", "import").Logger(),
		sessions: sessions,
	}
	sessions.OnEvicted(func(id string, _ interface{}) {
		svc.log.Debug().Str("import_id", id).Msg("Import session expired")
	})
	return svc
}

// Template returns the downloadable CSV template
func (s *importService) Template() ([]byte, error) {
	return csvimport.Template()
}

// Upload parses a file and opens a preview session. Nothing is written
// until the session is confirmed.
func (s *importService) Upload(ctx context.Context, actor *models.Account, filename string, data []byte) (*models.ImportSession, error) {
	if s.cfg.MaxUploadSize > 0 && int64(len(data)) > s.cfg.MaxUploadSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrBadRequest, s.cfg.MaxUploadSize)
	}

	batch, err := csvimport.Parse(string(data), csvimport.Options{
		RaggedRows: csvimport.ParseRaggedPolicy(s.cfg.RaggedRows),
		MaxRows:    s.cfg.MaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	pipeline := csvimport.NewPipeline(
		batch,
		csvimport.EmailSourceFunc(s.repos.Member.AllEmails),
		csvimport.RowWriterFunc(s.writeRow),
	)
	entry := &importEntry{
		pipeline: pipeline,
		session: models.ImportSession{
			ID:          uuid.New().String(),
			Filename:    filename,
			CreatedBy:   actor.ID,
			Headers:     batch.Headers,
			TotalRows:   batch.Len(),
			Preview:     pipeline.Preview(s.cfg.PreviewRows),
			ParseErrors: batch.Rejected,
			CreatedAt:   s.now().UTC(),
		},
	}

	s.sessions.SetDefault(entry.session.ID, entry)

	s.log.Info().
		Str("import_id", entry.session.ID).
		Str("file", filename).
		Int("rows", batch.Len()).
		Int("ragged", len(batch.Rejected)).
		Int("dropped", batch.Dropped).
		Str("created_by", actor.ID).
		Msg("Import session created")

	return entry.snapshot(), nil
}

// Get returns a session with its current progress
func (s *importService) Get(ctx context.Context, id string) (*models.ImportSession, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return entry.snapshot(), nil
}

func (s *importService) lookup(id string) (*importEntry, error) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*importEntry), nil
}

// Confirm runs the import in the calling request. A session runs at most
// once.
func (s *importService) Confirm(ctx context.Context, actor *models.Account, id string) (*models.ImportSession, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	if entry.running {
		entry.mu.Unlock()
		return nil, ErrImportInProgress
	}
	if entry.pipeline.State().Done() {
		entry.mu.Unlock()
		return nil, ErrImportFinished
	}
	entry.running = true
	startTime := s.now()
	started := startTime.UTC()
	entry.session.StartedAt = &started
	entry.mu.Unlock()

	// A running session never expires; the TTL restarts once it finishes.
	s.sessions.Set(id, entry, cache.NoExpiration)
	defer s.sessions.SetDefault(id, entry)

	s.log.Info().
		Str("import_id", id).
		Str("confirmed_by", actor.ID).
		Msg("Starting import processing")

	result, runErr := entry.pipeline.Run(ctx, func(p csvimport.Progress) {
		entry.mu.Lock()
		entry.session.Progress = p
		entry.mu.Unlock()
	})

	duration := s.now().Sub(startTime)
	completed := s.now().UTC()
	state := entry.pipeline.State()

	entry.mu.Lock()
	entry.running = false
	entry.session.CompletedAt = &completed
	entry.session.DurationMs = duration.Milliseconds()
	entry.session.Result = result
	if runErr != nil {
		entry.session.Error = runErr.Error()
	}
	entry.mu.Unlock()

	s.metrics.ObserveImport(state.String(), result, duration.Seconds())

	if runErr != nil {
		s.log.Error().Err(runErr).Str("import_id", id).Msg("Import failed")
		return entry.snapshot(), runErr
	}

	if result.Success > 0 && s.notifier != nil {
		s.notifier.Notify()
	}
	s.log.Info().
		Str("import_id", id).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Int("duplicates", result.Duplicates).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("Import completed")

	return entry.snapshot(), nil
}

// writeRow stores one validated row as a new member
func (s *importService) writeRow(ctx context.Context, row csvimport.Row) error {
	m, err := models.MemberFromRow(row.Fields)
	if err != nil {
		return err
	}
	m.ID = uuid.New().String()
	return s.repos.Member.Create(ctx, m)
}
