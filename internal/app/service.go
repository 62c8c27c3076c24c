// Package service wires the ingestion pipeline: the catalog runner fills a
// raw log and the normalize stage turns it into stored venues and events.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/tourney-ingest/internal/adapters/catalog"
	"github.com/okian/tourney-ingest/internal/adapters/rawlog"
	"github.com/okian/tourney-ingest/internal/adapters/repository"
	"github.com/okian/tourney-ingest/pkg/logger"
)

// ErrBusy is returned when a stage is started while another one runs.
var ErrBusy = errors.New("pipeline already running")

// Service owns the components shared by every run in the process: one
// store, one resolver and its limiter and cache.
type Service struct {
	mu sync.RWMutex

	// Core components
	runner *Runner
	stage  *Stage
	store  repository.Store

	// Configuration
	catalogPath string
	sources     []catalog.Source
	outputDir   string

	closers []io.Closer

	// State
	running       bool
	lastRun       *RunReport
	lastNormalize *NormalizeReport
	lastError     string

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunner sets the catalog runner.
func WithRunner(r *Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithStage sets the normalize stage.
func WithStage(st *Stage) Option {
	return func(s *Service) {
		if st != nil {
			s.stage = st
		}
	}
}

// WithStore sets the store reported on by Stats.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCatalogPath sets the catalog file read by Ingest.
func WithCatalogPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.catalogPath = path
		}
	}
}

// WithSources uses a fixed source list instead of reading the catalog file.
func WithSources(sources []catalog.Source) Option {
	return func(s *Service) {
		s.sources = sources
	}
}

// WithOutputDir sets where raw logs are written and looked up.
func WithOutputDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.outputDir = dir
		}
	}
}

// WithCloser registers a resource released by Close, in reverse order.
func WithCloser(c io.Closer) Option {
	return func(s *Service) {
		if c != nil {
			s.closers = append(s.closers, c)
		}
	}
}

// New constructs a Service. Missing components default to an in-memory
// store without address resolution.
func New(opts ...Option) *Service {
	s := &Service{
		catalogPath: "catalog.yaml",
		outputDir:   "output",
		logger:      logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.runner == nil {
		s.runner = NewRunner(nil, s.outputDir, WithRunnerLogger(s.logger))
	}
	if s.stage == nil {
		s.stage = NewStage(nil, NewEngine(s.store, WithEngineLogger(s.logger)), WithStageLogger(s.logger))
	}
	s.logger = s.logger.Named("service")
	return s
}

func (s *Service) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBusy
	}
	s.running = true
	return nil
}

func (s *Service) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
}

// Ingest fetches every catalog source into a new raw log.
func (s *Service) Ingest(ctx context.Context) (RunReport, error) {
	if err := s.begin(); err != nil {
		return RunReport{}, err
	}
	report, err := s.ingest(ctx)
	s.end(err)
	return report, err
}

func (s *Service) ingest(ctx context.Context) (RunReport, error) {
	sources := s.sources
	if sources == nil {
		cat, err := catalog.Load(s.catalogPath)
		if err != nil {
			return RunReport{}, err
		}
		sources = cat.Sources
	}

	report, err := s.runner.Run(ctx, sources)
	if report.LogPath != "" {
		s.mu.Lock()
		s.lastRun = &report
		s.mu.Unlock()
	}
	return report, err
}

// Normalize processes the raw log at logPath, or the latest one in the
// output directory when logPath is empty.
func (s *Service) Normalize(ctx context.Context, logPath string) (NormalizeReport, error) {
	if err := s.begin(); err != nil {
		return NormalizeReport{}, err
	}
	report, err := s.normalize(ctx, logPath)
	s.end(err)
	return report, err
}

func (s *Service) normalize(ctx context.Context, logPath string) (NormalizeReport, error) {
	if logPath == "" {
		latest, err := rawlog.Latest(s.outputDir)
		if err != nil {
			return NormalizeReport{}, err
		}
		logPath = latest
	}

	report, err := s.stage.Run(ctx, logPath)
	s.mu.Lock()
	s.lastNormalize = &report
	s.mu.Unlock()
	return report, err
}

// Run ingests then normalizes the log it just wrote.
func (s *Service) Run(ctx context.Context) (RunReport, NormalizeReport, error) {
	if err := s.begin(); err != nil {
		return RunReport{}, NormalizeReport{}, err
	}

	run, err := s.ingest(ctx)
	if err != nil {
		s.end(err)
		return run, NormalizeReport{}, fmt.Errorf("ingest: %w", err)
	}
	norm, err := s.normalize(ctx, run.LogPath)
	if err != nil {
		err = fmt.Errorf("normalize: %w", err)
	}
	s.end(err)
	return run, norm, err
}

// Stats is the snapshot served on /stats.
type Stats struct {
	Running       bool               `json:"running"`
	LastRun       *RunReport         `json:"last_run,omitempty"`
	LastNormalize *NormalizeReport   `json:"last_normalize,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	Store         *repository.Counts `json:"store,omitempty"`
	CheckedAt     time.Time          `json:"checked_at"`
}

// Stats returns the latest reports and, when the store supports it, its
// size.
func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.RLock()
	st := Stats{
		Running:       s.running,
		LastRun:       s.lastRun,
		LastNormalize: s.lastNormalize,
		LastError:     s.lastError,
		CheckedAt:     time.Now().UTC(),
	}
	s.mu.RUnlock()

	if counter, ok := s.store.(repository.Counter); ok {
		if c, err := counter.Count(ctx); err == nil {
			st.Store = &c
		} else {
			s.logger.Warn(ctx, "store count failed", logger.Error(err))
		}
	}
	return st
}

// Close releases registered resources in reverse registration order.
func (s *Service) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
