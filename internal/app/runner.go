package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/tourney-ingest/internal/adapters/catalog"
	"github.com/okian/tourney-ingest/internal/adapters/connector"
	"github.com/okian/tourney-ingest/internal/adapters/rawlog"
	"github.com/okian/tourney-ingest/internal/domain/model"
	"github.com/okian/tourney-ingest/pkg/logger"
	"github.com/okian/tourney-ingest/pkg/metrics"
)

// Source run statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Default runner configuration constants.
const (
	defaultFetchConcurrency = 4
	defaultSourceTimeout    = 15 * time.Second
	reportSuffix            = ".report.json"
)

// SourceReport summarizes one catalog entry in a run.
type SourceReport struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Records     int           `json:"records"`
	ParseErrors int           `json:"parse_errors"`
	Duration    time.Duration `json:"duration_ns"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// RunReport summarizes one ingest run.
type RunReport struct {
	RunID        string         `json:"run_id"`
	LogPath      string         `json:"log_path"`
	Started      time.Time      `json:"started"`
	Duration     time.Duration  `json:"duration_ns"`
	Sources      []SourceReport `json:"sources"`
	TotalRecords int            `json:"total_records"`
}

// Source returns the report for name.
func (r RunReport) Source(name string) (SourceReport, bool) {
	for _, s := range r.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceReport{}, false
}

// Runner fetches catalog sources concurrently into one raw log per run.
type Runner struct {
	factory     *connector.Factory
	outputDir   string
	concurrency int
	timeout     time.Duration
	newRunID    func() string
	logger      logger.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithFetchConcurrency bounds how many sources are fetched at once.
func WithFetchConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSourceTimeout sets the default fetch and parse deadline per source.
func WithSourceTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRunID overrides run id generation.
func WithRunID(fn func() string) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.newRunID = fn
		}
	}
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner writing logs under outputDir.
func NewRunner(factory *connector.Factory, outputDir string, opts ...RunnerOption) *Runner {
	if factory == nil {
		factory = connector.NewFactory(nil)
	}
	r := &Runner{
		factory:     factory,
		outputDir:   outputDir,
		concurrency: defaultFetchConcurrency,
		timeout:     defaultSourceTimeout,
		newRunID:    uuid.NewString,
		logger:      logger.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")
	return r
}

// Run dispatches every enabled source and appends what they yield to a new
// raw log. A failing source is reported and never stops the others. Only a
// raw log or report write failure is returned as an error.
func (r *Runner) Run(ctx context.Context, sources []catalog.Source) (RunReport, error) {
	started := time.Now()
	report := RunReport{
		RunID:   r.newRunID(),
		Started: started.UTC(),
		Sources: make([]SourceReport, len(sources)),
	}

	w, err := rawlog.Create(r.outputDir, report.RunID)
	if err != nil {
		return report, err
	}
	report.LogPath = w.Path()
	log := r.logger.With(logger.String("run_id", report.RunID))
	log.Info(ctx, "ingest run started", logger.Int("sources", len(sources)), logger.String("log_path", report.LogPath))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, src := range sources {
		report.Sources[i] = SourceReport{Name: src.Name, Type: src.Type}

		if !src.IsEnabled() {
			report.Sources[i].Status = StatusSkipped
			report.Sources[i].Error = "disabled"
			metrics.RecordSourceFetch(src.Name, StatusSkipped, 0)
			continue
		}

		conn, err := r.factory.New(src)
		if err != nil {
			status := StatusFailed
			if errors.Is(err, connector.ErrUnknownType) {
				status = StatusSkipped
			}
			report.Sources[i].Status = status
			report.Sources[i].Error = err.Error()
			metrics.RecordSourceFetch(src.Name, status, 0)
			log.Warn(ctx, "source not dispatched",
				logger.String("source_name", src.Name),
				logger.String("type", src.Type),
				logger.Error(err),
			)
			continue
		}

		g.Go(func() error {
			rep, err := r.runSource(gctx, w, conn, src, log)
			report.Sources[i] = rep
			return err
		})
	}

	runErr := g.Wait()
	if err := w.Close(); err != nil && runErr == nil {
		runErr = err
	}

	report.TotalRecords = w.Count()
	report.Duration = time.Since(started)
	metrics.RecordRunDuration("ingest", float64(report.Duration.Milliseconds()), time.Now().Unix())

	if err := writeReport(report.LogPath+reportSuffix, report); err != nil && runErr == nil {
		runErr = err
	}

	log.Info(ctx, "ingest run finished",
		logger.Int("total_records", report.TotalRecords),
		logger.Duration("took", report.Duration),
	)
	return report, runErr
}

func (r *Runner) runSource(ctx context.Context, w *rawlog.Writer, conn connector.Connector, src catalog.Source, log logger.Logger) (rep SourceReport, err error) { //nolint:gocritic // hugeParam
	rep = SourceReport{Name: src.Name, Type: src.Type, Status: StatusOK}
	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		metrics.RecordRawRecords(src.Name, rep.Records)
		metrics.RecordSourceFetch(src.Name, rep.Status, float64(rep.Duration.Milliseconds()))
	}()

	sctx, cancel := context.WithTimeout(ctx, src.Timeout(r.timeout))
	defer cancel()

	doc, err := conn.Fetch(sctx)
	if err != nil {
		rep.Status = StatusFailed
		rep.Error = err.Error()
		log.Warn(ctx, "source fetch failed", logger.String("source_name", src.Name), logger.Error(err))
		return rep, nil
	}

	var batch []model.RawEvent
	for rec, parseErr := range conn.Parse(sctx, doc) {
		if parseErr != nil {
			rep.ParseErrors++
			metrics.RecordParseError("connector")
			log.Debug(ctx, "record skipped", logger.String("source_name", src.Name), logger.Error(parseErr))
			continue
		}
		batch = append(batch, rec)
	}

	// Records reach the log only when the whole document parsed in time.
	if err := sctx.Err(); err != nil {
		rep.Status = StatusFailed
		rep.Error = fmt.Sprintf("%v: %v", connector.ErrFetch, err)
		log.Warn(ctx, "source parse interrupted",
			logger.String("source_name", src.Name),
			logger.Int("dropped", len(batch)),
			logger.Error(err),
		)
		return rep, nil
	}

	for _, rec := range batch {
		if err := w.Append(rec); err != nil {
			rep.Status = StatusFailed
			rep.Error = err.Error()
			return rep, fmt.Errorf("source %s: %w", src.Name, err)
		}
		rep.Records++
	}

	log.Info(ctx, "source done",
		logger.String("source_name", src.Name),
		logger.String("status", rep.Status),
		logger.Int("records", rep.Records),
		logger.Int("parse_errors", rep.ParseErrors),
	)
	return rep, nil
}

func writeReport(path string, report RunReport) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

// ReadReport loads a run report written next to a raw log.
func ReadReport(logPath string) (RunReport, error) {
	b, err := os.ReadFile(logPath + reportSuffix)
	if err != nil {
		return RunReport{}, fmt.Errorf("read run report: %w", err)
	}
	var report RunReport
	if err := json.Unmarshal(b, &report); err != nil {
		return RunReport{}, fmt.Errorf("decode run report: %w", err)
	}
	return report, nil
}
