package service

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/tourney-ingest/internal/adapters/geocode"
	"github.com/okian/tourney-ingest/internal/adapters/mq/queue"
	"github.com/okian/tourney-ingest/internal/adapters/mq/worker"
	"github.com/okian/tourney-ingest/internal/adapters/rawlog"
	"github.com/okian/tourney-ingest/internal/adapters/repository"
	"github.com/okian/tourney-ingest/internal/domain/dedupe"
	"github.com/okian/tourney-ingest/internal/domain/model"
	"github.com/okian/tourney-ingest/internal/domain/normalize"
	"github.com/okian/tourney-ingest/pkg/logger"
	"github.com/okian/tourney-ingest/pkg/metrics"
)

// Default stage configuration constants.
const (
	defaultStageQueueSize  = 10000
	defaultStageDedupeSize = 100000
	defaultCountry         = "France"
)

// NormalizeReport counts what one normalize pass did with a raw log. Every
// record read ends up in exactly one of Duplicates, Rejected, StoreErrors or
// the event counters.
type NormalizeReport struct {
	LogPath         string         `json:"log_path"`
	Read            int            `json:"read"`
	Accepted        int            `json:"accepted"`
	Rejected        map[string]int `json:"rejected"`
	Duplicates      int            `json:"duplicates"`
	ParseErrors     int            `json:"parse_errors"`
	GeocodeHits     int            `json:"geocode_hits"`
	GeocodeMisses   int            `json:"geocode_misses"`
	GeocodeFailures int            `json:"geocode_failures"`
	VenuesCreated   int            `json:"venues_created"`
	EventsInserted  int            `json:"events_inserted"`
	EventsUpdated   int            `json:"events_updated"`
	StoreErrors     int            `json:"store_errors"`
	EndCleared      int            `json:"end_cleared"`
	Duration        time.Duration  `json:"duration_ns"`
}

// RejectedTotal sums rejections over every reason.
func (r NormalizeReport) RejectedTotal() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}

// AddressResolver resolves a lookup string to a location.
type AddressResolver interface {
	Lookup(ctx context.Context, address string) (geocode.Result, error)
}

// Stage turns a raw log into stored events: normalize, resolve, upsert.
type Stage struct {
	normalizer *normalize.Normalizer
	engine     *Engine
	resolver   AddressResolver

	workers    int
	queueSize  int
	dedupeSize int
	country    string

	logger logger.Logger
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithResolver enables address resolution. Nil disables it.
func WithResolver(r AddressResolver) StageOption {
	return func(s *Stage) { s.resolver = r }
}

// WithWorkerCount sets the number of normalize workers.
func WithWorkerCount(n int) StageOption {
	return func(s *Stage) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets how many raw records may wait for a worker.
func WithQueueSize(n int) StageOption {
	return func(s *Stage) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithDedupeSize bounds the per-pass set of seen source hashes.
func WithDedupeSize(n int) StageOption {
	return func(s *Stage) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// WithCountry sets the country appended to lookup strings.
func WithCountry(country string) StageOption {
	return func(s *Stage) {
		if country != "" {
			s.country = country
		}
	}
}

// WithStageLogger sets the stage logger.
func WithStageLogger(l logger.Logger) StageOption {
	return func(s *Stage) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStage creates a normalize stage writing through engine.
func NewStage(normalizer *normalize.Normalizer, engine *Engine, opts ...StageOption) *Stage {
	if normalizer == nil {
		normalizer = normalize.New()
	}
	s := &Stage{
		normalizer: normalizer,
		engine:     engine,
		workers:    runtime.NumCPU(),
		queueSize:  defaultStageQueueSize,
		dedupeSize: defaultStageDedupeSize,
		country:    defaultCountry,
		logger:     logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("normalize")
	return s
}

// tally accumulates report counters from concurrent workers.
type tally struct {
	mu sync.Mutex
	NormalizeReport
}

func (t *tally) add(fn func(r *NormalizeReport)) {
	t.mu.Lock()
	fn(&t.NormalizeReport)
	t.mu.Unlock()
}

// shard is one worker with its own queue. Records of one venue always land on
// the same shard, so they are upserted in log order.
type shard struct {
	queue *queue.InMemoryQueue
	pool  *worker.Pool
}

func (s *Stage) shards(ctx context.Context, handler worker.Handler) []shard {
	out := make([]shard, s.workers)
	capacity := max(1, s.queueSize/s.workers)
	for i := range out {
		q := queue.NewInMemoryQueue(queue.WithCapacity(capacity))
		out[i] = shard{queue: q, pool: worker.NewPool(1, q, handler,
			worker.WithName("shard-"+strconv.Itoa(i)),
			worker.WithLogger(s.logger),
		)}
		out[i].pool.Start(ctx)
	}
	return out
}

// shardOf routes by the raw venue name and city.
func shardOf(rec model.RawEvent, n int) int { //nolint:gocritic // hugeParam
	key := model.VenueKey{
		Name: strings.Join(strings.Fields(rec.Text(model.FieldVenueName)), " "),
		City: strings.Join(strings.Fields(rec.Text(model.FieldCity)), " "),
	}
	return int(xxhash.Sum64String(key.String()) % uint64(n))
}

// Run processes the raw log at logPath. The returned error is set only when
// the log cannot be read to the end or ctx is canceled; per-record problems
// are counted in the report.
func (s *Stage) Run(ctx context.Context, logPath string) (NormalizeReport, error) {
	started := time.Now()
	t := &tally{NormalizeReport: NormalizeReport{LogPath: logPath, Rejected: map[string]int{}}}
	log := s.logger.With(logger.String("log_path", logPath))

	seen := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	shards := s.shards(ctx, worker.HandlerFunc(func(ctx context.Context, r worker.Record) error {
		return s.handle(ctx, r, t, seen)
	}))
	workers := 0
	for _, sh := range shards {
		workers += sh.pool.Size()
	}
	log.Info(ctx, "normalize started", logger.Int("workers", workers))

	var readErr error
	for rec, err := range rawlog.Read(logPath) {
		if err != nil {
			if errors.Is(err, rawlog.ErrMalformed) {
				t.add(func(r *NormalizeReport) { r.ParseErrors++ })
				metrics.RecordParseError("rawlog")
				log.Debug(ctx, "raw line skipped", logger.Error(err))
				continue
			}
			readErr = err
			break
		}

		t.add(func(r *NormalizeReport) { r.Read++ })
		if seen.SeenAndRecord(ctx, rec.SourceHash) {
			t.add(func(r *NormalizeReport) { r.Duplicates++ })
			metrics.RecordDuplicate()
			continue
		}
		if err := shards[shardOf(rec, len(shards))].queue.Enqueue(ctx, rec); err != nil {
			readErr = err
			break
		}
	}

	var processed int64
	for _, sh := range shards {
		if ctx.Err() != nil {
			// Buffered records are abandoned.
			if err := sh.pool.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warn(ctx, "normalize workers did not stop", logger.Error(err))
			}
		} else {
			_ = sh.queue.Close()
			sh.pool.Wait()
		}
		processed += sh.pool.Processed()
	}

	if readErr == nil {
		readErr = ctx.Err()
	}

	t.mu.Lock()
	report := t.NormalizeReport
	t.mu.Unlock()
	report.Duration = time.Since(started)
	metrics.RecordRunDuration("normalize", float64(report.Duration.Milliseconds()), time.Now().Unix())

	log.Info(ctx, "normalize finished",
		logger.Int("read", report.Read),
		logger.Int64("processed", processed),
		logger.Int("accepted", report.Accepted),
		logger.Int("rejected", report.RejectedTotal()),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("events_inserted", report.EventsInserted),
		logger.Int("events_updated", report.EventsUpdated),
		logger.Int("store_errors", report.StoreErrors),
		logger.Duration("took", report.Duration),
	)
	return report, readErr
}

func (s *Stage) handle(ctx context.Context, raw model.RawEvent, t *tally, seen dedupe.Deduper) error { //nolint:gocritic // hugeParam
	ev, err := s.normalizer.Normalize(raw)
	if err != nil {
		reason := normalize.ReasonOf(err)
		t.add(func(r *NormalizeReport) { r.Rejected[reason]++ })
		metrics.RecordRejected(reason)
		return err
	}
	t.add(func(r *NormalizeReport) { r.Accepted++ })
	metrics.RecordNormalized()

	loc := s.resolve(ctx, ev, t)

	out, err := s.engine.Upsert(ctx, ev, loc)
	if err != nil {
		t.add(func(r *NormalizeReport) { r.StoreErrors++ })
		// A later copy of the record in the log gets another try.
		seen.Unrecord(ctx, raw.SourceHash)
		s.logger.Warn(ctx, "upsert failed",
			logger.String("source_name", raw.SourceName),
			logger.String("title", ev.Title),
			logger.Error(err),
		)
		return err
	}

	t.add(func(r *NormalizeReport) {
		if out.VenueCreated {
			r.VenuesCreated++
		}
		if out.EndCleared {
			r.EndCleared++
		}
		switch out.Event {
		case repository.Inserted:
			r.EventsInserted++
		case repository.Updated:
			r.EventsUpdated++
		}
	})
	return nil
}

// resolve returns the event's location, or nil when resolution is disabled,
// there is nothing to look up, or the lookup failed. Failures never block
// the upsert.
func (s *Stage) resolve(ctx context.Context, ev model.CanonicalEvent, t *tally) *model.Location { //nolint:gocritic // hugeParam
	if s.resolver == nil || !ev.HasLocationHint() {
		return nil
	}

	res, err := s.resolver.Lookup(ctx, geocode.LookupString(ev.VenueName, ev.Address, ev.City, s.country))
	switch {
	case err == nil && res.Cached:
		t.add(func(r *NormalizeReport) { r.GeocodeHits++ })
		return &res.Location
	case err == nil:
		t.add(func(r *NormalizeReport) { r.GeocodeMisses++ })
		return &res.Location
	case errors.Is(err, geocode.ErrNotFound):
		t.add(func(r *NormalizeReport) { r.GeocodeMisses++ })
		return nil
	default:
		t.add(func(r *NormalizeReport) { r.GeocodeFailures++ })
		s.logger.Debug(ctx, "address not resolved", logger.String("venue", ev.VenueName), logger.Error(err))
		return nil
	}
}
