package fetcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
	"github.com/vertextoedge/safefetch/internal/service/retry"
	"github.com/vertextoedge/safefetch/internal/service/verifier"
	"github.com/vertextoedge/safefetch/internal/util/ratelimiter"
)

const tracerName = "github.com/vertextoedge/safefetch/internal/service/fetcher"

// Config contains fetcher configuration
type Config struct {
	// AlwaysKeepPartBytes is the default size at which a staging file
	// survives a "not modified" reply
	AlwaysKeepPartBytes int64

	// Timeout bounds a single transfer attempt
	Timeout time.Duration

	// ProgressInterval is how often transfer progress is logged
	ProgressInterval time.Duration

	// MaxBytesPerSec limits the combined transfer rate. Zero is unlimited.
	MaxBytesPerSec int64

	// Concurrency is the default number of parallel GetAll transfers
	Concurrency int
}

// DefaultConfig returns default fetcher configuration
func DefaultConfig() *Config {
	return &Config{
		AlwaysKeepPartBytes: 64 * 1024 * 1024, // 64MiB
		Timeout:             120 * time.Second,
		ProgressInterval:    10 * time.Second,
		Concurrency:         4,
	}
}

// Fetcher downloads single resources into a base directory. A target is
// either absent or complete; partial bytes only ever live in its staging file.
type Fetcher struct {
	config   *Config
	store    port.PartialStore
	verifier *verifier.Verifier
	retry    *retry.Coordinator
	journal  port.Journal
	session  *session
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates a new Fetcher. journal may be nil.
func New(
	cfg *Config,
	store port.PartialStore,
	transport port.Transport,
	v *verifier.Verifier,
	r *retry.Coordinator,
	journal port.Journal,
	logger *zap.Logger,
) (*Fetcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	bw, err := ratelimiter.NewBandwidth(cfg.MaxBytesPerSec)
	if err != nil {
		return nil, fmt.Errorf("invalid bandwidth limit: %w", err)
	}

	return &Fetcher{
		config:   cfg,
		store:    store,
		verifier: v,
		retry:    r,
		journal:  journal,
		session: &session{
			store:     store,
			transport: transport,
			bandwidth: bw,
			timeout:   cfg.Timeout,
			progress:  cfg.ProgressInterval,
			logger:    logger,
		},
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}, nil
}

// Get downloads req.URL to req.RelPath under the base directory.
// On success the target exists and passed every requested check.
func (f *Fetcher) Get(ctx context.Context, req domain.Request) (*domain.Result, error) {
	id := uuid.NewString()
	ctx, span := f.tracer.Start(ctx, "fetcher.Get", trace.WithAttributes(
		attribute.String("safefetch.id", id),
		attribute.String("safefetch.url", req.URL),
		attribute.String("safefetch.path", req.RelPath),
	))
	defer span.End()

	entry := &domain.JournalEntry{
		ID:        id,
		URL:       req.URL,
		RelPath:   req.RelPath,
		StartedAt: time.Now(),
	}
	g := &get{Fetcher: f, req: &req, entry: entry, logger: f.logger.With(
		zap.String("id", id),
		zap.String("url", req.URL),
		zap.String("path", req.RelPath),
	)}

	res, err := g.run(ctx)
	entry.FinishedAt = time.Now()
	if err != nil {
		entry.State = domain.StateFailed
		entry.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		res.ID = id
		res.Elapsed = entry.FinishedAt.Sub(entry.StartedAt)
		entry.State = res.State
		entry.Bytes = res.Bytes
		span.SetAttributes(
			attribute.String("safefetch.state", string(res.State)),
			attribute.Int64("safefetch.bytes", res.Bytes),
		)
	}
	f.record(ctx, entry)
	return res, err
}

// record writes the journal row. Failures are logged, never returned.
func (f *Fetcher) record(ctx context.Context, entry *domain.JournalEntry) {
	if f.journal == nil {
		return
	}
	if err := f.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		f.logger.Warn("failed to record transfer",
			zap.String("id", entry.ID),
			zap.Error(err))
	}
}

// get is the state of one Get call
type get struct {
	*Fetcher
	req    *domain.Request
	entry  *domain.JournalEntry
	state  domain.State
	logger *zap.Logger
}

func (g *get) advance(s domain.State) {
	g.logger.Debug("state", zap.String("from", string(g.state)), zap.String("to", string(s)))
	g.state = s
}

func (g *get) run(ctx context.Context) (*domain.Result, error) {
	if err := g.req.Validate(); err != nil {
		return nil, err
	}
	digests, err := verifier.NormalizeDigests(g.req.Digests)
	if err != nil {
		return nil, err
	}
	if scheme := g.req.Scheme(); !g.req.AllowedProtocols().Allows(scheme) {
		return nil, &domain.ProtocolError{URL: g.req.URL, Scheme: scheme}
	}

	g.advance(domain.StateResolving)
	rp, err := g.store.Resolve(g.req.RelPath)
	if err != nil {
		return nil, err
	}
	g.entry.Target = rp.Target

	g.advance(domain.StateDeciding)
	d, err := g.store.Decide(rp, g.req.Size())
	if err != nil {
		return nil, err
	}
	if d.Kind == domain.DecideSkip {
		g.advance(domain.StateSkipped)
		g.logger.Debug("target already complete, skipping",
			zap.String("target", rp.Target),
			zap.Int64("size", d.Target.Size))
		return &domain.Result{State: domain.StateSkipped, Target: rp.Target, Bytes: d.Target.Size}, nil
	}
	if g.req.HasSize() {
		if err := g.store.EnsureSpace(g.req.Size() - d.Offset); err != nil {
			return nil, err
		}
	}

	g.advance(domain.StateTransferring)
	out, attempts, err := g.transfer(ctx, rp, d)
	g.entry.Attempts = attempts
	g.entry.ResumedFrom = d.Offset
	if err != nil {
		if removed, rmErr := g.store.RemoveIfEmpty(rp); rmErr != nil {
			g.logger.Warn("failed to remove empty staging file", zap.Error(rmErr))
		} else if removed {
			g.logger.Debug("removed empty staging file", zap.String("path", rp.Staging))
		}
		return nil, err
	}

	if out.Last.Status == domain.OutcomeNotModified {
		return g.notModified(rp, d, out, attempts)
	}

	g.advance(domain.StateVerifying)
	size, err := g.verify(rp, digests)
	if err != nil {
		return nil, err
	}

	g.advance(domain.StatePromoting)
	if err := g.store.Promote(rp, size, d.Target); err != nil {
		if errors.Is(err, domain.ErrTargetConflict) {
			g.logger.Warn("target changed during transfer, staging file kept",
				zap.String("target", rp.Target))
		}
		return nil, err
	}

	g.advance(domain.StateDone)
	g.logger.Info("download complete",
		zap.String("target", rp.Target),
		zap.String("size", humanize.IBytes(uint64(size))),
		zap.Int64("resumed_from", d.Offset),
		zap.Int("attempts", attempts))

	return &domain.Result{
		State:       domain.StateDone,
		Target:      rp.Target,
		Bytes:       size,
		Transferred: out.Transferred,
		ResumedFrom: d.Offset,
		Attempts:    attempts,
	}, nil
}

// transferred sums the attempts of one Get call
type transferred struct {
	Last        *domain.TransferOutcome
	Transferred int64
}

// transfer drives session attempts under the retry policy. Each attempt
// resumes from whatever the staging file holds at that point.
func (g *get) transfer(ctx context.Context, rp domain.ResolvedPath, d domain.Decision) (*transferred, int, error) {
	spec := &port.TransferSpec{URL: g.req.URL, Protocols: g.req.AllowedProtocols()}
	if d.Target.Exists && !g.req.HasSize() {
		// Refresh an existing target only if the remote copy is newer
		spec.IfModifiedSince = d.Target.ModTime
	}

	if d.Kind == domain.DecideResume {
		g.logger.Info("resuming download",
			zap.String("staging", rp.Staging),
			zap.Int64("from_byte", d.Offset))
	} else {
		g.logger.Info("starting download", zap.String("target", rp.Target))
	}

	sum := &transferred{}
	staged := d.Kind == domain.DecideResume
	op := func() error {
		spec.ResumeFrom, spec.IfRange = 0, time.Time{}
		if staged {
			snap, err := g.store.StagingInfo(rp)
			if err != nil {
				return err
			}
			if snap.Size > 0 {
				spec.ResumeFrom = snap.Size
				spec.IfRange = snap.ModTime
			}
		}

		out := g.session.attempt(ctx, rp, spec)
		sum.Last = out
		sum.Transferred += out.Transferred()
		if out.Transferred() > 0 || out.Restarted {
			staged = true
		}

		g.logger.Debug("transfer attempt finished",
			zap.Stringer("status", out.Status),
			zap.Int("code", out.Code),
			zap.Int64("start", out.StartOffset),
			zap.Int64("end", out.EndOffset),
			zap.Duration("elapsed", out.Elapsed))
		return out.Err
	}

	attempts, err := g.retry.Do(ctx, op, domain.IsTransient)
	if err == nil {
		return sum, attempts, nil
	}

	if ctx.Err() != nil && !errors.Is(err, domain.ErrInterrupted) {
		err = fmt.Errorf("%w: %w", domain.ErrInterrupted, err)
	}
	if errors.Is(err, domain.ErrInterrupted) {
		g.logger.Info("download interrupted, staging file kept for resume",
			zap.String("staging", rp.Staging),
			zap.Int("attempts", attempts))
	} else {
		g.logger.Warn("download failed",
			zap.Int("attempts", attempts),
			zap.Error(err))
	}
	return sum, attempts, err
}

// notModified applies the keep policy to the staging file
func (g *get) notModified(rp domain.ResolvedPath, d domain.Decision, out *transferred, attempts int) (*domain.Result, error) {
	if !d.Target.Exists {
		return nil, domain.NewFatalError(g.req.URL, out.Last.Code, out.Last.StatusText,
			errors.New("not modified reply without a local copy"))
	}

	keep := g.config.AlwaysKeepPartBytes
	if g.req.AlwaysKeepPartBytes != nil {
		keep = *g.req.AlwaysKeepPartBytes
	}
	removed, err := g.store.DiscardIfStale(rp, keep)
	if err != nil {
		return nil, err
	}

	g.advance(domain.StateSkipped)
	g.logger.Debug("remote copy not modified, skipping",
		zap.String("target", rp.Target),
		zap.Bool("staging_removed", removed))
	return &domain.Result{
		State:    domain.StateSkipped,
		Target:   rp.Target,
		Bytes:    d.Target.Size,
		Attempts: attempts,
	}, nil
}

// verify checks the staging file and removes it when a criterion fails.
// It returns the verified size.
func (g *get) verify(rp domain.ResolvedPath, digests map[string]string) (int64, error) {
	res, err := g.verifier.Verify(rp.Staging, g.req.Size(), digests)
	if err != nil {
		return 0, fmt.Errorf("verification of %s: %w", rp.Staging, err)
	}
	if !res.Passed() {
		if rmErr := g.store.Remove(rp); rmErr != nil {
			g.logger.Warn("failed to remove staging file", zap.Error(rmErr))
		}
		g.logger.Warn("verification failed, staging file removed",
			zap.String("criterion", res.Failure.Criterion),
			zap.String("expected", res.Failure.Expected),
			zap.String("actual", res.Failure.Actual))
		return 0, res.Failure
	}

	snap, err := g.store.StagingInfo(rp)
	if err != nil {
		return 0, err
	}
	if !snap.Exists {
		return 0, &domain.PromotionError{Target: rp.Target, Err: errors.New("staging file disappeared")}
	}
	return snap.Size, nil
}

// BatchResult is the outcome of one request of GetAll
type BatchResult struct {
	Request domain.Request
	Result  *domain.Result
	Err     error
}

// GetAll runs independent requests with at most concurrency transfers in
// flight. Two requests for the same target are rejected before anything starts.
func (f *Fetcher) GetAll(ctx context.Context, reqs []domain.Request, concurrency int) ([]BatchResult, error) {
	seen := make(map[string]int, len(reqs))
	for i, req := range reqs {
		key := filepath.Clean(req.RelPath)
		if j, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: entries %d and %d both write %q", domain.ErrDuplicateTarget, j, i, key)
		}
		seen[key] = i
	}

	if concurrency <= 0 {
		concurrency = f.config.Concurrency
	}

	results := make([]BatchResult, len(reqs))
	var eg errgroup.Group
	eg.SetLimit(concurrency)
	for i, req := range reqs {
		eg.Go(func() error {
			res, err := f.Get(ctx, req)
			results[i] = BatchResult{Request: req, Result: res, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	f.logger.Info("batch complete",
		zap.Int("requests", len(reqs)),
		zap.Int("failed", countFailed(results)))
	return results, nil
}

func countFailed(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
