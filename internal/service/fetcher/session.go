package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
	"github.com/vertextoedge/safefetch/internal/util/ratelimiter"
)

// session runs single transfer attempts into a staging file
type session struct {
	store     port.PartialStore
	transport port.Transport
	bandwidth *ratelimiter.Bandwidth
	timeout   time.Duration
	progress  time.Duration
	logger    *zap.Logger
}

// attempt transfers spec.URL into the staging file of rp, appending at
// spec.ResumeFrom. The staging descriptor is closed before it returns.
func (s *session) attempt(ctx context.Context, rp domain.ResolvedPath, spec *port.TransferSpec) *domain.TransferOutcome {
	out := &domain.TransferOutcome{StartOffset: spec.ResumeFrom, EndOffset: spec.ResumeFrom}

	w, err := s.store.OpenStaging(rp, spec.ResumeFrom)
	if err != nil {
		out.Status = domain.OutcomeFatal
		out.Err = domain.NewFatalError(spec.URL, 0, "", err)
		return out
	}

	attemptCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sink := &stagingSink{
		parent:   ctx,
		staging:  w,
		throttle: s.bandwidth.Writer(attemptCtx, w),
		report:   ratelimiter.NewProgress(s.progress, spec.ResumeFrom),
		offset:   spec.ResumeFrom,
		url:      spec.URL,
		logger:   s.logger,
	}

	rep, err := s.transport.Perform(attemptCtx, spec, sink)
	if rep == nil {
		rep = &port.TransferReport{StartOffset: spec.ResumeFrom}
	}
	if err == nil && !rep.NotModified {
		err = w.Sync()
	}
	if closeErr := w.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close staging file: %w", closeErr)
	}

	out.Code = rep.StatusCode
	out.StatusText = rep.StatusText
	out.StartOffset = rep.StartOffset
	out.EndOffset = rep.StartOffset + rep.BytesWritten
	out.Elapsed = rep.Elapsed
	out.RemoteModTime = rep.RemoteModTime
	out.Restarted = rep.Restarted
	s.classify(ctx, attemptCtx, spec, out, rep, err)

	// Stamp once per attempt so the next resume sends a usable IfRange
	if out.Status == domain.OutcomeCompleted || rep.BytesWritten > 0 {
		if err := s.store.Timestamp(rp, out.RemoteModTime); err != nil {
			s.logger.Warn("failed to timestamp staging file",
				zap.String("path", rp.Staging),
				zap.Error(err))
		}
	}
	return out
}

func (s *session) classify(parent, attemptCtx context.Context, spec *port.TransferSpec, out *domain.TransferOutcome, rep *port.TransferReport, err error) {
	switch {
	case err == nil && rep.NotModified:
		out.Status = domain.OutcomeNotModified
	case err == nil:
		out.Status = domain.OutcomeCompleted
	case parent.Err() != nil || errors.Is(err, domain.ErrInterrupted):
		out.Status = domain.OutcomeInterrupted
		if !errors.Is(err, domain.ErrInterrupted) {
			err = fmt.Errorf("%w: %w", domain.ErrInterrupted, err)
		}
		out.Err = err
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded),
		errors.Is(err, ratelimiter.ErrWouldMissDeadline):
		out.Status = domain.OutcomeTransient
		out.Err = domain.NewTransientError(spec.URL, out.Code, out.StatusText,
			fmt.Errorf("attempt timed out after %s: %w", s.timeout, err))
	case domain.IsTransient(err):
		out.Status = domain.OutcomeTransient
		out.Err = err
	default:
		out.Status = domain.OutcomeFatal
		var te *domain.TransferError
		if !errors.As(err, &te) && !errors.Is(err, domain.ErrProtocolNotAllowed) {
			err = domain.NewFatalError(spec.URL, out.Code, out.StatusText, err)
		}
		out.Err = err
	}
}

// stagingSink is the write callback handed to the transport. It checks the
// caller's context before every chunk.
type stagingSink struct {
	parent   context.Context
	staging  port.StagingWriter
	throttle io.Writer
	report   *ratelimiter.Progress
	offset   int64
	url      string
	logger   *zap.Logger
}

func (s *stagingSink) Write(p []byte) (int, error) {
	if err := s.parent.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrInterrupted, err)
	}
	n, err := s.throttle.Write(p)
	if err != nil {
		return n, err
	}

	staged := s.staging.Size()
	if rate, ok := s.report.Observe(staged); ok {
		s.logger.Info("transfer progress",
			zap.String("url", s.url),
			zap.String("staged", humanize.IBytes(uint64(staged))),
			zap.String("rate", humanize.IBytes(uint64(rate))+"/s"),
			zap.Int64("resumed_from", s.offset))
	}
	return n, nil
}

// Restart discards the staged prefix when the server sends the whole file
func (s *stagingSink) Restart() error {
	s.logger.Info("remote copy changed, restarting from zero",
		zap.String("url", s.url),
		zap.Int64("discarded", s.staging.Size()))
	s.offset = 0
	return s.staging.Truncate()
}
