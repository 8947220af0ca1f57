package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/safefetch/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// Interval is how often Start runs a cleanup pass
	Interval time.Duration

	// PartMaxAge is the age after which an untouched staging file is
	// considered abandoned
	PartMaxAge time.Duration

	// HistoryAge is the age after which journal rows are deleted
	HistoryAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:   time.Hour,
		PartMaxAge: 7 * 24 * time.Hour,
		HistoryAge: 30 * 24 * time.Hour,
	}
}

// Report summarizes one cleanup pass
type Report struct {
	PartFiles   int
	JournalRows int64
}

// Service removes abandoned staging files and old journal rows
type Service struct {
	config  *Config
	parts   port.PartCleaner
	journal port.JournalPruner
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. journal may be nil.
func New(cfg *Config, parts port.PartCleaner, journal port.JournalPruner, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.PartMaxAge == 0 {
		cfg.PartMaxAge = 7 * 24 * time.Hour
	}
	if cfg.HistoryAge == 0 {
		cfg.HistoryAge = 30 * 24 * time.Hour
	}

	return &Service{
		config:  cfg,
		parts:   parts,
		journal: journal,
		logger:  logger,
	}
}

// RunOnce runs a single cleanup pass. Both steps run even if one fails.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	var errs []error

	count, err := s.parts.CleanOldPartFiles(s.config.PartMaxAge)
	report.PartFiles = count
	if err != nil {
		s.logger.Error("failed to cleanup old staging files", zap.Error(err))
		errs = append(errs, fmt.Errorf("staging files: %w", err))
	} else if count > 0 {
		s.logger.Info("cleaned up old staging files", zap.Int("count", count))
	}

	if s.journal != nil {
		rows, err := s.journal.DeleteFinishedBefore(ctx, time.Now().Add(-s.config.HistoryAge))
		report.JournalRows = rows
		if err != nil {
			s.logger.Error("failed to prune journal", zap.Error(err))
			errs = append(errs, fmt.Errorf("journal: %w", err))
		} else if rows > 0 {
			s.logger.Info("pruned journal", zap.Int64("rows", rows))
		}
	}

	return report, errors.Join(errs...)
}

// Start runs cleanup passes every Interval until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("part_max_age", s.config.PartMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
