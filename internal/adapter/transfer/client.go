package transfer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
)

// DefaultUserAgent is sent on HTTP requests unless configured otherwise
const DefaultUserAgent = "safefetch"

const chunkSize = 64 * 1024

// Config configures the protocol openers
type Config struct {
	UserAgent      string
	MaxRedirects   int
	ConnectTimeout time.Duration
	SkipTLSVerify  bool
	FTP            FTPConfig
	SFTP           SFTPConfig
	S3             S3Config
}

// FTPConfig holds FTP(S) settings. URL credentials take precedence.
type FTPConfig struct {
	Username    string
	Password    string
	ExplicitTLS bool
}

// SFTPConfig holds SFTP settings. URL credentials take precedence.
type SFTPConfig struct {
	Username              string
	Password              string
	PrivateKeyPath        string
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
}

// S3Config holds S3 settings
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// opener fetches one URL scheme
type opener interface {
	fetch(ctx context.Context, u *url.URL, spec *port.TransferSpec, sink port.Sink, rep *port.TransferReport) error
}

// Client dispatches transfers to a protocol opener by URL scheme
type Client struct {
	cfg     Config
	logger  *zap.Logger
	openers map[string]opener
}

// Ensure Client implements port.Transport
var _ port.Transport = (*Client)(nil)

// New creates a new transfer client with every supported protocol registered
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	httpOp := newHTTPOpener(cfg)
	ftpOp := &ftpOpener{cfg: cfg}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		openers: map[string]opener{
			"http":  httpOp,
			"https": httpOp,
			"ftp":   ftpOp,
			"ftps":  ftpOp,
			"sftp":  &sftpOpener{cfg: cfg},
			"file":  fileOpener{},
			"s3":    newS3Opener(cfg.S3),
		},
	}
	return c
}

// Perform runs one transfer of spec.URL into sink
func (c *Client) Perform(ctx context.Context, spec *port.TransferSpec, sink port.Sink) (*port.TransferReport, error) {
	rep := &port.TransferReport{StartOffset: spec.ResumeFrom}

	u, err := url.Parse(spec.URL)
	if err != nil {
		return rep, domain.NewFatalError(spec.URL, 0, "", fmt.Errorf("invalid url: %w", err))
	}
	scheme := strings.ToLower(u.Scheme)

	allowed := spec.Protocols
	if allowed.IsEmpty() {
		allowed = domain.DefaultProtocols
	}
	op, ok := c.openers[scheme]
	if !ok || !allowed.Allows(scheme) {
		return rep, &domain.ProtocolError{URL: spec.URL, Scheme: scheme}
	}

	c.logger.Debug("transfer starting",
		zap.String("url", spec.URL),
		zap.Int64("resume_from", spec.ResumeFrom),
		zap.Time("if_modified_since", spec.IfModifiedSince),
		zap.Time("if_range", spec.IfRange))

	start := time.Now()
	err = op.fetch(ctx, u, spec, &countingSink{sink: sink, rep: rep}, rep)
	rep.Elapsed = time.Since(start)
	return rep, err
}

// countingSink keeps the report's byte counters current
type countingSink struct {
	sink port.Sink
	rep  *port.TransferReport
}

func (s *countingSink) Write(p []byte) (int, error) {
	n, err := s.sink.Write(p)
	s.rep.BytesWritten += int64(n)
	return n, err
}

func (s *countingSink) Restart() error {
	if s.rep.BytesWritten > 0 {
		return fmt.Errorf("restart requested after %d bytes were written", s.rep.BytesWritten)
	}
	s.rep.Restarted = true
	s.rep.StartOffset = 0
	return s.sink.Restart()
}
