package port

import (
	"context"
	"io"
	"time"

	"github.com/vertextoedge/safefetch/internal/domain"
)

// TransferSpec configures one transfer attempt
type TransferSpec struct {
	URL string

	// ResumeFrom asks the server for bytes starting at this offset
	ResumeFrom int64

	// IfModifiedSince makes the transfer conditional on the remote copy
	// being newer. Zero disables the condition.
	IfModifiedSince time.Time

	// IfRange makes a resume conditional on the remote copy being unchanged
	// since this time. A changed copy is sent from offset 0.
	IfRange time.Time

	Protocols domain.ProtocolSet
}

// TransferReport describes how a transfer attempt ended
type TransferReport struct {
	StatusCode    int
	StatusText    string
	NotModified   bool
	Restarted     bool
	RemoteModTime time.Time
	StartOffset   int64
	BytesWritten  int64
	Elapsed       time.Duration
}

// Sink receives transferred bytes. A Write error aborts the transfer.
type Sink interface {
	io.Writer

	// Restart is called before any byte is written when the server does not
	// honour ResumeFrom; the bytes that follow start at offset 0
	Restart() error
}

// Transport performs transfers over the supported protocols
type Transport interface {
	// Perform runs one transfer. On error the report holds the progress so far.
	Perform(ctx context.Context, spec *TransferSpec, sink Sink) (*TransferReport, error)
}

// Journal records finished Get calls
type Journal interface {
	Record(ctx context.Context, entry *domain.JournalEntry) error
}

// JournalPruner removes old journal rows
type JournalPruner interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
