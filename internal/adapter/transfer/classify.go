package transfer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/textproto"
	"syscall"
	"time"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
)

var transientErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
}

// classify turns a transport error into a domain.TransferError. Errors that
// are already classified, protocol refusals and caller cancellation pass
// through unchanged.
func classify(rawURL string, err error) error {
	if err == nil {
		return nil
	}

	var te *domain.TransferError
	var pe *domain.ProtocolError
	if errors.As(err, &te) || errors.As(err, &pe) || errors.Is(err, context.Canceled) {
		return err
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return domain.NewTransientError(rawURL, tpErr.Code, tpErr.Msg, err)
		}
		return domain.NewFatalError(rawURL, tpErr.Code, tpErr.Msg, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, io.ErrUnexpectedEOF):
		return domain.NewTransientError(rawURL, 0, "", err)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return domain.NewFatalError(rawURL, 0, "", err)
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return domain.NewTransientError(rawURL, 0, "", err)
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return domain.NewFatalError(rawURL, 0, "", err)
		}
		return domain.NewTransientError(rawURL, 0, "", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewTransientError(rawURL, 0, "", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.NewTransientError(rawURL, 0, "", err)
	}

	return domain.NewFatalError(rawURL, 0, "", err)
}

// classifyStatus maps an HTTP-like status code to transient or fatal
func classifyStatus(rawURL string, code int, text string) error {
	if code == 408 || code == 429 || code >= 500 {
		return domain.NewTransientError(rawURL, code, text, nil)
	}
	return domain.NewFatalError(rawURL, code, text, nil)
}

// copyTo streams r into sink in chunks. Sink errors are returned as is;
// read errors are classified.
func copyTo(rawURL string, sink io.Writer, r io.Reader) error {
	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return classify(rawURL, rerr)
		}
	}
}

// newerThan compares modification times at second precision, the
// resolution most servers report
func newerThan(remote, local time.Time) bool {
	return remote.Truncate(time.Second).After(local.Truncate(time.Second))
}

// planFromStat applies the transfer conditions to a source whose size and
// modification time are known up front. A negative size means unknown.
// It returns the offset to read from, and done when nothing needs reading.
func planFromStat(spec *port.TransferSpec, size int64, mtime time.Time, sink port.Sink, rep *port.TransferReport) (int64, bool, error) {
	rep.RemoteModTime = mtime
	if !spec.IfModifiedSince.IsZero() && !mtime.IsZero() && !newerThan(mtime, spec.IfModifiedSince) {
		rep.NotModified = true
		return 0, true, nil
	}

	offset := spec.ResumeFrom
	changed := !spec.IfRange.IsZero() && !mtime.IsZero() && newerThan(mtime, spec.IfRange)
	if offset > 0 && (changed || (size >= 0 && offset > size)) {
		if err := sink.Restart(); err != nil {
			return 0, true, err
		}
		offset = 0
	}

	if offset > 0 && offset == size {
		return offset, true, nil
	}
	return offset, false, nil
}
