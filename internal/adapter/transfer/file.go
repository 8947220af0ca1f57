package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
)

// fileOpener copies from the local filesystem
type fileOpener struct{}

func (fileOpener) fetch(ctx context.Context, u *url.URL, spec *port.TransferSpec, sink port.Sink, rep *port.TransferReport) error {
	if u.Host != "" && u.Host != "localhost" {
		return domain.NewFatalError(spec.URL, 0, "", fmt.Errorf("remote host %q not supported for file urls", u.Host))
	}
	path := localPath(u)
	if path == "" {
		return domain.NewFatalError(spec.URL, 0, "", errors.New("no file path in url"))
	}

	f, err := os.Open(path)
	if err != nil {
		return classify(spec.URL, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return classify(spec.URL, err)
	}
	if !info.Mode().IsRegular() {
		return domain.NewFatalError(spec.URL, 0, "", fmt.Errorf("%s is not a regular file", path))
	}

	offset, done, err := planFromStat(spec, info.Size(), info.ModTime(), sink, rep)
	if err != nil || done {
		return err
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return classify(spec.URL, err)
	}
	if err := copyTo(spec.URL, sink, &ctxReader{ctx: ctx, r: f}); err != nil {
		return err
	}
	rep.StatusText = "OK"
	return nil
}

func localPath(u *url.URL) string {
	p := u.Path
	if u.Opaque != "" {
		p = u.Opaque
	}
	// file:///C:/dir/name
	if runtime.GOOS == "windows" && len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(strings.TrimSpace(p))
}

// ctxReader stops a local read loop once the caller is gone
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
