package transfer

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
)

type ftpOpener struct {
	cfg Config
}

func (o *ftpOpener) fetch(ctx context.Context, u *url.URL, spec *port.TransferSpec, sink port.Sink, rep *port.TransferReport) error {
	implicitTLS := strings.EqualFold(u.Scheme, "ftps")
	addr := u.Host
	if u.Port() == "" {
		port := "21"
		if implicitTLS {
			port = "990"
		}
		addr = net.JoinHostPort(u.Hostname(), port)
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(o.cfg.ConnectTimeout),
	}
	tlsConfig := &tls.Config{
		ServerName:         u.Hostname(),
		InsecureSkipVerify: o.cfg.SkipTLSVerify,
	}
	if implicitTLS {
		opts = append(opts, ftp.DialWithTLS(tlsConfig))
	} else if o.cfg.FTP.ExplicitTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return classify(spec.URL, err)
	}
	defer conn.Quit()

	// Unblock reads when the caller goes away
	stop := context.AfterFunc(ctx, func() { conn.Quit() })
	defer stop()

	user, pass := o.credentials(u)
	if err := conn.Login(user, pass); err != nil {
		return o.fail(ctx, spec.URL, err)
	}

	path := strings.TrimPrefix(u.Path, "/")
	if path == "" {
		return domain.NewFatalError(spec.URL, 0, "", errors.New("no file path in url"))
	}

	// MDTM and SIZE are optional server features
	var mtime time.Time
	if t, err := conn.GetTime(path); err == nil {
		mtime = t
	}
	size := int64(-1)
	if n, err := conn.FileSize(path); err == nil {
		size = n
	}

	offset, done, err := planFromStat(spec, size, mtime, sink, rep)
	if err != nil || done {
		return err
	}

	r, err := conn.RetrFrom(path, uint64(offset))
	if err != nil {
		return o.fail(ctx, spec.URL, err)
	}
	if err := copyTo(spec.URL, sink, r); err != nil {
		r.Close()
		return o.fail(ctx, spec.URL, err)
	}
	if err := r.Close(); err != nil {
		return o.fail(ctx, spec.URL, err)
	}

	rep.StatusCode = ftp.StatusClosingDataConnection
	rep.StatusText = ftp.StatusText(ftp.StatusClosingDataConnection)
	return nil
}

// fail prefers the caller's cancellation over the error a closed
// connection produces
func (o *ftpOpener) fail(ctx context.Context, rawURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		var te *domain.TransferError
		if !errors.As(err, &te) {
			return classify(rawURL, ctxErr)
		}
	}
	return classify(rawURL, err)
}

func (o *ftpOpener) credentials(u *url.URL) (string, string) {
	if u.User != nil {
		pass, _ := u.User.Password()
		return u.User.Username(), pass
	}
	if o.cfg.FTP.Username != "" {
		return o.cfg.FTP.Username, o.cfg.FTP.Password
	}
	return "anonymous", "anonymous"
}
