package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vertextoedge/safefetch/internal/domain"
	"github.com/vertextoedge/safefetch/internal/port"
)

type httpOpener struct {
	transport    http.RoundTripper
	userAgent    string
	maxRedirects int
}

func newHTTPOpener(cfg Config) *httpOpener {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSHandshakeTimeout = cfg.ConnectTimeout
	tr.ResponseHeaderTimeout = cfg.ConnectTimeout
	// Keep byte offsets exact; a transparently decompressed body would not match Range
	tr.DisableCompression = true
	if cfg.SkipTLSVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &httpOpener{
		transport:    tr,
		userAgent:    cfg.UserAgent,
		maxRedirects: cfg.MaxRedirects,
	}
}

func (o *httpOpener) client(rawURL string, allowed domain.ProtocolSet) *http.Client {
	return &http.Client{
		Transport: o.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > o.maxRedirects {
				return domain.NewFatalError(rawURL, 0, "", fmt.Errorf("stopped after %d redirects", o.maxRedirects))
			}
			scheme := strings.ToLower(req.URL.Scheme)
			if !allowed.Allows(scheme) {
				return &domain.ProtocolError{URL: req.URL.String(), Scheme: scheme}
			}
			return nil
		},
	}
}

func (o *httpOpener) fetch(ctx context.Context, u *url.URL, spec *port.TransferSpec, sink port.Sink, rep *port.TransferReport) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.NewFatalError(spec.URL, 0, "", err)
	}
	req.Header.Set("User-Agent", o.userAgent)
	if spec.ResumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", spec.ResumeFrom))
		if !spec.IfRange.IsZero() {
			req.Header.Set("If-Range", spec.IfRange.UTC().Format(http.TimeFormat))
		}
	}
	if !spec.IfModifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", spec.IfModifiedSince.UTC().Format(http.TimeFormat))
	}

	allowed := spec.Protocols
	if allowed.IsEmpty() {
		allowed = domain.DefaultProtocols
	}
	resp, err := o.client(spec.URL, allowed).Do(req)
	if err != nil {
		return classify(spec.URL, err)
	}
	defer resp.Body.Close()

	rep.StatusCode = resp.StatusCode
	rep.StatusText = http.StatusText(resp.StatusCode)
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			rep.RemoteModTime = t
		}
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		rep.NotModified = true
		return nil

	case http.StatusOK:
		if spec.ResumeFrom > 0 {
			// Range ignored or If-Range failed: full body follows
			if err := sink.Restart(); err != nil {
				return err
			}
		}

	case http.StatusPartialContent:
		start, _, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != spec.ResumeFrom {
			return domain.NewFatalError(spec.URL, resp.StatusCode, rep.StatusText,
				fmt.Errorf("unexpected Content-Range %q for offset %d", resp.Header.Get("Content-Range"), spec.ResumeFrom))
		}

	case http.StatusRequestedRangeNotSatisfiable:
		if spec.ResumeFrom == 0 {
			return classifyStatus(spec.URL, resp.StatusCode, rep.StatusText)
		}
		_, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok && total >= 0 && total < spec.ResumeFrom {
			// Remote copy shrank; start over on the next attempt
			if err := sink.Restart(); err != nil {
				return err
			}
			return domain.NewTransientError(spec.URL, resp.StatusCode, rep.StatusText,
				fmt.Errorf("remote size %d below staged %d", total, spec.ResumeFrom))
		}
		// Staged prefix already holds the whole resource
		return nil

	default:
		return classifyStatus(spec.URL, resp.StatusCode, rep.StatusText)
	}

	return copyTo(spec.URL, sink, resp.Body)
}

// parseContentRange parses "bytes 5-9/10" and "bytes */10".
// A missing start or total is reported as -1.
func parseContentRange(h string) (start, total int64, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(h), "bytes ")
	if !found {
		return 0, 0, false
	}
	rng, size, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}

	total = -1
	if size != "*" {
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		total = n
	}

	start = -1
	if rng != "*" {
		first, _, found := strings.Cut(rng, "-")
		if !found {
			return 0, 0, false
		}
		n, err := strconv.ParseInt(first, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		start = n
	}
	return start, total, true
}

