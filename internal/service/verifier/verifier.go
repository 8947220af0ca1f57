package verifier

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/safefetch/internal/domain"
)

const defaultBufferSize = 8 * 1024 * 1024

// Verifier checks a staged file against an expected size and digests
type Verifier struct {
	logger     *zap.Logger
	bufferSize int
}

// New creates a new Verifier
func New(logger *zap.Logger) *Verifier {
	return &Verifier{logger: logger, bufferSize: defaultBufferSize}
}

// Verify checks path against expectedSize (negative means unchecked) and
// digests, which must already be normalized. The size check runs first; if it
// fails no digest is computed. All digests share a single read pass.
// The returned error is only set for I/O failures.
func (v *Verifier) Verify(path string, expectedSize int64, digests map[string]string) (*domain.VerificationResult, error) {
	res := &domain.VerificationResult{}

	if expectedSize >= 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.Size() != expectedSize {
			res.Size = domain.CheckFailed
			res.Failure = &domain.VerificationError{
				Path:      path,
				Criterion: "size",
				Expected:  strconv.FormatInt(expectedSize, 10),
				Actual:    strconv.FormatInt(info.Size(), 10),
			}
			v.logger.Debug("size mismatch",
				zap.String("path", path),
				zap.Int64("expected", expectedSize),
				zap.Int64("actual", info.Size()))
			return res, nil
		}
		res.Size = domain.CheckPassed
		v.logger.Debug("size verified", zap.String("path", path), zap.Int64("size", expectedSize))
	}

	if len(digests) == 0 {
		return res, nil
	}

	names := make([]string, 0, len(digests))
	for name := range digests {
		names = append(names, name)
	}
	sort.Strings(names)

	res.Digests = make(map[string]domain.Check, len(names))
	hashes := make(map[string]hash.Hash, len(names))
	writers := make([]io.Writer, 0, len(names))
	for _, name := range names {
		newHash, ok := algorithms[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedDigest, name)
		}
		h := newHash()
		if len(digests[name]) != h.Size()*2 {
			res.Digests[name] = domain.CheckFailed
			v.fail(res, path, name, digests[name], fmt.Sprintf("<%d hex chars>", h.Size()*2))
			continue
		}
		hashes[name] = h
		writers = append(writers, h)
	}

	if len(writers) > 0 {
		n, err := v.hashFile(path, io.MultiWriter(writers...))
		if err != nil {
			return nil, err
		}
		v.logger.Debug("digests computed",
			zap.String("path", path),
			zap.Strings("algorithms", names),
			zap.String("size", humanize.IBytes(uint64(n))))
	}

	for _, name := range names {
		h, ok := hashes[name]
		if !ok {
			continue
		}
		actual := hex.EncodeToString(h.Sum(nil))
		if actual == digests[name] {
			res.Digests[name] = domain.CheckPassed
			continue
		}
		res.Digests[name] = domain.CheckFailed
		v.fail(res, path, name, digests[name], actual)
	}

	return res, nil
}

func (v *Verifier) hashFile(path string, w io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, v.bufferSize)
	// Hide WriterTo so reads happen in bufferSize chunks
	n, err := io.CopyBuffer(w, struct{ io.Reader }{f}, buf)
	if err != nil {
		return n, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return n, nil
}

func (v *Verifier) fail(res *domain.VerificationResult, path, name, expected, actual string) {
	v.logger.Debug("digest mismatch",
		zap.String("path", path),
		zap.String("algorithm", name),
		zap.String("expected", expected),
		zap.String("actual", actual))
	if res.Failure == nil {
		res.Failure = &domain.VerificationError{Path: path, Criterion: name, Expected: expected, Actual: actual}
	}
}
