package verifier

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"

	"github.com/vertextoedge/safefetch/internal/domain"
)

var algorithms = map[string]func() hash.Hash{
	"md5":        md5.New,
	"sha1":       sha1.New,
	"sha224":     sha256.New224,
	"sha256":     sha256.New,
	"sha384":     sha512.New384,
	"sha512":     sha512.New,
	"sha512_224": sha512.New512_224,
	"sha512_256": sha512.New512_256,
	"sha3_224":   sha3.New224,
	"sha3_256":   sha3.New256,
	"sha3_384":   sha3.New384,
	"sha3_512":   sha3.New512,
	"blake2b":    mustKeyless(blake2b.New512),
	"blake2s":    mustKeyless(blake2s.New256),
}

func mustKeyless(fn func(key []byte) (hash.Hash, error)) func() hash.Hash {
	return func() hash.Hash {
		h, err := fn(nil)
		if err != nil {
			panic(err) // unreachable with a nil key
		}
		return h
	}
}

// Algorithms returns the supported digest names, sorted
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// compactNames maps each name with separators removed ("sha3256") to its
// table key. No two table keys collapse to the same compact form.
var compactNames = func() map[string]string {
	m := make(map[string]string, len(algorithms))
	for name := range algorithms {
		m[strings.ReplaceAll(name, "_", "")] = name
	}
	return m
}()

// Canonical maps a user supplied algorithm name to its supported form.
// Names are case-insensitive, "-" may stand for "_", and separators may be
// added or left out ("SHA-256", "sha3256").
func Canonical(name string) (string, error) {
	c := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if _, ok := algorithms[c]; ok {
		return c, nil
	}
	if full, ok := compactNames[strings.ReplaceAll(c, "_", "")]; ok {
		return full, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedDigest, name)
}

// NormalizeDigests canonicalizes algorithm names and lowercases the
// expected values. Two names for the same algorithm are rejected.
func NormalizeDigests(digests map[string]string) (map[string]string, error) {
	if len(digests) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(digests))
	for name, want := range digests {
		c, err := Canonical(name)
		if err != nil {
			return nil, err
		}
		if _, dup := out[c]; dup {
			return nil, fmt.Errorf("%w: digest %s given twice", domain.ErrInvalidRequest, c)
		}
		out[c] = strings.ToLower(strings.TrimSpace(want))
	}
	return out, nil
}

// DigestSize returns the hex length of the algorithm's output
func DigestSize(name string) int {
	newHash, ok := algorithms[name]
	if !ok {
		return 0
	}
	return newHash().Size() * 2
}
