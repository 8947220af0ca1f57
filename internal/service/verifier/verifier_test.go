package verifier

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/vertextoedge/safefetch/internal/domain"
)

const (
	tenBytes       = "0123456789"
	tenBytesSHA1   = "87acec17cd9dcd20a716cc2cf67417b71c8a7016"
	tenBytesMD5    = "781e5e245d69b566979b86e28d23f2c7"
	tenBytesSHA256 = "84d89877f0d4041efb6bf91a16f0248f2fd573e6af05c19f96bedb9f882f7882"
	tenBytesSHA3   = "8f8eaad16cbf8722a2165b660d47fcfd8496a41c611da758f3bb70f809f01ee3"
	tenBytesB2s    = "410381eb72313f23f9f62478d62ec7635f4166ab5e53a20af5c9e8f7ee445de8"
)

func stage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.bin.part")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVerifier_Verify(t *testing.T) {
	tests := []struct {
		name          string
		size          int64
		digests       map[string]string
		wantPassed    bool
		wantSize      domain.Check
		wantCriterion string
	}{
		{
			name:       "nothing requested",
			size:       -1,
			wantPassed: true,
			wantSize:   domain.NotChecked,
		},
		{
			name:       "size and sha1",
			size:       10,
			digests:    map[string]string{"sha1": tenBytesSHA1},
			wantPassed: true,
			wantSize:   domain.CheckPassed,
		},
		{
			name: "several algorithms in one pass",
			size: -1,
			digests: map[string]string{
				"md5":      tenBytesMD5,
				"sha256":   tenBytesSHA256,
				"sha3_256": tenBytesSHA3,
				"blake2s":  tenBytesB2s,
			},
			wantPassed: true,
		},
		{
			name:          "size mismatch",
			size:          11,
			digests:       map[string]string{"sha1": tenBytesSHA1},
			wantSize:      domain.CheckFailed,
			wantCriterion: "size",
		},
		{
			name:          "digest mismatch",
			size:          10,
			digests:       map[string]string{"sha1": strings.Repeat("0", 40)},
			wantSize:      domain.CheckPassed,
			wantCriterion: "sha1",
		},
		{
			name:          "digest of wrong length",
			size:          -1,
			digests:       map[string]string{"md5": tenBytesMD5, "sha1": tenBytesMD5},
			wantCriterion: "sha1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(zap.NewNop())
			path := stage(t, tenBytes)

			res, err := v.Verify(path, tt.size, tt.digests)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if res.Passed() != tt.wantPassed {
				t.Errorf("Passed() = %v, want %v", res.Passed(), tt.wantPassed)
			}
			if res.Size != tt.wantSize {
				t.Errorf("Size = %v, want %v", res.Size, tt.wantSize)
			}
			if tt.wantCriterion == "" {
				if res.Failure != nil {
					t.Errorf("unexpected failure %v", res.Failure)
				}
				return
			}
			if res.Failure == nil || res.Failure.Criterion != tt.wantCriterion {
				t.Fatalf("Failure = %+v, want criterion %s", res.Failure, tt.wantCriterion)
			}
			if !errors.Is(res.Failure, domain.ErrVerificationFailed) {
				t.Error("failure should unwrap to ErrVerificationFailed")
			}
		})
	}
}

func TestVerifier_SizeMismatchSkipsDigests(t *testing.T) {
	v := New(zap.NewNop())
	path := stage(t, tenBytes)

	res, err := v.Verify(path, 3, map[string]string{"sha1": tenBytesSHA1})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Digests) != 0 {
		t.Errorf("digests computed after size mismatch: %v", res.Digests)
	}
}

func TestVerifier_SmallBuffer(t *testing.T) {
	v := New(zap.NewNop())
	v.bufferSize = 3
	path := stage(t, tenBytes)

	res, err := v.Verify(path, -1, map[string]string{"sha1": tenBytesSHA1, "md5": tenBytesMD5})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed() {
		t.Errorf("chunked hashing failed: %+v", res.Failure)
	}
}

func TestVerifier_MissingFile(t *testing.T) {
	v := New(zap.NewNop())
	if _, err := v.Verify(filepath.Join(t.TempDir(), "nope"), 1, nil); err == nil {
		t.Error("Verify() on a missing file should fail")
	}
}

func TestNormalizeDigests(t *testing.T) {
	got, err := NormalizeDigests(map[string]string{"SHA-256": strings.ToUpper(tenBytesSHA256), "Sha3-256": tenBytesSHA3})
	if err != nil {
		t.Fatal(err)
	}
	if got["sha256"] != tenBytesSHA256 || got["sha3_256"] != tenBytesSHA3 {
		t.Errorf("NormalizeDigests() = %v", got)
	}

	if _, err := NormalizeDigests(map[string]string{"crc32": "00"}); !errors.Is(err, domain.ErrUnsupportedDigest) {
		t.Errorf("unknown algorithm error = %v, want ErrUnsupportedDigest", err)
	}
	if _, err := NormalizeDigests(map[string]string{"sha1": tenBytesSHA1, "SHA1": tenBytesSHA1}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("duplicate algorithm error = %v, want ErrInvalidRequest", err)
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"sha256", "sha256", false},
		{"SHA-256", "sha256", false},
		{"SHA-1", "sha1", false},
		{" Md5 ", "md5", false},
		{"sha3-256", "sha3_256", false},
		{"SHA3_512", "sha3_512", false},
		{"sha3256", "sha3_256", false},
		{"SHA-512/224", "", true},
		{"sha-512-224", "sha512_224", false},
		{"BLAKE2b", "blake2b", false},
		{"crc32", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Canonical(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Canonical(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, domain.ErrUnsupportedDigest) {
				t.Errorf("Canonical(%q) error = %v, want ErrUnsupportedDigest", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompactNamesAreUnique(t *testing.T) {
	if len(compactNames) != len(algorithms) {
		t.Errorf("%d compact names for %d algorithms", len(compactNames), len(algorithms))
	}
}

func TestAlgorithms(t *testing.T) {
	names := Algorithms()
	if len(names) != 14 {
		t.Errorf("Algorithms() has %d entries, want 14", len(names))
	}
	for _, name := range names {
		if DigestSize(name) == 0 {
			t.Errorf("DigestSize(%s) = 0", name)
		}
	}
	if DigestSize("blake2b") != 128 {
		t.Errorf("DigestSize(blake2b) = %d, want 128", DigestSize("blake2b"))
	}
}
