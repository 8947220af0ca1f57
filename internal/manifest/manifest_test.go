package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vertextoedge/safefetch/internal/domain"
)

const sample = `
protocols: https
entries:
  - url: https://example.com/a.bin
    path: a.bin
    size: 10
    digests:
      sha1: 87acec17cd9dcd20a716cc2cf67417b71c8a7016
  - url: sftp://host/data/b.tar
    path: archive/b.tar
    protocols: sftp
    always_keep_part_bytes: 0
`

func TestDecode(t *testing.T) {
	m, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(m.Entries))
	}

	reqs, err := m.Requests(domain.DefaultProtocols)
	if err != nil {
		t.Fatalf("Requests() error = %v", err)
	}

	a, b := reqs[0], reqs[1]
	if a.Size() != 10 || a.Digests["sha1"] == "" {
		t.Errorf("entry 0 = %+v", a)
	}
	if a.Protocols != domain.NewProtocolSet(domain.ProtoHTTPS) {
		t.Errorf("entry 0 protocols = %v, want manifest-wide https", a.Protocols)
	}
	if b.HasSize() {
		t.Error("entry 1 should have no size")
	}
	if b.Protocols != domain.NewProtocolSet(domain.ProtoSFTP) {
		t.Errorf("entry 1 protocols = %v, want sftp", b.Protocols)
	}
	if b.AlwaysKeepPartBytes == nil || *b.AlwaysKeepPartBytes != 0 {
		t.Errorf("entry 1 keep = %v, want explicit 0", b.AlwaysKeepPartBytes)
	}
}

func TestRequests_Fallback(t *testing.T) {
	m, err := Decode(strings.NewReader("entries:\n  - url: http://h/a\n    path: a\n"))
	if err != nil {
		t.Fatal(err)
	}
	reqs, err := m.Requests(domain.AllProtocols)
	if err != nil {
		t.Fatal(err)
	}
	if reqs[0].Protocols != domain.AllProtocols {
		t.Errorf("protocols = %v, want fallback", reqs[0].Protocols)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"no entries", "entries: []\n"},
		{"unknown key", "entries:\n  - url: http://h/a\n    path: a\n    checksum: abc\n"},
		{"bad size", "entries:\n  - url: http://h/a\n    path: a\n    size: big\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.body)); !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("Decode() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestRequests_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing path", "entries:\n  - url: http://h/a\n"},
		{"unknown protocol", "entries:\n  - url: http://h/a\n    path: a\n    protocols: gopher\n"},
		{"negative size", "entries:\n  - url: http://h/a\n    path: a\n    size: -1\n"},
		{"bad shared protocol", "protocols: nntp\nentries:\n  - url: http://h/a\n    path: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if _, err := m.Requests(domain.DefaultProtocols); !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("Requests() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Load() error = %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() succeeded for a missing file")
	}
}
