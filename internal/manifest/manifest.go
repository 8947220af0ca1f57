package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/vertextoedge/safefetch/internal/domain"
)

// Manifest is a batch of downloads read from YAML
type Manifest struct {
	// Protocols applies to entries that do not set their own
	Protocols string  `yaml:"protocols"`
	Entries   []Entry `yaml:"entries"`
}

// Entry is one download of a manifest
type Entry struct {
	URL                 string            `yaml:"url"`
	Path                string            `yaml:"path"`
	Size                *int64            `yaml:"size"`
	Digests             map[string]string `yaml:"digests"`
	AlwaysKeepPartBytes *int64            `yaml:"always_keep_part_bytes"`
	Protocols           string            `yaml:"protocols"`
}

// Decode reads a manifest. Unknown keys are errors.
func Decode(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty manifest", domain.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if len(m.Entries) == 0 {
		return nil, fmt.Errorf("%w: manifest has no entries", domain.ErrInvalidRequest)
	}
	return &m, nil
}

// Load reads the manifest at path; "~" is expanded
func Load(path string) (*Manifest, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Requests converts the entries. fallback is used when neither the entry nor
// the manifest names protocols.
func (m *Manifest) Requests(fallback domain.ProtocolSet) ([]domain.Request, error) {
	shared := fallback
	if m.Protocols != "" {
		p, err := domain.ParseProtocols(m.Protocols)
		if err != nil {
			return nil, err
		}
		shared = p
	}

	reqs := make([]domain.Request, 0, len(m.Entries))
	for i, e := range m.Entries {
		protocols := shared
		if e.Protocols != "" {
			p, err := domain.ParseProtocols(e.Protocols)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			protocols = p
		}

		req := domain.Request{
			URL:                 e.URL,
			RelPath:             e.Path,
			ExpectedSize:        e.Size,
			Digests:             e.Digests,
			AlwaysKeepPartBytes: e.AlwaysKeepPartBytes,
			Protocols:           protocols,
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
