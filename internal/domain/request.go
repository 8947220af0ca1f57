package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Request describes one download: where from, where to, and what the result
// must look like. It is immutable once passed to Fetcher.Get.
type Request struct {
	URL     string `validate:"required,url"`
	RelPath string `validate:"required"`

	// ExpectedSize is checked before any digest is computed.
	ExpectedSize *int64 `validate:"omitempty,gte=0"`

	// Digests maps algorithm name to expected hex digest.
	Digests map[string]string `validate:"omitempty,dive,keys,required,endkeys,required,hexadecimal"`

	// AlwaysKeepPartBytes overrides the configured keep threshold for a
	// staging file left behind by a "not modified" reply.
	AlwaysKeepPartBytes *int64 `validate:"omitempty,gte=0"`

	// Protocols restricts the URL scheme. Zero means DefaultProtocols.
	Protocols ProtocolSet
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the request fields.
func (r *Request) Validate() error {
	if err := requestValidator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidRequest, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// AllowedProtocols returns the effective protocol set.
func (r *Request) AllowedProtocols() ProtocolSet {
	if r.Protocols.IsEmpty() {
		return DefaultProtocols
	}
	return r.Protocols
}

// Scheme returns the lowercased URL scheme, or "" if there is none.
func (r *Request) Scheme() string {
	i := strings.Index(r.URL, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(r.URL[:i])
}

// HasSize reports whether an expected size was supplied.
func (r *Request) HasSize() bool {
	return r.ExpectedSize != nil
}

// Size returns the expected size, or -1 when none was supplied.
func (r *Request) Size() int64 {
	if r.ExpectedSize == nil {
		return -1
	}
	return *r.ExpectedSize
}

// Int64 returns a pointer to v, for optional request fields.
func Int64(v int64) *int64 {
	return &v
}
