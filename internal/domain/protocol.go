package domain

import (
	"fmt"
	"strings"
)

// Protocol is a single transfer protocol bit.
type Protocol uint8

const (
	ProtoHTTP Protocol = 1 << iota
	ProtoHTTPS
	ProtoFTP
	ProtoFTPS
	ProtoSFTP
	ProtoFile
	ProtoS3
)

var protocolNames = []struct {
	p    Protocol
	name string
}{
	{ProtoHTTP, "http"},
	{ProtoHTTPS, "https"},
	{ProtoFTP, "ftp"},
	{ProtoFTPS, "ftps"},
	{ProtoSFTP, "sftp"},
	{ProtoFile, "file"},
	{ProtoS3, "s3"},
}

// ProtocolSet is an immutable allow-list of protocols. The zero value allows
// nothing; Request.Normalize replaces it with DefaultProtocols.
type ProtocolSet uint8

// DefaultProtocols are the network protocols. Local files and S3 need to be
// requested explicitly.
const DefaultProtocols = ProtocolSet(ProtoHTTP | ProtoHTTPS | ProtoFTP | ProtoFTPS | ProtoSFTP)

// AllProtocols allows every supported protocol.
const AllProtocols = ProtocolSet(ProtoHTTP | ProtoHTTPS | ProtoFTP | ProtoFTPS | ProtoSFTP | ProtoFile | ProtoS3)

// NewProtocolSet builds a set from individual protocols.
func NewProtocolSet(ps ...Protocol) ProtocolSet {
	var s ProtocolSet
	for _, p := range ps {
		s |= ProtocolSet(p)
	}
	return s
}

// ParseProtocols parses a comma separated list such as "http,https,sftp".
func ParseProtocols(list string) (ProtocolSet, error) {
	var s ProtocolSet
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, ok := ProtocolForScheme(part)
		if !ok {
			return 0, fmt.Errorf("%w: unknown protocol %q", ErrInvalidRequest, part)
		}
		s |= ProtocolSet(p)
	}
	return s, nil
}

// ProtocolForScheme maps a URL scheme to its protocol bit.
func ProtocolForScheme(scheme string) (Protocol, bool) {
	scheme = strings.ToLower(scheme)
	for _, pn := range protocolNames {
		if pn.name == scheme {
			return pn.p, true
		}
	}
	return 0, false
}

// Allows returns true if the scheme belongs to the set.
func (s ProtocolSet) Allows(scheme string) bool {
	p, ok := ProtocolForScheme(scheme)
	return ok && s&ProtocolSet(p) != 0
}

// IsEmpty returns true if no protocol is allowed.
func (s ProtocolSet) IsEmpty() bool {
	return s == 0
}

// Names returns the protocol names in the set.
func (s ProtocolSet) Names() []string {
	var names []string
	for _, pn := range protocolNames {
		if s&ProtocolSet(pn.p) != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

func (s ProtocolSet) String() string {
	return strings.Join(s.Names(), ",")
}
