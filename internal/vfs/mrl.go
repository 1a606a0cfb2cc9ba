// Package vfs provides the scheme-pluggable filesystem abstraction the
// discoverer and parser crawl through: Mrl parsing, the Directory/File/
// Device interfaces, and a FilesystemFactory registry keyed by scheme.
package vfs

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/silverreel/medialib/internal/mlerrors"
)

// Mrl is a parsed Media Resource Locator: scheme://[authority]/percent-encoded-path.
type Mrl struct {
	Scheme    string
	Authority string
	Path      string // percent-decoded
}

// ParseMrl parses raw into an Mrl, percent-decoding the path component.
func ParseMrl(raw string) (Mrl, error) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return Mrl{}, fmt.Errorf("%w: %q missing scheme separator", mlerrors.ErrInvalidMrl, raw)
	}
	scheme := raw[:idx]
	rest := raw[idx+3:]

	authority := ""
	path := rest
	if slash := strings.Index(rest, "/"); slash >= 0 {
		authority = rest[:slash]
		path = rest[slash:]
	} else {
		authority = rest
		path = "/"
	}

	decoded, err := url.PathUnescape(path)
	if err != nil {
		return Mrl{}, fmt.Errorf("%w: %q: %v", mlerrors.ErrInvalidMrl, raw, err)
	}

	return Mrl{Scheme: scheme, Authority: authority, Path: decoded}, nil
}

// String re-encodes the Mrl back to its canonical percent-encoded form.
func (m Mrl) String() string {
	return fmt.Sprintf("%s://%s%s", m.Scheme, m.Authority, encodePath(m.Path))
}

func encodePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
