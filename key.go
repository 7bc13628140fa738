package webimg

import (
	"net/url"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Key identifies a cached image. It is derived deterministically from the
// resource URL: the same URL always yields the same key. The digest doubles
// as the in-memory map key and the on-disk filename stem.
type Key struct {
	stem string
	ext  string
}

// KeyForURL derives the cache key for a resource URL. The key's stem is the
// hex-encoded SHA-256 digest of the full URL string; the extension of the URL
// path, when present, is carried so the on-disk filename keeps it.
func KeyForURL(rawURL string) Key {
	k := Key{stem: digest.SHA256.FromString(rawURL).Encoded()}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && !strings.ContainsAny(ext, "/\\") {
			k.ext = ext
		}
	}
	return k
}

// String returns the digest stem. Two keys for the same URL compare equal.
func (k Key) String() string {
	return k.stem
}

// Filename returns the on-disk filename: the digest stem suffixed with the
// original path extension if present.
func (k Key) Filename() string {
	return k.stem + k.ext
}

// legacyFilename returns the extensionless filename used as a
// backward-compatible fallback during disk lookups.
func (k Key) legacyFilename() string {
	return k.stem
}

// IsZero reports whether the key is the zero value.
func (k Key) IsZero() bool {
	return k.stem == ""
}
