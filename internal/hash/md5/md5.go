// Package md5 derives collection names from crawl URLs.
package md5

import (
	"crypto/md5" //nolint:gosec // collection naming, not a security boundary
	"encoding/hex"
)

// Hasher implements crawler.Hasher using MD5 so collections stay compatible
// with names produced by earlier workers.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data) //nolint:gosec // see package doc
	return hex.EncodeToString(sum[:]), nil
}

// Collection returns the collection name for rawURL.
func (h *Hasher) Collection(rawURL string) string {
	digest, _ := h.Hash([]byte(rawURL))
	return digest
}
