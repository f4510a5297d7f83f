// Package verify checks fetched artifacts against the digests and
// signatures their descriptor declares.
package verify

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// Algorithm names a supported digest
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Checksum is a parsed digest declaration
type Checksum struct {
	Algorithm Algorithm
	Hex       string // lower case
}

func (c Checksum) String() string {
	return string(c.Algorithm) + ":" + c.Hex
}

// ParseChecksum accepts "sha256:<hex>", "sha512:<hex>" or bare hex, where
// the length of bare hex selects the algorithm.
func ParseChecksum(s string) (Checksum, bool) {
	s = strings.TrimSpace(s)
	algo := Algorithm("")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		algo = Algorithm(strings.ToLower(s[:i]))
		s = s[i+1:]
	}
	if _, err := hex.DecodeString(s); err != nil {
		return Checksum{}, false
	}

	switch {
	case len(s) == sha256.Size*2 && (algo == "" || algo == SHA256):
		algo = SHA256
	case len(s) == sha512.Size*2 && (algo == "" || algo == SHA512):
		algo = SHA512
	default:
		return Checksum{}, false
	}
	return Checksum{Algorithm: algo, Hex: strings.ToLower(s)}, true
}

func newHash(a Algorithm) hash.Hash {
	if a == SHA512 {
		return sha512.New()
	}
	return sha256.New()
}

// Digest computes the hex digest of data with the given algorithm
func Digest(a Algorithm, data []byte) string {
	h := newHash(a)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Matches reports whether a digest of data is a member of checksums.
// Unparseable entries never match.
func Matches(data []byte, checksums []string) bool {
	computed := make(map[Algorithm]string)
	for _, raw := range checksums {
		c, ok := ParseChecksum(raw)
		if !ok {
			continue
		}
		sum, done := computed[c.Algorithm]
		if !done {
			sum = Digest(c.Algorithm, data)
			computed[c.Algorithm] = sum
		}
		if sum == c.Hex {
			return true
		}
	}
	return false
}

// Options tune Verify
type Options struct {
	// AllowUnverified accepts artifacts when no checksum is declared
	AllowUnverified bool
}

// Verify fails closed: it returns an *errors.IntegrityError unless a digest
// of data is in checksums. An empty set fails unless opts allow it.
func Verify(pkg string, data []byte, checksums []string, opts Options) error {
	if len(checksums) == 0 {
		if opts.AllowUnverified {
			return nil
		}
		return taperrors.NewIntegrityError(pkg, taperrors.ErrNoChecksums)
	}

	if Matches(data, checksums) {
		return nil
	}

	e := taperrors.NewIntegrityError(pkg, taperrors.ErrChecksumMismatch)
	e.Declared = checksums
	e.Computed = []string{Checksum{SHA256, Digest(SHA256, data)}.String()}
	for _, raw := range checksums {
		if c, ok := ParseChecksum(raw); ok && c.Algorithm == SHA512 {
			e.Computed = append(e.Computed, Checksum{SHA512, Digest(SHA512, data)}.String())
			break
		}
	}
	return e
}
