package vaas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Sha256 is a case-normalized, validated SHA-256 hash in lowercase hex form.
type Sha256 struct {
	value string
}

// ParseSha256 validates s as a 64-character hex SHA-256 digest.
// Case is normalized to lowercase before validation.
func ParseSha256(s string) (Sha256, error) {
	lower := strings.ToLower(s)
	if !sha256Pattern.MatchString(lower) {
		return Sha256{}, newError(ErrInvalidSha256, fmt.Sprintf("invalid SHA256: %q", s), nil)
	}
	return Sha256{value: lower}, nil
}

// HashBytes computes the lowercase-hex SHA-256 digest of b.
func HashBytes(b []byte) Sha256 {
	sum := sha256.Sum256(b)
	return Sha256{value: hex.EncodeToString(sum[:])}
}

// HashFile streams path through SHA-256 without loading it fully into memory.
func HashFile(path string) (Sha256, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sha256{}, newError(ErrIo, fmt.Sprintf("open %q", path), err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Sha256{}, newError(ErrIo, fmt.Sprintf("read %q", path), err)
	}
	return Sha256{value: hex.EncodeToString(h.Sum(nil))}, nil
}

// String returns the lowercase 64-character hex form.
func (s Sha256) String() string {
	return s.value
}

// IsZero reports whether s is the zero value (not a valid hash).
func (s Sha256) IsZero() bool {
	return s.value == ""
}

// Equal reports whether s and other represent the same hash.
func (s Sha256) Equal(other Sha256) bool {
	return s.value == other.value
}
