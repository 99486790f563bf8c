// Package credential derives and verifies password digests. Digests are
// parameterized PBKDF2-SHA256; the historical iterated-SHA256 scheme remains
// verifiable so rows written by earlier deployments keep authenticating.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"fieldline.dev/internal/obs"
)

const (
	// DefaultIterations is the PBKDF2 cost used when none is configured.
	DefaultIterations = 600000

	saltBytes = 32
	keyBytes  = 32

	digestPrefix = "$pbkdf2-sha256$"

	// legacyIterations is the fixed chain length of the historical scheme.
	// Verification-only; new digests never use it.
	legacyIterations = 6969
)

var ErrWeakIterations = errors.New("credential: iteration count below 1")

// Store hashes and verifies passwords at a configured cost.
type Store struct {
	iterations int
}

// NewStore builds a Store. Iterations must be positive; pass
// DefaultIterations unless a deployment has measured otherwise.
func NewStore(iterations int) (*Store, error) {
	if iterations < 1 {
		return nil, ErrWeakIterations
	}
	return &Store{iterations: iterations}, nil
}

// NewSalt returns a fresh random salt, hex-encoded. Salts are unique per
// principal and stored alongside the digest.
func NewSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("credential: generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash derives a digest from password and salt. The result embeds the scheme
// and iteration count, so Verify does not depend on current configuration.
func (s *Store) Hash(password, salt string) string {
	start := time.Now()
	key := pbkdf2.Key([]byte(password), []byte(salt), s.iterations, keyBytes, sha256.New)
	obs.ObserveHashDuration(time.Since(start).Seconds())
	return fmt.Sprintf("%si=%d$%s", digestPrefix, s.iterations, base64.RawStdEncoding.EncodeToString(key))
}

// Rehash returns a fresh salt together with the digest of password under it.
// Password changes must persist both atomically.
func (s *Store) Rehash(password string) (salt, digest string, err error) {
	salt, err = NewSalt()
	if err != nil {
		return "", "", err
	}
	return salt, s.Hash(password, salt), nil
}

// Verify recomputes the digest and compares in constant time. Malformed
// digests verify as false, never as an error.
func (s *Store) Verify(password, salt, digest string) bool {
	if digest == "" {
		return false
	}
	if strings.HasPrefix(digest, digestPrefix) {
		return verifyPBKDF2(password, salt, digest)
	}
	return verifyLegacy(password, salt, digest)
}

// NeedsRehash reports whether a digest predates the current scheme or cost
// and should be replaced on the next successful login.
func (s *Store) NeedsRehash(digest string) bool {
	iterations, _, ok := parseDigest(digest)
	if !ok {
		return true
	}
	return iterations != s.iterations
}

func verifyPBKDF2(password, salt, digest string) bool {
	iterations, want, ok := parseDigest(digest)
	if !ok {
		return false
	}
	got := pbkdf2.Key([]byte(password), []byte(salt), iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func parseDigest(digest string) (iterations int, key []byte, ok bool) {
	rest, found := strings.CutPrefix(digest, digestPrefix)
	if !found {
		return 0, nil, false
	}
	params, encoded, found := strings.Cut(rest, "$")
	if !found {
		return 0, nil, false
	}
	raw, found := strings.CutPrefix(params, "i=")
	if !found {
		return 0, nil, false
	}
	iterations, err := strconv.Atoi(raw)
	if err != nil || iterations < 1 {
		return 0, nil, false
	}
	key, err = base64.RawStdEncoding.DecodeString(encoded)
	if err != nil || len(key) == 0 {
		return 0, nil, false
	}
	return iterations, key, true
}

// verifyLegacy recomputes the old chain: hex(sha256) applied repeatedly over
// password+salt.
func verifyLegacy(password, salt, digest string) bool {
	chained := password + salt
	for i := 0; i < legacyIterations; i++ {
		sum := sha256.Sum256([]byte(chained))
		chained = hex.EncodeToString(sum[:])
	}
	return subtle.ConstantTimeCompare([]byte(chained), []byte(digest)) == 1
}
