package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor used when none is configured.
const DefaultPasswordCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer inputs are rejected rather
// than silently truncated.
const maxPasswordBytes = 72

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher struct {
	cost int

	// dummy is compared against when a login names an unknown email so the
	// response time does not reveal whether the account exists.
	dummyOnce sync.Once
	dummy     []byte

	compare func(digest, plaintext []byte) error
}

// NewPasswordHasher returns a hasher using the given bcrypt cost, clamped into
// bcrypt's supported range. A zero cost selects DefaultPasswordCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	switch {
	case cost == 0:
		cost = DefaultPasswordCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: cost, compare: bcrypt.CompareHashAndPassword}
}

// Cost returns the bcrypt work factor in use.
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash returns a bcrypt digest of the plaintext password.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(digest), nil
}

// Verify checks plaintext against a stored digest. A wrong password yields
// (false, nil); an error means the digest itself could not be used.
func (h *PasswordHasher) Verify(plaintext, digest string) (bool, error) {
	if len(plaintext) > maxPasswordBytes {
		// Hash never accepted such a password, so it cannot match. The
		// comparison still runs so the reply takes as long as any other.
		h.burn(plaintext)
		return false, nil
	}
	switch {
	case isBcrypt(digest):
		err := h.compare([]byte(digest), []byte(plaintext))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("verifying bcrypt hash: %w", err)
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(plaintext, digest)
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether digest should be replaced on the next
// successful login: it is in a legacy format or uses a different cost.
func (h *PasswordHasher) NeedsRehash(digest string) bool {
	if !isBcrypt(digest) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost != h.cost
}

// burn runs a comparison against a fixed digest and discards the result.
func (h *PasswordHasher) burn(plaintext string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("servicedesk-timing-equaliser"), h.cost)
	})
	if len(plaintext) > maxPasswordBytes {
		plaintext = plaintext[:maxPasswordBytes]
	}
	_ = h.compare(h.dummy, []byte(plaintext))
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

// verifyArgon2id checks a password against a PHC string of the form
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>, as written by earlier releases.
func verifyArgon2id(password, encodedHash string) (bool, error) {
	salt, hash, params, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

// maxArgon2Memory bounds the KiB a stored legacy digest may ask for.
const maxArgon2Memory = 1 << 20

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("%w: invalid PHC layout", ErrUnsupportedHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}

	// argon2.IDKey panics on zero rounds or threads and on an empty key length.
	switch {
	case len(salt) == 0, len(hash) == 0:
		return nil, nil, params, fmt.Errorf("%w: empty salt or hash", ErrUnsupportedHash)
	case params.time < 1, params.threads < 1:
		return nil, nil, params, fmt.Errorf("%w: rounds and parallelism must be positive", ErrUnsupportedHash)
	case params.memory > maxArgon2Memory:
		return nil, nil, params, fmt.Errorf("%w: memory %d KiB exceeds %d", ErrUnsupportedHash, params.memory, maxArgon2Memory)
	}

	return salt, hash, params, nil
}
