// Package verifier derives and checks argon2id verifiers for key secrets.
//
// The encoded form is the PHC string format, self-describing so that
// verification always replays the parameters the verifier was derived with:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<b64 salt>$<b64 digest>
package verifier

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrMismatch is the normal denial: the secret does not match.
	ErrMismatch = errors.New("verifier mismatch")
	// ErrMalformed means the stored verifier string is unparseable. This is
	// corrupted data, not a bad secret; callers surface it as an internal error.
	ErrMalformed = errors.New("verifier malformed")
)

const (
	hashLen = 32
	saltLen = 16
)

// Params are the argon2id cost parameters used for new verifiers. Stored
// verifiers carry their own parameters and remain checkable if these change.
type Params struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultParams matches the deployment baseline: 3 iterations over 64 MiB,
// single lane.
func DefaultParams() Params {
	return Params{TimeCost: 3, MemoryKiB: 64 * 1024, Parallelism: 1}
}

// Hasher derives and verifies secret verifiers.
type Hasher struct {
	params Params
}

func New(p Params) *Hasher {
	return &Hasher{params: p}
}

// Hash derives a verifier for the secret with a fresh random salt.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	digest := argon2.IDKey([]byte(secret), salt, h.params.TimeCost, h.params.MemoryKiB, h.params.Parallelism, hashLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB, h.params.TimeCost, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify recomputes the digest from the encoded verifier's own parameters and
// compares in constant time. Returns nil on match, ErrMismatch on a wrong
// secret, ErrMalformed if the stored string cannot be parsed.
func (h *Hasher) Verify(secret, encoded string) error {
	salt, digest, p, err := decode(encoded)
	if err != nil {
		return err
	}

	computed := argon2.IDKey([]byte(secret), salt, p.TimeCost, p.MemoryKiB, p.Parallelism, uint32(len(digest)))
	if subtle.ConstantTimeCompare(computed, digest) != 1 {
		return ErrMismatch
	}
	return nil
}

func decode(encoded string) (salt, digest []byte, p Params, err error) {
	parts := strings.Split(encoded, "$")
	// Leading '$' yields an empty first element.
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, nil, Params{}, ErrMalformed
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, Params{}, ErrMalformed
	}

	var m, t uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &par); err != nil {
		return nil, nil, Params{}, ErrMalformed
	}
	if m == 0 || t == 0 || par == 0 {
		return nil, nil, Params{}, ErrMalformed
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, Params{}, ErrMalformed
	}
	digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return nil, nil, Params{}, ErrMalformed
	}

	return salt, digest, Params{TimeCost: t, MemoryKiB: m, Parallelism: par}, nil
}
