// Package credential implements the opaque bearer-string codec.
//
// A bearer is four dot-separated segments: sk-proj.{project_id}.{key_id}.{secret}.
// The codec owns parsing, formatting, and generation of the random id and
// secret components.
package credential

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const Prefix = "sk-proj"

var ErrMalformed = errors.New("malformed credential")

var (
	projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	keyIDPattern     = regexp.MustCompile(`^k_[A-Za-z0-9_-]{4,32}$`)
	secretPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
)

// Credential is a parsed bearer string.
type Credential struct {
	ProjectID string
	KeyID     string
	Secret    string
}

// Parse splits and validates a bearer string. Any violation returns
// ErrMalformed without detail; callers must not expose which segment failed.
func Parse(bearer string) (Credential, error) {
	parts := strings.SplitN(bearer, ".", 4)
	if len(parts) != 4 || parts[0] != Prefix {
		return Credential{}, ErrMalformed
	}
	c := Credential{ProjectID: parts[1], KeyID: parts[2], Secret: parts[3]}
	if !projectIDPattern.MatchString(c.ProjectID) ||
		!keyIDPattern.MatchString(c.KeyID) ||
		!secretPattern.MatchString(c.Secret) {
		return Credential{}, ErrMalformed
	}
	return c, nil
}

// ValidProjectID reports whether s is a legal project identifier.
func ValidProjectID(s string) bool {
	return projectIDPattern.MatchString(s)
}

// ValidKeyID reports whether s is a legal key identifier.
func ValidKeyID(s string) bool {
	return keyIDPattern.MatchString(s)
}

// Format is the inverse of Parse.
func Format(projectID, keyID, secret string) string {
	return fmt.Sprintf("%s.%s.%s.%s", Prefix, projectID, keyID, secret)
}

func (c Credential) String() string {
	return Format(c.ProjectID, c.KeyID, c.Secret)
}

// base62 for key ids, URL-safe base64 alphabet for secrets. Neither contains
// the '.' separator.
const (
	idAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	secretAlphabet = idAlphabet + "-_"
)

const (
	keyIDRandomLen = 7
	secretLen      = 32
)

// NewKeyID returns "k_" plus 7 random base62 characters from a
// cryptographically secure source.
func NewKeyID() (string, error) {
	s, err := randomString(idAlphabet, keyIDRandomLen)
	if err != nil {
		return "", err
	}
	return "k_" + s, nil
}

// NewSecret returns a 32-character random secret.
func NewSecret() (string, error) {
	return randomString(secretAlphabet, secretLen)
}

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
