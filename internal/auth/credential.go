// Package auth owns the host's short-lived shared secret: issuing it, expiring
// it and checking candidates sent by the companion.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	apperrors "github.com/sideassist/sideassist/internal/errors"
)

// CredentialLength is the number of digits in a password.
const CredentialLength = 5

// Common errors for credential checks.
var (
	// ErrNoCredential is returned when no credential has been issued.
	ErrNoCredential = errors.New("no credential issued")

	// ErrCredentialExpired is returned when the credential exists but has expired.
	ErrCredentialExpired = errors.New("credential has expired")

	// ErrCredentialMismatch is returned when the candidate does not match.
	ErrCredentialMismatch = errors.New("credential does not match")
)

// Credential is a short-lived numeric password.
type Credential struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining returns the time left before expiry, never negative.
func (c Credential) Remaining(now time.Time) time.Duration {
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// CredentialConfig holds configuration for the credential manager.
type CredentialConfig struct {
	// Expiry is how long an issued credential remains valid.
	// Default: 5 minutes.
	Expiry time.Duration

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time

	// Generate produces a new credential value. Useful for testing.
	// Default: a crypto/rand 5-digit code.
	Generate func() (string, error)
}

// CredentialManager holds at most one live credential. Expiry is evaluated
// lazily on every read under the same mutex, so two reads at the same
// instant always agree.
type CredentialManager struct {
	mu sync.Mutex

	config CredentialConfig

	// current is the most recently issued credential, possibly expired.
	current *Credential
}

// NewCredentialManager creates a credential manager with the given config.
func NewCredentialManager(config CredentialConfig) *CredentialManager {
	if config.Expiry == 0 {
		config.Expiry = 5 * time.Minute
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	if config.Generate == nil {
		config.Generate = func() (string, error) {
			return generateRandomCode(CredentialLength)
		}
	}
	return &CredentialManager{config: config}
}

// Issue creates a new credential, replacing any previous one. The previous
// value stops verifying immediately, even before its own expiry.
func (m *CredentialManager) Issue() (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, err := m.config.Generate()
	if err != nil {
		return Credential{}, fmt.Errorf("generate credential: %w", err)
	}

	now := m.config.TimeNow()
	m.current = &Credential{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.config.Expiry),
	}

	log.Printf("auth: issued credential (expires at %s)", m.current.ExpiresAt.Format(time.RFC3339))

	return *m.current, nil
}

// Current returns the live credential, or false if none was issued or it
// has expired.
func (m *CredentialManager) Current() (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.expiredLocked() {
		return Credential{}, false
	}
	return *m.current, true
}

// Verify reports whether candidate matches the live credential.
// A credential is still valid at exactly ExpiresAt.
func (m *CredentialManager) Verify(candidate string) bool {
	return m.VerifyErr(candidate) == nil
}

// VerifyErr is Verify reporting why a candidate was rejected.
func (m *CredentialManager) VerifyErr(candidate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoCredential
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(m.current.Value)) != 1 {
		return ErrCredentialMismatch
	}
	if m.expiredLocked() {
		return ErrCredentialExpired
	}
	return nil
}

// Authorize checks candidate and returns a coded error suitable for a
// response body. All rejection reasons except expiry collapse to
// auth.unauthorized so the response does not reveal whether a credential exists.
func (m *CredentialManager) Authorize(candidate string) error {
	err := m.VerifyErr(candidate)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCredentialExpired):
		log.Printf("auth: rejected expired credential")
		return apperrors.New(apperrors.CodeAuthExpired, "password has expired")
	default:
		log.Printf("auth: rejected credential: %v", err)
		return apperrors.Unauthorized()
	}
}

// Expiry returns the configured credential lifetime.
func (m *CredentialManager) Expiry() time.Duration {
	return m.config.Expiry
}

// expiredLocked must be called with m.mu held and m.current non-nil.
func (m *CredentialManager) expiredLocked() bool {
	return m.config.TimeNow().After(m.current.ExpiresAt)
}

// generateRandomCode generates a random numeric code of the given length.
// Uses crypto/rand for security.
func generateRandomCode(length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)

	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[n.Int64()]
	}

	return string(code), nil
}
