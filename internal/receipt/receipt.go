// Package receipt issues and verifies tamper-evidence receipts for exported
// reports. A receipt records the SHA-256 digest of the report content and a
// signed token binding that digest to the run, so any party can later
// recompute the hash and confirm the report was not altered.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "lexaudit/pkg/domain-errors"
)

const Algorithm = "sha256"

// Receipt is what gets attached to a court filing alongside the report.
type Receipt struct {
	RunID     string    `json:"run_id"`
	Algorithm string    `json:"algorithm"`
	Digest    string    `json:"digest"`
	IssuedAt  time.Time `json:"issued_at"`
	Token     string    `json:"token"`
}

// Verification is the outcome of checking content against a receipt.
type Verification struct {
	Match          bool   `json:"match"`
	ComputedDigest string `json:"computed_digest"`
	TokenValid     bool   `json:"token_valid"`
	RunID          string `json:"run_id,omitempty"`
	Detail         string `json:"detail"`
}

// Digest returns the lower-case hex SHA-256 of the content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

type claims struct {
	RunID  string `json:"run_id"`
	Digest string `json:"digest"`
	jwt.RegisteredClaims
}

// Issuer signs receipts with a shared HMAC key.
type Issuer struct {
	key []byte
}

func NewIssuer(signingKey string) *Issuer {
	return &Issuer{key: []byte(signingKey)}
}

// Issue creates a receipt for the given report content.
func (i *Issuer) Issue(runID string, content []byte, issuedAt time.Time) (*Receipt, error) {
	digest := Digest(content)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RunID:  runID,
		Digest: digest,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "lexaudit",
			Subject:  runID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	})
	signed, err := token.SignedString(i.key)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to sign receipt", err)
	}

	return &Receipt{
		RunID:     runID,
		Algorithm: Algorithm,
		Digest:    digest,
		IssuedAt:  issuedAt,
		Token:     signed,
	}, nil
}

// Verify recomputes the content digest and compares it to the expected hash.
// When a token is supplied its signature and embedded digest are checked too.
// Hash comparison is case-insensitive on the expected value.
func (i *Issuer) Verify(content []byte, expectedDigest, token string) Verification {
	computed := Digest(content)
	expected := strings.ToLower(strings.TrimSpace(expectedDigest))

	v := Verification{ComputedDigest: computed, Match: computed == expected}
	if v.Match {
		v.Detail = "Hash match. This content matches the recorded SHA-256 audit hash."
	} else {
		v.Detail = "Hash mismatch. This content does NOT match the recorded SHA-256 audit hash."
	}

	if token == "" {
		return v
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.key, nil
	})
	if err != nil || !parsed.Valid {
		v.TokenValid = false
		v.Detail += " Receipt token is invalid."
		return v
	}
	if c.Digest != computed {
		v.TokenValid = false
		v.Match = false
		v.Detail += " Receipt token was issued for different content."
		return v
	}

	v.TokenValid = true
	v.RunID = c.RunID
	return v
}
