// Package share issues the signed links handed out for shared envelopes.
// A link names the owner and the envelope; it grants nothing by itself.
package share

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid share token")

// Claims carried by a share token. Subject is the envelope owner.
type Claims struct {
	EnvelopeID string `json:"env"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies share tokens with HS256
type Issuer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

type Option func(*Issuer)

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer. A zero ttl issues tokens that never expire.
func NewIssuer(secret, baseURL string, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a signed token for the owner's envelope.
func (i *Issuer) Issue(ownerID, envelopeID string) (string, error) {
	now := i.now()
	claims := Claims{
		EnvelopeID: envelopeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  ownerID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("error signing share token: %w", err)
	}
	return signed, nil
}

// Link builds the share URL and the QR payload for an envelope. The QR code
// encodes the same URL.
func (i *Issuer) Link(ownerID, envelopeID string) (string, string, error) {
	token, err := i.Issue(ownerID, envelopeID)
	if err != nil {
		return "", "", err
	}
	url := i.baseURL + "/envelope/" + token
	return url, url, nil
}

// Verify checks the signature and expiry and returns the owner and envelope.
func (i *Issuer) Verify(tokenString string) (ownerID, envelopeID string, err error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.EnvelopeID == "" {
		return "", "", fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return claims.Subject, claims.EnvelopeID, nil
}

// TokenFromURL extracts the token part of a share URL, or returns s unchanged
// when it is already a bare token.
func TokenFromURL(s string) string {
	if idx := strings.LastIndex(s, "/envelope/"); idx >= 0 {
		return s[idx+len("/envelope/"):]
	}
	return s
}
