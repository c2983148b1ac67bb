package utils // package utils provides helpers for token creation, hashing and verification

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/clinicflow/identity-service/internal/model"
)

// MinSecretLength is the shortest HMAC key NewTokenIssuer accepts.
const MinSecretLength = 32

// OpaqueTokenBytes is the amount of CSPRNG output in every refresh or reset token.
const OpaqueTokenBytes = 32

// ErrWeakSecret is returned for signing keys shorter than MinSecretLength.
var ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")

// Claims is the access token payload every downstream service relies on:
// sub = user id, plus email and role next to the registered claims.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// IssuerConfig holds the signing key and the registered claim values.
type IssuerConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// TokenIssuer signs and verifies HS256 access tokens. It is a pure
// transform from a user to a token and never touches storage.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer. now may be nil, in
// which case time.Now is used.
func NewTokenIssuer(cfg IssuerConfig, now func() time.Time) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      now,
	}, nil
}

// TTL returns the configured access token lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue builds and signs an access token for u.
func (i *TokenIssuer) Issue(u *model.User) (AccessToken, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    i.issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Parse verifies the signature, algorithm, issuer, audience and time
// claims of raw and returns its claims.
func (i *TokenIssuer) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	if i.audience != "" {
		opts = append(opts, jwt.WithAudience(i.audience))
	}
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GenerateOpaqueToken returns OpaqueTokenBytes of CSPRNG output encoded as
// unpadded base64url. The value has no structure beyond its randomness.
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the SHA‑256 hex digest of a raw refresh or reset token.
// Only digests are stored, so a leaked row cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DigestsEqual compares two token digests in constant time. Empty digests
// never match.
func DigestsEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
