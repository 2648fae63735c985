package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"billing_auth/internal/models"
)

// MinSecretLen is the minimum signing secret length in bytes. Anything
// shorter is rejected at startup instead of silently producing weak tokens.
const MinSecretLen = 32

const clockSkew = 2 * time.Minute

var (
	ErrWeakSecret   = errors.New("signing secret is missing or shorter than 32 bytes")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims carried by a bearer token. Subject holds the public account UUID;
// the numeric id travels in UID for internal lookups.
type Claims struct {
	jwt.RegisteredClaims
	UID   int64  `json:"uid"`
	Email string `json:"email"`
}

type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// New builds a token issuer. Issuer and audience are optional; when empty
// they are neither embedded nor enforced.
func New(secret, issuer, audience string, ttl time.Duration) (*Issuer, error) {
	const op = "jwt.New"

	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%s: %w", op, ErrWeakSecret)
	}

	return &Issuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

func (i *Issuer) Issue(account models.Account) (string, time.Time, error) {
	const op = "jwt.Issue"

	now := time.Now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.UUID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:   account.ID,
		Email: account.Email,
	}
	if i.issuer != "" {
		claims.Issuer = i.issuer
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return token, expiresAt, nil
}

// Validate checks the signature and time claims with a small clock-skew
// allowance. Issuer and audience are enforced only when configured, so
// deployments without them still validate their own tokens.
func (i *Issuer) Validate(tokenStr string) (*Claims, error) {
	const op = "jwt.Validate"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	if i.audience != "" {
		opts = append(opts, jwt.WithAudience(i.audience))
	}

	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	}

	if !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	}

	return claims, nil
}
