package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The default TTL covers a full conduct day so devices do not lose their
// session between the warm-up and the last run wave.
const defaultTokenTTL = 12 * time.Hour

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// TokenIssuerConfig configures the backend JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// backendTokenClaims carries the soldier's display name alongside the
// registered claims so clients can label the session without a directory
// round trip.
type backendTokenClaims struct {
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates the HS256 bearer tokens the API accepts
// once the unit SSO token has been verified.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	issuer := &TokenIssuer{
		signingSecret: cfg.SigningSecret,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		tokenTTL:      cfg.TokenTTL,
		clock:         cfg.Clock,
	}
	if issuer.tokenTTL <= 0 {
		issuer.tokenTTL = defaultTokenTTL
	}
	if issuer.clock == nil {
		issuer.clock = time.Now
	}
	return issuer
}

// IssueBackendToken produces a signed JWT and its expiry (seconds) for the verified subject.
func (i *TokenIssuer) IssueBackendToken(_ context.Context, claims SSOClaims) (string, int64, error) {
	if len(i.signingSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if claims.Subject == "" {
		return "", 0, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, backendTokenClaims{
		DisplayName: claims.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the backend JWT is well formed and returns the subject.
func (i *TokenIssuer) ValidateToken(tokenString string) (string, error) {
	if len(i.signingSecret) == 0 {
		return "", errMissingSigningSecret
	}

	claims := &backendTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return i.signingSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubjectClaim
	}
	return claims.Subject, nil
}
