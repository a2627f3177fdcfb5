package auth

import (
	"time"

	"homenotes/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rohanthewiz/serr"
)

const (
	// DefaultTokenTTL is how long issued tokens stay valid (7 days)
	DefaultTokenTTL = 7 * 24 * time.Hour

	// TokenIssuerName identifies tokens minted by this application
	TokenIssuerName = "homenotes"

	// MinSecretLength is the minimum acceptable length for the signing secret
	MinSecretLength = 32
)

// TokenClaims carries the user identity alongside the standard claims.
type TokenClaims struct {
	jwt.RegisteredClaims
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// TokenIssuer signs and verifies HS256 tokens with a shared secret.
// The relay and every companion service of a household share the same secret.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, serr.New("JWT secret must be at least 32 characters")
	}
	return &TokenIssuer{secret: []byte(secret)}, nil
}

// Issue creates a signed token for user valid for ttl.
func (ti *TokenIssuer) Issue(user models.User, ttl time.Duration) (string, error) {
	if user.UID == "" {
		return "", serr.New("cannot issue a token without a uid")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuerName,
			Subject:   user.UID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		UID:   user.UID,
		Name:  user.Name,
		Email: user.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", serr.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// Parse validates a token and returns the user it names.
func (ti *TokenIssuer) Parse(tokenString string) (models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, serr.New("unexpected signing method")
		}
		return ti.secret, nil
	}, jwt.WithIssuer(TokenIssuerName))
	if err != nil {
		return models.User{}, serr.Wrap(err, "failed to parse token")
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.UID == "" {
		return models.User{}, serr.New("invalid token claims")
	}
	return models.User{UID: claims.UID, Name: claims.Name, Email: claims.Email}, nil
}

// Verify adapts Parse to the relay's verifier shape.
func (ti *TokenIssuer) Verify(tokenString string) error {
	_, err := ti.Parse(tokenString)
	return err
}
