package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"call-lab/domain"
	"call-lab/errors"
)

// Claims defines the structure of the data stored inside the JWT.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// IVerifier resolves a bearer token to the identity it was issued for.
// Every admission failure maps to AuthError on the wire, never to a
// detailed reason.
type IVerifier interface {
	Verify(tokenString string) (domain.Identity, error)
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a JWT string.
func (v *JWTVerifier) Verify(tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", errors.ErrAuth)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrAuth, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, fmt.Errorf("%w: invalid claims", errors.ErrAuth)
	}

	return domain.Identity{
		ID:          domain.IdentityID(claims.UserID),
		DisplayName: claims.DisplayName,
	}, nil
}

// GenerateToken creates a signed JWT for a specific user.
func GenerateToken(secret, userID, displayName string, duration time.Duration) (string, error) {
	expirationTime := time.Now().Add(duration)

	claims := &Claims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "call-lab",
		},
	}

	// Create the token using the HS256 algorithm (HMAC with SHA256).
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
