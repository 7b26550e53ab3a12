package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthenticatedUser is the user object embedded in token claims by the
// issuing service. Only the id is read here; the remaining fields ride along
// so signature verification covers the claim set the issuer signed.
type AuthenticatedUser struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Pbkdf2Salt string    `json:"pbkdf2_salt"`
	CreatedAt  string    `json:"created_at"`
}

// Claims is the full claim set of an identity token.
type Claims struct {
	User AuthenticatedUser `json:"user"`
	jwt.RegisteredClaims
}

// Verifier validates HS256-signed identity tokens against a shared secret.
// Verification is one deterministic check per call: signature plus expiry.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token string, returning the identity it was
// issued for. Any failure kind collapses to an error the caller treats as
// "drop the frame"; no detail ever reaches the peer.
func (v *Verifier) Verify(token string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// FUNCTIONAL DISCOVERY: Signing-method check prevents alg
		// confusion; only HMAC tokens are accepted against this secret.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, fmt.Errorf("token validation: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	if claims.User.ID == uuid.Nil {
		return uuid.Nil, ErrMissingIdentity
	}

	return claims.User.ID, nil
}
