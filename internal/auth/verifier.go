package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"signalhub/pkg/interfaces"
	"signalhub/pkg/types"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Verifier validates HMAC-signed bearer tokens presented during the
// websocket handshake. The user ID comes from the "sub" claim, with
// "user_id" as a fallback for older token issuers.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token and returns the user ID.
func (v *Verifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if !types.IsValidUserID(userID) {
		return "", ErrInvalidToken
	}

	return userID, nil
}

var _ interfaces.TokenVerifier = (*Verifier)(nil)
