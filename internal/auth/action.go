package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ActionContextKey is the integration context field carrying the action token.
const ActionContextKey = "sig"

const actionAudience = "action"

// SignAction binds an interactive button to the chat user it was sent to.
func SignAction(secret, userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  userID,
		Issuer:   issuer,
		Audience: jwt.ClaimStrings{actionAudience},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign action: %w", err)
	}
	return signed, nil
}

// VerifyAction reports whether raw was issued for userID.
func VerifyAction(secret, userID, raw string) bool {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithAudience(actionAudience))
	return err == nil && token.Valid && userID != "" && claims.Subject == userID
}
