// Package auth issues and verifies invitation tokens used to bind a chat identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type Role string

const (
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

const issuer = "crewshift"

var ErrInvalidInvite = errors.New("invalid invitation")

type InviteClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Invite is a verified invitation.
type Invite struct {
	SubjectID bson.ObjectID
	Role      Role
}

// IssueInvite signs an invitation for a worker or admin record.
func IssueInvite(secret string, subject bson.ObjectID, role Role, ttl time.Duration, now time.Time) (string, error) {
	claims := InviteClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.Hex(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign invite: %w", err)
	}
	return signed, nil
}

// ParseInvite verifies signature, issuer and expiry.
func ParseInvite(secret, raw string) (*Invite, error) {
	claims := &InviteClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return nil, ErrInvalidInvite
	}
	if claims.Role != RoleWorker && claims.Role != RoleAdmin {
		return nil, ErrInvalidInvite
	}
	id, err := bson.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return nil, ErrInvalidInvite
	}
	return &Invite{SubjectID: id, Role: claims.Role}, nil
}
