package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"optica-backend/internal/identity"
	"optica-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

type JWTCustomClaims struct {
	UserID   uint     `json:"user_id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	BranchID *uint    `json:"branch_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
	issuer string
}

func NewTokenIssuer(secret string, expiry time.Duration, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), expiry: expiry, issuer: issuer}
}

// GenerateToken issues a token for user. Roles must be loaded.
func (ti *TokenIssuer) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &JWTCustomClaims{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Roles:    user.RoleNames(),
		BranchID: user.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    ti.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

func (ti *TokenIssuer) ParseToken(tokenStr string) (*JWTCustomClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if ti.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTCustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func (c *JWTCustomClaims) Identity() *identity.Identity {
	return &identity.Identity{
		UserID:   c.UserID,
		Name:     c.Name,
		Email:    c.Email,
		Roles:    c.Roles,
		BranchID: c.BranchID,
	}
}

// IdentityFromUser builds the request identity from a stored user. Roles must be loaded.
func IdentityFromUser(u *models.User) *identity.Identity {
	return &identity.Identity{
		UserID:   u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Roles:    u.RoleNames(),
		BranchID: u.BranchID,
	}
}
