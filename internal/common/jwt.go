package common

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Claims is what the session layer signs into access tokens.
type Claims struct {
	UserID string   `json:"sub_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenParser verifies access tokens issued by the session layer.
type TokenParser struct {
	secret []byte
}

func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// GenerateToken is used by tests and local tooling; real tokens come from the session layer.
func (p *TokenParser) GenerateToken(userID primitive.ObjectID, roles []Role, ttl time.Duration) (string, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	claims := &Claims{
		UserID: userID.Hex(),
		Roles:  names,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "collabhub",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

func (p *TokenParser) ParseToken(tokenString string) (Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil {
		return Caller{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Caller{}, errors.New("invalid token")
	}

	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return Caller{}, errors.New("invalid subject in token")
	}
	caller := Caller{UserID: id}
	for _, r := range claims.Roles {
		caller.Roles = append(caller.Roles, Role(r))
	}
	return caller, nil
}
