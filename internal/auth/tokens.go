package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/robby3000/luxicle/internal/apperr"
	"github.com/robby3000/luxicle/internal/models"
)

const keyPrefix = "luxicle:auth:"

func refreshKey(token string) string { return keyPrefix + "refresh:" + token }
func revokedKey(jti string) string   { return keyPrefix + "revoked:" + jti }
func resetKey(token string) string   { return keyPrefix + "reset:" + token }
func confirmKey(token string) string { return keyPrefix + "confirm:" + token }

// Claims are the access token claims. Subject is the user id.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Service) issue(ctx context.Context, u *models.UserProfile) (*Session, error) {
	now := s.now()
	exp := now.Add(s.cfg.AccessTTL)

	claims := Claims{
		Username: u.Username,
		Email:    u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, apperr.NewInternal(err)
	}

	refresh := uuid.NewString()
	if err := s.redis.Set(ctx, refreshKey(refresh), u.ID, s.cfg.RefreshTTL).Err(); err != nil {
		return nil, redisErr(err)
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.cfg.AccessTTL.Seconds()),
		ExpiresAt:    claims.ExpiresAt.Time,
		User:         u,
	}, nil
}

// Authenticate verifies an access token and checks it was not revoked by sign-out.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, apperr.NewUnauthorized("access token is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims,
		func(*jwt.Token) (any, error) { return []byte(s.cfg.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "invalid or expired token", Err: err}
	}

	n, err := s.redis.Exists(ctx, revokedKey(claims.ID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, redisErr(err)
	}
	if n > 0 {
		return nil, apperr.NewUnauthorized("session has been revoked")
	}
	return claims, nil
}
