package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"project-hub-backend/pkg/models"
)

const tokenTypeAccess = "access"

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// JWTService issues and validates HS256 access tokens.
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewJWTService(secretKey string, ttl time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
}

// GenerateAccessToken signs a token for userID acting as role. expiresIn is
// the lifetime in seconds.
func (j *JWTService) GenerateAccessToken(userID string, role models.Role) (string, int64, error) {
	now := j.now()
	claims := &models.TokenClaims{
		UserID: userID,
		Role:   role,
		Type:   tokenTypeAccess,
		Exp:    now.Add(j.ttl).Unix(),
		Iat:    now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	return tokenString, int64(j.ttl / time.Second), nil
}

// ValidateToken checks the signature, algorithm, expiry and type of a token.
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if j.now().Unix() > claims.Exp {
		return nil, ErrTokenExpired
	}
	if claims.Type != tokenTypeAccess || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Refresh exchanges a valid token for a new one with a fresh expiry.
func (j *JWTService) Refresh(tokenString string) (string, int64, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return "", 0, err
	}
	return j.GenerateAccessToken(claims.UserID, claims.Role)
}
