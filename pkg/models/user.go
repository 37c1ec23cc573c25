package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the account type that decides what a user may see and do.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
	RolePM       Role = "pm"
)

// UserStatus tells whether an account may authenticate.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// User represents an account in the system
type User struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Email      string     `json:"email" db:"email"`
	Password   string     `json:"-" db:"password_hash"` // Never return password in JSON
	Role       Role       `json:"role" db:"role"`
	Status     UserStatus `json:"status" db:"status"`
	Phone      string     `json:"phone,omitempty" db:"phone"`
	Company    string     `json:"company,omitempty" db:"company"`
	Department string     `json:"department,omitempty" db:"department"`
	LastLogin  *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserActive
}

// UserFilter narrows user listings. Empty fields match everything.
type UserFilter struct {
	Role   Role
	Status UserStatus
	Search string
	Page   Page
}

// LoginRequest is the payload of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	User      *User  `json:"user"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// TokenClaims represents the JWT token claims
type TokenClaims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Type   string `json:"type"` // "access"
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.UserID, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
