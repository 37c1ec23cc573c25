package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/models"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgInactive           = "Account is inactive"
)

// AuthService handles login, tokens and self-service profile changes.
type AuthService struct {
	*Deps
}

// HashPassword bcrypt-hashes a plain password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *AuthService) issue(user *models.User) (*models.LoginResponse, error) {
	token, expiresIn, err := s.JWT.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{User: user, Token: token, ExpiresIn: expiresIn}, nil
}

// Login verifies credentials and issues a token. Unknown emails, wrong
// passwords and inactive accounts are all unauthorized.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}

	user, err := s.Store.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, database.ErrNotFound) {
		return nil, Unauthorized(msgInvalidCredentials)
	}
	if err != nil {
		return nil, storeErr(err, "User not found")
	}
	if !checkPassword(user.Password, req.Password) {
		return nil, Unauthorized(msgInvalidCredentials)
	}
	if !user.IsActive() {
		return nil, Unauthorized(msgInactive)
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		s.Logger.Warn("Failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return s.issue(user)
}

// Authenticate validates a bearer token and checks the live status of its
// user. The returned actor carries the user's current role.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, Unauthorized("Access token required")
	}
	claims, err := s.JWT.ValidateToken(token)
	if err != nil {
		return Actor{}, &Error{Kind: KindUnauthorized, Message: "Invalid or expired token", Err: err}
	}

	entry, err := s.Status.Resolve(ctx, claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return Actor{}, Unauthorized("User not found")
	}
	if err != nil {
		return Actor{}, storeErr(err, "User not found")
	}
	if entry.Status != models.UserActive {
		return Actor{}, Unauthorized(msgInactive)
	}

	return Actor{ID: claims.UserID, Role: entry.Role}, nil
}

// Me returns the acting user.
func (s *AuthService) Me(ctx context.Context, actor Actor) (*models.User, error) {
	user, err := s.Store.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, storeErr(err, "User not found")
	}
	return user, nil
}

// ProfileInput is the self-service profile update. Role and Status exist
// only so attempts to set them can be rejected.
type ProfileInput struct {
	Name       *string `json:"name" validate:"omitnil,notblank,max=100"`
	Phone      *string `json:"phone" validate:"omitnil,max=50"`
	Company    *string `json:"company" validate:"omitnil,max=200"`
	Department *string `json:"department" validate:"omitnil,max=200"`
	Role       *string `json:"role" validate:"isdefault"`
	Status     *string `json:"status" validate:"isdefault"`
}

// UpdateProfile changes the acting user's own contact fields.
func (s *AuthService) UpdateProfile(ctx context.Context, actor Actor, in ProfileInput) (*models.User, error) {
	if err := checkStruct(in); err != nil {
		return nil, err
	}

	user, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Company != nil {
		user.Company = strings.TrimSpace(*in.Company)
	}
	if in.Department != nil {
		user.Department = strings.TrimSpace(*in.Department)
	}

	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return nil, storeErr(err, "User not found")
	}
	return user, nil
}

// PasswordInput is the payload of a password change.
type PasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"min=6"`
}

// ChangePassword replaces the acting user's password.
func (s *AuthService) ChangePassword(ctx context.Context, actor Actor, in PasswordInput) error {
	if err := checkStruct(in); err != nil {
		return err
	}

	user, err := s.Me(ctx, actor)
	if err != nil {
		return err
	}
	if !checkPassword(user.Password, in.CurrentPassword) {
		return FieldInvalid("currentPassword", "Current password is incorrect")
	}

	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	user.Password = hash
	return storeErr(s.Store.UpdateUser(ctx, user), "User not found")
}

// Refresh exchanges a valid token for a new one.
func (s *AuthService) Refresh(ctx context.Context, actor Actor, token string) (*models.LoginResponse, error) {
	user, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, err := s.JWT.ValidateToken(token); err != nil {
		return nil, &Error{Kind: KindUnauthorized, Message: "Invalid or expired token", Err: err}
	}
	return s.issue(user)
}

// EnsureDefaultPM creates the bootstrap project manager when the store has
// no users yet.
func (s *AuthService) EnsureDefaultPM(ctx context.Context) error {
	n, err := s.Store.CountUsers(ctx)
	if err != nil || n > 0 {
		return err
	}
	if s.Config.DefaultPMEmail == "" || s.Config.DefaultPMPassword == "" {
		return nil
	}

	hash, err := HashPassword(s.Config.DefaultPMPassword)
	if err != nil {
		return err
	}
	pm := &models.User{
		Name:     "Project Manager",
		Email:    strings.ToLower(s.Config.DefaultPMEmail),
		Password: hash,
		Role:     models.RolePM,
		Status:   models.UserActive,
	}
	if err := s.Store.CreateUser(ctx, pm); err != nil && !errors.Is(err, database.ErrDuplicate) {
		return err
	}
	s.Logger.Info("Created default project manager", zap.String("email", pm.Email))
	return nil
}
