package services

import (
	"context"
	"errors"
	"strings"

	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/effects"
	"project-hub-backend/pkg/models"
)

// UserService is the project manager's user administration.
type UserService struct {
	*Deps
}

// UserInput creates or updates a user. On update nil fields are unchanged.
type UserInput struct {
	Name       *string `json:"name" validate:"omitnil,notblank,max=100"`
	Email      *string `json:"email" validate:"omitnil,email"`
	Password   *string `json:"password" validate:"omitnil,min=6"`
	Role       *string `json:"role" validate:"omitnil,oneof=customer employee pm"`
	Status     *string `json:"status" validate:"omitnil,oneof=active inactive"`
	Phone      *string `json:"phone" validate:"omitnil,max=50"`
	Company    *string `json:"company" validate:"omitnil,max=200"`
	Department *string `json:"department" validate:"omitnil,max=200"`
}

type newUser struct {
	Name     *string `json:"name" validate:"required"`
	Email    *string `json:"email" validate:"required"`
	Password *string `json:"password" validate:"required"`
	Role     *string `json:"role" validate:"required"`
}

func (in UserInput) apply(u *models.User) error {
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return err
		}
		u.Password = hash
	}
	if in.Role != nil {
		u.Role = models.Role(*in.Role)
	}
	if in.Status != nil {
		u.Status = models.UserStatus(*in.Status)
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Company != nil {
		u.Company = strings.TrimSpace(*in.Company)
	}
	if in.Department != nil {
		u.Department = strings.TrimSpace(*in.Department)
	}
	return nil
}

func duplicateEmail(err error) error {
	if errors.Is(err, database.ErrDuplicate) {
		return FieldInvalid("email", "Email is already registered")
	}
	return storeErr(err, "User not found")
}

func (s *UserService) List(ctx context.Context, actor Actor, filter models.UserFilter) ([]models.User, int, error) {
	if err := requirePM(actor); err != nil {
		return nil, 0, err
	}
	users, total, err := s.Store.ListUsers(ctx, filter)
	if err != nil {
		return nil, 0, storeErr(err, "User not found")
	}
	return users, total, nil
}

// ListByRole lists the active users of one role, for pickers.
func (s *UserService) ListByRole(ctx context.Context, actor Actor, role models.Role) ([]models.User, error) {
	if err := requirePM(actor); err != nil {
		return nil, err
	}
	users, _, err := s.Store.ListUsers(ctx, models.UserFilter{Role: role, Status: models.UserActive})
	if err != nil {
		return nil, storeErr(err, "User not found")
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, actor Actor, id string) (*models.User, error) {
	if err := requirePM(actor); err != nil {
		return nil, err
	}
	user, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "User not found")
	}
	return user, nil
}

func (s *UserService) Create(ctx context.Context, actor Actor, in UserInput) (*models.User, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(newUser{Name: in.Name, Email: in.Email, Password: in.Password, Role: in.Role}, in); err != nil {
		return nil, nil, err
	}

	user := &models.User{Status: models.UserActive}
	if err := in.apply(user); err != nil {
		return nil, nil, err
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		return nil, nil, duplicateEmail(err)
	}

	return user, s.activity(actor, "", "user", user.ID, "create", "Created user "+user.Email), nil
}

func (s *UserService) Update(ctx context.Context, actor Actor, id string, in UserInput) (*models.User, effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, nil, err
	}
	if err := checkStruct(in); err != nil {
		return nil, nil, err
	}

	user, err := s.Store.GetUserByID(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "User not found")
	}

	roleChanged := in.Role != nil && models.Role(*in.Role) != user.Role
	statusChanged := in.Status != nil && models.UserStatus(*in.Status) != user.Status
	if id == actor.ID && (roleChanged || statusChanged) {
		return nil, nil, Forbidden("You cannot change your own role or status")
	}

	if err := in.apply(user); err != nil {
		return nil, nil, err
	}
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return nil, nil, duplicateEmail(err)
	}
	if roleChanged || statusChanged {
		s.invalidateStatus(ctx, user.ID)
	}

	return user, s.activity(actor, "", "user", user.ID, "update", "Updated user "+user.Email), nil
}

func (s *UserService) Delete(ctx context.Context, actor Actor, id string) (effects.List, error) {
	if err := requirePM(actor); err != nil {
		return nil, err
	}
	if id == actor.ID {
		return nil, Validation("You cannot delete your own account")
	}
	if err := s.Store.DeleteUser(ctx, id); err != nil {
		return nil, storeErr(err, "User not found")
	}
	s.invalidateStatus(ctx, id)
	return s.activity(actor, "", "user", id, "delete", "Deleted user"), nil
}
