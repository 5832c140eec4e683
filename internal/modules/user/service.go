// README: Registration, invite redemption (customer -> driver) and role lookup for authorization.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"courier/internal/logger"
	"courier/internal/modules/invite"
	"courier/internal/types"
)

const maxNameLength = 120

type InviteRegistry interface {
	Consume(ctx context.Context, code string, userID types.ID) (*invite.Code, error)
	Release(ctx context.Context, code string, userID types.ID) error
}

type Service struct {
	store    Store
	invites  InviteRegistry
	admins   map[types.ID]bool
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store, invites InviteRegistry, adminUIDs []string) *Service {
	admins := make(map[types.ID]bool, len(adminUIDs))
	for _, uid := range adminUIDs {
		if uid = strings.TrimSpace(uid); uid != "" {
			admins[types.ID(uid)] = true
		}
	}
	return &Service{
		store:    store,
		invites:  invites,
		admins:   admins,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

type RegisterCommand struct {
	UID        types.ID
	FullName   string
	Email      string
	Phone      string
	InviteCode string
}

type RegisterResult struct {
	User *User
	// InviteError is set when an invite code was supplied but could not be
	// redeemed; the account still exists as a customer.
	InviteError error
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*RegisterResult, error) {
	if cmd.UID.Empty() {
		return nil, fmt.Errorf("%w: uid required", ErrValidation)
	}
	name := strings.TrimSpace(cmd.FullName)
	if name == "" || len(name) > maxNameLength {
		return nil, fmt.Errorf("%w: full_name required (max %d chars)", ErrValidation, maxNameLength)
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	phone, ok := NormalizePhone(cmd.Phone)
	if !ok {
		return nil, fmt.Errorf("%w: phone must be a Canadian number", ErrValidation)
	}

	role := types.RoleCustomer
	if s.admins[cmd.UID] {
		role = types.RoleAdmin
	}
	u := &User{
		ID:        cmd.UID,
		Role:      role,
		FullName:  name,
		Email:     email,
		Phone:     phone,
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	logger.Log.Info("user registered", zap.String("user_id", u.ID.String()), zap.String("role", string(u.Role)))

	res := &RegisterResult{User: u}
	if strings.TrimSpace(cmd.InviteCode) != "" && role == types.RoleCustomer {
		elevated, err := s.RedeemInvite(ctx, u.ID, cmd.InviteCode)
		if err != nil {
			res.InviteError = err
		} else {
			res.User = elevated
		}
	}
	return res, nil
}

// RedeemInvite consumes the code and promotes the customer to driver. If the
// promotion fails the code is released so it is not burned.
func (s *Service) RedeemInvite(ctx context.Context, id types.ID, code string) (*User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != types.RoleCustomer {
		return nil, ErrNotCustomer
	}
	if _, err := s.invites.Consume(ctx, code, id); err != nil {
		return nil, err
	}
	ok, err := s.store.UpdateRole(ctx, id, types.RoleCustomer, types.RoleDriver)
	if err == nil && !ok {
		err = ErrRoleChanged
	}
	if err != nil {
		if relErr := s.invites.Release(ctx, code, id); relErr != nil {
			logger.Log.Error("invite release failed",
				zap.String("user_id", id.String()),
				zap.Error(relErr),
			)
		}
		return nil, fmt.Errorf("promote to driver: %w", err)
	}
	u.Role = types.RoleDriver
	logger.Log.Info("user promoted to driver", zap.String("user_id", id.String()))
	return u, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*User, error) {
	return s.store.Get(ctx, id)
}

// Role reports the stored role of id; found is false for unknown users.
func (s *Service) Role(ctx context.Context, id types.ID) (types.Role, bool, error) {
	u, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return u.Role, true, nil
}
