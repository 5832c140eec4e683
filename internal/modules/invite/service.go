// README: Invite code registry; validate, consume (first write wins), release, admin create/deactivate/list.
package invite

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"courier/internal/logger"
	"courier/internal/types"
)

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

// Validate reports whether the code is active and unused. Malformed or unknown codes are simply invalid.
func (s *Service) Validate(ctx context.Context, raw string) (bool, error) {
	code, err := Normalize(raw)
	if err != nil {
		return false, nil
	}
	c, err := s.store.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.Usable(), nil
}

// Consume marks the code used by userID. Of two concurrent consumers exactly
// one succeeds; the other gets ErrAlreadyUsed.
func (s *Service) Consume(ctx context.Context, raw string, userID types.ID) (*Code, error) {
	code, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	if userID.Empty() {
		return nil, ErrValidation
	}
	ok, err := s.store.Consume(ctx, code, userID, s.now())
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		switch {
		case c.UsedAt != nil:
			return nil, ErrAlreadyUsed
		case !c.IsActive:
			return nil, ErrCodeInactive
		}
		return nil, ErrAlreadyUsed
	}
	logger.Log.Info("invite code consumed", zap.String("code_id", c.ID.String()), zap.String("user_id", userID.String()))
	return c, nil
}

// Release returns a consumed code to the pool. It only undoes a consumption
// by the same user and exists for failed role elevations.
func (s *Service) Release(ctx context.Context, raw string, userID types.ID) error {
	code, err := Normalize(raw)
	if err != nil {
		return err
	}
	ok, err := s.store.Release(ctx, code, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	logger.Log.Warn("invite code released", zap.String("code", code), zap.String("user_id", userID.String()))
	return nil
}

func (s *Service) Create(ctx context.Context, raw string, createdBy types.ID, notes string) (*Code, error) {
	code, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	c := &Code{
		ID:        types.NewID(),
		Code:      code,
		IsActive:  true,
		CreatedBy: createdBy,
		Notes:     strings.TrimSpace(notes),
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Deactivate(ctx context.Context, id types.ID) error {
	ok, err := s.store.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]*Code, error) {
	return s.store.List(ctx)
}
