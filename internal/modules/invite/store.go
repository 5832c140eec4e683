// README: Invite code stores; consumption is a single conditional write in both.
package invite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier/internal/types"
)

type Store interface {
	Create(ctx context.Context, c *Code) error
	GetByCode(ctx context.Context, code string) (*Code, error)
	// Consume marks the code used by userID only if it is active and unused.
	Consume(ctx context.Context, code string, userID types.ID, at time.Time) (bool, error)
	// Release undoes a Consume by the same user.
	Release(ctx context.Context, code string, userID types.ID) (bool, error)
	Deactivate(ctx context.Context, id types.ID) (bool, error)
	List(ctx context.Context) ([]*Code, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *Code) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_invite_codes (id, code, is_active, created_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(c.ID), c.Code, c.IsActive, string(c.CreatedBy), c.Notes, c.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrCodeExists
	}
	return err
}

const codeColumns = `id, code, is_active, created_by, notes, created_at, used_at, used_by`

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*Code, error) {
	c, err := scanCode(s.db.QueryRow(ctx, `SELECT `+codeColumns+` FROM driver_invite_codes WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) Consume(ctx context.Context, code string, userID types.ID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_invite_codes
		SET used_at = $1, used_by = $2
		WHERE code = $3 AND is_active AND used_at IS NULL`,
		at, string(userID), code,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Release(ctx context.Context, code string, userID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_invite_codes
		SET used_at = NULL, used_by = NULL
		WHERE code = $1 AND used_by = $2`,
		code, string(userID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE driver_invite_codes SET is_active = FALSE WHERE id = $1`, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Code, error) {
	rows, err := s.db.Query(ctx, `SELECT `+codeColumns+` FROM driver_invite_codes ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, fmt.Errorf("list invite codes: %w", err)
	}
	defer rows.Close()
	out := make([]*Code, 0)
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCode(row pgx.Row) (*Code, error) {
	var (
		c      Code
		usedBy *string
	)
	if err := row.Scan(&c.ID, &c.Code, &c.IsActive, &c.CreatedBy, &c.Notes, &c.CreatedAt, &c.UsedAt, &usedBy); err != nil {
		return nil, err
	}
	if usedBy != nil {
		id := types.ID(*usedBy)
		c.UsedBy = &id
	}
	return &c, nil
}

type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]*Code
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]*Code)}
}

func (s *MemoryStore) Create(_ context.Context, c *Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[c.Code]; ok {
		return ErrCodeExists
	}
	cp := *c
	s.codes[c.Code] = &cp
	return nil
}

func (s *MemoryStore) GetByCode(_ context.Context, code string) (*Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCode(c), nil
}

func (s *MemoryStore) Consume(_ context.Context, code string, userID types.ID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok || !c.Usable() {
		return false, nil
	}
	u := userID
	c.UsedAt, c.UsedBy = &at, &u
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, code string, userID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok || c.UsedBy == nil || *c.UsedBy != userID {
		return false, nil
	}
	c.UsedAt, c.UsedBy = nil, nil
	return true, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.ID == id {
			c.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Code, error) {
	s.mu.Lock()
	out := make([]*Code, 0, len(s.codes))
	for _, c := range s.codes {
		out = append(out, cloneCode(c))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func cloneCode(c *Code) *Code {
	cp := *c
	if c.UsedAt != nil {
		t := *c.UsedAt
		cp.UsedAt = &t
	}
	if c.UsedBy != nil {
		u := *c.UsedBy
		cp.UsedBy = &u
	}
	return &cp
}
