// README: User stores (PostgreSQL and memory); role changes are conditional writes.
package user

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier/internal/types"
)

type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id types.ID) (*User, error)
	// UpdateRole changes the role only if it is still from.
	UpdateRole(ctx context.Context, id types.ID, from, to types.Role) (bool, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, role, full_name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		string(u.ID), string(u.Role), u.FullName, u.Email, u.Phone, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, role, full_name, email, phone, created_at
		FROM users WHERE id = $1`, string(id),
	).Scan(&u.ID, &u.Role, &u.FullName, &u.Email, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) UpdateRole(ctx context.Context, id types.ID, from, to types.Role) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET role = $1, updated_at = NOW()
		WHERE id = $2 AND role = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type MemoryStore struct {
	mu    sync.RWMutex
	users map[types.ID]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[types.ID]*User)}
}

func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return ErrExists
	}
	for _, other := range s.users {
		if strings.EqualFold(other.Email, u.Email) || other.Phone == u.Phone {
			return ErrExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateRole(_ context.Context, id types.ID, from, to types.Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.Role != from {
		return false, nil
	}
	u.Role = to
	return true, nil
}
