// README: Invite code registry tests, including the single-use race.
package invite

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/types"
	"courier/migrations"
)

func TestNormalize(t *testing.T) {
	code, err := Normalize("  drive2026 ")
	require.NoError(t, err)
	assert.Equal(t, "DRIVE2026", code)

	_, err = Normalize(" ab ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLifecycle(t *testing.T) {
	runLifecycle(t, NewService(NewMemoryStore()))
}

func TestLifecycle_Postgres(t *testing.T) {
	runLifecycle(t, NewService(setupPostgresStore(t)))
}

func runLifecycle(t *testing.T, svc *Service) {
	ctx := context.Background()

	c, err := svc.Create(ctx, "welcome", "admin", "spring hiring")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", c.Code)
	assert.True(t, c.IsActive)

	_, err = svc.Create(ctx, "Welcome", "admin", "")
	assert.ErrorIs(t, err, ErrCodeExists)

	ok, err := svc.Validate(ctx, "welcome")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Validate(ctx, "nope-nope")
	require.NoError(t, err)
	assert.False(t, ok)

	used, err := svc.Consume(ctx, "WeLcOmE", "user-1")
	require.NoError(t, err)
	require.NotNil(t, used.UsedBy)
	assert.Equal(t, types.ID("user-1"), *used.UsedBy)
	assert.NotNil(t, used.UsedAt)

	_, err = svc.Consume(ctx, "welcome", "user-2")
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	ok, _ = svc.Validate(ctx, "welcome")
	assert.False(t, ok)

	// Release only undoes the consuming user's claim.
	assert.ErrorIs(t, svc.Release(ctx, "welcome", "user-2"), ErrNotFound)
	require.NoError(t, svc.Release(ctx, "welcome", "user-1"))
	ok, _ = svc.Validate(ctx, "welcome")
	assert.True(t, ok)

	require.NoError(t, svc.Deactivate(ctx, c.ID))
	_, err = svc.Consume(ctx, "welcome", "user-3")
	assert.ErrorIs(t, err, ErrCodeInactive)
	assert.ErrorIs(t, svc.Deactivate(ctx, types.NewID()), ErrNotFound)

	_, err = svc.Consume(ctx, "missing", "user-3")
	assert.ErrorIs(t, err, ErrNotFound)

	codes, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.False(t, codes[0].IsActive)
}

func TestConcurrentConsume(t *testing.T) {
	runConsumeRace(t, NewService(NewMemoryStore()))
}

func TestConcurrentConsume_Postgres(t *testing.T) {
	runConsumeRace(t, NewService(setupPostgresStore(t)))
}

func runConsumeRace(t *testing.T, svc *Service) {
	ctx := context.Background()
	_, err := svc.Create(ctx, "RACE01", "admin", "")
	require.NoError(t, err)

	const attempts = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(uid types.ID) {
			defer wg.Done()
			<-start
			_, err := svc.Consume(ctx, "race01", uid)
			errs <- err
		}(types.ID(fmt.Sprintf("user-%d", i)))
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyUsed)
	}
	assert.Equal(t, 1, success)
}

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("COURIER_TEST_DSN")
	if dsn == "" {
		t.Skip("COURIER_TEST_DSN not set; skipping DB-backed tests")
	}
	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Apply(ctx, db))
	_, err = db.Exec(ctx, "TRUNCATE TABLE driver_invite_codes")
	require.NoError(t, err)
	return NewPostgresStore(db)
}
