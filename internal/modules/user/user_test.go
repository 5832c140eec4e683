package user

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/modules/invite"
	"courier/internal/types"
	"courier/migrations"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"(416) 555-0199", "+14165550199", true},
		{"+1 604 555 0100", "+16045550100", true},
		{"1-902-555-0123", "+19025550123", true},
		{"4165550199", "+14165550199", true},
		{"212 555 0100", "", false},
		{"416 155 0100", "", false},
		{"416555019", "", false},
		{"416-555-01x9", "", false},
		{"+44 20 7946 0958", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizePhone(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCaphoneValidatorTag(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterValidators(v))

	type req struct {
		Phone string `validate:"required,caphone"`
	}
	assert.NoError(t, v.Struct(req{Phone: "416-555-0199"}))
	assert.Error(t, v.Struct(req{Phone: "212-555-0100"}))
}

type fixture struct {
	svc     *Service
	store   *MemoryStore
	invites *invite.Service
}

func newFixture(t *testing.T, admins ...string) fixture {
	t.Helper()
	store := NewMemoryStore()
	invites := invite.NewService(invite.NewMemoryStore())
	return fixture{svc: NewService(store, invites, admins), store: store, invites: invites}
}

func register(t *testing.T, svc *Service, uid string, n int, code string) *RegisterResult {
	t.Helper()
	res, err := svc.Register(context.Background(), RegisterCommand{
		UID:        types.ID(uid),
		FullName:   "User " + uid,
		Email:      fmt.Sprintf("%s@example.ca", uid),
		Phone:      fmt.Sprintf("416555%04d", n),
		InviteCode: code,
	})
	require.NoError(t, err)
	return res
}

func TestRegisterCustomer(t *testing.T) {
	f := newFixture(t)
	res := register(t, f.svc, "u1", 1, "")
	assert.Equal(t, types.RoleCustomer, res.User.Role)
	assert.Equal(t, "+14165550001", res.User.Phone)
	assert.Nil(t, res.InviteError)

	role, found, err := f.svc.Role(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, types.RoleCustomer, role)

	_, found, err = f.svc.Role(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := RegisterCommand{UID: "u1", FullName: "Ada", Email: "ada@example.ca", Phone: "416-555-0100"}

	bad := []func(c *RegisterCommand){
		func(c *RegisterCommand) { c.UID = "" },
		func(c *RegisterCommand) { c.FullName = "   " },
		func(c *RegisterCommand) { c.Email = "not-an-email" },
		func(c *RegisterCommand) { c.Phone = "555-0100" },
	}
	for i, mutate := range bad {
		cmd := base
		mutate(&cmd)
		_, err := f.svc.Register(ctx, cmd)
		assert.ErrorIs(t, err, ErrValidation, "case %d", i)
	}
}

func TestRegisterDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	register(t, f.svc, "u1", 1, "")

	_, err := f.svc.Register(ctx, RegisterCommand{UID: "u1", FullName: "Again", Email: "x@example.ca", Phone: "4165550002"})
	assert.ErrorIs(t, err, ErrExists)
	_, err = f.svc.Register(ctx, RegisterCommand{UID: "u2", FullName: "Dup Email", Email: "U1@example.ca", Phone: "4165550003"})
	assert.ErrorIs(t, err, ErrExists)
	_, err = f.svc.Register(ctx, RegisterCommand{UID: "u3", FullName: "Dup Phone", Email: "u3@example.ca", Phone: "+1 416 555 0001"})
	assert.ErrorIs(t, err, ErrExists)
}

func TestBootstrapAdmin(t *testing.T) {
	f := newFixture(t, " root ")
	res := register(t, f.svc, "root", 1, "")
	assert.Equal(t, types.RoleAdmin, res.User.Role)
}

func TestRegisterWithInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.invites.Create(ctx, "drive2026", "root", "")
	require.NoError(t, err)

	res := register(t, f.svc, "d1", 1, "DRIVE2026")
	require.Nil(t, res.InviteError)
	assert.Equal(t, types.RoleDriver, res.User.Role)

	// Same code again: the account is created as a customer and the failure is reported.
	res = register(t, f.svc, "d2", 2, "drive2026")
	assert.ErrorIs(t, res.InviteError, invite.ErrAlreadyUsed)
	assert.Equal(t, types.RoleCustomer, res.User.Role)

	res = register(t, f.svc, "d3", 3, "nope-code")
	assert.ErrorIs(t, res.InviteError, invite.ErrNotFound)
	assert.Equal(t, types.RoleCustomer, res.User.Role)
}

func TestRedeemInviteRules(t *testing.T) {
	f := newFixture(t, "root")
	ctx := context.Background()
	_, err := f.invites.Create(ctx, "CODE1", "root", "")
	require.NoError(t, err)
	register(t, f.svc, "root", 1, "")
	register(t, f.svc, "c1", 2, "")

	_, err = f.svc.RedeemInvite(ctx, "root", "CODE1")
	assert.ErrorIs(t, err, ErrNotCustomer)
	_, err = f.svc.RedeemInvite(ctx, "ghost", "CODE1")
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := f.svc.RedeemInvite(ctx, "c1", "code1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleDriver, u.Role)

	_, err = f.svc.RedeemInvite(ctx, "c1", "code1")
	assert.ErrorIs(t, err, ErrNotCustomer)
}

type failingRoleStore struct {
	*MemoryStore
}

func (failingRoleStore) UpdateRole(context.Context, types.ID, types.Role, types.Role) (bool, error) {
	return false, errors.New("db down")
}

func TestRedeemReleasesCodeWhenPromotionFails(t *testing.T) {
	ctx := context.Background()
	invites := invite.NewService(invite.NewMemoryStore())
	svc := NewService(failingRoleStore{NewMemoryStore()}, invites, nil)
	_, err := invites.Create(ctx, "RETRY", "root", "")
	require.NoError(t, err)
	register(t, svc, "c1", 1, "")

	_, err = svc.RedeemInvite(ctx, "c1", "RETRY")
	require.Error(t, err)

	ok, err := invites.Validate(ctx, "RETRY")
	require.NoError(t, err)
	assert.True(t, ok, "code should be usable again after a failed promotion")
}

func TestConcurrentRedeemSingleDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.invites.Create(ctx, "ONLYONE", "root", "")
	require.NoError(t, err)

	const n = 10
	for i := 0; i < n; i++ {
		register(t, f.svc, fmt.Sprintf("c%d", i), i, "")
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			<-start
			_, err := f.svc.RedeemInvite(ctx, id, "onlyone")
			errs <- err
		}(types.ID(fmt.Sprintf("c%d", i)))
	}
	close(start)
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, invite.ErrAlreadyUsed)
	}
	assert.Equal(t, 1, wins)

	drivers := 0
	for i := 0; i < n; i++ {
		role, _, err := f.svc.Role(ctx, types.ID(fmt.Sprintf("c%d", i)))
		require.NoError(t, err)
		if role == types.RoleDriver {
			drivers++
		}
	}
	assert.Equal(t, 1, drivers)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("COURIER_TEST_DSN")
	if dsn == "" {
		t.Skip("COURIER_TEST_DSN not set; skipping DB-backed tests")
	}
	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Apply(ctx, db))
	_, err = db.Exec(ctx, "TRUNCATE TABLE users")
	require.NoError(t, err)

	store := NewPostgresStore(db)
	svc := NewService(store, invite.NewService(invite.NewMemoryStore()), nil)
	res := register(t, svc, "pg1", 1, "")

	got, err := store.Get(ctx, "pg1")
	require.NoError(t, err)
	assert.Equal(t, res.User.Email, got.Email)
	assert.True(t, res.User.CreatedAt.Equal(got.CreatedAt))

	_, err = svc.Register(ctx, RegisterCommand{UID: "pg2", FullName: "Dup", Email: "PG1@example.ca", Phone: "4165550099"})
	assert.ErrorIs(t, err, ErrExists)

	ok, err := store.UpdateRole(ctx, "pg1", types.RoleCustomer, types.RoleDriver)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.UpdateRole(ctx, "pg1", types.RoleCustomer, types.RoleDriver)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
