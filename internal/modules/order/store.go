// README: Order store contract and its PostgreSQL implementation (version compare-and-swap + audit trail).
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"courier/internal/modules/payment"
	"courier/internal/modules/pricing"
	"courier/internal/types"
)

// Store owns Order records. Update is a single-record compare-and-swap on
// Version; a false result with a nil error means the record moved on.
type Store interface {
	Create(ctx context.Context, o *Order, ev *Event) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	Update(ctx context.Context, o *Order, expectedVersion int, ev *Event) (bool, error)
	List(ctx context.Context, f Filter) ([]*Order, error)
	Events(ctx context.Context, id types.ID) ([]Event, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `
	id, customer_id, driver_id, pickup_address, dropoff_address, distance_km, eta_minutes,
	package_size, package_weight, fragile, speed, instructions,
	cost::text, payment_responsibility, payment_method, payment_status, paid_at,
	status, version, created_at, assigned_at, picked_up_at, in_transit_at, delivered_at, cancelled_at,
	cancel_reason, delivery_photo_ref, delivery_notes`

func (s *PostgresStore) Create(ctx context.Context, o *Order, ev *Event) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, driver_id, pickup_address, dropoff_address, distance_km, eta_minutes,
			package_size, package_weight, fragile, speed, instructions,
			cost, payment_responsibility, payment_method, payment_status, paid_at,
			status, version, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13::text::numeric, $14, $15, $16, $17,
			$18, $19, $20
		)`,
		string(o.ID), string(o.CustomerID), toStringPtr(o.DriverID), o.PickupAddress, o.DropoffAddress, o.DistanceKm, o.EtaMinutes,
		string(o.Package.Size), string(o.Package.Weight), o.Package.Fragile, string(o.Package.Speed), o.Package.Instructions,
		o.Cost.String(), string(o.PaymentResponsibility), string(o.PaymentMethod), string(o.PaymentStatus), o.PaidAt,
		string(o.Status), o.Version, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if err := appendEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) Update(ctx context.Context, o *Order, expectedVersion int, ev *Event) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET driver_id = $1,
			payment_status = $2,
			paid_at = $3,
			status = $4,
			version = version + 1,
			assigned_at = $5,
			picked_up_at = $6,
			in_transit_at = $7,
			delivered_at = $8,
			cancelled_at = $9,
			cancel_reason = $10,
			delivery_photo_ref = $11,
			delivery_notes = $12
		WHERE id = $13 AND version = $14`,
		toStringPtr(o.DriverID),
		string(o.PaymentStatus),
		o.PaidAt,
		string(o.Status),
		o.AssignedAt,
		o.PickedUpAt,
		o.InTransitAt,
		o.DeliveredAt,
		o.CancelledAt,
		o.CancelReason,
		o.DeliveryPhotoRef,
		o.DeliveryNotes,
		string(o.ID),
		expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if err := appendEvent(ctx, tx, ev); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	o.Version = expectedVersion + 1
	return true, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Order, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.CustomerID != nil {
		conds = append(conds, "customer_id = "+arg(string(*f.CustomerID)))
	}
	if f.DriverID != nil {
		conds = append(conds, "driver_id = "+arg(string(*f.DriverID)))
	}
	if f.Unassigned {
		conds = append(conds, "driver_id IS NULL")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		conds = append(conds, "status = ANY("+arg(statuses)+")")
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		conds = append(conds, fmt.Sprintf(
			"(id ILIKE %[1]s OR customer_id ILIKE %[1]s OR pickup_address ILIKE %[1]s OR dropoff_address ILIKE %[1]s)", p))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + orderBy(f.Sort)
	query += " LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]*Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, kind, from_status, to_status, actor_id, actor_role, detail, created_at
		FROM order_state_events
		WHERE order_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			actorID *string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Kind, &e.FromStatus, &e.ToStatus, &actorID, &e.ActorRole, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = toIDPtr(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func appendEvent(ctx context.Context, tx pgx.Tx, e *Event) error {
	if e == nil {
		return nil
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO order_state_events (
			order_id, kind, from_status, to_status, actor_id, actor_role, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		string(e.OrderID),
		string(e.Kind),
		string(e.FromStatus),
		string(e.ToStatus),
		toStringPtr(e.ActorID),
		string(e.ActorRole),
		e.Detail,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append order event: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o        Order
		driverID *string
		size     string
		weight   string
		speed    string
		cost     string
		resp     string
		method   string
		pstatus  string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &driverID, &o.PickupAddress, &o.DropoffAddress, &o.DistanceKm, &o.EtaMinutes,
		&size, &weight, &o.Package.Fragile, &speed, &o.Package.Instructions,
		&cost, &resp, &method, &pstatus, &o.PaidAt,
		&o.Status, &o.Version, &o.CreatedAt, &o.AssignedAt, &o.PickedUpAt, &o.InTransitAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CancelReason, &o.DeliveryPhotoRef, &o.DeliveryNotes,
	)
	if err != nil {
		return nil, err
	}
	o.DriverID = toIDPtr(driverID)
	o.Package.Size = pricing.Size(size)
	o.Package.Weight = pricing.Weight(weight)
	o.Package.Speed = pricing.Speed(speed)
	o.PaymentResponsibility = payment.Responsibility(resp)
	o.PaymentMethod = payment.Method(method)
	o.PaymentStatus = payment.Status(pstatus)
	if o.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("order %s cost: %w", o.ID, err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

func orderBy(s Sort) string {
	switch s {
	case SortCreatedAsc:
		return "created_at ASC, id"
	case SortCostDesc:
		return "cost DESC, created_at DESC"
	case SortCostAsc:
		return "cost ASC, created_at DESC"
	case SortDistanceAsc:
		return "distance_km ASC, created_at DESC"
	default:
		return "created_at DESC, id"
	}
}

func escapeLike(v string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
