// README: Order service; creation, assignment and status transitions over the compare-and-swap store.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"courier/internal/logger"
	"courier/internal/modules/payment"
	"courier/internal/modules/pricing"
	"courier/internal/types"
)

// maxCASAttempts bounds re-reads when a write loses to an unrelated update.
const maxCASAttempts = 3

// Directory resolves a user's current role; the token claim is not trusted for authority.
type Directory interface {
	Role(ctx context.Context, id types.ID) (types.Role, bool, error)
}

type QuoteSource interface {
	Take(ctx context.Context, id types.ID) (*pricing.Quote, error)
}

// PhotoChecker confirms that a delivery photo reference exists in the blob store.
type PhotoChecker interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

type Service struct {
	store  Store
	users  Directory
	quotes QuoteSource
	photos PhotoChecker
	now    func() time.Time
}

// NewService wires the order service. users, quotes and photos may be nil:
// without users the caller's claimed role is used as is.
func NewService(store Store, users Directory, quotes QuoteSource, photos PhotoChecker) *Service {
	return &Service{
		store:  store,
		users:  users,
		quotes: quotes,
		photos: photos,
		now:    func() time.Time { return truncate(time.Now()) },
	}
}

var errNoChange = errors.New("no change")

type CreateCommand struct {
	Actor      Actor
	CustomerID types.ID
	QuoteID    types.ID

	PickupAddress  string
	DropoffAddress string
	DistanceKm     float64
	EtaMinutes     int
	Package        pricing.Package

	PaymentResponsibility payment.Responsibility
	PaymentMethod         payment.Method
}

type AcceptCommand struct {
	OrderID  types.ID
	DriverID types.ID
	Actor    Actor
}

type AdminAssignCommand struct {
	OrderID         types.ID
	DriverID        types.ID
	Actor           Actor
	ExpectedVersion *int
}

type UpdateStatusCommand struct {
	OrderID         types.ID
	Event           EventKind
	Actor           Actor
	ExpectedVersion *int
	PhotoRef        string
	Notes           string
	Reason          string
}

type CancelCommand struct {
	OrderID         types.ID
	Actor           Actor
	Reason          string
	ExpectedVersion *int
}

type ForceCommand struct {
	OrderID         types.ID
	Actor           Actor
	Status          Status
	Reason          string
	ExpectedVersion *int
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	actor, err := s.resolve(ctx, cmd.Actor)
	if err != nil {
		return nil, err
	}
	customerID := cmd.CustomerID
	if customerID.Empty() {
		customerID = actor.ID
	}
	switch actor.Role {
	case types.RoleCustomer:
		if customerID != actor.ID {
			return nil, fmt.Errorf("%w: customers create orders for themselves only", ErrForbidden)
		}
	case types.RoleAdmin:
		if customerID != actor.ID && s.users != nil {
			role, ok, err := s.users.Role(ctx, customerID)
			if err != nil {
				return nil, err
			}
			if !ok || role != types.RoleCustomer {
				return nil, invalid("customer_id", "not a customer")
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s cannot create orders", ErrForbidden, actor.Role)
	}

	resp, err := payment.ParseResponsibility(string(cmd.PaymentResponsibility))
	if err != nil {
		return nil, invalid("payment_responsibility", "must be sender or receiver")
	}
	method, err := payment.ParseMethod(string(cmd.PaymentMethod))
	if err != nil {
		return nil, invalid("payment_method", "must be cash or card")
	}

	pickup, dropoff := strings.TrimSpace(cmd.PickupAddress), strings.TrimSpace(cmd.DropoffAddress)
	km, eta, pkg := cmd.DistanceKm, cmd.EtaMinutes, cmd.Package
	if !cmd.QuoteID.Empty() {
		if s.quotes == nil {
			return nil, invalid("quote_id", "quotes are not available")
		}
		q, err := s.quotes.Take(ctx, cmd.QuoteID)
		if errors.Is(err, pricing.ErrQuoteNotFound) {
			return nil, invalid("quote_id", "unknown or expired quote")
		}
		if err != nil {
			return nil, err
		}
		pickup, dropoff, km, eta, pkg = q.PickupAddress, q.DropoffAddress, q.DistanceKm, q.EtaMinutes, q.Package
	}

	if pickup == "" {
		return nil, invalid("pickup_address", "required")
	}
	if dropoff == "" {
		return nil, invalid("dropoff_address", "required")
	}
	if km < 0 {
		return nil, invalid("distance_km", "must not be negative")
	}
	if eta < 0 {
		return nil, invalid("eta_minutes", "must not be negative")
	}
	if err := pkg.Normalize(); err != nil {
		return nil, invalid("package", "%s", strings.TrimPrefix(err.Error(), pricing.ErrValidation.Error()+": "))
	}
	cost, err := pricing.ComputeCost(km, pkg.Weight, pkg.Fragile, pkg.Speed)
	if err != nil {
		return nil, invalid("package", "%v", err)
	}

	now := s.now()
	o := &Order{
		ID:                    types.NewID(),
		CustomerID:            customerID,
		PickupAddress:         pickup,
		DropoffAddress:        dropoff,
		DistanceKm:            km,
		EtaMinutes:            eta,
		Package:               pkg,
		Cost:                  types.Round2(cost),
		PaymentResponsibility: resp,
		PaymentMethod:         method,
		PaymentStatus:         payment.StatusPending,
		Status:                StatusPending,
		Version:               0,
		CreatedAt:             now,
	}
	if err := s.store.Create(ctx, o, newEvent(o, EventCreate, StatusNone, actor, "", now)); err != nil {
		return nil, err
	}
	logger.Log.Debug("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("customer_id", o.CustomerID.String()),
		zap.String("cost", o.Cost.StringFixed(2)),
	)
	return o, nil
}

// Accept assigns the order to the calling driver; the first accept wins and
// every later one gets ErrAlreadyAssigned.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Order, error) {
	actor, err := s.resolve(ctx, cmd.Actor)
	if err != nil {
		return nil, err
	}
	driverID := cmd.DriverID
	if driverID.Empty() {
		driverID = actor.ID
	}
	if actor.Role != types.RoleDriver {
		return nil, fmt.Errorf("%w: only drivers accept orders", ErrForbidden)
	}
	if driverID != actor.ID {
		return nil, fmt.Errorf("%w: drivers accept orders for themselves only", ErrForbidden)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		o, err := s.store.Get(ctx, cmd.OrderID)
		if err != nil {
			return nil, err
		}
		version, from := o.Version, o.Status
		now := s.now()
		if err := Apply(o, EventAccept, TransitionInput{DriverID: &driverID}, now); err != nil {
			return nil, err
		}
		ok, err := s.store.Update(ctx, o, version, newEvent(o, EventAccept, from, actor, "", now))
		if err != nil {
			return nil, err
		}
		if ok {
			s.logTransition(o, EventAccept, from, actor)
			return o, nil
		}
	}
	return nil, ErrConflict
}

// AdminAssign sets or replaces the driver of a non-terminal order.
func (s *Service) AdminAssign(ctx context.Context, cmd AdminAssignCommand) (*Order, error) {
	actor, err := s.requireAdmin(ctx, cmd.Actor)
	if err != nil {
		return nil, err
	}
	if cmd.DriverID.Empty() {
		return nil, invalid("driver_id", "required")
	}
	if s.users != nil {
		role, ok, err := s.users.Role(ctx, cmd.DriverID)
		if err != nil {
			return nil, err
		}
		if !ok || role != types.RoleDriver {
			return nil, invalid("driver_id", "user is not a driver")
		}
	}
	return s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, EventAssign, actor, func(o *Order, now time.Time) (string, error) {
		if o.Status.Terminal() {
			return "", &TransitionError{From: o.Status, Event: EventAssign, Reason: fmt.Sprintf("order is %s", o.Status)}
		}
		if o.HasDriver(cmd.DriverID) {
			return "", errNoChange
		}
		detail := "driver " + cmd.DriverID.String()
		if o.DriverID != nil {
			detail += " replaces " + o.DriverID.String()
		}
		d := cmd.DriverID
		o.DriverID = &d
		if o.Status == StatusPending {
			o.Status = StatusAssigned
		}
		o.AssignedAt = stamp(o.AssignedAt, now)
		return detail, nil
	})
}

func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*Order, error) {
	if cmd.Event == EventAccept {
		if cmd.ExpectedVersion != nil {
			o, err := s.store.Get(ctx, cmd.OrderID)
			if err != nil {
				return nil, err
			}
			if o.Version != *cmd.ExpectedVersion {
				return nil, versionConflict(*cmd.ExpectedVersion, o.Version)
			}
		}
		return s.Accept(ctx, AcceptCommand{OrderID: cmd.OrderID, Actor: cmd.Actor})
	}
	if _, ok := eventTargets[cmd.Event]; !ok {
		return nil, invalid("event", "unknown event %q", cmd.Event)
	}
	actor, err := s.resolve(ctx, cmd.Actor)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, cmd.Event, actor, func(o *Order, now time.Time) (string, error) {
		if err := checkAuthority(actor, o, cmd.Event); err != nil {
			return "", err
		}
		in := TransitionInput{
			PhotoRef: strings.TrimSpace(cmd.PhotoRef),
			Notes:    strings.TrimSpace(cmd.Notes),
			Reason:   strings.TrimSpace(cmd.Reason),
		}
		if cmd.Event == EventDeliver && in.PhotoRef != "" && s.photos != nil && CanTransition(o.Status, StatusDelivered) {
			ok, err := s.photos.Exists(ctx, in.PhotoRef)
			if err != nil {
				return "", fmt.Errorf("check delivery photo: %w", err)
			}
			if !ok {
				return "", invalid("photo_ref", "no such object")
			}
		}
		if err := Apply(o, cmd.Event, in, now); err != nil {
			return "", err
		}
		switch cmd.Event {
		case EventCancel:
			return in.Reason, nil
		case EventDeliver:
			return in.PhotoRef, nil
		}
		return "", nil
	})
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	return s.UpdateStatus(ctx, UpdateStatusCommand{
		OrderID:         cmd.OrderID,
		Event:           EventCancel,
		Actor:           cmd.Actor,
		ExpectedVersion: cmd.ExpectedVersion,
		Reason:          cmd.Reason,
	})
}

// ForceStatus is the administrative override; it bypasses transition and payment guards.
func (s *Service) ForceStatus(ctx context.Context, cmd ForceCommand) (*Order, error) {
	actor, err := s.requireAdmin(ctx, cmd.Actor)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.OrderID, cmd.ExpectedVersion, EventForce, actor, func(o *Order, now time.Time) (string, error) {
		if err := Force(o, cmd.Status, strings.TrimSpace(cmd.Reason), now); err != nil {
			return "", err
		}
		return strings.TrimSpace(cmd.Reason), nil
	})
}

func (s *Service) Get(ctx context.Context, id types.ID, actor Actor) (*Order, error) {
	actor, err := s.resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, o) {
		return nil, fmt.Errorf("%w: order belongs to someone else", ErrForbidden)
	}
	return o, nil
}

func (s *Service) Events(ctx context.Context, id types.ID, actor Actor) ([]Event, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, id)
}

// mutate runs one read-modify-CAS cycle. fn edits the order in place and
// returns the audit detail; returning errNoChange skips the write.
func (s *Service) mutate(ctx context.Context, id types.ID, expected *int, kind EventKind, actor Actor, fn func(o *Order, now time.Time) (string, error)) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expected != nil && *expected != o.Version {
		return nil, versionConflict(*expected, o.Version)
	}
	version, from := o.Version, o.Status
	current := o.Clone()
	now := s.now()
	detail, err := fn(o, now)
	if errors.Is(err, errNoChange) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.store.Update(ctx, o, version, newEvent(o, kind, from, actor, detail, now))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: order changed since version %d", ErrConflict, version)
	}
	s.logTransition(o, kind, from, actor)
	return o, nil
}

func (s *Service) resolve(ctx context.Context, a Actor) (Actor, error) {
	if a.ID.Empty() {
		return a, fmt.Errorf("%w: missing caller", ErrForbidden)
	}
	if s.users == nil {
		return a, nil
	}
	role, ok, err := s.users.Role(ctx, a.ID)
	if err != nil {
		return a, err
	}
	if !ok {
		return a, fmt.Errorf("%w: caller is not registered", ErrForbidden)
	}
	a.Role = role
	return a, nil
}

func (s *Service) requireAdmin(ctx context.Context, a Actor) (Actor, error) {
	actor, err := s.resolve(ctx, a)
	if err != nil {
		return actor, err
	}
	if actor.Role != types.RoleAdmin {
		return actor, fmt.Errorf("%w: admin only", ErrForbidden)
	}
	return actor, nil
}

func (s *Service) logTransition(o *Order, kind EventKind, from Status, actor Actor) {
	logger.Log.Debug("order updated",
		zap.String("order_id", o.ID.String()),
		zap.String("event", string(kind)),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
		zap.String("actor", actor.ID.String()),
		zap.Int("version", o.Version),
	)
}

func versionConflict(expected, found int) error {
	return fmt.Errorf("%w: expected version %d, found %d", ErrConflict, expected, found)
}

func checkAuthority(a Actor, o *Order, ev EventKind) error {
	switch ev {
	case EventPickUp, EventStartTransit, EventDeliver:
		if !canDrive(a, o) {
			return fmt.Errorf("%w: only the assigned driver or an admin may %s", ErrForbidden, ev)
		}
	case EventCancel:
		switch {
		case a.Role == types.RoleAdmin:
		case a.Role == types.RoleDriver && o.HasDriver(a.ID):
		case a.Role == types.RoleCustomer && o.CustomerID == a.ID:
			if o.Status == StatusPickedUp || o.Status == StatusInTransit {
				return fmt.Errorf("%w: customers cancel only before pickup", ErrForbidden)
			}
		default:
			return fmt.Errorf("%w: no cancel authority", ErrForbidden)
		}
	}
	return nil
}

func canDrive(a Actor, o *Order) bool {
	return a.Role == types.RoleAdmin || (a.Role == types.RoleDriver && o.HasDriver(a.ID))
}

func canView(a Actor, o *Order) bool {
	switch a.Role {
	case types.RoleAdmin:
		return true
	case types.RoleCustomer:
		return o.CustomerID == a.ID
	case types.RoleDriver:
		return o.HasDriver(a.ID) || (o.Status == StatusPending && o.DriverID == nil)
	}
	return false
}
