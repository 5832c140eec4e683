// README: Order aggregate, status definitions and audit events.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"courier/internal/modules/payment"
	"courier/internal/modules/pricing"
	"courier/internal/types"
)

type Status string

const (
	StatusNone      Status = ""
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{StatusPending, StatusAssigned, StatusPickedUp, StatusInTransit, StatusDelivered, StatusCancelled}

func ParseStatus(v string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == v {
			return s, true
		}
	}
	return StatusNone, false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Order struct {
	ID             types.ID  `json:"id"`
	CustomerID     types.ID  `json:"customer_id"`
	DriverID       *types.ID `json:"driver_id,omitempty"`
	PickupAddress  string    `json:"pickup_address"`
	DropoffAddress string    `json:"dropoff_address"`
	DistanceKm     float64   `json:"distance_km"`
	EtaMinutes     int       `json:"eta_minutes"`

	Package pricing.Package `json:"package"`

	Cost                  decimal.Decimal        `json:"cost"`
	PaymentResponsibility payment.Responsibility `json:"payment_responsibility"`
	PaymentMethod         payment.Method         `json:"payment_method"`
	PaymentStatus         payment.Status         `json:"payment_status"`
	PaidAt                *time.Time             `json:"paid_at,omitempty"`

	Status       Status     `json:"status"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
	PickedUpAt   *time.Time `json:"picked_up_at,omitempty"`
	InTransitAt  *time.Time `json:"in_transit_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`

	DeliveryPhotoRef *string `json:"delivery_photo_ref,omitempty"`
	DeliveryNotes    *string `json:"delivery_notes,omitempty"`
}

// Clone returns a deep copy so stores never share pointers with callers.
func (o *Order) Clone() *Order {
	c := *o
	c.DriverID = clonePtr(o.DriverID)
	c.PaidAt = clonePtr(o.PaidAt)
	c.AssignedAt = clonePtr(o.AssignedAt)
	c.PickedUpAt = clonePtr(o.PickedUpAt)
	c.InTransitAt = clonePtr(o.InTransitAt)
	c.DeliveredAt = clonePtr(o.DeliveredAt)
	c.CancelledAt = clonePtr(o.CancelledAt)
	c.CancelReason = clonePtr(o.CancelReason)
	c.DeliveryPhotoRef = clonePtr(o.DeliveryPhotoRef)
	c.DeliveryNotes = clonePtr(o.DeliveryNotes)
	return &c
}

func (o *Order) HasDriver(id types.ID) bool {
	return o.DriverID != nil && *o.DriverID == id
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   types.ID
	Role types.Role
}

// Event is one row of the order audit trail, written with the order change it describes.
type Event struct {
	ID         int64      `json:"id"`
	OrderID    types.ID   `json:"order_id"`
	Kind       EventKind  `json:"kind"`
	FromStatus Status     `json:"from_status"`
	ToStatus   Status     `json:"to_status"`
	ActorID    *types.ID  `json:"actor_id,omitempty"`
	ActorRole  types.Role `json:"actor_role"`
	Detail     string     `json:"detail,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newEvent(o *Order, kind EventKind, from Status, actor Actor, detail string, at time.Time) *Event {
	e := &Event{
		OrderID:    o.ID,
		Kind:       kind,
		FromStatus: from,
		ToStatus:   o.Status,
		ActorRole:  actor.Role,
		Detail:     detail,
		CreatedAt:  at,
	}
	if actor.ID != "" {
		id := actor.ID
		e.ActorID = &id
	}
	return e
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
