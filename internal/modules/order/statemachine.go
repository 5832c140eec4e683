// README: Order state machine; transition table, payment guards and per-transition side effects.
package order

import (
	"errors"
	"fmt"
	"time"

	"courier/internal/modules/payment"
	"courier/internal/types"
)

type EventKind string

const (
	EventCreate           EventKind = "create"
	EventAccept           EventKind = "accept"
	EventAssign           EventKind = "admin_assign"
	EventPickUp           EventKind = "pick_up"
	EventStartTransit     EventKind = "start_transit"
	EventDeliver          EventKind = "deliver"
	EventCancel           EventKind = "cancel"
	EventForce            EventKind = "force_status"
	EventPaymentCollected EventKind = "payment_collected"
	EventPaymentFailed    EventKind = "payment_failed"
	EventPaymentRefunded  EventKind = "payment_refunded"
)

// AllowedTransitions represents the order state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusInTransit, StatusDelivered, StatusCancelled},
	StatusInTransit: {StatusDelivered, StatusCancelled},
}

// eventTargets maps the events a caller may request to the status they lead to.
var eventTargets = map[EventKind]Status{
	EventAccept:       StatusAssigned,
	EventPickUp:       StatusPickedUp,
	EventStartTransit: StatusInTransit,
	EventDeliver:      StatusDelivered,
	EventCancel:       StatusCancelled,
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func ParseEvent(v string) (EventKind, bool) {
	e := EventKind(v)
	_, ok := eventTargets[e]
	return e, ok
}

// TransitionInput carries the event payload.
type TransitionInput struct {
	DriverID *types.ID
	PhotoRef string
	Notes    string
	Reason   string
}

// Apply moves o along the event edge, enforcing guards. On error o is left untouched.
func Apply(o *Order, ev EventKind, in TransitionInput, now time.Time) error {
	to, ok := eventTargets[ev]
	if !ok {
		return &TransitionError{From: o.Status, Event: ev, Reason: "unknown event"}
	}
	if ev == EventAccept && o.DriverID != nil {
		return ErrAlreadyAssigned
	}
	if !CanTransition(o.Status, to) {
		reason := fmt.Sprintf("%s cannot move to %s", o.Status, to)
		if o.Status.Terminal() {
			reason = fmt.Sprintf("order is %s", o.Status)
		}
		return &TransitionError{From: o.Status, Event: ev, Reason: reason}
	}

	switch ev {
	case EventAccept:
		if in.DriverID == nil || in.DriverID.Empty() {
			return invalid("driver_id", "required")
		}
	case EventPickUp:
		if err := payment.Check(o.PaymentResponsibility, o.PaymentStatus, payment.StagePickup); err != nil {
			return gateError(o, ev, err)
		}
	case EventDeliver:
		if err := payment.Check(o.PaymentResponsibility, o.PaymentStatus, payment.StageDelivery); err != nil {
			return gateError(o, ev, err)
		}
	}

	o.Status = to
	switch ev {
	case EventAccept:
		d := *in.DriverID
		o.DriverID = &d
		o.AssignedAt = stamp(o.AssignedAt, now)
	case EventPickUp:
		o.PickedUpAt = stamp(o.PickedUpAt, now)
	case EventStartTransit:
		o.InTransitAt = stamp(o.InTransitAt, now)
	case EventDeliver:
		o.DeliveredAt = stamp(o.DeliveredAt, now)
		o.DeliveryPhotoRef = optional(in.PhotoRef)
		o.DeliveryNotes = optional(in.Notes)
	case EventCancel:
		o.CancelledAt = stamp(o.CancelledAt, now)
		o.CancelReason = optional(in.Reason)
	}
	return nil
}

func gateError(o *Order, ev EventKind, err error) error {
	reason := err.Error()
	if errors.Is(err, payment.ErrPaymentRequired) {
		reason = fmt.Sprintf("payment by %s must be paid first (payment status %s)", o.PaymentResponsibility, o.PaymentStatus)
	}
	return &TransitionError{From: o.Status, Event: ev, Reason: reason}
}

// lifecycle orders the statuses whose timestamps must stay monotonic.
var lifecycle = []Status{StatusPending, StatusAssigned, StatusPickedUp, StatusInTransit, StatusDelivered}

func stageIndex(s Status) int {
	for i, v := range lifecycle {
		if v == s {
			return i
		}
	}
	return -1
}

// Force sets any status, bypassing guards. Timestamps of stages past the
// target are cleared so an order never carries a timestamp for a status it
// has not reached. Forcing back to pending also releases the driver.
func Force(o *Order, to Status, reason string, now time.Time) error {
	if _, ok := ParseStatus(string(to)); !ok || to == StatusNone {
		return invalid("status", "unknown status %q", to)
	}
	if to != StatusPending && to != StatusCancelled && o.DriverID == nil {
		return invalid("status", "%s requires an assigned driver", to)
	}

	if to == StatusCancelled {
		o.DeliveredAt = nil
		o.DeliveryPhotoRef = nil
		o.DeliveryNotes = nil
		o.CancelledAt = stamp(o.CancelledAt, now)
		if reason != "" {
			o.CancelReason = &reason
		}
		o.Status = to
		return nil
	}

	o.CancelledAt = nil
	o.CancelReason = nil
	idx := stageIndex(to)
	if idx < stageIndex(StatusAssigned) {
		o.DriverID = nil
		o.AssignedAt = nil
	}
	if idx < stageIndex(StatusPickedUp) {
		o.PickedUpAt = nil
	}
	if idx < stageIndex(StatusInTransit) {
		o.InTransitAt = nil
	}
	if idx < stageIndex(StatusDelivered) {
		o.DeliveredAt = nil
		o.DeliveryPhotoRef = nil
		o.DeliveryNotes = nil
	}
	switch to {
	case StatusAssigned:
		o.AssignedAt = stamp(o.AssignedAt, now)
	case StatusPickedUp:
		o.PickedUpAt = stamp(o.PickedUpAt, now)
	case StatusInTransit:
		o.InTransitAt = stamp(o.InTransitAt, now)
	case StatusDelivered:
		o.DeliveredAt = stamp(o.DeliveredAt, now)
	}
	o.Status = to
	return nil
}

// CheckConsistency verifies the status/timestamp invariants of o.
func CheckConsistency(o *Order) error {
	if _, ok := ParseStatus(string(o.Status)); !ok || o.Status == StatusNone {
		return fmt.Errorf("unknown status %q", o.Status)
	}
	if o.Status == StatusPending && o.DriverID != nil {
		return errors.New("pending order has a driver")
	}
	if o.Status != StatusPending && o.Status != StatusCancelled && o.DriverID == nil {
		return fmt.Errorf("%s order has no driver", o.Status)
	}
	if o.DeliveredAt != nil && o.Status != StatusDelivered {
		return fmt.Errorf("delivered_at set while %s", o.Status)
	}
	if o.CancelledAt != nil && o.Status != StatusCancelled {
		return fmt.Errorf("cancelled_at set while %s", o.Status)
	}
	if o.Status != StatusCancelled {
		idx := stageIndex(o.Status)
		if o.AssignedAt != nil && idx < stageIndex(StatusAssigned) {
			return fmt.Errorf("assigned_at set while %s", o.Status)
		}
		if o.PickedUpAt != nil && idx < stageIndex(StatusPickedUp) {
			return fmt.Errorf("picked_up_at set while %s", o.Status)
		}
		if o.InTransitAt != nil && idx < stageIndex(StatusInTransit) {
			return fmt.Errorf("in_transit_at set while %s", o.Status)
		}
	}
	ordered := []*time.Time{o.AssignedAt, o.PickedUpAt, o.InTransitAt, o.DeliveredAt}
	var prev *time.Time
	for _, t := range ordered {
		if t == nil {
			continue
		}
		if prev != nil && t.Before(*prev) {
			return errors.New("lifecycle timestamps out of order")
		}
		prev = t
	}
	return nil
}

func stamp(cur *time.Time, now time.Time) *time.Time {
	if cur != nil {
		return cur
	}
	t := now
	return &t
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
