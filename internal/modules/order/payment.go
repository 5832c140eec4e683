// README: Payment gate operations on orders (collect, failed, refund).
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"courier/internal/modules/payment"
	"courier/internal/types"
)

type CollectPaymentCommand struct {
	OrderID types.ID
	Actor   Actor
	Amount  decimal.Decimal
}

type PaymentCommand struct {
	OrderID types.ID
	Actor   Actor
	Reason  string
}

// Collectible reports whether payment may be recorded for an order in status s.
func Collectible(s Status) bool {
	return s == StatusAssigned || s == StatusPickedUp || s == StatusInTransit
}

// CollectPayment records an out-of-band cash or card collection. Collecting
// on an already paid order succeeds without a write, so retries are safe.
func (s *Service) CollectPayment(ctx context.Context, cmd CollectPaymentCommand) (*Order, error) {
	actor, err := s.resolve(ctx, cmd.Actor)
	if err != nil {
		return nil, err
	}
	if cmd.Amount.IsNegative() {
		return nil, invalid("amount", "must not be negative")
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		o, err := s.store.Get(ctx, cmd.OrderID)
		if err != nil {
			return nil, err
		}
		if !canDrive(actor, o) {
			return nil, fmt.Errorf("%w: only the assigned driver or an admin collects payment", ErrForbidden)
		}
		if !Collectible(o.Status) {
			return nil, fmt.Errorf("%w: order is %s", ErrOrderNotPayable, o.Status)
		}
		if !types.SameAmount(cmd.Amount, o.Cost) {
			return nil, invalid("amount", "%s does not match order cost %s", cmd.Amount.StringFixed(2), o.Cost.StringFixed(2))
		}
		noop, err := payment.Transition(o.PaymentStatus, payment.StatusPaid)
		if err != nil {
			return nil, fmt.Errorf("%w: payment is %s", ErrOrderNotPayable, o.PaymentStatus)
		}
		if noop {
			return o, nil
		}

		version := o.Version
		now := s.now()
		o.PaymentStatus = payment.StatusPaid
		o.PaidAt = stamp(nil, now)
		detail := fmt.Sprintf("%s %s %s", o.PaymentMethod, o.Cost.StringFixed(2), types.Currency)
		ok, err := s.store.Update(ctx, o, version, newEvent(o, EventPaymentCollected, o.Status, actor, detail, now))
		if err != nil {
			return nil, err
		}
		if ok {
			s.logTransition(o, EventPaymentCollected, o.Status, actor)
			return o, nil
		}
	}
	return nil, ErrConflict
}

func (s *Service) MarkPaymentFailed(ctx context.Context, cmd PaymentCommand) (*Order, error) {
	actor, err := s.resolve(ctx, cmd.Actor)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.OrderID, nil, EventPaymentFailed, actor, func(o *Order, _ time.Time) (string, error) {
		if !canDrive(actor, o) {
			return "", fmt.Errorf("%w: only the assigned driver or an admin records payment", ErrForbidden)
		}
		if !Collectible(o.Status) {
			return "", fmt.Errorf("%w: order is %s", ErrOrderNotPayable, o.Status)
		}
		if err := setPaymentStatus(o, payment.StatusFailed); err != nil {
			return "", err
		}
		return cmd.Reason, nil
	})
}

// RefundPayment is admin only and allowed in any order status.
func (s *Service) RefundPayment(ctx context.Context, cmd PaymentCommand) (*Order, error) {
	actor, err := s.requireAdmin(ctx, cmd.Actor)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.OrderID, nil, EventPaymentRefunded, actor, func(o *Order, _ time.Time) (string, error) {
		if err := setPaymentStatus(o, payment.StatusRefunded); err != nil {
			return "", err
		}
		return cmd.Reason, nil
	})
}

func setPaymentStatus(o *Order, to payment.Status) error {
	noop, err := payment.Transition(o.PaymentStatus, to)
	if errors.Is(err, payment.ErrBadTransition) {
		return fmt.Errorf("%w: payment is %s", ErrOrderNotPayable, o.PaymentStatus)
	}
	if err != nil {
		return err
	}
	if noop {
		return errNoChange
	}
	o.PaymentStatus = to
	return nil
}
