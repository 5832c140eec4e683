// README: Payment gate rules; which lifecycle stage needs a recorded payment and how payment status may move.
package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentRequired is returned by Check when the obligated party has not paid yet.
	ErrPaymentRequired = errors.New("payment required")
	ErrBadTransition   = errors.New("payment status transition not allowed")
)

// Stage is the lifecycle step that may be gated on payment.
type Stage string

const (
	StagePickup   Stage = "pickup"
	StageDelivery Stage = "delivery"
)

// Check reports whether an order may pass the given stage. Sender-paid orders
// must be paid before pickup; receiver-paid orders before delivery.
func Check(resp Responsibility, status Status, stage Stage) error {
	var gated bool
	switch stage {
	case StagePickup:
		gated = resp == Sender
	case StageDelivery:
		gated = resp == Receiver
	}
	if gated && status != StatusPaid {
		return fmt.Errorf("%w: %s pays before %s, payment is %s", ErrPaymentRequired, resp, stage, status)
	}
	return nil
}

var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed},
	StatusFailed:  {StatusPaid, StatusFailed},
	StatusPaid:    {StatusRefunded},
}

// Transition validates a payment status change. Re-applying the current
// paid or refunded status is a no-op rather than an error.
func Transition(from, to Status) (noop bool, err error) {
	if from == to && (to == StatusPaid || to == StatusRefunded) {
		return true, nil
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
}
