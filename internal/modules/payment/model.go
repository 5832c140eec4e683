// README: Payment responsibility, method and status enums.
package payment

import (
	"errors"
	"fmt"
	"strings"
)

var ErrValidation = errors.New("invalid payment input")

// Responsibility says which party settles the order.
type Responsibility string

const (
	Sender   Responsibility = "sender"
	Receiver Responsibility = "receiver"
)

type Method string

const (
	Cash Method = "cash"
	Card Method = "card"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

func ParseResponsibility(v string) (Responsibility, error) {
	r := Responsibility(strings.ToLower(strings.TrimSpace(v)))
	switch r {
	case Sender, Receiver:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown payment responsibility %q", ErrValidation, v)
}

func ParseMethod(v string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(v)))
	switch m {
	case Cash, Card:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, v)
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusRefunded:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrValidation, v)
}
