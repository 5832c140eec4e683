// README: Package attributes (size, weight bucket, speed) and quote snapshots.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"courier/internal/types"
)

var ErrValidation = errors.New("invalid pricing input")

type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

type Weight string

const (
	WeightUnder5 Weight = "<5kg"
	Weight5To20  Weight = "5-20kg"
	Weight20To50 Weight = "20-50kg"
	WeightOver50 Weight = ">50kg"
)

type Speed string

const (
	SpeedStandard Speed = "standard"
	SpeedExpress  Speed = "express"
	SpeedSameDay  Speed = "same_day"
)

var weightMultipliers = map[Weight]decimal.Decimal{
	WeightUnder5: decimal.NewFromInt(1),
	Weight5To20:  decimal.RequireFromString("1.5"),
	Weight20To50: decimal.NewFromInt(2),
	WeightOver50: decimal.NewFromInt(3),
}

// ParseSize accepts any casing.
func ParseSize(v string) (Size, error) {
	s := Size(strings.ToLower(strings.TrimSpace(v)))
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown size %q", ErrValidation, v)
}

// ParseWeight accepts the labels clients display, e.g. "< 5kg", "5–20kg", "20-50 KG".
func ParseWeight(v string) (Weight, error) {
	n := strings.ToLower(v)
	n = strings.NewReplacer(" ", "", "–", "-", "—", "-").Replace(n)
	w := Weight(n)
	if _, ok := weightMultipliers[w]; ok {
		return w, nil
	}
	return "", fmt.Errorf("%w: unknown weight %q", ErrValidation, v)
}

// ParseSpeed accepts "Standard", "Express", "Same-Day" and "same_day".
func ParseSpeed(v string) (Speed, error) {
	n := strings.ToLower(strings.TrimSpace(v))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	s := Speed(n)
	switch s {
	case SpeedStandard, SpeedExpress, SpeedSameDay:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown speed %q", ErrValidation, v)
}

type Package struct {
	Size         Size   `json:"size"`
	Weight       Weight `json:"weight"`
	Fragile      bool   `json:"fragile"`
	Speed        Speed  `json:"speed"`
	Instructions string `json:"instructions,omitempty"`
}

// Normalize parses every enum field in place.
func (p *Package) Normalize() error {
	var err error
	if p.Size, err = ParseSize(string(p.Size)); err != nil {
		return err
	}
	if p.Weight, err = ParseWeight(string(p.Weight)); err != nil {
		return err
	}
	if p.Speed, err = ParseSpeed(string(p.Speed)); err != nil {
		return err
	}
	p.Instructions = strings.TrimSpace(p.Instructions)
	return nil
}

// Quote freezes a route estimate and its cost so order creation does not
// call the mapping provider again.
type Quote struct {
	ID             types.ID        `json:"id"`
	PickupAddress  string          `json:"pickup_address"`
	DropoffAddress string          `json:"dropoff_address"`
	DistanceKm     float64         `json:"distance_km"`
	EtaMinutes     int             `json:"eta_minutes"`
	Package        Package         `json:"package"`
	Cost           decimal.Decimal `json:"cost"`
	ExpiresAt      time.Time       `json:"expires_at"`
}
