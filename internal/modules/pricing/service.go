// README: Cost formula and quote service (route estimate + frozen cost).
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"courier/internal/logger"
	"courier/internal/types"
)

var (
	ErrQuoteNotFound    = errors.New("quote not found or expired")
	ErrRouteUnavailable = errors.New("routing provider unavailable")
)

var (
	baseFare         = decimal.NewFromInt(5)
	perKm            = decimal.RequireFromString("1.2")
	fragileSurcharge = decimal.NewFromInt(5)
	rushMultiplier   = decimal.RequireFromString("1.5")
)

// ComputeCost is a pure function of the package attributes and distance:
//
//	cost = (5 + 1.2*km) * weightMultiplier, +5 if fragile, *1.5 for express or same-day.
func ComputeCost(distanceKm float64, weight Weight, fragile bool, speed Speed) (decimal.Decimal, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return decimal.Zero, fmt.Errorf("%w: distance must be a non-negative number", ErrValidation)
	}
	mult, ok := weightMultipliers[weight]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown weight %q", ErrValidation, weight)
	}
	cost := baseFare.Add(perKm.Mul(decimal.NewFromFloat(distanceKm))).Mul(mult)
	if fragile {
		cost = cost.Add(fragileSurcharge)
	}
	switch speed {
	case SpeedStandard:
	case SpeedExpress, SpeedSameDay:
		cost = cost.Mul(rushMultiplier)
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown speed %q", ErrValidation, speed)
	}
	return cost, nil
}

// RouteEstimator is the mapping provider.
type RouteEstimator interface {
	Estimate(ctx context.Context, origin, destination string) (distanceKm float64, eta time.Duration, err error)
}

type QuoteStore interface {
	Save(ctx context.Context, q *Quote, ttl time.Duration) error
	// Take returns the quote and removes it, so a quote backs at most one order.
	Take(ctx context.Context, id types.ID) (*Quote, error)
}

type Service struct {
	routes RouteEstimator
	store  QuoteStore
	ttl    time.Duration
	now    func() time.Time
}

func NewService(routes RouteEstimator, store QuoteStore, ttl time.Duration) *Service {
	return &Service{routes: routes, store: store, ttl: ttl, now: time.Now}
}

type QuoteCommand struct {
	PickupAddress  string
	DropoffAddress string
	Package        Package
}

func (s *Service) Quote(ctx context.Context, cmd QuoteCommand) (*Quote, error) {
	pickup := strings.TrimSpace(cmd.PickupAddress)
	dropoff := strings.TrimSpace(cmd.DropoffAddress)
	if pickup == "" || dropoff == "" {
		return nil, fmt.Errorf("%w: pickup and dropoff are required", ErrValidation)
	}
	pkg := cmd.Package
	if err := pkg.Normalize(); err != nil {
		return nil, err
	}
	if s.routes == nil {
		return nil, ErrRouteUnavailable
	}
	km, eta, err := s.routes.Estimate(ctx, pickup, dropoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	cost, err := ComputeCost(km, pkg.Weight, pkg.Fragile, pkg.Speed)
	if err != nil {
		return nil, err
	}
	q := &Quote{
		ID:             types.NewID(),
		PickupAddress:  pickup,
		DropoffAddress: dropoff,
		DistanceKm:     km,
		EtaMinutes:     int(math.Ceil(eta.Minutes())),
		Package:        pkg,
		Cost:           types.Round2(cost),
		ExpiresAt:      s.now().Add(s.ttl),
	}
	if err := s.store.Save(ctx, q, s.ttl); err != nil {
		return nil, fmt.Errorf("save quote: %w", err)
	}
	logger.Log.Debug("quote issued", zap.String("quote_id", q.ID.String()), zap.Float64("distance_km", km), zap.String("cost", q.Cost.StringFixed(2)))
	return q, nil
}

func (s *Service) Take(ctx context.Context, id types.ID) (*Quote, error) {
	q, err := s.store.Take(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.now().After(q.ExpiresAt) {
		return nil, ErrQuoteNotFound
	}
	return q, nil
}
