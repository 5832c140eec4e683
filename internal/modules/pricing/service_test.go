// README: Cost formula, quote service and quote store tests.
package pricing

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"courier/internal/types"
)

func TestComputeCost(t *testing.T) {
	tests := []struct {
		name     string
		km       float64
		weight   string
		fragile  bool
		speed    string
		wantCost string
	}{
		{
			name:     "base only (5 + 10*1.2)",
			km:       10,
			weight:   "< 5kg",
			speed:    "Standard",
			wantCost: "17",
		},
		{
			// ((5+12)*1.5 + 5) * 1.5
			name:     "heavier, fragile, express",
			km:       10,
			weight:   "5–20kg",
			fragile:  true,
			speed:    "Express",
			wantCost: "45.75",
		},
		{
			name:     "zero distance",
			km:       0,
			weight:   "<5kg",
			speed:    "standard",
			wantCost: "5",
		},
		{
			name:     "same day uses rush multiplier",
			km:       2.5,
			weight:   "20-50kg",
			speed:    "Same-Day",
			wantCost: "24", // (5+3)*2 = 16, *1.5
		},
		{
			name:     "over 50kg fragile",
			km:       1,
			weight:   ">50kg",
			fragile:  true,
			speed:    "standard",
			wantCost: "23.6", // (5+1.2)*3 + 5
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWeight(tt.weight)
			if err != nil {
				t.Fatalf("parse weight: %v", err)
			}
			sp, err := ParseSpeed(tt.speed)
			if err != nil {
				t.Fatalf("parse speed: %v", err)
			}
			got, err := ComputeCost(tt.km, w, tt.fragile, sp)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			want := decimal.RequireFromString(tt.wantCost)
			if !got.Equal(want) {
				t.Errorf("ComputeCost() = %s, want %s", got, want)
			}
		})
	}
}

func TestComputeCost_Deterministic(t *testing.T) {
	a, _ := ComputeCost(7.3, Weight5To20, true, SpeedSameDay)
	b, _ := ComputeCost(7.3, Weight5To20, true, SpeedSameDay)
	if !a.Equal(b) {
		t.Fatalf("expected identical results, got %s and %s", a, b)
	}
}

func TestComputeCost_Rejects(t *testing.T) {
	if _, err := ComputeCost(-1, WeightUnder5, false, SpeedStandard); !errors.Is(err, ErrValidation) {
		t.Errorf("negative distance: expected ErrValidation, got %v", err)
	}
	if _, err := ComputeCost(1, Weight("heavy"), false, SpeedStandard); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown weight: expected ErrValidation, got %v", err)
	}
	if _, err := ComputeCost(1, WeightUnder5, false, Speed("teleport")); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown speed: expected ErrValidation, got %v", err)
	}
}

func TestParseEnums(t *testing.T) {
	if _, err := ParseSize("Huge"); err == nil {
		t.Error("expected error for unknown size")
	}
	if s, err := ParseSize(" Medium "); err != nil || s != SizeMedium {
		t.Errorf("ParseSize = %q, %v", s, err)
	}
	if w, err := ParseWeight("20 – 50 KG"); err != nil || w != Weight20To50 {
		t.Errorf("ParseWeight = %q, %v", w, err)
	}
	if sp, err := ParseSpeed("same day"); err != nil || sp != SpeedSameDay {
		t.Errorf("ParseSpeed = %q, %v", sp, err)
	}
}

type stubRoutes struct {
	km  float64
	eta time.Duration
	err error
}

func (s stubRoutes) Estimate(_ context.Context, _, _ string) (float64, time.Duration, error) {
	return s.km, s.eta, s.err
}

func TestService_QuoteAndTake(t *testing.T) {
	ctx := context.Background()
	svc := NewService(stubRoutes{km: 10, eta: 21*time.Minute + 10*time.Second}, NewMemoryQuoteStore(), time.Minute)

	q, err := svc.Quote(ctx, QuoteCommand{
		PickupAddress:  "100 Queen St W, Toronto",
		DropoffAddress: "1 Yonge St, Toronto",
		Package:        Package{Size: "small", Weight: "<5kg", Speed: "standard"},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Cost.Equal(decimal.NewFromInt(17)) {
		t.Errorf("cost = %s, want 17", q.Cost)
	}
	if q.EtaMinutes != 22 {
		t.Errorf("eta = %d, want 22", q.EtaMinutes)
	}

	got, err := svc.Take(ctx, q.ID)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if got.ID != q.ID {
		t.Fatalf("took %s, want %s", got.ID, q.ID)
	}
	if _, err := svc.Take(ctx, q.ID); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("second take: expected ErrQuoteNotFound, got %v", err)
	}
}

func TestService_QuoteExpired(t *testing.T) {
	ctx := context.Background()
	svc := NewService(stubRoutes{km: 1, eta: time.Minute}, NewMemoryQuoteStore(), time.Minute)
	q, err := svc.Quote(ctx, QuoteCommand{
		PickupAddress:  "a",
		DropoffAddress: "b",
		Package:        Package{Size: "small", Weight: "<5kg", Speed: "standard"},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := svc.Take(ctx, q.ID); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected ErrQuoteNotFound, got %v", err)
	}
}

func TestService_QuoteWithoutRoutes(t *testing.T) {
	svc := NewService(nil, NewMemoryQuoteStore(), time.Minute)
	_, err := svc.Quote(context.Background(), QuoteCommand{
		PickupAddress:  "a",
		DropoffAddress: "b",
		Package:        Package{Size: "small", Weight: "<5kg", Speed: "standard"},
	})
	if !errors.Is(err, ErrRouteUnavailable) {
		t.Fatalf("expected ErrRouteUnavailable, got %v", err)
	}
}

func TestRedisQuoteStore(t *testing.T) {
	addr := os.Getenv("COURIER_TEST_REDIS")
	if addr == "" {
		t.Skip("COURIER_TEST_REDIS not set; skipping redis quote store test")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisQuoteStore(client)
	q := &Quote{ID: types.NewID(), DistanceKm: 3, Cost: decimal.RequireFromString("8.60"), ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Save(ctx, q, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Take(ctx, q.ID)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if !got.Cost.Equal(q.Cost) {
		t.Errorf("cost = %s, want %s", got.Cost, q.Cost)
	}
	if _, err := store.Take(ctx, q.ID); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected ErrQuoteNotFound, got %v", err)
	}
}
