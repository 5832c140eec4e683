// README: In-process order store with the same compare-and-swap contract as PostgresStore.
package order

import (
	"context"
	"sort"
	"strings"
	"sync"

	"courier/internal/types"
)

type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[types.ID]*Order
	events  map[types.ID][]Event
	eventID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[types.ID]*Order),
		events: make(map[types.ID][]Event),
	}
}

func (s *MemoryStore) Create(_ context.Context, o *Order, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrConflict
	}
	s.orders[o.ID] = o.Clone()
	s.appendLocked(ev)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, o *Order, expectedVersion int, ev *Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	next := o.Clone()
	// Identity and the commercial snapshot are immutable.
	next.CustomerID = cur.CustomerID
	next.PickupAddress = cur.PickupAddress
	next.DropoffAddress = cur.DropoffAddress
	next.DistanceKm = cur.DistanceKm
	next.EtaMinutes = cur.EtaMinutes
	next.Package = cur.Package
	next.Cost = cur.Cost
	next.PaymentResponsibility = cur.PaymentResponsibility
	next.PaymentMethod = cur.PaymentMethod
	next.CreatedAt = cur.CreatedAt
	next.Version = expectedVersion + 1
	s.orders[o.ID] = next
	s.appendLocked(ev)
	o.Version = next.Version
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Order, error) {
	s.mu.RLock()
	out := make([]*Order, 0)
	for _, o := range s.orders {
		if f.matches(o) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return f.less(out[i], out[j]) })
	if f.Offset >= len(out) {
		return []*Order{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Events(_ context.Context, id types.ID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.events[id]
	out := make([]Event, len(evs))
	copy(out, evs)
	return out, nil
}

func (s *MemoryStore) appendLocked(ev *Event) {
	if ev == nil {
		return
	}
	s.eventID++
	ev.ID = s.eventID
	s.events[ev.OrderID] = append(s.events[ev.OrderID], *ev)
}

func (f Filter) matches(o *Order) bool {
	if f.CustomerID != nil && o.CustomerID != *f.CustomerID {
		return false
	}
	if f.DriverID != nil && !o.HasDriver(*f.DriverID) {
		return false
	}
	if f.Unassigned && o.DriverID != nil {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if o.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		fields := []string{string(o.ID), string(o.CustomerID), o.PickupAddress, o.DropoffAddress}
		hit := false
		for _, v := range fields {
			if strings.Contains(strings.ToLower(v), q) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (f Filter) less(a, b *Order) bool {
	switch f.Sort {
	case SortCreatedAsc:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	case SortCostDesc:
		if c := a.Cost.Cmp(b.Cost); c != 0 {
			return c > 0
		}
	case SortCostAsc:
		if c := a.Cost.Cmp(b.Cost); c != 0 {
			return c < 0
		}
	case SortDistanceAsc:
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
