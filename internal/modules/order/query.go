// README: Read-only order projections (mine, available, active, completed, all) with search and sort.
package order

import (
	"context"
	"fmt"
	"strings"

	"courier/internal/types"
)

type Scope string

const (
	ScopeMine      Scope = "mine"
	ScopeAvailable Scope = "available"
	ScopeActive    Scope = "active"
	ScopeCompleted Scope = "completed"
	ScopeAll       Scope = "all"
)

type Sort string

const (
	SortCreatedDesc Sort = "created_desc"
	SortCreatedAsc  Sort = "created_asc"
	SortCostDesc    Sort = "cost_desc"
	SortCostAsc     Sort = "cost_asc"
	SortDistanceAsc Sort = "distance_asc"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Filter is the store-level query.
type Filter struct {
	CustomerID *types.ID
	DriverID   *types.ID
	Statuses   []Status
	Unassigned bool
	Search     string
	Sort       Sort
	Limit      int
	Offset     int
}

type ListQuery struct {
	Actor    Actor
	Scope    Scope
	Statuses []Status
	Search   string
	Sort     Sort
	Limit    int
	Offset   int
}

var (
	inFlight    = []Status{StatusAssigned, StatusPickedUp, StatusInTransit}
	nonTerminal = []Status{StatusPending, StatusAssigned, StatusPickedUp, StatusInTransit}
)

func (s *Service) List(ctx context.Context, q ListQuery) ([]*Order, error) {
	actor, err := s.resolve(ctx, q.Actor)
	if err != nil {
		return nil, err
	}
	f, err := buildFilter(actor, q)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return []*Order{}, nil
	}
	return s.store.List(ctx, *f)
}

// buildFilter scopes the query to what the actor may see. A nil filter means
// the requested statuses cannot match anything in the scope.
func buildFilter(a Actor, q ListQuery) (*Filter, error) {
	switch q.Sort {
	case "":
		q.Sort = SortCreatedDesc
	case SortCreatedDesc, SortCreatedAsc, SortCostDesc, SortCostAsc, SortDistanceAsc:
	default:
		return nil, invalid("sort", "unknown sort %q", q.Sort)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, invalid("limit", "limit and offset must not be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Scope == "" {
		q.Scope = ScopeMine
		if a.Role == types.RoleAdmin {
			q.Scope = ScopeAll
		}
	}

	f := &Filter{Search: strings.TrimSpace(q.Search), Sort: q.Sort, Limit: q.Limit, Offset: q.Offset}
	self := a.ID
	var scoped []Status

	switch a.Role {
	case types.RoleAdmin:
		switch q.Scope {
		case ScopeAll, ScopeMine:
		case ScopeAvailable:
			scoped, f.Unassigned = []Status{StatusPending}, true
		case ScopeActive:
			scoped = inFlight
		case ScopeCompleted:
			scoped = []Status{StatusDelivered}
		default:
			return nil, invalid("scope", "unknown scope %q", q.Scope)
		}
	case types.RoleDriver:
		switch q.Scope {
		case ScopeMine:
			f.DriverID = &self
		case ScopeAvailable:
			scoped, f.Unassigned = []Status{StatusPending}, true
		case ScopeActive:
			f.DriverID, scoped = &self, inFlight
		case ScopeCompleted:
			f.DriverID, scoped = &self, []Status{StatusDelivered}
		case ScopeAll:
			return nil, fmt.Errorf("%w: scope all is admin only", ErrForbidden)
		default:
			return nil, invalid("scope", "unknown scope %q", q.Scope)
		}
	case types.RoleCustomer:
		switch q.Scope {
		case ScopeMine:
			f.CustomerID = &self
		case ScopeActive:
			f.CustomerID, scoped = &self, nonTerminal
		case ScopeCompleted:
			f.CustomerID, scoped = &self, []Status{StatusDelivered}
		case ScopeAvailable, ScopeAll:
			return nil, fmt.Errorf("%w: scope %s is not available to customers", ErrForbidden, q.Scope)
		default:
			return nil, invalid("scope", "unknown scope %q", q.Scope)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role", ErrForbidden)
	}

	f.Statuses = intersect(scoped, q.Statuses)
	if len(scoped) > 0 && len(q.Statuses) > 0 && len(f.Statuses) == 0 {
		return nil, nil
	}
	return f, nil
}

func intersect(scoped, requested []Status) []Status {
	if len(scoped) == 0 {
		return requested
	}
	if len(requested) == 0 {
		return scoped
	}
	var out []Status
	for _, r := range requested {
		for _, s := range scoped {
			if r == s {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
