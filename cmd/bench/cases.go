// README: Bench cases; environment checks, invite and accept races, payment-gated lifecycles, cancel and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"courier/internal/infra"
	"courier/migrations"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	runID    string
	exchange int
	seq      atomic.Int64

	ready     bool
	admin     string
	customer  string
	customer2 string
	drivers   []string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:      cfg,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		runID:    fmt.Sprintf("%x", time.Now().UnixNano()),
		exchange: 200 + rand.IntN(800),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "order store reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "dsn not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "quote cache reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "embedded schema applied",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "dsn not configured"}
				}
				tables, err := migrations.Tables()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "API: health",
			Focus: "server reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				res, err := r.call(ctx, http.MethodGet, "/health", "", nil)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return expect(res, time.Since(start), http.StatusOK)
			},
		},
		{Name: "Setup: register admin, customers and drivers", Focus: "signup + invite elevation", Run: setupUsers},

		r.needsSetup("Invite: unknown code is invalid", func(ctx context.Context, r *Runner) Result {
			res, err := r.call(ctx, http.MethodPost, "/api/invites/validate", "", map[string]any{"code": "NOPE-" + r.runID})
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			if res.Status != http.StatusOK || res.Body["valid"] != false {
				return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d valid=%v", res.Status, res.Body["valid"])}
			}
			return Result{Status: "PASS"}
		}),
		r.needsSetup("Concurrency: invite code redeemed once", concurrentRedeem),

		r.needsSetup("Order: create (valid)", func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			res, err := r.call(ctx, http.MethodPost, "/api/orders", r.customer, orderBody("sender"))
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			return expect(res, time.Since(start), http.StatusCreated)
		}),
		r.needsSetup("Order: create (missing payment fields -> 400)", func(ctx context.Context, r *Runner) Result {
			body := orderBody("sender")
			delete(body, "payment_method")
			res, err := r.call(ctx, http.MethodPost, "/api/orders", r.customer, body)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			return expect(res, 0, http.StatusBadRequest)
		}),
		r.needsSetup("Order: customer cannot accept (-> 403)", func(ctx context.Context, r *Runner) Result {
			id, err := r.createOrder(ctx, "sender")
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			res, err := r.call(ctx, http.MethodPost, "/api/orders/"+id+"/accept", r.customer, nil)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			return expect(res, 0, http.StatusForbidden)
		}),
		r.needsSetup("Order: other customer cannot read (-> 403)", func(ctx context.Context, r *Runner) Result {
			id, err := r.createOrder(ctx, "sender")
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			res, err := r.call(ctx, http.MethodGet, "/api/orders/"+id, r.customer2, nil)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			return expect(res, 0, http.StatusForbidden)
		}),

		r.needsSetup("Concurrency: multi accept same order", concurrentAccept),

		r.needsSetup("Payment: sender pays before pickup", func(ctx context.Context, r *Runner) Result {
			return r.lifecycle(ctx, "sender", []step{
				{event: "pick_up", want: http.StatusConflict},
				{collect: true, want: http.StatusOK},
				{event: "pick_up", want: http.StatusOK},
				{event: "start_transit", want: http.StatusOK},
				{event: "deliver", want: http.StatusOK},
			})
		}),
		r.needsSetup("Payment: receiver pays before delivery", func(ctx context.Context, r *Runner) Result {
			return r.lifecycle(ctx, "receiver", []step{
				{event: "pick_up", want: http.StatusOK},
				{event: "deliver", want: http.StatusConflict},
				{collect: true, want: http.StatusOK},
				{event: "deliver", want: http.StatusOK},
			})
		}),
		r.needsSetup("Payment: collect is idempotent", func(ctx context.Context, r *Runner) Result {
			return r.lifecycle(ctx, "sender", []step{
				{collect: true, want: http.StatusOK},
				{collect: true, want: http.StatusOK},
				{events: "payment_collected", count: 1},
			})
		}),
		r.needsSetup("Cancel: customer cancels pending, then terminal", func(ctx context.Context, r *Runner) Result {
			id, err := r.createOrder(ctx, "receiver")
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			checks := []struct {
				path string
				body any
				want int
			}{
				{"/cancel", map[string]any{"reason": "bench"}, http.StatusOK},
				{"/cancel", nil, http.StatusConflict},
				{"/accept", nil, http.StatusConflict},
			}
			for i, c := range checks {
				token := r.customer
				if c.path == "/accept" {
					token = r.drivers[0]
				}
				res, err := r.call(ctx, http.MethodPost, "/api/orders/"+id+c.path, token, c.body)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if res.Status != c.want {
					return Result{Status: "FAIL", Note: fmt.Sprintf("step %d %s: status=%d want %d", i, c.path, res.Status, c.want)}
				}
			}
			return Result{Status: "PASS"}
		}),
		r.needsSetup("Concurrency: deliver vs cancel", deliverVsCancel),

		r.needsSetup("Perf: create order throughput", func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, "/api/orders", r.customer, orderBody("receiver"))
		}),
	}
}

func (r *Runner) needsSetup(name string, run func(ctx context.Context, r *Runner) Result) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			if !r.ready {
				return Result{Status: "SKIP", Note: "setup failed"}
			}
			return run(ctx, r)
		},
	}
}

type apiResponse struct {
	Status int
	Body   map[string]any
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (apiResponse, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apiResponse{}, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()
	out := apiResponse{Status: resp.StatusCode, Body: map[string]any{}}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out.Body)
	return out, nil
}

func expect(res apiResponse, latency time.Duration, want int) Result {
	note := fmt.Sprintf("status=%d", res.Status)
	if code, ok := res.Body["code"].(string); ok {
		note += " code=" + code
	}
	if res.Status == want {
		return Result{Status: "PASS", Latency: latency, Note: note}
	}
	return Result{Status: "FAIL", Latency: latency, Note: note}
}

func (r *Runner) token(uid string) (string, error) {
	if r.cfg.JWTSecret == "" {
		return "", errors.New("jwt secret not configured; start the server with COURIER_AUTH_MODE=jwt")
	}
	return infra.SignToken(r.cfg.JWTSecret, uid, "", time.Hour)
}

func (r *Runner) register(ctx context.Context, uid string) (string, error) {
	token, err := r.token(uid)
	if err != nil {
		return "", err
	}
	n := r.seq.Add(1)
	res, err := r.call(ctx, http.MethodPost, "/api/users/register", token, map[string]any{
		"full_name": "Bench " + uid,
		"email":     uid + "@bench.example.ca",
		"phone":     fmt.Sprintf("416%03d%04d", r.exchange, n%10000),
	})
	if err != nil {
		return "", err
	}
	if res.Status != http.StatusCreated && res.Status != http.StatusConflict {
		return "", fmt.Errorf("register %s: status=%d %v", uid, res.Status, res.Body["error"])
	}
	return token, nil
}

func (r *Runner) newInvite(ctx context.Context) (string, error) {
	code := fmt.Sprintf("BENCH-%s-%d", r.runID, r.seq.Add(1))
	res, err := r.call(ctx, http.MethodPost, "/api/admin/invites", r.admin, map[string]any{"code": code, "notes": "bench"})
	if err != nil {
		return "", err
	}
	if res.Status != http.StatusCreated {
		return "", fmt.Errorf("create invite: status=%d %v", res.Status, res.Body["error"])
	}
	return code, nil
}

func setupUsers(ctx context.Context, r *Runner) Result {
	start := time.Now()
	var err error
	if r.admin, err = r.register(ctx, r.cfg.AdminUID); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	res, err := r.call(ctx, http.MethodGet, "/api/users/me", r.admin, nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if res.Body["role"] != "admin" {
		return Result{Status: "FAIL", Note: fmt.Sprintf("%s is %v; add it to COURIER_ADMIN_UIDS", r.cfg.AdminUID, res.Body["role"])}
	}
	if r.customer, err = r.register(ctx, "cust-a-"+r.runID); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if r.customer2, err = r.register(ctx, "cust-b-"+r.runID); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for i := 0; i < r.cfg.Concurrency; i++ {
		token, err := r.register(ctx, fmt.Sprintf("drv-%d-%s", i, r.runID))
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		code, err := r.newInvite(ctx)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		res, err := r.call(ctx, http.MethodPost, "/api/users/me/invite", token, map[string]any{"code": code})
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if res.Status != http.StatusOK {
			return Result{Status: "FAIL", Note: fmt.Sprintf("redeem: status=%d", res.Status)}
		}
		r.drivers = append(r.drivers, token)
	}
	r.ready = true
	return Result{Status: "PASS", Latency: time.Since(start), Note: fmt.Sprintf("drivers=%d", len(r.drivers))}
}

func orderBody(responsibility string) map[string]any {
	return map[string]any{
		"pickup_address":         "100 Queen St W, Toronto, ON",
		"dropoff_address":        "55 Bloor St W, Toronto, ON",
		"distance_km":            10,
		"eta_minutes":            20,
		"package":                map[string]any{"size": "small", "weight": "<5kg", "speed": "standard"},
		"payment_responsibility": responsibility,
		"payment_method":         "cash",
	}
}

func (r *Runner) createOrder(ctx context.Context, responsibility string) (string, error) {
	res, err := r.call(ctx, http.MethodPost, "/api/orders", r.customer, orderBody(responsibility))
	if err != nil {
		return "", err
	}
	id, _ := res.Body["id"].(string)
	if res.Status != http.StatusCreated || id == "" {
		return "", fmt.Errorf("create order: status=%d %v", res.Status, res.Body["error"])
	}
	return id, nil
}

type step struct {
	event   string
	collect bool
	events  string
	count   int
	want    int
}

// lifecycle creates an order, lets the first driver accept it and walks the steps.
func (r *Runner) lifecycle(ctx context.Context, responsibility string, steps []step) Result {
	start := time.Now()
	id, err := r.createOrder(ctx, responsibility)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	driver := r.drivers[0]
	res, err := r.call(ctx, http.MethodPost, "/api/orders/"+id+"/accept", driver, nil)
	if err != nil || res.Status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("accept: status=%d err=%v", res.Status, err)}
	}
	cost := res.Body["cost"]

	for i, s := range steps {
		switch {
		case s.events != "":
			res, err = r.call(ctx, http.MethodGet, "/api/orders/"+id+"/events", r.customer, nil)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			n := 0
			list, _ := res.Body["events"].([]any)
			for _, e := range list {
				if m, ok := e.(map[string]any); ok && m["kind"] == s.events {
					n++
				}
			}
			if n != s.count {
				return Result{Status: "FAIL", Note: fmt.Sprintf("step %d: %d %s events, want %d", i, n, s.events, s.count)}
			}
			continue
		case s.collect:
			res, err = r.call(ctx, http.MethodPost, "/api/orders/"+id+"/payment/collect", driver, map[string]any{"amount": cost})
		default:
			body := map[string]any{"event": s.event}
			if s.event == "deliver" {
				body["photo_ref"] = "deliveries/" + id + ".jpg"
			}
			res, err = r.call(ctx, http.MethodPost, "/api/orders/"+id+"/status", driver, body)
		}
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if res.Status != s.want {
			return Result{Status: "FAIL", Note: fmt.Sprintf("step %d (%s collect=%v): status=%d want %d %v", i, s.event, s.collect, res.Status, s.want, res.Body["code"])}
		}
	}
	return Result{Status: "PASS", Latency: time.Since(start)}
}

// race fires fn from n goroutines released together and counts 2xx responses.
func race(n int, fn func(i int) (apiResponse, error)) (succ int, codes map[string]int) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	codes = map[string]int{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := fn(i)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				codes["transport_error"]++
			case res.Status >= 200 && res.Status < 300:
				succ++
			default:
				code, _ := res.Body["code"].(string)
				codes[code]++
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return succ, codes
}

func concurrentAccept(ctx context.Context, r *Runner) Result {
	id, err := r.createOrder(ctx, "receiver")
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	begin := time.Now()
	succ, codes := race(len(r.drivers), func(i int) (apiResponse, error) {
		return r.call(ctx, http.MethodPost, "/api/orders/"+id+"/accept", r.drivers[i], nil)
	})
	note := fmt.Sprintf("success=%d rejected=%v", succ, codes)
	if succ != 1 || codes["already_assigned"] != len(r.drivers)-1 {
		return Result{Status: "FAIL", Latency: time.Since(begin), Note: note}
	}
	return Result{Status: "PASS", Latency: time.Since(begin), Note: note}
}

func concurrentRedeem(ctx context.Context, r *Runner) Result {
	code, err := r.newInvite(ctx)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	n := r.cfg.Concurrency
	tokens := make([]string, n)
	for i := range tokens {
		if tokens[i], err = r.register(ctx, fmt.Sprintf("cand-%d-%s", i, r.runID)); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
	}
	begin := time.Now()
	succ, codes := race(n, func(i int) (apiResponse, error) {
		return r.call(ctx, http.MethodPost, "/api/users/me/invite", tokens[i], map[string]any{"code": code})
	})
	note := fmt.Sprintf("success=%d rejected=%v", succ, codes)
	if succ != 1 || codes["already_used"] != n-1 {
		return Result{Status: "FAIL", Latency: time.Since(begin), Note: note}
	}
	return Result{Status: "PASS", Latency: time.Since(begin), Note: note}
}

func deliverVsCancel(ctx context.Context, r *Runner) Result {
	id, err := r.createOrder(ctx, "sender")
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	driver := r.drivers[0]
	prep := []struct {
		path string
		body any
	}{
		{"/accept", nil},
		{"/payment/collect", map[string]any{"amount": "17.00"}},
		{"/status", map[string]any{"event": "pick_up"}},
		{"/status", map[string]any{"event": "start_transit"}},
	}
	for _, p := range prep {
		res, err := r.call(ctx, http.MethodPost, "/api/orders/"+id+p.path, driver, p.body)
		if err != nil || res.Status != http.StatusOK {
			return Result{Status: "FAIL", Note: fmt.Sprintf("prep %s: status=%d err=%v", p.path, res.Status, err)}
		}
	}
	succ, codes := race(2, func(i int) (apiResponse, error) {
		if i == 0 {
			return r.call(ctx, http.MethodPost, "/api/orders/"+id+"/status", driver, map[string]any{"event": "deliver"})
		}
		return r.call(ctx, http.MethodPost, "/api/orders/"+id+"/cancel", r.admin, map[string]any{"reason": "bench race"})
	})
	note := fmt.Sprintf("success=%d rejected=%v", succ, codes)
	if succ != 1 {
		return Result{Status: "FAIL", Note: note}
	}
	return Result{Status: "PASS", Note: note}
}

func perfLoad(ctx context.Context, r *Runner, path, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				res, err := r.call(ctx, http.MethodPost, path, token, payload)
				if err != nil || res.Status >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}
