// README: Bench scenarios: environment checks, profile/quote/ride flows, timeline observe, cancel, accept race and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tejith7/project-bolt/internal/infra"
	"github.com/tejith7/project-bolt/internal/modules/dispatch"
	"github.com/tejith7/project-bolt/internal/modules/ride"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	auth  *infra.JWTAuth

	run    string // per-run suffix so repeated runs never collide on rider sessions
	rider  string
	driver string
	rideID string
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

func NewRunner(cfg Config) (*Runner, error) {
	auth, err := infra.NewJWTAuth(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("bench needs the server's jwt secret: %w", err)
	}
	run := uuid.NewString()[:8]
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		auth:   auth,
		run:    run,
		rider:  "bench-rider-" + run,
		driver: "bench-driver-" + run,
	}, nil
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

var (
	pickup      = map[string]any{"address": "Market St & 5th", "lat": 37.7840, "lng": -122.4075}
	destination = map[string]any{"address": "Ferry Building", "lat": 37.7955, "lng": -122.3937}
)

func rideBody(class string) map[string]any {
	return map[string]any{"pickup": pickup, "destination": destination, "class": class}
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "DB reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
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
			Focus: "Redis reachable (optional for the server)",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "PENDING", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "Apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				if err := infra.ApplyMigrations(ctx, r.db, r.cfg.MigrationDir); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "Every table in the migrations is present",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationDir)
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
				return Result{Status: "PASS", Note: fmt.Sprintf("%d tables", len(tables))}
			},
		},
		httpCase("API: health", http.MethodGet, "/health", "", "", nil, 200),
		httpCase("Auth: missing token -> 401", http.MethodGet, "/api/me", "", "", nil, 401),

		// Profiles
		httpCase("Profile: register rider", http.MethodPut, "/api/me", r.rider, "rider", map[string]any{
			"name": "Bench Rider", "email": r.rider + "@example.com", "role": "rider",
		}, 200),
		httpCase("Profile: register driver", http.MethodPut, "/api/me", r.driver, "driver", map[string]any{
			"name": "Bench Driver", "role": "driver",
			"vehicle": map[string]any{"model": "Toyota Prius", "color": "Gray", "license_plate": "BENCH1"},
		}, 200),
		httpCase("Profile: driver without plate -> 400", http.MethodPut, "/api/me", "bench-noplate-"+r.run, "driver", map[string]any{
			"name": "No Plate", "role": "driver",
		}, 400),

		// Quotes
		{
			Name:  "Quote: all classes",
			Focus: "economy, comfort and premium quoted for one trip",
			Run: func(ctx context.Context, r *Runner) Result {
				var out struct {
					Quotes []struct {
						ID   string `json:"id"`
						Fare struct {
							Amount int64 `json:"amount"`
						} `json:"fare"`
					} `json:"quotes"`
				}
				status, lat, err := r.call(ctx, http.MethodPost, "/api/quotes", r.rider, "rider", map[string]any{"pickup": pickup, "destination": destination}, &out)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK || len(out.Quotes) < 3 {
					return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d quotes=%d", status, len(out.Quotes))}
				}
				for i := 1; i < len(out.Quotes); i++ {
					if out.Quotes[i].Fare.Amount < out.Quotes[i-1].Fare.Amount {
						return Result{Status: "FAIL", Latency: lat, Note: "fares not ordered by class"}
					}
				}
				return Result{Status: "PASS", Latency: lat}
			},
		},
		httpCase("Quote: unknown class -> 400", http.MethodPost, "/api/quotes", r.rider, "rider", rideBody("helicopter"), 400),

		// Ride lifecycle
		httpCase("Ride: missing coordinates -> 400", http.MethodPost, "/api/rides", r.rider, "rider", map[string]any{"class": "economy"}, 400),
		{
			Name:  "Ride: request",
			Focus: "201 with a searching ride and a fare",
			Run: func(ctx context.Context, r *Runner) Result {
				var got ride.Ride
				status, lat, err := r.call(ctx, http.MethodPost, "/api/rides", r.rider, "rider", rideBody("economy"), &got)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusCreated || got.Status != ride.StatusSearching || got.EstimatedFare.Amount <= 0 {
					return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d ride=%s", status, got.Status)}
				}
				r.rideID = string(got.ID)
				return Result{Status: "PASS", Latency: lat, Note: "ride=" + r.rideID}
			},
		},
		httpCase("Ride: second active ride -> 409", http.MethodPost, "/api/rides", r.rider, "rider", rideBody("economy"), 409),
		httpCase("Ride: rider on driver route -> 403", http.MethodGet, "/api/driver/rides/pending", r.rider, "rider", nil, 403),
		httpCase("Dispatch: driver lists pending", http.MethodGet, "/api/driver/rides/pending?lat=37.784&lng=-122.4075", r.driver, "driver", nil, 200),
		{
			Name:  "Timeline: observe until completed",
			Focus: "versions never go backwards and every status is reached in order",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.observeTimeline(ctx)
			},
		},
		{
			Name:  "History: completed ride archived",
			Focus: "history lists the finished ride",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.historyContains(ctx, r.rider, "rider", r.rideID)
			},
		},

		// Cancel flow
		{
			Name:  "Cancel: rider cancels while searching",
			Focus: "cancelled, archived, second cancel rejected",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.cancelFlow(ctx)
			},
		},

		// Concurrency
		{
			Name:  "Concurrency: many drivers accept one ride",
			Focus: "exactly one accept wins",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.acceptRace(ctx)
			},
		},

		// Performance
		{
			Name:  "Perf: quote throughput",
			Focus: "sustained quote requests",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.perfLoad(ctx, "/api/quotes", map[string]any{"pickup": pickup, "destination": destination})
			},
		},
	}
}

func (r *Runner) token(uid, role string) (string, error) {
	return r.auth.Issue(uid, role, time.Hour)
}

// call sends one authenticated JSON request; uid "" sends no token. out may be nil.
func (r *Runner) call(ctx context.Context, method, path, uid, role string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		tok, err := r.token(uid, role)
		if err != nil {
			return 0, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, fmt.Errorf("decode: %w", err)
		}
		return resp.StatusCode, latency, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

func httpCase(name, method, path, uid, role string, body any, want int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			status, latency, err := r.call(ctx, method, path, uid, role, body, nil)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			if status == want {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			}
			if status == http.StatusNotImplemented {
				return Result{Status: "PENDING", Latency: latency, Note: "not implemented"}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
		},
	}
}

var timelineOrder = map[ride.Status]int{
	ride.StatusPending:   0,
	ride.StatusSearching: 1,
	ride.StatusMatched:   2,
	ride.StatusPickup:    3,
	ride.StatusOngoing:   4,
	ride.StatusCompleted: 5,
}

func (r *Runner) observeTimeline(ctx context.Context) Result {
	if r.rideID == "" {
		return Result{Status: "SKIP", Note: "no ride requested"}
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RideTimeout)
	defer cancel()

	var last ride.Ride
	seen := 0
	start := time.Now()
	err := dispatch.PollEvery(ctx, r.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		var got ride.Ride
		status, _, err := r.call(ctx, http.MethodGet, "/api/rides/"+r.rideID, r.rider, "rider", nil, &got)
		if err != nil {
			return false, err
		}
		if status == http.StatusServiceUnavailable {
			return false, nil
		}
		if status != http.StatusOK {
			return false, fmt.Errorf("observe status=%d", status)
		}
		if got.Version < last.Version {
			return false, fmt.Errorf("version went backwards: %d after %d", got.Version, last.Version)
		}
		if timelineOrder[got.Status] < timelineOrder[last.Status] {
			return false, fmt.Errorf("status went backwards: %s after %s", got.Status, last.Status)
		}
		if got.Status != last.Status {
			seen++
		}
		if got.Status.Terminal() {
			last = got
			return true, nil
		}
		last = got
		return false, nil
	})
	elapsed := time.Since(start)
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Status: "PENDING", Latency: elapsed, Note: fmt.Sprintf("still %s; lower BOLT_TRIP_MINUTE on the server", last.Status)}
	}
	if err != nil {
		return Result{Status: "FAIL", Latency: elapsed, Note: err.Error()}
	}
	if last.Status != ride.StatusCompleted || last.Driver == nil || last.CompletedAt == nil {
		return Result{Status: "FAIL", Latency: elapsed, Note: fmt.Sprintf("ended %s driver=%v", last.Status, last.Driver != nil)}
	}
	return Result{Status: "PASS", Latency: elapsed, Note: fmt.Sprintf("statuses=%d version=%d", seen, last.Version)}
}

func (r *Runner) historyContains(ctx context.Context, uid, role, rideID string) Result {
	if rideID == "" {
		return Result{Status: "SKIP", Note: "no ride"}
	}
	var out struct {
		Rides []ride.Ride `json:"rides"`
	}
	status, lat, err := r.call(ctx, http.MethodGet, "/api/history?window=today", uid, role, nil, &out)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d", status)}
	}
	for _, h := range out.Rides {
		if string(h.ID) == rideID {
			return Result{Status: "PASS", Latency: lat, Note: string(h.Status)}
		}
	}
	return Result{Status: "PENDING", Latency: lat, Note: "ride not archived yet"}
}

func (r *Runner) cancelFlow(ctx context.Context) Result {
	rider := "bench-cancel-" + r.run
	if status, _, err := r.call(ctx, http.MethodPut, "/api/me", rider, "rider", map[string]any{"name": "Cancel Rider"}, nil); err != nil || status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("register status=%d err=%v", status, err)}
	}
	var created ride.Ride
	status, _, err := r.call(ctx, http.MethodPost, "/api/rides", rider, "rider", rideBody("comfort"), &created)
	if err != nil || status != http.StatusCreated {
		return Result{Status: "FAIL", Note: fmt.Sprintf("request status=%d err=%v", status, err)}
	}
	var cancelled ride.Ride
	path := "/api/rides/" + string(created.ID) + "/cancel"
	status, lat, err := r.call(ctx, http.MethodPost, path, rider, "rider", map[string]any{"reason": "changed plans"}, &cancelled)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK || cancelled.Status != ride.StatusCancelled {
		// The match timer can beat a slow client; cancel still has to land.
		return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d ride=%s", status, cancelled.Status)}
	}
	if status, _, _ := r.call(ctx, http.MethodPost, path, rider, "rider", nil, nil); status != http.StatusConflict {
		return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("second cancel status=%d", status)}
	}
	var current struct {
		Ride *ride.Ride `json:"ride"`
	}
	if _, _, err := r.call(ctx, http.MethodGet, "/api/rides/current", rider, "rider", nil, &current); err != nil || current.Ride != nil {
		return Result{Status: "FAIL", Latency: lat, Note: "session not cleared after cancel"}
	}
	if res := r.historyContains(ctx, rider, "rider", string(created.ID)); res.Status != "PASS" {
		return Result{Status: res.Status, Latency: lat, Note: "history: " + res.Note}
	}
	return Result{Status: "PASS", Latency: lat}
}

func (r *Runner) acceptRace(ctx context.Context) Result {
	drivers := make([]string, r.cfg.Concurrency)
	for i := range drivers {
		drivers[i] = fmt.Sprintf("bench-race-%s-%d", r.run, i)
		status, _, err := r.call(ctx, http.MethodPut, "/api/me", drivers[i], "driver", map[string]any{
			"name": "Racer", "role": "driver",
			"vehicle": map[string]any{"model": "Kia Niro", "color": "Red", "license_plate": fmt.Sprintf("RACE%d", i)},
		}, nil)
		if err != nil || status != http.StatusOK {
			return Result{Status: "FAIL", Note: fmt.Sprintf("register driver status=%d err=%v", status, err)}
		}
	}
	rider := "bench-race-rider-" + r.run
	var created ride.Ride
	status, _, err := r.call(ctx, http.MethodPost, "/api/rides", rider, "rider", rideBody("economy"), &created)
	if err != nil || status != http.StatusCreated {
		return Result{Status: "FAIL", Note: fmt.Sprintf("request status=%d err=%v", status, err)}
	}

	path := "/api/driver/rides/" + string(created.ID) + "/accept"
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     []string
		conflict int
		other    []int
	)
	gate := make(chan struct{})
	for _, d := range drivers {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			<-gate
			status, _, err := r.call(ctx, http.MethodPost, path, d, "driver", nil, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other = append(other, 0)
			case status == http.StatusOK:
				wins = append(wins, d)
			case status == http.StatusConflict:
				conflict++
			default:
				other = append(other, status)
			}
		}(d)
	}
	start := time.Now()
	close(gate)
	wg.Wait()
	lat := time.Since(start)

	// Leave nothing behind for the next run.
	_, _, _ = r.call(ctx, http.MethodPost, "/api/rides/"+string(created.ID)+"/cancel", rider, "rider", nil, nil)

	if len(other) > 0 {
		return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("unexpected statuses %v", other)}
	}
	switch len(wins) {
	case 1:
		return Result{Status: "PASS", Latency: lat, Note: fmt.Sprintf("winner=%s conflicts=%d", wins[0], conflict)}
	case 0:
		return Result{Status: "PENDING", Latency: lat, Note: "auto-match won before any driver; raise BOLT_MATCH_DELAY"}
	default:
		return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("%d drivers won", len(wins))}
	}
}

func (r *Runner) perfLoad(ctx context.Context, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, http.MethodPost, path, r.rider, "rider", payload, nil)
				mu.Lock()
				if err != nil || status != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

var createTable = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, m := range createTable.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables found under %s", dir)
	}
	return tables, nil
}
