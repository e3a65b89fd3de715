package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tejith7/project-bolt/internal/config"
	"github.com/tejith7/project-bolt/internal/modules/pricing"
	"github.com/tejith7/project-bolt/internal/types"
)

// fakeClock fires timers only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	when    time.Time
	f       func()
	fired   bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running due timers in order on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type memArchive struct {
	mu      sync.Mutex
	rides   map[types.ID]Ride
	appends int
}

func newMemArchive() *memArchive {
	return &memArchive{rides: make(map[types.ID]Ride)}
}

func (a *memArchive) Append(_ context.Context, r Ride) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.rides[r.ID]; ok {
		return ErrDuplicate
	}
	a.rides[r.ID] = r
	a.appends++
	return nil
}

func (a *memArchive) get(id types.ID) (Ride, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rides[id]
	return r, ok
}

func (a *memArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appends
}

type stubPicker struct {
	driver Driver
	err    error
}

func (p *stubPicker) PickDriver(_ context.Context, _ Ride) (Driver, error) {
	return p.driver, p.err
}

// flakyStore fails the next n updates, or every update when always is set.
type flakyStore struct {
	*MemoryStore
	mu     sync.Mutex
	n      int
	always bool
}

var errStoreDown = errors.New("connection refused")

func (f *flakyStore) Update(ctx context.Context, r *Ride, prev int64) (bool, error) {
	f.mu.Lock()
	fail := f.always || f.n > 0
	if f.n > 0 {
		f.n--
	}
	f.mu.Unlock()
	if fail {
		return false, errStoreDown
	}
	return f.MemoryStore.Update(ctx, r, prev)
}

type harness struct {
	engine  *Engine
	store   *MemoryStore
	archive *memArchive
	clock   *fakeClock
	picker  *stubPicker
}

var (
	testPickup = types.Location{Address: "Market St, San Francisco", Lat: 37.7749, Lng: -122.4194}
	testDest   = types.Location{Address: "Embarcadero, San Francisco", Lat: 37.7899, Lng: -122.4034}
	autoDriver = Driver{ID: "sim-driver-1", Name: "Alex Rivera", Rating: 4.9, VehicleModel: "Toyota Camry", VehicleColor: "Silver", LicensePlate: "7ABC123"}
)

func testTimeline() config.TimelineConfig {
	return config.TimelineConfig{
		MatchDelay:   3 * time.Second,
		ArrivalDelay: 5 * time.Second,
		StartDelay:   4 * time.Second,
		TripMinute:   time.Second,
		RetryBase:    time.Millisecond,
		RetryMax:     4 * time.Millisecond,
	}
}

func testPricing() *pricing.Service {
	return pricing.NewService(nil, config.PricingConfig{
		BaseFare: 5, PerMile: 2.5, AvgSpeedMph: 30, Currency: "USD",
		Economy: 1, Comfort: 1.5, Premium: 2,
	}, nil)
}

func newHarness(t *testing.T, store Store) *harness {
	t.Helper()
	mem, _ := store.(*MemoryStore)
	if f, ok := store.(*flakyStore); ok {
		mem = f.MemoryStore
	}
	h := &harness{
		store:   mem,
		archive: newMemArchive(),
		clock:   newFakeClock(),
		picker:  &stubPicker{driver: autoDriver},
	}
	h.engine = NewEngine(EngineDeps{
		Store:    store,
		Pricing:  testPricing(),
		History:  h.archive,
		Drivers:  h.picker,
		Clock:    h.clock,
		Timeline: testTimeline(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.engine.Shutdown(ctx)
	})
	return h
}

func (h *harness) request(t *testing.T, rider types.ID) Ride {
	t.Helper()
	r, err := h.engine.Request(context.Background(), RequestCommand{
		RiderID:     rider,
		Pickup:      testPickup,
		Destination: testDest,
		Class:       pricing.ClassEconomy,
	})
	if err != nil {
		t.Fatalf("request ride: %v", err)
	}
	return r
}

func (h *harness) status(t *testing.T, id types.ID) Ride {
	t.Helper()
	r, err := h.engine.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	return r
}

// assertDriverInvariant checks that a driver is present exactly when the
// status implies one. Cancelled rides may carry the driver they had.
func assertDriverInvariant(t *testing.T, r Ride) {
	t.Helper()
	switch r.Status {
	case StatusPending, StatusSearching:
		if r.Driver != nil {
			t.Fatalf("%s ride has a driver", r.Status)
		}
	case StatusMatched, StatusPickup, StatusOngoing, StatusCompleted:
		if r.Driver == nil {
			t.Fatalf("%s ride has no driver", r.Status)
		}
	}
	if r.Status.Terminal() != (r.CompletedAt != nil) {
		t.Fatalf("completedAt mismatch for %s: %v", r.Status, r.CompletedAt)
	}
}

// newEngineOn builds an extra engine over a store another harness may share.
func newEngineOn(t *testing.T, store Store, clock *fakeClock, archive Archiver, events EventSink) *Engine {
	t.Helper()
	e := NewEngine(EngineDeps{
		Store:    store,
		Pricing:  testPricing(),
		History:  archive,
		Drivers:  &stubPicker{driver: autoDriver},
		Events:   events,
		Clock:    clock,
		Timeline: testTimeline(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

// downArchive fails every append until it is brought back up.
type downArchive struct {
	*memArchive
	mu   sync.Mutex
	down bool
}

func (a *downArchive) Append(ctx context.Context, r Ride) error {
	a.mu.Lock()
	down := a.down
	a.mu.Unlock()
	if down {
		return errStoreDown
	}
	return a.memArchive.Append(ctx, r)
}

func (a *downArchive) setDown(v bool) {
	a.mu.Lock()
	a.down = v
	a.mu.Unlock()
}

// stallSink blocks every publish until its context ends.
type stallSink struct {
	mu       sync.Mutex
	timedOut int
}

func (s *stallSink) Publish(ctx context.Context, _ Event, _ Ride) error {
	<-ctx.Done()
	s.mu.Lock()
	s.timedOut++
	s.mu.Unlock()
	return ctx.Err()
}

func (s *stallSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timedOut
}

// gatedStore lands inserts immediately but holds the insert call open until
// the gate is released.
type gatedStore struct {
	*MemoryStore
	inserted chan types.ID
	gate     chan struct{}
}

func (g *gatedStore) Insert(ctx context.Context, r *Ride) error {
	if err := g.MemoryStore.Insert(ctx, r); err != nil {
		return err
	}
	g.inserted <- r.ID
	<-g.gate
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
