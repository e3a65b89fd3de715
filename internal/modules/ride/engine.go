// README: Ride lifecycle engine; owns every active ride, drives the timeline and serializes transitions.
package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejith7/project-bolt/internal/config"
	"github.com/tejith7/project-bolt/internal/logger"
	"github.com/tejith7/project-bolt/internal/modules/pricing"
	"github.com/tejith7/project-bolt/internal/types"
)

// defaultEffectTimeout bounds one side effect (audit row, cache, event, archive attempt).
const defaultEffectTimeout = 2 * time.Second

var (
	ErrInvalidTransition = errors.New("invalid ride state transition")
	ErrNotFound          = errors.New("ride not found")
	ErrConflict          = errors.New("ride state conflict")
	ErrAlreadyMatched    = errors.New("ride already matched")
	ErrActiveRide        = errors.New("rider has an active ride")
	ErrBadRequest        = errors.New("bad request")
	ErrForbidden         = errors.New("forbidden")
	ErrEstimation        = errors.New("fare estimation failed")
	ErrSyncFailure       = errors.New("ride store unavailable")
	// ErrDuplicate is what an Archiver returns for a record it already holds.
	ErrDuplicate = errors.New("ride already archived")
)

type Quoter interface {
	Quote(ctx context.Context, pickup, destination types.Point, class pricing.RideClass) (pricing.Quote, error)
}

type Archiver interface {
	Append(ctx context.Context, r Ride) error
}

// DriverPicker supplies the driver for the automatic match.
type DriverPicker interface {
	PickDriver(ctx context.Context, r Ride) (Driver, error)
}

type EventSink interface {
	Publish(ctx context.Context, ev Event, r Ride) error
}

type SnapshotWriter interface {
	Put(ctx context.Context, r Ride) error
}

type EngineDeps struct {
	Store    Store
	Pricing  Quoter
	History  Archiver
	Drivers  DriverPicker
	Events   EventSink
	Cache    SnapshotWriter
	Clock    Clock
	Timeline config.TimelineConfig
	Log      logger.Logger
}

type RequestCommand struct {
	RiderID     types.ID
	Pickup      types.Location
	Destination types.Location
	Class       pricing.RideClass
}

type AcceptCommand struct {
	RideID types.ID
	Driver Driver
}

type CancelCommand struct {
	RideID  types.ID
	RiderID types.ID
	Reason  string
}

// slot is the single writer for one active ride. Writers hold mu; readers
// load snap and never block.
type slot struct {
	mu    sync.Mutex
	ride  Ride
	snap  atomic.Pointer[Ride]
	timer Timer
	done  bool
}

func (s *slot) publish() {
	c := s.ride.Clone()
	s.snap.Store(&c)
}

func (s *slot) snapshot() Ride {
	return s.snap.Load().Clone()
}

type Engine struct {
	store    Store
	pricing  Quoter
	history  Archiver
	drivers  DriverPicker
	events   EventSink
	cache    SnapshotWriter
	clock    Clock
	timeline config.TimelineConfig
	log      logger.Logger

	// effectTimeout bounds each side effect of a landed transition and the
	// caller's archive attempt.
	effectTimeout time.Duration

	mu       sync.Mutex
	slots    map[types.ID]*slot
	sessions map[types.ID]types.ID // rider -> active ride

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(deps EngineDeps) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Timeline == (config.TimelineConfig{}) {
		deps.Timeline = config.DefaultTimeline()
	}
	if deps.Timeline.RetryBase <= 0 {
		deps.Timeline.RetryBase = 10 * time.Millisecond
	}
	if deps.Timeline.RetryMax < deps.Timeline.RetryBase {
		deps.Timeline.RetryMax = deps.Timeline.RetryBase
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    deps.Store,
		pricing:  deps.Pricing,
		history:  deps.History,
		drivers:  deps.Drivers,
		events:   deps.Events,
		cache:    deps.Cache,
		clock:    deps.Clock,
		timeline: deps.Timeline,
		log:      deps.Log.Action("ride_engine"),
		slots:    make(map[types.ID]*slot),
		sessions: make(map[types.ID]types.ID),
		ctx:      ctx,
		cancel:   cancel,

		effectTimeout: defaultEffectTimeout,
	}
}

// Request quotes the trip, creates the ride and starts the search. It returns
// as soon as the ride is searching; matching happens later on the timeline.
func (e *Engine) Request(ctx context.Context, cmd RequestCommand) (Ride, error) {
	if cmd.RiderID == "" {
		return Ride{}, fmt.Errorf("%w: rider id required", ErrBadRequest)
	}
	if cmd.Class == "" {
		cmd.Class = pricing.ClassEconomy
	}
	quote, err := e.pricing.Quote(ctx, cmd.Pickup.Point(), cmd.Destination.Point(), cmd.Class)
	if errors.Is(err, pricing.ErrUnknownClass) {
		return Ride{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err != nil {
		return Ride{}, fmt.Errorf("%w: %w", ErrEstimation, err)
	}

	id := types.NewID()
	if err := e.reserve(cmd.RiderID, id); err != nil {
		return Ride{}, err
	}

	now := e.clock.Now()
	r := Ride{
		ID:                id,
		RiderID:           cmd.RiderID,
		Status:            StatusPending,
		Pickup:            cmd.Pickup,
		Destination:       cmd.Destination,
		Class:             cmd.Class,
		EstimatedDistance: quote.DistanceMi,
		EstimatedTime:     quote.TimeMin,
		EstimatedFare:     quote.Fare,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
	log := e.log.With("ride_id", id, "rider_id", cmd.RiderID)

	// The slot is owned before the row exists, so anyone who finds the ride
	// in the store waits on this slot instead of adopting a second one.
	s := &slot{ride: r}
	s.publish()
	s.mu.Lock()
	defer s.mu.Unlock()
	e.mu.Lock()
	e.slots[id] = s
	e.mu.Unlock()

	if err := e.retry(ctx, "insert", id, func(ctx context.Context) error {
		return e.store.Insert(ctx, &r)
	}); err != nil {
		s.done = true
		e.mu.Lock()
		if e.slots[id] == s {
			delete(e.slots, id)
		}
		e.mu.Unlock()
		e.release(cmd.RiderID, id)
		return Ride{}, err
	}
	e.record(ctx, "", r, Actor{Type: ActorRider, ID: cmd.RiderID})

	if err := e.apply(ctx, s, StatusSearching, Actor{Type: ActorSystem}, nil); err != nil {
		// The ride exists; the background timeline keeps retrying the promotion.
		log.Warn("search start deferred", "err", err)
		e.arm(s)
	}
	log.Info("ride requested", "status", s.ride.Status, "fare_cents", r.EstimatedFare.Amount)
	return s.ride.Clone(), nil
}

// Accept attaches driver to a ride that is still looking for one. When two
// drivers race, the first durable transition wins and the other caller gets
// ErrAlreadyMatched.
func (e *Engine) Accept(ctx context.Context, cmd AcceptCommand) (Ride, error) {
	if cmd.RideID == "" || cmd.Driver.ID == "" {
		return Ride{}, fmt.Errorf("%w: ride and driver required", ErrBadRequest)
	}
	s, err := e.acquire(ctx, cmd.RideID)
	if err != nil {
		return Ride{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ride.Status == StatusPending && !s.done {
		if err := e.apply(ctx, s, StatusSearching, Actor{Type: ActorSystem}, nil); err != nil && !errors.Is(err, ErrConflict) {
			return Ride{}, err
		}
	}
	if s.done || s.ride.Status != StatusSearching {
		return Ride{}, acceptError(s.ride.Status)
	}

	driver := cmd.Driver
	err = e.apply(ctx, s, StatusMatched, Actor{Type: ActorDriver, ID: driver.ID}, func(r *Ride) {
		r.Driver = &driver
	})
	if errors.Is(err, ErrConflict) {
		return Ride{}, acceptError(s.ride.Status)
	}
	if err != nil {
		return Ride{}, err
	}
	e.log.Info("ride accepted", "ride_id", cmd.RideID, "driver_id", driver.ID)
	return s.ride.Clone(), nil
}

func acceptError(st Status) error {
	switch st {
	case StatusMatched, StatusPickup, StatusOngoing, StatusCompleted:
		return ErrAlreadyMatched
	default:
		return fmt.Errorf("%w: cannot accept a %s ride", ErrInvalidTransition, st)
	}
}

// Cancel ends a ride before the driver arrives. Cancelling after a match keeps
// the driver on the archived record.
func (e *Engine) Cancel(ctx context.Context, cmd CancelCommand) (Ride, error) {
	if cmd.RideID == "" {
		return Ride{}, fmt.Errorf("%w: ride id required", ErrBadRequest)
	}
	s, err := e.acquire(ctx, cmd.RideID)
	if err != nil {
		return Ride{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.RiderID != "" && s.ride.RiderID != cmd.RiderID {
		return Ride{}, ErrForbidden
	}
	if s.done || !s.ride.Status.Cancellable() {
		return Ride{}, fmt.Errorf("%w: cannot cancel a %s ride", ErrInvalidTransition, s.ride.Status)
	}
	reason := cmd.Reason
	if reason == "" {
		reason = "rider_cancelled"
	}
	err = e.apply(ctx, s, StatusCancelled, Actor{Type: ActorRider, ID: s.ride.RiderID}, func(r *Ride) {
		r.CancelReason = reason
	})
	if errors.Is(err, ErrConflict) {
		return Ride{}, fmt.Errorf("%w: ride moved to %s", ErrInvalidTransition, s.ride.Status)
	}
	if err != nil {
		return Ride{}, err
	}
	e.log.Info("ride cancelled", "ride_id", cmd.RideID, "reason", reason)
	return s.ride.Clone(), nil
}

// Get returns the live snapshot of an active ride, or the stored record.
func (e *Engine) Get(ctx context.Context, id types.ID) (Ride, error) {
	if s := e.lookup(id); s != nil {
		return s.snapshot(), nil
	}
	r, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Ride{}, err
	}
	if err != nil {
		return Ride{}, fmt.Errorf("%w: %w", ErrSyncFailure, err)
	}
	return *r, nil
}

// Current returns the rider's active ride.
func (e *Engine) Current(ctx context.Context, riderID types.ID) (Ride, error) {
	e.mu.Lock()
	s := e.slots[e.sessions[riderID]]
	e.mu.Unlock()
	if s != nil {
		return s.snapshot(), nil
	}
	r, err := e.store.ActiveByRider(ctx, riderID)
	if errors.Is(err, ErrNotFound) {
		return Ride{}, err
	}
	if err != nil {
		return Ride{}, fmt.Errorf("%w: %w", ErrSyncFailure, err)
	}
	return *r, nil
}

// Resume adopts every stored non-terminal ride and re-arms its timeline.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	rides, err := e.store.List(ctx, ListFilter{Statuses: ActiveStatuses, Limit: 10000})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSyncFailure, err)
	}
	for _, r := range rides {
		e.adopt(r)
	}
	if len(rides) > 0 {
		e.log.Info("resumed active rides", "count", len(rides))
	}
	return len(rides), nil
}

// Shutdown stops every timer and waits for in-flight timeline callbacks.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()
	e.mu.Lock()
	slots := make([]*slot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.Unlock()
	for _, s := range slots {
		s.mu.Lock()
		e.stopTimer(s)
		s.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) reserve(riderID, id types.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.sessions[riderID]; busy {
		return ErrActiveRide
	}
	e.sessions[riderID] = id
	return nil
}

func (e *Engine) release(riderID, id types.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[riderID] == id {
		delete(e.sessions, riderID)
	}
}

func (e *Engine) lookup(id types.ID) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slots[id]
}

// acquire returns the slot for id, adopting the stored record when this
// engine does not own it yet. Terminal records come back as a detached,
// finished slot.
func (e *Engine) acquire(ctx context.Context, id types.ID) (*slot, error) {
	if s := e.lookup(id); s != nil {
		return s, nil
	}
	r, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyncFailure, err)
	}
	if r.Status.Terminal() {
		s := &slot{ride: *r, done: true}
		s.publish()
		return s, nil
	}
	return e.adopt(*r), nil
}

func (e *Engine) adopt(r Ride) *slot {
	e.mu.Lock()
	if s, ok := e.slots[r.ID]; ok {
		e.mu.Unlock()
		return s
	}
	s := &slot{ride: r}
	s.publish()
	e.slots[r.ID] = s
	if _, busy := e.sessions[r.RiderID]; !busy {
		e.sessions[r.RiderID] = r.ID
	}
	e.mu.Unlock()

	s.mu.Lock()
	e.arm(s)
	s.mu.Unlock()
	return s
}

// apply performs one guarded transition. Caller holds s.mu.
func (e *Engine) apply(ctx context.Context, s *slot, to Status, by Actor, mutate func(*Ride)) error {
	cur := s.ride
	if s.done || !CanTransition(cur.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
	}

	now := e.clock.Now()
	next := cur.Clone()
	next.Status = to
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	if mutate != nil {
		mutate(&next)
	}
	if to.Terminal() {
		next.CompletedAt = &now
	}

	err := e.retry(ctx, "update", cur.ID, func(ctx context.Context) error {
		ok, err := e.store.Update(ctx, &next, cur.Version)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		e.resync(ctx, s)
		return err
	}
	if err != nil {
		return err
	}

	s.ride = next
	s.publish()
	e.record(ctx, cur.Status, next, by)
	e.settle(ctx, s)
	return nil
}

// resync replaces the slot's view with the stored record after another
// writer got there first.
func (e *Engine) resync(ctx context.Context, s *slot) {
	fresh, err := e.store.Get(ctx, s.ride.ID)
	if err != nil {
		e.log.Warn("resync failed", "ride_id", s.ride.ID, "err", err)
		return
	}
	if fresh.Version <= s.ride.Version {
		return
	}
	s.ride = *fresh
	s.publish()
	e.settle(ctx, s)
}

func (e *Engine) settle(ctx context.Context, s *slot) {
	if s.ride.Status.Terminal() {
		e.finish(ctx, s)
		return
	}
	e.arm(s)
}

// finish archives a terminal ride and hands the rider's session back. The
// caller gets one archive attempt; when history is down the session is still
// released and the archive keeps retrying in the background.
func (e *Engine) finish(ctx context.Context, s *slot) {
	e.stopTimer(s)
	s.done = true
	r := s.ride.Clone()

	if e.history != nil {
		if err := e.archiveOnce(ctx, r); err != nil {
			e.log.Warn("archive deferred", "ride_id", r.ID, "err", err)
			e.archiveLater(r)
		}
	}

	e.mu.Lock()
	if e.slots[r.ID] == s {
		delete(e.slots, r.ID)
	}
	if e.sessions[r.RiderID] == r.ID {
		delete(e.sessions, r.RiderID)
	}
	e.mu.Unlock()
	e.log.Info("ride finished", "ride_id", r.ID, "status", r.Status)
}

func (e *Engine) archiveOnce(ctx context.Context, r Ride) error {
	ctx, cancel := context.WithTimeout(ctx, e.effectTimeout)
	defer cancel()
	err := e.history.Append(ctx, r.Clone())
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

func (e *Engine) archiveLater(r Ride) {
	if e.ctx.Err() != nil {
		e.log.Error("archive dropped at shutdown", e.ctx.Err(), "ride_id", r.ID)
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.retry(e.ctx, "archive", r.ID, func(ctx context.Context) error {
			return e.archiveOnce(ctx, r)
		})
		if err != nil {
			e.log.Error("archive failed", err, "ride_id", r.ID)
		}
	}()
}

// arm schedules the automatic next step for the slot's current status.
func (e *Engine) arm(s *slot) {
	e.stopTimer(s)
	r := s.ride
	var (
		delay time.Duration
		to    Status
	)
	switch r.Status {
	case StatusPending:
		to = StatusSearching
	case StatusSearching:
		delay, to = e.timeline.MatchDelay, StatusMatched
	case StatusMatched:
		delay, to = e.timeline.ArrivalDelay, StatusPickup
	case StatusPickup:
		delay, to = e.timeline.StartDelay, StatusOngoing
	case StatusOngoing:
		delay, to = time.Duration(r.EstimatedTime)*e.timeline.TripMinute, StatusCompleted
	default:
		return
	}
	// Adopted rides only wait out what is left of the step.
	if elapsed := e.clock.Now().Sub(r.UpdatedAt); elapsed > 0 {
		delay -= elapsed
	}
	if delay < 0 {
		delay = 0
	}
	e.schedule(s, delay, to)
}

func (e *Engine) schedule(s *slot, d time.Duration, to Status) {
	if e.ctx.Err() != nil {
		return
	}
	id, version := s.ride.ID, s.ride.Version
	e.wg.Add(1)
	s.timer = e.clock.AfterFunc(d, func() {
		defer e.wg.Done()
		e.advance(id, version, to)
	})
}

func (e *Engine) stopTimer(s *slot) {
	if s.timer == nil {
		return
	}
	if s.timer.Stop() {
		e.wg.Done()
	}
	s.timer = nil
}

// advance is the timer callback. It does nothing when the ride has moved on
// since the timer was armed.
func (e *Engine) advance(id types.ID, version int64, to Status) {
	if e.ctx.Err() != nil {
		return
	}
	s := e.lookup(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.ride.Version != version {
		return
	}
	log := e.log.With("ride_id", id, "to", to)

	var mutate func(*Ride)
	if to == StatusMatched {
		if e.drivers == nil {
			return
		}
		driver, err := e.drivers.PickDriver(e.ctx, s.ride.Clone())
		if err != nil {
			log.Warn("no driver picked, retrying", "err", err)
			s.timer = nil
			e.schedule(s, e.timeline.MatchDelay, to)
			return
		}
		mutate = func(r *Ride) { r.Driver = &driver }
	}

	s.timer = nil
	err := e.apply(e.ctx, s, to, Actor{Type: ActorSystem}, mutate)
	if err != nil && !errors.Is(err, ErrConflict) && e.ctx.Err() == nil {
		log.Error("timeline transition failed", err)
	}
}

// record fans a landed transition out to the audit trail, the observe cache
// and the event bus. None of these can undo the transition.
func (e *Engine) record(ctx context.Context, from Status, r Ride, by Actor) {
	ctx = context.WithoutCancel(ctx)
	bounded := func(fn func(context.Context) error) error {
		ctx, cancel := context.WithTimeout(ctx, e.effectTimeout)
		defer cancel()
		return fn(ctx)
	}
	ev := Event{
		RideID:     r.ID,
		FromStatus: from,
		ToStatus:   r.Status,
		ActorType:  by.Type,
		ActorID:    by.ID,
		Version:    r.Version,
		CreatedAt:  r.UpdatedAt,
	}
	if err := bounded(func(ctx context.Context) error { return e.store.AppendEvent(ctx, &ev) }); err != nil {
		e.log.Warn("append ride event failed", "ride_id", r.ID, "err", err)
	}
	if e.cache != nil {
		if err := bounded(func(ctx context.Context) error { return e.cache.Put(ctx, r.Clone()) }); err != nil {
			e.log.Warn("snapshot cache write failed", "ride_id", r.ID, "err", err)
		}
	}
	if e.events != nil {
		if err := bounded(func(ctx context.Context) error { return e.events.Publish(ctx, ev, r.Clone()) }); err != nil {
			e.log.Warn("publish ride event failed", "ride_id", r.ID, "err", err)
		}
	}
}

// retry runs fn until it succeeds, fails for a reason retrying cannot fix,
// or ctx ends. A store that stays down surfaces as ErrSyncFailure.
func (e *Engine) retry(ctx context.Context, op string, id types.ID, fn func(context.Context) error) error {
	delay := e.timeline.RetryBase
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || permanent(err) {
			return err
		}
		e.log.Warn("store write failed", "op", op, "ride_id", id, "attempt", attempt, "err", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %s: %w", ErrSyncFailure, op, err)
		case <-t.C:
		}
		delay = min(delay*2, e.timeline.RetryMax)
	}
}

func permanent(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrActiveRide) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadRequest)
}
