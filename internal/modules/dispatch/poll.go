// README: Fixed-interval pollers used by clients to follow a ride or the pending queue.
package dispatch

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

const defaultPollInterval = 3 * time.Second

// PollEvery runs fn now and then once per interval until it reports done,
// returns an error, or ctx ends.
func PollEvery(ctx context.Context, interval time.Duration, fn func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		done, err := fn(ctx)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// transient errors are retried on the next tick.
func transient(err error) bool {
	return errors.Is(err, ride.ErrNotFound) || errors.Is(err, ride.ErrSyncFailure)
}

// Watch delivers each newer version of the ride to onChange and returns nil
// once a terminal state has been delivered.
func (s *Synchronizer) Watch(ctx context.Context, id types.ID, onChange func(ride.Ride)) error {
	var last int64
	return PollEvery(ctx, s.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		r, err := s.Observe(ctx, id)
		if transient(err) {
			s.log.Debug("watch read failed, retrying", "ride_id", id, "err", err)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if r.Version <= last {
			return false, nil
		}
		last = r.Version
		onChange(r)
		return r.Status.Terminal(), nil
	})
}

// WatchPending delivers the pending list whenever its contents change. It
// runs until ctx ends.
func (s *Synchronizer) WatchPending(ctx context.Context, q PendingQuery, onChange func([]Offer)) error {
	var last []string
	first := true
	return PollEvery(ctx, s.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		offers, err := s.ListPending(ctx, q)
		if transient(err) {
			s.log.Debug("pending read failed, retrying", "err", err)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		keys := offerKeys(offers)
		if first || !slices.Equal(keys, last) {
			first = false
			last = keys
			onChange(offers)
		}
		return false, nil
	})
}

func offerKeys(offers []Offer) []string {
	keys := make([]string, len(offers))
	for i, o := range offers {
		keys[i] = string(o.Ride.ID) + "@" + string(o.Ride.Status)
	}
	return keys
}
