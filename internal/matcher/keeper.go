package matcher

import (
	"context"
	"errors"
	"time"

	"p2pswap/internal/logging"
	"p2pswap/internal/types"
)

// Keeper periodically pushes expired intents into the venue.
type Keeper struct {
	svc      Service
	caller   types.Address
	interval time.Duration
	logger   logging.Logger
	now      func() uint64
}

// NewKeeper creates a keeper that acts as caller.
func NewKeeper(svc Service, caller types.Address, interval time.Duration, logger logging.Logger) *Keeper {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Keeper{
		svc:      svc,
		caller:   caller,
		interval: interval,
		logger:   logger,
		now:      func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetNowFunc overrides the clock used to list expired intents.
func (k *Keeper) SetNowFunc(now func() uint64) {
	if now != nil {
		k.now = now
	}
}

// Run sweeps on every tick until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.Infof("Keeper started: caller=%s interval=%v", k.caller.Hex(), k.interval)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Keeper stopped")
			return ctx.Err()
		case <-ticker.C:
			k.Sweep(ctx)
		}
	}
}

// Sweep executes every currently expired intent and returns how many went
// through. Failures are logged; the intent is retried on the next sweep.
func (k *Keeper) Sweep(ctx context.Context) int {
	expired := k.svc.ExpiredIntents(k.now())
	done := 0
	for _, in := range expired {
		if ctx.Err() != nil {
			break
		}
		_, err := k.svc.ExecuteViaAMM(ctx, k.caller, in.ID)
		switch {
		case err == nil:
			done++
		case errors.Is(err, ErrIntentProcessed), errors.Is(err, ErrIntentInactive):
			// Matched or cancelled since the listing.
		default:
			k.logger.Warnf("Keeper fallback for %s failed: %v", in.ID.Hex(), err)
		}
	}
	if len(expired) > 0 {
		k.logger.Infof("Keeper sweep: %d expired, %d executed", len(expired), done)
	}
	return done
}
