package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/metrics"
	"option-sentinel/internal/models"
)

// Relay keeps the market data subscriptions aligned with the tracked
// instrument set. Ticks are observational: they feed logs and metrics,
// never decisions.
type Relay struct {
	streamer broker.Streamer
	tracker  *Tracker
	interval time.Duration
	log      zerolog.Logger
}

// NewRelay builds a relay over a streamer.
func NewRelay(streamer broker.Streamer, tracker *Tracker, interval time.Duration, log zerolog.Logger) *Relay {
	return &Relay{
		streamer: streamer,
		tracker:  tracker,
		interval: interval,
		log:      log,
	}
}

// Run connects the streamer and diffs subscriptions against the tracked
// set until ctx is cancelled. Remaining subscriptions are dropped and
// the streamer disconnected on exit.
func (r *Relay) Run(ctx context.Context) error {
	r.streamer.OnTick(func(tick models.Tick) {
		metrics.ObserveTick(tick.Timestamp)
		r.log.Debug().
			Str("instrument", tick.Instrument.String()).
			Float64("ltp", tick.LTP).
			Msg("tick")
	})
	r.streamer.OnError(func(err error) {
		r.log.Warn().Err(err).Msg("streamer error")
	})

	if err := r.streamer.Connect(ctx); err != nil {
		return err
	}

	subscribed := make(map[models.InstrumentKey]bool)
	defer func() {
		if len(subscribed) > 0 {
			r.streamer.UnsubscribeLTP(keysOf(subscribed))
		}
		r.streamer.Disconnect()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.diff(subscribed)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Relay) diff(subscribed map[models.InstrumentKey]bool) {
	desired := r.tracker.TrackedKeys()

	var toAdd, toRemove []models.InstrumentKey
	for key := range desired {
		if !subscribed[key] {
			toAdd = append(toAdd, key)
		}
	}
	for key := range subscribed {
		if !desired[key] {
			toRemove = append(toRemove, key)
		}
	}

	if len(toAdd) > 0 {
		if err := r.streamer.SubscribeLTP(toAdd); err != nil {
			r.log.Warn().Err(err).Msg("subscribe failed")
		}
		// Track regardless; a reconnect resubscribes.
		for _, key := range toAdd {
			subscribed[key] = true
		}
	}
	if len(toRemove) > 0 {
		if err := r.streamer.UnsubscribeLTP(toRemove); err != nil {
			r.log.Warn().Err(err).Msg("unsubscribe failed")
		}
		for _, key := range toRemove {
			delete(subscribed, key)
		}
	}
}

func keysOf(set map[models.InstrumentKey]bool) []models.InstrumentKey {
	keys := make([]models.InstrumentKey, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}
