package engine

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/config"
	"option-sentinel/internal/feed"
	"option-sentinel/internal/ledger"
	"option-sentinel/internal/logging"
	"option-sentinel/internal/metrics"
	"option-sentinel/internal/models"
	"option-sentinel/pkg/utils"
)

// Engine drives the reconciliation cycle: snapshot positions and open
// orders, reconstruct cost basis from executions, and enforce the
// one-protective-SELL invariant per net-long option position.
type Engine struct {
	cfg     *config.Config
	client  broker.Client
	reader  *feed.Reader
	norm    *feed.Normalizer
	execLog *feed.ExecutionLog
	tracker *Tracker
	scope   feed.Scope
	log     zerolog.Logger

	now func() time.Time
}

// New builds an engine on a broker client.
func New(cfg *config.Config, client broker.Client, log zerolog.Logger) *Engine {
	scope := feed.NewScope(cfg.Engine.Exchanges, cfg.Engine.Products)
	dedup := feed.NewDedupCache(cfg.Costing.DedupCapacity)
	return &Engine{
		cfg:     cfg,
		client:  client,
		reader:  feed.NewReader(client, scope, log),
		norm:    feed.NewNormalizer(client, dedup, log),
		execLog: feed.NewExecutionLog(),
		tracker: NewTracker(),
		scope:   scope,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Tracker exposes the state tracker, used by the subscription relay.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Run executes reconciliation cycles until ctx is cancelled. Open
// protective orders are left standing on shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().
		Dur("cycle", e.cfg.Engine.CycleInterval).
		Strs("exchanges", e.cfg.Engine.Exchanges).
		Msg("supervisor started")

	ticker := time.NewTicker(e.cfg.Engine.CycleInterval)
	defer ticker.Stop()

	lastSummary := e.now()
	for {
		e.cycle(ctx)
		metrics.IncCycle()
		metrics.SetTracked(e.tracker.TrackedCount())

		if e.now().Sub(lastSummary) >= e.cfg.Engine.SummaryInterval {
			e.logSummary()
			lastSummary = e.now()
		}

		select {
		case <-ctx.Done():
			e.log.Info().Msg("supervisor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	// A bad cycle must never take the supervisor down.
	defer func() {
		if r := recover(); r != nil {
			metrics.IncCycleError()
			e.log.Error().Interface("panic", r).Msg("cycle panicked")
		}
	}()

	positions := e.reader.Positions(ctx)
	openOrders := e.reader.OpenOrders(ctx)
	if positions == nil {
		// A failed snapshot is indistinguishable from all-flat, and
		// acting on it would cancel live protective orders over a
		// transient blip. Skip the cycle and retry on the next tick.
		metrics.IncCycleError()
		e.log.Warn().Msg("position snapshot unavailable, skipping cycle")
		return
	}

	keys := make([]models.InstrumentKey, 0, len(positions))
	for key := range positions {
		keys = append(keys, key)
	}
	e.tracker.Seed(keys)

	lookback := time.Duration(e.cfg.Costing.LookbackDays) * 24 * time.Hour
	if e.cfg.Costing.UseExecutions {
		e.execLog.Append(e.norm.Executions(ctx, lookback))
		e.execLog.Prune(e.now().Add(-lookback))
	}

	for _, key := range e.tracker.Keys() {
		e.reconcile(ctx, key, positions[key], openOrders[key])
	}
}

// reconcile processes one instrument for one cycle. It works on a copy
// of the state and commits it back through the tracker lock.
func (e *Engine) reconcile(ctx context.Context, key models.InstrumentKey, snap models.PositionSnapshot, open []models.OpenOrder) {
	st, ok := e.tracker.View(key)
	if !ok {
		return
	}
	qty := snap.NetQty
	prevQty := e.tracker.LastQty(key)
	now := e.now()
	log := logging.WithInstrument(e.log, key.String())

	// The broker snapshot seeds the ledger only on the very first
	// reconcile after a restart; a flat-to-long re-entry must not
	// resurrect it, or a prior round trip's sells would consume the
	// seed and leave stale lots open.
	seedLedger := !st.Bootstrapped
	st.Bootstrapped = true

	// Flat position: cancel our order, forget the session.
	if qty <= 0 {
		st.TotalQty = 0
		st.AvgPrice = 0
		if st.Tracking {
			e.cancelOpenSells(ctx, key, open)
			st.OpenSell = nil
			st.ManualOverride = false
			st.Tracking = false
			st.ClearSession()
			log.Info().Msg("flat, tracking stopped")
		}
		e.tracker.Commit(key, st)
		e.tracker.SetLastQty(key, 0)
		return
	}

	if !st.Tracking {
		st.Tracking = true
		st.ResetSession(now)
		log.Info().
			Str("session_id", st.SessionID).
			Float64("qty", qty).
			Msg("session started")
	}

	// More quantity means fresh buys: re-arm so the order is replaced.
	if qty > prevQty {
		st.Armed = true
		log.Info().
			Float64("increase", qty-prevQty).
			Msg("quantity increased, session extended")
	}

	in := e.costInputs(key, &st, snap, seedLedger)
	est := chooseCost(&st, in, e.cfg.Costing, now)
	if est.Defer {
		metrics.IncDecision("Deferred")
		log.Debug().Msg("deferred, waiting for executions")
		e.tracker.Commit(key, st)
		e.tracker.SetLastQty(key, qty)
		return
	}
	metrics.IncDecision(est.Source)
	if est.Source == SourceSessionPartial {
		log.Warn().
			Float64("coverage", in.SessionQty/qty).
			Msg("session covers only part of position")
	}
	if est.Source == SourcePositionUnsafe {
		log.Warn().Msg("using broker average, execution tracking failed")
	}

	st.TotalQty = qty
	st.AvgPrice = est.Avg

	e.enforce(ctx, key, &st, qty, est, open)
	e.tracker.Commit(key, st)
	e.tracker.SetLastQty(key, qty)
}

// costInputs replays both costing engines for one instrument.
func (e *Engine) costInputs(key models.InstrumentKey, st *SymbolState, snap models.PositionSnapshot, seedLedger bool) costInputs {
	in := costInputs{NetQty: snap.NetQty, PosAvg: snap.AvgPrice}
	if !e.cfg.Costing.UseExecutions {
		return in
	}
	execs := e.execLog.ForInstrument(key, e.scope)

	// Ledger across the lookback, seeded from the broker snapshot only
	// on the first reconcile after a restart.
	var seed *models.Lot
	if e.cfg.Costing.SyntheticBootstrap && seedLedger {
		seed = &models.Lot{Quantity: snap.NetQty, Price: snap.AvgPrice}
	}
	book := ledger.Replay(execs, seed)
	in.LedgerQty = book.OpenQty()
	in.LedgerAvg, in.LedgerOK = book.AvgPrice()

	if st.HasSession() {
		products := make([]models.ProductType, 0, len(e.cfg.Engine.Products))
		for _, p := range e.cfg.Engine.Products {
			products = append(products, models.ProductType(p))
		}
		in.SessionQty, in.SessionAvg = ledger.SessionAverage(execs, key, products, st.SessionStart)
		if in.SessionQty > 0 {
			st.SessionOpenQty = in.SessionQty
			e.log.Debug().
				Str("instrument", key.String()).
				Float64("session_qty", in.SessionQty).
				Float64("session_avg", in.SessionAvg).
				Msg("session replay")
		}
	}
	return in
}

// enforce reconciles the protective order against the live order book.
func (e *Engine) enforce(ctx context.Context, key models.InstrumentKey, st *SymbolState, qty float64, est CostEstimate, open []models.OpenOrder) {
	target := utils.RoundToTick(est.Avg+e.cfg.Engine.SellMargin, e.cfg.Engine.TickSize)

	foundOpen := false
	matchedTarget := false
	for _, o := range open {
		if o.Side != models.OrderSideSell || o.Quantity != qty {
			continue
		}
		foundOpen = true
		st.OpenSell = &models.SellOrder{OrderID: o.OrderID, Price: o.Price, Quantity: qty}
		if math.Abs(o.Price-target) < e.cfg.Engine.PriceEpsilon {
			st.ManualOverride = false
			matchedTarget = true
		} else {
			st.ManualOverride = true
		}
		break
	}

	switch {
	case matchedTarget:
		st.Armed = false
		logging.LogDecision(e.log, key.String(), "keep", est.Source, qty, target)
	case foundOpen && st.ManualOverride:
		st.Armed = false
		logging.LogDecision(e.log, key.String(), "override", est.Source, qty, target)
	case st.Armed:
		logging.LogDecision(e.log, key.String(), "place", est.Source, qty, target)
		st.OpenSell = e.placeSell(ctx, key, qty, est.Avg)
		st.Armed = false
	default:
		logging.LogDecision(e.log, key.String(), "reprice", est.Source, qty, target)
		e.cancelOpenSells(ctx, key, open)
		st.OpenSell = e.placeSell(ctx, key, qty, est.Avg)
	}
}

func (e *Engine) logSummary() {
	for _, s := range e.tracker.Summaries() {
		ev := e.log.Info().
			Str("event", "summary").
			Str("instrument", s.Instrument.String()).
			Float64("qty", s.TotalQty).
			Float64("avg", s.AvgPrice).
			Bool("tracking", s.Tracking).
			Bool("override", s.ManualOverride)
		if s.OpenSell != nil {
			ev = ev.Str("sell_id", s.OpenSell.OrderID).
				Float64("sell_px", s.OpenSell.Price).
				Float64("sell_qty", s.OpenSell.Quantity)
		}
		ev.Msg("Position summary")
	}
}
