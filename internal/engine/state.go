// Package engine reconciles open option positions against the broker
// and maintains exactly one protective SELL LIMIT order per net-long
// position.
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"option-sentinel/internal/models"
)

// SymbolState is the per-instrument tracking record. The supervisor
// works on a copy taken with View and writes it back with Commit; every
// access to the stored record goes through the Tracker lock.
type SymbolState struct {
	Instrument models.InstrumentKey

	TotalQty float64
	AvgPrice float64

	OpenSell       *models.SellOrder
	Tracking       bool
	Armed          bool
	ManualOverride bool

	// Bootstrapped flips on the first reconcile after process start and
	// survives ClearSession: the synthetic ledger seed is a restart
	// device, not a flat-to-long one.
	Bootstrapped bool

	// Session engine window. A zero SessionStart means no session, which
	// happens on the first cycle after a restart before tracking begins.
	SessionID      string
	SessionStart   time.Time
	SessionOpenQty float64
}

// ResetSession opens a new session window at the flat-to-long
// transition and arms the state for immediate placement.
func (s *SymbolState) ResetSession(now time.Time) {
	s.SessionID = uuid.NewString()
	s.SessionStart = now
	s.SessionOpenQty = 0
	s.Armed = true
}

// ClearSession drops the session window when the position goes flat.
func (s *SymbolState) ClearSession() {
	s.SessionID = ""
	s.SessionStart = time.Time{}
	s.SessionOpenQty = 0
	s.Armed = false
}

// HasSession reports whether a session window is open.
func (s *SymbolState) HasSession() bool {
	return !s.SessionStart.IsZero()
}

// Tracker holds the per-instrument states behind a lock.
type Tracker struct {
	mu      sync.Mutex
	states  map[models.InstrumentKey]*SymbolState
	lastQty map[models.InstrumentKey]float64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		states:  make(map[models.InstrumentKey]*SymbolState),
		lastQty: make(map[models.InstrumentKey]float64),
	}
}

// Seed creates states for instruments not yet tracked.
func (t *Tracker) Seed(keys []models.InstrumentKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range keys {
		if _, ok := t.states[key]; !ok {
			t.states[key] = &SymbolState{Instrument: key}
		}
	}
}

// Keys returns all known instruments in a stable order.
func (t *Tracker) Keys() []models.InstrumentKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]models.InstrumentKey, 0, len(t.states))
	for key := range t.states {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// View returns a copy of the state for an instrument. The supervisor
// mutates the copy and writes it back with Commit, so the lock is never
// held across a broker call.
func (t *Tracker) View(key models.InstrumentKey) (SymbolState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[key]
	if !ok {
		return SymbolState{}, false
	}
	return *st, true
}

// Commit stores an updated state copy.
func (t *Tracker) Commit(key models.InstrumentKey, st SymbolState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[key] = &st
}

// TrackedKeys returns the instruments currently tracked. The relay
// diffs this set against its live subscriptions.
func (t *Tracker) TrackedKeys() map[models.InstrumentKey]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracked := make(map[models.InstrumentKey]bool)
	for key, st := range t.states {
		if st.Tracking {
			tracked[key] = true
		}
	}
	return tracked
}

// TrackedCount returns the number of tracked instruments.
func (t *Tracker) TrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, st := range t.states {
		if st.Tracking {
			n++
		}
	}
	return n
}

// LastQty returns the quantity seen for an instrument on the previous
// cycle.
func (t *Tracker) LastQty(key models.InstrumentKey) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastQty[key]
}

// SetLastQty records the quantity seen this cycle.
func (t *Tracker) SetLastQty(key models.InstrumentKey, qty float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastQty[key] = qty
}

// Summary is a read-only copy of one state for reporting.
type Summary struct {
	Instrument     models.InstrumentKey
	TotalQty       float64
	AvgPrice       float64
	OpenSell       *models.SellOrder
	Tracking       bool
	ManualOverride bool
	SessionStart   time.Time
}

// Summaries returns reporting copies of all states, sorted by
// instrument.
func (t *Tracker) Summaries() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Summary, 0, len(t.states))
	for _, st := range t.states {
		s := Summary{
			Instrument:     st.Instrument,
			TotalQty:       st.TotalQty,
			AvgPrice:       st.AvgPrice,
			Tracking:       st.Tracking,
			ManualOverride: st.ManualOverride,
			SessionStart:   st.SessionStart,
		}
		if st.OpenSell != nil {
			copySell := *st.OpenSell
			s.OpenSell = &copySell
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instrument.String() < out[j].Instrument.String()
	})
	return out
}
