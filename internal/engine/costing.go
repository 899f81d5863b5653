package engine

import (
	"time"

	"option-sentinel/internal/config"
)

// Cost basis sources, from most to least trusted.
const (
	SourceSession        = "Session"
	SourceSessionPartial = "Session-Partial"
	SourceLedger         = "Ledger"
	SourcePositionUnsafe = "Position-UNSAFE"
)

// CostEstimate is the outcome of the dual-engine policy for one cycle.
// Defer means neither engine can be trusted yet and the decision is
// postponed to a later cycle.
type CostEstimate struct {
	Avg    float64
	Source string
	Defer  bool
}

// costInputs collects the per-cycle numbers the policy weighs: the
// broker snapshot, the session engine replay and the lookback ledger
// replay.
type costInputs struct {
	NetQty     float64 // broker net quantity, > 0
	PosAvg     float64 // broker average across positive legs
	SessionQty float64 // session FIFO open quantity
	SessionAvg float64
	LedgerQty  float64 // ledger FIFO open quantity
	LedgerAvg  float64
	LedgerOK   bool // ledger produced a usable average
}

// chooseCost selects the cost basis for one instrument. The session
// engine wins when it covers enough of the broker position; otherwise
// the lookback ledger is consulted; a partially covering session is
// still preferred over nothing; early in a session the decision is
// deferred so fills have time to land; the broker average is the last
// resort.
func chooseCost(st *SymbolState, in costInputs, cfg config.CostingConfig, now time.Time) CostEstimate {
	ratio := cfg.CoverageRatio
	ledgerCovers := in.LedgerOK && in.LedgerQty >= in.NetQty*ratio

	if in.SessionQty > 0 {
		coverage := in.SessionQty / in.NetQty
		switch {
		case coverage >= ratio:
			return CostEstimate{Avg: in.SessionAvg, Source: SourceSession}
		case ledgerCovers:
			return CostEstimate{Avg: in.LedgerAvg, Source: SourceLedger}
		default:
			return CostEstimate{Avg: in.SessionAvg, Source: SourceSessionPartial}
		}
	}

	if ledgerCovers {
		return CostEstimate{Avg: in.LedgerAvg, Source: SourceLedger}
	}

	if cfg.UseExecutions && st.HasSession() && now.Sub(st.SessionStart) < cfg.DeferWindow {
		return CostEstimate{Defer: true}
	}

	return CostEstimate{Avg: in.PosAvg, Source: SourcePositionUnsafe}
}
