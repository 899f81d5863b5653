package feed

import (
	"sort"
	"time"

	"option-sentinel/internal/models"
)

// ExecutionLog accumulates normalized executions across supervisor
// cycles. The dedup cache guarantees each execution enters at most once;
// the log keeps them so the costing engines always replay the full
// observed history, not just the current cycle's novelties.
//
// ExecutionLog is not synchronized; only the supervisor goroutine
// touches it.
type ExecutionLog struct {
	execs []models.Execution
}

// NewExecutionLog creates an empty log.
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{}
}

// Append merges new executions, keeping the log sorted ascending by time.
func (l *ExecutionLog) Append(execs []models.Execution) {
	if len(execs) == 0 {
		return
	}
	l.execs = append(l.execs, execs...)
	sort.SliceStable(l.execs, func(i, j int) bool {
		return l.execs[i].Time.Before(l.execs[j].Time)
	})
}

// Prune drops executions older than the cutoff.
func (l *ExecutionLog) Prune(cutoff time.Time) {
	i := sort.Search(len(l.execs), func(i int) bool {
		return !l.execs[i].Time.Before(cutoff)
	})
	if i > 0 {
		l.execs = append(l.execs[:0], l.execs[i:]...)
	}
}

// ForInstrument returns the executions of one instrument whose product is
// in scope, in time order.
func (l *ExecutionLog) ForInstrument(key models.InstrumentKey, scope Scope) []models.Execution {
	var out []models.Execution
	for _, e := range l.execs {
		if e.Key() == key && scope.ContainsProduct(e.Product) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained executions.
func (l *ExecutionLog) Len() int {
	return len(l.execs)
}
