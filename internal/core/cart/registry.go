package cart

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Registry owns one ledger per terminal session. Each ledger is
// single-writer; the registry only guards the session map itself.
type Registry struct {
	taxRate decimal.Decimal

	mu      sync.Mutex
	ledgers map[string]*Ledger
}

func NewRegistry(taxRate decimal.Decimal) *Registry {
	return &Registry{
		taxRate: taxRate,
		ledgers: make(map[string]*Ledger),
	}
}

// Ledger returns the ledger for sessionID, creating it on first use.
func (r *Registry) Ledger(sessionID string) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.ledgers[sessionID]
	if !ok {
		l = NewLedger(r.taxRate)
		r.ledgers[sessionID] = l
	}
	return l
}

// Drop discards the session's ledger entirely.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ledgers, sessionID)
}
