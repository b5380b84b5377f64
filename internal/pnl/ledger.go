// Package pnl tracks per-participant long/short positions and cash as a
// closed accounting system, mirroring the reference engine's trade
// notification logic exactly so the two can be cross-validated.
package pnl

import "marketreplay/internal/common"

// Ledger is a closed accounting system over PnL state keyed by client_id.
type Ledger struct {
	state map[int64]*common.PnLState
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{state: make(map[int64]*common.PnLState)}
}

func (l *Ledger) ensure(clientID int64) *common.PnLState {
	s, ok := l.state[clientID]
	if !ok {
		s = &common.PnLState{}
		l.state[clientID] = s
	}
	return s
}

// OnTrade applies one trade: the buyer's long position and the seller's
// short position both accumulate independently, with no netting.
func (l *Ledger) OnTrade(buyerID, sellerID, price, quantity int64) {
	value := price * quantity

	buyer := l.ensure(buyerID)
	buyer.LongPosition += quantity
	buyer.Cash -= value

	seller := l.ensure(sellerID)
	seller.ShortPosition += quantity
	seller.Cash += value
}

// State returns a snapshot of every participant's PnL.
func (l *Ledger) State() map[int64]common.PnLState {
	out := make(map[int64]common.PnLState, len(l.state))
	for id, s := range l.state {
		out[id] = *s
	}
	return out
}

// ClientState returns one participant's PnL, if they have ever traded.
func (l *Ledger) ClientState(clientID int64) (common.PnLState, bool) {
	s, ok := l.state[clientID]
	if !ok {
		return common.PnLState{}, false
	}
	return *s, true
}

// TotalCash sums cash across all participants; should be zero in a
// closed system.
func (l *Ledger) TotalCash() int64 {
	var total int64
	for _, s := range l.state {
		total += s.Cash
	}
	return total
}

// TotalNetPosition sums (long - short) across all participants; should
// be zero in a closed system.
func (l *Ledger) TotalNetPosition() int64 {
	var total int64
	for _, s := range l.state {
		total += s.NetPosition()
	}
	return total
}

// Reset clears all tracked state.
func (l *Ledger) Reset() {
	l.state = make(map[int64]*common.PnLState)
}
