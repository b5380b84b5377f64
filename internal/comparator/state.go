// Package comparator diffs a reference engine's exported JSON state
// against the state this module reconstructs by replay, field by field,
// to support cross-validation between the two.
package comparator

import (
	"fmt"
	"sort"

	"marketreplay/internal/book"
	"marketreplay/internal/common"
)

// ReferenceOrder is one order as it appears in a reference state export.
type ReferenceOrder struct {
	OrderID  int64       `json:"order_id"`
	ClientID int64       `json:"client_id"`
	Quantity int64       `json:"quantity"`
	Price    int64       `json:"price"`
	Side     common.Side `json:"side"`
}

// ReferenceLevel is one price level as it appears in a reference export.
type ReferenceLevel struct {
	Price  int64            `json:"price"`
	Orders []ReferenceOrder `json:"orders"`
}

// ReferenceBook is one instrument's book as it appears in a reference
// export.
type ReferenceBook struct {
	Bids []ReferenceLevel `json:"bids"`
	Asks []ReferenceLevel `json:"asks"`
}

// ReferencePnL is one participant's PnL as it appears in a reference
// export.
type ReferencePnL struct {
	LongPosition  int64 `json:"long_position"`
	ShortPosition int64 `json:"short_position"`
	Cash          int64 `json:"cash"`
}

// ReferenceState is the full exported state at one sequence point.
type ReferenceState struct {
	SequenceNum int64                    `json:"sequence_num"`
	Timestamp   int64                    `json:"timestamp"`
	OrderBooks  map[int64]ReferenceBook  `json:"order_books"`
	PnL         map[int64]ReferencePnL   `json:"pnl"`
}

// ComparisonResult is the outcome of comparing reference state against
// replayed state at one point in the stream.
type ComparisonResult struct {
	Match       bool
	SequenceNum int64
	Timestamp   int64
	Differences []string
}

func (r ComparisonResult) String() string {
	if r.Match {
		return fmt.Sprintf("[OK] seq=%d ts=%d", r.SequenceNum, r.Timestamp)
	}
	n := len(r.Differences)
	shown := r.Differences
	suffix := ""
	if n > 3 {
		shown = r.Differences[:3]
		suffix = fmt.Sprintf(" (+%d more)", n-3)
	}
	summary := ""
	for i, d := range shown {
		if i > 0 {
			summary += "; "
		}
		summary += d
	}
	return fmt.Sprintf("[FAIL] seq=%d ts=%d: %s%s", r.SequenceNum, r.Timestamp, summary, suffix)
}

// Comparator compares reference-exported state against a replayed
// book.Book and pnl.Ledger snapshot.
type Comparator struct {
	// Tolerance is the allowed absolute numeric difference for PnL
	// fields before a mismatch is reported. Order book fields are
	// always compared exactly.
	Tolerance int64
}

// New returns a Comparator with exact-match tolerance.
func New() *Comparator {
	return &Comparator{Tolerance: 0}
}

// CompareOrderBooks diffs one instrument's reference book against the
// equivalent replayed book.OrderBook.
func (c *Comparator) CompareOrderBooks(ref ReferenceBook, ob *book.OrderBook, instrumentID int64) []string {
	var diffs []string
	diffs = append(diffs, c.compareSide(ref.Bids, ob.BidLevels(), common.Buy, instrumentID)...)
	diffs = append(diffs, c.compareSide(ref.Asks, ob.AskLevels(), common.Sell, instrumentID)...)
	return diffs
}

func (c *Comparator) compareSide(refLevels []ReferenceLevel, gotLevels []*book.PriceLevel, side common.Side, instrumentID int64) []string {
	var diffs []string
	sideName := "bid"
	if side == common.Sell {
		sideName = "ask"
	}

	if len(refLevels) != len(gotLevels) {
		diffs = append(diffs, fmt.Sprintf("inst=%d %s level count: ref=%d, got=%d", instrumentID, sideName, len(refLevels), len(gotLevels)))
	}

	for i, refLevel := range refLevels {
		if i >= len(gotLevels) {
			diffs = append(diffs, fmt.Sprintf("inst=%d %s extra ref level at price %d", instrumentID, sideName, refLevel.Price))
			continue
		}
		gotLevel := gotLevels[i]
		if refLevel.Price != gotLevel.Price {
			diffs = append(diffs, fmt.Sprintf("inst=%d %s level %d price: ref=%d, got=%d", instrumentID, sideName, i, refLevel.Price, gotLevel.Price))
			continue
		}
		if len(refLevel.Orders) != len(gotLevel.Orders) {
			diffs = append(diffs, fmt.Sprintf("inst=%d %s[%d] queue length: ref=%d, got=%d", instrumentID, sideName, refLevel.Price, len(refLevel.Orders), len(gotLevel.Orders)))
			continue
		}
		for j := range refLevel.Orders {
			context := fmt.Sprintf("inst=%d %s[%d][%d]", instrumentID, sideName, refLevel.Price, j)
			diffs = append(diffs, c.compareOrders(refLevel.Orders[j], gotLevel.Orders[j], context)...)
		}
	}

	for i := len(refLevels); i < len(gotLevels); i++ {
		diffs = append(diffs, fmt.Sprintf("inst=%d %s extra got level at price %d", instrumentID, sideName, gotLevels[i].Price))
	}

	return diffs
}

func (c *Comparator) compareOrders(ref ReferenceOrder, got *common.Order, context string) []string {
	var diffs []string
	if ref.OrderID != got.OrderID {
		diffs = append(diffs, fmt.Sprintf("%s.order_id: ref=%d, got=%d", context, ref.OrderID, got.OrderID))
	}
	if ref.ClientID != got.ClientID {
		diffs = append(diffs, fmt.Sprintf("%s.client_id: ref=%d, got=%d", context, ref.ClientID, got.ClientID))
	}
	if ref.Quantity != got.Quantity {
		diffs = append(diffs, fmt.Sprintf("%s.quantity: ref=%d, got=%d", context, ref.Quantity, got.Quantity))
	}
	if ref.Price != got.Price {
		diffs = append(diffs, fmt.Sprintf("%s.price: ref=%d, got=%d", context, ref.Price, got.Price))
	}
	if ref.Side != got.Side {
		diffs = append(diffs, fmt.Sprintf("%s.side: ref=%s, got=%s", context, ref.Side, got.Side))
	}
	return diffs
}

// ComparePnL diffs reference-exported PnL against the replayed ledger
// state, within Tolerance.
func (c *Comparator) ComparePnL(ref map[int64]ReferencePnL, got map[int64]common.PnLState) []string {
	var diffs []string

	refClients := make(map[int64]bool, len(ref))
	for id := range ref {
		refClients[id] = true
	}
	gotClients := make(map[int64]bool, len(got))
	for id := range got {
		gotClients[id] = true
	}

	var onlyRef, onlyGot []int64
	for id := range refClients {
		if !gotClients[id] {
			onlyRef = append(onlyRef, id)
		}
	}
	for id := range gotClients {
		if !refClients[id] {
			onlyGot = append(onlyGot, id)
		}
	}
	sort.Slice(onlyRef, func(i, j int) bool { return onlyRef[i] < onlyRef[j] })
	sort.Slice(onlyGot, func(i, j int) bool { return onlyGot[i] < onlyGot[j] })

	if len(onlyRef) > 0 {
		diffs = append(diffs, fmt.Sprintf("PnL clients only in ref: %v", onlyRef))
	}
	if len(onlyGot) > 0 {
		diffs = append(diffs, fmt.Sprintf("PnL clients only in got: %v", onlyGot))
	}

	var common_ []int64
	for id := range refClients {
		if gotClients[id] {
			common_ = append(common_, id)
		}
	}
	sort.Slice(common_, func(i, j int) bool { return common_[i] < common_[j] })

	absDiff := func(a, b int64) int64 {
		if a > b {
			return a - b
		}
		return b - a
	}

	for _, id := range common_ {
		r := ref[id]
		g := got[id]
		if absDiff(r.LongPosition, g.LongPosition) > c.Tolerance {
			diffs = append(diffs, fmt.Sprintf("PnL[%d].long_position: ref=%d, got=%d", id, r.LongPosition, g.LongPosition))
		}
		if absDiff(r.ShortPosition, g.ShortPosition) > c.Tolerance {
			diffs = append(diffs, fmt.Sprintf("PnL[%d].short_position: ref=%d, got=%d", id, r.ShortPosition, g.ShortPosition))
		}
		if absDiff(r.Cash, g.Cash) > c.Tolerance {
			diffs = append(diffs, fmt.Sprintf("PnL[%d].cash: ref=%d, got=%d", id, r.Cash, g.Cash))
		}
	}

	return diffs
}

// CompareFullState diffs a complete reference export against the
// replayed book.Book and pnl ledger snapshot for every instrument and
// participant present on either side.
func (c *Comparator) CompareFullState(ref ReferenceState, books *book.Book, pnlState map[int64]common.PnLState) ComparisonResult {
	var all []string

	refInstruments := make(map[int64]bool, len(ref.OrderBooks))
	for id := range ref.OrderBooks {
		refInstruments[id] = true
	}
	gotInstruments := make(map[int64]bool)
	for _, id := range books.Instruments() {
		gotInstruments[id] = true
	}

	var onlyRef, onlyGot []int64
	for id := range refInstruments {
		if !gotInstruments[id] {
			onlyRef = append(onlyRef, id)
		}
	}
	for id := range gotInstruments {
		if !refInstruments[id] {
			onlyGot = append(onlyGot, id)
		}
	}
	sort.Slice(onlyRef, func(i, j int) bool { return onlyRef[i] < onlyRef[j] })
	sort.Slice(onlyGot, func(i, j int) bool { return onlyGot[i] < onlyGot[j] })
	if len(onlyRef) > 0 {
		all = append(all, fmt.Sprintf("Order books only in ref: %v", onlyRef))
	}
	if len(onlyGot) > 0 {
		all = append(all, fmt.Sprintf("Order books only in got: %v", onlyGot))
	}

	var instruments []int64
	for id := range refInstruments {
		if gotInstruments[id] {
			instruments = append(instruments, id)
		}
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i] < instruments[j] })

	for _, instID := range instruments {
		all = append(all, c.CompareOrderBooks(ref.OrderBooks[instID], books.Instrument(instID), instID)...)
	}

	all = append(all, c.ComparePnL(ref.PnL, pnlState)...)

	return ComparisonResult{
		Match:       len(all) == 0,
		SequenceNum: ref.SequenceNum,
		Timestamp:   ref.Timestamp,
		Differences: all,
	}
}
