package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketreplay/internal/book"
	"marketreplay/internal/common"
)

// requireNoErr is a tiny fixture-setup helper used throughout this file.
func requireNoErr(t *testing.T, err error) {
	t.Helper()
	require.NoError(t, err)
}

func TestApply_AddRestsOrder(t *testing.T) {
	ob := book.NewOrderBook()
	d := common.Delta{
		Timestamp: 100, SequenceNum: 1, Type: common.Add,
		OrderID: 1, ClientID: 10, Side: common.Buy, Price: 1000,
		Quantity: 50, RemainingQty: 50,
	}
	requireNoErr(t, ob.Apply(d))

	order, ok := ob.GetOrder(1)
	require.True(t, ok)
	assert.Equal(t, common.Order{OrderID: 1, ClientID: 10, Side: common.Buy, Price: 1000, Quantity: 50, Timestamp: 100}, *order)

	bb, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, book.LevelQty{Price: 1000, Quantity: 50}, bb)
}

func TestApply_FillPartialKeepsPosition(t *testing.T) {
	ob := book.NewOrderBook()
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 999, Quantity: 100, RemainingQty: 100}))
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 2, ClientID: 2, Side: common.Buy, Price: 999, Quantity: 50, RemainingQty: 50}))

	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 200, Type: common.Fill, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 999, Quantity: 30, RemainingQty: 70}))

	orders := ob.OrdersAt(common.Buy, 999)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].OrderID)
	assert.Equal(t, int64(70), orders[0].Quantity)
	assert.Equal(t, int64(2), orders[1].OrderID)
}

func TestApply_FillFullRemovesOrder(t *testing.T) {
	ob := book.NewOrderBook()
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 1, ClientID: 1, Side: common.Sell, Price: 1000, Quantity: 50, RemainingQty: 50}))
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 200, Type: common.Fill, OrderID: 1, ClientID: 1, Side: common.Sell, Price: 1000, Quantity: 50, RemainingQty: 0}))

	_, ok := ob.GetOrder(1)
	assert.False(t, ok)
	_, ok = ob.BestAsk()
	assert.False(t, ok)
}

func TestApply_CancelUnknownIDIsNoOpByDefault(t *testing.T) {
	ob := book.NewOrderBook()
	err := ob.Apply(common.Delta{Timestamp: 100, Type: common.Cancel, OrderID: 999, RemainingQty: 0})
	assert.NoError(t, err)
}

func TestApply_StrictModeRejectsUnknownID(t *testing.T) {
	ob := book.NewOrderBook()
	ob.StrictMode = true
	err := ob.Apply(common.Delta{Timestamp: 100, Type: common.Cancel, OrderID: 999, RemainingQty: 0})
	assert.ErrorIs(t, err, book.ErrUnknownOrder)
}

func TestApply_ModifyReplacesOrderWithNewIDPriceAndTimestamp(t *testing.T) {
	ob := book.NewOrderBook()
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 1000, Quantity: 50, RemainingQty: 50}))
	requireNoErr(t, ob.Apply(common.Delta{
		Timestamp: 300, Type: common.Modify, OrderID: 1, ClientID: 1, Side: common.Buy,
		Price: 1000, NewOrderID: 2, NewPrice: 995, NewQuantity: 50,
	}))

	_, ok := ob.GetOrder(1)
	assert.False(t, ok)
	order, ok := ob.GetOrder(2)
	require.True(t, ok)
	assert.Equal(t, int64(995), order.Price)
	assert.Equal(t, int64(300), order.Timestamp)
}

// TestForwardBackwardCycle covers the end-state part of P1/P2/S5:
// applying a mixed stream and reversing it in opposite order must return
// the book to its pre-apply (empty) state. Intermediate states are not
// compared.
func TestForwardBackwardCycle(t *testing.T) {
	ob := book.NewOrderBook()

	deltas := []common.Delta{
		{Timestamp: 100, SequenceNum: 1, Type: common.Add, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 999, Quantity: 100, RemainingQty: 100},
		{Timestamp: 100, SequenceNum: 2, Type: common.Add, OrderID: 2, ClientID: 2, Side: common.Sell, Price: 1001, Quantity: 100, RemainingQty: 100},
		{Timestamp: 100, SequenceNum: 3, Type: common.Add, OrderID: 3, ClientID: 3, Side: common.Buy, Price: 998, Quantity: 50, RemainingQty: 50},
		{Timestamp: 200, SequenceNum: 4, Type: common.Fill, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 999, Quantity: 30, RemainingQty: 70},
		{Timestamp: 200, SequenceNum: 5, Type: common.Cancel, OrderID: 3, ClientID: 3, Side: common.Buy, Price: 998, RemainingQty: 50},
	}
	prevTimestamps := []int64{0, 100, 100, 100, 200}

	for _, d := range deltas {
		requireNoErr(t, ob.Apply(d))
	}

	for i := len(deltas) - 1; i >= 0; i-- {
		requireNoErr(t, ob.ApplyReverse(deltas[i], prevTimestamps[i]))
	}

	bidLevels := ob.BidLevels()
	askLevels := ob.AskLevels()
	assert.Empty(t, bidLevels)
	assert.Empty(t, askLevels)
	assert.Equal(t, int64(0), ob.CurrentTS())
}

// TestReverse_AggressorFillNeverReinstated covers the aggressor-order
// design note: a FILL whose order never rested (no birth_ts entry) must
// not be reinstated on reverse.
func TestReverse_AggressorFillNeverReinstated(t *testing.T) {
	ob := book.NewOrderBook()
	// order_id 5 was never ADDed (it matched immediately on arrival) but
	// still produces a FILL delta, as an aggressor order does.
	fill := common.Delta{Timestamp: 200, Type: common.Fill, OrderID: 5, ClientID: 9, Side: common.Buy, Price: 1000, Quantity: 50, RemainingQty: 0}
	requireNoErr(t, ob.Apply(fill))
	requireNoErr(t, ob.ApplyReverse(fill, 100))

	_, ok := ob.GetOrder(5)
	assert.False(t, ok)
}

// TestReverse_FIFOInsertionPosition covers the non-obvious reverse-insert
// rule: a restored order lands just before the first existing order with
// a strictly greater timestamp.
func TestReverse_FIFOInsertionPosition(t *testing.T) {
	ob := book.NewOrderBook()
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 1000, Quantity: 100, RemainingQty: 100}))
	fill := common.Delta{Timestamp: 150, Type: common.Fill, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 1000, Quantity: 100, RemainingQty: 0}
	requireNoErr(t, ob.Apply(fill))
	// A later order arrives at the same price after order 1 is filled away.
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 200, Type: common.Add, OrderID: 2, ClientID: 2, Side: common.Buy, Price: 1000, Quantity: 40, RemainingQty: 40}))

	// Reversing the fill must reinsert order 1 *ahead* of order 2, since
	// order 1's birth (100) predates order 2's (200).
	requireNoErr(t, ob.ApplyReverse(fill, 100))

	orders := ob.OrdersAt(common.Buy, 1000)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].OrderID)
	assert.Equal(t, int64(2), orders[1].OrderID)
}

func TestDepth_RespectsLevelLimit(t *testing.T) {
	ob := book.NewOrderBook()
	for i, price := range []int64{999, 998, 997} {
		requireNoErr(t, ob.Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: int64(i + 1), ClientID: 1, Side: common.Buy, Price: price, Quantity: 10, RemainingQty: 10}))
	}
	bids, _ := ob.Depth(2)
	require.Len(t, bids, 2)
	assert.Equal(t, int64(999), bids[0].Price)
	assert.Equal(t, int64(998), bids[1].Price)
}

func TestSpreadAndMidpoint(t *testing.T) {
	ob := book.NewOrderBook()
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 990, Quantity: 10, RemainingQty: 10}))
	requireNoErr(t, ob.Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 2, ClientID: 2, Side: common.Sell, Price: 1010, Quantity: 10, RemainingQty: 10}))

	spread, ok := ob.Spread()
	require.True(t, ok)
	assert.Equal(t, int64(20), spread)

	mid, ok := ob.Midpoint()
	require.True(t, ok)
	assert.Equal(t, 1000.0, mid)
}

func TestBook_MultiInstrumentIsolation(t *testing.T) {
	b := book.NewBook()
	requireNoErr(t, b.Instrument(1).Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 1, ClientID: 1, Side: common.Buy, Price: 1000, Quantity: 10, RemainingQty: 10}))
	requireNoErr(t, b.Instrument(2).Apply(common.Delta{Timestamp: 100, Type: common.Add, OrderID: 1, ClientID: 1, Side: common.Sell, Price: 2000, Quantity: 10, RemainingQty: 10}))

	_, ok := b.Instrument(1).GetOrder(1)
	require.True(t, ok)
	order, ok := b.Instrument(2).GetOrder(1)
	require.True(t, ok)
	assert.Equal(t, common.Sell, order.Side)
}
