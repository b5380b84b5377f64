// Package book reconstructs per-instrument limit order book state by
// applying a stream of atomic ADD/FILL/CANCEL/MODIFY deltas forward and,
// critically, backward — preserving exact FIFO queue order in both
// directions so the replayed state can be cross-validated against a
// reference engine.
package book

import (
	"errors"
	"fmt"

	"github.com/tidwall/btree"

	"marketreplay/internal/common"
)

var (
	// ErrUnknownOrder is returned in StrictMode when a FILL or CANCEL
	// references an order_id that is not resting in the book.
	ErrUnknownOrder = errors.New("order not resting in book")
)

// PriceLevel is an ordered sequence of orders at one (side, price). The
// slice preserves arrival order; partial fills never change position.
type PriceLevel struct {
	Price  int64
	Orders []*common.Order
}

type priceLevels = btree.BTreeG[*PriceLevel]

// registryEntry locates a resting order within a side's price levels.
type registryEntry struct {
	price int64
	side  common.Side
}

// OrderBook is the per-instrument book: two price-ordered trees plus the
// bookkeeping indexes needed to apply deltas and reverse them exactly.
type OrderBook struct {
	bids *priceLevels // descending by price
	asks *priceLevels // ascending by price

	registry  map[int64]registryEntry
	birthTS   map[int64]int64 // order_id -> tick it first entered (or last resting-MODIFY refreshed) the book
	currentTS int64

	// StrictMode turns an unknown-id FILL/CANCEL into ErrUnknownOrder
	// instead of the default tolerant no-op (spec Open Question Q4).
	StrictMode bool
}

// NewOrderBook returns an empty order book for one instrument.
func NewOrderBook() *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price // descending: best bid first
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price // ascending: best ask first
	})
	return &OrderBook{
		bids:     bids,
		asks:     asks,
		registry: make(map[int64]registryEntry),
		birthTS:  make(map[int64]int64),
	}
}

// Book is a collection of OrderBooks indexed by instrument_id.
type Book struct {
	instruments map[int64]*OrderBook
	StrictMode  bool
}

// NewBook returns an empty, multi-instrument book.
func NewBook() *Book {
	return &Book{instruments: make(map[int64]*OrderBook)}
}

// Instrument returns the OrderBook for instID, creating it on first use.
func (b *Book) Instrument(instID int64) *OrderBook {
	ob, ok := b.instruments[instID]
	if !ok {
		ob = NewOrderBook()
		ob.StrictMode = b.StrictMode
		b.instruments[instID] = ob
	}
	return ob
}

// Instruments returns the set of instrument IDs currently tracked.
func (b *Book) Instruments() []int64 {
	ids := make([]int64, 0, len(b.instruments))
	for id := range b.instruments {
		ids = append(ids, id)
	}
	return ids
}

// Has reports whether instID has ever been touched.
func (b *Book) Has(instID int64) bool {
	_, ok := b.instruments[instID]
	return ok
}

func (ob *OrderBook) sideTree(side common.Side) *priceLevels {
	if side == common.Buy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) addOrder(o *common.Order) {
	tree := ob.sideTree(o.Side)
	lvl, ok := tree.GetMut(&PriceLevel{Price: o.Price})
	if !ok {
		lvl = &PriceLevel{Price: o.Price}
		tree.Set(lvl)
	}
	lvl.Orders = append(lvl.Orders, o)
	ob.registry[o.OrderID] = registryEntry{price: o.Price, side: o.Side}
}

// addOrderSorted re-inserts an order into FIFO position: immediately
// before the first existing order whose timestamp is strictly greater,
// appending to the tail otherwise. Used only by reverse application.
func (ob *OrderBook) addOrderSorted(o *common.Order) {
	tree := ob.sideTree(o.Side)
	lvl, ok := tree.GetMut(&PriceLevel{Price: o.Price})
	if !ok {
		lvl = &PriceLevel{Price: o.Price, Orders: []*common.Order{o}}
		tree.Set(lvl)
		ob.registry[o.OrderID] = registryEntry{price: o.Price, side: o.Side}
		return
	}

	insertAt := len(lvl.Orders)
	for i, existing := range lvl.Orders {
		if existing.Timestamp > o.Timestamp {
			insertAt = i
			break
		}
	}
	lvl.Orders = append(lvl.Orders, nil)
	copy(lvl.Orders[insertAt+1:], lvl.Orders[insertAt:])
	lvl.Orders[insertAt] = o
	ob.registry[o.OrderID] = registryEntry{price: o.Price, side: o.Side}
}

// removeOrder removes orderID from its queue and the registry, returning
// it. Returns nil if the id is unknown.
func (ob *OrderBook) removeOrder(orderID int64) *common.Order {
	entry, ok := ob.registry[orderID]
	if !ok {
		return nil
	}
	delete(ob.registry, orderID)

	tree := ob.sideTree(entry.side)
	lvl, ok := tree.GetMut(&PriceLevel{Price: entry.price})
	if !ok {
		return nil
	}

	for i, o := range lvl.Orders {
		if o.OrderID == orderID {
			lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
			if len(lvl.Orders) == 0 {
				tree.Delete(lvl)
			}
			return o
		}
	}
	return nil
}

func (ob *OrderBook) updateQuantity(orderID, newQuantity int64) bool {
	entry, ok := ob.registry[orderID]
	if !ok {
		return false
	}
	tree := ob.sideTree(entry.side)
	lvl, ok := tree.GetMut(&PriceLevel{Price: entry.price})
	if !ok {
		return false
	}
	for _, o := range lvl.Orders {
		if o.OrderID == orderID {
			o.Quantity = newQuantity
			return true
		}
	}
	return false
}

// Apply advances the book by one tick-atomic delta. Unknown-id FILL or
// CANCEL is a no-op unless StrictMode is set.
func (ob *OrderBook) Apply(d common.Delta) error {
	ob.currentTS = d.Timestamp

	switch d.Type {
	case common.Add:
		order := &common.Order{
			OrderID: d.OrderID, ClientID: d.ClientID, Side: d.Side,
			Price: d.Price, Quantity: d.RemainingQty, Timestamp: d.Timestamp,
		}
		ob.addOrder(order)
		ob.birthTS[d.OrderID] = d.Timestamp

	case common.Fill:
		if d.RemainingQty == 0 {
			if ob.removeOrder(d.OrderID) == nil && ob.StrictMode {
				return fmt.Errorf("%w: order_id=%d (FILL)", ErrUnknownOrder, d.OrderID)
			}
		} else {
			if !ob.updateQuantity(d.OrderID, d.RemainingQty) && ob.StrictMode {
				return fmt.Errorf("%w: order_id=%d (FILL)", ErrUnknownOrder, d.OrderID)
			}
		}

	case common.Cancel:
		if ob.removeOrder(d.OrderID) == nil && ob.StrictMode {
			return fmt.Errorf("%w: order_id=%d (CANCEL)", ErrUnknownOrder, d.OrderID)
		}

	case common.Modify:
		ob.removeOrder(d.OrderID)
		if d.NewOrderID == 0 {
			// Quantity-only modify: no replacement id is created, but the
			// original id's birth is refreshed to the MODIFY tick (Q3).
			ob.birthTS[d.OrderID] = d.Timestamp
			order := &common.Order{
				OrderID: d.OrderID, ClientID: d.ClientID, Side: d.Side,
				Price: d.NewPrice, Quantity: d.NewQuantity, Timestamp: d.Timestamp,
			}
			ob.addOrder(order)
		} else {
			newOrder := &common.Order{
				OrderID: d.NewOrderID, ClientID: d.ClientID, Side: d.Side,
				Price: d.NewPrice, Quantity: d.NewQuantity, Timestamp: d.Timestamp,
			}
			ob.addOrder(newOrder)
			ob.birthTS[d.NewOrderID] = d.Timestamp
		}

	default:
		return fmt.Errorf("%w: %v", common.ErrInvalidDeltaType, d.Type)
	}

	return nil
}

// ApplyReverse undoes d, leaving the book exactly as it was immediately
// before d was applied, with CurrentTS set to prevTimestamp. The one
// exception is a quantity-only MODIFY (NewOrderID == 0): Apply overwrote
// that order's birth tick, so the restored order carries the MODIFY tick
// as its timestamp.
func (ob *OrderBook) ApplyReverse(d common.Delta, prevTimestamp int64) error {
	switch d.Type {
	case common.Add:
		ob.removeOrder(d.OrderID)
		delete(ob.birthTS, d.OrderID)

	case common.Fill:
		prevQty := d.RemainingQty + d.Quantity
		if d.RemainingQty == 0 {
			// Only restore if the order actually rested at some point;
			// aggressor orders that matched on arrival never got a
			// birthTS entry and must never be reinstated.
			if origTS, ok := ob.birthTS[d.OrderID]; ok {
				order := &common.Order{
					OrderID: d.OrderID, ClientID: d.ClientID, Side: d.Side,
					Price: d.Price, Quantity: prevQty, Timestamp: origTS,
				}
				ob.addOrderSorted(order)
			}
		} else {
			ob.updateQuantity(d.OrderID, prevQty)
		}

	case common.Cancel:
		origTS, ok := ob.birthTS[d.OrderID]
		if !ok {
			origTS = prevTimestamp
		}
		order := &common.Order{
			OrderID: d.OrderID, ClientID: d.ClientID, Side: d.Side,
			Price: d.Price, Quantity: d.RemainingQty, Timestamp: origTS,
		}
		ob.addOrderSorted(order)

	case common.Modify:
		if d.NewOrderID == 0 {
			// Quantity-only modify re-rested the same id; remove it.
			ob.removeOrder(d.OrderID)
		} else {
			ob.removeOrder(d.NewOrderID)
			delete(ob.birthTS, d.NewOrderID)
		}

		origTS, ok := ob.birthTS[d.OrderID]
		if !ok {
			origTS = prevTimestamp
		}
		order := &common.Order{
			OrderID: d.OrderID, ClientID: d.ClientID, Side: d.Side,
			Price: d.Price, Quantity: d.Quantity, Timestamp: origTS,
		}
		ob.addOrderSorted(order)

	default:
		return fmt.Errorf("%w: %v", common.ErrInvalidDeltaType, d.Type)
	}

	ob.currentTS = prevTimestamp
	return nil
}

// CurrentTS returns the timestamp of the most recently applied (or
// reverse-applied) delta.
func (ob *OrderBook) CurrentTS() int64 { return ob.currentTS }

// GetOrder returns the resting order with the given id, if any.
func (ob *OrderBook) GetOrder(orderID int64) (*common.Order, bool) {
	entry, ok := ob.registry[orderID]
	if !ok {
		return nil, false
	}
	tree := ob.sideTree(entry.side)
	lvl, ok := tree.GetMut(&PriceLevel{Price: entry.price})
	if !ok {
		return nil, false
	}
	for _, o := range lvl.Orders {
		if o.OrderID == orderID {
			return o, true
		}
	}
	return nil, false
}

// OrdersAt returns the FIFO-ordered orders resting at (side, price).
func (ob *OrderBook) OrdersAt(side common.Side, price int64) []*common.Order {
	tree := ob.sideTree(side)
	lvl, ok := tree.Get(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	out := make([]*common.Order, len(lvl.Orders))
	copy(out, lvl.Orders)
	return out
}

// LevelQty is an aggregated (price, total quantity) pair.
type LevelQty struct {
	Price    int64
	Quantity int64
}

func levelQty(lvl *PriceLevel) LevelQty {
	var total int64
	for _, o := range lvl.Orders {
		total += o.Quantity
	}
	return LevelQty{Price: lvl.Price, Quantity: total}
}

// BestBid returns the top-of-book bid level, if any.
func (ob *OrderBook) BestBid() (LevelQty, bool) {
	lvl, ok := ob.bids.Min()
	if !ok {
		return LevelQty{}, false
	}
	return levelQty(lvl), true
}

// BestAsk returns the top-of-book ask level, if any.
func (ob *OrderBook) BestAsk() (LevelQty, bool) {
	lvl, ok := ob.asks.Min()
	if !ok {
		return LevelQty{}, false
	}
	return levelQty(lvl), true
}

// Spread returns BestAsk - BestBid, if both sides are non-empty.
func (ob *OrderBook) Spread() (int64, bool) {
	bb, bbOk := ob.BestBid()
	ba, baOk := ob.BestAsk()
	if !bbOk || !baOk {
		return 0, false
	}
	return ba.Price - bb.Price, true
}

// Midpoint returns the average of best bid and best ask, if both sides
// are non-empty.
func (ob *OrderBook) Midpoint() (float64, bool) {
	bb, bbOk := ob.BestBid()
	ba, baOk := ob.BestAsk()
	if !bbOk || !baOk {
		return 0, false
	}
	return float64(bb.Price+ba.Price) / 2, true
}

// Depth returns up to levels price levels on each side, best-of-book
// first.
func (ob *OrderBook) Depth(levels int) (bids, asks []LevelQty) {
	ob.bids.Scan(func(lvl *PriceLevel) bool {
		if len(bids) >= levels {
			return false
		}
		bids = append(bids, levelQty(lvl))
		return true
	})
	ob.asks.Scan(func(lvl *PriceLevel) bool {
		if len(asks) >= levels {
			return false
		}
		asks = append(asks, levelQty(lvl))
		return true
	})
	return bids, asks
}

// FullDepth returns every price level on each side, best-of-book first.
func (ob *OrderBook) FullDepth() (bids, asks []LevelQty) {
	ob.bids.Scan(func(lvl *PriceLevel) bool {
		bids = append(bids, levelQty(lvl))
		return true
	})
	ob.asks.Scan(func(lvl *PriceLevel) bool {
		asks = append(asks, levelQty(lvl))
		return true
	})
	return bids, asks
}

// BidLevels returns every bid PriceLevel, best first, for structural
// comparison against a reference snapshot.
func (ob *OrderBook) BidLevels() []*PriceLevel {
	var out []*PriceLevel
	ob.bids.Scan(func(lvl *PriceLevel) bool {
		out = append(out, lvl)
		return true
	})
	return out
}

// AskLevels returns every ask PriceLevel, best first, for structural
// comparison against a reference snapshot.
func (ob *OrderBook) AskLevels() []*PriceLevel {
	var out []*PriceLevel
	ob.asks.Scan(func(lvl *PriceLevel) bool {
		out = append(out, lvl)
		return true
	})
	return out
}
