// Package asanalysis measures adverse selection on a market maker's
// resting quotes: how the age of a quote at fill time relates to the
// immediate and realized cost of being picked off.
package asanalysis

import (
	"errors"
	"sort"

	"marketreplay/internal/common"
)

// ErrNoMarketMaker is returned when metadata names no MarketMaker
// participant and no explicit client id was given.
var ErrNoMarketMaker = errors.New("no MarketMaker agent found in metadata")

// ErrAmbiguousMarketMaker is returned when metadata names more than one
// MarketMaker participant and no explicit client id was given.
var ErrAmbiguousMarketMaker = errors.New("multiple MarketMaker agents found, specify one explicitly")

// Fill is one trade where the market maker was the resting (maker)
// side.
type Fill struct {
	FillTimestamp    int64
	TradeID          int64
	MMOrderID        int64
	MMSide           common.Side
	QuoteAge         int64
	FillPrice        int64
	FairPrice        int64
	ImmediateAS      int64
	RealizedAS       map[int64]*int64 // horizon -> value, nil if unavailable
	CounterpartyID   int64
	CounterpartyType string
}

// BuildLifecycle scans a delta stream and returns order_id -> most
// recent ADD/MODIFY timestamp. MODIFY resets the clock; a
// price-changing MODIFY (new_order_id != 0) also anchors the
// replacement id at the MODIFY tick.
func BuildLifecycle(deltas []common.Delta) map[int64]int64 {
	lifecycle := make(map[int64]int64)
	for _, d := range deltas {
		switch d.Type {
		case common.Add:
			lifecycle[d.OrderID] = d.Timestamp
		case common.Modify:
			lifecycle[d.OrderID] = d.Timestamp
			if d.NewOrderID != 0 {
				lifecycle[d.NewOrderID] = d.Timestamp
			}
		}
	}
	return lifecycle
}

// FairPriceSeries is a pair of parallel arrays sorted ascending by
// timestamp, suitable for FairPriceAt's binary search.
type FairPriceSeries struct {
	Timestamps []int64
	FairPrices []int64
}

// NewFairPriceSeries builds a FairPriceSeries from a market-state
// stream, which is already expected ascending by timestamp.
func NewFairPriceSeries(points []common.MarketStatePoint) FairPriceSeries {
	s := FairPriceSeries{
		Timestamps: make([]int64, len(points)),
		FairPrices: make([]int64, len(points)),
	}
	for i, p := range points {
		s.Timestamps[i] = p.Timestamp
		s.FairPrices[i] = p.FairPrice
	}
	return s
}

// FairPriceAt returns the fair price at the first timestamp >= target,
// or false if target is past the end of the series.
func (s FairPriceSeries) FairPriceAt(target int64) (int64, bool) {
	idx := sort.Search(len(s.Timestamps), func(i int) bool { return s.Timestamps[i] >= target })
	if idx < len(s.Timestamps) {
		return s.FairPrices[idx], true
	}
	return 0, false
}

// FindMarketMaker resolves the single MarketMaker client_id from the
// metadata map; it errors if there are zero or more than one.
func FindMarketMaker(agents map[int64]common.AgentInfo) (int64, error) {
	var ids []int64
	for id, info := range agents {
		if info.Type == common.MarketMaker {
			ids = append(ids, id)
		}
	}
	switch len(ids) {
	case 0:
		return 0, ErrNoMarketMaker
	case 1:
		return ids[0], nil
	default:
		return 0, ErrAmbiguousMarketMaker
	}
}

// ComputeFills extracts every fill in which mmClientID was the resting
// (maker) side, computing quote age, immediate AS, and realized AS at
// each horizon.
func ComputeFills(
	trades []common.Trade,
	mmClientID int64,
	lifecycle map[int64]int64,
	fairPrices FairPriceSeries,
	agents map[int64]common.AgentInfo,
	horizons []int64,
) []Fill {
	var fills []Fill

	for _, tr := range trades {
		var mmOrderID, counterpartyID int64
		var mmSide common.Side
		switch {
		case tr.AggressorSide == common.Buy && tr.SellerID == mmClientID:
			mmOrderID = tr.SellerOrderID
			mmSide = common.Sell
			counterpartyID = tr.BuyerID
		case tr.AggressorSide == common.Sell && tr.BuyerID == mmClientID:
			mmOrderID = tr.BuyerOrderID
			mmSide = common.Buy
			counterpartyID = tr.SellerID
		default:
			continue
		}

		birthTS, ok := lifecycle[mmOrderID]
		if !ok {
			continue
		}
		quoteAge := tr.Timestamp - birthTS

		var immediateAS int64
		if mmSide == common.Buy {
			immediateAS = tr.FairPrice - tr.Price
		} else {
			immediateAS = tr.Price - tr.FairPrice
		}

		realized := make(map[int64]*int64, len(horizons))
		for _, h := range horizons {
			futureFP, ok := fairPrices.FairPriceAt(tr.Timestamp + h)
			if !ok {
				realized[h] = nil
				continue
			}
			var v int64
			if mmSide == common.Buy {
				v = futureFP - tr.Price
			} else {
				v = tr.Price - futureFP
			}
			realized[h] = &v
		}

		counterpartyType := common.UnknownAgent
		if info, ok := agents[counterpartyID]; ok {
			counterpartyType = info.Type
		}

		fills = append(fills, Fill{
			FillTimestamp:    tr.Timestamp,
			TradeID:          tr.TradeID,
			MMOrderID:        mmOrderID,
			MMSide:           mmSide,
			QuoteAge:         quoteAge,
			FillPrice:        tr.Price,
			FairPrice:        tr.FairPrice,
			ImmediateAS:      immediateAS,
			RealizedAS:       realized,
			CounterpartyID:   counterpartyID,
			CounterpartyType: counterpartyType,
		})
	}

	return fills
}
