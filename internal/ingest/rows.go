package ingest

import (
	"strconv"

	"marketreplay/internal/common"
)

func cell(row []string, col map[string]int, name string) string {
	if i, ok := col[name]; ok && i < len(row) {
		return row[i]
	}
	return ""
}

func cellInt(row []string, col map[string]int, name string) (int64, error) {
	v := cell(row, col, name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func parseDeltaRow(row []string, col map[string]int) (common.Delta, error) {
	var d common.Delta
	var err error

	if d.Timestamp, err = cellInt(row, col, "timestamp"); err != nil {
		return d, err
	}
	if d.SequenceNum, err = cellInt(row, col, "sequence_num"); err != nil {
		return d, err
	}
	if d.Type, err = common.ParseDeltaType(cell(row, col, "delta_type")); err != nil {
		return d, err
	}
	if d.OrderID, err = cellInt(row, col, "order_id"); err != nil {
		return d, err
	}
	if d.ClientID, err = cellInt(row, col, "client_id"); err != nil {
		return d, err
	}
	if d.InstrumentID, err = cellInt(row, col, "instrument_id"); err != nil {
		return d, err
	}
	if d.Side, err = common.ParseSide(cell(row, col, "side")); err != nil {
		return d, err
	}
	if d.Price, err = cellInt(row, col, "price"); err != nil {
		return d, err
	}
	if d.Quantity, err = cellInt(row, col, "quantity"); err != nil {
		return d, err
	}
	if d.RemainingQty, err = cellInt(row, col, "remaining_qty"); err != nil {
		return d, err
	}
	if d.NewOrderID, err = cellInt(row, col, "new_order_id"); err != nil {
		return d, err
	}
	if d.NewPrice, err = cellInt(row, col, "new_price"); err != nil {
		return d, err
	}
	if d.NewQuantity, err = cellInt(row, col, "new_quantity"); err != nil {
		return d, err
	}
	return d, nil
}

func parseTradeRow(row []string, col map[string]int) (common.Trade, error) {
	var t common.Trade
	var err error

	if t.Timestamp, err = cellInt(row, col, "timestamp"); err != nil {
		return t, err
	}
	if t.TradeID, err = cellInt(row, col, "trade_id"); err != nil {
		return t, err
	}
	if t.InstrumentID, err = cellInt(row, col, "instrument_id"); err != nil {
		return t, err
	}
	if t.BuyerID, err = cellInt(row, col, "buyer_id"); err != nil {
		return t, err
	}
	if t.SellerID, err = cellInt(row, col, "seller_id"); err != nil {
		return t, err
	}
	if t.BuyerOrderID, err = cellInt(row, col, "buyer_order_id"); err != nil {
		return t, err
	}
	if t.SellerOrderID, err = cellInt(row, col, "seller_order_id"); err != nil {
		return t, err
	}
	if t.Price, err = cellInt(row, col, "price"); err != nil {
		return t, err
	}
	if t.Quantity, err = cellInt(row, col, "quantity"); err != nil {
		return t, err
	}
	if t.AggressorSide, err = common.ParseSide(cell(row, col, "aggressor_side")); err != nil {
		return t, err
	}
	if t.FairPrice, err = cellInt(row, col, "fair_price"); err != nil {
		return t, err
	}
	return t, nil
}

func parseMarketStateRow(row []string, col map[string]int) (common.MarketStatePoint, error) {
	var p common.MarketStatePoint
	var err error

	if p.Timestamp, err = cellInt(row, col, "timestamp"); err != nil {
		return p, err
	}
	if p.FairPrice, err = cellInt(row, col, "fair_price"); err != nil {
		return p, err
	}
	if p.BestBid, err = cellInt(row, col, "best_bid"); err != nil {
		return p, err
	}
	if p.BestAsk, err = cellInt(row, col, "best_ask"); err != nil {
		return p, err
	}
	return p, nil
}
