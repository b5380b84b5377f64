// Package ingest reads the CSV and JSON artifacts a replay run consumes:
// delta streams, trade streams, market-state series, participant
// metadata, and reference snapshots.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"marketreplay/internal/common"
)

// ErrMissingColumn is a setup error: a required header column is absent
// from a delta or trade file (Open Question Q1: instrument_id, among
// others, must be present).
var ErrMissingColumn = errors.New("required column missing from file header")

var deltaColumns = []string{
	"timestamp", "sequence_num", "delta_type", "order_id", "client_id",
	"instrument_id", "side", "price", "quantity", "remaining_qty",
}

var tradeColumns = []string{
	"timestamp", "trade_id", "instrument_id", "buyer_id", "seller_id",
	"buyer_order_id", "seller_order_id", "price", "quantity", "aggressor_side", "fair_price",
}

func requireColumns(header []string, required []string) error {
	col := columnIndex(header)
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return nil
}

// ReadDeltas reads every delta row from a CSV file, sorted by
// (timestamp, sequence_num) as the validator requires.
func ReadDeltas(path string) ([]common.Delta, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read deltas: %w", err)
	}
	if err := requireColumns(header, deltaColumns); err != nil {
		return nil, fmt.Errorf("ingest: read deltas: %w", err)
	}
	col := columnIndex(header)

	deltas := make([]common.Delta, 0, len(rows))
	for _, row := range rows {
		d, err := parseDeltaRow(row, col)
		if err != nil {
			return nil, fmt.Errorf("ingest: parse delta row: %w", err)
		}
		deltas = append(deltas, d)
	}
	sort.SliceStable(deltas, func(i, j int) bool {
		if deltas[i].Timestamp != deltas[j].Timestamp {
			return deltas[i].Timestamp < deltas[j].Timestamp
		}
		return deltas[i].SequenceNum < deltas[j].SequenceNum
	})
	return deltas, nil
}

// ReadTrades reads every trade row from a CSV file, sorted by
// timestamp.
func ReadTrades(path string) ([]common.Trade, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read trades: %w", err)
	}
	if err := requireColumns(header, tradeColumns); err != nil {
		return nil, fmt.Errorf("ingest: read trades: %w", err)
	}
	col := columnIndex(header)

	trades := make([]common.Trade, 0, len(rows))
	for _, row := range rows {
		tr, err := parseTradeRow(row, col)
		if err != nil {
			return nil, fmt.Errorf("ingest: parse trade row: %w", err)
		}
		trades = append(trades, tr)
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Timestamp < trades[j].Timestamp })
	return trades, nil
}

// ReadMarketState reads the fair-price/best-bid/best-ask time series,
// already expected ascending by timestamp.
func ReadMarketState(path string) ([]common.MarketStatePoint, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read market state: %w", err)
	}
	col := columnIndex(header)

	points := make([]common.MarketStatePoint, 0, len(rows))
	for _, row := range rows {
		p, err := parseMarketStateRow(row, col)
		if err != nil {
			return nil, fmt.Errorf("ingest: parse market state row: %w", err)
		}
		points = append(points, p)
	}
	return points, nil
}

func readCSV(path string) (rows [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err = r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	return col
}
