// Package replayindex builds, in one streaming pass over an event CSV
// file, a map from stream position to byte offset, enabling random
// access and sequential navigation without holding the whole file in
// memory.
package replayindex

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"marketreplay/internal/common"
)

var (
	// ErrMissingColumn is a setup error: a required header column is
	// absent (spec Open Question Q1: instrument_id must be present).
	ErrMissingColumn = errors.New("required column missing from delta file header")
	// ErrEmpty names an event file with no data rows. Build does not
	// return it: such a file yields an Index with Len() == 0.
	ErrEmpty = errors.New("event file has no delta rows")
)

const (
	colTimestamp    = "timestamp"
	colSequenceNum  = "sequence_num"
	colDeltaType    = "delta_type"
	colOrderID      = "order_id"
	colClientID     = "client_id"
	colInstrumentID = "instrument_id"
	colSide         = "side"
	colPrice        = "price"
	colQuantity     = "quantity"
	colRemainingQty = "remaining_qty"
	colNewOrderID   = "new_order_id"
	colNewPrice     = "new_price"
	colNewQuantity  = "new_quantity"
)

// Index maps distinct stream timestamps to the byte offset of the first
// record bearing that timestamp. Rows are assumed sorted by
// (timestamp, sequence_num), with identical timestamps contiguous.
type Index struct {
	path      string
	headerEnd int64
	fields    []string
	colIndex  map[string]int

	timestamps []int64
	offsets    []int64
}

// Build performs one streaming pass over path, recording the offset of
// the first row at each distinct timestamp.
func Build(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replayindex: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	headerLine, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("replayindex: read header: %w", err)
	}

	fields, colIndex, err := parseHeader(headerLine)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		path:      path,
		headerEnd: int64(len(headerLine)),
		fields:    fields,
		colIndex:  colIndex,
	}

	offset := idx.headerEnd
	var lastTS int64
	haveLastTS := false

	for {
		line, err := r.ReadString('\n')
		if len(line) == 0 && err != nil {
			break
		}
		ts, parseErr := rowTimestamp(line, colIndex)
		if parseErr == nil {
			if !haveLastTS || ts != lastTS {
				idx.timestamps = append(idx.timestamps, ts)
				idx.offsets = append(idx.offsets, offset)
				lastTS = ts
				haveLastTS = true
			}
		}
		offset += int64(len(line))
		if err != nil {
			break
		}
	}

	return idx, nil
}

func parseHeader(line string) ([]string, map[string]int, error) {
	r := csv.NewReader(strings.NewReader(line))
	fields, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("replayindex: parse header: %w", err)
	}
	colIndex := make(map[string]int, len(fields))
	for i, f := range fields {
		colIndex[f] = i
	}
	if _, ok := colIndex[colInstrumentID]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, colInstrumentID)
	}
	required := []string{colTimestamp, colSequenceNum, colDeltaType, colOrderID, colSide, colPrice, colRemainingQty}
	for _, c := range required {
		if _, ok := colIndex[c]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return fields, colIndex, nil
}

func rowTimestamp(line string, colIndex map[string]int) (int64, error) {
	r := csv.NewReader(strings.NewReader(line))
	row, err := r.Read()
	if err != nil {
		return 0, err
	}
	idx, ok := colIndex[colTimestamp]
	if !ok || idx >= len(row) {
		return 0, fmt.Errorf("missing timestamp column")
	}
	return strconv.ParseInt(row[idx], 10, 64)
}

// Len returns the number of distinct timestamps in the index.
func (idx *Index) Len() int { return len(idx.timestamps) }

// Timestamp returns the k-th distinct timestamp.
func (idx *Index) Timestamp(k int) int64 { return idx.timestamps[k] }

// FindIndex returns the exact-match position of ts, or the index of the
// closest timestamp by absolute difference. Ties resolve to the lower
// index (Open Question Q2).
func (idx *Index) FindIndex(ts int64) int {
	n := len(idx.timestamps)
	if n == 0 {
		return -1
	}
	pos := sort.Search(n, func(i int) bool { return idx.timestamps[i] >= ts })
	if pos < n && idx.timestamps[pos] == ts {
		return pos
	}
	if pos == 0 {
		return 0
	}
	if pos == n {
		return n - 1
	}
	before := idx.timestamps[pos-1]
	after := idx.timestamps[pos]
	if ts-before <= after-ts {
		return pos - 1
	}
	return pos
}

// ReadAt streams every delta whose timestamp equals Timestamp(k).
func (idx *Index) ReadAt(k int) ([]common.Delta, error) {
	if k < 0 || k >= len(idx.timestamps) {
		return nil, fmt.Errorf("replayindex: index %d out of range [0,%d)", k, len(idx.timestamps))
	}
	target := idx.timestamps[k]
	return idx.readFrom(idx.offsets[k], func(d common.Delta) (keep, stop bool) {
		if d.Timestamp != target {
			return false, true
		}
		return true, false
	})
}

// ReadUpTo streams every delta from the start of the file through the
// end of timestamp Timestamp(k), inclusive.
func (idx *Index) ReadUpTo(k int) ([]common.Delta, error) {
	if k < 0 || k >= len(idx.timestamps) {
		return nil, fmt.Errorf("replayindex: index %d out of range [0,%d)", k, len(idx.timestamps))
	}
	target := idx.timestamps[k]
	return idx.readFrom(idx.headerEnd, func(d common.Delta) (keep, stop bool) {
		if d.Timestamp > target {
			return false, true
		}
		return true, false
	})
}

func (idx *Index) readFrom(offset int64, accept func(common.Delta) (keep, stop bool)) ([]common.Delta, error) {
	f, err := os.Open(idx.path)
	if err != nil {
		return nil, fmt.Errorf("replayindex: open %s: %w", idx.path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("replayindex: seek: %w", err)
	}

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = len(idx.fields)

	var out []common.Delta
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replayindex: read row: %w", err)
		}
		d, err := rowToDelta(row, idx.colIndex)
		if err != nil {
			return nil, err
		}
		keep, stop := accept(d)
		if keep {
			out = append(out, d)
		}
		if stop {
			break
		}
	}
	return out, nil
}

func rowToDelta(row []string, col map[string]int) (common.Delta, error) {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}
	parseInt := func(name string) (int64, error) {
		v := get(name)
		if v == "" {
			return 0, nil
		}
		return strconv.ParseInt(v, 10, 64)
	}

	var d common.Delta
	var err error

	if d.Timestamp, err = parseInt(colTimestamp); err != nil {
		return d, err
	}
	if d.SequenceNum, err = parseInt(colSequenceNum); err != nil {
		return d, err
	}
	if d.Type, err = common.ParseDeltaType(get(colDeltaType)); err != nil {
		return d, err
	}
	if d.OrderID, err = parseInt(colOrderID); err != nil {
		return d, err
	}
	if d.ClientID, err = parseInt(colClientID); err != nil {
		return d, err
	}
	if d.InstrumentID, err = parseInt(colInstrumentID); err != nil {
		return d, err
	}
	if d.Side, err = common.ParseSide(get(colSide)); err != nil {
		return d, err
	}
	if d.Price, err = parseInt(colPrice); err != nil {
		return d, err
	}
	if d.Quantity, err = parseInt(colQuantity); err != nil {
		return d, err
	}
	if d.RemainingQty, err = parseInt(colRemainingQty); err != nil {
		return d, err
	}
	if d.NewOrderID, err = parseInt(colNewOrderID); err != nil {
		return d, err
	}
	if d.NewPrice, err = parseInt(colNewPrice); err != nil {
		return d, err
	}
	if d.NewQuantity, err = parseInt(colNewQuantity); err != nil {
		return d, err
	}
	return d, nil
}
