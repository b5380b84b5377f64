package asanalysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// WriteCSV writes one row per fill to path, in the column layout the
// reference analyzer's per-fill export uses.
func WriteCSV(fills []Fill, horizons []int64, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("asanalysis: create %s: %w", path, err)
	}
	defer f.Close()
	return writeCSV(fills, horizons, f)
}

func writeCSV(fills []Fill, horizons []int64, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"fill_timestamp", "trade_id", "mm_order_id", "mm_side", "quote_age", "fill_price", "fair_price", "immediate_as"}
	for _, h := range horizons {
		header = append(header, fmt.Sprintf("realized_as_%d", h))
	}
	header = append(header, "counterparty_id", "counterparty_type")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, fill := range fills {
		row := []string{
			strconv.FormatInt(fill.FillTimestamp, 10),
			strconv.FormatInt(fill.TradeID, 10),
			strconv.FormatInt(fill.MMOrderID, 10),
			fill.MMSide.String(),
			strconv.FormatInt(fill.QuoteAge, 10),
			strconv.FormatInt(fill.FillPrice, 10),
			strconv.FormatInt(fill.FairPrice, 10),
			strconv.FormatInt(fill.ImmediateAS, 10),
		}
		for _, h := range horizons {
			if v := fill.RealizedAS[h]; v != nil {
				row = append(row, strconv.FormatInt(*v, 10))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, strconv.FormatInt(fill.CounterpartyID, 10), fill.CounterpartyType)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// ConsoleSummary renders the same quote-age breakdown the reference
// analyzer prints, as a single string ready to log or print.
func ConsoleSummary(fills []Fill, mmClientID int64, horizons []int64, numBuckets int) string {
	if len(fills) == 0 {
		return "No MM maker fills found."
	}

	cpCounts := make(map[string]int)
	for _, f := range fills {
		cpCounts[f.CounterpartyType]++
	}
	cpTypes := make([]string, 0, len(cpCounts))
	for t := range cpCounts {
		cpTypes = append(cpTypes, t)
	}
	sort.Strings(cpTypes)

	out := fmt.Sprintf("Adverse Selection Analysis (MM client_id=%d)\n", mmClientID)
	out += "============================================================\n"
	out += fmt.Sprintf("Total MM fills: %d (maker only)\n", len(fills))
	for _, t := range cpTypes {
		count := cpCounts[t]
		pct := 100 * float64(count) / float64(len(fills))
		out += fmt.Sprintf("  vs %s: %d (%.1f%%)\n", t, count, pct)
	}

	_, bucketStats := Summarize(fills, horizons, numBuckets)

	var displayHorizon int64
	haveHorizon := len(horizons) > 0
	if haveHorizon {
		displayHorizon = horizons[len(horizons)/2]
	}

	out += "\nBy Quote Age:\n"
	header := fmt.Sprintf("  %-14s | %5s | %12s | %11s", "Bucket", "Count", "Mean Imm. AS", "Med Imm. AS")
	if haveHorizon {
		header += fmt.Sprintf(" | %12s", fmt.Sprintf("Mean AS@%d", displayHorizon))
	}
	header += fmt.Sprintf(" | %10s", "% Informed")
	out += header + "\n"
	out += "  " + dashes(len(header)-2) + "\n"

	for _, bs := range bucketStats {
		line := fmt.Sprintf("  %-14s | %5d | %12.1f | %11.1f", bs.Label, bs.Count, bs.MeanImmediateAS, bs.MedianImmediateAS)
		if haveHorizon {
			rasStr := "N/A"
			if v := bs.MeanRealizedAS[displayHorizon]; v != nil {
				rasStr = fmt.Sprintf("%.1f", *v)
			}
			line += fmt.Sprintf(" | %12s", rasStr)
		}
		line += fmt.Sprintf(" | %9.1f%%", bs.InformedPct)
		out += line + "\n"
	}

	return out
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
