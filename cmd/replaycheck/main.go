// Command replaycheck drives the two cross-checks this module exists
// for: replaying an exchange's delta/trade files and diffing the
// result against its reference state snapshots, and measuring adverse
// selection on a market maker's resting quotes. It reads its inputs
// from CROSS_VAL_OUTPUT_DIR and AS_TEST_OUTPUT_DIR and exits 0 only if
// every comparison it ran matched.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"

	"marketreplay/internal/asanalysis"
	"marketreplay/internal/concurrent"
	"marketreplay/internal/ingest"
	"marketreplay/internal/validator"
)

func main() {
	ranAnything := false
	allPassed := true

	if crossValDir := os.Getenv("CROSS_VAL_OUTPUT_DIR"); crossValDir != "" {
		ranAnything = true
		if !runCrossValidation(crossValDir) {
			allPassed = false
		}
	}

	if asDir := os.Getenv("AS_TEST_OUTPUT_DIR"); asDir != "" {
		ranAnything = true
		if !runAdverseSelection(asDir) {
			allPassed = false
		}
	}

	if !ranAnything {
		fmt.Fprintln(os.Stderr, "replaycheck: neither CROSS_VAL_OUTPUT_DIR nor AS_TEST_OUTPUT_DIR is set; nothing to do")
		os.Exit(1)
	}

	if !allPassed {
		os.Exit(1)
	}
}

func runCrossValidation(dir string) bool {
	logger := log.With().Str("stage", "cross_validation").Str("dir", dir).Logger()

	cases, err := concurrent.DiscoverCases(dir)
	if err != nil {
		logger.Error().Err(err).Msg("failed to discover test cases")
		return false
	}

	if len(cases) == 0 {
		if _, statErr := os.Stat(filepath.Join(dir, "deltas.csv")); statErr == nil {
			cases = []string{dir}
		}
	}

	if len(cases) == 0 {
		logger.Warn().Msg("no cross-validation test cases found")
		return false
	}

	batch := concurrent.RunBatch(cases, runtime.NumCPU())

	fmt.Println()
	fmt.Println(repeat("=", 60))
	fmt.Println("Cross-Validation Summary")
	fmt.Println(repeat("=", 60))
	for _, c := range batch.Cases {
		fmt.Println(c.String())
		for _, diff := range c.Differences {
			fmt.Println("    - " + diff)
		}
	}
	fmt.Printf("Total tests: %d\n", batch.Total())
	fmt.Printf("  Passed: %d\n", batch.Passed())
	fmt.Printf("  Failed: %d\n", batch.Failed())
	fmt.Printf("  Errors: %d\n", batch.Errored())
	fmt.Println()
	if batch.Success() {
		fmt.Println("ALL CROSS-VALIDATION TESTS PASSED")
	} else {
		fmt.Println("CROSS-VALIDATION FAILED")
	}

	return batch.Success()
}

func runAdverseSelection(dir string) bool {
	logger := log.With().Str("stage", "adverse_selection").Str("dir", dir).Logger()

	deltasPath := filepath.Join(dir, "deltas.csv")
	tradesPath := filepath.Join(dir, "trades.csv")
	marketStatePath := filepath.Join(dir, "market_state.csv")
	metadataPath := filepath.Join(dir, "metadata.json")

	for _, p := range []string{deltasPath, tradesPath, marketStatePath, metadataPath} {
		if _, err := os.Stat(p); err != nil {
			logger.Error().Str("path", p).Msg("required input file not found")
			return false
		}
	}

	agents, err := ingest.ReadMetadata(metadataPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read metadata")
		return false
	}

	mmClientID, err := asanalysis.FindMarketMaker(agents)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve market maker")
		return false
	}
	logger.Info().Int64("mm_client_id", mmClientID).Msg("resolved market maker")

	deltas, err := ingest.ReadDeltas(deltasPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read deltas")
		return false
	}
	lifecycle := asanalysis.BuildLifecycle(deltas)

	points, err := ingest.ReadMarketState(marketStatePath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read market state")
		return false
	}
	fairPrices := asanalysis.NewFairPriceSeries(points)

	trades, err := ingest.ReadTrades(tradesPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read trades")
		return false
	}

	horizons := []int64{50, 100, 200, 500}
	fills := asanalysis.ComputeFills(trades, mmClientID, lifecycle, fairPrices, agents, horizons)

	fmt.Println(asanalysis.ConsoleSummary(fills, mmClientID, horizons, 4))

	outPath := filepath.Join(dir, "adverse_selection.csv")
	if err := asanalysis.WriteCSV(fills, horizons, outPath); err != nil {
		logger.Error().Err(err).Msg("failed to write adverse_selection.csv")
		return false
	}
	fmt.Printf("Wrote %d fills to %s\n", len(fills), outPath)

	return true
}

func repeat(s string, n int) string {
	b := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		b = append(b, s...)
	}
	return string(b)
}
