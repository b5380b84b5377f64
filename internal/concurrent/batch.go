// Package concurrent runs the single-threaded validator core over many
// independent test-case directories in parallel, since each
// (directory -> ComparisonResult) is embarrassingly parallel even
// though no one case may ever suspend internally.
package concurrent

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"marketreplay/internal/comparator"
	"marketreplay/internal/validator"
)

// Status is the outcome of validating one test-case directory.
type Status int

const (
	Passed Status = iota
	Failed
	Errored
	Skipped
)

func (s Status) String() string {
	switch s {
	case Passed:
		return "PASS"
	case Failed:
		return "FAIL"
	case Errored:
		return "ERR"
	case Skipped:
		return "SKIP"
	default:
		return "???"
	}
}

// CaseResult is the outcome of validating one test-case directory.
type CaseResult struct {
	Name             string
	Status           Status
	StateComparisons int
	StateFailures    int
	ErrorMessage     string
	Differences      []string
}

func (r CaseResult) String() string {
	switch r.Status {
	case Passed:
		return r.Status.String() + " " + r.Name
	case Failed:
		return r.Status.String() + " " + r.Name
	default:
		if r.ErrorMessage != "" {
			return r.Status.String() + " " + r.Name + ": " + r.ErrorMessage
		}
		return r.Status.String() + " " + r.Name
	}
}

// BatchResult aggregates every test case's outcome.
type BatchResult struct {
	Cases []CaseResult
}

func (b BatchResult) Total() int    { return len(b.Cases) }
func (b BatchResult) Passed() int   { return b.count(Passed) }
func (b BatchResult) Failed() int   { return b.count(Failed) }
func (b BatchResult) Errored() int  { return b.count(Errored) }
func (b BatchResult) Skipped() int  { return b.count(Skipped) }
func (b BatchResult) Success() bool { return b.Failed() == 0 && b.Errored() == 0 }

func (b BatchResult) count(s Status) int {
	n := 0
	for _, c := range b.Cases {
		if c.Status == s {
			n++
		}
	}
	return n
}

// DiscoverCases finds every test_* subdirectory under root that has a
// states/ directory containing at least one state_*.json file.
func DiscoverCases(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "test_") {
			continue
		}
		candidate := filepath.Join(root, e.Name())
		statesDir := filepath.Join(candidate, "states")
		snapshots, err := os.ReadDir(statesDir)
		if err != nil {
			continue
		}
		hasState := false
		for _, s := range snapshots {
			if strings.HasPrefix(s.Name(), "state_") && strings.HasSuffix(s.Name(), ".json") {
				hasState = true
				break
			}
		}
		if hasState {
			dirs = append(dirs, candidate)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// RunBatch validates every case directory concurrently, using up to
// concurrency worker goroutines supervised by a tomb so one case's
// panic-free failure never starves the others.
func RunBatch(caseDirs []string, concurrency int) BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	jobs := make(chan string, len(caseDirs))
	for _, d := range caseDirs {
		jobs <- d
	}
	close(jobs)

	results := make(chan CaseResult, len(caseDirs))

	var t tomb.Tomb
	for i := 0; i < concurrency; i++ {
		t.Go(func() error {
			for {
				select {
				case <-t.Dying():
					return nil
				case dir, ok := <-jobs:
					if !ok {
						return nil
					}
					results <- validateCase(dir)
				}
			}
		})
	}
	_ = t.Wait()
	close(results)

	var batch BatchResult
	for r := range results {
		batch.Cases = append(batch.Cases, r)
	}
	sort.Slice(batch.Cases, func(i, j int) bool { return batch.Cases[i].Name < batch.Cases[j].Name })
	return batch
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func validateCase(dir string) CaseResult {
	name := filepath.Base(dir)
	logger := log.With().Str("case", name).Logger()

	deltasPath := filepath.Join(dir, "deltas.csv")
	statesDir := filepath.Join(dir, "states")

	if _, err := os.Stat(deltasPath); err != nil {
		return CaseResult{Name: name, Status: Errored, ErrorMessage: "Missing deltas.csv"}
	}
	if _, err := os.Stat(statesDir); err != nil {
		return CaseResult{Name: name, Status: Errored, ErrorMessage: "Missing states/ directory"}
	}

	var tradesPath string
	if candidate := filepath.Join(dir, "trades.csv"); fileExists(candidate) {
		tradesPath = candidate
	}

	v := validator.New(validator.Config{
		DeltasPath: deltasPath,
		TradesPath: tradesPath,
		StatesDir:  statesDir,
	})

	results, err := v.ValidateAll()
	if err != nil {
		logger.Error().Err(err).Msg("case validation setup error")
		return CaseResult{Name: name, Status: Errored, ErrorMessage: err.Error()}
	}
	if len(results) == 0 {
		return CaseResult{Name: name, Status: Errored, ErrorMessage: "No state files to validate"}
	}

	var failures []comparator.ComparisonResult
	var diffs []string
	for _, r := range results {
		if !r.Match {
			failures = append(failures, r)
			limit := 5
			if len(r.Differences) < limit {
				limit = len(r.Differences)
			}
			diffs = append(diffs, r.Differences[:limit]...)
		}
	}
	if len(diffs) > 20 {
		diffs = diffs[:20]
	}

	if len(failures) > 0 {
		return CaseResult{
			Name:             name,
			Status:           Failed,
			StateComparisons: len(results),
			StateFailures:    len(failures),
			Differences:      diffs,
		}
	}

	return CaseResult{Name: name, Status: Passed, StateComparisons: len(results)}
}
