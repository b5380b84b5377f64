package validator_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketreplay/internal/validator"
)

const deltasCSV = `timestamp,sequence_num,delta_type,order_id,client_id,instrument_id,side,price,quantity,remaining_qty,trade_id,new_order_id,new_price,new_quantity
100,1,ADD,1,10,1,BUY,1000,50,50,0,0,0,0
100,2,ADD,2,20,1,SELL,1001,50,50,0,0,0,0
200,3,FILL,1,10,1,BUY,1000,50,0,1,0,0,0
200,4,FILL,2,20,1,SELL,1001,50,0,1,0,0,0
`

const tradesCSV = `timestamp,trade_id,instrument_id,buyer_id,seller_id,buyer_order_id,seller_order_id,price,quantity,aggressor_side,fair_price
200,1,1,10,20,1,2,1000,50,BUY,1000
`

const stateAfterAdds = `{
  "timestamp": 100, "sequence_num": 1,
  "order_books": {"1": {
    "bids": [{"price": 1000, "orders": [{"order_id": 1, "client_id": 10, "quantity": 50, "price": 1000, "side": "BUY"}]}],
    "asks": [{"price": 1001, "orders": [{"order_id": 2, "client_id": 20, "quantity": 50, "price": 1001, "side": "SELL"}]}]
  }},
  "pnl": {}
}`

const stateAfterFills = `{
  "timestamp": 200, "sequence_num": 2,
  "order_books": {"1": {"bids": [], "asks": []}},
  "pnl": {"10": {"long_position": 50, "short_position": 0, "cash": -50000}, "20": {"long_position": 0, "short_position": 50, "cash": 50000}}
}`

func writeRun(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deltas.csv"), []byte(deltasCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trades.csv"), []byte(tradesCSV), 0o644))
	statesDir := filepath.Join(dir, "states")
	require.NoError(t, os.Mkdir(statesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(statesDir, "state_000001.json"), []byte(stateAfterAdds), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(statesDir, "state_000002.json"), []byte(stateAfterFills), 0o644))
	return dir
}

func TestValidateAll_MatchingSnapshotsProduceAllMatchResults(t *testing.T) {
	dir := writeRun(t)
	v := validator.New(validator.Config{
		DeltasPath: filepath.Join(dir, "deltas.csv"),
		TradesPath: filepath.Join(dir, "trades.csv"),
		StatesDir:  filepath.Join(dir, "states"),
	})

	results, err := v.ValidateAll()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, validator.AllMatch(results))
	for _, r := range results {
		assert.Empty(t, r.Differences, r.String())
	}
}

func TestValidateAll_MismatchedSnapshotProducesOneFailureAndContinues(t *testing.T) {
	dir := writeRun(t)
	bad := `{"timestamp": 100, "sequence_num": 1, "order_books": {"1": {"bids": [], "asks": []}}, "pnl": {}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "states", "state_000001.json"), []byte(bad), 0o644))

	v := validator.New(validator.Config{
		DeltasPath: filepath.Join(dir, "deltas.csv"),
		TradesPath: filepath.Join(dir, "trades.csv"),
		StatesDir:  filepath.Join(dir, "states"),
	})
	results, err := v.ValidateAll()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Match)
	assert.True(t, results[1].Match)
	assert.Contains(t, results[0].Differences[len(results[0].Differences)-1], "replay index: nearest tick")
}

func TestValidateAll_EmptyTradesPathSkipsTradeReplay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deltas.csv"), []byte(deltasCSV), 0o644))
	statesDir := filepath.Join(dir, "states")
	require.NoError(t, os.Mkdir(statesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(statesDir, "state_000001.json"), []byte(stateAfterAdds), 0o644))

	v := validator.New(validator.Config{
		DeltasPath: filepath.Join(dir, "deltas.csv"),
		StatesDir:  statesDir,
	})
	results, err := v.ValidateAll()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Match, results[0].String())
}

func TestValidateAll_MissingDeltasFileIsFatalSetupError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "states"), 0o755))

	v := validator.New(validator.Config{
		DeltasPath: filepath.Join(dir, "deltas.csv"),
		StatesDir:  filepath.Join(dir, "states"),
	})
	_, err := v.ValidateAll()
	assert.ErrorIs(t, err, validator.ErrMissingDeltas)
}

func TestValidateAll_NoSnapshotsYieldsSingleFailureResult(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deltas.csv"), []byte(deltasCSV), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "states"), 0o755))

	v := validator.New(validator.Config{
		DeltasPath: filepath.Join(dir, "deltas.csv"),
		StatesDir:  filepath.Join(dir, "states"),
	})
	results, err := v.ValidateAll()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Match)
}
