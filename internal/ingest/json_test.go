package ingest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketreplay/internal/common"
	"marketreplay/internal/ingest"
)

func TestReadMetadata_KeysByClientID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "metadata.json", `{"agents": [{"client_id": 5, "type": "MarketMaker"}, {"client_id": 6, "type": "NoiseTrader"}]}`)

	agents, err := ingest.ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, common.MarketMaker, agents[5].Type)
	assert.Equal(t, common.NoiseTrader, agents[6].Type)
}

func TestReadSnapshot_ParsesSideAsString(t *testing.T) {
	dir := t.TempDir()
	body := `{"timestamp": 100, "sequence_num": 1, "order_books": {"1": {"bids": [{"price": 1000, "orders": [{"order_id": 1, "client_id": 10, "quantity": 50, "price": 1000, "side": "BUY"}]}], "asks": []}}, "pnl": {}}`
	path := writeFile(t, dir, "state_000001.json", body)

	ref, err := ingest.ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, ref.OrderBooks[1].Bids, 1)
	assert.Equal(t, common.Buy, ref.OrderBooks[1].Bids[0].Orders[0].Side)
}

func TestListSnapshots_SortsByFilenameAndSkipsNonJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state_000002.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state_000001.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte(`x`), 0o644))

	paths, err := ingest.ListSnapshots(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "state_000001.json")
	assert.Contains(t, paths[1], "state_000002.json")
}
