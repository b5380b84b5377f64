package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"marketreplay/internal/comparator"
	"marketreplay/internal/common"
)

type agentRecord struct {
	ClientID int64  `json:"client_id"`
	Type     string `json:"type"`
}

type metadataFile struct {
	Agents []agentRecord `json:"agents"`
}

// ReadMetadata reads the participant-role metadata file, keyed by
// client_id. Client ids absent from the file are the caller's
// responsibility to treat as common.UnknownAgent.
func ReadMetadata(path string) (map[int64]common.AgentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read metadata: %w", err)
	}
	var m metadataFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ingest: parse metadata: %w", err)
	}
	out := make(map[int64]common.AgentInfo, len(m.Agents))
	for _, a := range m.Agents {
		out[a.ClientID] = common.AgentInfo{ClientID: a.ClientID, Type: a.Type}
	}
	return out, nil
}

// ReadSnapshot reads one reference state export file.
func ReadSnapshot(path string) (comparator.ReferenceState, error) {
	var ref comparator.ReferenceState
	data, err := os.ReadFile(path)
	if err != nil {
		return ref, fmt.Errorf("ingest: read snapshot %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, fmt.Errorf("ingest: parse snapshot %s: %w", path, err)
	}
	return ref, nil
}

// ListSnapshots returns every .json file directly under dir, sorted by
// file name; for zero-padded state_NNNNNN.json names this is sequence
// order. File names are not otherwise filtered.
func ListSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: list snapshots in %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
