package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk layout of a seed file.
//
//	entities:
//	  - name: Blue Whale
//	    description: largest animal
//	    category: animal
type SeedFile struct {
	Entities []Entity `yaml:"entities"`
}

// LoadSeed reads entities from a YAML seed file.
func LoadSeed(path string) ([]Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return sf.Entities, nil
}

// seedMarkerName records the hash of the last seed file applied to a data dir.
const seedMarkerName = ".odsearch.seeded"

// Seed ingests every entity from the seed file as one batch and syncs the WAL.
// A data dir is seeded once per seed content: if the marker already holds the
// file's hash, nothing is ingested and applied is false.
func (qe *QueryEngine) Seed(path string) (n int, applied bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("read seed file: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	markerPath := filepath.Join(qe.dataDir, seedMarkerName)
	if prev, err := os.ReadFile(markerPath); err == nil && strings.TrimSpace(string(prev)) == hash {
		return 0, false, nil
	}

	entities, err := LoadSeed(path)
	if err != nil {
		return 0, false, err
	}
	if _, err := qe.IngestBatch(entities); err != nil {
		return 0, false, fmt.Errorf("seed %s: %w", path, err)
	}
	if err := qe.SyncWAL(); err != nil {
		return 0, false, err
	}

	// Rows are durable in the WAL before the marker is written
	if err := os.WriteFile(markerPath, []byte(hash+"\n"), 0644); err != nil {
		return len(entities), true, fmt.Errorf("write seed marker: %w", err)
	}
	return len(entities), true, nil
}
