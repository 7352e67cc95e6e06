package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// PersistentStats holds cumulative statistics that survive restarts.
type PersistentStats struct {
	TotalEntities  int64            `json:"total_entities"`
	TotalBytes     int64            `json:"total_bytes"`
	CategoryCounts map[string]int64 `json:"category_counts"` // Category -> count
}

// SystemStats contains high-level system metrics for API response.
type SystemStats struct {
	TotalEntities    int64          `json:"total_entities"`    // total count
	MemTableEntities int            `json:"memtable_entities"` // not yet flushed
	Snapshots        int            `json:"snapshots"`         // snapshot file count
	DiskUsage        int64          `json:"disk_usage"`        // bytes
	Categories       map[string]int `json:"categories"`        // e.g. "fruit": 50
}

// statsFileName is the filename for persisted stats
const statsFileName = ".odsearch.stats"

// loadPersistentStats reads stats from disk.
func loadPersistentStats(dataDir string) PersistentStats {
	stats := PersistentStats{
		CategoryCounts: make(map[string]int64),
	}

	path := filepath.Join(dataDir, statsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		// File doesn't exist or can't be read, return empty stats
		return stats
	}

	if err := json.Unmarshal(data, &stats); err != nil {
		// Corrupted file, return empty stats
		return stats
	}

	if stats.CategoryCounts == nil {
		stats.CategoryCounts = make(map[string]int64)
	}

	return stats
}

// savePersistentStats writes stats to disk atomically.
func savePersistentStats(dataDir string, stats PersistentStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, statsFileName)
	tmpPath := path + ".tmp"

	// Write to temp file first
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpPath, path)
}

// Stats merges persisted and in-memory counters.
func (qe *QueryEngine) Stats() SystemStats {
	qe.mu.RLock()
	memRows := qe.mt.Rows()
	files, _ := qe.findSnapshots()
	qe.mu.RUnlock()

	qe.statsLock.RLock()
	diskStats := qe.globalStats
	categories := make(map[string]int, len(diskStats.CategoryCounts))
	for cat, count := range diskStats.CategoryCounts {
		categories[cat] += int(count)
	}
	qe.statsLock.RUnlock()

	for _, e := range memRows {
		categories[e.Category]++
	}

	stats := SystemStats{
		TotalEntities:    diskStats.TotalEntities + int64(len(memRows)),
		MemTableEntities: len(memRows),
		Snapshots:        len(files),
		Categories:       categories,
	}

	// Calculate actual Disk Usage
	var size int64
	_ = filepath.Walk(qe.dataDir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	stats.DiskUsage = size

	return stats
}
