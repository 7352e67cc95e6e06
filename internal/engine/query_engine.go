package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/odsearch/internal/pkg/search"
)

const snapshotExt = ".snap"

// SnapshotReaderFunc reads all entities stored in a snapshot file.
type SnapshotReaderFunc func(path string) ([]Entity, error)

// SnapshotWriterFunc writes a MemTable to a snapshot file.
// This allows the engine package to not depend on storage package directly.
type SnapshotWriterFunc func(path string, mt *MemTable) error

// QueryEngine handles $search execution and data lifecycle across
// in-memory and persisted entities.
type QueryEngine struct {
	dataDir    string
	mt         *MemTable
	readerFunc SnapshotReaderFunc
	writerFunc SnapshotWriterFunc

	// Configuration
	MaxTableSize int64

	// mu serializes ingestion and flushes against searches
	mu sync.RWMutex

	// Persistent Stats
	globalStats PersistentStats
	statsLock   sync.RWMutex // Protects globalStats

	// WAL for crash recovery
	wal *WAL
}

// NewQueryEngine creates a QueryEngine rooted at dataDir and replays any
// entities left in the WAL by a previous run.
func NewQueryEngine(dataDir string, readerFunc SnapshotReaderFunc, writerFunc SnapshotWriterFunc) (*QueryEngine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	wal, err := OpenWAL(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}

	qe := &QueryEngine{
		dataDir:      dataDir,
		mt:           NewMemTable(),
		readerFunc:   readerFunc,
		writerFunc:   writerFunc,
		MaxTableSize: 64 * 1024 * 1024, // 64MB Default
		globalStats:  loadPersistentStats(dataDir),
		wal:          wal,
	}

	// Crash Recovery: Replay WAL if it has data
	recovered, err := wal.Replay()
	if err != nil {
		slog.Warn("WAL replay incomplete", "error", err, "recovered", len(recovered))
	}
	if len(recovered) > 0 {
		slog.Info("crash recovery: replaying entities from WAL", "count", len(recovered))
		for _, e := range recovered {
			// Not via Ingest: the rows are already in the WAL
			qe.mt.Append(e)
		}
	}

	return qe, nil
}

// Ingest assigns missing identity fields, records the entity in the WAL and
// the MemTable, and flushes when the table reaches MaxTableSize.
func (qe *QueryEngine) Ingest(e Entity) (Entity, error) {
	stored, err := qe.IngestBatch([]Entity{e})
	if err != nil {
		return e, err
	}
	return stored[0], nil
}

// IngestBatch stores all entities or none of them. The batch is written to
// the WAL in one write before any entity reaches the MemTable. A failed
// threshold flush is logged and retried later since the rows are already
// durable in the WAL.
func (qe *QueryEngine) IngestBatch(es []Entity) ([]Entity, error) {
	now := time.Now().UnixNano()
	stored := make([]Entity, len(es))
	for i, e := range es {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt == 0 {
			e.CreatedAt = now
		}
		stored[i] = e
	}

	qe.mu.Lock()
	defer qe.mu.Unlock()

	// 1. Write to WAL first for durability
	if err := qe.wal.WriteBatch(stored); err != nil {
		return nil, fmt.Errorf("WAL write: %w", err)
	}

	// 2. Append to MemTable
	for _, e := range stored {
		qe.mt.Append(e)
	}

	if qe.MaxTableSize > 0 && qe.mt.GetSize() >= qe.MaxTableSize {
		slog.Info("MemTable reached threshold, flushing", "max_bytes", qe.MaxTableSize)
		if err := qe.flushLocked(); err != nil {
			slog.Error("threshold flush failed, rows kept in WAL", "error", err)
		}
	}
	return stored, nil
}

// SyncWAL flushes the WAL file to disk.
func (qe *QueryEngine) SyncWAL() error {
	return qe.wal.Sync()
}

// Flush writes the current MemTable to a snapshot file and resets it.
func (qe *QueryEngine) Flush() error {
	qe.mu.Lock()
	defer qe.mu.Unlock()
	return qe.flushLocked()
}

func (qe *QueryEngine) flushLocked() error {
	rowCount := qe.mt.Len()
	if rowCount == 0 {
		return nil
	}

	minTs, maxTs := qe.mt.TimeRange()
	path := qe.snapshotPath(minTs, maxTs)

	// === Step 1: Write file to disk ===
	if err := qe.writerFunc(path, qe.mt); err != nil {
		return fmt.Errorf("write snapshot %s: %w", filepath.Base(path), err)
	}

	// === Step 2: Stats transfer ===
	categoryCounts := make(map[string]int64)
	for _, cat := range qe.mt.CatCol {
		categoryCounts[cat]++
	}

	qe.statsLock.Lock()
	qe.globalStats.TotalEntities += int64(rowCount)
	qe.globalStats.TotalBytes += qe.mt.GetSize()
	for k, v := range categoryCounts {
		qe.globalStats.CategoryCounts[k] += v
	}
	stats := qe.globalStats
	qe.statsLock.Unlock()

	// === Step 3: Persist stats to disk ===
	if err := savePersistentStats(qe.dataDir, stats); err != nil {
		slog.Error("stats persist failed", "error", err)
	}

	// === Step 4: Reset MemTable and WAL ===
	qe.mt.Reset()
	if err := qe.wal.Reset(); err != nil {
		slog.Error("WAL reset failed", "error", err)
	}

	slog.Info("flushed to disk", "file", filepath.Base(path), "rows", rowCount)
	return nil
}

// snapshotPath returns an unused snapshot filename for the time range.
// Format: entities_{minTs}_{maxTs}.snap, with a sequence suffix on collision.
func (qe *QueryEngine) snapshotPath(minTs, maxTs int64) string {
	path := filepath.Join(qe.dataDir, fmt.Sprintf("entities_%d_%d%s", minTs, maxTs, snapshotExt))
	for seq := 1; ; seq++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(qe.dataDir, fmt.Sprintf("entities_%d_%d_%d%s", minTs, maxTs, seq, snapshotExt))
	}
}

// Search returns entities matching node, newest first, after skipping the
// first skip matches. top <= 0 means no limit. A nil node matches everything.
func (qe *QueryEngine) Search(node search.Node, top, skip int) ([]Entity, error) {
	qe.mu.RLock()
	defer qe.mu.RUnlock()

	result := make([]Entity, 0)
	done := false
	collect := func(e Entity) bool {
		if skip > 0 {
			skip--
			return true
		}
		result = append(result, e)
		if top > 0 && len(result) >= top {
			done = true
			return false
		}
		return true
	}

	// 1. Search MemTable first (memory)
	qe.mt.Scan(node, collect)
	if done {
		return result, nil
	}

	// 2. Search persisted files, newest first
	err := qe.scanSnapshots(node, collect)
	return result, err
}

// scanSnapshots calls fn for every matching entity in the snapshot files,
// newest file first, until fn returns false.
func (qe *QueryEngine) scanSnapshots(node search.Node, fn func(Entity) bool) error {
	files, err := qe.findSnapshots()
	if err != nil {
		return err
	}

	for _, file := range files {
		rows, err := qe.readerFunc(file)
		if err != nil {
			// Log error but continue with other files
			slog.Warn("skipping unreadable snapshot", "file", filepath.Base(file), "error", err)
			continue
		}

		for i := len(rows) - 1; i >= 0; i-- {
			if !search.Match(node, &rows[i]) {
				continue
			}
			if !fn(rows[i]) {
				return nil
			}
		}
	}
	return nil
}

// findSnapshots returns all snapshot files in the data directory, newest first.
func (qe *QueryEngine) findSnapshots() ([]string, error) {
	entries, err := os.ReadDir(qe.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Empty result if dir doesn't exist
		}
		return nil, err
	}

	type snapshot struct {
		path  string
		maxTs int64
	}
	var snaps []snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}
		_, maxTs, err := parseTsFromFilename(entry.Name())
		if err != nil {
			continue // Skip files with unexpected names
		}
		snaps = append(snaps, snapshot{path: filepath.Join(qe.dataDir, entry.Name()), maxTs: maxTs})
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].maxTs != snaps[j].maxTs {
			return snaps[i].maxTs > snaps[j].maxTs
		}
		return snaps[i].path > snaps[j].path
	})

	files := make([]string, len(snaps))
	for i, s := range snaps {
		files[i] = s.path
	}
	return files, nil
}

// parseTsFromFilename extracts min and max timestamps from a snapshot filename.
func parseTsFromFilename(filename string) (int64, int64, error) {
	base := filepath.Base(filename)
	if !strings.HasPrefix(base, "entities_") || !strings.HasSuffix(base, snapshotExt) {
		return 0, 0, fmt.Errorf("invalid format")
	}
	content := strings.TrimSuffix(strings.TrimPrefix(base, "entities_"), snapshotExt)
	parts := strings.Split(content, "_")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, fmt.Errorf("invalid parts")
	}
	minTs, err1 := strconv.ParseInt(parts[0], 10, 64)
	maxTs, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("invalid timestamps")
	}
	return minTs, maxTs, nil
}

// Close flushes remaining entities and closes the WAL.
func (qe *QueryEngine) Close() error {
	if err := qe.Flush(); err != nil {
		return err
	}
	return qe.wal.Close()
}
