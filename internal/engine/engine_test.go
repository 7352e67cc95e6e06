package engine

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/coffersTech/odsearch/internal/pkg/search"
	"github.com/stvp/assert"
)

// jsonSnapshots stores snapshots as plain JSON so the engine can be tested
// without the storage package.
func jsonSnapshots() (SnapshotReaderFunc, SnapshotWriterFunc) {
	reader := func(path string) ([]Entity, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var rows []Entity
		err = json.Unmarshal(data, &rows)
		return rows, err
	}
	writer := func(path string, mt *MemTable) error {
		data, err := json.Marshal(mt.Rows())
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	}
	return reader, writer
}

func newTestEngine(t *testing.T, dir string) *QueryEngine {
	t.Helper()
	reader, writer := jsonSnapshots()
	qe, err := NewQueryEngine(dir, reader, writer)
	if err != nil {
		t.Fatalf("NewQueryEngine: %v", err)
	}
	return qe
}

func mustParse(t *testing.T, query string) search.Node {
	t.Helper()
	expr, err := search.Parse(query)
	if err != nil {
		t.Fatalf("parse %q: %v", query, err)
	}
	return expr.Root
}

func names(rows []Entity) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

var fixtures = []Entity{
	{Name: "Blue Whale", Description: "largest animal", Category: "animal", CreatedAt: 1},
	{Name: "Blue Cheese", Description: "mould ripened", Category: "food", CreatedAt: 2},
	{Name: "Green Apple", Description: "sour fruit", Category: "food", CreatedAt: 3},
	{Name: "Red Fox", Description: "small animal", Category: "animal", CreatedAt: 4},
}

func ingestAll(t *testing.T, qe *QueryEngine, rows []Entity) {
	t.Helper()
	for _, e := range rows {
		if _, err := qe.Ingest(e); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
}

func TestIngestAssignsIdentity(t *testing.T) {
	qe := newTestEngine(t, t.TempDir())
	defer qe.Close()

	e, err := qe.Ingest(Entity{Name: "Blue Whale"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.CreatedAt == 0 {
		t.Error("expected generated timestamp")
	}

	kept, _ := qe.Ingest(Entity{ID: "fixed", Name: "x", CreatedAt: 7})
	assert.Equal(t, kept.ID, "fixed")
	assert.Equal(t, kept.CreatedAt, int64(7))
}

func TestSearchMemTable(t *testing.T) {
	qe := newTestEngine(t, t.TempDir())
	defer qe.Close()
	ingestAll(t, qe, fixtures)

	tests := []struct {
		query    string
		expected []string
	}{
		{"blue", []string{"Blue Cheese", "Blue Whale"}},
		{"blue AND animal", []string{"Blue Whale"}},
		{"blue animal", []string{"Blue Whale"}},
		{"cheese OR fox", []string{"Red Fox", "Blue Cheese"}},
		{"animal NOT blue", []string{"Red Fox"}},
		{"NOT (blue OR red)", []string{"Green Apple"}},
		{`"sour fruit"`, []string{"Green Apple"}},
		{"zebra", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rows, err := qe.Search(mustParse(t, tt.query), 0, 0)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			assert.Equal(t, names(rows), tt.expected)
		})
	}
}

func TestSearchTopSkip(t *testing.T) {
	qe := newTestEngine(t, t.TempDir())
	defer qe.Close()
	ingestAll(t, qe, fixtures)

	rows, err := qe.Search(nil, 2, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	assert.Equal(t, names(rows), []string{"Green Apple", "Blue Cheese"})
}

func TestSearchAcrossSnapshots(t *testing.T) {
	dir := t.TempDir()
	qe := newTestEngine(t, dir)
	defer qe.Close()

	ingestAll(t, qe, fixtures[:2])
	if err := qe.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	ingestAll(t, qe, fixtures[2:])

	snaps, _ := filepath.Glob(filepath.Join(dir, "entities_*.snap"))
	assert.Equal(t, len(snaps), 1)

	rows, err := qe.Search(nil, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	assert.Equal(t, names(rows), []string{"Red Fox", "Green Apple", "Blue Cheese", "Blue Whale"})

	rows, _ = qe.Search(mustParse(t, "animal"), 0, 1)
	assert.Equal(t, names(rows), []string{"Blue Whale"})
}

func TestFlushOnThreshold(t *testing.T) {
	dir := t.TempDir()
	qe := newTestEngine(t, dir)
	defer qe.Close()
	qe.MaxTableSize = 1

	ingestAll(t, qe, fixtures[:2])

	snaps, _ := filepath.Glob(filepath.Join(dir, "entities_*.snap"))
	assert.Equal(t, len(snaps), 2)
	assert.Equal(t, qe.mt.Len(), 0)
}

func TestSnapshotNameCollision(t *testing.T) {
	dir := t.TempDir()
	qe := newTestEngine(t, dir)
	defer qe.Close()

	for i := 0; i < 2; i++ {
		ingestAll(t, qe, []Entity{{Name: "same", CreatedAt: 10}})
		if err := qe.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	}

	rows, _ := qe.Search(nil, 0, 0)
	assert.Equal(t, len(rows), 2)
}

func TestWALRecovery(t *testing.T) {
	dir := t.TempDir()
	qe := newTestEngine(t, dir)
	ingestAll(t, qe, fixtures)
	if err := qe.SyncWAL(); err != nil {
		t.Fatalf("SyncWAL: %v", err)
	}
	// Simulate a crash: close the WAL without flushing
	qe.wal.Close()

	recovered := newTestEngine(t, dir)
	defer recovered.Close()
	assert.Equal(t, recovered.mt.Len(), len(fixtures))

	rows, _ := recovered.Search(mustParse(t, "fox"), 0, 0)
	assert.Equal(t, names(rows), []string{"Red Fox"})
}

func TestFacets(t *testing.T) {
	qe := newTestEngine(t, t.TempDir())
	defer qe.Close()
	ingestAll(t, qe, fixtures[:3])
	qe.Flush()
	ingestAll(t, qe, fixtures[3:])

	buckets, err := qe.Facets(nil)
	if err != nil {
		t.Fatalf("Facets: %v", err)
	}
	assert.Equal(t, buckets, []FacetBucket{{"animal", 2}, {"food", 2}})

	buckets, _ = qe.Facets(mustParse(t, "blue"))
	assert.Equal(t, buckets, []FacetBucket{{"animal", 1}, {"food", 1}})
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	qe := newTestEngine(t, dir)
	ingestAll(t, qe, fixtures[:3])
	qe.Flush()
	ingestAll(t, qe, fixtures[3:])

	stats := qe.Stats()
	assert.Equal(t, stats.TotalEntities, int64(4))
	assert.Equal(t, stats.MemTableEntities, 1)
	assert.Equal(t, stats.Snapshots, 1)
	assert.Equal(t, stats.Categories["food"], 2)
	assert.Equal(t, stats.Categories["animal"], 2)
	if stats.DiskUsage == 0 {
		t.Error("expected non-zero disk usage")
	}
	qe.Close()

	// Persisted counters survive a restart
	reopened := newTestEngine(t, dir)
	defer reopened.Close()
	assert.Equal(t, reopened.Stats().TotalEntities, int64(4))
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	content := `entities:
  - name: Blue Whale
    description: largest animal
    category: animal
  - id: fixed-id
    name: Green Apple
    category: food
    created_at: 42
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rows, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	assert.Equal(t, len(rows), 2)
	assert.Equal(t, rows[1].ID, "fixed-id")
	assert.Equal(t, rows[1].CreatedAt, int64(42))

	qe := newTestEngine(t, filepath.Join(dir, "data"))
	defer qe.Close()
	n, applied, err := qe.Seed(path)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	assert.Equal(t, n, 2)
	assert.True(t, applied)

	found, _ := qe.Search(mustParse(t, "apple"), 0, 0)
	assert.Equal(t, len(found), 1)
	assert.Equal(t, found[0].ID, "fixed-id")
}

func TestLoadSeedErrors(t *testing.T) {
	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("entities: [::"), 0644)
	if _, err := LoadSeed(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func writeSeed(t *testing.T, path, name string) {
	t.Helper()
	content := "entities:\n  - name: " + name + "\n    category: animal\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSeedAppliedOnce(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	writeSeed(t, seedPath, "Blue Whale")

	tests := []struct {
		name  string
		crash bool
	}{
		{"clean restart", false},
		{"crash restart", true},
	}

	qe := newTestEngine(t, dir)
	if _, applied, err := qe.Seed(seedPath); err != nil || !applied {
		t.Fatalf("first Seed: applied=%v err=%v", applied, err)
	}
	qe.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := newTestEngine(t, dir)
			n, applied, err := qe.Seed(seedPath)
			if err != nil {
				t.Fatalf("Seed: %v", err)
			}
			assert.False(t, applied)
			assert.Equal(t, n, 0)
			assert.Equal(t, qe.Stats().TotalEntities, int64(1))

			if tt.crash {
				qe.wal.Close()
			} else {
				qe.Close()
			}
		})
	}

	reopened := newTestEngine(t, dir)
	defer reopened.Close()
	rows, _ := reopened.Search(nil, 0, 0)
	assert.Equal(t, names(rows), []string{"Blue Whale"})
}

func TestSeedReappliedWhenContentChanges(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	writeSeed(t, seedPath, "Blue Whale")

	qe := newTestEngine(t, dir)
	qe.Seed(seedPath)
	qe.Close()

	writeSeed(t, seedPath, "Red Fox")
	qe = newTestEngine(t, dir)
	defer qe.Close()
	n, applied, err := qe.Seed(seedPath)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	assert.True(t, applied)
	assert.Equal(t, n, 1)
	assert.Equal(t, qe.Stats().TotalEntities, int64(2))
}

func TestIngestBatchAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	qe := newTestEngine(t, dir)

	stored, err := qe.IngestBatch(fixtures[:2])
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	assert.Equal(t, len(stored), 2)
	if stored[0].ID == "" || stored[1].ID == "" {
		t.Error("expected generated IDs")
	}

	// A WAL that cannot be written rejects the whole batch
	qe.wal.Close()
	_, err = qe.IngestBatch(fixtures[2:])
	if err == nil {
		t.Fatal("expected WAL write error")
	}
	assert.Equal(t, qe.mt.Len(), 2)

	recovered := newTestEngine(t, dir)
	defer recovered.Close()
	assert.Equal(t, recovered.mt.Len(), 2)
}

func TestIngestKeepsRowsWhenFlushFails(t *testing.T) {
	dir := t.TempDir()
	reader, _ := jsonSnapshots()
	failing := func(string, *MemTable) error { return errors.New("disk full") }
	qe, err := NewQueryEngine(dir, reader, failing)
	if err != nil {
		t.Fatal(err)
	}
	qe.MaxTableSize = 1

	stored, err := qe.IngestBatch(fixtures)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	assert.Equal(t, len(stored), len(fixtures))

	rows, _ := qe.Search(nil, 0, 0)
	assert.Equal(t, len(rows), len(fixtures))

	snaps, _ := filepath.Glob(filepath.Join(dir, "entities_*"))
	assert.Equal(t, len(snaps), 0)

	// Rows are still durable in the WAL
	qe.wal.Close()
	recovered := newTestEngine(t, dir)
	defer recovered.Close()
	assert.Equal(t, recovered.mt.Len(), len(fixtures))
}
