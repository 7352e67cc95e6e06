package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/coffersTech/odsearch/internal/engine"
	"github.com/stvp/assert"
)

func TestSnapshotRoundTrip(t *testing.T) {
	mt := engine.NewMemTable()
	rows := []engine.Entity{
		{ID: "a", Name: "Blue Whale", Description: "largest animal", Category: "animal", CreatedAt: 30},
		{ID: "b", Name: "Grüner Apfel", Description: "", Category: "food", CreatedAt: 10},
		{ID: "c", Name: "Red Fox", Description: "small animal", Category: "animal", CreatedAt: 20},
	}
	for _, r := range rows {
		mt.Append(r)
	}

	cw, err := NewColumnWriter()
	if err != nil {
		t.Fatal(err)
	}
	cr, err := NewColumnReader()
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "entities_10_30.snap")
	if err := cw.WriteSnapshot(path, mt); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	got, err := cr.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	assert.Equal(t, got, rows)

	it, err := cr.NewIterator(path)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	assert.Equal(t, it.Footer(), Footer{RowCount: 3, MinTs: 10, MaxTs: 30})
}

func TestEmptySnapshot(t *testing.T) {
	cw, _ := NewColumnWriter()
	cr, _ := NewColumnReader()

	path := filepath.Join(t.TempDir(), "empty.snap")
	if err := cw.WriteSnapshot(path, engine.NewMemTable()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := cr.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	assert.Equal(t, len(got), 0)
}

func TestInvalidSnapshot(t *testing.T) {
	cr, _ := NewColumnReader()
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.snap")
	os.WriteFile(bad, []byte("NOTASNAPSHOT-------------------"), 0644)
	_, err := cr.ReadSnapshot(bad)
	assert.True(t, errors.Is(err, ErrInvalidHeader))

	short := filepath.Join(dir, "short.snap")
	os.WriteFile(short, MagicHeader, 0644)
	_, err = cr.ReadSnapshot(short)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestWriteSnapshotLeavesNoPartialFile(t *testing.T) {
	cw, _ := NewColumnWriter()
	mt := engine.NewMemTable()
	mt.Append(engine.Entity{ID: "a", Name: "Blue Whale", CreatedAt: 1})

	dir := t.TempDir()
	// A directory in the way makes the final rename fail after the body is written
	target := filepath.Join(dir, "entities_1_1.snap")
	if err := os.MkdirAll(filepath.Join(target, "occupied"), 0755); err != nil {
		t.Fatal(err)
	}

	err := cw.WriteSnapshot(target, mt)
	assert.NotNil(t, err)

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	assert.Equal(t, len(leftovers), 0)
	info, statErr := os.Stat(target)
	assert.Nil(t, statErr)
	assert.True(t, info.IsDir())
}

func TestWriteSnapshotReplacesStaleTemp(t *testing.T) {
	cw, _ := NewColumnWriter()
	cr, _ := NewColumnReader()
	mt := engine.NewMemTable()
	mt.Append(engine.Entity{ID: "a", Name: "Blue Whale", CreatedAt: 1})

	path := filepath.Join(t.TempDir(), "entities_1_1.snap")
	os.WriteFile(path+".tmp", []byte("half written"), 0644)

	if err := cw.WriteSnapshot(path, mt); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := cr.ReadSnapshot(path)
	assert.Nil(t, err)
	assert.Equal(t, len(got), 1)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
