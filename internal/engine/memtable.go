package engine

import (
	"sync"
	"sync/atomic"

	"github.com/coffersTech/odsearch/internal/pkg/search"
)

// MemTable stores entities in columnar format.
// Columns are exported for access by storage package.
type MemTable struct {
	mu sync.RWMutex

	// Exported Columns
	IDCol   []string
	NameCol []string
	DescCol []string
	CatCol  []string
	TsCol   []int64 // CreatedAt

	// Metadata
	SizeBytes int64 // Estimated memory usage in bytes
}

// NewMemTable initializes MemTable with pre-allocated capacity.
func NewMemTable() *MemTable {
	cap := 4096
	return &MemTable{
		IDCol:   make([]string, 0, cap),
		NameCol: make([]string, 0, cap),
		DescCol: make([]string, 0, cap),
		CatCol:  make([]string, 0, cap),
		TsCol:   make([]int64, 0, cap),
	}
}

// Append adds an entity.
func (mt *MemTable) Append(e Entity) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.IDCol = append(mt.IDCol, e.ID)
	mt.NameCol = append(mt.NameCol, e.Name)
	mt.DescCol = append(mt.DescCol, e.Description)
	mt.CatCol = append(mt.CatCol, e.Category)
	mt.TsCol = append(mt.TsCol, e.CreatedAt)

	// id + name + description + category + 8 (timestamp)
	addedSize := int64(len(e.ID) + len(e.Name) + len(e.Description) + len(e.Category) + 8)
	atomic.AddInt64(&mt.SizeBytes, addedSize)
}

// GetSize returns the estimated memory usage in bytes.
func (mt *MemTable) GetSize() int64 {
	return atomic.LoadInt64(&mt.SizeBytes)
}

// Len returns the number of rows.
func (mt *MemTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.IDCol)
}

// Reset clears all column data for memory reuse.
func (mt *MemTable) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.IDCol = mt.IDCol[:0]
	mt.NameCol = mt.NameCol[:0]
	mt.DescCol = mt.DescCol[:0]
	mt.CatCol = mt.CatCol[:0]
	mt.TsCol = mt.TsCol[:0]
	atomic.StoreInt64(&mt.SizeBytes, 0)
}

// TimeRange returns the minimum and maximum CreatedAt values.
// Seeded entities may carry arbitrary timestamps, so the column is scanned.
func (mt *MemTable) TimeRange() (int64, int64) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	if len(mt.TsCol) == 0 {
		return 0, 0
	}
	minTs, maxTs := mt.TsCol[0], mt.TsCol[0]
	for _, ts := range mt.TsCol[1:] {
		if ts < minTs {
			minTs = ts
		}
		if ts > maxTs {
			maxTs = ts
		}
	}
	return minTs, maxTs
}

// row returns the entity stored at index i. Caller must hold the read lock.
func (mt *MemTable) row(i int) Entity {
	return Entity{
		ID:          mt.IDCol[i],
		Name:        mt.NameCol[i],
		Description: mt.DescCol[i],
		Category:    mt.CatCol[i],
		CreatedAt:   mt.TsCol[i],
	}
}

// Rows returns a copy of all rows in insertion order.
func (mt *MemTable) Rows() []Entity {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	rows := make([]Entity, len(mt.IDCol))
	for i := range rows {
		rows[i] = mt.row(i)
	}
	return rows
}

// Scan calls fn for every row matching node, newest first, until fn returns false.
func (mt *MemTable) Scan(node search.Node, fn func(Entity) bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	// Scan backwards (newest first)
	for i := len(mt.IDCol) - 1; i >= 0; i-- {
		e := mt.row(i)
		if !search.Match(node, &e) {
			continue
		}
		if !fn(e) {
			return
		}
	}
}
