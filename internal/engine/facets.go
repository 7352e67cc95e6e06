package engine

import (
	"sort"

	"github.com/coffersTech/odsearch/internal/pkg/search"
)

type FacetBucket struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Facets counts matching entities per category, across the
// MemTable and all snapshot files. Buckets are ordered by count, then name.
func (qe *QueryEngine) Facets(node search.Node) ([]FacetBucket, error) {
	qe.mu.RLock()
	defer qe.mu.RUnlock()

	// Map to store bucket counts: category -> count
	buckets := make(map[string]int)
	count := func(e Entity) bool {
		buckets[e.Category]++
		return true
	}

	// 1. Scan MemTable
	qe.mt.Scan(node, count)

	// 2. Scan Disk Files
	if err := qe.scanSnapshots(node, count); err != nil {
		return nil, err
	}

	// 3. Convert Map to Sorted Slice
	points := make([]FacetBucket, 0, len(buckets))
	for cat, c := range buckets {
		points = append(points, FacetBucket{Category: cat, Count: c})
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Count != points[j].Count {
			return points[i].Count > points[j].Count
		}
		return points[i].Category < points[j].Category
	})

	return points, nil
}
