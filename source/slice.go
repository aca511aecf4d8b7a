package source

import (
	"context"
	"sync"

	"github.com/tablekit/tablekit/internal/stablesort"
)

// SliceSource serves pages from an in-memory row slice. It applies search,
// sort, and slicing itself, mirroring what a well-behaved remote endpoint
// would do, which makes it useful both for local-array tables and as a
// stand-in server in tests.
type SliceSource struct {
	mu   sync.RWMutex
	rows []Row
}

// NewSlice creates a SliceSource over rows. The slice is not copied;
// callers hand over ownership.
func NewSlice(rows []Row) *SliceSource {
	return &SliceSource{rows: rows}
}

// SetRows replaces the backing data.
func (s *SliceSource) SetRows(rows []Row) {
	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()
}

// Len returns the current number of rows.
func (s *SliceSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// LoadPage filters, sorts, and slices the in-memory data.
// It never returns an error.
func (s *SliceSource) LoadPage(_ context.Context, req PageRequest) (*PageResult, error) {
	s.mu.RLock()
	snapshot := s.rows
	s.mu.RUnlock()

	matched := snapshot
	if req.Search != "" {
		matched = make([]Row, 0, len(snapshot))
		for _, r := range snapshot {
			if Matches(r, nil, req.Search) {
				matched = append(matched, r)
			}
		}
	}

	if req.SortField != "" {
		// Sort a copy so the backing order is preserved.
		if len(matched) > 0 && &matched[0] == &snapshot[0] {
			matched = append([]Row(nil), matched...)
		}
		dir := stablesort.Ascending
		if req.SortDirection == Descending {
			dir = stablesort.Descending
		}
		stablesort.Sort(len(matched), func(i int) any {
			return matched[i][req.SortField]
		}, dir, func(i, j int) {
			matched[i], matched[j] = matched[j], matched[i]
		})
	}

	return Paginate(matched, req), nil
}
