// Package stablesort implements the comparator used for column sorting.
//
// Type inference happens per pair, not per column: two values that both
// parse as finite numbers compare numerically, two valid dates compare
// temporally, and everything else falls back to case-sensitive,
// locale-aware string collation. Sorting uses sort.SliceStable so equal
// keys keep their insertion order.
package stablesort

import (
	"sort"
	"sync"

	"github.com/tablekit/tablekit/format"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Direction selects ascending or descending order.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// String returns "asc" or "desc".
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// collator performs locale-aware string comparison. Collators are not
// safe for concurrent use, so collatorMu serializes access; independent
// table instances may sort at the same time.
var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und)
)

// Compare orders two cell values and returns -1, 0, or 1.
// Identical string forms are always equal regardless of inferred type.
func Compare(a, b any) int {
	sa, sb := format.Stringify(a), format.Stringify(b)
	if sa == sb {
		return 0
	}

	// nil sorts before everything else.
	if a == nil || sa == "" {
		return -1
	}
	if b == nil || sb == "" {
		return 1
	}

	if na, ok := format.NumberValue(a); ok {
		if nb, ok := format.NumberValue(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}

	if da, ok := format.DateValue(a); ok {
		if db, ok := format.DateValue(b); ok {
			switch {
			case da.Before(db):
				return -1
			case da.After(db):
				return 1
			default:
				return 0
			}
		}
	}

	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(sa, sb)
}

// Sort stably orders n elements using the value accessor. Equal keys keep
// their relative order within a single call.
func Sort(n int, value func(i int) any, dir Direction, swap func(i, j int)) {
	sort.Stable(&byKey{n: n, value: value, dir: dir, swapFn: swap})
}

type byKey struct {
	n      int
	value  func(i int) any
	dir    Direction
	swapFn func(i, j int)
}

func (s *byKey) Len() int { return s.n }

func (s *byKey) Less(i, j int) bool {
	c := Compare(s.value(i), s.value(j))
	if s.dir == Descending {
		return c > 0
	}
	return c < 0
}

func (s *byKey) Swap(i, j int) { s.swapFn(i, j) }
