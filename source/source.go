// Package source abstracts where table rows come from.
//
// A Source answers one question: "give me page N of size S, optionally
// filtered by query Q and sorted by field F in direction D". The engine
// never cares whether the answer comes from an in-memory slice, a remote
// JSON endpoint, or a SQL database.
package source

import (
	"context"
	"fmt"
	"strings"
)

// Row is an open mapping from field name to scalar cell value
// (string, number, date-like, or nil).
type Row map[string]any

// Direction is a sort direction in wire form.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// PageRequest describes one page of data to load.
type PageRequest struct {
	// Offset is the number of rows to skip. Paged mode computes it as
	// (page-1)*pageSize; incremental mode passes the loaded-row count.
	Offset int
	// Limit is the maximum number of rows to return.
	Limit int
	// Search filters rows to those containing the query in any column.
	Search string
	// SortField and SortDirection order the result before slicing.
	SortField     string
	SortDirection Direction
}

// PageResult is the canonical shape every Source returns.
type PageResult struct {
	Rows         []Row
	TotalRecords int
}

// Source loads pages of rows.
type Source interface {
	LoadPage(ctx context.Context, req PageRequest) (*PageResult, error)
}

// Func adapts a plain function to the Source interface.
type Func func(ctx context.Context, req PageRequest) (*PageResult, error)

// LoadPage calls f.
func (f Func) LoadPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	return f(ctx, req)
}

// LoadError reports a failed page load. The engine recovers from it
// locally: prior rows stay visible and the instance remains usable.
type LoadError struct {
	Op  string // "fetch", "decode", "query"
	URL string // remote endpoint or table name, when known
	Err error
}

func (e *LoadError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("load %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Matches reports whether any of the row's fields contains the query,
// case-insensitively. An empty or whitespace-only query matches everything.
// When fields is nil every column is searched.
func Matches(row Row, fields []string, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	if fields == nil {
		for _, v := range row {
			if containsFold(v, query) {
				return true
			}
		}
		return false
	}
	for _, f := range fields {
		if containsFold(row[f], query) {
			return true
		}
	}
	return false
}

func containsFold(v any, lowered string) bool {
	if v == nil {
		return false
	}
	return strings.Contains(strings.ToLower(stringify(v)), lowered)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Paginate slices rows according to the request offset and limit.
// It does not filter or sort; callers that keep their own working order
// (the engine's local mode) use it directly.
func Paginate(rows []Row, req PageRequest) *PageResult {
	total := len(rows)
	start := req.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if req.Limit > 0 && start+req.Limit < total {
		end = start + req.Limit
	}
	return &PageResult{Rows: rows[start:end], TotalRecords: total}
}
