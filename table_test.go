package tablekit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tablekit/tablekit/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func numberedRows(n int) []Row {
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{"id": i + 1, "name": fmt.Sprintf("row %02d", i+1)}
	}
	return rows
}

func newLocalTable(t *testing.T, opts Options) *Table {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	tbl, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(tbl.Destroy)
	return tbl
}

func TestPaginationScenario(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns:  []Column{{Field: "id"}, {Field: "name"}},
		Data:     numberedRows(25),
		PageSize: 10,
	})

	st := tbl.State()
	if st.TotalPages != 3 || st.TotalRecords != 25 || st.CurrentPage != 1 {
		t.Fatalf("state = %+v", st)
	}

	if err := tbl.GoToPage(3); err != nil {
		t.Fatalf("GoToPage: %v", err)
	}
	rows := tbl.Rows()
	if len(rows) != 5 {
		t.Fatalf("page 3 has %d rows, want 5", len(rows))
	}
	if rows[0]["id"] != 21 || rows[4]["id"] != 25 {
		t.Errorf("page 3 rows = %v..%v", rows[0]["id"], rows[4]["id"])
	}

	// Navigating past the last page changes nothing.
	if err := tbl.NextPage(); err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	if st := tbl.State(); st.CurrentPage != 3 {
		t.Errorf("NextPage on last page moved to %d", st.CurrentPage)
	}
	if err := tbl.GoToPage(0); err != nil {
		t.Fatalf("GoToPage(0): %v", err)
	}
	if st := tbl.State(); st.CurrentPage != 3 {
		t.Errorf("GoToPage(0) moved to %d", st.CurrentPage)
	}
}

func TestPaginationConcatenatesExactly(t *testing.T) {
	const n, size = 23, 7
	tbl := newLocalTable(t, Options{
		Columns:  []Column{{Field: "id"}, {Field: "name"}},
		Data:     numberedRows(n),
		PageSize: size,
	})

	st := tbl.State()
	wantPages := (n + size - 1) / size
	if st.TotalPages != wantPages {
		t.Fatalf("totalPages = %d, want %d", st.TotalPages, wantPages)
	}

	var ids []int
	for p := 1; p <= st.TotalPages; p++ {
		if err := tbl.GoToPage(p); err != nil {
			t.Fatalf("GoToPage(%d): %v", p, err)
		}
		for _, row := range tbl.Rows() {
			ids = append(ids, row["id"].(int))
		}
	}
	if len(ids) != n {
		t.Fatalf("concatenated %d rows, want %d", len(ids), n)
	}
	for i, id := range ids {
		if id != i+1 {
			t.Fatalf("ids[%d] = %d, want %d", i, id, i+1)
		}
	}
}

func TestEmptyDataSinglePage(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns: []Column{{Field: "id"}},
	})
	st := tbl.State()
	if st.TotalPages != 1 || st.TotalRecords != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestSortStabilityAndIdempotence(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns: []Column{
			{Field: "group", Sortable: true},
			{Field: "name"},
		},
		Data: []Row{
			{"group": "b", "name": "first-b"},
			{"group": "a", "name": "first-a"},
			{"group": "b", "name": "second-b"},
			{"group": "a", "name": "second-a"},
		},
		PageSize: 10,
	})

	if err := tbl.SortBy("group", source.Ascending); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	first := names(tbl.Rows())
	want := []string{"first-a", "second-a", "first-b", "second-b"}
	for i := range want {
		if first[i] != want[i] {
			t.Fatalf("sorted = %v, want %v", first, want)
		}
	}

	// Same field and direction again: identical output.
	if err := tbl.SortBy("group", source.Ascending); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	second := names(tbl.Rows())
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("re-sort changed order: %v vs %v", first, second)
		}
	}
}

func TestSortToggleAndMixedTypes(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns: []Column{{Field: "amount", Sortable: true}},
		Data: []Row{
			{"amount": "100"},
			{"amount": 9},
			{"amount": "25.5"},
		},
		PageSize: 10,
	})

	if err := tbl.SortBy("amount"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	got := tbl.Rows()
	// Numeric inference: 9 < 25.5 < 100 despite string forms.
	if got[0]["amount"] != 9 || got[2]["amount"] != "100" {
		t.Fatalf("ascending = %v", got)
	}
	if st := tbl.State(); st.SortDirection != source.Ascending {
		t.Fatalf("direction = %v", st.SortDirection)
	}

	// Second call with no direction toggles.
	if err := tbl.SortBy("amount"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	got = tbl.Rows()
	if got[0]["amount"] != "100" || got[2]["amount"] != 9 {
		t.Fatalf("descending = %v", got)
	}
}

func TestSortIgnoresNonSortableField(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns: []Column{{Field: "id"}},
		Data:    numberedRows(3),
	})
	if err := tbl.SortBy("id"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	if st := tbl.State(); st.SortField != "" {
		t.Errorf("non-sortable field applied: %+v", st)
	}
}

func TestSearchRoundTrip(t *testing.T) {
	data := []Row{
		{"name": "Alice", "city": "Berlin"},
		{"name": "Bob", "city": "Lisbon"},
		{"name": "Carol", "city": "Oslo"},
	}
	tbl := newLocalTable(t, Options{
		Columns:  []Column{{Field: "name"}, {Field: "city"}},
		Data:     data,
		PageSize: 10,
	})

	if err := tbl.Search("lis"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	rows := tbl.Rows()
	if len(rows) != 1 || rows[0]["name"] != "Bob" {
		t.Fatalf("filtered = %v", rows)
	}
	if st := tbl.State(); st.TotalRecords != 1 || st.CurrentPage != 1 {
		t.Errorf("state after search = %+v", st)
	}

	// Clearing the search restores the original set and order exactly.
	if err := tbl.Search(""); err != nil {
		t.Fatalf("Search: %v", err)
	}
	rows = tbl.Rows()
	if len(rows) != 3 {
		t.Fatalf("restored %d rows", len(rows))
	}
	for i, row := range rows {
		if row["name"] != data[i]["name"] {
			t.Fatalf("restored order = %v", rows)
		}
	}
}

func TestSearchPreservesSort(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns: []Column{
			{Field: "name"},
			{Field: "age", Sortable: true},
		},
		Data: []Row{
			{"name": "Ann", "age": 40},
			{"name": "Anna", "age": 25},
			{"name": "Bob", "age": 30},
		},
		PageSize: 10,
	})

	if err := tbl.SortBy("age", source.Ascending); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	if err := tbl.Search("ann"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	rows := tbl.Rows()
	if len(rows) != 2 {
		t.Fatalf("filtered = %v", rows)
	}
	// The active sort is re-applied after filtering from pristine data.
	if rows[0]["name"] != "Anna" || rows[1]["name"] != "Ann" {
		t.Errorf("filtered order = %v", rows)
	}
}

func TestAtMostOneInFlightLoad(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	src := source.Func(func(ctx context.Context, req source.PageRequest) (*source.PageResult, error) {
		if atomic.AddInt32(&calls, 1) > 1 {
			<-release
		}
		return source.Paginate(numberedRows(25), req), nil
	})

	tbl := newLocalTable(t, Options{
		Columns:  []Column{{Field: "id"}, {Field: "name"}},
		Source:   src,
		PageSize: 10,
	})
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("initial load calls = %d", got)
	}

	done := make(chan error, 1)
	go func() { done <- tbl.Refresh() }()

	waitFor(t, func() bool { return tbl.State().Busy })

	// A load request while busy is dropped silently.
	if err := tbl.GoToPage(2); err != nil {
		t.Fatalf("GoToPage while busy: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("busy call was not dropped: %d loads", got)
	}
	if st := tbl.State(); st.CurrentPage != 1 {
		t.Errorf("busy navigation moved page to %d", st.CurrentPage)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if st := tbl.State(); st.Busy || st.Phase != PhaseIdle {
		t.Errorf("state after refresh = %+v", st)
	}
}

func TestBusySortAndSearchAreSilent(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	src := source.Func(func(ctx context.Context, req source.PageRequest) (*source.PageResult, error) {
		if atomic.AddInt32(&calls, 1) > 1 {
			<-release
		}
		return source.Paginate(numberedRows(25), req), nil
	})

	tbl := newLocalTable(t, Options{
		Columns:  []Column{{Field: "id", Sortable: true}, {Field: "name"}},
		Source:   src,
		PageSize: 10,
	})

	var sorts []SortEvent
	var searches []SearchEvent
	tbl.On(EventSort, func(p any) { sorts = append(sorts, p.(SortEvent)) })
	tbl.On(EventSearch, func(p any) { searches = append(searches, p.(SearchEvent)) })

	done := make(chan error, 1)
	go func() { done <- tbl.Refresh() }()
	waitFor(t, func() bool { return tbl.State().Busy })

	// Dropped requests are silent no-ops: no events, no state change.
	if err := tbl.SortBy("id"); err != nil {
		t.Fatalf("SortBy while busy: %v", err)
	}
	if err := tbl.Search("zzz"); err != nil {
		t.Fatalf("Search while busy: %v", err)
	}
	if len(sorts) != 0 || len(searches) != 0 {
		t.Fatalf("busy-dropped requests emitted events: sorts=%v searches=%v", sorts, searches)
	}
	if st := tbl.State(); st.SortField != "" || st.SearchTerm != "" {
		t.Errorf("busy-dropped requests mutated state: %+v", st)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := tbl.SortBy("id"); err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	if len(sorts) != 1 || sorts[0].Field != "id" || sorts[0].Direction != source.Ascending {
		t.Fatalf("sorts after idle = %+v", sorts)
	}
}

func TestLoadErrorKeepsPriorState(t *testing.T) {
	var fail atomic.Bool
	src := source.Func(func(ctx context.Context, req source.PageRequest) (*source.PageResult, error) {
		if fail.Load() {
			return nil, &source.LoadError{Op: "fetch", Err: errors.New("boom")}
		}
		return source.Paginate(numberedRows(25), req), nil
	})

	tbl := newLocalTable(t, Options{
		Columns:  []Column{{Field: "id"}, {Field: "name"}},
		Source:   src,
		PageSize: 10,
	})

	var errEvents int
	tbl.On(EventError, func(any) { errEvents++ })

	fail.Store(true)
	err := tbl.GoToPage(2)
	if err == nil {
		t.Fatal("GoToPage should surface the load error")
	}
	var le *source.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("error type = %T", err)
	}

	st := tbl.State()
	if st.Phase != PhaseError || st.Busy {
		t.Fatalf("state after failure = %+v", st)
	}
	// Prior rows remain visible and the table stays usable.
	if len(tbl.Rows()) != 10 {
		t.Errorf("prior rows dropped: %d", len(tbl.Rows()))
	}
	if errEvents != 1 {
		t.Errorf("error events = %d", errEvents)
	}

	fail.Store(false)
	if err := tbl.Refresh(); err != nil {
		t.Fatalf("Refresh after error: %v", err)
	}
	if st := tbl.State(); st.Phase != PhaseIdle || st.LastError != nil {
		t.Errorf("state after recovery = %+v", st)
	}
}

func TestLazyLoadMore(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns:  []Column{{Field: "id"}, {Field: "name"}},
		Data:     numberedRows(25),
		PageSize: 10,
		LazyLoad: true,
	})

	if got := len(tbl.Rows()); got != 10 {
		t.Fatalf("initial batch = %d", got)
	}
	if err := tbl.LoadMore(); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if err := tbl.LoadMore(); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	rows := tbl.Rows()
	if len(rows) != 25 {
		t.Fatalf("loaded = %d, want 25", len(rows))
	}
	if rows[24]["id"] != 25 {
		t.Errorf("last row = %v", rows[24])
	}
	st := tbl.State()
	if st.HasMore {
		t.Error("short batch should clear HasMore")
	}

	// Further calls are no-ops until a refresh resets the flag.
	if err := tbl.LoadMore(); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if len(tbl.Rows()) != 25 {
		t.Error("exhausted LoadMore appended rows")
	}
	if err := tbl.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if st := tbl.State(); !st.HasMore || len(tbl.Rows()) != 10 {
		t.Errorf("refresh did not reset lazy state: %+v", st)
	}
}

func TestUpdateDataAndColumns(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns: []Column{{Field: "id"}, {Field: "name"}},
		Data:    numberedRows(3),
	})

	if err := tbl.UpdateData(numberedRows(7)); err != nil {
		t.Fatalf("UpdateData: %v", err)
	}
	if st := tbl.State(); st.TotalRecords != 7 {
		t.Errorf("totalRecords = %d", st.TotalRecords)
	}

	if err := tbl.UpdateColumn("name", func(c *Column) { c.Title = "Full name" }); err != nil {
		t.Fatalf("UpdateColumn: %v", err)
	}
	cols := tbl.Columns()
	if cols[1].Title != "Full name" {
		t.Errorf("columns = %+v", cols)
	}
	if err := tbl.UpdateColumn("missing", func(c *Column) {}); err == nil {
		t.Error("UpdateColumn on unknown field should fail")
	}

	if err := tbl.ToggleColumn("name", false); err != nil {
		t.Fatalf("ToggleColumn: %v", err)
	}
	if !tbl.Columns()[1].Hidden {
		t.Error("column not hidden")
	}
	// Hidden columns drop out of search.
	if err := tbl.Search("row"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if st := tbl.State(); st.TotalRecords != 0 {
		t.Errorf("hidden column still searched: %+v", st)
	}
}

func TestConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"no columns", Options{}},
		{"empty field", Options{Columns: []Column{{}}}},
		{"duplicate field", Options{Columns: []Column{{Field: "a"}, {Field: "a"}}}},
		{"negative page size", Options{Columns: []Column{{Field: "a"}}, PageSize: -1}},
		{"server without url", Options{Columns: []Column{{Field: "a"}}, ServerSide: true}},
		{"bad threshold", Options{Columns: []Column{{Field: "a"}}, InsightsThreshold: 2}},
		{"bad collab mode", Options{Columns: []Column{{Field: "a"}}, Collaboration: true, CollaborationMode: "carrier-pigeon"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Logger = testLogger()
			_, err := New(tc.opts)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want ConfigError", err)
			}
		})
	}
}

func TestDestroy(t *testing.T) {
	tbl := newLocalTable(t, Options{
		Columns: []Column{{Field: "id"}},
		Data:    numberedRows(3),
	})
	tbl.Destroy()
	tbl.Destroy() // idempotent

	if err := tbl.Refresh(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Refresh after destroy = %v", err)
	}
	if err := tbl.UpdateColumn("id", func(c *Column) {}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("UpdateColumn after destroy = %v", err)
	}
}

func names(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r["name"].(string)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
