package source

import (
	"context"
	"testing"
)

func sampleRows(n int) []Row {
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{"id": i + 1, "name": "user" + string(rune('a'+i%26))}
	}
	return rows
}

func TestSlicePaging(t *testing.T) {
	src := NewSlice(sampleRows(25))

	res, err := src.LoadPage(context.Background(), PageRequest{Offset: 20, Limit: 10})
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if res.TotalRecords != 25 {
		t.Errorf("TotalRecords = %d, want 25", res.TotalRecords)
	}
	if len(res.Rows) != 5 {
		t.Errorf("rows on last page = %d, want 5", len(res.Rows))
	}
	if res.Rows[0]["id"] != 21 {
		t.Errorf("first row of page 3 = %v, want id 21", res.Rows[0]["id"])
	}
}

func TestSlicePagesCoverAllRowsOnce(t *testing.T) {
	src := NewSlice(sampleRows(25))
	seen := map[any]bool{}

	for offset := 0; offset < 25; offset += 10 {
		res, err := src.LoadPage(context.Background(), PageRequest{Offset: offset, Limit: 10})
		if err != nil {
			t.Fatalf("LoadPage: %v", err)
		}
		for _, r := range res.Rows {
			if seen[r["id"]] {
				t.Fatalf("row %v returned twice", r["id"])
			}
			seen[r["id"]] = true
		}
	}
	if len(seen) != 25 {
		t.Errorf("pages covered %d rows, want 25", len(seen))
	}
}

func TestSliceSearch(t *testing.T) {
	src := NewSlice([]Row{
		{"name": "Alice", "city": "Lisbon"},
		{"name": "Bob", "city": "Berlin"},
		{"name": "Carol", "city": "Lima"},
	})

	res, _ := src.LoadPage(context.Background(), PageRequest{Limit: 10, Search: "li"})
	if len(res.Rows) != 2 {
		t.Fatalf("search 'li' matched %d rows, want 2 (Lisbon, Lima)", len(res.Rows))
	}
	if res.TotalRecords != 2 {
		t.Errorf("TotalRecords after search = %d, want 2", res.TotalRecords)
	}
}

func TestSliceSortDoesNotMutateBacking(t *testing.T) {
	rows := []Row{{"n": 3}, {"n": 1}, {"n": 2}}
	src := NewSlice(rows)

	res, _ := src.LoadPage(context.Background(), PageRequest{
		Limit: 10, SortField: "n", SortDirection: Ascending,
	})
	if res.Rows[0]["n"] != 1 || res.Rows[2]["n"] != 3 {
		t.Errorf("sorted page = %v", res.Rows)
	}
	if rows[0]["n"] != 3 {
		t.Errorf("backing slice mutated by sort: %v", rows)
	}
}

func TestMatches(t *testing.T) {
	row := Row{"name": "Alice", "age": 30, "note": nil}

	if !Matches(row, nil, "ali") {
		t.Error("case-insensitive substring should match")
	}
	if !Matches(row, nil, "30") {
		t.Error("numeric values should match by string form")
	}
	if Matches(row, nil, "zzz") {
		t.Error("unmatched query should not match")
	}
	if !Matches(row, nil, "  ") {
		t.Error("whitespace-only query must match everything")
	}
	if Matches(row, []string{"age"}, "ali") {
		t.Error("field-restricted search must only inspect listed fields")
	}
}
