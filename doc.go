// Package tablekit is the state engine behind an interactive data table:
// paging, sorting, searching, inline edits with validation and version
// history, real-time collaboration, conditional formatting, column
// insights, and export handoff.
//
// The engine owns table state and data flow only. It hands the host a
// render model (View) and emits events; building actual UI from them is
// the host's job. Construct a Table with New and an Options value:
//
//	t, err := tablekit.New(tablekit.Options{
//		Columns: []tablekit.Column{
//			{Field: "name", Title: "Name", Sortable: true},
//			{Field: "age", Title: "Age", Sortable: true},
//		},
//		Data:     rows,
//		PageSize: 25,
//	})
//
// Data comes from an in-memory slice, a remote JSON endpoint (ServerSide
// with ServerURL), or any source.Source implementation such as the
// pgx-backed source.SQLSource.
package tablekit
