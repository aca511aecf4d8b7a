// Package export normalizes table data for file encoders and document
// renderers.
//
// The engine produces a Dataset (ordered column titles plus stringified
// rows) and hands it to a collaborator; it never writes file formats
// itself. A CSV encoder ships here because it needs nothing beyond the
// standard library; richer formats live in subpackages (xlsx) or in the
// host.
package export

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
)

// Dataset is the normalized export shape: column titles in display order
// and one map per row keyed by title.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Record returns row i's values ordered by Headers.
func (d *Dataset) Record(i int) []string {
	rec := make([]string, len(d.Headers))
	for j, h := range d.Headers {
		rec[j] = d.Rows[i][h]
	}
	return rec
}

// SpreadsheetEncoder writes a Dataset as a spreadsheet file.
type SpreadsheetEncoder interface {
	Encode(w io.Writer, ds *Dataset) error
}

// DocumentRenderer writes a Dataset as a printable document.
type DocumentRenderer interface {
	Render(w io.Writer, ds *Dataset) error
}

// CSVEncoder writes the dataset as RFC 4180 CSV with a header row.
type CSVEncoder struct {
	// Comma overrides the field delimiter. Zero means ','.
	Comma rune
}

// Encode writes headers then rows.
func (e *CSVEncoder) Encode(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	if e.Comma != 0 {
		cw.Comma = e.Comma
	}

	if err := cw.Write(ds.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range ds.Rows {
		if err := cw.Write(ds.Record(i)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// documentTemplate is a self-contained printable HTML page. Hosts pipe it
// to the browser print dialog or a PDF converter.
var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 4px 8px; text-align: left; }
th { background: #eee; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Records}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

// HTMLRenderer renders the dataset as a printable HTML document.
type HTMLRenderer struct {
	// Title overrides the dataset title when set.
	Title string
}

// Render writes the document.
func (r *HTMLRenderer) Render(w io.Writer, ds *Dataset) error {
	title := r.Title
	if title == "" {
		title = ds.Title
	}
	if title == "" {
		title = "Table export"
	}

	records := make([][]string, len(ds.Rows))
	for i := range ds.Rows {
		records[i] = ds.Record(i)
	}

	data := struct {
		Title   string
		Headers []string
		Records [][]string
	}{title, ds.Headers, records}

	if err := documentTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	return nil
}
