package tablekit

import (
	"github.com/tablekit/tablekit/format"
	"github.com/tablekit/tablekit/rules"
	"github.com/tablekit/tablekit/viz"
)

// ViewCell is one rendered cell: raw value, display text, detected kind,
// merged conditional-formatting style, and an optional chart primitive.
type ViewCell struct {
	Field     string
	Value     any
	Text      string
	Kind      format.Kind
	Style     rules.Style
	ClassName string
	Chart     viz.Primitive
}

// ViewRow is one rendered row.
type ViewRow struct {
	ID        string
	Index     int
	ClassName string
	Cells     []ViewCell
}

// View is the render model for the rows currently in view. The host
// walks it to build markup; the engine never touches a document.
type View struct {
	Columns []Column
	Rows    []ViewRow
}

// View builds the render model for the current page: formatting,
// conditional styles, class hooks, and per-column visualizations, applied
// deterministically so rebuilding from the same state yields the same
// view.
func (t *Table) View() *View {
	t.mu.Lock()
	recs := append([]*Record(nil), t.page...)
	cols := append([]Column(nil), t.columns...)
	t.mu.Unlock()

	visible := make([]Column, 0, len(cols))
	for _, col := range cols {
		if !col.Hidden {
			visible = append(visible, col)
		}
	}

	v := &View{Columns: visible}
	charts := t.buildCharts(recs, visible)

	for i, rec := range recs {
		row := ViewRow{ID: rec.ID, Index: i}
		if t.opts.RowClassName != nil {
			row.ClassName = t.opts.RowClassName(rec.Cells, i)
		}
		for _, col := range visible {
			raw := rec.Cells[col.Field]
			cell := ViewCell{Field: col.Field, Value: raw, Text: t.cellText(col, raw)}
			if t.fmtr != nil && col.Render == nil {
				_, cell.Kind = t.fmtr.Format(raw)
			}
			if t.opts.ConditionalFormatting && len(t.opts.Rules) > 0 {
				cell.Style = t.eval.Formatting(t.opts.Rules, rec.Cells, col.Field)
			}
			if t.opts.CellClassName != nil {
				cell.ClassName = t.opts.CellClassName(rec.Cells, col.Field, raw)
			}
			if chart, ok := charts[col.Field]; ok {
				cell.Chart = chart
			}
			row.Cells = append(row.Cells, cell)
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

// buildCharts constructs one primitive per visualized column from the
// numeric values of the rows in view. Columns whose values never parse
// numeric are skipped.
func (t *Table) buildCharts(recs []*Record, cols []Column) map[string]viz.Primitive {
	if !t.opts.Visualizations {
		return nil
	}
	colors := t.opts.VisualizationColors
	if len(colors) == 0 {
		colors = viz.DefaultColors
	}

	out := make(map[string]viz.Primitive)
	for _, col := range cols {
		kind := col.Visualization
		if override, ok := t.opts.VisualizationTypes[col.Field]; ok {
			kind = override
		}
		if kind == "" {
			continue
		}
		var values []float64
		var labels []string
		for _, rec := range recs {
			n, ok := format.NumberValue(rec.Cells[col.Field])
			if !ok {
				continue
			}
			values = append(values, n)
			labels = append(labels, format.Stringify(rec.Cells[col.Field]))
		}
		if len(values) == 0 {
			continue
		}
		p, err := viz.Build(kind, values, labels, colors)
		if err != nil {
			t.log.Warn("visualization skipped", "field", col.Field, "error", err)
			continue
		}
		out[col.Field] = p
	}
	return out
}
