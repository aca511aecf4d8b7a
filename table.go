package tablekit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tablekit/tablekit/collab"
	"github.com/tablekit/tablekit/export"
	"github.com/tablekit/tablekit/export/xlsx"
	"github.com/tablekit/tablekit/format"
	"github.com/tablekit/tablekit/insight"
	"github.com/tablekit/tablekit/internal/stablesort"
	"github.com/tablekit/tablekit/rules"
	"github.com/tablekit/tablekit/source"
)

// Record is one ingested row. The ID is assigned once at ingestion and
// stays stable across sorting and filtering, so collaboration messages
// and version history survive reorders.
type Record struct {
	ID    string
	Cells Row
}

// Phase is the load state machine.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
)

// State is a snapshot of the view state.
type State struct {
	CurrentPage   int
	TotalPages    int
	TotalRecords  int
	LoadedRows    int
	SearchTerm    string
	SortField     string
	SortDirection source.Direction
	Busy          bool
	HasMore       bool
	Phase         Phase
	LastError     error
}

type loadKind int

const (
	loadReset loadKind = iota
	loadPage
	loadMore
)

// Table is the rendering-and-state engine for one grid instance.
type Table struct {
	opts   Options
	log    *slog.Logger
	src    source.Source // nil in local mode
	eval   *rules.Evaluator
	fmtr   *format.Formatter
	events *dispatcher

	controller *collab.Controller
	history    *collab.History

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	columns   []Column
	all       []*Record // pristine local rows, original order
	page      []*Record // rows currently in view
	state     State
	gen       uint64
	destroyed bool
}

// New validates the options, ingests any local data, and performs the
// initial load. A load failure does not fail construction: the table
// comes back usable in the error phase with an error event emitted.
func New(opts Options) (*Table, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	t := &Table{
		opts:    opts,
		log:     opts.Logger,
		eval:    rules.NewEvaluator(opts.Logger),
		events:  newDispatcher(),
		columns: append([]Column(nil), opts.Columns...),
		state:   State{CurrentPage: 1, Phase: PhaseIdle, HasMore: true},
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	if opts.SmartFormatting {
		t.fmtr = format.New(opts.FormatDetection)
	}
	if opts.VersionHistory {
		t.history = collab.NewHistory(opts.MaxVersions)
	}

	switch {
	case opts.Source != nil:
		t.src = opts.Source
	case opts.ServerSide:
		t.src = &source.HTTPSource{
			URL:         opts.ServerURL,
			Params:      opts.ServerParams,
			Incremental: opts.LazyLoad,
		}
	default:
		t.all = ingest(opts.Data)
	}

	if opts.Collaboration {
		t.controller = collab.NewController(collab.Config{
			User:    opts.CollaborationUser,
			TableID: opts.TableID,
			Channel: t.channel(),
			Apply:   t.applyRemote,
			History: t.history,
			Logger:  t.log,
		})
	}

	if err := t.load(loadReset, nil); err != nil {
		t.log.Warn("initial load failed", "table", opts.TableID, "error", err)
	}
	return t, nil
}

// ingest assigns stable ids to incoming rows.
func ingest(rows []Row) []*Record {
	out := make([]*Record, len(rows))
	for i, row := range rows {
		out[i] = &Record{ID: uuid.NewString(), Cells: row}
	}
	return out
}

// channel builds the collaboration transport for the configured mode.
func (t *Table) channel() collab.Channel {
	if t.opts.CollaborationChannel != nil {
		return t.opts.CollaborationChannel
	}
	switch t.opts.CollaborationMode {
	case collab.ModeWebSocket:
		return collab.DialWebSocket(t.opts.CollaborationURL, t.opts.CollaborationUser, t.opts.TableID, t.log)
	case collab.ModePolling:
		return collab.NewPolling(t.opts.CollaborationURL, t.opts.CollaborationUser, t.opts.TableID, t.opts.CollaborationInterval, t.log)
	default:
		return collab.NewLocalBus().Channel()
	}
}

// Refresh reloads from the first page or batch.
func (t *Table) Refresh() error {
	return t.load(loadReset, nil)
}

// Search filters rows to those containing the query in any visible
// column, case-insensitively. An empty or whitespace query restores the
// full set. Search always re-derives from the pristine data and then
// re-applies the current sort.
func (t *Table) Search(query string) error {
	query = strings.TrimSpace(query)
	applied := false
	if err := t.load(loadReset, func() bool {
		t.state.SearchTerm = query
		applied = true
		return true
	}); err != nil {
		return err
	}
	if !applied {
		return nil
	}
	t.mu.Lock()
	matches := t.state.TotalRecords
	t.mu.Unlock()
	t.events.emit(EventSearch, SearchEvent{Query: query, Matches: matches})
	return nil
}

// SortBy orders rows by field. With no explicit direction, sorting an
// already-sorted field toggles the direction. Sorting resets to the
// first page or batch. Unknown and non-sortable fields are no-ops.
func (t *Table) SortBy(field string, direction ...source.Direction) error {
	col, ok := t.column(field)
	if !ok || !col.Sortable {
		t.log.Debug("sort ignored", "field", field)
		return nil
	}

	var dir source.Direction
	applied := false
	err := t.load(loadReset, func() bool {
		if len(direction) > 0 {
			dir = direction[0]
		} else if t.state.SortField == field && t.state.SortDirection == source.Ascending {
			dir = source.Descending
		} else {
			dir = source.Ascending
		}
		t.state.SortField = field
		t.state.SortDirection = dir
		applied = true
		return true
	})
	if err != nil || !applied {
		return err
	}
	t.events.emit(EventSort, SortEvent{Field: field, Direction: dir})
	return nil
}

// GoToPage navigates to page n. Out-of-range pages are no-ops.
func (t *Table) GoToPage(n int) error {
	moved := false
	err := t.load(loadPage, func() bool {
		if n < 1 || n > t.state.TotalPages {
			return false
		}
		t.state.CurrentPage = n
		moved = true
		return true
	})
	if err != nil {
		return err
	}
	if moved {
		t.mu.Lock()
		ev := PageChangeEvent{Page: t.state.CurrentPage, TotalPages: t.state.TotalPages}
		t.mu.Unlock()
		t.events.emit(EventPageChange, ev)
	}
	return nil
}

// NextPage advances one page; a no-op on the last page.
func (t *Table) NextPage() error {
	t.mu.Lock()
	n := t.state.CurrentPage + 1
	t.mu.Unlock()
	return t.GoToPage(n)
}

// PrevPage goes back one page; a no-op on the first page.
func (t *Table) PrevPage() error {
	t.mu.Lock()
	n := t.state.CurrentPage - 1
	t.mu.Unlock()
	return t.GoToPage(n)
}

// LoadMore appends the next batch in lazy mode. Once a batch comes back
// short, further calls are no-ops until a refresh.
func (t *Table) LoadMore() error {
	if !t.opts.LazyLoad {
		return nil
	}
	return t.load(loadMore, func() bool {
		return t.state.HasMore
	})
}

// UpdateData replaces the local row set and reloads. Rows get fresh ids;
// outstanding version history refers to the old rows and is left alone.
func (t *Table) UpdateData(rows []Row) error {
	if t.src != nil {
		return fmt.Errorf("update data: table is backed by a remote source")
	}
	return t.load(loadReset, func() bool {
		t.all = ingest(rows)
		return true
	})
}

// UpdateColumn mutates one column definition in place. The field key
// itself cannot change.
func (t *Table) UpdateColumn(field string, mutate func(*Column)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return ErrDestroyed
	}
	for i := range t.columns {
		if t.columns[i].Field == field {
			mutate(&t.columns[i])
			t.columns[i].Field = field
			return nil
		}
	}
	return fmt.Errorf("update column: unknown field %q", field)
}

// ToggleColumn shows or hides a column. Hidden columns drop out of
// search, insights, and export.
func (t *Table) ToggleColumn(field string, visible bool) error {
	return t.UpdateColumn(field, func(c *Column) {
		c.Hidden = !visible
	})
}

// EditCell commits a local edit to the row at the given display index.
// When validation is enabled, failing business rules reject the edit
// with a ValidationError before any state changes.
func (t *Table) EditCell(index int, field string, value any) error {
	return t.applyEdit(index, field, value, false)
}

// RestoreVersion writes a prior version of a cell back as a new edit.
// Restoring is itself a new version, not a rollback.
func (t *Table) RestoreVersion(index int, field string, versionIndex int) error {
	if t.history == nil {
		return fmt.Errorf("restore version: version history disabled")
	}
	t.mu.Lock()
	if index < 0 || index >= len(t.page) {
		t.mu.Unlock()
		return fmt.Errorf("restore version: row index %d out of range", index)
	}
	id := t.page[index].ID
	t.mu.Unlock()

	v, ok := t.history.At(collab.Key(id, field), versionIndex)
	if !ok {
		return fmt.Errorf("restore version: no version %d for %s.%s", versionIndex, id, field)
	}
	return t.applyEdit(index, field, v.Value, true)
}

func (t *Table) applyEdit(index int, field string, value any, restored bool) error {
	col, ok := t.column(field)
	if !ok {
		return fmt.Errorf("edit: unknown field %q", field)
	}
	if !col.Editable {
		return fmt.Errorf("edit: field %q is not editable", field)
	}

	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return ErrDestroyed
	}
	if index < 0 || index >= len(t.page) {
		t.mu.Unlock()
		return fmt.Errorf("edit: row index %d out of range", index)
	}
	rec := t.page[index]

	if t.opts.ValidateOnEdit && len(t.opts.BusinessRules) > 0 {
		candidate := make(Row, len(rec.Cells)+1)
		for k, v := range rec.Cells {
			candidate[k] = v
		}
		candidate[field] = value
		if msgs := t.eval.Validate(t.opts.BusinessRules, candidate, field); len(msgs) > 0 {
			t.mu.Unlock()
			if t.opts.ShowValidationMessages {
				t.log.Info("edit rejected", "field", field, "violations", len(msgs))
			}
			return &ValidationError{Field: field, Value: value, Messages: msgs}
		}
	}

	old := rec.Cells[field]
	rec.Cells[field] = value
	id := rec.ID
	t.mu.Unlock()

	if t.controller != nil {
		t.controller.RecordVersion(id, field, value, restored)
		if err := t.controller.SendChange(id, index, field, value); err != nil {
			t.log.Warn("collab send failed", "field", field, "error", err)
		}
	} else if t.history != nil {
		t.history.Add(collab.Key(id, field), collab.Version{
			Value: value, Timestamp: time.Now(), User: t.opts.CollaborationUser, Restored: restored,
		})
	}

	t.events.emit(EventCellEdit, CellEditEvent{
		RowID: id, Index: index, Field: field, OldValue: old, NewValue: value,
	})
	return nil
}

// applyRemote handles a cell change from a collaborator. Echo suppression
// already happened in the controller. Resolution is by stable row id,
// falling back to display index for peers that only send indexes; the
// version is recorded under the resolved local row's id so Versions and
// RestoreVersion see remote edits too.
func (t *Table) applyRemote(msg collab.Message) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	var rec *Record
	index := -1
	if msg.RowID != "" {
		for i, r := range t.page {
			if r.ID == msg.RowID {
				rec, index = r, i
				break
			}
		}
		if rec == nil {
			for _, r := range t.all {
				if r.ID == msg.RowID {
					rec = r
					break
				}
			}
		}
	}
	// Peers assign their own row ids, so an unknown id falls back to the
	// display index, as do index-only messages.
	if rec == nil && msg.RowIndex >= 0 && msg.RowIndex < len(t.page) {
		rec, index = t.page[msg.RowIndex], msg.RowIndex
	}
	if rec == nil {
		t.mu.Unlock()
		t.log.Debug("remote change for unknown row", "rowId", msg.RowID, "rowIndex", msg.RowIndex)
		return
	}
	old := rec.Cells[msg.Field]
	rec.Cells[msg.Field] = msg.Value
	id := rec.ID
	t.mu.Unlock()

	if t.history != nil {
		t.history.Add(collab.Key(id, msg.Field), collab.Version{
			Value: msg.Value, Timestamp: msg.Timestamp, User: msg.User,
		})
	}

	t.events.emit(EventCellEdit, CellEditEvent{
		RowID: id, Index: index, Field: msg.Field, OldValue: old, NewValue: msg.Value, Remote: true,
	})
}

// RowClicked reports a click on the row at the given display index.
func (t *Table) RowClicked(index int) {
	t.mu.Lock()
	if index < 0 || index >= len(t.page) {
		t.mu.Unlock()
		return
	}
	row := t.page[index].Cells
	t.mu.Unlock()
	t.events.emit(EventRowClick, RowClickEvent{Row: row, Index: index})
}

// GenerateInsights analyzes the current filtered data set column by
// column and returns the insights above the configured confidence
// threshold. Returns nil when insights are disabled.
func (t *Table) GenerateInsights() []insight.Insight {
	if !t.opts.Insights {
		return nil
	}
	recs, fields := t.workingSet()
	rows := make([]map[string]any, len(recs))
	for i, rec := range recs {
		rows[i] = rec.Cells
	}
	gen := insight.Generator{Threshold: t.opts.InsightsThreshold}
	return gen.Analyze(rows, fields)
}

// On subscribes a handler to a named event and returns a subscription id
// for Off.
func (t *Table) On(event string, fn Handler) int {
	return t.events.on(event, fn)
}

// Off removes a subscription.
func (t *Table) Off(event string, id int) {
	t.events.off(event, id)
}

// State returns a snapshot of the view state.
func (t *Table) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Rows returns the rows currently in view, in display order.
func (t *Table) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Row, len(t.page))
	for i, rec := range t.page {
		out[i] = rec.Cells
	}
	return out
}

// Columns returns a copy of the current column definitions.
func (t *Table) Columns() []Column {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Column(nil), t.columns...)
}

// Controller exposes the collaboration controller, nil when
// collaboration is disabled.
func (t *Table) Controller() *collab.Controller {
	return t.controller
}

// Versions returns the bounded history for a cell by display index.
func (t *Table) Versions(index int, field string) []collab.Version {
	if t.history == nil {
		return nil
	}
	t.mu.Lock()
	if index < 0 || index >= len(t.page) {
		t.mu.Unlock()
		return nil
	}
	id := t.page[index].ID
	t.mu.Unlock()
	return t.history.Get(collab.Key(id, field))
}

// Destroy tears the table down: cancels in-flight loads, disconnects
// collaboration, clears caches and subscriptions. Every operation after
// Destroy returns ErrDestroyed.
func (t *Table) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	t.gen++
	t.mu.Unlock()

	t.cancel()
	if t.controller != nil {
		if err := t.controller.Close(); err != nil {
			t.log.Warn("collab close failed", "error", err)
		}
	} else if t.history != nil {
		t.history.Clear()
	}
	t.eval.Reset()
	t.events.clear()
}

// --- loading ---

// load runs one guarded load cycle. A call while a load is in flight is
// dropped silently. The prepare hook mutates view state under the lock
// before the request is built; returning false aborts without loading.
func (t *Table) load(kind loadKind, prepare func() bool) error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return ErrDestroyed
	}
	if t.state.Busy {
		t.mu.Unlock()
		return nil
	}
	if prepare != nil && !prepare() {
		t.mu.Unlock()
		return nil
	}
	t.state.Busy = true
	t.state.Phase = PhaseLoading
	t.gen++
	gen := t.gen
	req := t.buildRequest(kind)
	t.mu.Unlock()

	var (
		recs  []*Record
		total int
		err   error
	)
	if t.src != nil {
		var res *source.PageResult
		res, err = t.src.LoadPage(t.ctx, req)
		if err == nil {
			recs = ingest(res.Rows)
			total = res.TotalRecords
		}
	} else {
		recs, total = t.loadLocal(req)
	}
	return t.finish(gen, kind, req.Limit, recs, total, err)
}

// buildRequest computes the page request for the pending load. Caller
// holds the lock.
func (t *Table) buildRequest(kind loadKind) source.PageRequest {
	st := &t.state
	req := source.PageRequest{
		Limit:         t.opts.PageSize,
		Search:        st.SearchTerm,
		SortField:     st.SortField,
		SortDirection: st.SortDirection,
	}
	switch kind {
	case loadReset:
		st.CurrentPage = 1
		st.LoadedRows = 0
		st.HasMore = true
	case loadPage:
		req.Offset = (st.CurrentPage - 1) * t.opts.PageSize
	case loadMore:
		req.Offset = st.LoadedRows
	}
	return req
}

// loadLocal derives one page from the pristine rows: filter, then stable
// sort, then slice. The pristine order is never mutated, so clearing the
// search restores it exactly.
func (t *Table) loadLocal(req source.PageRequest) ([]*Record, int) {
	t.mu.Lock()
	fields := t.visibleFieldsLocked()
	matched := make([]*Record, 0, len(t.all))
	for _, rec := range t.all {
		if source.Matches(rec.Cells, fields, req.Search) {
			matched = append(matched, rec)
		}
	}
	t.mu.Unlock()

	if req.SortField != "" {
		dir := stablesort.Ascending
		if req.SortDirection == source.Descending {
			dir = stablesort.Descending
		}
		stablesort.Sort(len(matched),
			func(i int) any { return matched[i].Cells[req.SortField] },
			dir,
			func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })
	}

	total := len(matched)
	if req.Offset >= total {
		return nil, total
	}
	end := total
	if req.Limit > 0 && req.Offset+req.Limit < total {
		end = req.Offset + req.Limit
	}
	return matched[req.Offset:end], total
}

// finish applies a completed load. Responses from a superseded load
// generation are discarded.
func (t *Table) finish(gen uint64, kind loadKind, limit int, recs []*Record, total int, err error) error {
	t.mu.Lock()
	if t.destroyed || t.gen != gen {
		t.mu.Unlock()
		return nil
	}
	st := &t.state
	if err != nil {
		// Prior rows stay visible; the table is usable again
		// immediately.
		st.Busy = false
		st.Phase = PhaseError
		st.LastError = err
		t.mu.Unlock()
		t.events.emit(EventError, ErrorEvent{Err: err})
		return err
	}

	if kind == loadMore {
		t.page = append(t.page, recs...)
	} else {
		t.page = recs
	}
	st.LoadedRows = len(t.page)
	st.TotalRecords = total
	st.TotalPages = totalPages(total, t.opts.PageSize)
	if t.opts.LazyLoad {
		st.HasMore = len(recs) >= limit
	} else {
		st.HasMore = st.CurrentPage < st.TotalPages
	}
	st.Busy = false
	st.Phase = PhaseIdle
	st.LastError = nil
	t.mu.Unlock()
	return nil
}

// totalPages is ceil(total/size), and 1 for an empty set.
func totalPages(total, size int) int {
	if total == 0 {
		return 1
	}
	return (total + size - 1) / size
}

// workingSet returns the full filtered-and-sorted row set (all pages)
// plus the visible fields. Remote tables only see the loaded rows.
func (t *Table) workingSet() ([]*Record, []string) {
	t.mu.Lock()
	fields := t.visibleFieldsLocked()
	if t.src != nil {
		page := append([]*Record(nil), t.page...)
		t.mu.Unlock()
		return page, fields
	}
	req := source.PageRequest{
		Search:        t.state.SearchTerm,
		SortField:     t.state.SortField,
		SortDirection: t.state.SortDirection,
	}
	t.mu.Unlock()
	recs, _ := t.loadLocal(req)
	return recs, fields
}

func (t *Table) visibleFieldsLocked() []string {
	out := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		if !col.Hidden {
			out = append(out, col.Field)
		}
	}
	return out
}

func (t *Table) column(field string) (Column, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, col := range t.columns {
		if col.Field == field {
			return col, true
		}
	}
	return Column{}, false
}

// --- export ---

// ExportDataset builds the normalized handoff dataset: ordered column
// titles plus every filtered row rendered to text.
func (t *Table) ExportDataset() *export.Dataset {
	recs, _ := t.workingSet()
	cols := t.Columns()

	headers := make([]string, 0, len(cols))
	visible := make([]Column, 0, len(cols))
	for _, col := range cols {
		if col.Hidden {
			continue
		}
		title := col.Title
		if title == "" {
			title = col.Field
		}
		headers = append(headers, title)
		visible = append(visible, col)
	}

	ds := &export.Dataset{Title: t.opts.TableID, Headers: headers}
	for _, rec := range recs {
		row := make(map[string]string, len(visible))
		for i, col := range visible {
			row[headers[i]] = t.cellText(col, rec.Cells[col.Field])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

// cellText renders one cell to text for export and view building.
func (t *Table) cellText(col Column, v any) string {
	if col.Render != nil {
		return col.Render(v)
	}
	if t.fmtr != nil {
		s, _ := t.fmtr.Format(v)
		return s
	}
	return format.Stringify(v)
}

// ExportToExcel writes the dataset as an xlsx workbook.
func (t *Table) ExportToExcel(w io.Writer) error {
	if !t.opts.Export.Excel {
		return &ConfigError{Option: "Export.Excel", Reason: "not enabled"}
	}
	ds := t.ExportDataset()
	enc := &xlsx.Encoder{}
	if err := enc.Encode(w, ds); err != nil {
		return fmt.Errorf("export excel: %w", err)
	}
	t.events.emit(EventExport, ExportEvent{Format: "excel", Records: len(ds.Rows)})
	return nil
}

// ExportToCSV writes the dataset as CSV.
func (t *Table) ExportToCSV(w io.Writer) error {
	if !t.opts.Export.Excel {
		return &ConfigError{Option: "Export.Excel", Reason: "not enabled"}
	}
	ds := t.ExportDataset()
	enc := &export.CSVEncoder{}
	if err := enc.Encode(w, ds); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	t.events.emit(EventExport, ExportEvent{Format: "csv", Records: len(ds.Rows)})
	return nil
}

// ExportToPDF renders the dataset as a printable HTML document for the
// host's PDF pipeline. The engine does not encode PDF itself.
func (t *Table) ExportToPDF(w io.Writer) error {
	if !t.opts.Export.PDF {
		return &ConfigError{Option: "Export.PDF", Reason: "not enabled"}
	}
	return t.renderDocument(w, "pdf")
}

// Print renders the dataset as a printable HTML document.
func (t *Table) Print(w io.Writer) error {
	if !t.opts.Export.Print {
		return &ConfigError{Option: "Export.Print", Reason: "not enabled"}
	}
	return t.renderDocument(w, "print")
}

func (t *Table) renderDocument(w io.Writer, formatName string) error {
	ds := t.ExportDataset()
	r := &export.HTMLRenderer{}
	if err := r.Render(w, ds); err != nil {
		return fmt.Errorf("export %s: %w", formatName, err)
	}
	t.events.emit(EventExport, ExportEvent{Format: formatName, Records: len(ds.Rows)})
	return nil
}
