package tablekit

import (
	"sync"

	"github.com/tablekit/tablekit/source"
)

// Event names accepted by On and Off.
const (
	EventRowClick   = "rowClick"
	EventCellEdit   = "cellEdit"
	EventSort       = "sort"
	EventPageChange = "pageChange"
	EventSearch     = "search"
	EventExport     = "export"
	EventError      = "error"
)

// RowClickEvent carries the clicked row and its display index.
type RowClickEvent struct {
	Row   Row
	Index int
}

// CellEditEvent reports a committed cell edit, local or remote.
type CellEditEvent struct {
	RowID    string
	Index    int
	Field    string
	OldValue any
	NewValue any
	// Remote is set when the edit arrived over the collaboration
	// channel.
	Remote bool
}

// SortEvent reports a sort order change.
type SortEvent struct {
	Field     string
	Direction source.Direction
}

// PageChangeEvent reports navigation.
type PageChangeEvent struct {
	Page       int
	TotalPages int
}

// SearchEvent reports a search and how many rows matched.
type SearchEvent struct {
	Query   string
	Matches int
}

// ExportEvent reports a completed export handoff.
type ExportEvent struct {
	Format  string
	Records int
}

// ErrorEvent wraps a recovered load failure.
type ErrorEvent struct {
	Err error
}

// Handler receives one of the typed event payloads above.
type Handler func(payload any)

// dispatcher is a small subscription registry. Handlers run synchronously
// on the goroutine that triggered the event, after the engine has released
// its state lock.
type dispatcher struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[string]map[int]Handler)}
}

func (d *dispatcher) on(event string, fn Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	if d.subs[event] == nil {
		d.subs[event] = make(map[int]Handler)
	}
	d.subs[event][d.nextID] = fn
	return d.nextID
}

func (d *dispatcher) off(event string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs[event], id)
}

func (d *dispatcher) emit(event string, payload any) {
	d.mu.Lock()
	handlers := make([]Handler, 0, len(d.subs[event]))
	for _, fn := range d.subs[event] {
		handlers = append(handlers, fn)
	}
	d.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}

func (d *dispatcher) clear() {
	d.mu.Lock()
	d.subs = make(map[string]map[int]Handler)
	d.mu.Unlock()
}
