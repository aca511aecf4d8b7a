package tablekit

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tablekit/tablekit/collab"
	"github.com/tablekit/tablekit/format"
	"github.com/tablekit/tablekit/rules"
	"github.com/tablekit/tablekit/source"
	"github.com/tablekit/tablekit/viz"
)

// Row is an open mapping from field name to scalar value.
type Row = source.Row

// Column describes one table column. Columns are fixed after construction
// except through UpdateColumn and ToggleColumn.
type Column struct {
	Field    string
	Title    string
	Sortable bool
	Editable bool
	Width    string
	Hidden   bool
	// Render overrides the formatted cell text. It receives the raw
	// value and returns markup for the host to place in the cell.
	Render func(value any) string
	// Visualization selects a chart primitive for the column. Empty
	// means plain text.
	Visualization viz.Kind
}

// ExportOptions enables the individual export surfaces.
type ExportOptions struct {
	Excel bool
	PDF   bool
	Print bool
}

const (
	DefaultPageSize          = 10
	DefaultLoadThreshold     = 5
	DefaultInsightsThreshold = 0.7
)

// Options configures a Table. Every recognized option is an explicit
// field; there is no open key set. Zero values fall back to the defaults
// documented per field.
type Options struct {
	// Data is the initial local row set. Ignored when ServerSide is set
	// or a Source is supplied.
	Data []Row
	// Columns is required and must contain at least one column with a
	// non-empty field.
	Columns []Column

	// TableID names this table instance toward collaborators. Defaults
	// to a random id.
	TableID string

	// Layout hints passed through to the host renderer.
	FreezeHeader     bool
	FreezeColumns    int
	ResizableColumns bool
	Theme            string
	UseHTML          bool
	ContextMenu      bool
	CSSClass         string

	// Paging. PageSize defaults to DefaultPageSize. LazyLoad switches
	// from discrete pages to incremental append; InfiniteScroll implies
	// LazyLoad. LoadThreshold is the remaining-row count at which the
	// host should request the next batch.
	PageSize       int
	LazyLoad       bool
	InfiniteScroll bool
	LoadThreshold  int

	// Remote data. ServerSide routes every load through ServerURL
	// (or Source when set, which takes precedence and also covers
	// database-backed adapters).
	ServerSide   bool
	ServerURL    string
	ServerParams source.ParamsFunc
	Source       source.Source

	Searchable bool
	Sortable   bool

	Export ExportOptions

	// Per-row and per-cell class hooks for the host renderer.
	RowClassName  func(row Row, index int) string
	CellClassName func(row Row, field string, value any) string

	// Insights. Threshold defaults to DefaultInsightsThreshold.
	Insights          bool
	InsightsPosition  string
	InsightsThreshold float64

	// Collaboration.
	Collaboration         bool
	CollaborationMode     collab.Mode
	CollaborationURL      string
	CollaborationInterval time.Duration
	CollaborationUser     collab.User
	// CollaborationChannel injects a transport directly, bypassing
	// Mode/URL. Used for local mode and tests.
	CollaborationChannel collab.Channel

	// Version history.
	VersionHistory bool
	MaxVersions    int

	// Visualizations. Types maps field name to chart kind and overrides
	// the per-column setting.
	Visualizations        bool
	VisualizationTypes    map[string]viz.Kind
	VisualizationColors   []string
	VisualizationPosition string

	// Conditional formatting and business rules.
	ConditionalFormatting  bool
	Rules                  []rules.Rule
	BusinessRules          []rules.Rule
	ValidateOnEdit         bool
	ShowValidationMessages bool

	// Smart formatting at the render boundary.
	SmartFormatting bool
	FormatDetection format.Detection

	// Keyboard hints passed through to the host; the engine stores but
	// does not interpret them.
	KeyboardNavigation bool
	KeyboardShortcuts  map[string]string

	Logger *slog.Logger
}

// applyDefaults fills zero values in place.
func (o *Options) applyDefaults() {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.LoadThreshold == 0 {
		o.LoadThreshold = DefaultLoadThreshold
	}
	if o.InfiniteScroll {
		o.LazyLoad = true
	}
	if o.InsightsThreshold == 0 {
		o.InsightsThreshold = DefaultInsightsThreshold
	}
	if o.MaxVersions <= 0 {
		o.MaxVersions = collab.DefaultMaxVersions
	}
	if o.TableID == "" {
		o.TableID = uuid.NewString()
	}
	if o.Collaboration {
		if o.CollaborationMode == "" {
			o.CollaborationMode = collab.ModeLocal
		}
		if o.CollaborationUser.ID == "" {
			o.CollaborationUser.ID = uuid.NewString()
		}
		if o.CollaborationInterval == 0 {
			o.CollaborationInterval = collab.DefaultPollInterval
		}
	}
	if o.SmartFormatting && o.FormatDetection == (format.Detection{}) {
		o.FormatDetection = format.DetectAll()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// validate rejects option combinations the engine cannot run with.
func (o *Options) validate() error {
	if len(o.Columns) == 0 {
		return &ConfigError{Option: "Columns", Reason: "at least one column is required"}
	}
	seen := make(map[string]bool, len(o.Columns))
	for _, col := range o.Columns {
		if col.Field == "" {
			return &ConfigError{Option: "Columns", Reason: "column with empty field"}
		}
		if seen[col.Field] {
			return &ConfigError{Option: "Columns", Reason: "duplicate field " + col.Field}
		}
		seen[col.Field] = true
	}
	if o.PageSize < 0 {
		return &ConfigError{Option: "PageSize", Reason: "must be positive"}
	}
	if o.ServerSide && o.ServerURL == "" && o.Source == nil {
		return &ConfigError{Option: "ServerURL", Reason: "required in server-side mode"}
	}
	if o.InsightsThreshold < 0 || o.InsightsThreshold > 1 {
		return &ConfigError{Option: "InsightsThreshold", Reason: "must be in [0,1]"}
	}
	if o.Collaboration {
		switch o.CollaborationMode {
		case collab.ModeWebSocket, collab.ModePolling:
			if o.CollaborationURL == "" && o.CollaborationChannel == nil {
				return &ConfigError{Option: "CollaborationURL", Reason: "required for mode " + string(o.CollaborationMode)}
			}
		case collab.ModeLocal:
		default:
			return &ConfigError{Option: "CollaborationMode", Reason: "unknown mode " + string(o.CollaborationMode)}
		}
	}
	return nil
}
