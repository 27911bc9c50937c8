// Package panel turns data frames into panel views: a placeholder, a graph
// or a table. Renderers are pure; the time zone and display size are passed
// in explicitly.
package panel

import (
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/frame"
)

// Placeholder texts.
const (
	NoData            = "No data"
	NoLogsData        = "No logs data"
	NoTracesData      = "No traces data"
	InvalidDataFormat = "Invalid data format"
	InvalidLogsFormat = "Invalid logs format"
)

// SeriesColor is the color of the plotted metric series.
const SeriesColor = "rgb(31, 120, 193)"

// LogTimeLayout formats log row timestamps.
const LogTimeLayout = "2006-01-02 15:04:05"

// DefaultLevel is shown for log rows without a level.
const DefaultLevel = "info"

// Kind names a panel type.
type Kind string

const (
	KindMetrics Kind = "metrics"
	KindLogs    Kind = "logs"
	KindTraces  Kind = "traces"
)

// ViewKind is the shape of a rendered panel.
type ViewKind string

const (
	ViewPlaceholder ViewKind = "placeholder"
	ViewGraph       ViewKind = "graph"
	ViewLogTable    ViewKind = "log_table"
	ViewTable       ViewKind = "table"
)

// Dimensions is the display area.
type Dimensions struct {
	Width  int
	Height int
}

// Context is the host-supplied rendering context.
type Context struct {
	Dimensions
	// Location formats times; nil means UTC.
	Location *time.Location
}

func (c Context) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// View is a rendered panel. Exactly one of Placeholder, Graph, Logs or
// Table is set, according to Kind.
type View struct {
	Kind        ViewKind
	Panel       Kind
	Size        Dimensions
	Placeholder string
	Graph       *Graph
	Logs        []LogRow
	Table       *frame.Frame
	Traces      TracesOptions
	LogOptions  LogsOptions
}

// Point is one graph sample.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is one plotted line.
type Series struct {
	Label  string
	Color  string
	Points []Point
}

// Graph is a time series chart.
type Graph struct {
	Series     []Series
	ShowLegend bool
	ShowLines  bool
	ShowPoints bool
	Location   *time.Location
}

// LogRow is one displayed log record.
type LogRow struct {
	Time    string
	Level   string
	Message string
	Labels  string
}

func placeholder(p Kind, size Dimensions, text string) View {
	return View{Kind: ViewPlaceholder, Panel: p, Size: size, Placeholder: text}
}

// Options groups the per-panel options.
type Options struct {
	Metrics MetricsOptions
	Logs    LogsOptions
	Traces  TracesOptions
}

// DefaultOptions returns the defaults of every panel.
func DefaultOptions() Options {
	return Options{
		Metrics: DefaultMetricsOptions(),
		Logs:    DefaultLogsOptions(),
		Traces:  DefaultTracesOptions(),
	}
}

// Render dispatches to the renderer for kind.
func Render(kind Kind, frames []*frame.Frame, ctx Context, opts Options) View {
	switch kind {
	case KindLogs:
		return RenderLogs(frames, ctx, opts.Logs)
	case KindTraces:
		return RenderTraces(frames, ctx, opts.Traces)
	default:
		return RenderMetrics(frames, ctx, opts.Metrics)
	}
}
