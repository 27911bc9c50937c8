package panel

import "github.com/platformbuilds/mirador-mcp/internal/frame"

// MetricsOptions are the metrics panel options.
type MetricsOptions struct {
	ShowLegend bool `json:"showLegend" yaml:"showLegend"`
	ShowPoints bool `json:"showPoints" yaml:"showPoints"`
}

func DefaultMetricsOptions() MetricsOptions {
	return MetricsOptions{ShowLegend: true, ShowPoints: false}
}

// RenderMetrics plots the first time column against the first numeric
// column of the first frame as a single series.
func RenderMetrics(frames []*frame.Frame, ctx Context, opts MetricsOptions) View {
	if len(frames) == 0 || frames[0] == nil {
		return placeholder(KindMetrics, ctx.Dimensions, NoData)
	}
	fr := frames[0]
	timeField := fr.FirstOfType(frame.FieldTypeTime)
	valueField := fr.FirstOfType(frame.FieldTypeNumber)
	if timeField == nil || valueField == nil {
		return placeholder(KindMetrics, ctx.Dimensions, InvalidDataFormat)
	}

	label := valueField.Display()
	if label == "" {
		label = "Value"
	}
	series := Series{Label: label, Color: SeriesColor}
	for i := 0; i < timeField.Len(); i++ {
		t, ok := timeField.Time(i)
		if !ok {
			continue
		}
		v, ok := valueField.Float(i)
		if !ok {
			continue
		}
		series.Points = append(series.Points, Point{Time: t, Value: v})
	}

	return View{
		Kind:  ViewGraph,
		Panel: KindMetrics,
		Size:  ctx.Dimensions,
		Graph: &Graph{
			Series:     []Series{series},
			ShowLegend: opts.ShowLegend,
			ShowLines:  !opts.ShowPoints,
			ShowPoints: opts.ShowPoints,
			Location:   ctx.location(),
		},
	}
}
