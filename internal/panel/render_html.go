package panel

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/platformbuilds/mirador-mcp/internal/frame"
)

var htmlTemplates = template.Must(template.New("panel").Parse(`
{{define "placeholder"}}<div class="panel panel-{{.Panel}} placeholder">{{.Placeholder}}</div>{{end}}

{{define "graph"}}<div class="panel panel-metrics" style="width:{{.W}}px;height:{{.H}}px">
<svg viewBox="0 0 {{.W}} {{.H}}" width="{{.W}}" height="{{.H}}" role="img">
{{if .Line}}<polyline fill="none" stroke="{{.Color}}" stroke-width="2" points="{{.Line}}"/>{{end}}
{{range .Dots}}<circle cx="{{.X}}" cy="{{.Y}}" r="3" fill="{{$.Color}}"/>{{end}}
</svg>
{{if .Legend}}<div class="legend"><span class="swatch" style="{{.Swatch}}"></span>{{.Label}}</div>{{end}}
</div>{{end}}

{{define "logs"}}<div class="panel panel-logs" style="width:{{.W}}px;height:{{.H}}px;overflow:auto">
<table class="logs">
<thead><tr>{{if .Opts.ShowTimestamp}}<th>Time</th>{{end}}<th>Level</th><th>Message</th>{{if .Opts.ShowLabels}}<th>Labels</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr class="level-{{.Level}}">{{if $.Opts.ShowTimestamp}}<td class="nowrap">{{.Time}}</td>{{end}}<td class="nowrap">{{.Level}}</td><td class="message">{{.Message}}</td>{{if $.Opts.ShowLabels}}<td class="labels">{{.Labels}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</div>{{end}}

{{define "table"}}<div class="panel panel-traces" style="width:{{.W}}px;height:{{.H}}px;overflow:auto">
<table class="frame">
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</div>{{end}}
`))

type dot struct{ X, Y float64 }

// RenderHTML renders a view as an HTML fragment for the web UI.
func RenderHTML(v View) (template.HTML, error) {
	w, h := v.Size.Width, v.Size.Height
	if w <= 0 {
		w = 800
	}
	if h <= 0 {
		h = 300
	}

	var buf bytes.Buffer
	var err error
	switch v.Kind {
	case ViewPlaceholder:
		err = htmlTemplates.ExecuteTemplate(&buf, "placeholder", v)
	case ViewGraph:
		err = htmlTemplates.ExecuteTemplate(&buf, "graph", graphData(v.Graph, w, h))
	case ViewLogTable:
		err = htmlTemplates.ExecuteTemplate(&buf, "logs", map[string]any{
			"W": w, "H": h, "Rows": v.Logs, "Opts": v.LogOptions,
		})
	case ViewTable:
		header, rows := tableData(v.Table, v.Traces)
		err = htmlTemplates.ExecuteTemplate(&buf, "table", map[string]any{
			"W": w, "H": h, "Header": header, "Rows": rows,
		})
	default:
		return "", fmt.Errorf("unknown view kind %q", v.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("render %s panel: %w", v.Panel, err)
	}
	return template.HTML(buf.String()), nil
}

func graphData(g *Graph, w, h int) map[string]any {
	data := map[string]any{"W": w, "H": h, "Color": SeriesColor, "Swatch": swatch(SeriesColor), "Legend": false, "Label": "", "Line": "", "Dots": []dot(nil)}
	if g == nil || len(g.Series) == 0 {
		return data
	}
	s := g.Series[0]
	if s.Color != "" {
		data["Color"] = s.Color
		data["Swatch"] = swatch(s.Color)
	}
	data["Legend"] = g.ShowLegend
	data["Label"] = s.Label
	if len(s.Points) == 0 {
		return data
	}

	const pad = 8.0
	t0, t1 := s.Points[0].Time, s.Points[len(s.Points)-1].Time
	lo, hi := s.Points[0].Value, s.Points[0].Value
	for _, p := range s.Points {
		lo, hi = math.Min(lo, p.Value), math.Max(hi, p.Value)
	}
	span := t1.Sub(t0).Seconds()
	xOf := func(i int) float64 {
		if span <= 0 {
			return pad
		}
		return pad + s.Points[i].Time.Sub(t0).Seconds()/span*(float64(w)-2*pad)
	}
	yOf := func(v float64) float64 {
		if hi == lo {
			return float64(h) / 2
		}
		return float64(h) - pad - (v-lo)/(hi-lo)*(float64(h)-2*pad)
	}

	dots := make([]dot, 0, len(s.Points))
	parts := make([]string, 0, len(s.Points))
	for i, p := range s.Points {
		d := dot{X: math.Round(xOf(i)*10) / 10, Y: math.Round(yOf(p.Value)*10) / 10}
		dots = append(dots, d)
		parts = append(parts, fmt.Sprintf("%g,%g", d.X, d.Y))
	}
	if g.ShowLines {
		data["Line"] = strings.Join(parts, " ")
	}
	if g.ShowPoints {
		data["Dots"] = dots
	}
	return data
}

// swatch builds the legend color style. Colors come from this package's
// constants, never from query data.
func swatch(color string) template.CSS {
	return template.CSS("background:" + color)
}

func tableData(fr *frame.Frame, opts TracesOptions) ([]string, [][]string) {
	if fr == nil {
		return nil, nil
	}
	cols := opts.visibleColumns(fr)
	header := make([]string, len(cols))
	for c, f := range cols {
		header[c] = f.Display()
	}
	rows := make([][]string, fr.Rows())
	for r := range rows {
		rows[r] = make([]string, len(cols))
		for c, f := range cols {
			rows[r][c] = cellText(f, r)
		}
	}
	return header, rows
}
