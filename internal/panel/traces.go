package panel

import "github.com/platformbuilds/mirador-mcp/internal/frame"

// TracesOptions are the traces panel options. They only affect which
// columns the table renderers draw; the frame itself is never altered.
type TracesOptions struct {
	ShowDuration  bool `json:"showDuration" yaml:"showDuration"`
	ShowService   bool `json:"showService" yaml:"showService"`
	ShowOperation bool `json:"showOperation" yaml:"showOperation"`
}

func DefaultTracesOptions() TracesOptions {
	return TracesOptions{ShowDuration: true, ShowService: true, ShowOperation: true}
}

// RenderTraces hands the first frame, unmodified, to the table view.
func RenderTraces(frames []*frame.Frame, ctx Context, opts TracesOptions) View {
	if len(frames) == 0 || frames[0] == nil {
		return placeholder(KindTraces, ctx.Dimensions, NoTracesData)
	}
	return View{
		Kind:   ViewTable,
		Panel:  KindTraces,
		Size:   ctx.Dimensions,
		Table:  frames[0],
		Traces: opts,
	}
}

// visibleColumns lists the frame columns the trace options leave visible.
func (o TracesOptions) visibleColumns(fr *frame.Frame) []*frame.Field {
	out := make([]*frame.Field, 0, len(fr.Fields))
	for _, f := range fr.Fields {
		switch {
		case f.Name == "duration" && !o.ShowDuration,
			f.Name == "service" && !o.ShowService,
			f.Name == "operation" && !o.ShowOperation:
			continue
		}
		out = append(out, f)
	}
	return out
}
