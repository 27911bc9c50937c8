package panel

import "github.com/platformbuilds/mirador-mcp/internal/frame"

// LogsOptions are the logs panel options.
type LogsOptions struct {
	ShowTimestamp bool `json:"showTimestamp" yaml:"showTimestamp"`
	ShowLabels    bool `json:"showLabels" yaml:"showLabels"`
}

func DefaultLogsOptions() LogsOptions {
	return LogsOptions{ShowTimestamp: true, ShowLabels: true}
}

// RenderLogs builds one row per record from the time, message and optional
// level columns of the first frame.
func RenderLogs(frames []*frame.Frame, ctx Context, opts LogsOptions) View {
	if len(frames) == 0 || frames[0] == nil {
		return placeholder(KindLogs, ctx.Dimensions, NoLogsData)
	}
	fr := frames[0]
	timeField := fr.FirstOfType(frame.FieldTypeTime)
	messageField := fr.ByName("message")
	levelField := fr.ByName("level")
	labelsField := fr.ByName("labels")
	if timeField == nil || messageField == nil {
		return placeholder(KindLogs, ctx.Dimensions, InvalidLogsFormat)
	}

	loc := ctx.location()
	rows := make([]LogRow, 0, fr.Rows())
	for i := 0; i < fr.Rows(); i++ {
		row := LogRow{Message: messageField.String(i), Level: DefaultLevel}
		if t, ok := timeField.Time(i); ok {
			row.Time = t.In(loc).Format(LogTimeLayout)
		}
		if levelField != nil {
			if lvl := levelField.String(i); lvl != "" {
				row.Level = lvl
			}
		}
		if labelsField != nil {
			row.Labels = labelsField.String(i)
		}
		rows = append(rows, row)
	}

	return View{
		Kind:       ViewLogTable,
		Panel:      KindLogs,
		Size:       ctx.Dimensions,
		Logs:       rows,
		LogOptions: opts,
	}
}
