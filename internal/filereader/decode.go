package filereader

import (
	"fmt"

	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/ptrace"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// OTLP/JSON writes trace and span ids as hex, which protojson would read as
// base64. pdata understands the JSON encoding; its protobuf output is then
// decoded into the same messages the gRPC receiver sees.
var (
	tracesJSON  ptrace.JSONUnmarshaler
	tracesProto ptrace.ProtoMarshaler
	logsJSON    plog.JSONUnmarshaler
	logsProto   plog.ProtoMarshaler
)

func decodeTraces(line []byte) (*tracepb.TracesData, error) {
	td, err := tracesJSON.UnmarshalTraces(line)
	if err != nil {
		return nil, fmt.Errorf("parse trace JSON: %w", err)
	}
	raw, err := tracesProto.MarshalTraces(td)
	if err != nil {
		return nil, fmt.Errorf("encode traces: %w", err)
	}
	var data tracepb.TracesData
	if err := proto.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode traces: %w", err)
	}
	return &data, nil
}

func decodeLogs(line []byte) (*logspb.LogsData, error) {
	ld, err := logsJSON.UnmarshalLogs(line)
	if err != nil {
		return nil, fmt.Errorf("parse log JSON: %w", err)
	}
	raw, err := logsProto.MarshalLogs(ld)
	if err != nil {
		return nil, fmt.Errorf("encode logs: %w", err)
	}
	var data logspb.LogsData
	if err := proto.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	return &data, nil
}
