// Package otlpreceiver accepts OTLP traces and logs over gRPC and converts
// them into the Mirador data model for the local capture buffers.
package otlpreceiver

import (
	"context"
	"fmt"
	"net"
	"sync"

	collectorlogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/platformbuilds/mirador-mcp/internal/model"
	"github.com/platformbuilds/mirador-mcp/internal/storage"
)

// Sink stores converted telemetry. Implementations must be safe for
// concurrent use since exports arrive on many connections at once.
type Sink interface {
	ReceiveSpans(ctx context.Context, spans []model.Span) error
	ReceiveLogs(ctx context.Context, entries []model.LogEntry) error
}

// StoreSink feeds the local capture buffers. A nil field drops that signal.
type StoreSink struct {
	Traces *storage.TraceStore
	Logs   *storage.LogTail
}

func (s StoreSink) ReceiveSpans(_ context.Context, spans []model.Span) error {
	if s.Traces != nil {
		s.Traces.Add(spans...)
	}
	return nil
}

func (s StoreSink) ReceiveLogs(_ context.Context, entries []model.LogEntry) error {
	if s.Logs != nil {
		s.Logs.AppendAll(entries)
	}
	return nil
}

// Config holds configuration for the OTLP receiver.
type Config struct {
	Host string // e.g., "127.0.0.1"
	Port int    // 0 for ephemeral port assignment
}

// Server is the OTLP gRPC server for traces and logs.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	logger     *zap.Logger
	stopOnce   sync.Once
	stopChan   chan struct{}
	stopDone   chan struct{}
}

// NewServer binds the listener and registers the trace and logs services.
// Use port 0 for an ephemeral port and read it back with Endpoint.
func NewServer(cfg Config, sink Sink, logger *zap.Logger) (*Server, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	collectortrace.RegisterTraceServiceServer(grpcServer, &traceService{sink: sink, logger: logger})
	collectorlogs.RegisterLogsServiceServer(grpcServer, &logsService{sink: sink, logger: logger})

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		logger:     logger,
		stopChan:   make(chan struct{}),
		stopDone:   make(chan struct{}, 1),
	}, nil
}

// Start serves until Stop is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopChan:
		}
	}()

	s.logger.Info("otlp receiver listening", zap.String("endpoint", s.Endpoint()))
	err := s.grpcServer.Serve(s.listener)
	s.stopDone <- struct{}{}
	return err
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.grpcServer.GracefulStop()
		close(s.stopChan)
	})
}

// StopWait stops the server and waits for Start to return.
func (s *Server) StopWait() {
	s.Stop()
	<-s.stopDone
}

// Endpoint returns the listening address as "host:port".
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	sink   Sink
	logger *zap.Logger
}

func (t *traceService) Export(ctx context.Context, req *collectortrace.ExportTraceServiceRequest) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	spans := SpansFromOTLP(req.GetResourceSpans())
	if err := t.sink.ReceiveSpans(ctx, spans); err != nil {
		return nil, fmt.Errorf("failed to receive spans: %w", err)
	}
	t.logger.Debug("spans received", zap.Int("count", len(spans)))
	return &collectortrace.ExportTraceServiceResponse{}, nil
}

type logsService struct {
	collectorlogs.UnimplementedLogsServiceServer
	sink   Sink
	logger *zap.Logger
}

func (l *logsService) Export(ctx context.Context, req *collectorlogs.ExportLogsServiceRequest) (*collectorlogs.ExportLogsServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	entries := LogsFromOTLP(req.GetResourceLogs())
	if err := l.sink.ReceiveLogs(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to receive logs: %w", err)
	}
	l.logger.Debug("logs received", zap.Int("count", len(entries)))
	return &collectorlogs.ExportLogsServiceResponse{}, nil
}
