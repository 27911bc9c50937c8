package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

const streamReadLimit = 1 << 20

// StreamLogs subscribes to /api/v1/logs/stream over a websocket. Each text
// message is one JSON log entry. Without TailMode the server closes the
// socket after its backlog; with MaxLines the client closes after that many
// entries. Cancel ctx to unsubscribe.
func (c *Client) StreamLogs(ctx context.Context, q model.LogsStreamQuery, sink LogSink) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	if sink == nil {
		return 0, errors.New("stream logs: nil sink")
	}

	ctx, span := c.tracer.Start(ctx, "mirador.logs.stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Bool("mirador.tail_mode", q.TailMode)))
	defer span.End()

	n, err := c.stream(ctx, q, sink)
	span.SetAttributes(attribute.Int("mirador.lines", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

func (c *Client) stream(ctx context.Context, q model.LogsStreamQuery, sink LogSink) (int, error) {
	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("tailMode", strconv.FormatBool(q.TailMode))
	limit := 0
	if q.MaxLines != nil {
		limit = *q.MaxLines
		params.Set("maxLines", strconv.Itoa(limit))
	}
	for k, v := range rangeParams(q.TimeRange) {
		params[k] = v
	}
	target := c.baseURL + apiPrefix + "/logs/stream?" + params.Encode()

	hdr := http.Header{}
	hdr.Set(headerRequestID, uuid.NewString())
	hdr.Set("User-Agent", c.userAgent)
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}
	if tenant := c.tenantFor(q.Tenant()); tenant != "" {
		hdr.Set(headerTenant, tenant)
	}

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: c.ws,
		HTTPHeader: hdr,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return 0, &NotFoundError{Path: apiPrefix + "/logs/stream"}
		}
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return 0, &StatusCodeError{StatusCode: resp.StatusCode, Path: apiPrefix + "/logs/stream"}
		}
		return 0, fmt.Errorf("dial log stream: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(streamReadLimit)

	c.logger.Debug("log stream open", zap.String("query", q.Query), zap.Bool("tail", q.TailMode), zap.Int("max_lines", limit))

	delivered := 0
	for {
		var entry model.LogEntry
		if err := wsjson.Read(ctx, conn, &entry); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return delivered, nil
			}
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			return delivered, fmt.Errorf("read log stream: %w", err)
		}

		if err := sink(entry); err != nil {
			conn.Close(websocket.StatusNormalClosure, "subscriber closed")
			return delivered, err
		}
		delivered++

		if limit > 0 && delivered >= limit {
			conn.Close(websocket.StatusNormalClosure, "max lines reached")
			return delivered, nil
		}
	}
}
