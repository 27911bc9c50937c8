package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/platformbuilds/mirador-mcp/internal/model"
	"github.com/platformbuilds/mirador-mcp/internal/settings"
)

// DefaultTimeout matches the Mirador Core gateway timeout.
const DefaultTimeout = 30 * time.Second

const (
	headerRequestID = "X-Request-ID"
	headerTenant    = "X-Tenant-ID"
	maxErrorBody    = 512
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	AuthToken string
	// TenantID is sent when a query carries no tenant of its own.
	TenantID   string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to Mirador Core over HTTP.
type Client struct {
	baseURL   string
	token     string
	tenant    string
	userAgent string
	http      *http.Client
	ws        *http.Client
	logger    *zap.Logger
	tracer    trace.Tracer
}

var _ API = (*Client)(nil)

// New validates the base URL and builds a client. A non-empty AuthToken is
// sent as a bearer token on every request.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	if msg := settings.ValidateURL(opts.BaseURL); msg != "" {
		return nil, fmt.Errorf("%w: %s: %q", ErrNoBaseURL, msg, opts.BaseURL)
	}
	// any absolute URL is a valid setting, but requests need http(s) and a host
	if u, _ := url.Parse(strings.TrimSpace(opts.BaseURL)); u == nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: need an http(s) URL with a host: %q", ErrNoBaseURL, opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := &http.Client{Timeout: timeout}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
		if hc.Timeout == 0 {
			hc.Timeout = timeout
		}
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	// websocket dials carry the token as a header and bound time by context.
	ws := &http.Client{Transport: base}
	if opts.AuthToken != "" {
		hc.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AuthToken}),
			Base:   base,
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "mirador-mcp"
	}

	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		token:     opts.AuthToken,
		tenant:    opts.TenantID,
		userAgent: ua,
		http:      hc,
		ws:        ws,
		logger:    logger,
		tracer:    otel.Tracer("github.com/platformbuilds/mirador-mcp/internal/client"),
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// call is one HTTP exchange.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	tenant string
	body   any
}

// resulter is implemented by every response embedding model.BaseResponse.
type resulter interface {
	Result() *model.BaseResponse
}

// do runs the call inside a client span and decodes the reply into out.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	ctx, span := c.tracer.Start(ctx, "mirador."+cl.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", cl.method),
			attribute.String("url.path", cl.path),
		))
	defer span.End()

	err := c.roundTrip(ctx, cl, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, cl call, out any) error {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		buf, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", cl.op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", cl.op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(headerRequestID, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant := c.tenantFor(cl.tenant); tenant != "" {
		req.Header.Set(headerTenant, tenant)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("mirador request",
		zap.String("op", cl.op),
		zap.String("method", cl.method),
		zap.String("path", cl.path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID),
		zap.Duration("elapsed", time.Since(start)),
	)

	reader, err := decodedBody(resp)
	if err != nil {
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	defer reader.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Path: cl.path}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(reader, maxErrorBody))
		return &StatusCodeError{StatusCode: resp.StatusCode, Path: cl.path, Body: errorMessage(msg)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, reader)
		return nil
	}
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s %s: empty response body", cl.method, cl.path)
		}
		return fmt.Errorf("decode %s response: %w", cl.op, err)
	}
	if r, ok := out.(resulter); ok {
		return r.Result().Err()
	}
	return nil
}

func (c *Client) tenantFor(queryTenant string) string {
	if queryTenant != "" {
		return queryTenant
	}
	return c.tenant
}

// decodedBody unwraps a gzip-encoded body. The transport leaves it alone
// because Accept-Encoding is set explicitly.
func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return io.NopCloser(resp.Body), nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	return zr, nil
}

// errorMessage prefers the "error" field of a JSON error body.
func errorMessage(body []byte) string {
	var br model.BaseResponse
	if json.Unmarshal(body, &br) == nil && br.Error != "" {
		return br.Error
	}
	return strings.TrimSpace(string(body))
}

// envelope wraps discovery endpoints that return bare data.
type envelope[T any] struct {
	model.BaseResponse
	Data T `json:"data"`
}
