package datasource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// QueryType selects which Mirador Core API a query runs against.
type QueryType string

const (
	QueryMetrics QueryType = "metrics"
	QueryLogs    QueryType = "logs"
	QueryTraces  QueryType = "traces"
)

// Query is one panel query. From and To accept unix milliseconds, RFC3339,
// "now" or "now-<duration>". Empty bounds are open.
type Query struct {
	RefID     string    `json:"refId"`
	QueryType QueryType `json:"queryType,omitempty"`
	Expr      string    `json:"expr"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
}

// Type returns the query type, metrics when unset.
func (q Query) Type() QueryType {
	if q.QueryType == "" {
		return QueryMetrics
	}
	return q.QueryType
}

// TimeRange resolves From and To against now. Nil when both are empty.
func (q Query) TimeRange(now time.Time) (*model.TimeRange, error) {
	if q.From == "" && q.To == "" {
		return nil, nil
	}
	from, err := ParseTime(q.From, now)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	to, err := ParseTime(q.To, now)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	rng := &model.TimeRange{Start: from, End: to}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return rng, nil
}

// ParseTime returns unix milliseconds, 0 for an empty string.
func ParseTime(s string, now time.Time) (int64, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return 0, nil
	case s == "now":
		return now.UnixMilli(), nil
	case strings.HasPrefix(s, "now-"):
		d, err := time.ParseDuration(strings.TrimPrefix(s, "now-"))
		if err != nil {
			return 0, fmt.Errorf("invalid relative time %q: %w", s, err)
		}
		return now.Add(-d).UnixMilli(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid time %q", s)
}

// ParseTraceExpr reads a whitespace separated key=value filter such as
// `service=checkout operation="GET /cart" minDuration=100ms`. Keys of the
// form tag.<name> become tag filters.
func ParseTraceExpr(expr string) (model.TracesQuery, error) {
	var q model.TracesQuery
	terms, err := splitExpr(expr)
	if err != nil {
		return q, err
	}
	for _, term := range terms {
		key, value, ok := strings.Cut(term, "=")
		if !ok || key == "" {
			return q, fmt.Errorf("invalid trace filter %q: expected key=value", term)
		}
		value = strings.Trim(value, `"`)
		switch {
		case key == "service":
			q.Service = value
		case key == "operation":
			q.Operation = value
		case key == "minDuration":
			q.MinDuration = value
		case key == "maxDuration":
			q.MaxDuration = value
		case key == "limit":
			n, err := strconv.Atoi(value)
			if err != nil {
				return q, fmt.Errorf("invalid limit %q", value)
			}
			q.Limit = model.Int(n)
		case strings.HasPrefix(key, "tag."):
			if q.Tags == nil {
				q.Tags = map[string]string{}
			}
			q.Tags[strings.TrimPrefix(key, "tag.")] = value
		default:
			return q, fmt.Errorf("unknown trace filter %q", key)
		}
	}
	return q, q.Validate()
}

// splitExpr splits on whitespace outside double quotes.
func splitExpr(expr string) ([]string, error) {
	var (
		terms   []string
		cur     strings.Builder
		inQuote bool
	)
	for _, r := range expr {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			if cur.Len() > 0 {
				terms = append(terms, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", expr)
	}
	if cur.Len() > 0 {
		terms = append(terms, cur.String())
	}
	return terms, nil
}
