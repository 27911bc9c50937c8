package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/platformbuilds/mirador-mcp/internal/model"
)

// LogMatcher reports whether a log entry satisfies a query.
type LogMatcher func(model.LogEntry) bool

// CompileLogQuery compiles the subset of Lucene and Bleve syntax the local
// store understands. Terms are separated by whitespace and all must match:
//
//	*            everything
//	field:value  the field equals value, case-insensitively; value* matches a prefix
//	-term        negation
//	word         case-insensitive substring of the message
//
// Quoted phrases stay one term. AND is accepted; OR is rejected.
func CompileLogQuery(q string) (LogMatcher, error) {
	terms, err := splitTerms(q)
	if err != nil {
		return nil, err
	}

	var preds []LogMatcher
	for _, term := range terms {
		switch strings.ToUpper(term) {
		case "AND", "*":
			continue
		case "OR":
			return nil, fmt.Errorf("local log query %q: OR is not supported", q)
		}

		negate := false
		if strings.HasPrefix(term, "-") || strings.HasPrefix(term, "!") {
			negate, term = true, term[1:]
		}
		if term == "" {
			return nil, fmt.Errorf("local log query %q: empty term", q)
		}

		pred := termMatcher(term)
		if negate {
			inner := pred
			pred = func(e model.LogEntry) bool { return !inner(e) }
		}
		preds = append(preds, pred)
	}

	return func(e model.LogEntry) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}, nil
}

func termMatcher(term string) LogMatcher {
	field, value, ok := strings.Cut(term, ":")
	if !ok || field == "" || strings.HasPrefix(term, `"`) {
		needle := strings.ToLower(unquote(term))
		return func(e model.LogEntry) bool {
			return strings.Contains(strings.ToLower(e.Message()), needle)
		}
	}

	value = strings.ToLower(unquote(value))
	prefix := strings.HasSuffix(value, "*")
	value = strings.TrimSuffix(value, "*")
	return func(e model.LogEntry) bool {
		got := strings.ToLower(entryField(e, field))
		if prefix {
			return strings.HasPrefix(got, value)
		}
		return got == value
	}
}

// entryField reads a field with the same defaults the panels apply.
func entryField(e model.LogEntry, field string) string {
	switch field {
	case "level":
		return e.Level()
	case "message", "msg":
		return e.Message()
	case "timestamp":
		return e.Timestamp
	}
	return e.Fields.Get(field).String()
}

func splitTerms(q string) ([]string, error) {
	var (
		terms   []string
		cur     strings.Builder
		inQuote bool
	)
	for _, r := range q {
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
		return nil, fmt.Errorf("local log query %q: unterminated quote", q)
	}
	if cur.Len() > 0 {
		terms = append(terms, cur.String())
	}
	return terms, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// inRange reports whether ms falls in r. Zero bounds are open.
func inRange(ms int64, r *model.TimeRange) bool {
	if r == nil {
		return true
	}
	if r.Start != 0 && ms < r.Start {
		return false
	}
	if r.End != 0 && ms > r.End {
		return false
	}
	return true
}

// entryMillis is the entry time in unix milliseconds, 0 when unparseable.
func entryMillis(e model.LogEntry) int64 {
	if t, ok := e.Time(); ok {
		return t.UnixMilli()
	}
	return 0
}

// spanFilter holds a compiled TracesQuery. A trace matches when one of its
// spans matches every set criterion.
type spanFilter struct {
	service   string
	operation string
	tags      map[string]string
	minDur    time.Duration
	maxDur    time.Duration
	rng       *model.TimeRange
}

func newSpanFilter(q model.TracesQuery) (spanFilter, error) {
	minDur, maxDur, err := q.DurationBounds()
	if err != nil {
		return spanFilter{}, err
	}
	return spanFilter{
		service:   q.Service,
		operation: q.Operation,
		tags:      q.Tags,
		minDur:    minDur,
		maxDur:    maxDur,
		rng:       q.Range(),
	}, nil
}

func (f spanFilter) matchTrace(t model.Trace) bool {
	if !inRange(t.StartTime, f.rng) {
		return false
	}
	for i := range t.Spans {
		if f.matchSpan(&t.Spans[i]) {
			return true
		}
	}
	return false
}

func (f spanFilter) matchSpan(s *model.Span) bool {
	if f.service != "" && s.Service != f.service {
		return false
	}
	if f.operation != "" && s.Operation != f.operation && s.Name != f.operation {
		return false
	}
	dur := time.Duration(s.Duration) * time.Millisecond
	if f.minDur > 0 && dur < f.minDur {
		return false
	}
	if f.maxDur > 0 && dur > f.maxDur {
		return false
	}
	for k, want := range f.tags {
		if got, ok := s.Tags[k]; !ok || got != want {
			return false
		}
	}
	return true
}
