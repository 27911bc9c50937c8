package model

import (
	"fmt"
	"sort"
	"strings"
)

// TreeProblem classifies a malformed parent chain.
type TreeProblem string

const (
	ProblemDuplicateID   TreeProblem = "duplicate span id"
	ProblemCycle         TreeProblem = "parent cycle"
	ProblemMultipleRoots TreeProblem = "multiple roots"
	ProblemNoRoot        TreeProblem = "no root span"
)

// TreeError reports span ids that break the single-rooted tree shape.
type TreeError struct {
	TraceID string
	Problem TreeProblem
	SpanIDs []string
}

func (e *TreeError) Error() string {
	return fmt.Sprintf("trace %s: %s: %s", e.TraceID, e.Problem, strings.Join(e.SpanIDs, ", "))
}

// SpanNode is a span plus its children ordered by start time.
type SpanNode struct {
	Span     *Span
	Children []*SpanNode
}

// SpanTree is the parent/child structure of one trace.
type SpanTree struct {
	Roots []*SpanNode
	// Orphans are spans whose parent is not part of the trace. They are
	// also included in Roots.
	Orphans []string
}

// BuildSpanTree links spans by ParentID. Spans with a missing parent become
// roots. Duplicate ids and cycles are errors; spans caught in a cycle are
// left out of the tree.
func BuildSpanTree(traceID string, spans []Span) (*SpanTree, error) {
	byID := make(map[string]*SpanNode, len(spans))
	var dups []string
	for i := range spans {
		id := spans[i].ID
		if _, ok := byID[id]; ok {
			dups = append(dups, id)
			continue
		}
		byID[id] = &SpanNode{Span: &spans[i]}
	}
	if len(dups) > 0 {
		return nil, &TreeError{TraceID: traceID, Problem: ProblemDuplicateID, SpanIDs: dups}
	}

	if cyc := findCycle(byID); len(cyc) > 0 {
		return nil, &TreeError{TraceID: traceID, Problem: ProblemCycle, SpanIDs: cyc}
	}

	tree := &SpanTree{}
	for i := range spans {
		node := byID[spans[i].ID]
		parentID := node.Span.ParentID
		if parentID == "" {
			tree.Roots = append(tree.Roots, node)
			continue
		}
		parent, ok := byID[parentID]
		if !ok {
			tree.Roots = append(tree.Roots, node)
			tree.Orphans = append(tree.Orphans, node.Span.ID)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortNodes(tree.Roots)
	for _, n := range byID {
		sortNodes(n.Children)
	}
	return tree, nil
}

// findCycle returns the sorted ids of spans that sit on a parent cycle.
func findCycle(byID map[string]*SpanNode) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(byID))
	onCycle := make(map[string]bool)

	for id := range byID {
		if state[id] != unvisited {
			continue
		}
		var path []string
		cur := id
		for {
			node, ok := byID[cur]
			if !ok || state[cur] == done {
				break
			}
			if state[cur] == visiting {
				for i := len(path) - 1; i >= 0; i-- {
					onCycle[path[i]] = true
					if path[i] == cur {
						break
					}
				}
				break
			}
			state[cur] = visiting
			path = append(path, cur)
			if node.Span.ParentID == "" {
				break
			}
			cur = node.Span.ParentID
		}
		for _, p := range path {
			state[p] = done
		}
	}

	ids := make([]string, 0, len(onCycle))
	for id := range onCycle {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortNodes(nodes []*SpanNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Span.StartTime < nodes[j].Span.StartTime
	})
}

// Validate checks that the trace forms exactly one tree.
func (t Trace) Validate() error {
	tree, err := BuildSpanTree(t.TraceID, t.Spans)
	if err != nil {
		return err
	}
	switch len(tree.Roots) {
	case 0:
		if len(t.Spans) == 0 {
			return nil
		}
		return &TreeError{TraceID: t.TraceID, Problem: ProblemNoRoot}
	case 1:
		return nil
	}
	ids := make([]string, 0, len(tree.Roots))
	for _, r := range tree.Roots {
		ids = append(ids, r.Span.ID)
	}
	return &TreeError{TraceID: t.TraceID, Problem: ProblemMultipleRoots, SpanIDs: ids}
}

// NewTrace assembles a Trace from spans, deriving the start, duration and
// distinct service and operation names.
func NewTrace(traceID string, spans []Span) Trace {
	t := Trace{TraceID: traceID, Spans: spans}
	if len(spans) == 0 {
		return t
	}
	start, end := spans[0].StartTime, spans[0].StartTime+spans[0].Duration
	services := map[string]bool{}
	ops := map[string]bool{}
	for _, s := range spans {
		if s.StartTime < start {
			start = s.StartTime
		}
		if e := s.StartTime + s.Duration; e > end {
			end = e
		}
		if s.Service != "" && !services[s.Service] {
			services[s.Service] = true
			t.Services = append(t.Services, s.Service)
		}
		if s.Operation != "" && !ops[s.Operation] {
			ops[s.Operation] = true
			t.Operations = append(t.Operations, s.Operation)
		}
	}
	t.StartTime = start
	t.Duration = end - start
	sort.Strings(t.Services)
	sort.Strings(t.Operations)
	return t
}
