package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tsflow/internal/ts"
)

// ErrorKind categorizes captured node evaluation errors.
type ErrorKind string

const (
	// ErrKindEval is an error returned by a node's evaluation function.
	ErrKindEval ErrorKind = "EVAL_ERROR"

	// ErrKindPanic is a panic recovered at the node boundary.
	ErrKindPanic ErrorKind = "EVAL_PANIC"

	// ErrKindNested is a failure inside a nested graph, attributed to the
	// construct node that owns it.
	ErrKindNested ErrorKind = "NESTED_GRAPH_ERROR"
)

// NodeError is a node evaluation failure captured at the node boundary.
// It is both an ordinary Go error and a time-series payload: a node that
// declares an error output receives NodeErrors as ticks instead of
// aborting the graph.
type NodeError struct {
	Kind ErrorKind

	// Message is the underlying failure description.
	Message string

	// Node is the failing node's name.
	Node string

	// RankPath locates the node: the owning graph's nesting path plus the
	// node's rank, e.g. "root/2[7]:rank 3".
	RankPath string

	// Stack holds a truncated stack trace for panics.
	Stack string

	// Inputs optionally captures the node's input values at failure time.
	Inputs map[string]ts.Value
}

func (e *NodeError) Error() string {
	if e.RankPath != "" {
		return fmt.Sprintf("%s: node %q (%s): %s", e.Kind, e.Node, e.RankPath, e.Message)
	}
	return fmt.Sprintf("%s: node %q: %s", e.Kind, e.Node, e.Message)
}

// Unwrap is intentionally absent: a NodeError is the captured boundary
// form, not a transparent wrapper.

// IsNodeError reports whether err is (or wraps) a captured node error.
func IsNodeError(err error) bool {
	var ne *NodeError
	return errors.As(err, &ne)
}

// AsNodeError extracts a captured node error, or nil.
func AsNodeError(err error) *NodeError {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne
	}
	return nil
}

// DependencyCycleError reports a mesh child that transitively depends on
// itself. Detected synchronously during re-ranking; never tolerated.
type DependencyCycleError struct {
	Mesh string
	Path []ts.Key
}

func (e *DependencyCycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = fmt.Sprintf("%v", k)
	}
	return fmt.Sprintf("mesh %q: dependency cycle: %s", e.Mesh, strings.Join(parts, " -> "))
}

// IsDependencyCycleError reports whether err is a mesh dependency cycle.
func IsDependencyCycleError(err error) bool {
	var ce *DependencyCycleError
	return errors.As(err, &ce)
}

// SchedulingError reports scheduler misuse, raised immediately at the call
// site (e.g. an alarm in the past).
type SchedulingError struct {
	Node    string
	Message string
}

func (e *SchedulingError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("scheduling error on node %q: %s", e.Node, e.Message)
	}
	return "scheduling error: " + e.Message
}

// BuildError reports a defect found while resolving a graph description
// against the operation registry.
type BuildError struct {
	Graph   string
	Node    string
	Message string
}

func (e *BuildError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("build graph %q, node %q: %s", e.Graph, e.Node, e.Message)
	}
	return fmt.Sprintf("build graph %q: %s", e.Graph, e.Message)
}
