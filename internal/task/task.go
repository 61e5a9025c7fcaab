// Package task holds the build units of a site and orders them so that no
// unit runs before the units it depends on.
package task

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

var (
	// ErrCyclicDependency is the cause when the dependency graph has a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrUnknownDependency is the cause when a task depends on an id that was never enqueued.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrDuplicateID is the cause when two tasks share an id.
	ErrDuplicateID = errors.New("duplicate task id")
)

// Task is a node of the build graph.
type Task interface {
	ID() string
	DependsOn() []string
}

// Queue keeps tasks in insertion order and yields them in dependency order.
// It is not safe for concurrent use; tasks are registered before the build starts.
type Queue[T Task] struct {
	tasks []T
	byID  map[string]int
}

// NewQueue returns an empty queue.
func NewQueue[T Task]() *Queue[T] {
	return &Queue[T]{byID: make(map[string]int)}
}

// Enqueue appends t. Ids must be unique and non-empty.
func (q *Queue[T]) Enqueue(t T) error {
	id := t.ID()
	if id == "" {
		return ferrors.ConfigError("task id is required").Build()
	}
	if _, exists := q.byID[id]; exists {
		return ferrors.ConfigError(fmt.Sprintf("duplicate task id %q", id)).
			WithContext("task", id).
			WithCause(ErrDuplicateID).
			Build()
	}
	q.byID[id] = len(q.tasks)
	q.tasks = append(q.tasks, t)
	return nil
}

// Get returns the task registered under id.
func (q *Queue[T]) Get(id string) (T, bool) {
	i, ok := q.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return q.tasks[i], true
}

// Len returns the number of enqueued tasks.
func (q *Queue[T]) Len() int { return len(q.tasks) }

// Sorted returns every task with dependencies before dependents. Entry points
// are taken in insertion order and each dependency list in declared order, so
// the result is the same on every run. A cycle or a dangling dependency fails
// the whole sort; no partial order is returned.
func (q *Queue[T]) Sorted() ([]T, error) {
	s := sorter[T]{
		q:     q,
		state: make([]visitState, len(q.tasks)),
		order: make([]T, 0, len(q.tasks)),
	}
	for i := range q.tasks {
		if err := s.visit(i); err != nil {
			return nil, err
		}
	}
	return s.order, nil
}

// All iterates the sorted tasks. A sort failure is yielded once with a zero task.
func (q *Queue[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		sorted, err := q.Sorted()
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for _, t := range sorted {
			if !yield(t, nil) {
				return
			}
		}
	}
}

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

type sorter[T Task] struct {
	q     *Queue[T]
	state []visitState
	stack []string
	order []T
}

func (s *sorter[T]) visit(i int) error {
	switch s.state[i] {
	case done:
		return nil
	case inProgress:
		return s.cycleError(s.q.tasks[i].ID())
	}

	t := s.q.tasks[i]
	s.state[i] = inProgress
	s.stack = append(s.stack, t.ID())
	for _, dep := range t.DependsOn() {
		j, ok := s.q.byID[dep]
		if !ok {
			return ferrors.ConfigError(fmt.Sprintf("task %q depends on unknown task %q", t.ID(), dep)).
				WithContext("task", t.ID()).
				WithContext("dependency", dep).
				WithCause(ErrUnknownDependency).
				Build()
		}
		if err := s.visit(j); err != nil {
			return err
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.state[i] = done
	s.order = append(s.order, t)
	return nil
}

// cycleError reports the cycle closing at id, e.g. "a -> b -> a".
func (s *sorter[T]) cycleError(id string) error {
	start := 0
	for k, v := range s.stack {
		if v == id {
			start = k
			break
		}
	}
	path := append(append([]string(nil), s.stack[start:]...), id)
	return ferrors.DependencyError("cyclic dependency: "+strings.Join(path, " -> ")).
		WithContext("task", id).
		WithContext("cycle", strings.Join(path, " -> ")).
		WithCause(ErrCyclicDependency).
		Build()
}
