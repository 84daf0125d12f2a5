// Package scheduler runs per-package work in dependency order.
package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/zerr"
)

// NodeStatus represents the status of a scheduled node.
type NodeStatus string

const (
	// StatusPending indicates the node is waiting for its dependencies.
	StatusPending NodeStatus = "Pending"
	// StatusRunning indicates the node's work is executing.
	StatusRunning NodeStatus = "Running"
	// StatusCompleted indicates the node's work finished successfully.
	StatusCompleted NodeStatus = "Completed"
	// StatusFailed indicates the node's work failed.
	StatusFailed NodeStatus = "Failed"
)

// RunFunc is the work performed for one node.
type RunFunc func(ctx context.Context, n *domain.Node) error

// Scheduler runs work over a subset of a graph so that a node starts only
// after every node it depends on within the subset has completed.
type Scheduler struct {
	graph  *domain.Graph
	subset []domain.DepID

	mu         sync.RWMutex
	nodeStatus map[domain.DepID]NodeStatus
}

// NewScheduler creates a Scheduler for the given nodes of graph.
func NewScheduler(graph *domain.Graph, subset []domain.DepID) *Scheduler {
	s := &Scheduler{
		graph:      graph,
		subset:     slices.Sorted(slices.Values(subset)),
		nodeStatus: make(map[domain.DepID]NodeStatus, len(subset)),
	}
	s.subset = slices.Compact(s.subset)
	for _, id := range s.subset {
		s.nodeStatus[id] = StatusPending
	}
	return s
}

func (s *Scheduler) updateStatus(id domain.DepID, status NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeStatus[id] = status
}

// Status returns the status of a node.
func (s *Scheduler) Status(id domain.DepID) NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeStatus[id]
}

// Run executes run for every node with at most parallelism concurrent calls.
// After the first failure no new work starts; the failures are joined.
// Dependency cycles are broken by releasing the smallest pending DepID.
func (s *Scheduler) Run(ctx context.Context, parallelism int, run RunFunc) error {
	if parallelism < 1 {
		parallelism = 1
	}
	state := s.newRunState(ctx, parallelism, run)

	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		if state.active == 0 {
			// Nothing runs and nothing is ready: either we stopped after a
			// failure, or the remaining nodes form a cycle.
			if state.errs != nil || state.ctx.Err() != nil {
				break
			}
			if !state.breakCycle() {
				break
			}
			continue
		}

		res := <-state.resultsCh
		state.handleResult(res)
	}

	if err := state.ctx.Err(); err != nil {
		state.errs = errors.Join(state.errs, zerr.Wrap(err, "scheduling cancelled"))
	}
	return state.errs
}

type result struct {
	id  domain.DepID
	err error
}

type schedulerRunState struct {
	inDegree    map[domain.DepID]int
	dependents  map[domain.DepID][]domain.DepID
	ready       []domain.DepID
	remaining   int
	active      int
	resultsCh   chan result
	errs        error
	ctx         context.Context
	parallelism int
	run         RunFunc
	s           *Scheduler
}

func (s *Scheduler) newRunState(ctx context.Context, parallelism int, run RunFunc) *schedulerRunState {
	member := make(map[domain.DepID]bool, len(s.subset))
	for _, id := range s.subset {
		member[id] = true
	}

	inDegree := make(map[domain.DepID]int, len(s.subset))
	dependents := make(map[domain.DepID][]domain.DepID, len(s.subset))
	for _, id := range s.subset {
		var deps []domain.DepID
		for _, e := range s.graph.EdgesOut(id) {
			if e.Missing() || e.To == id || !member[e.To] || slices.Contains(deps, e.To) {
				continue
			}
			deps = append(deps, e.To)
			dependents[e.To] = append(dependents[e.To], id)
		}
		inDegree[id] = len(deps)
	}

	var ready []domain.DepID
	for _, id := range s.subset {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	return &schedulerRunState{
		inDegree:    inDegree,
		dependents:  dependents,
		ready:       ready,
		remaining:   len(s.subset),
		resultsCh:   make(chan result, parallelism),
		ctx:         ctx,
		parallelism: parallelism,
		run:         run,
		s:           s,
	}
}

func (state *schedulerRunState) isDone() bool {
	return state.active == 0 && (state.remaining == 0 || len(state.ready) == 0 && state.errs != nil)
}

func (state *schedulerRunState) schedule() {
	for len(state.ready) > 0 && state.active < state.parallelism && state.errs == nil && state.ctx.Err() == nil {
		id := state.ready[0]
		state.ready = state.ready[1:]

		n, ok := state.s.graph.Node(id)
		if !ok {
			state.finish(id)
			continue
		}

		state.active++
		state.s.updateStatus(id, StatusRunning)

		go func(n *domain.Node) {
			state.resultsCh <- result{id: n.ID, err: state.run(state.ctx, n)}
		}(n)
	}
}

// breakCycle releases the smallest pending node.
func (state *schedulerRunState) breakCycle() bool {
	for _, id := range state.s.subset {
		if state.inDegree[id] > 0 {
			state.inDegree[id] = 0
			state.ready = append(state.ready, id)
			return true
		}
	}
	return false
}

func (state *schedulerRunState) handleResult(res result) {
	state.active--
	if res.err != nil {
		state.remaining--
		wrappedErr := zerr.With(zerr.Wrap(res.err, "scheduled work failed"), "package", res.id.String())
		state.errs = errors.Join(state.errs, wrappedErr)
		state.s.updateStatus(res.id, StatusFailed)
		return
	}
	state.s.updateStatus(res.id, StatusCompleted)
	state.finish(res.id)
}

// finish releases the dependents of a completed node.
func (state *schedulerRunState) finish(id domain.DepID) {
	state.remaining--
	for _, dep := range state.dependents[id] {
		if state.inDegree[dep] == 0 {
			continue
		}
		state.inDegree[dep]--
		if state.inDegree[dep] == 0 {
			state.ready = append(state.ready, dep)
		}
	}
}
