// Package observer provides actor.ObserverUnit implementations: a simple
// in-process unit for tests and small deployments, and a Group that fans a
// single HandleEvent call out to many units concurrently over a bounded
// ants worker pool.
package observer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
)

// HandleFunc processes a single delivered event for one actor identity.
type HandleFunc func(ctx context.Context, event actor.FullyEvent, payload []byte) error

// Unit is a minimal in-process actor.ObserverUnit: it tracks one committed
// version per actor identity and calls through to a caller-supplied handler.
type Unit struct {
	name    string
	handle  HandleFunc
	mu      sync.Mutex
	cursors map[string]int64
}

func NewUnit(name string, handle HandleFunc) *Unit {
	return &Unit{name: name, handle: handle, cursors: make(map[string]int64)}
}

func (u *Unit) Name() string { return u.name }

func (u *Unit) CommittedVersion(ctx context.Context, id actor.ID) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cursors[id.String()], nil
}

func (u *Unit) SyncTo(ctx context.Context, id actor.ID, version int64) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cursors[id.String()] = version
	return true, nil
}

func (u *Unit) HandleEvent(ctx context.Context, event actor.FullyEvent, payload []byte) error {
	if u.handle != nil {
		if err := u.handle(ctx, event, payload); err != nil {
			return fmt.Errorf("observer %s: %w", u.name, err)
		}
	}
	u.mu.Lock()
	u.cursors[event.StateID.String()] = event.BasicInfo.Version
	u.mu.Unlock()
	return nil
}

func (u *Unit) ResetTo(ctx context.Context, oldID, newID actor.ID) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	v := u.cursors[oldID.String()]
	delete(u.cursors, oldID.String())
	u.cursors[newID.String()] = v
	return nil
}

// Group presents many ObserverUnits as a single actor.ObserverUnit,
// dispatching HandleEvent to every member concurrently over a bounded ants
// pool. The core's single-threaded-per-actor guarantee means at most one
// HandleEvent call into the group is ever in flight for a given actor at a
// time, so the pool only needs to size for fan-out breadth, not depth.
type Group struct {
	name    string
	members []actor.ObserverUnit
	pool    *ants.Pool
	logger  *zap.Logger
}

// NewGroup builds a Group backed by an ants pool sized poolSize. Closing the
// pool is the caller's responsibility via Release.
func NewGroup(name string, poolSize int, members []actor.ObserverUnit, logger *zap.Logger) (*Group, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(i interface{}) {
		logger.Error("observer group worker panicked", zap.Any("panic", i), zap.String("group", name))
	}))
	if err != nil {
		return nil, fmt.Errorf("observer group %s: new pool: %w", name, err)
	}
	return &Group{name: name, members: members, pool: pool, logger: logger}, nil
}

func (g *Group) Name() string { return g.name }

func (g *Group) CommittedVersion(ctx context.Context, id actor.ID) (int64, error) {
	min := int64(-1)
	for _, m := range g.members {
		v, err := m.CommittedVersion(ctx, id)
		if err != nil {
			return 0, err
		}
		if min == -1 || v < min {
			min = v
		}
	}
	if min == -1 {
		return 0, nil
	}
	return min, nil
}

func (g *Group) SyncTo(ctx context.Context, id actor.ID, version int64) (bool, error) {
	results := g.dispatch(func(m actor.ObserverUnit) error {
		ok, err := m.SyncTo(ctx, id, version)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("member declined sync")
		}
		return nil
	})
	for _, err := range results {
		if err != nil {
			return false, nil
		}
	}
	return true, nil
}

func (g *Group) HandleEvent(ctx context.Context, event actor.FullyEvent, payload []byte) error {
	results := g.dispatch(func(m actor.ObserverUnit) error {
		return m.HandleEvent(ctx, event, payload)
	})
	for _, err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) ResetTo(ctx context.Context, oldID, newID actor.ID) error {
	results := g.dispatch(func(m actor.ObserverUnit) error {
		return m.ResetTo(ctx, oldID, newID)
	})
	for _, err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

// dispatch runs fn against every member concurrently on the pool and
// collects results indexed by member, blocking until all complete.
func (g *Group) dispatch(fn func(actor.ObserverUnit) error) []error {
	results := make([]error, len(g.members))
	var wg sync.WaitGroup
	var submitFailures int32

	for i, m := range g.members {
		wg.Add(1)
		i, m := i, m
		err := g.pool.Submit(func() {
			defer wg.Done()
			results[i] = fn(m)
		})
		if err != nil {
			wg.Done()
			atomic.AddInt32(&submitFailures, 1)
			results[i] = fmt.Errorf("observer group %s: submit to pool: %w", g.name, err)
		}
	}
	wg.Wait()

	if submitFailures > 0 {
		g.logger.Warn("observer group pool rejected tasks", zap.Int32("count", submitFailures))
	}
	return results
}

// Release frees the underlying worker pool.
func (g *Group) Release() {
	g.pool.Release()
}
