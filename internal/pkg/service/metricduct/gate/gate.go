// Package gate provides synchronization points of the pipeline lifecycle.
//
// A Gate is signalled when the pipeline reaches the point and then the pipeline waits until the gate is released.
// Production code uses an open gate, it is already released and the wait never blocks.
// A nil *Gate behaves as an open gate.
package gate

import (
	"context"
	"sync"
)

type Gate struct {
	reached     chan struct{}
	reachedOnce sync.Once
	released    chan struct{}
	releaseOnce sync.Once
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Open returns a released gate.
func Open() *Gate {
	g := New()
	g.Release()
	return g
}

// New returns a gate which holds the pipeline until Release is called.
func New() *Gate {
	return &Gate{reached: make(chan struct{}), released: make(chan struct{})}
}

// Signal marks the gate as reached.
func (g *Gate) Signal() {
	if g == nil {
		return
	}
	g.reachedOnce.Do(func() {
		close(g.reached)
	})
}

// Reached is closed when the gate has been signalled for the first time.
func (g *Gate) Reached() <-chan struct{} {
	if g == nil {
		return closedCh
	}
	return g.reached
}

func (g *Gate) Release() {
	if g == nil {
		return
	}
	g.releaseOnce.Do(func() {
		close(g.released)
	})
}

// Wait blocks until the gate is released or the ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	select {
	case <-g.released:
		return nil
	default:
	}
	select {
	case <-g.released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pass signals the gate and waits for the release.
func (g *Gate) Pass(ctx context.Context) error {
	g.Signal()
	return g.Wait(ctx)
}
