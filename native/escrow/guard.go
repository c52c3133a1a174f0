package escrow

import "sync/atomic"

// Guard is the engine-wide reentrancy flag. It is held for the whole of a
// payment release and checked at the top of every mutating entry point.
type Guard struct {
	active atomic.Bool
}

// Enter acquires the guard. The returned release func is safe to call more
// than once.
func (g *Guard) Enter() (func(), error) {
	if !g.active.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.active.Store(false)
		}
	}, nil
}

// Check fails with ErrReentrantCall while the guard is held.
func (g *Guard) Check() error {
	if g.active.Load() {
		return ErrReentrantCall
	}
	return nil
}

// Active reports whether a release currently holds the guard.
func (g *Guard) Active() bool {
	return g.active.Load()
}
