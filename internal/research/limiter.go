package research

import (
	"context"
	"fmt"
	"sync"
)

// Limiter is a shared, mutable-capacity admission gate bounding how many
// units of work run simultaneously. One instance is shared across a whole
// research run so the total number of concurrent model/search calls is
// bounded regardless of tree shape.
//
// Capacity can grow at runtime: a branch that is about to block on its own
// recursive subtree raises capacity by one so the slot it already holds
// cannot starve siblings, and lowers it again when the subtree settles.
// WithHeadroom encapsulates that paired adjustment.
type Limiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	base     int
	ceiling  int // max extra capacity above base; 0 means unbounded
	inFlight int
}

// NewLimiter creates a limiter admitting at most capacity concurrent units.
// ceiling caps how far above the initial capacity headroom adjustments may
// raise it; 0 leaves headroom unbounded.
func NewLimiter(capacity, ceiling int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	l := &Limiter{capacity: capacity, base: capacity, ceiling: ceiling}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Do admits one unit of work when a slot is free, runs it, and releases the
// slot on every exit path. It blocks until admitted or ctx is done.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return fn()
}

func (l *Limiter) acquire(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.mu.Unlock()
		l.cond.Broadcast()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.inFlight >= l.capacity {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	l.inFlight++
	return nil
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
	l.cond.Broadcast()
}

// WithHeadroom raises capacity by one for the duration of fn and guarantees
// the matching decrement on every exit path. When a configured ceiling has
// been reached no adjustment is made and fn simply runs without the extra
// slot.
func (l *Limiter) WithHeadroom(fn func()) {
	grew := l.grow()
	defer func() {
		if grew {
			l.shrink()
		}
	}()
	fn()
}

func (l *Limiter) grow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ceiling > 0 && l.capacity >= l.base+l.ceiling {
		return false
	}
	l.capacity++
	l.cond.Broadcast()
	return true
}

func (l *Limiter) shrink() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.capacity <= l.base {
		panic(fmt.Sprintf("limiter capacity underflow: %d <= base %d", l.capacity, l.base))
	}
	l.capacity--
}

// Capacity reports the current admission ceiling.
func (l *Limiter) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

// InFlight reports the number of currently admitted units.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}
