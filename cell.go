package blueprint

import "sync"

// View is the read-only side of a Cell.
type View[T any] interface {
	// Get returns the current value.
	Get() T

	// Subscribe calls fn with the current value and then after every change.
	// The returned function removes the subscription and is idempotent.
	Subscribe(fn func(T)) (unsubscribe func())
}

// Cell is a minimal observable state holder. Writes replace the value
// wholesale. Subscribers run outside the lock and see values in write order,
// even when writers race: a write made while another goroutine is notifying
// is queued and delivered by that goroutine, after the values before it.
// Writes made from inside a subscriber are delivered once the current
// notification round finishes.
type Cell[T any] struct {
	mu       sync.Mutex
	value    T
	subs     []*cellSub[T]
	nextID   uint64
	seq      uint64
	pending  []cellUpdate[T]
	draining bool
}

type cellSub[T any] struct {
	id    uint64
	fn    func(T)
	since uint64
}

// cellUpdate is one queued delivery. A non-nil only targets the initial call
// of a new subscription; other updates go to every subscriber that existed
// before the write.
type cellUpdate[T any] struct {
	seq   uint64
	value T
	only  *cellSub[T]
}

// NewCell creates a cell holding the initial value.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.seq++
	c.publish(cellUpdate[T]{seq: c.seq, value: v})
}

// Update atomically derives the next value from the current one. fn must
// return a new value rather than mutating shared state in place.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	next := fn(c.value)
	c.value = next
	c.seq++
	c.publish(cellUpdate[T]{seq: c.seq, value: next})
	return next
}

// UpdateIf derives the next value like Update, but only writes and notifies
// when fn reports ok. It returns the value held afterwards.
func (c *Cell[T]) UpdateIf(fn func(T) (T, bool)) (T, bool) {
	c.mu.Lock()
	next, ok := fn(c.value)
	if !ok {
		current := c.value
		c.mu.Unlock()
		return current, false
	}
	c.value = next
	c.seq++
	c.publish(cellUpdate[T]{seq: c.seq, value: next})
	return next, true
}

// Subscribe implements View.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	c.nextID++
	sub := &cellSub[T]{id: c.nextID, fn: fn, since: c.seq}
	c.subs = append(c.subs, sub)
	c.publish(cellUpdate[T]{seq: c.seq, value: c.value, only: sub})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s.id == sub.id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// ReadOnly returns a view that cannot write to the cell.
func (c *Cell[T]) ReadOnly() View[T] {
	return readOnlyCell[T]{c: c}
}

// publish queues u and delivers the queue unless another call is already
// delivering it. It is called with c.mu held and returns with it released.
func (c *Cell[T]) publish(u cellUpdate[T]) {
	c.pending = append(c.pending, u)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true

	finished := false
	defer func() {
		if !finished {
			// A subscriber panicked; drop the queue so later writes deliver again.
			c.mu.Lock()
			c.draining = false
			c.pending = nil
			c.mu.Unlock()
		}
	}()

	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		targets := c.targets(next)
		c.mu.Unlock()
		for _, fn := range targets {
			fn(next.value)
		}
		c.mu.Lock()
	}
	c.draining = false
	finished = true
	c.mu.Unlock()
}

// targets lists the live subscribers an update goes to. Must hold c.mu.
func (c *Cell[T]) targets(u cellUpdate[T]) []func(T) {
	if u.only != nil {
		for _, s := range c.subs {
			if s == u.only {
				return []func(T){s.fn}
			}
		}
		return nil
	}
	out := make([]func(T), 0, len(c.subs))
	for _, s := range c.subs {
		if s.since < u.seq {
			out = append(out, s.fn)
		}
	}
	return out
}

type readOnlyCell[T any] struct {
	c *Cell[T]
}

func (r readOnlyCell[T]) Get() T                       { return r.c.Get() }
func (r readOnlyCell[T]) Subscribe(fn func(T)) func() { return r.c.Subscribe(fn) }
