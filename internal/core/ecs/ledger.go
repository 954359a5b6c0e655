package ecs

// deltaInner is the rollback record of one inner block for one tick.
// touched lists the slots written or removed during the tick, presence and
// prev hold their state before the first write, and absence the removal
// bits as they stood when the tick was committed.
type deltaInner[T any] struct {
	touched  Mask
	presence Mask
	absence  Mask
	prev     [BlockSize]T
}

type deltaMiddle[T any] struct {
	mask     Mask
	children [BlockSize]*deltaInner[T]
}

// delta is one ledger entry: the sparse set of inner blocks a tick touched.
type delta[T any] struct {
	tick     Tick
	mask     Mask
	children [BlockSize]*deltaMiddle[T]
}

func newDelta[T any](tick Tick) *delta[T] {
	return &delta[T]{tick: tick}
}

func (d *delta[T]) ensure(ri, mi uint) *deltaInner[T] {
	m := d.children[ri]
	if m == nil {
		m = new(deltaMiddle[T])
		d.children[ri] = m
		d.mask.Set(ri)
	}
	b := m.children[mi]
	if b == nil {
		b = new(deltaInner[T])
		m.children[mi] = b
		m.mask.Set(mi)
	}
	return b
}

func (d *delta[T]) lookup(ri, mi uint) *deltaInner[T] {
	if m := d.children[ri]; m != nil {
		return m.children[mi]
	}
	return nil
}

// each visits every recorded inner block in coordinate order.
func (d *delta[T]) each(fn func(ri, mi uint, b *deltaInner[T])) {
	d.mask.Each(func(ri uint) {
		m := d.children[ri]
		m.mask.Each(func(mi uint) {
			fn(ri, mi, m.children[mi])
		})
	})
}

// blocks returns the number of inner blocks recorded.
func (d *delta[T]) blocks() int {
	n := 0
	d.mask.Each(func(ri uint) { n += d.children[ri].mask.Count() })
	return n
}

// ledger keeps the committed entries in ascending tick order, one per tick,
// plus the pending entry for the tick being recorded.
type ledger[T any] struct {
	history   []*delta[T]
	pending   *delta[T]
	retention int
	evicted   bool
}

func (l *ledger[T]) commit(next Tick) {
	l.history = append(l.history, l.pending)
	if l.retention > 0 && len(l.history) > l.retention {
		drop := len(l.history) - l.retention
		clear(l.history[:drop])
		l.history = l.history[drop:]
		l.evicted = true
	}
	l.pending = newDelta[T](next)
}

func (l *ledger[T]) oldest() Tick {
	if len(l.history) > 0 {
		return l.history[0].tick
	}
	return l.pending.tick
}

func (l *ledger[T]) last() *delta[T] {
	if n := len(l.history); n > 0 {
		return l.history[n-1]
	}
	return nil
}

func (l *ledger[T]) pop() *delta[T] {
	n := len(l.history)
	d := l.history[n-1]
	l.history[n-1] = nil
	l.history = l.history[:n-1]
	return d
}
