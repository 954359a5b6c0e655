package ecs

import (
	"fmt"
)

// Storage is the hierarchical sparse store for one component type together
// with its rollback ledger. A Storage is not safe for concurrent mutation;
// the scheduler guarantees a single writer per wavefront.
type Storage[T any] struct {
	id        ComponentID
	name      string
	temporary bool

	root   root[T]
	count  int
	tick   Tick
	origin Tick
	ledger ledger[T]
	fixed  bool
}

func newStorage[T any](id ComponentID, name string, tick Tick, retention int, temporary bool) *Storage[T] {
	return &Storage[T]{
		id:        id,
		name:      name,
		temporary: temporary,
		tick:      tick,
		origin:    tick,
		ledger:    ledger[T]{pending: newDelta[T](tick), retention: retention},
		fixed:     fixedSize[T](),
	}
}

func (s *Storage[T]) ID() ComponentID { return s.id }
func (s *Storage[T]) Name() string { return s.name }
func (s *Storage[T]) Temporary() bool { return s.temporary }
func (s *Storage[T]) Len() int { return s.count }
func (s *Storage[T]) Tick() Tick { return s.tick }
func (s *Storage[T]) storage() storage { return s }

// Has reports whether e carries a value.
func (s *Storage[T]) Has(e Entity) bool {
	ri, mi, ii := e.split()
	b := s.root.inner(ri, mi)
	return b != nil && b.presence.Has(ii)
}

// Get returns a copy of e's value. ok is false when e has none.
func (s *Storage[T]) Get(e Entity) (v T, ok bool) {
	ri, mi, ii := e.split()
	b := s.root.inner(ri, mi)
	if b == nil || !b.presence.Has(ii) {
		return v, false
	}
	return b.data[ii], true
}

// GetMut returns a pointer to e's value and marks it changed. The pointer
// is valid until the next structural change to the storage.
func (s *Storage[T]) GetMut(e Entity) (*T, bool) {
	ri, mi, ii := e.split()
	b := s.root.inner(ri, mi)
	if b == nil || !b.presence.Has(ii) {
		return nil, false
	}
	s.touch(ri, mi, ii, b)
	s.root.sync(ri, mi)
	return &b.data[ii], true
}

// Set writes v for e. Writes mark the slot changed even when v equals the
// stored value.
func (s *Storage[T]) Set(e Entity, v T) {
	ri, mi, ii := e.split()
	b := s.root.ensure(ri, mi)
	s.touch(ri, mi, ii, b)
	if !b.presence.Has(ii) {
		b.presence.Set(ii)
		s.count++
	}
	b.absence.Clear(ii)
	b.data[ii] = v
	s.root.sync(ri, mi)
}

// Remove drops e's value. It reports false, and records nothing, when e
// had no value.
func (s *Storage[T]) Remove(e Entity) bool {
	ri, mi, ii := e.split()
	b := s.root.inner(ri, mi)
	if b == nil || !b.presence.Has(ii) {
		return false
	}
	s.touch(ri, mi, ii, b)
	b.presence.Clear(ii)
	b.absence.Set(ii)
	var zero T
	b.data[ii] = zero
	s.count--
	s.root.sync(ri, mi)
	return true
}

// Changed reports whether e was written or removed during the current tick.
func (s *Storage[T]) Changed(e Entity) bool {
	ri, mi, ii := e.split()
	b := s.root.inner(ri, mi)
	return b != nil && b.changed.Has(ii)
}

// Removed reports whether e lost its value during the current tick.
func (s *Storage[T]) Removed(e Entity) bool {
	ri, mi, ii := e.split()
	b := s.root.inner(ri, mi)
	return b != nil && b.absence.Has(ii)
}

// touch marks the slot changed and, on the first touch within the tick,
// captures its pre-image into the pending ledger entry.
func (s *Storage[T]) touch(ri, mi, ii uint, b *inner[T]) {
	if b.changed.Has(ii) {
		return
	}
	b.changed.Set(ii)
	if s.temporary {
		return
	}
	d := s.ledger.pending.ensure(ri, mi)
	d.touched.Set(ii)
	if b.presence.Has(ii) {
		d.presence.Set(ii)
		d.prev[ii] = b.data[ii]
	}
}

// SetTick moves the cursor. next equal to the current tick is a no-op;
// its successor commits the pending entry, clears every changed and
// absence mask and prunes emptied blocks.
func (s *Storage[T]) SetTick(next Tick) error {
	if next == s.tick {
		return nil
	}
	if next != s.tick.Next() {
		return fmt.Errorf("set tick %s from %d to %d: %w", s.name, s.tick, next, ErrTickOrder)
	}
	pending := s.ledger.pending
	s.root.dirty.Each(func(ri uint) {
		m := s.root.children[ri]
		m.dirty.Each(func(mi uint) {
			b := m.children[mi]
			if d := pending.lookup(ri, mi); d != nil {
				d.absence = b.absence
			}
			b.changed = Mask{}
			b.absence = Mask{}
			s.root.sync(ri, mi)
		})
	})
	if !s.temporary {
		s.ledger.commit(next)
	} else {
		s.ledger.pending.tick = next
	}
	s.tick = next
	return nil
}

// History returns the oldest tick Rollback can reach and the current tick.
func (s *Storage[T]) History() (oldest, current Tick) {
	if s.temporary {
		return s.tick, s.tick
	}
	return s.ledger.oldest(), s.tick
}

func (s *Storage[T]) checkRollback(target Tick) error {
	if target == s.tick || s.temporary && !target.After(s.tick) {
		return nil
	}
	oldest := s.ledger.oldest()
	if target.After(s.tick) || target.Before(oldest) && s.ledger.evicted {
		return &RangeError{Component: s.name, Target: target, Oldest: oldest, Current: s.tick}
	}
	return nil
}

// Rollback restores the state the storage had at the end of tick target and
// discards every later entry. Changed and absence masks come back as they
// stood before target was committed, so recording resumes inside target.
// A target before the storage existed leaves it empty, provided no history
// has been evicted.
func (s *Storage[T]) Rollback(target Tick) error {
	if err := s.checkRollback(target); err != nil {
		return err
	}
	if target == s.tick {
		return nil
	}
	if s.temporary {
		s.root = root[T]{}
		s.count = 0
		s.tick = target
		s.ledger.pending.tick = target
		return nil
	}

	s.undo(s.ledger.pending)
	for d := s.ledger.last(); d != nil && d.tick.After(target); d = s.ledger.last() {
		s.undo(s.ledger.pop())
	}
	if d := s.ledger.last(); d != nil && d.tick == target {
		s.ledger.pending = s.ledger.pop()
		s.reopen(s.ledger.pending)
	} else {
		s.ledger.pending = newDelta[T](target)
	}
	if target.Before(s.origin) {
		s.origin = target
	}
	s.tick = target
	return nil
}

func (s *Storage[T]) undo(d *delta[T]) {
	d.each(func(ri, mi uint, rec *deltaInner[T]) {
		b := s.root.ensure(ri, mi)
		var zero T
		rec.touched.Each(func(ii uint) {
			was := b.presence.Has(ii)
			if rec.presence.Has(ii) {
				b.data[ii] = rec.prev[ii]
				if !was {
					b.presence.Set(ii)
					s.count++
				}
				return
			}
			b.data[ii] = zero
			if was {
				b.presence.Clear(ii)
				s.count--
			}
		})
		b.changed = b.changed.AndNot(rec.touched)
		b.absence = b.absence.AndNot(rec.touched)
		s.root.sync(ri, mi)
	})
}

func (s *Storage[T]) reopen(d *delta[T]) {
	d.each(func(ri, mi uint, rec *deltaInner[T]) {
		b := s.root.ensure(ri, mi)
		b.changed = b.changed.Or(rec.touched)
		b.absence = b.absence.Or(rec.absence)
		s.root.sync(ri, mi)
	})
}

// each visits present slots in entity order.
func (s *Storage[T]) each(fn func(e Entity, v *T)) {
	s.root.occupancy.Each(func(ri uint) {
		m := s.root.children[ri]
		m.occupancy.Each(func(mi uint) {
			b := m.children[mi]
			b.presence.Each(func(ii uint) {
				fn(join(ri, mi, ii), &b.data[ii])
			})
		})
	})
}

func (s *Storage[T]) rootMask(k maskKind) Mask { return s.root.summary(k) }

func (s *Storage[T]) middleMask(ri uint, k maskKind) Mask {
	if m := s.root.children[ri]; m != nil {
		return m.summary(k)
	}
	return Mask{}
}

func (s *Storage[T]) innerMask(ri, mi uint, k maskKind) Mask {
	if b := s.root.inner(ri, mi); b != nil {
		return b.mask(k)
	}
	return Mask{}
}

func (s *Storage[T]) remove(e Entity) bool { return s.Remove(e) }
