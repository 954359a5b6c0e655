package ecs

import (
	"fmt"

	"go.uber.org/multierr"
)

// verify checks the structural invariants of the block hierarchy: summary
// bits agree with their children, presence and absence are disjoint,
// absence implies changed, the live counter matches presence and every
// changed slot of a tracked storage has a pending pre-image.
func (s *Storage[T]) verify() error {
	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%s: "+format, append([]any{s.name}, args...)...))
	}

	count := 0
	for ri := uint(0); ri < BlockSize; ri++ {
		m := s.root.children[ri]
		if (m != nil) != s.root.occupancy.Has(ri) {
			fail("root occupancy bit %d disagrees with child", ri)
		}
		if m == nil {
			if s.root.dirty.Has(ri) || s.root.full.Has(ri) {
				fail("root summary bit %d set without child", ri)
			}
			continue
		}
		if s.root.dirty.Has(ri) != !m.dirty.IsZero() {
			fail("root dirty bit %d disagrees with middle", ri)
		}
		if s.root.full.Has(ri) != (m.full == FullMask) {
			fail("root full bit %d disagrees with middle", ri)
		}
		for mi := uint(0); mi < BlockSize; mi++ {
			b := m.children[mi]
			if (b != nil) != m.occupancy.Has(mi) {
				fail("middle %d occupancy bit %d disagrees with child", ri, mi)
			}
			if b == nil {
				continue
			}
			if m.dirty.Has(mi) != (!b.changed.IsZero() || !b.absence.IsZero()) {
				fail("middle %d dirty bit %d disagrees with inner", ri, mi)
			}
			if m.full.Has(mi) != (b.presence == FullMask) {
				fail("middle %d full bit %d disagrees with inner", ri, mi)
			}
			if b.presence.Intersects(b.absence) {
				fail("inner (%d,%d) has slots both present and absent", ri, mi)
			}
			if !b.absence.AndNot(b.changed).IsZero() {
				fail("inner (%d,%d) has absent slots not marked changed", ri, mi)
			}
			if !s.temporary && !b.changed.IsZero() {
				rec := s.ledger.pending.lookup(ri, mi)
				if rec == nil || !b.changed.AndNot(rec.touched).IsZero() {
					fail("inner (%d,%d) has changed slots without a pre-image", ri, mi)
				}
			}
			count += b.presence.Count()
		}
	}
	if count != s.count {
		fail("len %d but %d slots present", s.count, count)
	}
	return errs
}

// Verify runs the structural invariant checks over every storage.
func (w *World) Verify() error {
	var errs error
	for _, s := range w.registry.stores {
		errs = multierr.Append(errs, s.verify())
	}
	return errs
}
