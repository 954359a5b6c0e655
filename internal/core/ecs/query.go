package ecs

import "iter"

// Query selects entities by combining per-type masks. All, Any, Changed and
// Removed narrow the candidate set, None subtracts from it and Remove
// schedules components for removal from every yielded entity once the
// sequence stops.
type Query struct {
	all     []storage
	any     []storage
	none    []storage
	changed []storage
	removed []storage
	remove  []storage
}

func NewQuery() *Query {
	return &Query{}
}

func sources(dst []storage, src []Source) []storage {
	for _, s := range src {
		dst = append(dst, s.storage())
	}
	return dst
}

// All keeps entities present in every given type.
func (q *Query) All(src ...Source) *Query { q.all = sources(q.all, src); return q }

// Any keeps entities present in at least one of the given types.
func (q *Query) Any(src ...Source) *Query { q.any = sources(q.any, src); return q }

// None drops entities present in any of the given types.
func (q *Query) None(src ...Source) *Query { q.none = sources(q.none, src); return q }

// Changed keeps entities written or removed this tick in every given type.
func (q *Query) Changed(src ...Source) *Query { q.changed = sources(q.changed, src); return q }

// Removed keeps entities that lost every given type this tick.
func (q *Query) Removed(src ...Source) *Query { q.removed = sources(q.removed, src); return q }

// Remove drops the given types from every yielded entity after iteration.
func (q *Query) Remove(src ...Source) *Query { q.remove = sources(q.remove, src); return q }

// level folds the masks of one hierarchy level. Existence terms go first.
// Above the inner level None may only subtract subtrees that are full.
func (q *Query) level(mask func(storage, maskKind) Mask, none maskKind) Mask {
	m := FullMask
	for _, s := range q.all {
		m = m.And(mask(s, kindPresence))
	}
	if len(q.any) > 0 {
		var a Mask
		for _, s := range q.any {
			a = a.Or(mask(s, kindPresence))
		}
		m = m.And(a)
	}
	for _, s := range q.changed {
		if m.IsZero() {
			return m
		}
		m = m.And(mask(s, kindChanged))
	}
	for _, s := range q.removed {
		m = m.And(mask(s, kindAbsence))
	}
	for _, s := range q.none {
		m = m.AndNot(mask(s, none))
	}
	return m
}

// Iter returns the matching entities in ascending order. The sequence is
// lazy and may be ranged over again; each pass reflects the storage state
// at that time.
func (q *Query) Iter() iter.Seq[Entity] {
	if len(q.all)+len(q.any)+len(q.changed)+len(q.removed) == 0 {
		panic("ecs: query needs an All, Any, Changed or Removed term")
	}
	return func(yield func(Entity) bool) {
		var hits []Entity
		if len(q.remove) > 0 {
			defer func() { q.apply(hits) }()
		}
		roots := q.level(func(s storage, k maskKind) Mask { return s.rootMask(k) }, kindFull)
		for ; !roots.IsZero(); roots.Clear(roots.First()) {
			ri := roots.First()
			mids := q.level(func(s storage, k maskKind) Mask { return s.middleMask(ri, k) }, kindFull)
			for ; !mids.IsZero(); mids.Clear(mids.First()) {
				mi := mids.First()
				slots := q.level(func(s storage, k maskKind) Mask { return s.innerMask(ri, mi, k) }, kindPresence)
				for ; !slots.IsZero(); slots.Clear(slots.First()) {
					e := join(ri, mi, slots.First())
					if q.remove != nil {
						hits = append(hits, e)
					}
					if !yield(e) {
						return
					}
				}
			}
		}
	}
}

func (q *Query) apply(hits []Entity) {
	for _, e := range hits {
		for _, s := range q.remove {
			s.remove(e)
		}
	}
}

// Count consumes the sequence and returns the number of matches.
func (q *Query) Count() int {
	n := 0
	for range q.Iter() {
		n++
	}
	return n
}

// Collect returns the matches as a slice.
func (q *Query) Collect() []Entity {
	var out []Entity
	for e := range q.Iter() {
		out = append(out, e)
	}
	return out
}
