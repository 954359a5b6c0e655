package ecs

// inner holds 128 slots. presence marks live values, changed marks slots
// written or removed this tick, absence marks slots removed this tick.
type inner[T any] struct {
	presence Mask
	changed  Mask
	absence  Mask
	data     [BlockSize]T
}

func (b *inner[T]) empty() bool {
	return b.presence.IsZero() && b.changed.IsZero() && b.absence.IsZero()
}

// middle and root share the same summary masks: occupancy (child exists),
// dirty (child carries changed or absence bits) and full (child is
// completely present).
type middle[T any] struct {
	occupancy Mask
	dirty     Mask
	full      Mask
	children  [BlockSize]*inner[T]
}

type root[T any] struct {
	occupancy Mask
	dirty     Mask
	full      Mask
	children  [BlockSize]*middle[T]
}

type maskKind uint8

const (
	kindPresence maskKind = iota
	kindChanged
	kindAbsence
	kindFull
)

func (m *middle[T]) summary(k maskKind) Mask {
	switch k {
	case kindPresence:
		return m.occupancy
	case kindChanged, kindAbsence:
		return m.dirty
	default:
		return m.full
	}
}

func (r *root[T]) summary(k maskKind) Mask {
	switch k {
	case kindPresence:
		return r.occupancy
	case kindChanged, kindAbsence:
		return r.dirty
	default:
		return r.full
	}
}

func (b *inner[T]) mask(k maskKind) Mask {
	switch k {
	case kindChanged:
		return b.changed
	case kindAbsence:
		return b.absence
	default:
		return b.presence
	}
}

func (r *root[T]) inner(ri, mi uint) *inner[T] {
	m := r.children[ri]
	if m == nil {
		return nil
	}
	return m.children[mi]
}

func (r *root[T]) ensure(ri, mi uint) *inner[T] {
	m := r.children[ri]
	if m == nil {
		m = new(middle[T])
		r.children[ri] = m
		r.occupancy.Set(ri)
	}
	b := m.children[mi]
	if b == nil {
		b = new(inner[T])
		m.children[mi] = b
		m.occupancy.Set(mi)
	}
	return b
}

// sync refreshes the summary bits covering inner block (ri, mi) and prunes
// it, and its middle, when nothing is left in them.
func (r *root[T]) sync(ri, mi uint) {
	m := r.children[ri]
	if m == nil {
		return
	}
	b := m.children[mi]
	if b != nil && b.empty() {
		m.children[mi] = nil
		b = nil
	}
	if b == nil {
		m.occupancy.Clear(mi)
		m.dirty.Clear(mi)
		m.full.Clear(mi)
	} else {
		m.occupancy.Set(mi)
		if b.changed.IsZero() && b.absence.IsZero() {
			m.dirty.Clear(mi)
		} else {
			m.dirty.Set(mi)
		}
		if b.presence == FullMask {
			m.full.Set(mi)
		} else {
			m.full.Clear(mi)
		}
	}

	if m.occupancy.IsZero() {
		r.children[ri] = nil
		r.occupancy.Clear(ri)
		r.dirty.Clear(ri)
		r.full.Clear(ri)
		return
	}
	r.occupancy.Set(ri)
	if m.dirty.IsZero() {
		r.dirty.Clear(ri)
	} else {
		r.dirty.Set(ri)
	}
	if m.full == FullMask {
		r.full.Set(ri)
	} else {
		r.full.Clear(ri)
	}
}
