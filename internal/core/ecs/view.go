package ecs

import "iter"

// View is a read-only accessor over one storage at its current tick.
type View[T any] struct {
	s *Storage[T]
}

// ViewMut adds mutation to View. The scheduler guarantees that no other
// system holds a View of the same type in the same wavefront.
type ViewMut[T any] struct {
	View[T]
}

// Read returns a read-only view over T.
func Read[T any](w *World) View[T] {
	return View[T]{s: StorageOf[T](w)}
}

// Write returns a read-write view over T.
func Write[T any](w *World) ViewMut[T] {
	return ViewMut[T]{View[T]{s: StorageOf[T](w)}}
}

func (v View[T]) ID() ComponentID { return v.s.id }
func (v View[T]) Len() int { return v.s.count }
func (v View[T]) Has(e Entity) bool { return v.s.Has(e) }
func (v View[T]) Get(e Entity) (T, bool) { return v.s.Get(e) }
func (v View[T]) Changed(e Entity) bool { return v.s.Changed(e) }
func (v View[T]) Removed(e Entity) bool { return v.s.Removed(e) }
func (v View[T]) storage() storage { return v.s }

// Each yields (entity, value) for every entity matched by q that carries a
// value in this view.
func (v View[T]) Each(q *Query) iter.Seq2[Entity, T] {
	return func(yield func(Entity, T) bool) {
		for e := range q.Iter() {
			val, ok := v.s.Get(e)
			if !ok {
				continue
			}
			if !yield(e, val) {
				return
			}
		}
	}
}

func (v ViewMut[T]) Set(e Entity, val T) { v.s.Set(e, val) }
func (v ViewMut[T]) GetMut(e Entity) (*T, bool) { return v.s.GetMut(e) }
func (v ViewMut[T]) Remove(e Entity) bool { return v.s.Remove(e) }

// EachMut is Each with a pointer to the stored value. Every yielded value
// is marked changed.
func (v ViewMut[T]) EachMut(q *Query) iter.Seq2[Entity, *T] {
	return func(yield func(Entity, *T) bool) {
		for e := range q.Iter() {
			p, ok := v.s.GetMut(e)
			if !ok {
				continue
			}
			if !yield(e, p) {
				return
			}
		}
	}
}
