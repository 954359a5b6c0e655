package ecs

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultRetention is the number of committed ticks each storage keeps when
// no retention is configured.
const DefaultRetention = 128

// Destroyed tags entities queued for removal and carries the handle to
// release. It is temporary: the destroy system clears it within the tick
// it was set.
type Destroyed struct {
	ID EntityID
}

// retired is a handle cleared at tick but not yet returned to the
// allocator, because a rollback to before tick would bring it back.
type retired struct {
	tick Tick
	id   EntityID
}

// World is the top-level container. It owns the component registry, the
// entity allocator and the tick cursor shared by every storage.
type World struct {
	log       *zap.Logger
	registry  *Registry
	alloc     Allocator
	tick      Tick
	retention int
	destroyed *Storage[Destroyed]

	retiring []retired
	retired  map[EntityID]struct{}
}

// Option configures a World.
type Option func(*World)

// WithRetention bounds the rollback history of every storage to n ticks.
func WithRetention(n int) Option {
	return func(w *World) { w.retention = n }
}

// WithAllocator replaces the default EntityPool.
func WithAllocator(a Allocator) Option {
	return func(w *World) { w.alloc = a }
}

// WithTick starts the world at the given tick.
func WithTick(t Tick) Option {
	return func(w *World) { w.tick = t }
}

func NewWorld(log *zap.Logger, opts ...Option) *World {
	if log == nil {
		log = zap.NewNop()
	}
	w := &World{
		log:       log,
		registry:  NewRegistry(),
		retention: DefaultRetention,
		retired:   make(map[EntityID]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.alloc == nil {
		w.alloc = NewEntityPool()
	}
	w.destroyed = Register[Destroyed](w, Temporary())
	return w
}

// Register adds a storage for T, or returns the existing one.
func Register[T any](w *World, opts ...ComponentOption) *Storage[T] {
	n := w.registry.Len()
	s := register[T](w.registry, w.tick, w.retention, opts)
	if w.registry.Len() > n {
		w.log.Debug("component registered",
			zap.String("component", s.Name()),
			zap.Uint8("id", uint8(s.ID())),
			zap.Bool("temporary", s.Temporary()))
	}
	return s
}

// StorageOf returns the storage for T. It panics with *UnregisteredError
// when T was never registered.
func StorageOf[T any](w *World) *Storage[T] {
	return lookup[T](w.registry)
}

func (w *World) Registry() *Registry { return w.registry }
func (w *World) Tick() Tick { return w.tick }
func (w *World) Retention() int { return w.retention }

// Spawn allocates a new entity handle.
func (w *World) Spawn() EntityID {
	return w.alloc.Create()
}

// Alive reports whether id is allocated and not released.
func (w *World) Alive(id EntityID) bool {
	if _, ok := w.retired[id]; ok {
		return false
	}
	return w.alloc.Alive(id)
}

// Despawn tags the entity Destroyed; the destroy system clears it.
func (w *World) Despawn(id EntityID) bool {
	if !w.Alive(id) {
		return false
	}
	w.destroyed.Set(id.Entity(), Destroyed{ID: id})
	return true
}

// Release clears e from every storage. The handle goes back to the
// allocator only once no rollback can reach the current tick, so its index
// is never reused while history still holds its values. With unbounded
// retention handles are never reused.
func (w *World) Release(id EntityID) int {
	if !w.Alive(id) {
		return 0
	}
	n := w.registry.RemoveAll(id.Entity())
	w.retiring = append(w.retiring, retired{tick: w.tick, id: id})
	w.retired[id] = struct{}{}
	return n
}

// Retiring returns the number of released handles still held back from the
// allocator.
func (w *World) Retiring() int { return len(w.retiring) }

// recycle hands back every retired handle released before the oldest tick
// a rollback can still reach.
func (w *World) recycle() {
	if w.retention <= 0 {
		return
	}
	n := 0
	for ; n < len(w.retiring) && int(w.tick.Diff(w.retiring[n].tick)) > w.retention; n++ {
		r := w.retiring[n]
		delete(w.retired, r.id)
		w.alloc.Release(r.id)
	}
	if n > 0 {
		w.retiring = append(w.retiring[:0], w.retiring[n:]...)
		w.log.Debug("entity handles recycled", zap.Int("count", n))
	}
}

// unretire cancels the releases a rollback to target undoes.
func (w *World) unretire(target Tick) {
	n := len(w.retiring)
	for n > 0 && w.retiring[n-1].tick.After(target) {
		n--
		delete(w.retired, w.retiring[n].id)
	}
	w.retiring = w.retiring[:n]
}

// Advance commits the current tick in every storage and moves to the next.
func (w *World) Advance() error {
	next := w.tick.Next()
	for _, s := range w.registry.stores {
		if err := s.SetTick(next); err != nil {
			return fmt.Errorf("advance to tick %d: %w", next, err)
		}
	}
	w.tick = next
	w.recycle()
	return nil
}

// Rollback returns every storage to the end of tick target. All storages
// are validated first so a range error leaves the world untouched.
func (w *World) Rollback(target Tick) error {
	if target == w.tick {
		return nil
	}
	var errs error
	for _, s := range w.registry.stores {
		errs = multierr.Append(errs, s.checkRollback(target))
	}
	if errs != nil {
		return fmt.Errorf("rollback to tick %d: %w", target, errs)
	}
	for _, s := range w.registry.stores {
		if err := s.Rollback(target); err != nil {
			return fmt.Errorf("rollback to tick %d: %w", target, err)
		}
	}
	w.unretire(target)
	w.log.Debug("world rolled back", zap.Uint32("from", uint32(w.tick)), zap.Uint32("to", uint32(target)))
	w.tick = target
	return nil
}

// CanRollback reports whether Rollback(target) would succeed.
func (w *World) CanRollback(target Tick) bool {
	for _, s := range w.registry.stores {
		if s.checkRollback(target) != nil {
			return false
		}
	}
	return true
}
