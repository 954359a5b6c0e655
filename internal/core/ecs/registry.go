package ecs

import (
	"fmt"
	"io"
	"reflect"
)

// ComponentID identifies a registered component type within one world.
type ComponentID uint8

// MaxComponentTypes bounds registrations so a component set fits a Mask.
const MaxComponentTypes = BlockSize

// storage is the type-erased face of Storage[T] used by the world, queries
// and the checksum.
type storage interface {
	ID() ComponentID
	Name() string
	Temporary() bool
	Len() int
	Tick() Tick
	SetTick(Tick) error
	Rollback(Tick) error
	History() (oldest, current Tick)

	checkRollback(Tick) error
	remove(Entity) bool
	rootMask(maskKind) Mask
	middleMask(ri uint, k maskKind) Mask
	innerMask(ri, mi uint, k maskKind) Mask
	hash(w io.Writer) error
	verify() error
}

// Source is anything backed by a storage: a Storage, View or ViewMut.
// Queries and scheduler descriptors accept Sources.
type Source interface {
	storage() storage
}

// ComponentOption customizes a registration.
type ComponentOption func(*componentOptions)

type componentOptions struct {
	temporary bool
}

// Temporary excludes the component from rollback history and checksums.
// Rollback clears a temporary storage.
func Temporary() ComponentOption {
	return func(o *componentOptions) { o.temporary = true }
}

// Registry tracks every component storage of a world in registration order.
type Registry struct {
	byType map[reflect.Type]storage
	stores []storage
}

func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]storage, 16),
		stores: make([]storage, 0, 16),
	}
}

// Len returns the number of registered component types.
func (r *Registry) Len() int { return len(r.stores) }

// Names returns the registered component names in id order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.stores))
	for i, s := range r.stores {
		names[i] = s.Name()
	}
	return names
}

// Name returns the name of the component with the given id.
func (r *Registry) Name(id ComponentID) string {
	if int(id) < len(r.stores) {
		return r.stores[id].Name()
	}
	return fmt.Sprintf("component#%d", id)
}

// All returns the mask of every registered component id.
func (r *Registry) All() Mask {
	var m Mask
	for i := range r.stores {
		m.Set(uint(i))
	}
	return m
}

// RemoveAll clears e from every registered storage.
func (r *Registry) RemoveAll(e Entity) int {
	n := 0
	for _, s := range r.stores {
		if s.remove(e) {
			n++
		}
	}
	return n
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

func register[T any](r *Registry, tick Tick, retention int, opts []ComponentOption) *Storage[T] {
	rt := reflect.TypeFor[T]()
	if s, ok := r.byType[rt]; ok {
		return s.(*Storage[T])
	}
	if len(r.stores) >= MaxComponentTypes {
		panic(fmt.Sprintf("ecs: more than %d component types", MaxComponentTypes))
	}
	var o componentOptions
	for _, opt := range opts {
		opt(&o)
	}
	s := newStorage[T](ComponentID(len(r.stores)), rt.String(), tick, retention, o.temporary)
	r.byType[rt] = s
	r.stores = append(r.stores, s)
	return s
}

func lookup[T any](r *Registry) *Storage[T] {
	s, ok := r.byType[reflect.TypeFor[T]()]
	if !ok {
		panic(&UnregisteredError{Type: typeName[T]()})
	}
	return s.(*Storage[T])
}
