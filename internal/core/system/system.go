package system

import "github.com/l1jgo/rewind/internal/core/ecs"

// Default pipeline groups, chained in this order.
const (
	GroupInitialization = "initialization"
	GroupSimulation     = "simulation"
	GroupCleanup        = "cleanup"
	GroupDestroy        = "destroy"
)

// Descriptor declares what a system touches and where it sits in the
// schedule. Writes include components the system removes. Before and After
// name systems or groups; Parent names a group.
type Descriptor struct {
	Name   string
	Reads  ecs.Mask
	Writes ecs.Mask
	Before []string
	After  []string
	Parent string
}

// System is the interface every scheduled system implements. Update runs
// once per step with the world's current tick and must not block.
type System interface {
	Descriptor() Descriptor
	Update(tick ecs.Tick)
}

// Group is a named pipeline stage. Its ordering constraints apply to every
// system nested inside it.
type Group struct {
	Name   string
	Before []string
	After  []string
	Parent string
}

// DefaultGroups returns initialization, simulation, cleanup and destroy,
// each ordered after the previous one.
func DefaultGroups() []Group {
	return []Group{
		{Name: GroupInitialization},
		{Name: GroupSimulation, After: []string{GroupInitialization}},
		{Name: GroupCleanup, After: []string{GroupSimulation}},
		{Name: GroupDestroy, After: []string{GroupCleanup}},
	}
}

type component interface {
	ID() ecs.ComponentID
}

// Components builds an access set from views or storages.
func Components(c ...component) ecs.Mask {
	var m ecs.Mask
	for _, x := range c {
		m.Set(uint(x.ID()))
	}
	return m
}

func conflicts(a, b *Descriptor) bool {
	return a.Writes.Intersects(b.Writes) ||
		a.Writes.Intersects(b.Reads) ||
		a.Reads.Intersects(b.Writes)
}
