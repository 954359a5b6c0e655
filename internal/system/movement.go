package system

import (
	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/core/ecs"
	coresys "github.com/l1jgo/rewind/internal/core/system"
)

// MovementSystem integrates Velocity into Position for every entity that
// is not Frozen. Group simulation.
type MovementSystem struct {
	pos    ecs.ViewMut[component.Position]
	vel    ecs.View[component.Velocity]
	frozen ecs.View[component.Frozen]
	query  *ecs.Query
}

func NewMovementSystem(w *ecs.World) *MovementSystem {
	s := &MovementSystem{
		pos:    ecs.Write[component.Position](w),
		vel:    ecs.Read[component.Velocity](w),
		frozen: ecs.Read[component.Frozen](w),
	}
	s.query = ecs.NewQuery().All(s.pos, s.vel).None(s.frozen)
	return s
}

func (s *MovementSystem) Descriptor() coresys.Descriptor {
	return coresys.Descriptor{
		Name:   "movement",
		Reads:  coresys.Components(s.vel, s.frozen),
		Writes: coresys.Components(s.pos),
		Parent: coresys.GroupSimulation,
	}
}

func (s *MovementSystem) Update(_ ecs.Tick) {
	for e, p := range s.pos.EachMut(s.query) {
		v, _ := s.vel.Get(e)
		p.X += v.X
		p.Y += v.Y
	}
}
