package system

import (
	"math"

	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/core/ecs"
	coresys "github.com/l1jgo/rewind/internal/core/system"
)

// OdometerSystem adds the length of this tick's velocity to the odometer
// of every entity whose position changed. Group simulation; it conflicts
// with MovementSystem on Position and therefore runs after it.
type OdometerSystem struct {
	pos   ecs.View[component.Position]
	vel   ecs.View[component.Velocity]
	odo   ecs.ViewMut[component.Odometer]
	query *ecs.Query
}

func NewOdometerSystem(w *ecs.World) *OdometerSystem {
	s := &OdometerSystem{
		pos: ecs.Read[component.Position](w),
		vel: ecs.Read[component.Velocity](w),
		odo: ecs.Write[component.Odometer](w),
	}
	s.query = ecs.NewQuery().All(s.pos, s.vel, s.odo).Changed(s.pos)
	return s
}

func (s *OdometerSystem) Descriptor() coresys.Descriptor {
	return coresys.Descriptor{
		Name:   "odometer",
		Reads:  coresys.Components(s.pos, s.vel),
		Writes: coresys.Components(s.odo),
		Parent: coresys.GroupSimulation,
	}
}

func (s *OdometerSystem) Update(_ ecs.Tick) {
	for e, o := range s.odo.EachMut(s.query) {
		v, _ := s.vel.Get(e)
		o.Distance += math.Hypot(v.X, v.Y)
		o.Moves++
	}
}
