package system

import (
	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/core/ecs"
	coresys "github.com/l1jgo/rewind/internal/core/system"
)

// InputSource supplies the velocity an entity should take at a tick.
// Sources must be deterministic: replaying a tick asks the same question.
type InputSource interface {
	Input(tick ecs.Tick, e ecs.Entity) (component.Velocity, bool)
}

// InputSystem applies per-tick inputs to every positioned entity.
// Group initialization.
type InputSystem struct {
	source InputSource
	pos    ecs.View[component.Position]
	vel    ecs.ViewMut[component.Velocity]
	query  *ecs.Query
}

func NewInputSystem(w *ecs.World, source InputSource) *InputSystem {
	s := &InputSystem{
		source: source,
		pos:    ecs.Read[component.Position](w),
		vel:    ecs.Write[component.Velocity](w),
	}
	s.query = ecs.NewQuery().All(s.pos)
	return s
}

func (s *InputSystem) Descriptor() coresys.Descriptor {
	return coresys.Descriptor{
		Name:   "input",
		Reads:  coresys.Components(s.pos),
		Writes: coresys.Components(s.vel),
		Parent: coresys.GroupInitialization,
	}
}

func (s *InputSystem) Update(tick ecs.Tick) {
	for e := range s.query.Iter() {
		if v, ok := s.source.Input(tick, e); ok {
			s.vel.Set(e, v)
		}
	}
}
