package system

import (
	"github.com/l1jgo/rewind/internal/core/ecs"
	coresys "github.com/l1jgo/rewind/internal/core/system"
	"go.uber.org/zap"
)

// DestroySystem clears every component of entities tagged Destroyed and
// hands their handles back to the allocator. Group destroy.
type DestroySystem struct {
	world     *ecs.World
	destroyed ecs.View[ecs.Destroyed]
	query     *ecs.Query
	pending   []ecs.EntityID
	log       *zap.Logger
}

func NewDestroySystem(w *ecs.World, log *zap.Logger) *DestroySystem {
	if log == nil {
		log = zap.NewNop()
	}
	s := &DestroySystem{
		world:     w,
		destroyed: ecs.Read[ecs.Destroyed](w),
		log:       log,
	}
	s.query = ecs.NewQuery().All(s.destroyed)
	return s
}

// Descriptor claims every registered component, so it must be built after
// all registrations.
func (s *DestroySystem) Descriptor() coresys.Descriptor {
	return coresys.Descriptor{
		Name:   "destroy-entities",
		Writes: s.world.Registry().All(),
		Parent: coresys.GroupDestroy,
	}
}

func (s *DestroySystem) Update(tick ecs.Tick) {
	s.pending = s.pending[:0]
	for _, d := range s.destroyed.Each(s.query) {
		s.pending = append(s.pending, d.ID)
	}
	for _, id := range s.pending {
		s.world.Release(id)
	}
	if len(s.pending) > 0 {
		s.log.Debug("entities destroyed",
			zap.Uint32("tick", uint32(tick)),
			zap.Int("count", len(s.pending)))
	}
}
