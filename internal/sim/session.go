package sim

import (
	"fmt"

	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/core/ecs"
	"github.com/l1jgo/rewind/internal/core/event"
	coresys "github.com/l1jgo/rewind/internal/core/system"
	"github.com/l1jgo/rewind/internal/system"
	"go.uber.org/zap"
)

// Config selects how a Session is built.
type Config struct {
	Retention  int
	Workers    int
	Sequential bool
	Fallback   system.InputSource
}

// Resimulated is emitted after a successful Resimulate.
type Resimulated struct {
	From, To    ecs.Tick
	Corrections int
}

// Despawned is emitted when Despawn marks an entity for destruction.
type Despawned struct {
	ID   ecs.EntityID
	Tick ecs.Tick
}

// Session drives one world: each Step advances the tick and runs the
// schedule, and Resimulate rewinds and replays with corrected inputs.
type Session struct {
	log        *zap.Logger
	world      *ecs.World
	runner     *coresys.Runner
	inputs     *InputLog
	events     *event.Bus
	sequential bool

	pos *ecs.Storage[component.Position]
	vel *ecs.Storage[component.Velocity]
	frz *ecs.Storage[component.Frozen]
	odo *ecs.Storage[component.Odometer]
}

// New registers the demo components, builds the schedule and returns a
// session at tick 0.
func New(cfg Config, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = ecs.DefaultRetention
	}
	w := ecs.NewWorld(log.Named("world"), ecs.WithRetention(retention))
	s := &Session{
		log:        log,
		world:      w,
		inputs:     NewInputLog(cfg.Fallback),
		events:     event.NewBus(),
		sequential: cfg.Sequential,
		pos:        ecs.Register[component.Position](w),
		vel:        ecs.Register[component.Velocity](w),
		frz:        ecs.Register[component.Frozen](w),
		odo:        ecs.Register[component.Odometer](w),
	}

	runner, err := coresys.NewBuilder(w, log.Named("schedule")).
		Workers(cfg.Workers).
		Add(
			system.NewInputSystem(w, s.inputs),
			system.NewMovementSystem(w),
			system.NewOdometerSystem(w),
			system.NewDestroySystem(w, log.Named("destroy")),
		).
		Build()
	if err != nil {
		return nil, err
	}
	s.runner = runner
	return s, nil
}

func (s *Session) World() *ecs.World { return s.world }
func (s *Session) Plan() *coresys.Plan { return s.runner.Plan() }
func (s *Session) Inputs() *InputLog { return s.inputs }
func (s *Session) Events() *event.Bus { return s.events }
func (s *Session) Tick() ecs.Tick { return s.world.Tick() }
func (s *Session) Checksum() (ecs.Digest, error) { return s.world.Checksum() }

// Spawn creates a moving entity with an odometer.
func (s *Session) Spawn(p component.Position, v component.Velocity, frozen bool) ecs.EntityID {
	id := s.world.Spawn()
	e := id.Entity()
	s.pos.Set(e, p)
	s.vel.Set(e, v)
	s.odo.Set(e, component.Odometer{})
	if frozen {
		s.frz.Set(e, component.Frozen{})
	}
	return id
}

// Despawn schedules the entity for destruction in the next step. The
// despawn is part of the input history, so a replay over that step
// destroys the entity again.
func (s *Session) Despawn(id ecs.EntityID) bool {
	if !s.world.Alive(id) || !s.inputs.RecordDespawn(s.world.Tick().Next(), id) {
		return false
	}
	event.Emit(s.events, Despawned{ID: id, Tick: s.world.Tick()})
	return true
}

// Position returns the entity's position.
func (s *Session) Position(e ecs.Entity) (component.Position, bool) { return s.pos.Get(e) }

// Odometer returns the entity's odometer.
func (s *Session) Odometer(e ecs.Entity) (component.Odometer, bool) { return s.odo.Get(e) }

// Step delivers queued events, advances the world one tick and runs the
// schedule for it.
func (s *Session) Step() error {
	s.events.Dispatch()
	if err := s.world.Advance(); err != nil {
		return err
	}
	tick := s.world.Tick()
	for _, id := range s.inputs.Despawns(tick) {
		s.world.Despawn(id)
	}
	run := s.runner.Run
	if s.sequential {
		run = s.runner.RunSequential
	}
	if err := run(); err != nil {
		return fmt.Errorf("step %d: %w", tick, err)
	}
	s.inputs.Prune(tick - ecs.Tick(s.world.Retention()))
	return nil
}

// Resimulate rolls back to target, records the corrections and replays up
// to the tick the session was at. Corrections only take effect for ticks
// after target.
func (s *Session) Resimulate(target ecs.Tick, corrections ...Input) error {
	current := s.world.Tick()
	if err := s.world.Rollback(target); err != nil {
		return fmt.Errorf("resimulate from tick %d: %w", target, err)
	}
	s.inputs.Record(corrections...)
	for s.world.Tick() != current {
		if err := s.Step(); err != nil {
			return fmt.Errorf("resimulate from tick %d: %w", target, err)
		}
	}
	event.Emit(s.events, Resimulated{From: target, To: current, Corrections: len(corrections)})
	s.log.Debug("resimulated",
		zap.Uint32("from", uint32(target)),
		zap.Uint32("to", uint32(current)),
		zap.Int("corrections", len(corrections)))
	return nil
}
