package system

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/l1jgo/rewind/internal/core/ecs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Builder collects groups and systems for one world configuration.
type Builder struct {
	world   *ecs.World
	log     *zap.Logger
	groups  []Group
	systems []System
	workers int
}

// NewBuilder starts a schedule with the default groups registered.
func NewBuilder(world *ecs.World, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{
		world:   world,
		log:     log,
		groups:  DefaultGroups(),
		systems: make([]System, 0, 16),
		workers: runtime.GOMAXPROCS(0),
	}
}

func (b *Builder) AddGroup(g Group) *Builder {
	b.groups = append(b.groups, g)
	return b
}

// Add registers systems. Registration order is the declaration order used
// for tie-breaks and sequential execution.
func (b *Builder) Add(s ...System) *Builder {
	b.systems = append(b.systems, s...)
	return b
}

// Workers bounds how many systems of one layer run at once. n <= 0 keeps
// GOMAXPROCS.
func (b *Builder) Workers(n int) *Builder {
	if n > 0 {
		b.workers = n
	}
	return b
}

// Build validates every descriptor and computes the layering. All
// configuration errors found are returned together.
func (b *Builder) Build() (*Runner, error) {
	descs := make([]Descriptor, len(b.systems))
	for i, s := range b.systems {
		descs[i] = s.Descriptor()
	}
	plan, err := newPlan(b.groups, descs, b.world.Registry().Len())
	if err != nil {
		return nil, fmt.Errorf("build schedule: %w", err)
	}
	if err := plan.Verify(); err != nil {
		return nil, fmt.Errorf("build schedule: %w", err)
	}
	b.log.Info("schedule built",
		zap.Int("systems", len(b.systems)),
		zap.Int("layers", plan.Len()),
		zap.Int("workers", b.workers))
	for l, names := range plan.Layers() {
		b.log.Debug("schedule layer", zap.Int("layer", l), zap.Strings("systems", names))
	}
	return &Runner{
		world:   b.world,
		log:     b.log,
		systems: b.systems,
		plan:    plan,
		workers: b.workers,
	}, nil
}

// Runner executes a built plan against its world.
type Runner struct {
	world   *ecs.World
	log     *zap.Logger
	systems []System
	plan    *Plan
	workers int
}

func (r *Runner) Plan() *Plan { return r.plan }

// Run executes the plan once. Systems of a layer run concurrently on up to
// Workers goroutines and every layer finishes before the next starts. A
// panicking system fails the step with *PanicError.
func (r *Runner) Run() error {
	tick := r.world.Tick()
	for l, layer := range r.plan.layers {
		if len(layer) == 1 || r.workers == 1 {
			for _, i := range layer {
				if err := r.exec(i, tick); err != nil {
					return fmt.Errorf("tick %d layer %d: %w", tick, l, err)
				}
			}
			continue
		}
		var g errgroup.Group
		g.SetLimit(r.workers)
		for _, i := range layer {
			g.Go(func() error { return r.exec(i, tick) })
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("tick %d layer %d: %w", tick, l, err)
		}
	}
	return nil
}

// RunSequential executes the same layering one system at a time in
// declaration order on the calling goroutine.
func (r *Runner) RunSequential() error {
	tick := r.world.Tick()
	for l, layer := range r.plan.layers {
		for _, i := range layer {
			if err := r.exec(i, tick); err != nil {
				return fmt.Errorf("tick %d layer %d: %w", tick, l, err)
			}
		}
	}
	return nil
}

func (r *Runner) exec(i int, tick ecs.Tick) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{System: r.plan.names[i], Value: v, Stack: debug.Stack()}
			r.log.Error("system panicked",
				zap.String("system", r.plan.names[i]),
				zap.Uint32("tick", uint32(tick)),
				zap.Any("value", v))
		}
	}()
	r.systems[i].Update(tick)
	return nil
}
