package sim

import (
	"slices"

	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/core/ecs"
	"github.com/l1jgo/rewind/internal/system"
)

// Input is one velocity command for an entity at a tick.
type Input struct {
	Tick     ecs.Tick
	Entity   ecs.Entity
	Velocity component.Velocity
}

// InputLog keeps inputs and despawns per tick so a rolled-back range can
// be replayed, with corrections, exactly. Ticks without a recorded input
// fall through to the fallback source, if any.
type InputLog struct {
	byTick   map[ecs.Tick]map[ecs.Entity]component.Velocity
	despawns map[ecs.Tick][]ecs.EntityID
	fallback system.InputSource
}

func NewInputLog(fallback system.InputSource) *InputLog {
	return &InputLog{
		byTick:   make(map[ecs.Tick]map[ecs.Entity]component.Velocity, 64),
		despawns: make(map[ecs.Tick][]ecs.EntityID),
		fallback: fallback,
	}
}

// RecordDespawn schedules id for destruction at tick. It reports false
// when the despawn was already recorded.
func (l *InputLog) RecordDespawn(tick ecs.Tick, id ecs.EntityID) bool {
	if slices.Contains(l.despawns[tick], id) {
		return false
	}
	l.despawns[tick] = append(l.despawns[tick], id)
	return true
}

// Despawns returns the handles scheduled for destruction at tick, in
// recording order.
func (l *InputLog) Despawns(tick ecs.Tick) []ecs.EntityID { return l.despawns[tick] }

// Record stores inputs, replacing earlier ones for the same tick and entity.
func (l *InputLog) Record(in ...Input) {
	for _, x := range in {
		m := l.byTick[x.Tick]
		if m == nil {
			m = make(map[ecs.Entity]component.Velocity, 4)
			l.byTick[x.Tick] = m
		}
		m[x.Entity] = x.Velocity
	}
}

func (l *InputLog) Input(tick ecs.Tick, e ecs.Entity) (component.Velocity, bool) {
	if v, ok := l.byTick[tick][e]; ok {
		return v, true
	}
	if l.fallback != nil {
		return l.fallback.Input(tick, e)
	}
	return component.Velocity{}, false
}

// Prune forgets every tick before oldest.
func (l *InputLog) Prune(oldest ecs.Tick) int {
	n := 0
	for t := range l.byTick {
		if t.Before(oldest) {
			delete(l.byTick, t)
			n++
		}
	}
	for t := range l.despawns {
		if t.Before(oldest) {
			delete(l.despawns, t)
		}
	}
	return n
}

// Len returns the number of ticks with recorded inputs.
func (l *InputLog) Len() int { return len(l.byTick) }
