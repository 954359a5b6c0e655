package sim

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/core/ecs"
	"github.com/l1jgo/rewind/internal/core/event"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to build session: %v", err)
	}
	return s
}

func steps(t *testing.T, s *Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("Failed to step: %v", err)
		}
	}
}

// TestMovementRollbackScenario tests the diverging-future replay: move right
// for three ticks, rewind to tick 1, then move up instead.
func TestMovementRollbackScenario(t *testing.T) {
	for _, sequential := range []bool{false, true} {
		s := newSession(t, Config{Sequential: sequential})
		e := s.Spawn(component.Position{}, component.Velocity{X: 1}, false).Entity()

		steps(t, s, 3)
		if p, _ := s.Position(e); p != (component.Position{X: 3}) || s.Tick() != 3 {
			t.Fatalf("position at tick %d = %v, want {3 0}", s.Tick(), p)
		}

		if err := s.World().Rollback(1); err != nil {
			t.Fatalf("Failed to roll back: %v", err)
		}
		if p, _ := s.Position(e); p != (component.Position{X: 1}) {
			t.Fatalf("position after rollback = %v, want {1 0}", p)
		}

		s.Inputs().Record(
			Input{Tick: 2, Entity: e, Velocity: component.Velocity{Y: 1}},
			Input{Tick: 3, Entity: e, Velocity: component.Velocity{Y: 1}},
		)
		steps(t, s, 2)
		if p, _ := s.Position(e); p != (component.Position{X: 1, Y: 2}) {
			t.Fatalf("replayed position = %v, want {1 2}", p)
		}
		if o, _ := s.Odometer(e); o.Moves != 3 || o.Distance != 3 {
			t.Fatalf("odometer = %+v, want 3 moves over 3 units", o)
		}
		if err := s.World().Verify(); err != nil {
			t.Fatalf("Failed invariant check: %v", err)
		}
	}
}

func TestResimulate(t *testing.T) {
	s := newSession(t, Config{})
	e := s.Spawn(component.Position{}, component.Velocity{X: 1}, false).Entity()
	steps(t, s, 3)

	err := s.Resimulate(1,
		Input{Tick: 2, Entity: e, Velocity: component.Velocity{Y: 1}},
		Input{Tick: 3, Entity: e, Velocity: component.Velocity{Y: 1}},
	)
	if err != nil {
		t.Fatalf("Failed to resimulate: %v", err)
	}
	if p, _ := s.Position(e); p != (component.Position{X: 1, Y: 2}) || s.Tick() != 3 {
		t.Fatalf("position at tick %d = %v, want {1 2}", s.Tick(), p)
	}
}

func TestResimulateOutOfRange(t *testing.T) {
	s := newSession(t, Config{Retention: 4})
	s.Spawn(component.Position{}, component.Velocity{X: 1}, false)
	steps(t, s, 10)

	err := s.Resimulate(2)
	var rerr *ecs.RangeError
	if !errors.As(err, &rerr) {
		t.Fatalf("Resimulate(2) = %v, want RangeError", err)
	}
	if s.Tick() != 10 {
		t.Fatalf("failed resimulation moved the tick to %d", s.Tick())
	}
}

// TestReplayMatchesOriginal tests that rewinding and replaying the same
// inputs reproduces the original digest.
func TestReplayMatchesOriginal(t *testing.T) {
	s := newSession(t, Config{})
	rng := rand.New(rand.NewSource(7))
	var ids []ecs.EntityID
	for i := 0; i < 200; i++ {
		ids = append(ids, s.Spawn(component.Position{X: float64(i)}, component.Velocity{}, i%5 == 0))
	}
	for tick := ecs.Tick(1); tick <= 20; tick++ {
		for i := 0; i < 10; i++ {
			id := ids[rng.Intn(len(ids))]
			s.Inputs().Record(Input{Tick: tick, Entity: id.Entity(), Velocity: component.Velocity{X: rng.Float64(), Y: rng.Float64()}})
		}
	}
	steps(t, s, 20)
	want, err := s.Checksum()
	if err != nil {
		t.Fatalf("Failed to checksum: %v", err)
	}
	if err := s.Resimulate(5); err != nil {
		t.Fatalf("Failed to resimulate: %v", err)
	}
	got, _ := s.Checksum()
	if got != want {
		t.Fatalf("replayed digest %s, want %s", got, want)
	}
}

// TestRunMatchesSequential tests that parallel and sequential execution
// produce identical state every tick.
func TestRunMatchesSequential(t *testing.T) {
	par := newSession(t, Config{Workers: 4})
	seq := newSession(t, Config{Sequential: true})
	rng := rand.New(rand.NewSource(42))

	var pids, sids []ecs.EntityID
	for i := 0; i < 500; i++ {
		p := component.Position{X: rng.Float64() * 100, Y: rng.Float64() * 100}
		v := component.Velocity{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5}
		frozen := rng.Intn(10) == 0
		pids = append(pids, par.Spawn(p, v, frozen))
		sids = append(sids, seq.Spawn(p, v, frozen))
	}

	for tick := 1; tick <= 30; tick++ {
		if tick%7 == 0 {
			k := rng.Intn(len(pids))
			par.World().Despawn(pids[k])
			seq.World().Despawn(sids[k])
		}
		in := Input{Tick: ecs.Tick(tick), Entity: ecs.Entity(rng.Intn(500)), Velocity: component.Velocity{X: 1}}
		par.Inputs().Record(in)
		seq.Inputs().Record(in)

		steps(t, par, 1)
		steps(t, seq, 1)
		a, _ := par.Checksum()
		b, _ := seq.Checksum()
		if a != b {
			t.Fatalf("tick %d: parallel %s != sequential %s", tick, a, b)
		}
	}
}

func TestDestroyReleasesEntities(t *testing.T) {
	s := newSession(t, Config{})
	id := s.Spawn(component.Position{}, component.Velocity{X: 1}, true)
	s.World().Despawn(id)
	steps(t, s, 1)
	if s.World().Alive(id) {
		t.Fatalf("destroyed entity is still alive")
	}
	if _, ok := s.Position(id.Entity()); ok {
		t.Fatalf("destroyed entity kept its position")
	}
}

func TestSessionSchedule(t *testing.T) {
	s := newSession(t, Config{})
	want := [][]string{{"input"}, {"movement"}, {"odometer"}, {"destroy-entities"}}
	if got := s.Plan().Layers(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Layers = %v, want %v", got, want)
	}
}

// TestDespawnSurvivesResimulate tests that replaying over a despawn destroys
// the entity again and never hands its index to a new spawn.
func TestDespawnSurvivesResimulate(t *testing.T) {
	for _, target := range []ecs.Tick{1, 2, 3} {
		s := newSession(t, Config{})
		a := s.Spawn(component.Position{X: 5}, component.Velocity{}, true)
		b := s.Spawn(component.Position{}, component.Velocity{X: 1}, false)
		steps(t, s, 2)
		if !s.Despawn(a) {
			t.Fatalf("Despawn of a live entity returned false")
		}
		if s.Despawn(a) {
			t.Fatalf("second Despawn in the same tick returned true")
		}
		steps(t, s, 3)
		before, err := s.Checksum()
		if err != nil {
			t.Fatal(err)
		}

		if err := s.Resimulate(target); err != nil {
			t.Fatalf("Resimulate(%d): %v", target, err)
		}
		after, err := s.Checksum()
		if err != nil {
			t.Fatal(err)
		}
		if before != after {
			t.Fatalf("target %d: checksum %s after replay, want %s", target, after, before)
		}
		if _, ok := s.Position(a.Entity()); ok || s.World().Alive(a) {
			t.Fatalf("target %d: despawned entity came back", target)
		}
		if p, _ := s.Position(b.Entity()); p.X != 5 {
			t.Fatalf("target %d: survivor at %v, want x=5", target, p)
		}
		if c := s.Spawn(component.Position{}, component.Velocity{}, false); c.Entity() == a.Entity() {
			t.Fatalf("target %d: index %d reused while its history is retained", target, a.Entity())
		}
		if err := s.World().Verify(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSessionEvents(t *testing.T) {
	s := newSession(t, Config{})
	var despawned []ecs.EntityID
	var resims []Resimulated
	event.Subscribe(s.Events(), func(e Despawned) { despawned = append(despawned, e.ID) })
	event.Subscribe(s.Events(), func(e Resimulated) { resims = append(resims, e) })

	a := s.Spawn(component.Position{}, component.Velocity{X: 1}, false)
	b := s.Spawn(component.Position{}, component.Velocity{X: 1}, false)
	steps(t, s, 4)
	if err := s.Resimulate(2); err != nil {
		t.Fatal(err)
	}
	if !s.Despawn(b) {
		t.Fatalf("Despawn of a live entity returned false")
	}
	if len(despawned) != 0 || len(resims) != 0 {
		t.Fatalf("events delivered before the next step")
	}
	steps(t, s, 1)
	if len(despawned) != 1 || despawned[0] != b {
		t.Fatalf("despawned = %v, want [%v]", despawned, b)
	}
	if len(resims) != 1 || resims[0].From != 2 || resims[0].To != 4 {
		t.Fatalf("resimulated = %+v", resims)
	}
	if s.Despawn(b) {
		t.Fatalf("Despawn of a released entity returned true")
	}
	if !s.World().Alive(a) {
		t.Fatalf("untouched entity was released")
	}
}

func TestInputLogPrune(t *testing.T) {
	l := NewInputLog(nil)
	for tick := ecs.Tick(0); tick < 10; tick++ {
		l.Record(Input{Tick: tick, Entity: 1})
	}
	if n := l.Prune(6); n != 6 || l.Len() != 4 {
		t.Fatalf("Prune removed %d, %d left", n, l.Len())
	}
	if _, ok := l.Input(3, 1); ok {
		t.Fatalf("pruned input still visible")
	}
	if _, ok := l.Input(7, 1); !ok {
		t.Fatalf("retained input missing")
	}
}
