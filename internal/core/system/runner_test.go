package system

import (
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/l1jgo/rewind/internal/core/ecs"
	"go.uber.org/goleak"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type (
	compA struct{ N int }
	compB struct{ N int }
	compC struct{ N int }
)

type fakeSystem struct {
	desc Descriptor
	fn   func(ecs.Tick)
}

func (f *fakeSystem) Descriptor() Descriptor { return f.desc }

func (f *fakeSystem) Update(tick ecs.Tick) {
	if f.fn != nil {
		f.fn(tick)
	}
}

type fixture struct {
	world   *ecs.World
	a, b, c ecs.Mask
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	w := ecs.NewWorld(zaptest.NewLogger(t))
	return fixture{
		world: w,
		a:     Components(ecs.Register[compA](w)),
		b:     Components(ecs.Register[compB](w)),
		c:     Components(ecs.Register[compC](w)),
	}
}

func sys(d Descriptor) *fakeSystem { return &fakeSystem{desc: d} }

func (f fixture) build(t *testing.T, systems ...System) (*Runner, error) {
	t.Helper()
	return NewBuilder(f.world, zaptest.NewLogger(t)).Add(systems...).Build()
}

// TestLayering tests conflict edges, tie-breaks and explicit ordering.
func TestLayering(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		systems []System
		want    [][]string
	}{
		{
			name: "reader after writer",
			systems: []System{
				sys(Descriptor{Name: "write_a", Writes: f.a}),
				sys(Descriptor{Name: "read_a", Reads: f.a}),
				sys(Descriptor{Name: "write_b", Writes: f.b}),
			},
			want: [][]string{{"write_a", "write_b"}, {"read_a"}},
		},
		{
			name: "readers share a layer",
			systems: []System{
				sys(Descriptor{Name: "r1", Reads: f.a}),
				sys(Descriptor{Name: "r2", Reads: f.a.Or(f.b)}),
			},
			want: [][]string{{"r1", "r2"}},
		},
		{
			name: "writers in declaration order",
			systems: []System{
				sys(Descriptor{Name: "second", Writes: f.a, Reads: f.b}),
				sys(Descriptor{Name: "first", Writes: f.a}),
			},
			want: [][]string{{"second"}, {"first"}},
		},
		{
			name: "explicit before overrides declaration order",
			systems: []System{
				sys(Descriptor{Name: "x", Writes: f.a}),
				sys(Descriptor{Name: "y", Writes: f.a, Before: []string{"x"}}),
			},
			want: [][]string{{"y"}, {"x"}},
		},
		{
			name: "explicit after without conflict",
			systems: []System{
				sys(Descriptor{Name: "late", Reads: f.a, After: []string{"early"}}),
				sys(Descriptor{Name: "early", Reads: f.b}),
			},
			want: [][]string{{"early"}, {"late"}},
		},
		{
			name: "transitive order suppresses conflict edge",
			systems: []System{
				sys(Descriptor{Name: "p", Writes: f.a}),
				sys(Descriptor{Name: "q", Writes: f.b, After: []string{"p"}}),
				sys(Descriptor{Name: "r", Writes: f.a, After: []string{"q"}}),
			},
			want: [][]string{{"p"}, {"q"}, {"r"}},
		},
		{
			name: "pipeline groups",
			systems: []System{
				sys(Descriptor{Name: "reap", Parent: GroupDestroy}),
				sys(Descriptor{Name: "sweep", Parent: GroupCleanup}),
				sys(Descriptor{Name: "move", Parent: GroupSimulation, Writes: f.a}),
				sys(Descriptor{Name: "input", Parent: GroupInitialization, Writes: f.b}),
				sys(Descriptor{Name: "free", Reads: f.c}),
			},
			want: [][]string{{"input", "free"}, {"move"}, {"sweep"}, {"reap"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := f.build(t, tt.systems...)
			if err != nil {
				t.Fatalf("Failed to build: %v", err)
			}
			if got := r.Plan().Layers(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Layers = %v, want %v", got, tt.want)
			}
			if err := r.Plan().Verify(); err != nil {
				t.Fatalf("Failed to verify: %v", err)
			}
		})
	}
}

func TestNestedGroups(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(f.world, nil).
		AddGroup(Group{Name: "physics", Parent: GroupSimulation}).
		AddGroup(Group{Name: "ai", Parent: GroupSimulation, Before: []string{"physics"}}).
		Add(
			sys(Descriptor{Name: "integrate", Parent: "physics"}),
			sys(Descriptor{Name: "think", Parent: "ai"}),
			sys(Descriptor{Name: "spawn", Parent: GroupInitialization}),
		)
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build: %v", err)
	}
	want := [][]string{{"spawn"}, {"think"}, {"integrate"}}
	if got := r.Plan().Layers(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Layers = %v, want %v", got, want)
	}
}

// TestBuildErrors tests the configuration error classes.
func TestBuildErrors(t *testing.T) {
	f := newFixture(t)

	t.Run("cycle", func(t *testing.T) {
		_, err := f.build(t,
			sys(Descriptor{Name: "a", After: []string{"b"}}),
			sys(Descriptor{Name: "b", After: []string{"c"}}),
			sys(Descriptor{Name: "c", After: []string{"a"}}),
		)
		var cerr *CycleError
		if !errors.As(err, &cerr) {
			t.Fatalf("err = %v, want CycleError", err)
		}
		if len(cerr.Systems) != 4 || cerr.Systems[0] != cerr.Systems[3] {
			t.Fatalf("cycle = %v", cerr.Systems)
		}
	})

	t.Run("group cycle", func(t *testing.T) {
		_, err := NewBuilder(f.world, nil).
			AddGroup(Group{Name: "g1", Parent: "g2"}).
			AddGroup(Group{Name: "g2", Parent: "g1"}).
			Add(sys(Descriptor{Name: "s", Parent: "g1"})).
			Build()
		var cerr *CycleError
		if !errors.As(err, &cerr) {
			t.Fatalf("err = %v, want CycleError", err)
		}
	})

	t.Run("system shares a group name", func(t *testing.T) {
		_, err := f.build(t, sys(Descriptor{Name: GroupDestroy, Parent: GroupDestroy}))
		var derr *DuplicateError
		if !errors.As(err, &derr) || derr.Name != GroupDestroy {
			t.Fatalf("err = %v, want DuplicateError for %q", err, GroupDestroy)
		}
	})

	t.Run("all errors collected", func(t *testing.T) {
		var unknown ecs.Mask
		unknown.Set(100)
		_, err := f.build(t,
			sys(Descriptor{Name: "a", After: []string{"missing"}}),
			sys(Descriptor{Name: "a"}),
			sys(Descriptor{Name: "b", Parent: "a"}),
			sys(Descriptor{Name: "c", Writes: unknown}),
		)
		if err == nil {
			t.Fatalf("expected errors")
		}
		var (
			derr *DuplicateError
			rerr *ReferenceError
			uerr *UnregisteredComponentError
		)
		if !errors.As(err, &derr) || !errors.As(err, &rerr) || !errors.As(err, &uerr) {
			t.Fatalf("missing an error class in %v", err)
		}
		if uerr.Component != 100 || uerr.System != "c" {
			t.Fatalf("unregistered error = %+v", uerr)
		}
		if n := len(multierr.Errors(errors.Unwrap(err))); n != 4 {
			t.Fatalf("collected %d errors, want 4: %v", n, err)
		}
	})
}

// TestConflictSafety tests on random descriptor sets that systems sharing a
// written component never share a layer.
func TestConflictSafety(t *testing.T) {
	f := newFixture(t)
	sets := []ecs.Mask{{}, f.a, f.b, f.c, f.a.Or(f.b), f.b.Or(f.c)}

	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		var systems []System
		for i := 0; i < 12; i++ {
			d := Descriptor{
				Name:   string(rune('a' + i)),
				Reads:  sets[rng.Intn(len(sets))],
				Writes: sets[rng.Intn(len(sets))],
			}
			if i > 0 && rng.Intn(4) == 0 {
				d.After = []string{string(rune('a' + rng.Intn(i)))}
			}
			systems = append(systems, sys(d))
		}
		r, err := f.build(t, systems...)
		if err != nil {
			t.Fatalf("seed %d: Failed to build: %v", seed, err)
		}
		again, _ := f.build(t, systems...)
		if !reflect.DeepEqual(r.Plan().Layers(), again.Plan().Layers()) {
			t.Fatalf("seed %d: layering is not deterministic", seed)
		}
		for i := range systems {
			for j := i + 1; j < len(systems); j++ {
				di, dj := systems[i].Descriptor(), systems[j].Descriptor()
				if !conflicts(&di, &dj) {
					continue
				}
				li, _ := r.Plan().Layer(di.Name)
				lj, _ := r.Plan().Layer(dj.Name)
				if li == lj {
					t.Fatalf("seed %d: %s and %s conflict in layer %d", seed, di.Name, dj.Name, li)
				}
			}
		}
	}
}

func TestRunBarrier(t *testing.T) {
	f := newFixture(t)
	var (
		mu    sync.Mutex
		trace []string
		live  atomic.Int32
		peak  atomic.Int32
	)
	record := func(name string) func(ecs.Tick) {
		return func(ecs.Tick) {
			n := live.Add(1)
			for p := peak.Load(); n > p && !peak.CompareAndSwap(p, n); p = peak.Load() {
			}
			mu.Lock()
			trace = append(trace, name)
			mu.Unlock()
			live.Add(-1)
		}
	}
	systems := []System{
		&fakeSystem{desc: Descriptor{Name: "w1", Writes: f.a}, fn: record("w1")},
		&fakeSystem{desc: Descriptor{Name: "w2", Writes: f.b}, fn: record("w2")},
		&fakeSystem{desc: Descriptor{Name: "w3", Writes: f.c}, fn: record("w3")},
		&fakeSystem{desc: Descriptor{Name: "r", Reads: f.a.Or(f.b).Or(f.c)}, fn: record("r")},
	}
	r, err := f.build(t, systems...)
	if err != nil {
		t.Fatalf("Failed to build: %v", err)
	}
	for i := 0; i < 50; i++ {
		trace = trace[:0]
		if err := r.Run(); err != nil {
			t.Fatalf("Failed to run: %v", err)
		}
		if len(trace) != 4 || trace[3] != "r" {
			t.Fatalf("barrier violated: %v", trace)
		}
	}

	trace = trace[:0]
	if err := r.RunSequential(); err != nil {
		t.Fatalf("Failed to run sequentially: %v", err)
	}
	if want := []string{"w1", "w2", "w3", "r"}; !reflect.DeepEqual(trace, want) {
		t.Fatalf("sequential order = %v, want %v", trace, want)
	}
	if peak.Load() > 3 {
		t.Fatalf("more systems ran at once than a layer holds")
	}
}

func TestRunPanic(t *testing.T) {
	f := newFixture(t)
	r, err := f.build(t,
		&fakeSystem{desc: Descriptor{Name: "ok", Writes: f.b}},
		&fakeSystem{desc: Descriptor{Name: "boom", Writes: f.a}, fn: func(ecs.Tick) { panic("bad state") }},
	)
	if err != nil {
		t.Fatalf("Failed to build: %v", err)
	}
	for _, run := range []func() error{r.Run, r.RunSequential} {
		var perr *PanicError
		if err := run(); !errors.As(err, &perr) || perr.System != "boom" || perr.Value != "bad state" {
			t.Fatalf("err = %v, want PanicError from boom", err)
		}
	}
}
