package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/core/ecs"
	"go.uber.org/zap/zaptest"
)

const script = `
function input(tick, entity)
  if entity ~= 1 then
    return nil
  end
  if tick % 2 == 0 then
    return 1, 0
  end
  return 0, tick
end
`

func TestEngineInput(t *testing.T) {
	e, err := NewEngineFromString(script, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to load script: %v", err)
	}
	defer e.Close()

	tests := []struct {
		name   string
		tick   uint32
		entity uint32
		want   component.Velocity
		ok     bool
	}{
		{"even tick", 4, 1, component.Velocity{X: 1}, true},
		{"odd tick", 3, 1, component.Velocity{Y: 3}, true},
		{"other entity", 4, 2, component.Velocity{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := e.Input(ecs.Tick(tt.tick), ecs.Entity(tt.entity))
			if ok != tt.ok || v != tt.want {
				t.Fatalf("Input = %v, %v; want %v, %v", v, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEngineErrors(t *testing.T) {
	if _, err := NewEngineFromString("x = 1", nil); err == nil {
		t.Fatalf("expected an error for a script without input()")
	}
	if _, err := NewEngineFromString("function input(", nil); err == nil {
		t.Fatalf("expected a syntax error")
	}

	e, err := NewEngineFromString(`function input(t, e) return "left" end`, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to load script: %v", err)
	}
	defer e.Close()
	if _, _, err := e.Call(1, 1); err == nil {
		t.Fatalf("expected an error for a non-numeric result")
	}
	if _, ok := e.Input(1, 1); ok {
		t.Fatalf("Input reported a value for a failing script")
	}

	e2, err := NewEngineFromString(`function input(t, e) os.exit(1) end`, nil)
	if err != nil {
		t.Fatalf("Failed to load script: %v", err)
	}
	defer e2.Close()
	if _, _, err := e2.Call(1, 1); err == nil {
		t.Fatalf("os library should not be available")
	}
}

func TestNewEngineFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a_helpers.lua"), []byte("function speed() return 2 end"), 0o644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b_input.lua"), []byte("function input(t, e) return speed(), 0 end"), 0o644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to load scripts: %v", err)
	}
	defer e.Close()
	if v, ok := e.Input(0, 0); !ok || v.X != 2 {
		t.Fatalf("Input = %v, %v", v, ok)
	}
	if _, err := NewEngine(filepath.Join(dir, "missing.lua"), nil); err == nil {
		t.Fatalf("expected an error for a missing path")
	}
}
