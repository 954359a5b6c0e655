package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const inputFunc = "input"

// Engine wraps a gopher-lua VM that computes per-tick inputs. Only the
// base, table, string and math libraries are opened; scripts must stay
// deterministic, so math.random is off limits.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads the script at path, or every
// .lua file in it when path is a directory.
func NewEngine(path string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	info, err := os.Stat(path)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	if info.IsDir() {
		err = e.loadDir(path)
	} else {
		err = e.vm.DoFile(path)
	}
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("load scripts %s: %w", path, err)
	}
	if err := e.requireInput(); err != nil {
		e.Close()
		return nil, err
	}
	e.log.Debug("loaded lua input script", zap.String("path", path))
	return e, nil
}

// NewEngineFromString loads a script from source.
func NewEngineFromString(src string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	if err := e.vm.DoString(src); err != nil {
		e.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	if err := e.requireInput(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func newEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		vm.Push(vm.NewFunction(lib.fn))
		vm.Push(lua.LString(lib.name))
		vm.Call(1, 0)
	}
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	return &Engine{vm: vm, log: log}
}

func (e *Engine) requireInput() error {
	if e.vm.GetGlobal(inputFunc).Type() != lua.LTFunction {
		return fmt.Errorf("lua script does not define function %s(tick, entity)", inputFunc)
	}
	return nil
}

// loadDir loads all .lua files in a directory in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Call runs input(tick, entity). A nil first result means no input.
func (e *Engine) Call(tick ecs.Tick, ent ecs.Entity) (component.Velocity, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.vm.CallByParam(lua.P{
		Fn:      e.vm.GetGlobal(inputFunc),
		NRet:    2,
		Protect: true,
	}, lua.LNumber(tick), lua.LNumber(ent)); err != nil {
		return component.Velocity{}, false, fmt.Errorf("lua %s(%d, %d): %w", inputFunc, tick, ent, err)
	}
	vy := e.vm.Get(-1)
	vx := e.vm.Get(-2)
	e.vm.Pop(2)

	if vx == lua.LNil {
		return component.Velocity{}, false, nil
	}
	x, ok := vx.(lua.LNumber)
	if !ok {
		return component.Velocity{}, false, fmt.Errorf("lua %s returned %s, want number", inputFunc, vx.Type())
	}
	y, _ := vy.(lua.LNumber)
	return component.Velocity{X: float64(x), Y: float64(y)}, true, nil
}

// Input adapts Call to the input source interface. Script errors are
// logged and treated as no input.
func (e *Engine) Input(tick ecs.Tick, ent ecs.Entity) (component.Velocity, bool) {
	v, ok, err := e.Call(tick, ent)
	if err != nil {
		e.log.Error("lua input error", zap.Uint32("tick", uint32(tick)), zap.Error(err))
		return component.Velocity{}, false
	}
	return v, ok
}

func (e *Engine) Close() {
	e.vm.Close()
}
