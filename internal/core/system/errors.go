package system

import (
	"fmt"
	"strings"

	"github.com/l1jgo/rewind/internal/core/ecs"
)

// DuplicateError reports two systems or groups sharing a name.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate system or group name %q", e.Name)
}

// ReferenceError reports an ordering hint naming something unknown, or a
// Parent that is not a group.
type ReferenceError struct {
	System string
	Kind   string
	Ref    string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("system %q: %s %q does not name a known %s", e.System, e.Kind, e.Ref, e.target())
}

func (e *ReferenceError) target() string {
	if e.Kind == "parent" {
		return "group"
	}
	return "system or group"
}

// UnregisteredComponentError reports access to a component id the world
// does not have.
type UnregisteredComponentError struct {
	System    string
	Component ecs.ComponentID
}

func (e *UnregisteredComponentError) Error() string {
	return fmt.Sprintf("system %q accesses unregistered component #%d", e.System, e.Component)
}

// CycleError names the systems or groups forming an ordering cycle.
type CycleError struct {
	Systems []string
}

func (e *CycleError) Error() string {
	return "ordering cycle: " + strings.Join(e.Systems, " -> ")
}

// ConflictError reports two conflicting systems sharing a layer, or an
// ordering edge that does not move forward across layers.
type ConflictError struct {
	Layer int
	A, B  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("layer %d: %q and %q are not separated", e.Layer, e.A, e.B)
}

// PanicError wraps a panic raised by a system body. The step that produced
// it must be treated as corrupt.
type PanicError struct {
	System string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("system %q panicked: %v", e.System, e.Value)
}
