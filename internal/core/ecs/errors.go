package ecs

import (
	"errors"
	"fmt"
)

var (
	// ErrTickOrder is returned by SetTick for anything but the current tick
	// or its successor. Moving backwards goes through Rollback.
	ErrTickOrder = errors.New("ecs: tick must advance by exactly one")

	// ErrFutureTick is wrapped by RangeError when the target lies ahead of
	// the current tick.
	ErrFutureTick = errors.New("ecs: rollback target is in the future")
)

// RangeError reports a rollback target outside the retained history.
type RangeError struct {
	Component string
	Target    Tick
	Oldest    Tick
	Current   Tick
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("rollback %s to tick %d: retained history is [%d, %d]",
		e.Component, e.Target, e.Oldest, e.Current)
}

func (e *RangeError) Unwrap() error {
	if e.Target.After(e.Current) {
		return ErrFutureTick
	}
	return nil
}

// UnregisteredError is the panic value for access to a component type the
// world does not know.
type UnregisteredError struct {
	Type string
}

func (e *UnregisteredError) Error() string {
	return fmt.Sprintf("ecs: component type %s is not registered", e.Type)
}
