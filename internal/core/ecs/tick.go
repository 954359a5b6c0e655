package ecs

// Tick is the simulation step counter. Comparisons are wrap-aware so a
// long-running session survives the uint32 overflow.
type Tick uint32

// Diff returns t - o as a signed distance.
func (t Tick) Diff(o Tick) int32 { return int32(t - o) }

func (t Tick) After(o Tick) bool { return t.Diff(o) > 0 }
func (t Tick) Before(o Tick) bool { return t.Diff(o) < 0 }
func (t Tick) Next() Tick { return t + 1 }
func (t Tick) Prev() Tick { return t - 1 }
