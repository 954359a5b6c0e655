package component

// Position is a point in world units.
type Position struct {
	X, Y float64
}

// Velocity is the displacement applied to Position each tick.
type Velocity struct {
	X, Y float64
}

// Frozen pins an entity in place; movement skips it.
type Frozen struct{}

// Odometer accumulates the distance an entity has travelled.
type Odometer struct {
	Distance float64
	Moves    uint32
}
