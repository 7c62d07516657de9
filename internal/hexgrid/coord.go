package hexgrid

// Axial represents axial coordinates (q, r). The third cube coordinate
// s = -q-r is always derived, never stored.
type Axial struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (a Axial) S() int { return -a.Q - a.R }

// Add returns a+b in axial space.
func (a Axial) Add(b Axial) Axial { return Axial{a.Q + b.Q, a.R + b.R} }

// Sub returns a-b in axial space.
func (a Axial) Sub(b Axial) Axial { return Axial{a.Q - b.Q, a.R - b.R} }

// Neg returns -a.
func (a Axial) Neg() Axial { return Axial{-a.Q, -a.R} }

// Norm returns q²+qr+r², the squared length of a on the hexagonal lattice.
// Valid cluster sizes are exactly the values this takes.
func (a Axial) Norm() int { return a.Q*a.Q + a.R*a.R + a.Q*a.R }
