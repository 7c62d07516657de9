package hexgrid

import "fmt"

// Rect is a rectangle in axial space: every (q, r) with QMin <= q <= QMax and
// RMin <= r <= RMax. Drawn on screen it is a rhombus, not a rectangle.
type Rect struct {
	QMin int `json:"q_min" yaml:"q_min"`
	QMax int `json:"q_max" yaml:"q_max"`
	RMin int `json:"r_min" yaml:"r_min"`
	RMax int `json:"r_max" yaml:"r_max"`
}

// Square returns the rect covering q, r in [-radius, radius].
func Square(radius int) Rect {
	return Rect{QMin: -radius, QMax: radius, RMin: -radius, RMax: radius}
}

// Contains reports whether a lies inside the rect.
func (b Rect) Contains(a Axial) bool {
	return a.Q >= b.QMin && a.Q <= b.QMax && a.R >= b.RMin && a.R <= b.RMax
}

// Len returns the number of coordinates in the rect.
func (b Rect) Len() int {
	if b.QMax < b.QMin || b.RMax < b.RMin {
		return 0
	}
	return (b.QMax - b.QMin + 1) * (b.RMax - b.RMin + 1)
}

// Index returns the position of a in the order produced by Coords, or -1.
func (b Rect) Index(a Axial) int {
	if !b.Contains(a) {
		return -1
	}
	return (a.Q-b.QMin)*(b.RMax-b.RMin+1) + (a.R - b.RMin)
}

// Coords returns every coordinate in the rect, q-major then r.
func (b Rect) Coords() []Axial {
	res := make([]Axial, 0, b.Len())
	for q := b.QMin; q <= b.QMax; q++ {
		for r := b.RMin; r <= b.RMax; r++ {
			res = append(res, Axial{q, r})
		}
	}
	return res
}

// Validate rejects empty rects.
func (b Rect) Validate() error {
	if b.QMax < b.QMin {
		return fmt.Errorf("q_max %d is below q_min %d", b.QMax, b.QMin)
	}
	if b.RMax < b.RMin {
		return fmt.Errorf("r_max %d is below r_min %d", b.RMax, b.RMin)
	}
	return nil
}

func (b Rect) String() string {
	return fmt.Sprintf("q[%d,%d] r[%d,%d]", b.QMin, b.QMax, b.RMin, b.RMax)
}
