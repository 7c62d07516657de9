package plane

import (
	"fmt"

	"github.com/gravitas-games/cellplan/internal/hexgrid"
)

// Color identifies a frequency group. Uncolored is the sentinel for a cell no
// group has reached yet.
type Color int

const Uncolored Color = 0

// palette holds the display color of groups 1..7.
var palette = [...]string{
	"#E6194B", "#3CB44B", "#FFE119", "#4363D8", "#F58231", "#911EB4", "#42D4F4",
}

// MaxGroups is the number of distinct groups that have a display color.
const MaxGroups = len(palette)

// Hex returns the display color of c. Uncolored cells render black.
func (c Color) Hex() string {
	if c < 1 || int(c) > len(palette) {
		return "black"
	}
	return palette[c-1]
}

// Cell is a single hex of the plane.
type Cell struct {
	Coord hexgrid.Axial `json:"coord"`
	Color Color         `json:"color"`
	Seed  bool          `json:"seed"` // sits on an untranslated base-cluster offset
}

// Plane is a bounded set of cells in axial space. Painting is monotone: once
// a cell holds a color it keeps it.
type Plane struct {
	bounds  hexgrid.Rect
	cells   []Cell
	colored int
}

// New creates a plane over bounds with every cell uncolored.
func New(bounds hexgrid.Rect) *Plane {
	p := &Plane{
		bounds: bounds,
		cells:  make([]Cell, 0, bounds.Len()),
	}
	for _, a := range bounds.Coords() {
		p.cells = append(p.cells, Cell{Coord: a, Color: Uncolored})
	}
	return p
}

// Bounds returns the axial rect the plane covers.
func (p *Plane) Bounds() hexgrid.Rect { return p.bounds }

// Len returns the number of cells in the plane.
func (p *Plane) Len() int { return len(p.cells) }

// ColoredCount returns the number of cells holding a group color.
func (p *Plane) ColoredCount() int { return p.colored }

// At returns the cell at a, if the plane covers it.
func (p *Plane) At(a hexgrid.Axial) (Cell, bool) {
	i := p.bounds.Index(a)
	if i < 0 {
		return Cell{}, false
	}
	return p.cells[i], true
}

// ColorAt returns the color at a. Coordinates outside the plane read as
// Uncolored.
func (p *Plane) ColorAt(a hexgrid.Axial) Color {
	c, _ := p.At(a)
	return c.Color
}

// Paint sets the color of an uncolored cell and reports whether it did.
// Painting outside the plane, painting Uncolored or repainting a colored cell
// are no-ops.
func (p *Plane) Paint(a hexgrid.Axial, c Color) bool {
	i := p.bounds.Index(a)
	if i < 0 || c == Uncolored || p.cells[i].Color != Uncolored {
		return false
	}
	p.cells[i].Color = c
	p.colored++
	return true
}

// MarkSeed flags the cell at a as a base-cluster seed.
func (p *Plane) MarkSeed(a hexgrid.Axial) bool {
	i := p.bounds.Index(a)
	if i < 0 {
		return false
	}
	p.cells[i].Seed = true
	return true
}

// Cells returns a copy of every cell in plane order.
func (p *Plane) Cells() []Cell {
	out := make([]Cell, len(p.cells))
	copy(out, p.cells)
	return out
}

// Colored returns a copy of every colored cell in plane order.
func (p *Plane) Colored() []Cell {
	out := make([]Cell, 0, p.colored)
	for _, c := range p.cells {
		if c.Color != Uncolored {
			out = append(out, c)
		}
	}
	return out
}

// Groups returns the number of distinct colors on the plane.
func (p *Plane) Groups() int {
	seen := make(map[Color]struct{})
	for _, c := range p.cells {
		if c.Color != Uncolored {
			seen[c.Color] = struct{}{}
		}
	}
	return len(seen)
}

// String returns a summary of the plane.
func (p *Plane) String() string {
	return fmt.Sprintf("Plane(%s, cells=%d, colored=%d)", p.bounds, len(p.cells), p.colored)
}
