package cluster

import (
	"fmt"

	"github.com/gravitas-games/cellplan/internal/hexgrid"
	"github.com/gravitas-games/cellplan/internal/plane"
)

// Directions is the base-cluster layout: the center, then its six
// neighbors. A cluster of size N uses the first min(N, len(Directions)).
var Directions = [...]hexgrid.Axial{
	{Q: 0, R: 0},
	{Q: 1, R: 0},
	{Q: 0, R: 1},
	{Q: -1, R: 1},
	{Q: -1, R: 0},
	{Q: 0, R: -1},
	{Q: 1, R: -1},
}

// DefaultAnchor is where the base cluster is painted, near the q=-10 edge
// of the default plane.
var DefaultAnchor = hexgrid.Axial{Q: -9, R: 6}

// DefaultRadius gives the default 21x21 plane.
const DefaultRadius = 10

// Strategy selects how colors propagate from the seeds.
type Strategy string

const (
	// Frontier grows breadth-first from the seeds.
	Frontier Strategy = "frontier"
	// Rescan sweeps the whole plane until a sweep changes nothing.
	Rescan Strategy = "rescan"
)

// Reach selects which way colors travel along an offset.
type Reach string

const (
	// Bidirectional lets c take the color of c-(i,j) or c+(i,j), so every
	// cell of the plane is reached.
	Bidirectional Reach = "bidirectional"
	// Forward lets c take the color of c-(i,j) only. Cells the anchor cannot
	// reach along the offsets stay uncolored.
	Forward Reach = "forward"
)

// ParseStrategy maps a config value to a Strategy. Empty means Frontier.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", Frontier:
		return Frontier, nil
	case Rescan:
		return Rescan, nil
	}
	return "", fmt.Errorf("unknown tiling strategy %q", s)
}

// ParseReach maps a config value to a Reach. Empty means Bidirectional.
func ParseReach(s string) (Reach, error) {
	switch Reach(s) {
	case "", Bidirectional:
		return Bidirectional, nil
	case Forward:
		return Forward, nil
	}
	return "", fmt.Errorf("unknown tiling reach %q", s)
}

// Seed is one base-cluster cell before it is moved to the anchor.
type Seed struct {
	Offset hexgrid.Axial
	Color  plane.Color
}

// BaseCluster returns the first min(n, 7) directions, each with its own
// color, numbered from 1 in table order.
func BaseCluster(n int) []Seed {
	k := min(max(n, 0), len(Directions))
	seeds := make([]Seed, k)
	for i := 0; i < k; i++ {
		seeds[i] = Seed{Offset: Directions[i], Color: plane.Color(i + 1)}
	}
	return seeds
}

// Options fixes the plane a Tiler works on.
type Options struct {
	Bounds   hexgrid.Rect
	Anchor   hexgrid.Axial
	Strategy Strategy
	Reach    Reach
}

// DefaultOptions returns the 21x21 plane anchored at (-9, 6), frontier
// propagation, bidirectional reach.
func DefaultOptions() Options {
	return Options{
		Bounds:   hexgrid.Square(DefaultRadius),
		Anchor:   DefaultAnchor,
		Strategy: Frontier,
		Reach:    Bidirectional,
	}
}

// PaintEvent describes one cell receiving its color. Seeds are painted in
// round 0.
type PaintEvent struct {
	Coord hexgrid.Axial
	From  hexgrid.Axial
	Color plane.Color
	Round int
}

// Stats summarizes a tiling run.
type Stats struct {
	Rounds    int `json:"rounds"`
	Seeds     int `json:"seeds"`
	Colored   int `json:"colored"`
	Unreached int `json:"unreached"`
	Groups    int `json:"groups"`
}

// Result is the output of Tile: the colored cells in plane order.
type Result struct {
	N     int          `json:"n"`
	Cells []plane.Cell `json:"cells"`
	Stats Stats        `json:"stats"`
}

// Tiler replicates a base cluster across a bounded plane.
type Tiler struct {
	opts    Options
	observe func(PaintEvent)
}

// Option configures a Tiler.
type Option func(*Tiler)

// WithObserver registers fn to be called for every painted cell.
func WithObserver(fn func(PaintEvent)) Option {
	return func(t *Tiler) { t.observe = fn }
}

// New creates a Tiler, filling zero-valued strategy and reach with defaults.
func New(opts Options, options ...Option) (*Tiler, error) {
	if err := opts.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plane bounds: %w", err)
	}
	var err error
	if opts.Strategy, err = ParseStrategy(string(opts.Strategy)); err != nil {
		return nil, err
	}
	if opts.Reach, err = ParseReach(string(opts.Reach)); err != nil {
		return nil, err
	}
	t := &Tiler{opts: opts}
	for _, o := range options {
		o(t)
	}
	return t, nil
}

// Options returns the options the Tiler was built with.
func (t *Tiler) Options() Options { return t.opts }

// Key identifies everything besides N that a tiling depends on.
func (t *Tiler) Key() string {
	o := t.opts
	return fmt.Sprintf("%s/%s/%d,%d,%d,%d/%d,%d", o.Strategy, o.Reach,
		o.Bounds.QMin, o.Bounds.QMax, o.Bounds.RMin, o.Bounds.RMax, o.Anchor.Q, o.Anchor.R)
}

// Blank returns every cell of a fresh, uncolored plane.
func (t *Tiler) Blank() []plane.Cell {
	return plane.New(t.opts.Bounds).Cells()
}

// Tile seeds the base cluster of n at the anchor and propagates its colors
// until nothing changes. Only colored cells are returned; cells no seed can
// reach are left out.
func (t *Tiler) Tile(n int) (Result, error) {
	if n < 1 || !IsValidClusterSize(n) {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidClusterSize, n)
	}

	p := plane.New(t.opts.Bounds)
	seeded := t.seed(p, BaseCluster(n))
	steps := t.steps(n)

	var rounds int
	switch t.opts.Strategy {
	case Rescan:
		rounds = t.rescan(p, steps)
	default:
		rounds = t.frontier(p, seeded, steps)
	}

	return Result{
		N:     n,
		Cells: p.Colored(),
		Stats: Stats{
			Rounds:    rounds,
			Seeds:     len(seeded),
			Colored:   p.ColoredCount(),
			Unreached: p.Len() - p.ColoredCount(),
			Groups:    p.Groups(),
		},
	}, nil
}

// seed paints each base-cluster color at offset+anchor and flags the cell
// at the bare offset. It returns the painted coordinates in table order.
func (t *Tiler) seed(p *plane.Plane, base []Seed) []hexgrid.Axial {
	painted := make([]hexgrid.Axial, 0, len(base))
	for _, s := range base {
		at := s.Offset.Add(t.opts.Anchor)
		if p.Paint(at, s.Color) {
			t.emit(PaintEvent{Coord: at, From: at, Color: s.Color})
			painted = append(painted, at)
		}
		p.MarkSeed(s.Offset)
	}
	return painted
}

// steps returns the vectors a color travels along: the cluster offsets, and
// their negations under Bidirectional reach.
func (t *Tiler) steps(n int) []hexgrid.Axial {
	offsets := Offsets(n)
	if t.opts.Reach != Bidirectional {
		return offsets
	}
	seen := make(map[hexgrid.Axial]bool, 2*len(offsets))
	steps := make([]hexgrid.Axial, 0, 2*len(offsets))
	for _, o := range offsets {
		seen[o] = true
		steps = append(steps, o)
	}
	for _, o := range offsets {
		if neg := o.Neg(); !seen[neg] {
			seen[neg] = true
			steps = append(steps, neg)
		}
	}
	return steps
}

// frontier grows generation by generation. A cell is painted by the first
// frontier cell, in queue order, that reaches it.
func (t *Tiler) frontier(p *plane.Plane, seeds, steps []hexgrid.Axial) int {
	rounds := 0
	for current := seeds; len(current) > 0; {
		rounds++
		var next []hexgrid.Axial
		for _, from := range current {
			c := p.ColorAt(from)
			for _, step := range steps {
				to := from.Add(step)
				if p.Paint(to, c) {
					t.emit(PaintEvent{Coord: to, From: from, Color: c, Round: rounds})
					next = append(next, to)
				}
			}
		}
		current = next
	}
	return rounds
}

// rescan sweeps the plane in order. An uncolored cell takes the color of the
// first colored cell among at-step; the sweep repeats until one changes
// nothing.
func (t *Tiler) rescan(p *plane.Plane, steps []hexgrid.Axial) int {
	coords := p.Bounds().Coords()
	rounds := 0
	for changed := true; changed; {
		rounds++
		changed = false
		for _, at := range coords {
			if p.ColorAt(at) != plane.Uncolored {
				continue
			}
			for _, step := range steps {
				from := at.Sub(step)
				c := p.ColorAt(from)
				if c == plane.Uncolored {
					continue
				}
				p.Paint(at, c)
				t.emit(PaintEvent{Coord: at, From: from, Color: c, Round: rounds})
				changed = true
				break
			}
		}
	}
	return rounds
}

func (t *Tiler) emit(ev PaintEvent) {
	if t.observe != nil {
		t.observe(ev)
	}
}
