package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/solwind/ptrace/internal/particle"
)

// Component selects one trajectory column for plotting.
type Component int

const (
	CompX Component = iota
	CompY
	CompZ
	CompVx
	CompVy
	CompVz
)

var componentNames = map[string]Component{
	"x": CompX, "y": CompY, "z": CompZ,
	"vx": CompVx, "vy": CompVy, "vz": CompVz,
}

// ParseComponent maps a column name to a Component.
func ParseComponent(s string) (Component, error) {
	c, ok := componentNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown component %q (want x, y, z, vx, vy or vz)", s)
	}
	return c, nil
}

func (c Component) String() string {
	for name, v := range componentNames {
		if v == c {
			return name
		}
	}
	return "?"
}

func (c Component) extract(p particle.Point) float64 {
	switch c {
	case CompX:
		return p.Pos.X
	case CompY:
		return p.Pos.Y
	case CompZ:
		return p.Pos.Z
	case CompVx:
		return p.Vel.X
	case CompVy:
		return p.Vel.Y
	default:
		return p.Vel.Z
	}
}

// PlotComponent renders one trajectory column against sample index.
func PlotComponent(traj particle.Trajectory, c Component, width, height int) string {
	if len(traj) < 2 {
		return "(not enough samples to plot)"
	}
	data := make([]float64, len(traj))
	for i, pt := range traj {
		data[i] = c.extract(pt)
	}
	caption := fmt.Sprintf("%s  [t=%.3g .. %.3g]", c, traj[0].T, traj[len(traj)-1].T)
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// Orbit renders the trajectory projected onto a coordinate plane as a
// braille scatter, axes scaled to the data bounds.
func Orbit(traj particle.Trajectory, horiz, vert Component, width, height int) string {
	if len(traj) < 2 {
		return "(not enough samples to plot)"
	}

	xs := make([]float64, len(traj))
	ys := make([]float64, len(traj))
	for i, pt := range traj {
		xs[i] = horiz.extract(pt)
		ys[i] = vert.extract(pt)
	}

	c := newOrbitCanvas(width, height, bounds(xs), bounds(ys))
	for i := 1; i < len(traj); i++ {
		c.segment(xs[i-1], ys[i-1], xs[i], ys[i])
	}

	var b strings.Builder
	b.WriteString(c.String())
	b.WriteString(fmt.Sprintf("%s: %.3g .. %.3g   %s: %.3g .. %.3g\n",
		horiz, c.xr[0], c.xr[1], vert, c.yr[0], c.yr[1]))
	return b.String()
}

func bounds(vals []float64) [2]float64 {
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	return [2]float64{lo, hi}
}

// orbitCanvas is a braille raster addressed in world coordinates. Each
// cell packs 2x4 dots starting at U+2800.
type orbitCanvas struct {
	w, h   int
	xr, yr [2]float64
	cells  []rune
}

var brailleDots = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

func newOrbitCanvas(w, h int, xr, yr [2]float64) *orbitCanvas {
	c := &orbitCanvas{w: w, h: h, xr: xr, yr: yr, cells: make([]rune, w*h)}
	for i := range c.cells {
		c.cells[i] = 0x2800
	}
	return c
}

func (c *orbitCanvas) mark(x, y float64) {
	px := int((x - c.xr[0]) / (c.xr[1] - c.xr[0]) * float64(c.w*2-1))
	py := int((c.yr[1] - y) / (c.yr[1] - c.yr[0]) * float64(c.h*4-1))
	if px < 0 || py < 0 || px >= c.w*2 || py >= c.h*4 {
		return
	}
	c.cells[(py/4)*c.w+px/2] |= brailleDots[py%4][px%2]
}

func (c *orbitCanvas) segment(x0, y0, x1, y1 float64) {
	// Subdivide in world space so fast-moving segments stay connected.
	const sub = 8
	for i := 0; i <= sub; i++ {
		t := float64(i) / sub
		c.mark(x0+t*(x1-x0), y0+t*(y1-y0))
	}
}

func (c *orbitCanvas) String() string {
	var b strings.Builder
	for row := 0; row < c.h; row++ {
		b.WriteString(string(c.cells[row*c.w : (row+1)*c.w]))
		b.WriteByte('\n')
	}
	return b.String()
}
