package store

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/solwind/ptrace/internal/field"
	"github.com/solwind/ptrace/internal/grid"
)

// FieldData is the raw content of a fields file: the grid axes, snapshot
// times, and one E/B snapshot per time level.
type FieldData struct {
	Grid   *grid.Grid
	Times  []float64
	Frames []field.Snapshot
}

// ReadFields parses a fields file. The format is whitespace-separated
// ASCII: `nx ny nz nt`, the three axis coordinate lists, the nt snapshot
// times when nt > 1, then per snapshot one `Ex Ey Ez Bx By Bz` row per
// grid point in x-fastest order. Shape errors are configuration errors.
func ReadFields(path string) (*FieldData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := readFields(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("fields file %s: %w", path, err)
	}
	return data, nil
}

func readFields(r io.Reader) (*FieldData, error) {
	var nx, ny, nz, nt int
	if _, err := fmt.Fscan(r, &nx, &ny, &nz, &nt); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if nx < 2 || ny < 2 || nz < 2 || nt < 1 {
		return nil, fmt.Errorf("bad dimensions %dx%dx%d with %d snapshots", nx, ny, nz, nt)
	}

	readFloats := func(n int) ([]float64, error) {
		vals := make([]float64, n)
		for i := range vals {
			if _, err := fmt.Fscan(r, &vals[i]); err != nil {
				return nil, err
			}
		}
		return vals, nil
	}

	x, err := readFloats(nx)
	if err != nil {
		return nil, fmt.Errorf("reading x axis: %w", err)
	}
	y, err := readFloats(ny)
	if err != nil {
		return nil, fmt.Errorf("reading y axis: %w", err)
	}
	z, err := readFloats(nz)
	if err != nil {
		return nil, fmt.Errorf("reading z axis: %w", err)
	}

	g, err := grid.New(x, y, z)
	if err != nil {
		return nil, err
	}

	var times []float64
	if nt > 1 {
		if times, err = readFloats(nt); err != nil {
			return nil, fmt.Errorf("reading snapshot times: %w", err)
		}
	}

	frames := make([]field.Snapshot, nt)
	for s := 0; s < nt; s++ {
		snap := field.Snapshot{E: field.NewVecField(g), B: field.NewVecField(g)}
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					var ex, ey, ez, bx, by, bz float64
					if _, err := fmt.Fscan(r, &ex, &ey, &ez, &bx, &by, &bz); err != nil {
						return nil, fmt.Errorf("snapshot %d, point (%d,%d,%d): %w", s, i, j, k, err)
					}
					snap.E.X.Set(i, j, k, ex)
					snap.E.Y.Set(i, j, k, ey)
					snap.E.Z.Set(i, j, k, ez)
					snap.B.X.Set(i, j, k, bx)
					snap.B.Y.Set(i, j, k, by)
					snap.B.Z.Set(i, j, k, bz)
				}
			}
		}
		frames[s] = snap
	}
	return &FieldData{Grid: g, Times: times, Frames: frames}, nil
}

// WriteFields writes a fields file readable by ReadFields.
func WriteFields(path string, data *FieldData) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeFields(w, data); err != nil {
		return err
	}
	return w.Flush()
}

func writeFields(w io.Writer, data *FieldData) error {
	nx, ny, nz := data.Grid.Dims()
	nt := len(data.Frames)
	if _, err := fmt.Fprintf(w, "%d %d %d %d\n", nx, ny, nz, nt); err != nil {
		return err
	}

	writeFloats := func(vals []float64) error {
		for i, v := range vals {
			sep := " "
			if i == len(vals)-1 {
				sep = "\n"
			}
			if _, err := fmt.Fprintf(w, "%.17g%s", v, sep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, ax := range [][]float64{data.Grid.X(), data.Grid.Y(), data.Grid.Z()} {
		if err := writeFloats(ax); err != nil {
			return err
		}
	}
	if nt > 1 {
		if len(data.Times) != nt {
			return fmt.Errorf("store: %d times for %d snapshots", len(data.Times), nt)
		}
		if err := writeFloats(data.Times); err != nil {
			return err
		}
	}

	for _, snap := range data.Frames {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					e := snap.E.At(i, j, k)
					b := snap.B.At(i, j, k)
					if _, err := fmt.Fprintf(w, "%.17g %.17g %.17g %.17g %.17g %.17g\n",
						e.X, e.Y, e.Z, b.X, b.Y, b.Z); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
