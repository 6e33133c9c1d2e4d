package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/solwind/ptrace/internal/config"
	"github.com/solwind/ptrace/internal/field"
	"github.com/solwind/ptrace/internal/grid"
	"github.com/solwind/ptrace/internal/particle"
	"github.com/solwind/ptrace/internal/pusher"
	"github.com/solwind/ptrace/internal/sim"
	"github.com/solwind/ptrace/internal/store"
	"github.com/solwind/ptrace/internal/tui"
	"github.com/solwind/ptrace/internal/viz"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	dataDir    string
	configFile string
	fieldsFile string
	partsFile  string
	workers    int
	live       bool

	// plot / orbit
	particleID int
	component  string
	xComp      string
	yComp      string
	plotWidth  int
	plotHeight int

	// export
	outPath string

	// fields generator
	genKind   string
	genDims   []int
	genMin    []float64
	genMax    []float64
	genE      []float64
	genB      []float64
	genMoment []float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ptrace",
		Short: "charged-particle trajectory tracer",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".ptrace", "data directory")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "trace a batch of particles",
		RunE:  runTrace,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file (yaml)")
	runCmd.Flags().StringVar(&fieldsFile, "fields", "", "fields file (overrides config)")
	runCmd.Flags().StringVar(&partsFile, "particles", "", "particles file (overrides config)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "worker count (overrides config, 0 = all cores)")
	runCmd.Flags().BoolVar(&live, "live", false, "show live progress")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot one trajectory component against time",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&particleID, "particle", 0, "particle id")
	plotCmd.Flags().StringVar(&component, "component", "x", "component (x, y, z, vx, vy, vz)")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 12, "plot height")

	orbitCmd := &cobra.Command{
		Use:   "orbit [run_id]",
		Short: "project one trajectory onto a coordinate plane",
		Args:  cobra.ExactArgs(1),
		RunE:  orbitRun,
	}
	orbitCmd.Flags().IntVar(&particleID, "particle", 0, "particle id")
	orbitCmd.Flags().StringVar(&xComp, "x", "x", "horizontal component")
	orbitCmd.Flags().StringVar(&yComp, "y", "y", "vertical component")
	orbitCmd.Flags().IntVar(&plotWidth, "width", 60, "plot width")
	orbitCmd.Flags().IntVar(&plotHeight, "height", 20, "plot height")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export trajectories in column format",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&outPath, "out", "trajectories.dat", "output path")
	exportCmd.Flags().StringVar(&fieldsFile, "fields", "", "fields file for pitch-angle decomposition")

	fieldsCmd := &cobra.Command{
		Use:   "fields [path]",
		Short: "generate an analytic fields file",
		Args:  cobra.ExactArgs(1),
		RunE:  generateFields,
	}
	fieldsCmd.Flags().StringVar(&genKind, "kind", "uniform", "field kind (uniform, dipole)")
	fieldsCmd.Flags().IntSliceVar(&genDims, "dims", []int{16, 16, 16}, "grid points per axis")
	fieldsCmd.Flags().Float64SliceVar(&genMin, "min", []float64{-5, -5, -5}, "domain minimum")
	fieldsCmd.Flags().Float64SliceVar(&genMax, "max", []float64{5, 5, 5}, "domain maximum")
	fieldsCmd.Flags().Float64SliceVar(&genE, "e", []float64{0, 0, 0}, "uniform E vector")
	fieldsCmd.Flags().Float64SliceVar(&genB, "b", []float64{0, 0, 1}, "uniform B vector")
	fieldsCmd.Flags().Float64SliceVar(&genMoment, "moment", []float64{0, 0, -1}, "dipole moment")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, orbitCmd, exportCmd, fieldsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("fields") {
		cfg.FieldsFile = fieldsFile
	}
	if cmd.Flags().Changed("particles") {
		cfg.ParticlesFile = partsFile
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}
	if cfg.FieldsFile == "" {
		return nil, fmt.Errorf("no fields file given (config fields_file or --fields)")
	}
	if cfg.ParticlesFile == "" {
		return nil, fmt.Errorf("no particles file given (config particles_file or --particles)")
	}
	return cfg, cfg.Validate()
}

func buildSampler(path string, policy grid.Policy) (*field.Sampler, error) {
	fd, err := store.ReadFields(path)
	if err != nil {
		return nil, err
	}
	return field.NewSampler(fd.Grid, fd.Times, fd.Frames, policy)
}

func runTrace(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	sampler, err := buildSampler(cfg.FieldsFile, policy)
	if err != nil {
		return err
	}
	states, err := store.ReadParticles(cfg.ParticlesFile, cfg.Species)
	if err != nil {
		return err
	}
	opts, err := cfg.PusherOptions()
	if err != nil {
		return err
	}

	st := store.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	start := time.Now()
	var results []sim.Result
	if live {
		results, err = runLive(sampler, opts, cfg.Workers, states)
	} else {
		var runner *sim.Runner
		runner, err = sim.NewRunner(sampler, opts, sim.WithWorkers(cfg.Workers))
		if err != nil {
			return err
		}
		results, err = runner.Run(context.Background(), states)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(cfg, results, elapsed)
	if err != nil {
		return err
	}

	fmt.Println(viz.Summary(runID, sim.Summarize(results), elapsed))
	return nil
}

// runLive traces the batch behind a bubbletea progress view. The runner
// works in a goroutine and feeds the view through its completion
// callback; quitting the view cancels the run.
func runLive(sampler *field.Sampler, opts pusher.Options, nworkers int, states []*particle.State) ([]sim.Result, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(tui.NewModel(len(states), cancel))

	runner, err := sim.NewRunner(sampler, opts,
		sim.WithWorkers(nworkers),
		sim.WithProgress(func(res sim.Result) {
			p.Send(tui.ParticleMsg{Status: res.State.Status})
		}),
	)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		results []sim.Result
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		results, err := runner.Run(ctx, states)
		ch <- outcome{results, err}
		p.Send(tui.DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
	}
	out := <-ch
	return out.results, out.err
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tPARTICLES\tSPAN\tELAPSED")
	for _, run := range runs {
		span := "-"
		if run.Config != nil {
			span = fmt.Sprintf("[%g, %g]", run.Config.TimeSpan.Start, run.Config.TimeSpan.End)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2fs\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			len(run.Particles),
			span,
			run.Elapsed,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func plotRun(cmd *cobra.Command, args []string) error {
	comp, err := viz.ParseComponent(component)
	if err != nil {
		return err
	}
	traj, err := store.New(dataDir).LoadTrajectory(args[0], particleID)
	if err != nil {
		return err
	}
	fmt.Println(viz.PlotComponent(traj, comp, plotWidth, plotHeight))
	return nil
}

func orbitRun(cmd *cobra.Command, args []string) error {
	cx, err := viz.ParseComponent(xComp)
	if err != nil {
		return err
	}
	cy, err := viz.ParseComponent(yComp)
	if err != nil {
		return err
	}
	traj, err := store.New(dataDir).LoadTrajectory(args[0], particleID)
	if err != nil {
		return err
	}
	fmt.Println(viz.Orbit(traj, cx, cy, plotWidth, plotHeight))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)

	var sampler *field.Sampler
	if fieldsFile != "" {
		meta, err := st.Load(args[0])
		if err != nil {
			return err
		}
		policy := grid.PolicyClamp
		if meta.Config != nil {
			if p, err := meta.Config.Policy(); err == nil {
				policy = p
			}
		}
		if sampler, err = buildSampler(fieldsFile, policy); err != nil {
			return err
		}
	}

	if err := st.ExportRun(args[0], outPath, sampler); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func vec3(vals []float64, name string) (r3.Vec, error) {
	if len(vals) != 3 {
		return r3.Vec{}, fmt.Errorf("--%s needs exactly 3 values, got %d", name, len(vals))
	}
	return r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

func generateFields(cmd *cobra.Command, args []string) error {
	if len(genDims) != 3 {
		return fmt.Errorf("--dims needs exactly 3 values, got %d", len(genDims))
	}
	min, err := vec3(genMin, "min")
	if err != nil {
		return err
	}
	max, err := vec3(genMax, "max")
	if err != nil {
		return err
	}
	g, err := grid.Uniform(genDims[0], genDims[1], genDims[2], min, max)
	if err != nil {
		return err
	}

	var snap field.Snapshot
	switch genKind {
	case "uniform":
		e, err := vec3(genE, "e")
		if err != nil {
			return err
		}
		b, err := vec3(genB, "b")
		if err != nil {
			return err
		}
		snap = field.UniformSnapshot(g, e, b)
	case "dipole":
		m, err := vec3(genMoment, "moment")
		if err != nil {
			return err
		}
		snap = field.DipoleSnapshot(g, m)
	default:
		return fmt.Errorf("unknown field kind %q (want uniform or dipole)", genKind)
	}

	data := &store.FieldData{Grid: g, Frames: []field.Snapshot{snap}}
	if err := store.WriteFields(args[0], data); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%dx%dx%d %s field)\n", args[0], genDims[0], genDims[1], genDims[2], genKind)
	return nil
}
