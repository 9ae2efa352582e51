package interp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/lumen-compute/lumen/internal/autodiff"
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/parallel"
	"github.com/lumen-compute/lumen/internal/value"
)

// Options tunes one dispatch.
type Options struct {
	// ErrorCutoff stops issuing new work items once this many have
	// trapped. Zero means no cutoff: every item runs.
	ErrorCutoff int

	// Workers configures the worker pool. Zero value means
	// parallel.DefaultConfig.
	Workers parallel.Config

	// HazardSampleLimit bounds the write journal used for best-effort
	// hazard detection. Zero means a default of 65536 sampled addresses.
	HazardSampleLimit int

	// HostFuncs binds CustomCall symbols for this dispatch.
	HostFuncs map[string]HostFunc
}

// Report aggregates one dispatch: per-item traps (each tagged with its
// coordinate), the success count, and sampled hazard warnings.
type Report struct {
	ID       string
	Kernel   string
	Extent   [3]int
	Duration time.Duration

	Succeeded int
	Traps     []*Trap
	Warnings  []HazardWarning

	// CutoffHit is true when the error cutoff stopped the dispatch before
	// every item ran.
	CutoffHit bool
}

// Items returns the total number of work items in the dispatch extent.
func (r *Report) Items() int {
	return r.Extent[0] * r.Extent[1] * r.Extent[2]
}

// Execute runs a finished graph once per work item over a 1D/2D/3D extent.
// Zero extent axes are treated as one. Items are isolated: one item's trap
// never aborts its siblings, and the dispatch completes when all items finish
// or the error cutoff is reached. The context gates the issuing of new items
// only; in-flight items always run to completion.
//
// Execute fails as a whole only for caller mistakes: an unfinished graph,
// bindings that do not match the capture list, or an autodiff misuse
// surfaced by an item (double backward, gradient before backward).
func Execute(ctx context.Context, g *ir.Graph, extent [3]int, args []value.Value, captures []Resource, opts Options) (*Report, error) {
	if !g.Finished() {
		return nil, errors.New("interp: graph is not finished")
	}
	for i := range extent {
		if extent[i] < 0 {
			return nil, errors.Errorf("interp: negative extent %v", extent)
		}
		if extent[i] == 0 {
			extent[i] = 1
		}
	}
	if err := checkBindings(g, args, captures); err != nil {
		return nil, err
	}

	cfg := opts.Workers
	if cfg == (parallel.Config{}) {
		cfg = parallel.DefaultConfig()
	}
	hazLimit := opts.HazardSampleLimit
	if hazLimit == 0 {
		hazLimit = 1 << 16
	}

	rep := &Report{
		ID:     uuid.NewString(),
		Kernel: g.Name(),
		Extent: extent,
	}
	haz := newHazardJournal(hazLimit)
	withTape := needsActivation(g)

	var (
		mu        sync.Mutex
		trapped   atomic.Int64
		succeeded atomic.Int64
		fatalErr  atomic.Pointer[error]
	)
	stop := func() bool {
		if fatalErr.Load() != nil {
			return true
		}
		if ctx.Err() != nil {
			return true
		}
		return opts.ErrorCutoff > 0 && trapped.Load() >= int64(opts.ErrorCutoff)
	}

	klog.V(1).InfoS("dispatch start", "report", rep.ID, "kernel", g.Name(), "extent", extent)
	start := time.Now()

	nx, ny, nz := extent[0], extent[1], extent[2]
	parallel.ForUntil(nx*ny*nz, func(k int) {
		m := &machine{
			g:     g,
			regs:  make([]value.Value, g.NumNodes()),
			args:  args,
			caps:  captures,
			coord: [3]int{k % nx, (k / nx) % ny, k / (nx * ny)},
			haz:   haz,
			hosts: opts.HostFuncs,
		}
		if withTape {
			m.act = autodiff.NewActivation()
		}
		trap, fatal := m.run()
		switch {
		case fatal != nil:
			fatalErr.CompareAndSwap(nil, &fatal)
		case trap != nil:
			trapped.Add(1)
			mu.Lock()
			rep.Traps = append(rep.Traps, trap)
			mu.Unlock()
			klog.V(2).InfoS("work item trapped", "report", rep.ID, "trap", trap.Error())
		default:
			succeeded.Add(1)
		}
	}, stop, cfg)

	if p := fatalErr.Load(); p != nil {
		return nil, errors.Wrap(*p, "interp: dispatch aborted")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "interp: dispatch interrupted")
	}

	rep.Duration = time.Since(start)
	rep.Succeeded = int(succeeded.Load())
	rep.Warnings = haz.report()
	rep.CutoffHit = opts.ErrorCutoff > 0 && int(trapped.Load()) >= opts.ErrorCutoff
	klog.V(1).InfoS("dispatch done", "report", rep.ID,
		"succeeded", rep.Succeeded, "trapped", len(rep.Traps),
		"warnings", len(rep.Warnings), "duration", rep.Duration)
	return rep, nil
}

// needsActivation reports whether the graph carries any autodiff marker, in
// which case every item records a tape.
func needsActivation(g *ir.Graph) bool {
	if autodiff.NeedsTape(g) {
		return true
	}
	for i := 0; i < g.NumNodes(); i++ {
		switch g.NodeByID(ir.NodeID(i)).Op() {
		case ir.OpRequiresGrad, ir.OpGradient:
			return true
		}
	}
	return false
}

// checkBindings validates arguments and captures against the graph's
// declared parameter lists, once per dispatch rather than per item.
func checkBindings(g *ir.Graph, args []value.Value, captures []Resource) error {
	params := g.Args()
	if len(args) != len(params) {
		return errors.Errorf("interp: %d arguments bound, kernel declares %d", len(args), len(params))
	}
	for i, p := range params {
		if !args[i].Type().Equal(p.Type) {
			return errors.Errorf("interp: argument %q bound to %s, declared %s",
				p.Name, args[i].Type(), p.Type)
		}
	}

	caps := g.Captures()
	if len(captures) != len(caps) {
		return errors.Errorf("interp: %d captures bound, kernel declares %d", len(captures), len(caps))
	}
	for i, p := range caps {
		switch r := captures[i].(type) {
		case *Buffer:
			if p.Type.Resource != ir.ResBuffer {
				return errors.Errorf("interp: capture %q bound to a buffer, declared %s", p.Name, p.Type)
			}
			if !r.Elem().Equal(p.Type.ElemType()) {
				return errors.Errorf("interp: capture %q holds %s elements, declared %s",
					p.Name, r.Elem(), p.Type.ElemType())
			}
		case *BindlessTable:
			if p.Type.Resource != ir.ResBindless {
				return errors.Errorf("interp: capture %q bound to a bindless table, declared %s", p.Name, p.Type)
			}
		case nil:
			return errors.Errorf("interp: capture %q is nil", p.Name)
		default:
			return errors.Errorf("interp: capture %q bound to unsupported resource %T", p.Name, r)
		}
	}
	return nil
}
