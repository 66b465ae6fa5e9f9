package compute

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cwbudde/clsquare/internal/compute/device"
)

// StageEvent is emitted once per executed stage.
type StageEvent struct {
	Stage    Stage
	Duration time.Duration
	Err      error
}

// Dispatch records the launch given to one device.
type Dispatch struct {
	Device int
	Info   device.Info
	Range  Range
}

// Result is the outcome of a full pipeline run.
type Result struct {
	Backend  string
	Devices  []device.Info
	Dispatch []Dispatch
	Summary  Summary
	Stages   []StageEvent
	Elapsed  time.Duration
}

// CheckResult is the outcome of the build-only variant.
type CheckResult struct {
	Backend string
	Devices []device.Info
	Kernel  string
	Stages  []StageEvent
}

// Pipeline runs the square kernel end to end on one backend.
type Pipeline struct {
	backend Backend
	cfg     Config
	out     io.Writer

	// Input overrides the generated inputs when non-nil. Its length must equal
	// Config.Count.
	Input []float32
	// OnStage, when set, is called after every stage, failed or not.
	OnStage func(StageEvent)

	events []StageEvent
	res    releaser
}

// session holds what setup acquired.
type session struct {
	ctx     Context
	devices []device.Info
	queues  []Queue
	program Program
	kernel  Kernel
}

// NewPipeline returns a pipeline that prints diagnostics to out.
func NewPipeline(backend Backend, cfg Config, out io.Writer) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{backend: backend, cfg: cfg, out: out}
}

// Run executes every stage. Every acquired handle is released before Run
// returns. A run whose output fails validation returns its Result together with
// an error wrapping ErrMismatch.
func (p *Pipeline) Run() (result *Result, err error) {
	start := time.Now()
	p.events = nil

	if err := p.cfg.Validate(); err != nil {
		return nil, stageErr(StageConfig, err)
	}

	input := p.Input
	if input == nil {
		input = RandomInputs(p.cfg.Count, p.cfg.Seed)
	}
	if len(input) != p.cfg.Count {
		return nil, stageErr(StageConfig, fmt.Errorf("%w: %d inputs for count %d", ErrLengthMismatch, len(input), p.cfg.Count))
	}

	defer func() {
		if terr := p.teardown(); terr != nil && err == nil {
			err = terr
		}
		if result != nil {
			result.Stages = p.events
			result.Elapsed = time.Since(start)
		}
	}()

	s, err := p.setup()
	if err != nil {
		return nil, err
	}

	result = &Result{Backend: p.backend.Name(), Devices: s.devices}

	var in, out Buffer
	err = p.stage(StageBuffers, func() error {
		var err error
		if in, err = s.ctx.NewInputBuffer(input); err != nil {
			return fmt.Errorf("input buffer: %w", err)
		}
		p.res.push("input buffer", in.Release)

		if out, err = s.ctx.NewOutputBuffer(p.cfg.Count); err != nil {
			return fmt.Errorf("output buffer: %w", err)
		}
		p.res.push("output buffer", out.Release)

		if in.Len() != p.cfg.Count || out.Len() != p.cfg.Count {
			return fmt.Errorf("%w: input %d, output %d, count %d", ErrLengthMismatch, in.Len(), out.Len(), p.cfg.Count)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	err = p.stage(StageArgs, func() error {
		return bindSquareArgs(s.kernel, in, out, uint32(p.cfg.Count))
	})
	if err != nil {
		return result, err
	}

	err = p.stage(StageDispatch, func() error {
		var err error
		result.Dispatch, err = p.dispatch(s)
		return err
	})
	if err != nil {
		return result, err
	}

	err = p.stage(StageFinish, func() error {
		return finishAll(s.queues)
	})
	if err != nil {
		return result, err
	}

	output := make([]float32, p.cfg.Count)
	err = p.stage(StageReadBack, func() error {
		return s.queues[len(s.queues)-1].ReadBuffer(out, output)
	})
	if err != nil {
		return result, err
	}

	err = p.stage(StageValidate, func() error {
		summary, err := ValidateSquares(input, output, p.cfg.Tolerance(), func(m Mismatch) {
			fmt.Fprintf(p.out, "%d %f %f\n", m.Index, m.Got, m.Input)
		})
		if err != nil {
			return err
		}
		result.Summary = summary
		fmt.Fprintln(p.out, summary.String())
		if !summary.OK() {
			return fmt.Errorf("%w: %d of %d values wrong (max abs error %g)",
				ErrMismatch, summary.Total-summary.Correct, summary.Total, summary.MaxAbsError)
		}
		return nil
	})
	return result, err
}

// Check builds the program and extracts the kernel, then releases everything
// without staging buffers or dispatching work.
func (p *Pipeline) Check() (result *CheckResult, err error) {
	p.events = nil

	if err := p.cfg.Validate(); err != nil {
		return nil, stageErr(StageConfig, err)
	}

	defer func() {
		if terr := p.teardown(); terr != nil && err == nil {
			err = terr
		}
		if result != nil {
			result.Stages = p.events
		}
	}()

	s, err := p.setup()
	if err != nil {
		return nil, err
	}

	return &CheckResult{
		Backend: p.backend.Name(),
		Devices: s.devices,
		Kernel:  s.kernel.Name(),
	}, nil
}

// setup acquires the context, one queue per device, the built program and the
// kernel. Everything acquired is pushed onto the releaser.
func (p *Pipeline) setup() (*session, error) {
	s := &session{}

	err := p.stage(StageContext, func() error {
		ctx, err := p.backend.CreateContext(p.cfg.DeviceType)
		if err != nil {
			return err
		}
		s.ctx = ctx
		p.res.push("context", ctx.Release)

		s.devices = ctx.Devices()
		if len(s.devices) == 0 {
			return fmt.Errorf("%w: %s", ErrNoDevices, p.cfg.DeviceType)
		}
		slog.Debug("Context acquired", "backend", p.backend.Name(), "devices", len(s.devices))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(StageQueues, func() error {
		for i := range s.devices {
			q, err := s.ctx.NewQueue(i)
			if err != nil {
				return deviceErr(StageQueues, i, err)
			}
			s.queues = append(s.queues, q)
			p.res.push(fmt.Sprintf("queue %d", i), q.Release)
		}
		if len(s.queues) != len(s.devices) {
			return fmt.Errorf("%w: %d queues, %d devices", ErrQueueCardinality, len(s.queues), len(s.devices))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(StageProgram, func() error {
		program, err := s.ctx.NewProgram(p.cfg.KernelSource)
		if err != nil {
			return err
		}
		s.program = program
		p.res.push("program", program.Release)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := p.stage(StageBuild, s.program.Build); err != nil {
		return nil, err
	}

	err = p.stage(StageKernel, func() error {
		kernel, err := s.program.Kernel(p.cfg.EntryPoint)
		if err != nil {
			return err
		}
		s.kernel = kernel
		p.res.push("kernel", kernel.Release)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// dispatch queries each device's work-group size, plans the launches and
// enqueues them. It does not wait for completion.
func (p *Pipeline) dispatch(s *session) ([]Dispatch, error) {
	locals := make([]int, len(s.devices))
	weights := make([]int, len(s.devices))
	for i, info := range s.devices {
		local, err := s.kernel.WorkGroupSize(i)
		if err != nil {
			return nil, deviceErr(StageDispatch, i, err)
		}
		fmt.Fprintf(p.out, "info: local work group size for device %d is %d\n", i, local)
		if local <= 0 {
			return nil, deviceErr(StageDispatch, i, fmt.Errorf("%w: %d", ErrInvalidWorkGroup, local))
		}
		locals[i] = local
		weights[i] = int(info.MaxComputeUnits)
	}

	ranges, err := planRanges(p.cfg.Policy, p.cfg.Count, locals, weights)
	if err != nil {
		return nil, err
	}

	dispatches := make([]Dispatch, 0, len(ranges))
	for i, r := range ranges {
		if r.Global == 0 {
			slog.Debug("Device left idle", "device", i)
			continue
		}
		if err := s.queues[i].Enqueue(s.kernel, r); err != nil {
			return dispatches, deviceErr(StageDispatch, i, err)
		}
		slog.Debug("Kernel enqueued", "device", i, "offset", r.Offset, "global", r.Global, "local", r.Local)
		dispatches = append(dispatches, Dispatch{Device: i, Info: s.devices[i], Range: r})
	}
	return dispatches, nil
}

// finishAll drains every queue, even after one of them fails.
func finishAll(queues []Queue) error {
	var errs []error
	for i, q := range queues {
		if err := q.Finish(); err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func bindSquareArgs(k Kernel, in, out Buffer, count uint32) error {
	if err := k.SetBufferArg(0, in); err != nil {
		return fmt.Errorf("argument 0 (input): %w", err)
	}
	if err := k.SetBufferArg(1, out); err != nil {
		return fmt.Errorf("argument 1 (output): %w", err)
	}
	if err := k.SetUint32Arg(2, count); err != nil {
		return fmt.Errorf("argument 2 (count): %w", err)
	}
	return nil
}

func (p *Pipeline) stage(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	if err != nil {
		err = stageErr(stage, err)
	}

	ev := StageEvent{Stage: stage, Duration: time.Since(start), Err: err}
	p.events = append(p.events, ev)
	if p.OnStage != nil {
		p.OnStage(ev)
	}

	if err != nil {
		slog.Debug("Stage failed", "stage", stage, "duration", ev.Duration, "err", err)
	} else {
		slog.Debug("Stage complete", "stage", stage, "duration", ev.Duration)
	}
	return err
}

func (p *Pipeline) teardown() error {
	err := p.res.releaseAll()
	if err != nil {
		slog.Warn("Teardown reported errors", "err", err)
		return stageErr(StageTeardown, err)
	}
	return nil
}
