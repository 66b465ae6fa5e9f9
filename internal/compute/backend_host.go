package compute

import (
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"sync"

	"github.com/cwbudde/clsquare/internal/compute/device"
)

const (
	hostWorkGroupSize = 256
	hostQueueDepth    = 64
)

// kernelEntryPattern finds entry points in OpenCL C source.
var kernelEntryPattern = regexp.MustCompile(`__kernel\s+void\s+([A-Za-z_]\w*)\s*\(`)

// hostKernelSpec is the host implementation of a device entry point. run is called
// once per work-group with the launch's argument snapshot.
type hostKernelSpec struct {
	arity int
	run   func(args []any, lo, hi int) error
}

var hostKernels = map[string]hostKernelSpec{
	"square": {arity: 3, run: squareHost},
}

// HostDevices returns n simulated device descriptions of class typ.
func HostDevices(n int, typ device.Type) []device.Info {
	devices := make([]device.Info, n)
	for i := range devices {
		devices[i] = device.Info{
			Name:             fmt.Sprintf("host-sim-%d", i),
			Vendor:           "clsquare",
			Version:          "host simulation",
			Type:             typ,
			MaxComputeUnits:  uint32(runtime.NumCPU()),
			MaxWorkGroupSize: hostWorkGroupSize,
		}
	}
	return devices
}

// HostBackend runs kernels on the CPU. Each device's queue is a goroutine that
// executes commands in submission order, so devices run concurrently while the
// caller only blocks in Finish and ReadBuffer.
type HostBackend struct {
	devices []device.Info
}

// NewHostBackend returns a backend simulating the given devices.
func NewHostBackend(devices ...device.Info) *HostBackend {
	return &HostBackend{devices: devices}
}

func (b *HostBackend) Name() string { return string(BackendHost) }

func (b *HostBackend) CreateContext(class device.Type) (Context, error) {
	var matched []device.Info
	for _, d := range b.devices {
		if d.Type.Matches(class) {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDevices, class)
	}
	return &hostContext{devices: matched}, nil
}

type hostContext struct {
	mu       sync.Mutex
	devices  []device.Info
	released bool
}

func (c *hostContext) Devices() []device.Info {
	return append([]device.Info(nil), c.devices...)
}

func (c *hostContext) live() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	return nil
}

func (c *hostContext) NewQueue(index int) (Queue, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(c.devices) {
		return nil, fmt.Errorf("device index %d out of range [0,%d)", index, len(c.devices))
	}
	return newHostQueue(c.devices[index]), nil
}

func (c *hostContext) NewProgram(source string) (Program, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	return &hostProgram{source: source, ctx: c}, nil
}

func (c *hostContext) NewInputBuffer(host []float32) (Buffer, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	if len(host) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrLengthMismatch)
	}
	return &hostBuffer{data: append([]float32(nil), host...)}, nil
}

func (c *hostContext) NewOutputBuffer(count int) (Buffer, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: output count %d", ErrLengthMismatch, count)
	}
	return &hostBuffer{data: make([]float32, count)}, nil
}

func (c *hostContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	c.released = true
	return nil
}

type hostProgram struct {
	source  string
	ctx     *hostContext
	entries map[string]bool
}

// Build scans the source for entry points. Every entry point needs a host
// implementation; the requested kernel name is not checked here.
func (p *hostProgram) Build() error {
	matches := kernelEntryPattern.FindAllStringSubmatch(p.source, -1)
	if len(matches) == 0 {
		return fmt.Errorf("%w: no __kernel entry points in source", ErrBuildFailed)
	}

	entries := make(map[string]bool, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := hostKernels[name]; !ok {
			return fmt.Errorf("%w: no host implementation for kernel %q", ErrBuildFailed, name)
		}
		entries[name] = true
	}

	p.entries = entries
	slog.Debug("Host program built", "entries", len(entries), "devices", len(p.ctx.devices))
	return nil
}

func (p *hostProgram) Kernel(name string) (Kernel, error) {
	if p.entries == nil {
		return nil, ErrProgramNotBuilt
	}
	if !p.entries[name] {
		return nil, fmt.Errorf("%w: %q", ErrKernelNotFound, name)
	}
	spec := hostKernels[name]
	return &hostKernel{name: name, spec: spec, ctx: p.ctx, args: make([]any, spec.arity)}, nil
}

func (p *hostProgram) Release() error {
	p.entries = nil
	return nil
}

type hostKernel struct {
	name string
	spec hostKernelSpec
	ctx  *hostContext

	mu   sync.Mutex
	args []any
}

func (k *hostKernel) Name() string { return k.name }

func (k *hostKernel) setArg(index int, v any) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("%w: index %d, kernel %s takes %d", ErrArgument, index, k.name, len(k.args))
	}
	k.args[index] = v
	return nil
}

func (k *hostKernel) SetBufferArg(index int, b Buffer) error {
	hb, ok := b.(*hostBuffer)
	if !ok {
		return ErrForeignHandle
	}
	return k.setArg(index, hb)
}

func (k *hostKernel) SetUint32Arg(index int, v uint32) error {
	return k.setArg(index, v)
}

func (k *hostKernel) WorkGroupSize(index int) (int, error) {
	if index < 0 || index >= len(k.ctx.devices) {
		return 0, fmt.Errorf("device index %d out of range [0,%d)", index, len(k.ctx.devices))
	}
	return k.ctx.devices[index].MaxWorkGroupSize, nil
}

// snapshot captures the bound arguments at enqueue time.
func (k *hostKernel) snapshot() ([]any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, a := range k.args {
		if a == nil {
			return nil, fmt.Errorf("%w: argument %d of %s not set", ErrArgument, i, k.name)
		}
	}
	return append([]any(nil), k.args...), nil
}

func (k *hostKernel) Release() error { return nil }

type hostBuffer struct {
	mu   sync.RWMutex
	data []float32
}

func (b *hostBuffer) Len() int { return len(b.data) }

func (b *hostBuffer) Release() error { return nil }

type hostCommand struct {
	run  func() error
	done chan struct{}
}

type hostQueue struct {
	info device.Info
	cmds chan hostCommand
	exit chan struct{}

	mu     sync.Mutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newHostQueue(info device.Info) *hostQueue {
	q := &hostQueue{
		info: info,
		cmds: make(chan hostCommand, hostQueueDepth),
		exit: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *hostQueue) loop() {
	defer close(q.exit)
	for cmd := range q.cmds {
		if cmd.run != nil {
			if err := cmd.run(); err != nil {
				q.errMu.Lock()
				if q.err == nil {
					q.err = err
				}
				q.errMu.Unlock()
			}
		}
		if cmd.done != nil {
			close(cmd.done)
		}
	}
}

func (q *hostQueue) submit(cmd hostCommand) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrReleased
	}
	q.cmds <- cmd
	return nil
}

func (q *hostQueue) Device() device.Info { return q.info }

func (q *hostQueue) Enqueue(k Kernel, r Range) error {
	hk, ok := k.(*hostKernel)
	if !ok {
		return ErrForeignHandle
	}
	if r.Local <= 0 || r.Global%r.Local != 0 {
		return fmt.Errorf("%w: global %d, local %d", ErrInvalidWorkGroup, r.Global, r.Local)
	}
	if r.Local > q.info.MaxWorkGroupSize {
		return fmt.Errorf("%w: local %d exceeds device maximum %d", ErrInvalidWorkGroup, r.Local, q.info.MaxWorkGroupSize)
	}

	args, err := hk.snapshot()
	if err != nil {
		return err
	}

	return q.submit(hostCommand{run: func() error {
		end := r.Offset + r.Global
		for lo := r.Offset; lo < end; lo += r.Local {
			if err := hk.spec.run(args, lo, lo+r.Local); err != nil {
				return fmt.Errorf("%s on %s: %w", hk.name, q.info.Name, err)
			}
		}
		return nil
	}})
}

func (q *hostQueue) Finish() error {
	done := make(chan struct{})
	if err := q.submit(hostCommand{done: done}); err != nil {
		return err
	}
	<-done

	q.errMu.Lock()
	defer q.errMu.Unlock()
	err := q.err
	q.err = nil
	return err
}

func (q *hostQueue) ReadBuffer(b Buffer, dst []float32) error {
	hb, ok := b.(*hostBuffer)
	if !ok {
		return ErrForeignHandle
	}
	if len(dst) > hb.Len() {
		return fmt.Errorf("%w: read of %d values from buffer of %d", ErrLengthMismatch, len(dst), hb.Len())
	}

	done := make(chan struct{})
	err := q.submit(hostCommand{
		run: func() error {
			hb.mu.RLock()
			defer hb.mu.RUnlock()
			copy(dst, hb.data)
			return nil
		},
		done: done,
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}

func (q *hostQueue) Release() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrReleased
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()

	<-q.exit
	return nil
}

// squareHost is the host form of the square kernel over work items [lo,hi).
func squareHost(args []any, lo, hi int) error {
	in, ok := args[0].(*hostBuffer)
	if !ok {
		return fmt.Errorf("%w: argument 0 must be a buffer", ErrArgument)
	}
	out, ok := args[1].(*hostBuffer)
	if !ok {
		return fmt.Errorf("%w: argument 1 must be a buffer", ErrArgument)
	}
	count, ok := args[2].(uint32)
	if !ok {
		return fmt.Errorf("%w: argument 2 must be an unsigned int", ErrArgument)
	}
	if in == out {
		return fmt.Errorf("%w: input and output alias", ErrArgument)
	}

	in.mu.RLock()
	defer in.mu.RUnlock()
	out.mu.Lock()
	defer out.mu.Unlock()

	n := int(count)
	if n > len(in.data) || n > len(out.data) {
		return fmt.Errorf("%w: count %d exceeds buffers (%d, %d)", ErrArgument, n, len(in.data), len(out.data))
	}
	for i := lo; i < hi && i < n; i++ {
		out.data[i] = in.data[i] * in.data[i]
	}
	return nil
}
