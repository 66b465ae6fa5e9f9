//go:build blackcl

package compute

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/clsquare/internal/compute/device"
	"gitlab.com/microo8/blackcl"
)

// blackclLocalSize is used as the work-group size; blackcl exposes no kernel
// work-group query.
const blackclLocalSize = 64

// blackclBackend drives the first blackcl device of the requested class. Every
// blackcl device carries its own context, so the device set has exactly one
// member.
type blackclBackend struct{}

func newBlackCLBackend() (Backend, error) {
	return blackclBackend{}, nil
}

func (blackclBackend) Name() string { return string(BackendBlackCL) }

// blackclDeviceType maps a device class to blackcl's device type filter.
func blackclDeviceType(class device.Type) (blackcl.DeviceType, error) {
	switch class {
	case device.TypeGPU:
		return blackcl.DeviceTypeGPU, nil
	case device.TypeCPU:
		return blackcl.DeviceTypeCPU, nil
	case device.TypeAccelerator:
		return blackcl.DeviceTypeAccelerator, nil
	case device.TypeDefault:
		return blackcl.DeviceTypeDefault, nil
	case device.TypeAll:
		return blackcl.DeviceTypeAll, nil
	default:
		var none blackcl.DeviceType
		return none, fmt.Errorf("%w: unsupported device type %q", ErrNoDevices, class)
	}
}

func (blackclBackend) CreateContext(class device.Type) (Context, error) {
	typ, err := blackclDeviceType(class)
	if err != nil {
		return nil, err
	}

	devices, err := blackcl.GetDevices(typ)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoDevices, class, err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDevices, class)
	}

	dev := devices[0]
	for _, extra := range devices[1:] {
		if err := extra.Release(); err != nil {
			slog.Warn("Failed to release unused blackcl device", "device", extra.Name(), "error", err)
		}
	}

	infoType := class
	if class == device.TypeDefault || class == device.TypeAll {
		infoType = device.TypeDefault
	}
	return &blackclContext{
		dev: dev,
		info: device.Info{
			Name:             dev.Name(),
			Vendor:           dev.Vendor(),
			Version:          dev.Version(),
			Type:             infoType,
			MaxComputeUnits:  1,
			MaxWorkGroupSize: blackclLocalSize,
		},
	}, nil
}

type blackclContext struct {
	dev  *blackcl.Device
	info device.Info
}

func (c *blackclContext) Devices() []device.Info { return []device.Info{c.info} }

func (c *blackclContext) NewQueue(index int) (Queue, error) {
	if index != 0 {
		return nil, fmt.Errorf("device index %d out of range [0,1)", index)
	}
	return &blackclQueue{info: c.info}, nil
}

func (c *blackclContext) NewProgram(source string) (Program, error) {
	return &blackclProgram{dev: c.dev, source: source}, nil
}

func (c *blackclContext) NewInputBuffer(host []float32) (Buffer, error) {
	v, err := c.dev.NewVector(len(host))
	if err != nil {
		return nil, fmt.Errorf("blackcl: failed to create input vector: %w", err)
	}
	if err := <-v.Copy(host); err != nil {
		v.Release()
		return nil, fmt.Errorf("blackcl: failed to copy input to device: %w", err)
	}
	return &blackclBuffer{v: v, n: len(host)}, nil
}

func (c *blackclContext) NewOutputBuffer(count int) (Buffer, error) {
	v, err := c.dev.NewVector(count)
	if err != nil {
		return nil, fmt.Errorf("blackcl: failed to create output vector: %w", err)
	}
	return &blackclBuffer{v: v, n: count}, nil
}

func (c *blackclContext) Release() error {
	if err := c.dev.Release(); err != nil {
		return fmt.Errorf("blackcl: failed to release device: %w", err)
	}
	return nil
}

type blackclProgram struct {
	dev    *blackcl.Device
	source string
	built  bool
}

// Build adds the source to the device. blackcl panics on compile errors.
func (p *blackclProgram) Build() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBuildFailed, r)
		}
	}()
	p.dev.AddProgram(p.source)
	p.built = true
	return nil
}

// Kernel resolves name. blackcl panics on unknown kernel names.
func (p *blackclProgram) Kernel(name string) (k Kernel, err error) {
	if !p.built {
		return nil, ErrProgramNotBuilt
	}
	defer func() {
		if r := recover(); r != nil {
			k = nil
			err = fmt.Errorf("%w: %q: %v", ErrKernelNotFound, name, r)
		}
	}()
	kernel := p.dev.Kernel(name)
	return &blackclKernel{k: kernel, name: name, args: make([]any, 3)}, nil
}

func (p *blackclProgram) Release() error { return nil }

type blackclKernel struct {
	k    *blackcl.Kernel
	name string

	mu   sync.Mutex
	args []any
}

func (k *blackclKernel) Name() string { return k.name }

func (k *blackclKernel) setArg(index int, v any) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("%w: index %d", ErrArgument, index)
	}
	k.args[index] = v
	return nil
}

func (k *blackclKernel) SetBufferArg(index int, b Buffer) error {
	bb, ok := b.(*blackclBuffer)
	if !ok {
		return ErrForeignHandle
	}
	return k.setArg(index, bb.v)
}

func (k *blackclKernel) SetUint32Arg(index int, v uint32) error {
	return k.setArg(index, v)
}

func (k *blackclKernel) WorkGroupSize(index int) (int, error) {
	if index != 0 {
		return 0, fmt.Errorf("device index %d out of range [0,1)", index)
	}
	return blackclLocalSize, nil
}

func (k *blackclKernel) Release() error { return nil }

type blackclBuffer struct {
	v *blackcl.Vector
	n int
}

func (b *blackclBuffer) Len() int { return b.n }

func (b *blackclBuffer) Release() error {
	if err := b.v.Release(); err != nil {
		return fmt.Errorf("blackcl: failed to release vector: %w", err)
	}
	return nil
}

type blackclQueue struct {
	info device.Info

	mu      sync.Mutex
	pending []<-chan error
}

func (q *blackclQueue) Device() device.Info { return q.info }

func (q *blackclQueue) Enqueue(k Kernel, r Range) error {
	bk, ok := k.(*blackclKernel)
	if !ok {
		return ErrForeignHandle
	}
	if r.Offset != 0 {
		return fmt.Errorf("blackcl: global offsets are not supported (offset %d)", r.Offset)
	}

	bk.mu.Lock()
	args := append([]any(nil), bk.args...)
	bk.mu.Unlock()

	done := bk.k.Global(r.Global).Local(r.Local).Run(args...)

	q.mu.Lock()
	q.pending = append(q.pending, done)
	q.mu.Unlock()
	return nil
}

func (q *blackclQueue) Finish() error {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	var first error
	for _, done := range pending {
		if err := <-done; err != nil && first == nil {
			first = fmt.Errorf("blackcl: kernel run failed: %w", err)
		}
	}
	return first
}

func (q *blackclQueue) ReadBuffer(b Buffer, dst []float32) error {
	bb, ok := b.(*blackclBuffer)
	if !ok {
		return ErrForeignHandle
	}
	if err := q.Finish(); err != nil {
		return err
	}
	data, err := bb.v.Data()
	if err != nil {
		return fmt.Errorf("blackcl: failed to read vector: %w", err)
	}
	if len(dst) > len(data) {
		return fmt.Errorf("%w: read of %d values from vector of %d", ErrLengthMismatch, len(dst), len(data))
	}
	copy(dst, data)
	return nil
}

func (q *blackclQueue) Release() error { return nil }
