package compute

import (
	"errors"
	"fmt"

	"github.com/cwbudde/clsquare/internal/compute/device"
	"github.com/cwbudde/clsquare/internal/compute/opencl"
)

// openCLBackend adapts the cgo runtime in package opencl to the Backend
// interfaces.
type openCLBackend struct{}

func newOpenCLBackend() (Backend, error) {
	if !opencl.Available() {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, opencl.ErrNotBuilt)
	}
	return openCLBackend{}, nil
}

func (openCLBackend) Name() string { return string(BackendOpenCL) }

func (openCLBackend) CreateContext(class device.Type) (Context, error) {
	ctx, err := opencl.CreateContext(class)
	if err != nil {
		return nil, translateOpenCLError(err)
	}
	return &clContext{ctx: ctx}, nil
}

// translateOpenCLError tags runtime sentinels with their compute equivalents so
// callers can match either.
func translateOpenCLError(err error) error {
	switch {
	case errors.Is(err, opencl.ErrNoDevices):
		return fmt.Errorf("%w: %w", ErrNoDevices, err)
	case errors.Is(err, opencl.ErrBuildFailed):
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	case errors.Is(err, opencl.ErrKernelNotFound):
		return fmt.Errorf("%w: %w", ErrKernelNotFound, err)
	case errors.Is(err, opencl.ErrNotBuilt):
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	default:
		return err
	}
}

type clContext struct {
	ctx *opencl.Context
}

func (c *clContext) Devices() []device.Info {
	return append([]device.Info(nil), c.ctx.Devices...)
}

func (c *clContext) NewQueue(index int) (Queue, error) {
	q, err := c.ctx.NewQueue(index)
	if err != nil {
		return nil, translateOpenCLError(err)
	}
	return &clQueue{q: q}, nil
}

func (c *clContext) NewProgram(source string) (Program, error) {
	p, err := c.ctx.NewProgram(source)
	if err != nil {
		return nil, translateOpenCLError(err)
	}
	return &clProgram{p: p}, nil
}

func (c *clContext) NewInputBuffer(host []float32) (Buffer, error) {
	b, err := c.ctx.NewInputBuffer(host)
	if err != nil {
		return nil, translateOpenCLError(err)
	}
	return &clBuffer{b: b}, nil
}

func (c *clContext) NewOutputBuffer(count int) (Buffer, error) {
	b, err := c.ctx.NewOutputBuffer(count)
	if err != nil {
		return nil, translateOpenCLError(err)
	}
	return &clBuffer{b: b}, nil
}

func (c *clContext) Release() error { return c.ctx.Release() }

type clProgram struct {
	p *opencl.Program
}

func (p *clProgram) Build() error {
	return translateOpenCLError(p.p.Build())
}

func (p *clProgram) Kernel(name string) (Kernel, error) {
	k, err := p.p.Kernel(name)
	if err != nil {
		return nil, translateOpenCLError(err)
	}
	return &clKernel{k: k}, nil
}

func (p *clProgram) Release() error { return p.p.Release() }

type clKernel struct {
	k *opencl.Kernel
}

func (k *clKernel) Name() string { return k.k.Name() }

func (k *clKernel) SetBufferArg(index int, b Buffer) error {
	cb, ok := b.(*clBuffer)
	if !ok {
		return ErrForeignHandle
	}
	return k.k.SetBufferArg(index, cb.b)
}

func (k *clKernel) SetUint32Arg(index int, v uint32) error {
	return k.k.SetUint32Arg(index, v)
}

func (k *clKernel) WorkGroupSize(index int) (int, error) {
	return k.k.WorkGroupSize(index)
}

func (k *clKernel) Release() error { return k.k.Release() }

type clBuffer struct {
	b *opencl.Buffer
}

func (b *clBuffer) Len() int { return b.b.Len() }

func (b *clBuffer) Release() error { return b.b.Release() }

type clQueue struct {
	q *opencl.Queue
}

func (q *clQueue) Device() device.Info { return q.q.Device() }

func (q *clQueue) Enqueue(k Kernel, r Range) error {
	ck, ok := k.(*clKernel)
	if !ok {
		return ErrForeignHandle
	}
	return q.q.EnqueueNDRange(ck.k, r.Offset, r.Global, r.Local)
}

func (q *clQueue) Finish() error { return q.q.Finish() }

func (q *clQueue) ReadBuffer(b Buffer, dst []float32) error {
	cb, ok := b.(*clBuffer)
	if !ok {
		return ErrForeignHandle
	}
	return q.q.ReadBuffer(cb.b, dst)
}

func (q *clQueue) Release() error { return q.q.Release() }
