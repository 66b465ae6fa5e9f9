package compute

import (
	"testing"

	"github.com/cwbudde/clsquare/internal/compute/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHostSquareKernel(t *testing.T, ctx Context) Kernel {
	t.Helper()

	program, err := ctx.NewProgram(SquareKernelSource)
	require.NoError(t, err)
	require.NoError(t, program.Build())

	kernel, err := program.Kernel("square")
	require.NoError(t, err)
	return kernel
}

func TestHostBackendContextFiltersByClass(t *testing.T) {
	devices := append(HostDevices(2, device.TypeGPU), HostDevices(1, device.TypeCPU)...)
	backend := NewHostBackend(devices...)

	ctx, err := backend.CreateContext(device.TypeGPU)
	require.NoError(t, err)
	assert.Len(t, ctx.Devices(), 2)

	ctx, err = backend.CreateContext(device.TypeAll)
	require.NoError(t, err)
	assert.Len(t, ctx.Devices(), 3)

	_, err = backend.CreateContext(device.TypeAccelerator)
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestHostProgramBuild(t *testing.T) {
	ctx, err := NewHostBackend(HostDevices(1, device.TypeGPU)...).CreateContext(device.TypeGPU)
	require.NoError(t, err)

	program, err := ctx.NewProgram("float helper(float x) { return x; }")
	require.NoError(t, err)
	assert.ErrorIs(t, program.Build(), ErrBuildFailed)

	program, err = ctx.NewProgram(SquareKernelSource)
	require.NoError(t, err)

	_, err = program.Kernel("square")
	assert.ErrorIs(t, err, ErrProgramNotBuilt)

	require.NoError(t, program.Build())
	_, err = program.Kernel("squareX")
	assert.ErrorIs(t, err, ErrKernelNotFound)
}

func TestHostQueueRunsKernelAsynchronously(t *testing.T) {
	ctx, err := NewHostBackend(HostDevices(1, device.TypeGPU)...).CreateContext(device.TypeGPU)
	require.NoError(t, err)

	kernel := newHostSquareKernel(t, ctx)
	queue, err := ctx.NewQueue(0)
	require.NoError(t, err)
	defer queue.Release()

	in, err := ctx.NewInputBuffer([]float32{1, 2, 3})
	require.NoError(t, err)
	out, err := ctx.NewOutputBuffer(3)
	require.NoError(t, err)

	require.NoError(t, kernel.SetBufferArg(0, in))
	require.NoError(t, kernel.SetBufferArg(1, out))
	require.NoError(t, kernel.SetUint32Arg(2, 3))

	require.NoError(t, queue.Enqueue(kernel, Range{Global: 256, Local: 256}))
	require.NoError(t, queue.Finish())

	got := make([]float32, 3)
	require.NoError(t, queue.ReadBuffer(out, got))
	assert.Equal(t, []float32{1, 4, 9}, got)
}

func TestHostQueueArgumentsCapturedAtEnqueue(t *testing.T) {
	ctx, err := NewHostBackend(HostDevices(1, device.TypeGPU)...).CreateContext(device.TypeGPU)
	require.NoError(t, err)

	kernel := newHostSquareKernel(t, ctx)
	queue, err := ctx.NewQueue(0)
	require.NoError(t, err)
	defer queue.Release()

	in, _ := ctx.NewInputBuffer([]float32{2, 2})
	first, _ := ctx.NewOutputBuffer(2)
	second, _ := ctx.NewOutputBuffer(2)

	require.NoError(t, kernel.SetBufferArg(0, in))
	require.NoError(t, kernel.SetBufferArg(1, first))
	require.NoError(t, kernel.SetUint32Arg(2, 1))
	require.NoError(t, queue.Enqueue(kernel, Range{Global: 2, Local: 2}))

	require.NoError(t, kernel.SetBufferArg(1, second))
	require.NoError(t, queue.Finish())

	got := make([]float32, 2)
	require.NoError(t, queue.ReadBuffer(first, got))
	assert.Equal(t, []float32{4, 0}, got, "count bounds the writes")

	require.NoError(t, queue.ReadBuffer(second, got))
	assert.Equal(t, []float32{0, 0}, got)
}

func TestHostQueueRejectsBadLaunch(t *testing.T) {
	ctx, err := NewHostBackend(HostDevices(1, device.TypeGPU)...).CreateContext(device.TypeGPU)
	require.NoError(t, err)

	kernel := newHostSquareKernel(t, ctx)
	queue, err := ctx.NewQueue(0)
	require.NoError(t, err)
	defer queue.Release()

	assert.ErrorIs(t, queue.Enqueue(kernel, Range{Global: 10, Local: 4}), ErrInvalidWorkGroup)
	assert.ErrorIs(t, queue.Enqueue(kernel, Range{Global: 1024, Local: 512}), ErrInvalidWorkGroup)
	assert.ErrorIs(t, queue.Enqueue(kernel, Range{Global: 256, Local: 256}), ErrArgument)
}

func TestHostHandlesReleaseOnce(t *testing.T) {
	ctx, err := NewHostBackend(HostDevices(1, device.TypeGPU)...).CreateContext(device.TypeGPU)
	require.NoError(t, err)

	queue, err := ctx.NewQueue(0)
	require.NoError(t, err)

	require.NoError(t, queue.Release())
	assert.ErrorIs(t, queue.Release(), ErrReleased)
	assert.ErrorIs(t, queue.Finish(), ErrReleased)

	require.NoError(t, ctx.Release())
	assert.ErrorIs(t, ctx.Release(), ErrReleased)

	_, err = ctx.NewQueue(0)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestHostForeignHandles(t *testing.T) {
	ctx, err := NewHostBackend(HostDevices(1, device.TypeGPU)...).CreateContext(device.TypeGPU)
	require.NoError(t, err)

	kernel := newHostSquareKernel(t, ctx)
	assert.ErrorIs(t, kernel.SetBufferArg(0, &clBuffer{}), ErrForeignHandle)
}
