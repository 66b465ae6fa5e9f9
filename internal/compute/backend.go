package compute

import (
	"fmt"
	"strings"

	"github.com/cwbudde/clsquare/internal/compute/device"
)

// Backend creates contexts over one family of devices.
type Backend interface {
	Name() string
	// CreateContext groups every device of the given class into one context. It
	// fails with ErrNoDevices when the class has no devices.
	CreateContext(class device.Type) (Context, error)
}

// Context binds a device set for the lifetime of a run. Queues, programs and
// buffers are always created against exactly one context.
type Context interface {
	Devices() []device.Info
	NewQueue(index int) (Queue, error)
	NewProgram(source string) (Program, error)
	// NewInputBuffer allocates a read-only buffer initialised from host.
	NewInputBuffer(host []float32) (Buffer, error)
	// NewOutputBuffer allocates a write-only buffer of count values.
	NewOutputBuffer(count int) (Buffer, error)
	Release() error
}

// Program is kernel source compiled for every device of its context.
type Program interface {
	Build() error
	// Kernel fails with ErrKernelNotFound when the built program has no entry
	// point called name.
	Kernel(name string) (Kernel, error)
	Release() error
}

// Kernel is an invocable entry point. Bound arguments persist across enqueues
// until rebound.
type Kernel interface {
	Name() string
	SetBufferArg(index int, b Buffer) error
	SetUint32Arg(index int, v uint32) error
	// WorkGroupSize reports the preferred work-group size on device index.
	WorkGroupSize(index int) (int, error)
	Release() error
}

// Queue is the ordered command stream of one device.
type Queue interface {
	Device() device.Info
	// Enqueue submits a launch and returns without waiting for it.
	Enqueue(k Kernel, r Range) error
	// Finish blocks until every submitted command has completed.
	Finish() error
	// ReadBuffer copies len(dst) values out of b, blocking until done.
	ReadBuffer(b Buffer, dst []float32) error
	Release() error
}

// Buffer is device memory holding float32 values.
type Buffer interface {
	Len() int
	Release() error
}

// BackendName identifies a backend implementation.
type BackendName string

const (
	BackendOpenCL  BackendName = "opencl"
	BackendHost    BackendName = "host"
	BackendBlackCL BackendName = "blackcl"
)

// BackendOptions configures backends that need more than a name.
type BackendOptions struct {
	// HostDevices is the number of simulated devices of the host backend.
	HostDevices int
	// HostDeviceType is the class reported by simulated devices.
	HostDeviceType device.Type
}

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) BackendName {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "opencl", "cl", "gpu":
		return BackendOpenCL
	case "host", "sim", "cpu":
		return BackendHost
	case "blackcl":
		return BackendBlackCL
	default:
		return BackendName(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []BackendName {
	return []BackendName{BackendOpenCL, BackendHost, BackendBlackCL}
}

// NewBackend constructs the requested backend.
func NewBackend(name string, opts BackendOptions) (Backend, error) {
	switch NormalizeBackend(name) {
	case BackendOpenCL:
		return newOpenCLBackend()
	case BackendHost:
		n := opts.HostDevices
		if n <= 0 {
			n = 1
		}
		typ := opts.HostDeviceType
		if typ == "" {
			typ = device.TypeCPU
		}
		return NewHostBackend(HostDevices(n, typ)...), nil
	case BackendBlackCL:
		return newBlackCLBackend()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
