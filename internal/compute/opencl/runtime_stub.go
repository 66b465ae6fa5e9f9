//go:build !gpu

package opencl

import "github.com/cwbudde/clsquare/internal/compute/device"

// Context is a placeholder when OpenCL support is not compiled.
type Context struct {
	Devices []device.Info
}

// Queue is a placeholder when OpenCL support is not compiled.
type Queue struct{}

// Program is a placeholder when OpenCL support is not compiled.
type Program struct{}

// Kernel is a placeholder when OpenCL support is not compiled.
type Kernel struct{}

// Buffer is a placeholder when OpenCL support is not compiled.
type Buffer struct{}

// Available reports whether OpenCL support is compiled in.
func Available() bool { return false }

// CreateContext returns ErrNotBuilt.
func CreateContext(device.Type) (*Context, error) { return nil, ErrNotBuilt }

// EnumeratePlatforms returns ErrNotBuilt.
func EnumeratePlatforms() ([]device.PlatformInfo, error) { return nil, ErrNotBuilt }

func (c *Context) NewQueue(int) (*Queue, error) { return nil, ErrNotBuilt }
func (c *Context) NewProgram(string) (*Program, error) { return nil, ErrNotBuilt }
func (c *Context) NewInputBuffer([]float32) (*Buffer, error) { return nil, ErrNotBuilt }
func (c *Context) NewOutputBuffer(int) (*Buffer, error) { return nil, ErrNotBuilt }
func (c *Context) Release() error { return nil }

func (q *Queue) Device() device.Info { return device.Info{} }
func (q *Queue) EnqueueNDRange(*Kernel, int, int, int) error { return ErrNotBuilt }
func (q *Queue) Finish() error { return ErrNotBuilt }
func (q *Queue) ReadBuffer(*Buffer, []float32) error { return ErrNotBuilt }
func (q *Queue) Release() error { return nil }

func (p *Program) Build() error { return ErrNotBuilt }
func (p *Program) Kernel(string) (*Kernel, error) { return nil, ErrNotBuilt }
func (p *Program) Release() error { return nil }

func (k *Kernel) Name() string { return "" }
func (k *Kernel) SetBufferArg(int, *Buffer) error { return ErrNotBuilt }
func (k *Kernel) SetUint32Arg(int, uint32) error { return ErrNotBuilt }
func (k *Kernel) WorkGroupSize(int) (int, error) { return 0, ErrNotBuilt }
func (k *Kernel) Release() error { return nil }

func (b *Buffer) Len() int { return 0 }
func (b *Buffer) Release() error { return nil }
