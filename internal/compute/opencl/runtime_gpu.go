//go:build gpu

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>

static const char* clsquare_error_string(cl_int status) {
	switch (status) {
	case CL_SUCCESS: return "CL_SUCCESS";
	case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
	case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
	case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
	case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
	case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
	case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
	case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
	case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
	case CL_INVALID_DEVICE_TYPE: return "CL_INVALID_DEVICE_TYPE";
	case CL_INVALID_PLATFORM: return "CL_INVALID_PLATFORM";
	case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
	case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
	case CL_INVALID_QUEUE_PROPERTIES: return "CL_INVALID_QUEUE_PROPERTIES";
	case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
	case CL_INVALID_HOST_PTR: return "CL_INVALID_HOST_PTR";
	case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
	case CL_INVALID_BUILD_OPTIONS: return "CL_INVALID_BUILD_OPTIONS";
	case CL_INVALID_PROGRAM: return "CL_INVALID_PROGRAM";
	case CL_INVALID_PROGRAM_EXECUTABLE: return "CL_INVALID_PROGRAM_EXECUTABLE";
	case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
	case CL_INVALID_KERNEL_DEFINITION: return "CL_INVALID_KERNEL_DEFINITION";
	case CL_INVALID_KERNEL: return "CL_INVALID_KERNEL";
	case CL_INVALID_ARG_INDEX: return "CL_INVALID_ARG_INDEX";
	case CL_INVALID_ARG_VALUE: return "CL_INVALID_ARG_VALUE";
	case CL_INVALID_ARG_SIZE: return "CL_INVALID_ARG_SIZE";
	case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
	case CL_INVALID_WORK_DIMENSION: return "CL_INVALID_WORK_DIMENSION";
	case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
	case CL_INVALID_WORK_ITEM_SIZE: return "CL_INVALID_WORK_ITEM_SIZE";
	case CL_INVALID_GLOBAL_OFFSET: return "CL_INVALID_GLOBAL_OFFSET";
	case CL_INVALID_EVENT_WAIT_LIST: return "CL_INVALID_EVENT_WAIT_LIST";
	case CL_INVALID_OPERATION: return "CL_INVALID_OPERATION";
	case CL_INVALID_BUFFER_SIZE: return "CL_INVALID_BUFFER_SIZE";
	default: return "CL_UNKNOWN_ERROR";
	}
}

static cl_context clsquare_context_from_type(cl_platform_id platform, cl_device_type type, cl_int *status) {
	cl_context_properties props[] = {
		CL_CONTEXT_PLATFORM, (cl_context_properties)platform,
		0
	};
	return clCreateContextFromType(props, type, NULL, NULL, status);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/cwbudde/clsquare/internal/compute/device"
)

const float32Size = C.size_t(unsafe.Sizeof(float32(0)))

// Context owns an OpenCL context and the device list it was created with.
type Context struct {
	context C.cl_context
	ids     []C.cl_device_id
	Devices []device.Info
}

// Queue is a command queue bound to one device of a Context.
type Queue struct {
	queue C.cl_command_queue
	info  device.Info
}

// Program is a program object created from source against a Context.
type Program struct {
	program C.cl_program
	ctx     *Context
}

// Kernel is a named entry point of a built Program.
type Kernel struct {
	kernel C.cl_kernel
	name   string
	ctx    *Context
}

// Buffer is a device memory object holding float32 values.
type Buffer struct {
	mem   C.cl_mem
	count int
}

// Available reports whether OpenCL support is compiled in.
func Available() bool { return true }

// CreateContext creates a context holding every device of the given class on the
// first platform that has any. The device list is read back from the context.
func CreateContext(class device.Type) (*Context, error) {
	platforms, err := platformIDs()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, pid := range platforms {
		var status C.cl_int
		ctx := C.clsquare_context_from_type(pid, deviceTypeFlag(class), &status)
		if status == C.CL_DEVICE_NOT_FOUND {
			continue
		}
		if status != C.CL_SUCCESS {
			lastErr = statusError("clCreateContextFromType", status)
			continue
		}

		c := &Context{context: ctx}
		if err := c.loadDevices(); err != nil {
			C.clReleaseContext(ctx)
			return nil, err
		}
		return c, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoDevices
}

// loadDevices fetches the context's devices: a size query, then a fetch into a
// slice sized from the answer.
func (c *Context) loadDevices() error {
	var size C.size_t
	status := C.clGetContextInfo(c.context, C.CL_CONTEXT_DEVICES, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return statusError("clGetContextInfo(devices size)", status)
	}

	count := int(size) / int(unsafe.Sizeof(C.cl_device_id(nil)))
	if count == 0 {
		return ErrNoDevices
	}

	ids := make([]C.cl_device_id, count)
	status = C.clGetContextInfo(c.context, C.CL_CONTEXT_DEVICES, size, unsafe.Pointer(&ids[0]), nil)
	if status != C.CL_SUCCESS {
		return statusError("clGetContextInfo(devices)", status)
	}

	infos := make([]device.Info, count)
	for i, id := range ids {
		info, err := buildDeviceInfo(id)
		if err != nil {
			return err
		}
		infos[i] = info
	}

	c.ids = ids
	c.Devices = infos
	return nil
}

// NewQueue creates a command queue for the device at index.
func (c *Context) NewQueue(index int) (*Queue, error) {
	if index < 0 || index >= len(c.ids) {
		return nil, fmt.Errorf("opencl: device index %d out of range [0,%d)", index, len(c.ids))
	}

	var status C.cl_int
	queue := C.clCreateCommandQueue(c.context, c.ids[index], 0, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateCommandQueue", status)
	}

	return &Queue{queue: queue, info: c.Devices[index]}, nil
}

// NewProgram creates an unbuilt program from source.
func (c *Context) NewProgram(source string) (*Program, error) {
	src := C.CString(source)
	defer C.free(unsafe.Pointer(src))

	var status C.cl_int
	program := C.clCreateProgramWithSource(c.context, 1, &src, nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateProgramWithSource", status)
	}

	return &Program{program: program, ctx: c}, nil
}

// NewInputBuffer allocates a read-only buffer initialised from host.
func (c *Context) NewInputBuffer(host []float32) (*Buffer, error) {
	if len(host) == 0 {
		return nil, ErrEmptyBuffer
	}

	var status C.cl_int
	mem := C.clCreateBuffer(c.context, C.CL_MEM_READ_ONLY|C.CL_MEM_COPY_HOST_PTR,
		C.size_t(len(host))*float32Size, unsafe.Pointer(&host[0]), &status)
	if status != C.CL_SUCCESS || mem == nil {
		return nil, statusError("clCreateBuffer(input)", status)
	}

	return &Buffer{mem: mem, count: len(host)}, nil
}

// NewOutputBuffer allocates a write-only buffer for count float32 values.
func (c *Context) NewOutputBuffer(count int) (*Buffer, error) {
	if count <= 0 {
		return nil, ErrEmptyBuffer
	}

	var status C.cl_int
	mem := C.clCreateBuffer(c.context, C.CL_MEM_WRITE_ONLY, C.size_t(count)*float32Size, nil, &status)
	if status != C.CL_SUCCESS || mem == nil {
		return nil, statusError("clCreateBuffer(output)", status)
	}

	return &Buffer{mem: mem, count: count}, nil
}

// Release releases the context.
func (c *Context) Release() error {
	if c == nil || c.context == nil {
		return nil
	}
	status := C.clReleaseContext(c.context)
	c.context = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseContext", status)
	}
	return nil
}

// Build compiles the program for every device of its context.
func (p *Program) Build() error {
	ids := p.ctx.ids
	status := C.clBuildProgram(p.program, C.cl_uint(len(ids)), &ids[0], nil, nil, nil)
	if status != C.CL_SUCCESS {
		for i, id := range ids {
			p.logBuildLog(i, id)
		}
		return fmt.Errorf("%w: %v", ErrBuildFailed, statusError("clBuildProgram", status))
	}
	return nil
}

func (p *Program) logBuildLog(index int, id C.cl_device_id) {
	var logSize C.size_t
	if status := C.clGetProgramBuildInfo(p.program, id, C.CL_PROGRAM_BUILD_LOG, 0, nil, &logSize); status != C.CL_SUCCESS {
		slog.Error("OpenCL: failed to fetch build log size", "device", index, "err", statusError("clGetProgramBuildInfo", status))
		return
	}
	if logSize <= 1 {
		return
	}

	buf := make([]byte, int(logSize))
	if status := C.clGetProgramBuildInfo(p.program, id, C.CL_PROGRAM_BUILD_LOG, logSize, unsafe.Pointer(&buf[0]), nil); status != C.CL_SUCCESS {
		slog.Error("OpenCL: failed to fetch build log", "device", index, "err", statusError("clGetProgramBuildInfo", status))
		return
	}

	slog.Error("OpenCL build log", "device", index, "log", trimNull(buf))
}

// Kernel resolves the named entry point.
func (p *Program) Kernel(name string) (*Kernel, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.cl_int
	kernel := C.clCreateKernel(p.program, cname, &status)
	if status == C.CL_INVALID_KERNEL_NAME {
		return nil, fmt.Errorf("%w: %q", ErrKernelNotFound, name)
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateKernel", status)
	}

	return &Kernel{kernel: kernel, name: name, ctx: p.ctx}, nil
}

// Release releases the program.
func (p *Program) Release() error {
	if p == nil || p.program == nil {
		return nil
	}
	status := C.clReleaseProgram(p.program)
	p.program = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseProgram", status)
	}
	return nil
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.name }

// SetBufferArg binds a memory object to argument index.
func (k *Kernel) SetBufferArg(index int, b *Buffer) error {
	status := C.clSetKernelArg(k.kernel, C.cl_uint(index), C.size_t(unsafe.Sizeof(b.mem)), unsafe.Pointer(&b.mem))
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clSetKernelArg(%d)", index), status)
	}
	return nil
}

// SetUint32Arg binds an unsigned int scalar to argument index.
func (k *Kernel) SetUint32Arg(index int, v uint32) error {
	value := C.cl_uint(v)
	status := C.clSetKernelArg(k.kernel, C.cl_uint(index), C.size_t(unsafe.Sizeof(value)), unsafe.Pointer(&value))
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clSetKernelArg(%d)", index), status)
	}
	return nil
}

// WorkGroupSize returns CL_KERNEL_WORK_GROUP_SIZE for the device at index.
func (k *Kernel) WorkGroupSize(index int) (int, error) {
	if index < 0 || index >= len(k.ctx.ids) {
		return 0, fmt.Errorf("opencl: device index %d out of range [0,%d)", index, len(k.ctx.ids))
	}

	var size C.size_t
	status := C.clGetKernelWorkGroupInfo(k.kernel, k.ctx.ids[index], C.CL_KERNEL_WORK_GROUP_SIZE,
		C.size_t(unsafe.Sizeof(size)), unsafe.Pointer(&size), nil)
	if status != C.CL_SUCCESS {
		return 0, statusError("clGetKernelWorkGroupInfo", status)
	}
	return int(size), nil
}

// Release releases the kernel.
func (k *Kernel) Release() error {
	if k == nil || k.kernel == nil {
		return nil
	}
	status := C.clReleaseKernel(k.kernel)
	k.kernel = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseKernel", status)
	}
	return nil
}

// Len returns the number of float32 elements the buffer holds.
func (b *Buffer) Len() int { return b.count }

// Release releases the memory object.
func (b *Buffer) Release() error {
	if b == nil || b.mem == nil {
		return nil
	}
	status := C.clReleaseMemObject(b.mem)
	b.mem = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseMemObject", status)
	}
	return nil
}

// Device returns the metadata of the queue's device.
func (q *Queue) Device() device.Info { return q.info }

// EnqueueNDRange enqueues a one-dimensional launch and returns without waiting.
func (q *Queue) EnqueueNDRange(k *Kernel, offset, global, local int) error {
	off := C.size_t(offset)
	g := C.size_t(global)
	l := C.size_t(local)

	var offPtr *C.size_t
	if offset > 0 {
		offPtr = &off
	}

	status := C.clEnqueueNDRangeKernel(q.queue, k.kernel, 1, offPtr, &g, &l, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueNDRangeKernel", status)
	}
	return nil
}

// Finish blocks until every command in the queue has completed.
func (q *Queue) Finish() error {
	status := C.clFinish(q.queue)
	if status != C.CL_SUCCESS {
		return statusError("clFinish", status)
	}
	return nil
}

// ReadBuffer copies len(dst) values from b into dst and blocks until done.
func (q *Queue) ReadBuffer(b *Buffer, dst []float32) error {
	if len(dst) == 0 {
		return nil
	}
	if len(dst) > b.count {
		return fmt.Errorf("opencl: read of %d values from buffer of %d", len(dst), b.count)
	}

	status := C.clEnqueueReadBuffer(q.queue, b.mem, C.CL_TRUE, 0,
		C.size_t(len(dst))*float32Size, unsafe.Pointer(&dst[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer", status)
	}
	return nil
}

// Release releases the command queue.
func (q *Queue) Release() error {
	if q == nil || q.queue == nil {
		return nil
	}
	status := C.clReleaseCommandQueue(q.queue)
	q.queue = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseCommandQueue", status)
	}
	return nil
}

// EnumeratePlatforms returns discovered platforms with their devices.
func EnumeratePlatforms() ([]device.PlatformInfo, error) {
	platforms, err := platformIDs()
	if err != nil {
		return nil, err
	}

	out := make([]device.PlatformInfo, 0, len(platforms))
	for _, pid := range platforms {
		name, err := getPlatformString(pid, C.CL_PLATFORM_NAME)
		if err != nil {
			return nil, err
		}
		vendor, err := getPlatformString(pid, C.CL_PLATFORM_VENDOR)
		if err != nil {
			return nil, err
		}
		version, err := getPlatformString(pid, C.CL_PLATFORM_VERSION)
		if err != nil {
			return nil, err
		}

		info := device.PlatformInfo{Name: name, Vendor: vendor, Version: version}

		devices, err := platformDevices(pid)
		if err != nil && !errors.Is(err, ErrNoDevices) {
			return nil, err
		}
		info.Devices = devices

		out = append(out, info)
	}
	return out, nil
}

func platformIDs() ([]C.cl_platform_id, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	err := platformQueryError(int32(status), uint32(count), func() error {
		return statusError("clGetPlatformIDs(count)", status)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}
	return ids, nil
}

func platformDevices(platform C.cl_platform_id) ([]device.Info, error) {
	var count C.cl_uint
	status := C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_ALL, 0, nil, &count)
	if status == C.CL_DEVICE_NOT_FOUND || (status == C.CL_SUCCESS && count == 0) {
		return nil, ErrNoDevices
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}

	ids := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_ALL, count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	infos := make([]device.Info, 0, len(ids))
	for _, id := range ids {
		info, err := buildDeviceInfo(id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func buildDeviceInfo(id C.cl_device_id) (device.Info, error) {
	name, err := getDeviceString(id, C.CL_DEVICE_NAME)
	if err != nil {
		return device.Info{}, err
	}
	vendor, err := getDeviceString(id, C.CL_DEVICE_VENDOR)
	if err != nil {
		return device.Info{}, err
	}
	version, err := getDeviceString(id, C.CL_DEVICE_VERSION)
	if err != nil {
		return device.Info{}, err
	}

	var rawType C.cl_device_type
	status := C.clGetDeviceInfo(id, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(rawType)), unsafe.Pointer(&rawType), nil)
	if status != C.CL_SUCCESS {
		return device.Info{}, statusError("clGetDeviceInfo(type)", status)
	}

	var computeUnits C.cl_uint
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(computeUnits)), unsafe.Pointer(&computeUnits), nil)
	if status != C.CL_SUCCESS {
		return device.Info{}, statusError("clGetDeviceInfo(computeUnits)", status)
	}

	var maxGroup C.size_t
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(maxGroup)), unsafe.Pointer(&maxGroup), nil)
	if status != C.CL_SUCCESS {
		return device.Info{}, statusError("clGetDeviceInfo(maxWorkGroupSize)", status)
	}

	return device.Info{
		Name:             name,
		Vendor:           vendor,
		Version:          version,
		Type:             mapDeviceType(rawType),
		MaxComputeUnits:  uint32(computeUnits),
		MaxWorkGroupSize: int(maxGroup),
	}, nil
}

func getPlatformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var size C.size_t
	status := C.clGetPlatformInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(value)", status)
	}
	return trimNull(buf), nil
}

func getDeviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var size C.size_t
	status := C.clGetDeviceInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(value)", status)
	}
	return trimNull(buf), nil
}

func deviceTypeFlag(class device.Type) C.cl_device_type {
	switch class {
	case device.TypeGPU:
		return C.CL_DEVICE_TYPE_GPU
	case device.TypeCPU:
		return C.CL_DEVICE_TYPE_CPU
	case device.TypeAccelerator:
		return C.CL_DEVICE_TYPE_ACCELERATOR
	case device.TypeAll:
		return C.CL_DEVICE_TYPE_ALL
	default:
		return C.CL_DEVICE_TYPE_DEFAULT
	}
}

func mapDeviceType(dt C.cl_device_type) device.Type {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return device.TypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return device.TypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return device.TypeAccelerator
	case dt&C.CL_DEVICE_TYPE_DEFAULT != 0:
		return device.TypeDefault
	default:
		return device.TypeUnknown
	}
}

func trimNull(buf []byte) string {
	for len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

func statusError(prefix string, status C.cl_int) error {
	return fmt.Errorf("%s: %s (%d)", prefix, C.GoString(C.clsquare_error_string(status)), int(status))
}
