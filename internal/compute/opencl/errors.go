package opencl

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBuilt indicates the binary was built without OpenCL support.
	ErrNotBuilt = errors.New("opencl: support requires building with '-tags gpu'")
	// ErrNoDevices indicates that no device of the requested class exists.
	ErrNoDevices = errors.New("opencl: no devices of the requested type")
	// ErrBuildFailed indicates the program did not compile for every device.
	ErrBuildFailed = errors.New("opencl: program build failed")
	// ErrKernelNotFound indicates the program has no entry point with the requested name.
	ErrKernelNotFound = errors.New("opencl: kernel name not found in program")
	// ErrEmptyBuffer is returned for zero-length buffer requests.
	ErrEmptyBuffer = errors.New("opencl: buffer length must be positive")
)

// statusPlatformNotFoundKHR is CL_PLATFORM_NOT_FOUND_KHR, returned by the ICD
// loader when no platform is installed.
const statusPlatformNotFoundKHR = -1001

// platformQueryError classifies the result of the platform count query.
func platformQueryError(status int32, count uint32, render func() error) error {
	switch {
	case status == statusPlatformNotFoundKHR:
		return fmt.Errorf("%w: no OpenCL platform installed", ErrNoDevices)
	case status != 0:
		return render()
	case count == 0:
		return ErrNoDevices
	}
	return nil
}
