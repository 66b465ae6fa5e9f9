package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("compute: unknown backend")
	// ErrBackendUnavailable indicates the backend is not available in this build.
	ErrBackendUnavailable = errors.New("compute: backend unavailable")
	// ErrNoDevices is returned when no device of the requested class exists.
	ErrNoDevices = errors.New("compute: no devices of the requested type")
	// ErrQueueCardinality is returned when queues and devices are not 1:1.
	ErrQueueCardinality = errors.New("compute: queue count does not match device count")
	// ErrBuildFailed is returned when the program does not build for every device.
	ErrBuildFailed = errors.New("compute: program build failed")
	// ErrProgramNotBuilt is returned when a kernel is requested from an unbuilt program.
	ErrProgramNotBuilt = errors.New("compute: program not built")
	// ErrKernelNotFound is returned when the entry point is absent from the program.
	ErrKernelNotFound = errors.New("compute: kernel name not found in program")
	// ErrInvalidWorkGroup is returned for a non-positive work-group size.
	ErrInvalidWorkGroup = errors.New("compute: invalid work-group size")
	// ErrLengthMismatch is returned when host and device sizes disagree.
	ErrLengthMismatch = errors.New("compute: length mismatch")
	// ErrForeignHandle is returned when a handle from another backend is passed in.
	ErrForeignHandle = errors.New("compute: handle belongs to a different backend")
	// ErrArgument is returned when kernel arguments are missing or of the wrong kind.
	ErrArgument = errors.New("compute: invalid kernel argument")
	// ErrReleased is returned when a released handle is used.
	ErrReleased = errors.New("compute: handle already released")
	// ErrMismatch is returned when validation finds incorrect output values.
	ErrMismatch = errors.New("compute: output does not match expected values")
)

// Stage identifies one step of the pipeline.
type Stage string

const (
	StageConfig   Stage = "config"
	StageContext  Stage = "context"
	StageQueues   Stage = "command queues"
	StageProgram  Stage = "program"
	StageBuild    Stage = "build"
	StageKernel   Stage = "kernel"
	StageBuffers  Stage = "buffers"
	StageArgs     Stage = "kernel arguments"
	StageDispatch Stage = "dispatch"
	StageFinish   Stage = "finish"
	StageReadBack Stage = "read back"
	StageValidate Stage = "validation"
	StageTeardown Stage = "teardown"
)

const noDeviceMarker = -1

// StageError records which stage failed, and on which device when it applies.
type StageError struct {
	Stage  Stage
	Device int // -1 when the failure is not tied to a device
	Err    error
}

func (e *StageError) Error() string {
	if e.Device >= 0 {
		return fmt.Sprintf("error during %s (device %d): %v", e.Stage, e.Device, e.Err)
	}
	return fmt.Sprintf("error during %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Device: noDeviceMarker, Err: err}
}

func deviceErr(stage Stage, device int, err error) error {
	return &StageError{Stage: stage, Device: device, Err: err}
}
