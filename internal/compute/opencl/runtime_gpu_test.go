//go:build gpu

package opencl

import (
	"errors"
	"testing"

	"github.com/cwbudde/clsquare/internal/compute/device"
)

func TestEnumeratePlatforms(t *testing.T) {
	platforms, err := EnumeratePlatforms()
	if errors.Is(err, ErrNoDevices) {
		t.Skip("no OpenCL platforms")
	}
	if err != nil {
		t.Fatalf("EnumeratePlatforms failed: %v", err)
	}

	for _, p := range platforms {
		if p.Name == "" {
			t.Errorf("platform with empty name: %+v", p)
		}
		for _, d := range p.Devices {
			if d.MaxWorkGroupSize <= 0 {
				t.Errorf("device %s reports work-group size %d", d.Name, d.MaxWorkGroupSize)
			}
		}
	}
}

func TestContextDevicesAndQueues(t *testing.T) {
	ctx, err := CreateContext(device.TypeAll)
	if errors.Is(err, ErrNoDevices) {
		t.Skip("no OpenCL devices")
	}
	if err != nil {
		t.Fatalf("CreateContext failed: %v", err)
	}
	defer ctx.Release()

	if len(ctx.Devices) == 0 {
		t.Fatal("context has no devices")
	}

	for i := range ctx.Devices {
		q, err := ctx.NewQueue(i)
		if err != nil {
			t.Fatalf("NewQueue(%d) failed: %v", i, err)
		}
		if err := q.Release(); err != nil {
			t.Errorf("Release queue %d: %v", i, err)
		}
	}

	if _, err := ctx.NewQueue(len(ctx.Devices)); err == nil {
		t.Error("expected error for out-of-range device index")
	}
}

func TestKernelNameNotFound(t *testing.T) {
	ctx, err := CreateContext(device.TypeAll)
	if errors.Is(err, ErrNoDevices) {
		t.Skip("no OpenCL devices")
	}
	if err != nil {
		t.Fatalf("CreateContext failed: %v", err)
	}
	defer ctx.Release()

	program, err := ctx.NewProgram("__kernel void square(__global float* a) { a[0] = 1.0f; }")
	if err != nil {
		t.Fatalf("NewProgram failed: %v", err)
	}
	defer program.Release()

	if err := program.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := program.Kernel("squareX"); !errors.Is(err, ErrKernelNotFound) {
		t.Fatalf("expected ErrKernelNotFound, got %v", err)
	}
}
