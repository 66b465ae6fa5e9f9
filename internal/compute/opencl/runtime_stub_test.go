//go:build !gpu

package opencl

import (
	"errors"
	"testing"

	"github.com/cwbudde/clsquare/internal/compute/device"
)

func TestStubReportsNotBuilt(t *testing.T) {
	if Available() {
		t.Fatal("stub must not report availability")
	}
	if _, err := CreateContext(device.TypeGPU); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("expected ErrNotBuilt, got %v", err)
	}
	if _, err := EnumeratePlatforms(); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("expected ErrNotBuilt, got %v", err)
	}
}
