package compute

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/clsquare/internal/compute/device"
)

// SquareKernelSource computes output[i] = input[i] * input[i] for i < count.
const SquareKernelSource = `
__kernel void square(
    __global const float* input,
    __global float* output,
    const unsigned int count)
{
    const size_t i = get_global_id(0);
    if (i < count) {
        output[i] = input[i] * input[i];
    }
}
`

const (
	DefaultEntryPoint   = "square"
	DefaultCount        = 100000
	DefaultSeed         = 1
	DefaultAbsTolerance = 1e-6
	DefaultRelTolerance = 1e-5
)

// Config holds everything a pipeline run needs. The kernel source travels with the
// config so callers can swap it without touching package state.
type Config struct {
	Count        int
	DeviceType   device.Type
	KernelSource string
	EntryPoint   string
	Seed         int64
	AbsTolerance float64
	RelTolerance float64
	Policy       Policy
}

// DefaultConfig returns the square kernel over DefaultCount values on GPUs.
func DefaultConfig() Config {
	return Config{
		Count:        DefaultCount,
		DeviceType:   device.TypeGPU,
		KernelSource: SquareKernelSource,
		EntryPoint:   DefaultEntryPoint,
		Seed:         DefaultSeed,
		AbsTolerance: DefaultAbsTolerance,
		RelTolerance: DefaultRelTolerance,
		Policy:       PolicyReplicate,
	}
}

// Validate checks the config before any device work starts.
func (c Config) Validate() error {
	var errs []error
	if c.Count <= 0 {
		errs = append(errs, fmt.Errorf("count must be positive, got %d", c.Count))
	}
	if int64(c.Count) > math.MaxUint32 {
		errs = append(errs, fmt.Errorf("count %d does not fit the kernel's unsigned int", c.Count))
	}
	if c.KernelSource == "" {
		errs = append(errs, errors.New("kernel source is empty"))
	}
	if c.EntryPoint == "" {
		errs = append(errs, errors.New("entry point is empty"))
	}
	if c.AbsTolerance < 0 || c.RelTolerance < 0 {
		errs = append(errs, errors.New("tolerances cannot be negative"))
	}
	if _, err := ParsePolicy(string(c.Policy)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Tolerance returns the comparison policy used for validation.
func (c Config) Tolerance() Tolerance {
	return Tolerance{Abs: c.AbsTolerance, Rel: c.RelTolerance}
}

// RandomInputs returns count values in [0,1) drawn from a seeded source.
func RandomInputs(count int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float32, count)
	for i := range values {
		values[i] = rng.Float32()
	}
	return values
}
