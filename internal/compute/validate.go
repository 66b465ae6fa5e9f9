package compute

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// maxRecordedMismatches bounds Summary.Mismatches; every mismatch is still
// reported through the callback.
const maxRecordedMismatches = 32

// Tolerance is an absolute-or-relative comparison bound. Zero values mean exact
// equality.
type Tolerance struct {
	Abs float64
	Rel float64
}

// Mismatch describes one output element outside tolerance.
type Mismatch struct {
	Index int
	Input float32
	Got   float32
	Want  float32
}

// Summary is the outcome of comparing device output against input squared.
type Summary struct {
	Correct     int
	Total       int
	MaxAbsError float64
	Mismatches  []Mismatch
}

// OK reports whether every element validated.
func (s Summary) OK() bool {
	return s.Total > 0 && s.Correct == s.Total
}

func (s Summary) String() string {
	return fmt.Sprintf("Computed '%d/%d' correct values!", s.Correct, s.Total)
}

// ValidateSquares compares output[i] against input[i]*input[i]. onMismatch, when
// non-nil, is called for every element outside tolerance in index order.
func ValidateSquares(input, output []float32, tol Tolerance, onMismatch func(Mismatch)) (Summary, error) {
	if len(input) != len(output) {
		return Summary{}, fmt.Errorf("%w: %d inputs, %d outputs", ErrLengthMismatch, len(input), len(output))
	}

	got := make([]float64, len(output))
	want := make([]float64, len(input))

	summary := Summary{Total: len(input)}
	for i, in := range input {
		w := in * in
		got[i] = float64(output[i])
		want[i] = float64(w)

		if scalar.EqualWithinAbsOrRel(got[i], want[i], tol.Abs, tol.Rel) {
			summary.Correct++
			continue
		}

		m := Mismatch{Index: i, Input: in, Got: output[i], Want: w}
		if len(summary.Mismatches) < maxRecordedMismatches {
			summary.Mismatches = append(summary.Mismatches, m)
		}
		if onMismatch != nil {
			onMismatch(m)
		}
	}

	if len(got) > 0 {
		summary.MaxAbsError = floats.Distance(got, want, math.Inf(1))
	}
	return summary, nil
}
