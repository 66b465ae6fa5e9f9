package compute

import (
	"fmt"
	"strings"
)

// Policy decides how the element range is shared between devices.
type Policy string

const (
	// PolicyReplicate gives every device the full range.
	PolicyReplicate Policy = "replicate"
	// PolicySplit gives each device a contiguous slice weighted by compute units.
	PolicySplit Policy = "split"
)

// ParsePolicy maps user input to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "replicate", "":
		return PolicyReplicate, nil
	case "split":
		return PolicySplit, nil
	default:
		return "", fmt.Errorf("unknown dispatch policy %q", name)
	}
}

// Range is a one-dimensional launch: Global work items starting at Offset, in
// groups of Local.
type Range struct {
	Offset int `json:"offset"`
	Global int `json:"global"`
	Local  int `json:"local"`
}

// Span is a contiguous slice [Start, Start+Len) of the element range.
type Span struct {
	Start int
	Len   int
}

// GlobalWorkSize returns the smallest multiple of local that covers count.
func GlobalWorkSize(count, local int) (int, error) {
	if local <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidWorkGroup, local)
	}
	if count <= 0 {
		return 0, fmt.Errorf("%w: count %d", ErrLengthMismatch, count)
	}
	groups := (count + local - 1) / local
	return groups * local, nil
}

// Partition divides count elements into len(weights) contiguous spans sized in
// proportion to the weights. Non-positive weights count as 1. The spans cover
// [0,count) exactly; trailing devices may get empty spans when count is small.
func Partition(count int, weights []int) []Span {
	if len(weights) == 0 {
		return nil
	}

	total := 0
	w := make([]int, len(weights))
	for i, v := range weights {
		if v <= 0 {
			v = 1
		}
		w[i] = v
		total += v
	}

	spans := make([]Span, len(w))
	start := 0
	acc := 0
	for i, v := range w {
		acc += v
		end := count * acc / total
		if i == len(w)-1 {
			end = count
		}
		spans[i] = Span{Start: start, Len: end - start}
		start = end
	}
	return spans
}

// planRanges computes one launch per device. A zero Global means the device gets
// no work.
func planRanges(policy Policy, count int, locals []int, weights []int) ([]Range, error) {
	ranges := make([]Range, len(locals))

	if policy == PolicySplit {
		spans := Partition(count, weights)
		for i, span := range spans {
			if span.Len == 0 {
				ranges[i] = Range{Offset: span.Start, Local: locals[i]}
				continue
			}
			global, err := GlobalWorkSize(span.Len, locals[i])
			if err != nil {
				return nil, err
			}
			ranges[i] = Range{Offset: span.Start, Global: global, Local: locals[i]}
		}
		return ranges, nil
	}

	for i, local := range locals {
		global, err := GlobalWorkSize(count, local)
		if err != nil {
			return nil, err
		}
		ranges[i] = Range{Global: global, Local: local}
	}
	return ranges, nil
}
