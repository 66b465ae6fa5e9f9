package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalWorkSize(t *testing.T) {
	tests := []struct {
		count, local, want int
	}{
		{100000, 256, 100096},
		{256, 256, 256},
		{257, 256, 512},
		{1, 64, 64},
		{100000, 1, 100000},
		{100000, 1024, 100352},
	}

	for _, tt := range tests {
		got, err := GlobalWorkSize(tt.count, tt.local)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "count=%d local=%d", tt.count, tt.local)
	}
}

func TestGlobalWorkSizeCoversCountInWholeGroups(t *testing.T) {
	for count := 1; count <= 2000; count += 7 {
		for _, local := range []int{1, 3, 32, 64, 100, 256, 1024} {
			global, err := GlobalWorkSize(count, local)
			require.NoError(t, err)
			assert.Zero(t, global%local, "count=%d local=%d", count, local)
			assert.GreaterOrEqual(t, global, count)
			assert.Less(t, global-count, local, "more than one extra group")
		}
	}
}

func TestGlobalWorkSizeRejectsBadInput(t *testing.T) {
	_, err := GlobalWorkSize(10, 0)
	assert.ErrorIs(t, err, ErrInvalidWorkGroup)

	_, err = GlobalWorkSize(10, -4)
	assert.ErrorIs(t, err, ErrInvalidWorkGroup)

	_, err = GlobalWorkSize(0, 64)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestPartition(t *testing.T) {
	spans := Partition(100, []int{1, 1, 2})
	require.Len(t, spans, 3)
	assert.Equal(t, Span{Start: 0, Len: 25}, spans[0])
	assert.Equal(t, Span{Start: 25, Len: 25}, spans[1])
	assert.Equal(t, Span{Start: 50, Len: 50}, spans[2])

	assert.Nil(t, Partition(100, nil))
}

func TestPartitionCoversRangeExactly(t *testing.T) {
	weightSets := [][]int{{1}, {3, 5}, {0, 0, 0}, {7, 1, 13, 2}, {-1, 4}}
	for _, weights := range weightSets {
		for _, count := range []int{1, 2, 3, 10, 999, 100000} {
			spans := Partition(count, weights)
			require.Len(t, spans, len(weights))

			next := 0
			for _, s := range spans {
				assert.Equal(t, next, s.Start)
				assert.GreaterOrEqual(t, s.Len, 0)
				next = s.Start + s.Len
			}
			assert.Equal(t, count, next, "weights=%v count=%d", weights, count)
		}
	}
}

func TestPlanRangesReplicate(t *testing.T) {
	ranges, err := planRanges(PolicyReplicate, 1000, []int{64, 256}, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []Range{
		{Offset: 0, Global: 1024, Local: 64},
		{Offset: 0, Global: 1024, Local: 256},
	}, ranges)
}

func TestPlanRangesSplit(t *testing.T) {
	ranges, err := planRanges(PolicySplit, 1000, []int{64, 64}, []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []Range{
		{Offset: 0, Global: 256, Local: 64},
		{Offset: 250, Global: 768, Local: 64},
	}, ranges)

	// Fewer elements than devices leaves some idle.
	ranges, err = planRanges(PolicySplit, 1, []int{8, 8, 8}, []int{1, 1, 1})
	require.NoError(t, err)
	assert.Zero(t, ranges[0].Global)
	assert.Zero(t, ranges[1].Global)
	assert.Equal(t, Range{Offset: 0, Global: 8, Local: 8}, ranges[2])
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReplicate, p)

	p, err = ParsePolicy("Split")
	require.NoError(t, err)
	assert.Equal(t, PolicySplit, p)

	_, err = ParsePolicy("round-robin")
	assert.Error(t, err)
}
