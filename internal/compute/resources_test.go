package compute

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaserReverseOrderOnce(t *testing.T) {
	var r releaser
	calls := map[string]int{}
	var order []string
	for _, name := range []string{"context", "queue 0", "program", "kernel"} {
		name := name
		r.push(name, func() error {
			calls[name]++
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, r.releaseAll())
	require.NoError(t, r.releaseAll())

	assert.Equal(t, []string{"kernel", "program", "queue 0", "context"}, order)
	for name, n := range calls {
		assert.Equal(t, 1, n, name)
	}
}

func TestReleaserJoinsErrorsAndContinues(t *testing.T) {
	var r releaser
	boom := errors.New("boom")
	released := 0
	r.push("a", func() error { released++; return nil })
	r.push("b", func() error { released++; return boom })
	r.push("c", func() error { released++; return nil })

	err := r.releaseAll()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "release b")
	assert.Equal(t, 3, released)
}
