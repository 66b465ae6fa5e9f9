package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100000, cfg.Count)
	assert.Equal(t, "square", cfg.EntryPoint)
	assert.Contains(t, cfg.KernelSource, "__kernel void square(")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero count", func(c *Config) { c.Count = 0 }},
		{"negative count", func(c *Config) { c.Count = -5 }},
		{"empty source", func(c *Config) { c.KernelSource = "" }},
		{"empty entry", func(c *Config) { c.EntryPoint = "" }},
		{"negative tolerance", func(c *Config) { c.AbsTolerance = -1 }},
		{"bad policy", func(c *Config) { c.Policy = "scatter" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRandomInputs(t *testing.T) {
	a := RandomInputs(1000, 7)
	b := RandomInputs(1000, 7)
	c := RandomInputs(1000, 8)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	for _, v := range a {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}
}
