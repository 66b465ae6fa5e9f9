//go:build blackcl

package compute

import (
	"testing"

	"github.com/cwbudde/clsquare/internal/compute/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/microo8/blackcl"
)

func TestBlackCLDeviceType(t *testing.T) {
	tests := []struct {
		class device.Type
		want  blackcl.DeviceType
	}{
		{device.TypeGPU, blackcl.DeviceTypeGPU},
		{device.TypeCPU, blackcl.DeviceTypeCPU},
		{device.TypeAccelerator, blackcl.DeviceTypeAccelerator},
		{device.TypeDefault, blackcl.DeviceTypeDefault},
		{device.TypeAll, blackcl.DeviceTypeAll},
	}
	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			got, err := blackclDeviceType(tt.class)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := blackclDeviceType(device.TypeUnknown)
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestBlackCLMissingClassFailsContext(t *testing.T) {
	devices, err := blackcl.GetDevices(blackcl.DeviceTypeAccelerator)
	if err == nil && len(devices) > 0 {
		for _, d := range devices {
			d.Release()
		}
		t.Skip("accelerator present")
	}

	ctx, err := blackclBackend{}.CreateContext(device.TypeAccelerator)
	assert.Nil(t, ctx)
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestBlackCLBufferRelease(t *testing.T) {
	ctx, err := blackclBackend{}.CreateContext(device.TypeAll)
	if err != nil {
		t.Skipf("no blackcl device: %v", err)
	}
	defer ctx.Release()

	info := ctx.Devices()
	require.Len(t, info, 1)
	assert.NotEmpty(t, info[0].Name)

	buf, err := ctx.NewOutputBuffer(16)
	require.NoError(t, err)
	assert.Equal(t, 16, buf.Len())
	assert.NoError(t, buf.Release())
}
