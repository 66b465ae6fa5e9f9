//go:build !blackcl

package compute

import "fmt"

func newBlackCLBackend() (Backend, error) {
	return nil, fmt.Errorf("%w: build with '-tags blackcl'", ErrBackendUnavailable)
}
