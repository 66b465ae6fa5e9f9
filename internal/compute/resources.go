package compute

import (
	"errors"
	"fmt"
)

// releaser holds acquired handles and releases them in reverse acquisition order.
// Every pushed handle is released exactly once.
type releaser struct {
	entries []releaseEntry
	// released records release order; read by tests.
	released []string
}

type releaseEntry struct {
	name    string
	release func() error
}

func (r *releaser) push(name string, release func() error) {
	r.entries = append(r.entries, releaseEntry{name: name, release: release})
}

func (r *releaser) releaseAll() error {
	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		r.released = append(r.released, e.name)
		if err := e.release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", e.name, err))
		}
	}
	r.entries = nil
	return errors.Join(errs...)
}
