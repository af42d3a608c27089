// Package collector merges the tensors of one or more container files
// into a single mapping keyed by tensor name.
package collector

import (
	"log/slog"

	"github.com/example/tensordump/internal/container"
)

// Collect opens each path in order, reads every tensor it contains, and
// merges them all into one mapping. When the same name appears in more
// than one path, the value from the later path wins. The first failure
// aborts the run; no partial result is returned.
func Collect(paths []string, opener container.Opener) (map[string]container.Tensor, error) {
	tensors := make(map[string]container.Tensor)
	for _, path := range paths {
		if err := collectOne(path, opener, tensors); err != nil {
			return nil, err
		}
	}

	return tensors, nil
}

func collectOne(path string, opener container.Opener, into map[string]container.Tensor) error {
	h, err := opener.Open(path)
	if err != nil {
		return err
	}
	defer h.Close()

	names := h.Names()
	for _, name := range names {
		t, err := h.Tensor(name)
		if err != nil {
			return err
		}

		into[name] = t
	}

	slog.Debug("collected container", "path", path, "tensors", len(names))

	return nil
}
