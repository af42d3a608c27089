package testutil

import (
	"fmt"
	"sort"

	"github.com/example/tensordump/internal/container"
)

// FakeOpener is an in-memory container.Opener serving canned tensors.
// It records which paths were closed so tests can assert handle release
// on both success and failure paths.
type FakeOpener struct {
	// Files maps a path to its tensors.
	Files map[string]map[string]container.Tensor
	// ReadErrs makes retrieval of the named tensors fail.
	ReadErrs map[string]error
	// Closed collects the paths whose handles were closed, in order.
	Closed []string
}

func (o *FakeOpener) Open(path string) (container.Handle, error) {
	tensors, ok := o.Files[path]
	if !ok {
		return nil, fmt.Errorf("container: open %s: no such file", path)
	}

	return &fakeHandle{opener: o, path: path, tensors: tensors}, nil
}

type fakeHandle struct {
	opener  *FakeOpener
	path    string
	tensors map[string]container.Tensor
}

func (h *fakeHandle) Names() []string {
	names := make([]string, 0, len(h.tensors))
	for name := range h.tensors {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (h *fakeHandle) Info(name string) (container.Info, error) {
	t, ok := h.tensors[name]
	if !ok {
		return container.Info{}, fmt.Errorf("container: tensor %q not found in %s", name, h.path)
	}

	return container.Info{DType: t.DType, Shape: t.Shape}, nil
}

func (h *fakeHandle) Tensor(name string) (container.Tensor, error) {
	if err, ok := h.opener.ReadErrs[name]; ok {
		return container.Tensor{}, err
	}

	t, ok := h.tensors[name]
	if !ok {
		return container.Tensor{}, fmt.Errorf("container: tensor %q not found in %s", name, h.path)
	}

	return t, nil
}

func (h *fakeHandle) Close() error {
	h.opener.Closed = append(h.opener.Closed, h.path)
	return nil
}
