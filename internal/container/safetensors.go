package container

import (
	"fmt"
	"os"
	"sort"

	"github.com/nlpodyssey/safetensors"
)

// stHandle serves tensors from a safetensors file. The header is parsed
// once on open; tensor data is read eagerly per request, so the file stays
// open for the lifetime of the handle.
type stHandle struct {
	f     *os.File
	st    *safetensors.LazyST
	names []string
}

func openSafetensors(f *os.File, headerLimit int) (Handle, error) {
	st, err := safetensors.NewLazy(f, headerLimit)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("container: open safetensors %s: %w", f.Name(), err)
	}

	names := st.TensorNames()
	sort.Strings(names)

	return &stHandle{f: f, st: st, names: names}, nil
}

func (h *stHandle) Names() []string {
	return append([]string(nil), h.names...)
}

func (h *stHandle) Info(name string) (Info, error) {
	lt, ok := h.st.LazyTensor(name)
	if !ok {
		return Info{}, fmt.Errorf("container: tensor %q not found in %s", name, h.f.Name())
	}

	return Info{
		DType: lt.DType().String(),
		Shape: lt.Shape(),
	}, nil
}

func (h *stHandle) Tensor(name string) (Tensor, error) {
	lt, ok := h.st.LazyTensor(name)
	if !ok {
		return Tensor{}, fmt.Errorf("container: tensor %q not found in %s", name, h.f.Name())
	}

	raw, err := lt.RawTensor()
	if err != nil {
		return Tensor{}, fmt.Errorf("container: read tensor %q from %s: %w", name, h.f.Name(), err)
	}

	return Tensor{
		DType: raw.DType().String(),
		Shape: raw.Shape(),
		Data:  raw.Data(),
	}, nil
}

func (h *stHandle) Close() error {
	h.st = nil
	return h.f.Close()
}
