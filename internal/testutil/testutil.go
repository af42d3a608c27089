// Package testutil provides container fixtures for tests: writers that
// produce real safetensors and GGUF files on disk, and an in-memory
// Opener serving canned tensors.
package testutil

import (
	"encoding/binary"
	"math"
	"os"
	"testing"

	"github.com/nlpodyssey/safetensors"
	"github.com/nlpodyssey/safetensors/dtype"
)

// F32 describes one float32 tensor to place in a fixture file.
type F32 struct {
	Name  string
	Shape []int
	Data  []float32
}

// WriteSafetensors writes the given tensors into a safetensors file at
// path, in slice order.
func WriteSafetensors(tb testing.TB, path string, tensors []F32) {
	tb.Helper()

	sts := make([]safetensors.Tensor, 0, len(tensors))
	for _, t := range tensors {
		st, err := safetensors.NewTensor(t.Name, dtype.F32, t.Shape, t.Data)
		if err != nil {
			tb.Fatalf("build tensor %q: %v", t.Name, err)
		}

		sts = append(sts, st)
	}

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if err := safetensors.Serialize(f, sts, nil); err != nil {
		tb.Fatalf("serialize %s: %v", path, err)
	}
}

const ggufFixtureAlignment = 32

// WriteGGUF writes the given tensors into a minimal GGUF v3 file at path:
// no metadata, F32 data, offsets aligned to 32 bytes.
func WriteGGUF(tb testing.TB, path string, tensors []F32) {
	tb.Helper()

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	write := func(v any) {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
	}

	write(uint32(0x46554747)) // magic "GGUF"
	write(uint32(3))
	write(uint64(len(tensors)))
	write(uint64(0)) // no metadata pairs

	headerLen := 4 + 4 + 8 + 8

	// Tensor infos, with data offsets assigned in slice order.
	offset := uint64(0)
	for _, t := range tensors {
		write(uint64(len(t.Name)))
		if _, err := f.WriteString(t.Name); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
		write(uint32(len(t.Shape)))
		for _, dim := range t.Shape {
			write(uint64(dim))
		}
		write(uint32(0)) // F32
		write(offset)

		headerLen += 8 + len(t.Name) + 4 + 8*len(t.Shape) + 4 + 8
		offset = alignUp(offset+uint64(4*len(t.Data)), ggufFixtureAlignment)
	}

	// Pad to the data section boundary.
	if pad := alignUp(uint64(headerLen), ggufFixtureAlignment) - uint64(headerLen); pad > 0 {
		if _, err := f.Write(make([]byte, pad)); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
	}

	for i, t := range tensors {
		for _, v := range t.Data {
			write(math.Float32bits(v))
		}
		if i < len(tensors)-1 {
			size := uint64(4 * len(t.Data))
			if pad := alignUp(size, ggufFixtureAlignment) - size; pad > 0 {
				if _, err := f.Write(make([]byte, pad)); err != nil {
					tb.Fatalf("write %s: %v", path, err)
				}
			}
		}
	}
}

func alignUp(n, alignment uint64) uint64 {
	if rem := n % alignment; rem != 0 {
		return n + alignment - rem
	}
	return n
}
