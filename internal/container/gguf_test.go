package container_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/tensordump/internal/container"
	"github.com/example/tensordump/internal/testutil"
)

func TestFileOpener_GGUF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gguf")
	testutil.WriteGGUF(t, path, []testutil.F32{
		{Name: "token_embd.weight", Shape: []int{4, 2}, Data: []float32{1, 2, 3, 4, 5, 6, 7, 8}},
		{Name: "output.bias", Shape: []int{2}, Data: []float32{-1, -2}},
	})

	h, err := container.FileOpener{}.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	names := h.Names()
	if strings.Join(names, "|") != "output.bias|token_embd.weight" {
		t.Fatalf("Names() = %v; want sorted [output.bias token_embd.weight]", names)
	}

	info, err := h.Info("token_embd.weight")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}

	if info.DType != "F32" || len(info.Shape) != 2 || info.Shape[0] != 4 || info.Shape[1] != 2 {
		t.Fatalf("Info = %+v; want F32 [4 2]", info)
	}

	tensor, err := h.Tensor("output.bias")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}

	if !bytes.Equal(tensor.Data, f32le(-1, -2)) {
		t.Errorf("output.bias data = %v; want %v", tensor.Data, f32le(-1, -2))
	}

	// Second tensor sits past the first one's aligned region.
	tensor, err = h.Tensor("token_embd.weight")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}

	if !bytes.Equal(tensor.Data, f32le(1, 2, 3, 4, 5, 6, 7, 8)) {
		t.Errorf("token_embd.weight data = %v; want eight float32 values", tensor.Data)
	}
}

func TestFileOpener_GGUFUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.gguf")

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0x46554747))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := container.FileOpener{}.Open(path)
	if err == nil {
		t.Fatal("expected error for unsupported gguf version")
	}
}

func TestFileOpener_GGUFTruncatedTensorInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trunc.gguf")

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0x46554747))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(1)) // promises one tensor
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := container.FileOpener{}.Open(path)
	if err == nil {
		t.Fatal("expected error for truncated tensor info section")
	}
}

// writeGGUFOneTensor builds a v3 file with no metadata and a single tensor
// info, letting tests pick arbitrary dims and type IDs that the testutil
// writer would reject.
func writeGGUFOneTensor(t *testing.T, name string, dims []uint64, typeID uint32, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.gguf")

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0x46554747))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))

	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(name)))
	buf.WriteString(name)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(dims)))
	for _, dim := range dims {
		_ = binary.Write(&buf, binary.LittleEndian, dim)
	}
	_ = binary.Write(&buf, binary.LittleEndian, typeID)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))

	for buf.Len()%32 != 0 {
		buf.WriteByte(0)
	}
	buf.Write(data)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	return path
}

func TestFileOpener_GGUFRejectsHugeShapes(t *testing.T) {
	cases := []struct {
		name string
		dims []uint64
	}{
		{"element count overflow", []uint64{1 << 62, 16}},
		{"byte size overflow", []uint64{1 << 61}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeGGUFOneTensor(t, "w", tc.dims, 0, nil) // F32

			h, err := container.FileOpener{}.Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer h.Close()

			if _, err := h.Tensor("w"); err == nil {
				t.Fatal("expected error for oversized tensor shape")
			}
		})
	}
}

func TestFileOpener_GGUFDimensionExceedsInt(t *testing.T) {
	path := writeGGUFOneTensor(t, "w", []uint64{1 << 63}, 0, nil)

	_, err := container.FileOpener{}.Open(path)
	if err == nil {
		t.Fatal("expected error for dimension beyond int range")
	}
}

func TestFileOpener_GGUFPartialQuantBlock(t *testing.T) {
	// 16 elements is half a Q4_0 or Q8_0 block.
	for _, typeID := range []uint32{2, 8} {
		path := writeGGUFOneTensor(t, "w", []uint64{16}, typeID, nil)

		h, err := container.FileOpener{}.Open(path)
		if err != nil {
			t.Fatalf("type %d: Open: %v", typeID, err)
		}

		if _, err := h.Tensor("w"); err == nil {
			t.Errorf("type %d: expected error for partial quantization block", typeID)
		}
		h.Close()
	}
}

func TestFileOpener_GGUFQuantBlockSize(t *testing.T) {
	data := make([]byte, 34) // one Q8_0 block of 32 elements
	for i := range data {
		data[i] = byte(i)
	}
	path := writeGGUFOneTensor(t, "w", []uint64{32}, 8, data)

	h, err := container.FileOpener{}.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	tensor, err := h.Tensor("w")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}

	if tensor.DType != "Q8_0" || !bytes.Equal(tensor.Data, data) {
		t.Errorf("Tensor = %s, %d bytes; want Q8_0 with the full 34-byte block", tensor.DType, len(tensor.Data))
	}
}

func TestFileOpener_GGUFOversizedStringLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badkey.gguf")

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0x46554747))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(1))     // promises one metadata pair
	_ = binary.Write(&buf, binary.LittleEndian, uint64(1)<<40) // key length prefix

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := container.FileOpener{}.Open(path)
	if err == nil {
		t.Fatal("expected error for oversized string length")
	}
}
