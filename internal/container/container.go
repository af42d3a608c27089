// Package container reads named tensors out of serialized tensor-container
// files. It exposes a narrow capability — open a read-only handle by path,
// list names, retrieve a tensor by name, release the handle — so callers
// never depend on a particular file format.
//
// Two on-disk formats are supported: safetensors (via the
// github.com/nlpodyssey/safetensors library) and GGUF. The format is
// detected from the file's leading bytes, not its extension.
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Tensor is one named value as stored in a container. Data holds the raw
// little-endian, row-major payload exactly as read from the file; callers
// that only move tensors around can treat it as opaque.
type Tensor struct {
	DType string
	Shape []int
	Data  []byte
}

// Info describes a tensor without its data.
type Info struct {
	DType string
	Shape []int
}

// Handle is a read-only view over one opened container file.
type Handle interface {
	// Names returns the tensor names in the container, sorted.
	Names() []string
	// Info returns dtype and shape for a named tensor without reading
	// its data.
	Info(name string) (Info, error)
	// Tensor reads the named tensor's full data into memory.
	Tensor(name string) (Tensor, error)
	Close() error
}

// Opener opens container files. The file-backed implementation is
// FileOpener; tests may substitute their own.
type Opener interface {
	Open(path string) (Handle, error)
}

// FileOpener opens container files from the local filesystem, detecting
// the format from the file's magic bytes.
type FileOpener struct {
	// HeaderLimit caps the size of a safetensors header accepted during
	// open. Zero or negative means no limit.
	HeaderLimit int
}

func (o FileOpener) Open(path string) (Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("container: open %s: %w", path, err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("container: read magic of %s: %w", path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("container: rewind %s: %w", path, err)
	}

	if binary.LittleEndian.Uint32(magic[:]) == ggufMagic {
		return openGGUF(f)
	}

	// Safetensors files carry no magic; the 8-byte header length plus
	// JSON header validation below rejects anything else.
	return openSafetensors(f, o.HeaderLimit)
}
