package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

const (
	ggufMagic            = 0x46554747
	ggufDefaultAlignment = 32
	ggufAlignmentKey     = "general.alignment"
	ggufMaxNameLen       = 64
	ggufMaxDims          = 4
	ggufMaxStringLen     = 1 << 16
	ggufMaxArrayLen      = 1 << 16
)

// ggmlType identifies the element encoding of a GGUF tensor. Only the
// type IDs below are given sizes; tensors of other types can still be
// enumerated, but reading their data fails.
type ggmlType uint32

const (
	ggmlF32  ggmlType = 0
	ggmlF16  ggmlType = 1
	ggmlQ4_0 ggmlType = 2
	ggmlQ8_0 ggmlType = 8
	ggmlI8   ggmlType = 24
	ggmlI16  ggmlType = 25
	ggmlI32  ggmlType = 26
	ggmlI64  ggmlType = 27
	ggmlF64  ggmlType = 28
	ggmlBF16 ggmlType = 30
)

// ggmlTypeProps maps a type to its block byte size and elements per block.
var ggmlTypeProps = map[ggmlType]struct {
	name  string
	bytes int
	block int
}{
	ggmlF32:  {"F32", 4, 1},
	ggmlF16:  {"F16", 2, 1},
	ggmlQ4_0: {"Q4_0", 18, 32},
	ggmlQ8_0: {"Q8_0", 34, 32},
	ggmlI8:   {"I8", 1, 1},
	ggmlI16:  {"I16", 2, 1},
	ggmlI32:  {"I32", 4, 1},
	ggmlI64:  {"I64", 8, 1},
	ggmlF64:  {"F64", 8, 1},
	ggmlBF16: {"BF16", 2, 1},
}

func (t ggmlType) String() string {
	if p, ok := ggmlTypeProps[t]; ok {
		return p.name
	}
	return fmt.Sprintf("GGML(%d)", uint32(t))
}

// byteSize returns the bytes occupied by n elements of this type, or an
// error for types without a known layout, a partial trailing block, or a
// count whose byte size overflows int.
func (t ggmlType) byteSize(n int) (int, error) {
	p, ok := ggmlTypeProps[t]
	if !ok {
		return 0, fmt.Errorf("unsupported ggml type %s", t)
	}

	if n < 0 {
		return 0, fmt.Errorf("negative element count %d", n)
	}

	if n%p.block != 0 {
		return 0, fmt.Errorf("element count %d not a multiple of block size %d for type %s", n, p.block, t.String())
	}

	blocks := n / p.block
	if blocks > math.MaxInt/p.bytes {
		return 0, fmt.Errorf("element count %d overflows byte size for type %s", n, t.String())
	}

	return blocks * p.bytes, nil
}

// gguf metadata value type IDs, as stored on the wire.
type ggufValueType uint32

const (
	ggufUint8 ggufValueType = iota
	ggufInt8
	ggufUint16
	ggufInt16
	ggufUint32
	ggufInt32
	ggufFloat32
	ggufBool
	ggufString
	ggufArray
	ggufUint64
	ggufInt64
	ggufFloat64
)

type ggufInfo struct {
	dtype  ggmlType
	shape  []int
	offset uint64
}

// ggufHandle serves tensors from a GGUF file. The header, metadata
// key/value section and tensor infos are parsed once on open; tensor data
// is read eagerly per request.
type ggufHandle struct {
	f          *os.File
	infos      map[string]ggufInfo
	names      []string
	dataOffset int64
}

func openGGUF(f *os.File) (Handle, error) {
	h := &ggufHandle{f: f}
	if err := h.parse(); err != nil {
		f.Close()
		return nil, fmt.Errorf("container: open gguf %s: %w", f.Name(), err)
	}

	return h, nil
}

func (h *ggufHandle) Names() []string {
	return append([]string(nil), h.names...)
}

func (h *ggufHandle) Info(name string) (Info, error) {
	info, ok := h.infos[name]
	if !ok {
		return Info{}, fmt.Errorf("container: tensor %q not found in %s", name, h.f.Name())
	}

	return Info{
		DType: info.dtype.String(),
		Shape: append([]int(nil), info.shape...),
	}, nil
}

func (h *ggufHandle) Tensor(name string) (Tensor, error) {
	info, ok := h.infos[name]
	if !ok {
		return Tensor{}, fmt.Errorf("container: tensor %q not found in %s", name, h.f.Name())
	}

	elems := 1
	for _, dim := range info.shape {
		if dim < 0 {
			return Tensor{}, fmt.Errorf("container: tensor %q in %s: negative dimension %d", name, h.f.Name(), dim)
		}
		if dim > 0 && elems > math.MaxInt/dim {
			return Tensor{}, fmt.Errorf("container: tensor %q in %s: shape %v overflows element count", name, h.f.Name(), info.shape)
		}
		elems *= dim
	}

	size, err := info.dtype.byteSize(elems)
	if err != nil {
		return Tensor{}, fmt.Errorf("container: tensor %q in %s: %w", name, h.f.Name(), err)
	}

	if _, err := h.f.Seek(h.dataOffset+int64(info.offset), io.SeekStart); err != nil {
		return Tensor{}, fmt.Errorf("container: seek tensor %q in %s: %w", name, h.f.Name(), err)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(h.f, data); err != nil {
		return Tensor{}, fmt.Errorf("container: read tensor %q from %s: %w", name, h.f.Name(), err)
	}

	return Tensor{
		DType: info.dtype.String(),
		Shape: append([]int(nil), info.shape...),
		Data:  data,
	}, nil
}

func (h *ggufHandle) Close() error {
	h.infos = nil
	h.names = nil
	return h.f.Close()
}

func (h *ggufHandle) parse() error {
	r := h.f

	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if magic != ggufMagic {
		return fmt.Errorf("bad magic 0x%X", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version != 2 && version != 3 {
		return fmt.Errorf("unsupported version %d", version)
	}

	var tensorCount, kvCount uint64
	if err := binary.Read(r, binary.LittleEndian, &tensorCount); err != nil {
		return fmt.Errorf("read tensor count: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &kvCount); err != nil {
		return fmt.Errorf("read metadata count: %w", err)
	}

	alignment := ggufDefaultAlignment
	for i := uint64(0); i < kvCount; i++ {
		key, value, err := readGGUFPair(r)
		if err != nil {
			return fmt.Errorf("read metadata pair %d: %w", i, err)
		}
		if key == ggufAlignmentKey {
			if a, ok := asAlignment(value); ok {
				alignment = a
			}
		}
	}

	h.infos = make(map[string]ggufInfo, tensorCount)
	h.names = make([]string, 0, tensorCount)

	for i := uint64(0); i < tensorCount; i++ {
		name, info, err := readGGUFTensorInfo(r, alignment)
		if err != nil {
			return fmt.Errorf("read tensor info %d: %w", i, err)
		}
		if _, exists := h.infos[name]; exists {
			return fmt.Errorf("duplicate tensor name %q", name)
		}
		h.infos[name] = info
		h.names = append(h.names, name)
	}

	sort.Strings(h.names)

	// Tensor data begins at the next alignment boundary.
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locate data section: %w", err)
	}
	if pad := pos % int64(alignment); pad != 0 {
		pos += int64(alignment) - pad
	}
	h.dataOffset = pos

	return nil
}

func readGGUFTensorInfo(r io.Reader, alignment int) (string, ggufInfo, error) {
	name, err := readGGUFString(r)
	if err != nil {
		return "", ggufInfo{}, fmt.Errorf("read name: %w", err)
	}
	if len(name) > ggufMaxNameLen {
		return "", ggufInfo{}, fmt.Errorf("tensor name longer than %d bytes: %q", ggufMaxNameLen, name)
	}

	var nDims uint32
	if err := binary.Read(r, binary.LittleEndian, &nDims); err != nil {
		return "", ggufInfo{}, fmt.Errorf("read dimension count: %w", err)
	}
	if nDims > ggufMaxDims {
		return "", ggufInfo{}, fmt.Errorf("unsupported dimension count %d", nDims)
	}

	shape := make([]int, nDims)
	for i := range shape {
		var dim uint64
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return "", ggufInfo{}, fmt.Errorf("read dimension %d: %w", i, err)
		}
		if dim > math.MaxInt {
			return "", ggufInfo{}, fmt.Errorf("dimension %d value %d too large", i, dim)
		}
		shape[i] = int(dim)
	}

	var typeID uint32
	if err := binary.Read(r, binary.LittleEndian, &typeID); err != nil {
		return "", ggufInfo{}, fmt.Errorf("read type: %w", err)
	}

	var offset uint64
	if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
		return "", ggufInfo{}, fmt.Errorf("read offset: %w", err)
	}
	if offset%uint64(alignment) != 0 {
		return "", ggufInfo{}, fmt.Errorf("offset %d not aligned to %d", offset, alignment)
	}

	return name, ggufInfo{
		dtype:  ggmlType(typeID),
		shape:  shape,
		offset: offset,
	}, nil
}

func readGGUFPair(r io.Reader) (string, any, error) {
	key, err := readGGUFString(r)
	if err != nil {
		return "", nil, fmt.Errorf("read key: %w", err)
	}

	value, err := readGGUFValue(r)
	if err != nil {
		return "", nil, fmt.Errorf("read value for %q: %w", key, err)
	}

	return key, value, nil
}

func readGGUFValue(r io.Reader) (any, error) {
	var vt ggufValueType
	if err := binary.Read(r, binary.LittleEndian, &vt); err != nil {
		return nil, fmt.Errorf("read value type: %w", err)
	}

	return readGGUFValueOfType(r, vt)
}

func readGGUFValueOfType(r io.Reader, vt ggufValueType) (any, error) {
	switch vt {
	case ggufUint8:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufInt8:
		var v int8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufUint16:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufInt16:
		var v int16
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufUint32:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufInt32:
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufFloat32:
		var v float32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufBool:
		var b byte
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return false, err
		}
		return b != 0, nil
	case ggufString:
		return readGGUFString(r)
	case ggufArray:
		return readGGUFArray(r)
	case ggufUint64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufInt64:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case ggufFloat64:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	default:
		return nil, fmt.Errorf("unknown value type %d", vt)
	}
}

func readGGUFArray(r io.Reader) (any, error) {
	var vt ggufValueType
	if err := binary.Read(r, binary.LittleEndian, &vt); err != nil {
		return nil, fmt.Errorf("read array element type: %w", err)
	}

	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("read array length: %w", err)
	}
	if length > ggufMaxArrayLen {
		return nil, fmt.Errorf("array length %d exceeds limit %d", length, ggufMaxArrayLen)
	}

	out := make([]any, 0, length)
	for i := uint64(0); i < length; i++ {
		v, err := readGGUFValueOfType(r, vt)
		if err != nil {
			return nil, fmt.Errorf("read array element %d: %w", i, err)
		}
		out = append(out, v)
	}

	return out, nil
}

func readGGUFString(r io.Reader) (string, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	if length > ggufMaxStringLen {
		return "", fmt.Errorf("string length %d exceeds limit %d", length, ggufMaxStringLen)
	}
	if length == 0 {
		return "", nil
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read string bytes: %w", err)
	}

	return string(buf), nil
}

func asAlignment(value any) (int, bool) {
	switch v := value.(type) {
	case uint32:
		if v > 0 && v&(v-1) == 0 {
			return int(v), true
		}
	case uint64:
		if v > 0 && v&(v-1) == 0 {
			return int(v), true
		}
	case int32:
		if v > 0 && v&(v-1) == 0 {
			return int(v), true
		}
	}
	return 0, false
}
