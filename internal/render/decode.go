package render

import (
	"encoding/binary"
	"math"

	"github.com/example/tensordump/internal/container"
)

// elementSize maps decodable dtypes to their per-element byte width.
var elementSize = map[string]int{
	"BOOL": 1,
	"U8":   1,
	"I8":   1,
	"U16":  2,
	"I16":  2,
	"F16":  2,
	"BF16": 2,
	"U32":  4,
	"I32":  4,
	"F32":  4,
	"U64":  8,
	"I64":  8,
	"F64":  8,
}

// decode interprets a tensor's raw little-endian payload as a typed
// element slice. It returns false for dtypes without a flat element
// layout (such as GGUF block-quantized types) or when the payload size
// does not match the dtype; callers then fall back to a raw byte count.
func decode(t container.Tensor) (any, bool) {
	size, ok := elementSize[t.DType]
	if !ok {
		return nil, false
	}

	raw := t.Data
	if len(raw)%size != 0 {
		return nil, false
	}

	n := len(raw) / size

	switch t.DType {
	case "BOOL":
		out := make([]bool, n)
		for i := range out {
			out[i] = raw[i] != 0
		}
		return out, true
	case "U8":
		out := make([]uint8, n)
		copy(out, raw)
		return out, true
	case "I8":
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(raw[i])
		}
		return out, true
	case "U16":
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(raw[i*2:])
		}
		return out, true
	case "I16":
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return out, true
	case "F16":
		out := make([]float32, n)
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return out, true
	case "BF16":
		out := make([]float32, n)
		for i := range out {
			bits := binary.LittleEndian.Uint16(raw[i*2:])
			out[i] = math.Float32frombits(uint32(bits) << 16)
		}
		return out, true
	case "U32":
		out := make([]uint32, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
		return out, true
	case "I32":
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, true
	case "F32":
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, true
	case "U64":
		out := make([]uint64, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(raw[i*8:])
		}
		return out, true
	case "I64":
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, true
	case "F64":
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, true
	}

	return nil, false
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	var bits uint32

	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			// Subnormal: normalize.
			e := int32(-14)

			for (frac & 0x0400) == 0 {
				frac <<= 1
				e--
			}

			frac &= 0x03ff
			exp32 := uint32(e + 127)
			bits = (sign << 31) | (exp32 << 23) | (frac << 13)
		}
	case 0x1f:
		// Inf / NaN.
		bits = (sign << 31) | 0x7f800000 | (frac << 13)
	default:
		exp32 := exp + (127 - 15)
		bits = (sign << 31) | (exp32 << 23) | (frac << 13)
	}

	return math.Float32frombits(bits)
}
