package safetensors

import (
	"encoding/binary"
	"fmt"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/yourorg/promptlog/internal/metadata"
)

// Preview decodes up to n leading values of t. Float (F64, F32, F16, BF16)
// and integer (I*, U*) dtypes are supported; F8 tensors are hashable but not
// previewable.
func Preview(t metadata.Tensor, n int) ([]float64, error) {
	if n < 0 {
		return nil, fmt.Errorf("preview count must not be negative, got %d", n)
	}
	size, ok := metadata.ItemSize(t.DType())
	if !ok {
		return nil, fmt.Errorf("unsupported dtype %s", t.DType())
	}
	data, err := t.Bytes()
	if err != nil {
		return nil, err
	}
	if count := len(data) / size; count < n {
		n = count
	}
	data = data[:n*size]

	out := make([]float64, n)
	switch t.DType() {
	case "F64":
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	case "F32":
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
		}
	case "F16":
		for i := range out {
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32())
		}
	case "BF16":
		for i, f := range bfloat16.DecodeFloat32(data) {
			out[i] = float64(f)
		}
	case "I64":
		for i := range out {
			out[i] = float64(int64(binary.LittleEndian.Uint64(data[8*i:])))
		}
	case "I32":
		for i := range out {
			out[i] = float64(int32(binary.LittleEndian.Uint32(data[4*i:])))
		}
	case "I16":
		for i := range out {
			out[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:])))
		}
	case "I8":
		for i := range out {
			out[i] = float64(int8(data[i]))
		}
	case "U64":
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint64(data[8*i:]))
		}
	case "U32":
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint32(data[4*i:]))
		}
	case "U16":
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint16(data[2*i:]))
		}
	case "U8":
		for i := range out {
			out[i] = float64(data[i])
		}
	default:
		return nil, fmt.Errorf("preview not supported for dtype %s", t.DType())
	}
	return out, nil
}
