package metadata

import (
	"encoding/binary"
	"math"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Tensor is a read-only view of one weight tensor.
type Tensor interface {
	DType() string
	Shape() []int64
	// Bytes returns the raw little-endian element data.
	Bytes() ([]byte, error)
}

// Weights maps tensor names to tensors in their original order.
type Weights = orderedmap.OrderedMap[string, Tensor]

// NewWeights returns an empty ordered weight table.
func NewWeights() *Weights {
	return orderedmap.New[string, Tensor]()
}

// Handle is the model as seen by the extractor. Either field may be nil.
type Handle struct {
	Config  map[string]any
	Weights *Weights
}

var itemSizes = map[string]int{
	"F64":     8,
	"F32":     4,
	"F16":     2,
	"BF16":    2,
	"F8_E4M3": 1,
	"F8_E5M2": 1,
	"I64":     8,
	"I32":     4,
	"I16":     2,
	"I8":      1,
	"U64":     8,
	"U32":     4,
	"U16":     2,
	"U8":      1,
}

// ItemSize returns the element width of a numeric dtype.
func ItemSize(dtype string) (int, bool) {
	n, ok := itemSizes[dtype]
	return n, ok
}

// NumElements returns the element count of a shape; a scalar has one.
func NumElements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// DenseTensor is a tensor held fully in memory.
type DenseTensor struct {
	Type string
	Dims []int64
	Data []byte
}

func (t *DenseTensor) DType() string          { return t.Type }
func (t *DenseTensor) Shape() []int64         { return t.Dims }
func (t *DenseTensor) Bytes() ([]byte, error) { return t.Data, nil }

// Float32Tensor builds a one-dimensional F32 tensor.
func Float32Tensor(values ...float32) *DenseTensor {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return &DenseTensor{Type: "F32", Dims: []int64{int64(len(values))}, Data: data}
}
