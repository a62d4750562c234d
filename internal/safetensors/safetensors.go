package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/yourorg/promptlog/internal/metadata"
)

const (
	metadataKey   = "__metadata__"
	maxHeaderSize = 100 << 20
)

var ErrInvalidHeader = errors.New("invalid safetensors header")

// File is an open safetensors file. Tensor data is read on demand.
type File struct {
	f        *os.File
	Metadata map[string]string
	tensors  *metadata.Weights
}

// Tensor is one entry of the header table.
type Tensor struct {
	name  string
	dtype string
	shape []int64
	start int64
	end   int64
	r     io.ReaderAt
}

type tensorInfo struct {
	DType       string  `json:"dtype"`
	Shape       []int64 `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open reads the header of the safetensors file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sf, err := decode(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sf.f = f
	return sf, nil
}

func decode(r io.ReaderAt, size int64) (*File, error) {
	var n uint64
	if err := binary.Read(io.NewSectionReader(r, 0, 8), binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: read length: %v", ErrInvalidHeader, err)
	}
	if n == 0 || n > maxHeaderSize || int64(n) > size-8 {
		return nil, fmt.Errorf("%w: header length %d", ErrInvalidHeader, n)
	}
	header := make([]byte, n)
	if _, err := r.ReadAt(header, 8); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidHeader, err)
	}

	entries := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(header, entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	dataStart := int64(8 + n)
	sf := &File{tensors: metadata.NewWeights()}
	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == metadataKey {
			if err := json.Unmarshal(pair.Value, &sf.Metadata); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidHeader, metadataKey, err)
			}
			continue
		}
		var info tensorInfo
		if err := json.Unmarshal(pair.Value, &info); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, pair.Key, err)
		}
		if len(info.DataOffsets) != 2 || info.DataOffsets[0] < 0 || info.DataOffsets[0] > info.DataOffsets[1] || dataStart+info.DataOffsets[1] > size {
			return nil, fmt.Errorf("%w: tensor %s has offsets %v", ErrInvalidHeader, pair.Key, info.DataOffsets)
		}
		sf.tensors.Set(pair.Key, &Tensor{
			name:  pair.Key,
			dtype: info.DType,
			shape: info.Shape,
			start: dataStart + info.DataOffsets[0],
			end:   dataStart + info.DataOffsets[1],
			r:     r,
		})
	}
	return sf, nil
}

// Weights returns the tensors in file order.
func (f *File) Weights() *metadata.Weights {
	return f.tensors
}

// Close releases the underlying file.
func (f *File) Close() error {
	if f == nil || f.f == nil {
		return nil
	}
	return f.f.Close()
}

func (t *Tensor) Name() string   { return t.name }
func (t *Tensor) DType() string  { return t.dtype }
func (t *Tensor) Shape() []int64 { return t.shape }

// Bytes reads the tensor's raw data.
func (t *Tensor) Bytes() ([]byte, error) {
	buf := make([]byte, t.end-t.start)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := t.r.ReadAt(buf, t.start); err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", t.name, err)
	}
	return buf, nil
}
