package metadata

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yourorg/promptlog/pkg/types"
)

// sha256 of the little-endian float32 1.0
const oneHash = "e00e5eb9444182f3"

func weightsOf(pairs ...any) *Weights {
	w := NewWeights()
	for i := 0; i < len(pairs); i += 2 {
		var t Tensor
		if pairs[i+1] != nil {
			t = pairs[i+1].(Tensor)
		}
		w.Set(pairs[i].(string), t)
	}
	return w
}

func TestExtractModelType(t *testing.T) {
	cases := []struct {
		name string
		cfg  map[string]any
		want string
	}{
		{"explicit", map[string]any{"model_type": "SDXL"}, `"SDXL"`},
		{"explicit wins over channels", map[string]any{"model_type": "Unknown", "in_channels": 9}, `"Unknown"`},
		{"explicit empty string", map[string]any{"model_type": ""}, `""`},
		{"explicit number", map[string]any{"model_type": 2}, `2`},
		{"explicit null", map[string]any{"model_type": nil}, `null`},
		{"inpainting", map[string]any{"in_channels": 9}, `"SD_Inpainting"`},
		{"sdxl", map[string]any{"model_channels": 320, "in_channels": 4}, `"SDXL"`},
		{"sdxl from json floats", map[string]any{"model_channels": 320.0, "in_channels": 4.0}, `"SDXL"`},
		{"320 without in_channels", map[string]any{"model_channels": 320}, `"SD1.5"`},
		{"other channels", map[string]any{"model_channels": 320, "in_channels": 8}, `"SD1.5"`},
		{"empty config", map[string]any{}, `"SD1.5"`},
	}
	e := NewExtractor(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Extract(&Handle{Config: tc.cfg, Weights: weightsOf("key", Float32Tensor(1))})
			want := &types.ModelMetadata{ModelType: json.RawMessage(tc.want), ModelHash: oneHash}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractJSONNumberConfig(t *testing.T) {
	var cfg map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"in_channels": 9}`))
	dec.UseNumber()
	if err := dec.Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if got, _ := InferModelType(cfg); string(got) != `"SD_Inpainting"` {
		t.Fatalf("expected SD_Inpainting, got %s", got)
	}
}

func TestExtractDeclaredTypeWithoutWeights(t *testing.T) {
	cases := map[string]string{"": `""`, "number": `2`}
	cfgs := map[string]map[string]any{
		"":       {"model_type": ""},
		"number": {"model_type": json.Number("2")},
	}
	for name, want := range cases {
		md := NewExtractor(nil).Extract(&Handle{Config: cfgs[name]})
		if md == nil {
			t.Fatalf("%q: declared model_type dropped", name)
		}
		if string(md.ModelType) != want || md.ModelHash != "" {
			t.Fatalf("%q: unexpected metadata %s %q", name, md.ModelType, md.ModelHash)
		}
	}
}

func TestExtractNil(t *testing.T) {
	e := NewExtractor(nil)
	if md := e.Extract(nil); md != nil {
		t.Fatalf("expected nil for nil handle, got %+v", md)
	}
	if md := e.Extract(&Handle{}); md != nil {
		t.Fatalf("expected nil for empty handle, got %+v", md)
	}
}

func TestExtractHashOnly(t *testing.T) {
	md := NewExtractor(nil).Extract(&Handle{Weights: weightsOf("w", Float32Tensor(1))})
	if md == nil || md.ModelType != nil || md.ModelHash != oneHash {
		t.Fatalf("unexpected metadata %+v", md)
	}
}

func TestExtractHashFailureKeepsType(t *testing.T) {
	bad := &DenseTensor{Type: "F32", Dims: []int64{2}, Data: []byte{0, 0, 128, 63}}
	md := NewExtractor(nil).Extract(&Handle{Config: map[string]any{}, Weights: weightsOf("w", bad)})
	if md == nil || md.TypeLabel() != "SD1.5" || md.ModelHash != "" {
		t.Fatalf("unexpected metadata %+v", md)
	}
}

func TestExtractRecoversPanic(t *testing.T) {
	var typedNil *DenseTensor
	md := NewExtractor(nil).Extract(&Handle{Config: map[string]any{"model_type": "SDXL"}, Weights: weightsOf("w", Tensor(typedNil))})
	if md != nil {
		t.Fatalf("expected nil after recovered panic, got %+v", md)
	}
}

func TestHashWeights(t *testing.T) {
	if _, err := HashWeights(nil); !errors.Is(err, ErrNoWeights) {
		t.Fatalf("expected ErrNoWeights, got %v", err)
	}
	if _, err := HashWeights(NewWeights()); !errors.Is(err, ErrEmptyWeights) {
		t.Fatalf("expected ErrEmptyWeights, got %v", err)
	}
	flags := &DenseTensor{Type: "BOOL", Dims: []int64{1}, Data: []byte{1}}
	if _, err := HashWeights(weightsOf("mask", flags)); !errors.Is(err, ErrNoNumericTensor) {
		t.Fatalf("expected ErrNoNumericTensor, got %v", err)
	}
	got, err := HashWeights(weightsOf("mask", flags, "missing", nil, "w", Float32Tensor(1), "w2", Float32Tensor(1, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if got != oneHash {
		t.Fatalf("expected first numeric tensor hash %s, got %s", oneHash, got)
	}
	two, err := HashWeights(weightsOf("w2", Float32Tensor(1, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if two != "b9c80b5adeca4507" {
		t.Fatalf("unexpected hash %s", two)
	}
}
