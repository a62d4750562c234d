package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/yourorg/promptlog/pkg/types"
)

const hashLen = 16

var (
	ErrNoWeights       = errors.New("model has no weight table")
	ErrEmptyWeights    = errors.New("weight table is empty")
	ErrNoNumericTensor = errors.New("no numeric tensor in weight table")
	ErrSizeMismatch    = errors.New("tensor data does not match its shape")
)

// Extractor derives best-effort identifying metadata from a model handle.
type Extractor struct {
	Logger *slog.Logger
}

// NewExtractor returns an Extractor logging to logger; nil discards logs.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{Logger: logger}
}

// Extract returns the model type and weight hash of h, or nil when neither
// can be determined. It never fails: problems are logged and dropped.
func (e *Extractor) Extract(h *Handle) (md *types.ModelMetadata) {
	if h == nil {
		return nil
	}
	log := e.logger()
	defer func() {
		if r := recover(); r != nil {
			log.Warn("error extracting model metadata", "error", fmt.Sprint(r))
			md = nil
		}
	}()

	out := &types.ModelMetadata{}
	if modelType, ok := InferModelType(h.Config); ok {
		out.ModelType = modelType
	}
	hash, err := HashWeights(h.Weights)
	switch {
	case errors.Is(err, ErrNoWeights):
		log.Debug("model has no weights, skipping hash")
	case err != nil:
		log.Warn("could not generate model hash", "error", err)
	default:
		out.ModelHash = hash
	}

	if out.Empty() {
		return nil
	}
	return out
}

func (e *Extractor) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// InferModelType labels the model family from its configuration.
// An explicit model_type wins and is kept as declared, whatever its JSON
// type; otherwise the channel layout decides, then SD1.5.
func InferModelType(cfg map[string]any) (json.RawMessage, bool) {
	if cfg == nil {
		return nil, false
	}
	if v, ok := cfg["model_type"]; ok {
		return verbatim(v), true
	}
	inChannels, hasIn := intField(cfg, "in_channels")
	if hasIn && inChannels == 9 {
		return types.ModelTypeLabel("SD_Inpainting"), true
	}
	if modelChannels, ok := intField(cfg, "model_channels"); ok && modelChannels == 320 && hasIn && inChannels == 4 {
		return types.ModelTypeLabel("SDXL"), true
	}
	return types.ModelTypeLabel("SD1.5"), true
}

// HashWeights hashes the raw bytes of the first numeric tensor and returns
// the leading 16 hex characters of the SHA-256 digest.
func HashWeights(w *Weights) (string, error) {
	if w == nil {
		return "", ErrNoWeights
	}
	if w.Len() == 0 {
		return "", ErrEmptyWeights
	}
	for pair := w.Oldest(); pair != nil; pair = pair.Next() {
		t := pair.Value
		if t == nil {
			continue
		}
		size, ok := ItemSize(t.DType())
		if !ok {
			continue
		}
		data, err := t.Bytes()
		if err != nil {
			return "", fmt.Errorf("read tensor %s: %w", pair.Key, err)
		}
		if want := NumElements(t.Shape()) * int64(size); int64(len(data)) != want {
			return "", fmt.Errorf("tensor %s has %d bytes, want %d: %w", pair.Key, len(data), want, ErrSizeMismatch)
		}
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])[:hashLen], nil
	}
	return "", ErrNoNumericTensor
}

// verbatim encodes v as JSON; values JSON cannot carry fall back to their
// printed form as a string.
func verbatim(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return types.ModelTypeLabel(fmt.Sprint(v))
	}
	return b
}

func intField(cfg map[string]any, key string) (int64, bool) {
	switch n := cfg[key].(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case float32:
		return integral(float64(n))
	case float64:
		return integral(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return integral(f)
		}
	}
	return 0, false
}

func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}
