package types

import "encoding/json"

// GenerationParameters are the caller-supplied settings of one generation run.
type GenerationParameters struct {
	Prompt               string  `json:"prompt"`
	Folder               string  `json:"folder"`
	BaseName             string  `json:"base_name"`
	Sampler              string  `json:"sampler"`
	Scheduler            string  `json:"scheduler"`
	Steps                int     `json:"steps"`
	CFG                  float64 `json:"cfg"`
	Seed                 int64   `json:"seed"`
	ControlAfterGenerate bool    `json:"control_after_generate"`
	Denoise              float64 `json:"denoise"`
	UseTimestamp         bool    `json:"use_timestamp"`
	TimestampFormat      string  `json:"timestamp_format"`
}

// ModelMetadata identifies the model a run was generated with.
// ModelType holds the JSON value of the type: an inferred label, or whatever
// the model configuration declared, including "" and null. A nil ModelType
// means no type was determined.
type ModelMetadata struct {
	ModelType json.RawMessage `json:"model_type,omitempty"`
	ModelHash string          `json:"model_hash,omitempty"`
}

// ModelTypeLabel encodes s as a ModelType value.
func ModelTypeLabel(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// TypeLabel renders the model type as text: strings unquoted, other values
// as their JSON, absent or null as "".
func (m *ModelMetadata) TypeLabel() string {
	if m == nil {
		return ""
	}
	return typeLabel(m.ModelType)
}

// Empty reports whether no field was extracted.
func (m *ModelMetadata) Empty() bool {
	return m == nil || (m.ModelType == nil && m.ModelHash == "")
}

func typeLabel(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// LoraDescriptor is one applied LoRA with its model and clip strengths.
type LoraDescriptor struct {
	Name          string  `json:"name"`
	StrengthModel float64 `json:"strength_model"`
	StrengthClip  float64 `json:"strength_clip"`
}

// KSampler duplicates the sampler settings for downstream consumers.
type KSampler struct {
	Sampler   string  `json:"sampler"`
	Scheduler string  `json:"scheduler"`
	Steps     int     `json:"steps"`
	CFG       float64 `json:"cfg"`
	Seed      int64   `json:"seed"`
}

// ModelsInfo aggregates every model component of a run.
type ModelsInfo struct {
	Checkpoint string           `json:"checkpoint,omitempty"`
	ModelType  json.RawMessage  `json:"model_type,omitempty"`
	ModelHash  string           `json:"model_hash,omitempty"`
	Loras      []LoraDescriptor `json:"loras,omitempty"`
	VAE        string           `json:"vae,omitempty"`
}

// Len returns the number of populated components.
func (m *ModelsInfo) Len() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, set := range []bool{m.Checkpoint != "", m.ModelType != nil, m.ModelHash != "", len(m.Loras) > 0, m.VAE != ""} {
		if set {
			n++
		}
	}
	return n
}

// LogRecord is the sidecar document written next to a generated image.
// Model, CheckpointName, LoraInfo and VAEName serialize as null when unset;
// Models is omitted entirely when no component is known.
type LogRecord struct {
	Filename             string           `json:"filename"`
	Timestamp            string           `json:"timestamp"`
	Prompt               string           `json:"prompt"`
	Folder               string           `json:"folder"`
	BaseName             string           `json:"base_name"`
	Sampler              string           `json:"sampler"`
	Scheduler            string           `json:"scheduler"`
	Steps                int              `json:"steps"`
	CFG                  float64          `json:"cfg"`
	Seed                 int64            `json:"seed"`
	ControlAfterGenerate bool             `json:"control_after_generate"`
	Denoise              float64          `json:"denoise"`
	UseTimestamp         bool             `json:"use_timestamp"`
	TimestampFormat      string           `json:"timestamp_format"`
	KSampler             KSampler         `json:"ksampler"`
	Model                *ModelMetadata   `json:"model"`
	CheckpointName       *string          `json:"checkpoint_name"`
	LoraInfo             []LoraDescriptor `json:"lora_info"`
	VAEName              *string          `json:"vae_name"`
	Models               *ModelsInfo      `json:"models,omitempty"`
}

// OutputPaths are the files derived for one run.
type OutputPaths struct {
	Image    string `json:"image"`
	Metadata string `json:"metadata"`
}

// ReturnTuple is what the pipeline step hands to the next node.
type ReturnTuple struct {
	Prompt               string
	ImagePath            string
	Sampler              string
	Scheduler            string
	Steps                int
	CFG                  float64
	Seed                 int64
	Denoise              float64
	ControlAfterGenerate bool
}

// Values returns the tuple in its fixed positional order.
func (r ReturnTuple) Values() []any {
	return []any{r.Prompt, r.ImagePath, r.Sampler, r.Scheduler, r.Steps, r.CFG, r.Seed, r.Denoise, r.ControlAfterGenerate}
}
