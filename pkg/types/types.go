package types

import "time"

// Run is one history index entry pointing at a written sidecar.
type Run struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Prompt       string    `json:"prompt"`
	Folder       string    `json:"folder"`
	BaseName     string    `json:"base_name"`
	ImagePath    string    `json:"image_path"`
	MetadataPath string    `json:"metadata_path"`
	Sampler      string    `json:"sampler"`
	Scheduler    string    `json:"scheduler"`
	Steps        int       `json:"steps"`
	CFG          float64   `json:"cfg"`
	Seed         int64     `json:"seed"`
	Checkpoint   string    `json:"checkpoint,omitempty"`
	ModelType    string    `json:"model_type,omitempty"`
	ModelHash    string    `json:"model_hash,omitempty"`
	LoraCount    int       `json:"lora_count"`
	VAE          string    `json:"vae,omitempty"`
	Record       string    `json:"record,omitempty"`
}
