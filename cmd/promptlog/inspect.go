package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/yourorg/promptlog/internal/metadata"
	"github.com/yourorg/promptlog/internal/safetensors"
	"github.com/yourorg/promptlog/pkg/types"
)

type inspectOutput struct {
	ConfigPath  string               `json:"config_path,omitempty"`
	WeightsPath string               `json:"weights_path,omitempty"`
	Tensors     int                  `json:"tensors"`
	Metadata    *types.ModelMetadata `json:"metadata"`
	Sample      *tensorSample        `json:"sample,omitempty"`
}

type tensorSample struct {
	Name   string    `json:"name"`
	DType  string    `json:"dtype"`
	Shape  []int64   `json:"shape"`
	Values []float64 `json:"values"`
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	var modelDir string
	var previewN int
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the metadata extracted from a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			if previewN < 0 {
				return fmt.Errorf("--preview must not be negative, got %d", previewN)
			}
			_, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			m, err := safetensors.LoadModelDir(modelDir)
			if err != nil {
				return err
			}
			defer m.Close()

			out := inspectOutput{
				ConfigPath:  m.ConfigPath,
				WeightsPath: m.WeightsPath,
				Metadata:    metadata.NewExtractor(logger).Extract(m.Handle),
			}
			if w := m.Handle.Weights; w != nil {
				out.Tensors = w.Len()
				out.Sample = sampleFirst(w, previewN, logger)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&modelDir, "model-dir", "", "model directory or safetensors file")
	cmd.Flags().IntVar(&previewN, "preview", 4, "number of leading values to show from the hashed tensor")
	_ = cmd.MarkFlagRequired("model-dir")
	return cmd
}

// sampleFirst previews the tensor the hash is computed from.
func sampleFirst(w *metadata.Weights, n int, logger *slog.Logger) *tensorSample {
	for pair := w.Oldest(); pair != nil; pair = pair.Next() {
		t := pair.Value
		if t == nil {
			continue
		}
		if _, ok := metadata.ItemSize(t.DType()); !ok {
			continue
		}
		values, err := safetensors.Preview(t, n)
		if err != nil {
			logger.Warn("could not preview tensor", "name", pair.Key, "error", err)
			values = nil
		}
		return &tensorSample{Name: pair.Key, DType: t.DType(), Shape: t.Shape(), Values: values}
	}
	return nil
}
