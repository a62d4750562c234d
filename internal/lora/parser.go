package lora

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/yourorg/promptlog/pkg/types"
)

const (
	separator       = ":"
	defaultStrength = 1.0
)

var errNotFinite = errors.New("strength is not a finite number")

// Parse reads one LoRA per line in the form name[:strength_model[:strength_clip]].
// A missing clip strength copies the model strength. Lines with unparsable
// strengths keep their name and fall back to the defaults.
func Parse(text string) []types.LoraDescriptor {
	out := make([]types.LoraDescriptor, 0)
	if strings.TrimSpace(text) == "" {
		return out
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, parseLine(line))
	}
	return out
}

func parseLine(line string) types.LoraDescriptor {
	if !strings.Contains(line, separator) {
		return types.LoraDescriptor{Name: line, StrengthModel: defaultStrength, StrengthClip: defaultStrength}
	}
	parts := strings.Split(line, separator)
	d := types.LoraDescriptor{Name: strings.TrimSpace(parts[0]), StrengthModel: defaultStrength, StrengthClip: defaultStrength}
	model, clip, err := strengths(parts[1:])
	if err != nil {
		return d
	}
	d.StrengthModel, d.StrengthClip = model, clip
	return d
}

func strengths(fields []string) (float64, float64, error) {
	model := defaultStrength
	if len(fields) > 0 {
		v, err := parseStrength(fields[0])
		if err != nil {
			return 0, 0, err
		}
		model = v
	}
	clip := model
	if len(fields) > 1 {
		v, err := parseStrength(fields[1])
		if err != nil {
			return 0, 0, err
		}
		clip = v
	}
	return model, clip, nil
}

// parseStrength rejects inf and nan, which ParseFloat accepts but JSON cannot carry.
func parseStrength(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

// Join renders descriptors back into the line format Parse accepts.
func Join(loras []types.LoraDescriptor) string {
	lines := make([]string, 0, len(loras))
	for _, l := range loras {
		lines = append(lines, l.Name+separator+
			strconv.FormatFloat(l.StrengthModel, 'g', -1, 64)+separator+
			strconv.FormatFloat(l.StrengthClip, 'g', -1, 64))
	}
	return strings.Join(lines, "\n")
}
