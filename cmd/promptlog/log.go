package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/promptlog/internal/config"
	"github.com/yourorg/promptlog/internal/recorder"
	"github.com/yourorg/promptlog/internal/safetensors"
	"github.com/yourorg/promptlog/pkg/types"
)

type logOptions struct {
	params     types.GenerationParameters
	promptFile string
	modelDir   string
	checkpoint string
	loras      []string
	loraFile   string
	vae        string
}

func newLogCmd(root *rootOptions) *cobra.Command {
	o := &logOptions{}
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Write the metadata record for one generation run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			req, closeModel, err := o.request(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeModel()

			rOpts := recorder.Options{StripPrefix: cfg.Output.StripPrefix, Logger: logger}
			if cfg.History.Path != "" {
				st, err := openHistory(cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				rOpts.Index = st
			}

			res, err := recorder.New(rOpts).Build(*req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			return enc.Encode(res.Return.Values())
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.params.Prompt, "prompt", "", "prompt text")
	f.StringVar(&o.promptFile, "prompt-file", "", "read the prompt from a file (- for stdin)")
	f.StringVar(&o.params.Folder, "folder", "", "output folder")
	f.StringVar(&o.params.BaseName, "base-name", "", "base file name")
	f.StringVar(&o.params.Sampler, "sampler", "", "sampler name")
	f.StringVar(&o.params.Scheduler, "scheduler", "", "scheduler name")
	f.IntVar(&o.params.Steps, "steps", 0, "sampling steps")
	f.Float64Var(&o.params.CFG, "cfg", 0, "guidance scale")
	f.Int64Var(&o.params.Seed, "seed", 0, "seed")
	f.BoolVar(&o.params.ControlAfterGenerate, "control-after-generate", false, "control after generate")
	f.Float64Var(&o.params.Denoise, "denoise", 0, "denoise strength")
	f.BoolVar(&o.params.UseTimestamp, "use-timestamp", true, "append a timestamp to the file name")
	f.StringVar(&o.params.TimestampFormat, "timestamp-format", "", "strftime pattern for the timestamp")
	f.StringVar(&o.modelDir, "model-dir", "", "model directory or safetensors file to extract metadata from")
	f.StringVar(&o.checkpoint, "checkpoint", "", "checkpoint name")
	f.StringArrayVar(&o.loras, "lora", nil, "LoRA as name:strength_model:strength_clip (repeatable)")
	f.StringVar(&o.loraFile, "lora-file", "", "file with one LoRA per line")
	f.StringVar(&o.vae, "vae", "", "VAE name")
	return cmd
}

// request merges flags over config defaults and loads the model, if any.
func (o *logOptions) request(cmd *cobra.Command, cfg *config.Config) (*recorder.Request, func(), error) {
	p := o.params
	f := cmd.Flags()
	if !f.Changed("folder") {
		p.Folder = cfg.Output.Folder
	}
	if !f.Changed("base-name") {
		p.BaseName = cfg.Output.BaseName
	}
	if !f.Changed("sampler") {
		p.Sampler = cfg.Generation.Sampler
	}
	if !f.Changed("scheduler") {
		p.Scheduler = cfg.Generation.Scheduler
	}
	if !f.Changed("steps") {
		p.Steps = cfg.Generation.Steps
	}
	if !f.Changed("cfg") {
		p.CFG = cfg.CFG()
	}
	if !f.Changed("seed") {
		p.Seed = cfg.Seed()
	}
	if !f.Changed("denoise") {
		p.Denoise = cfg.Denoise()
	}
	if !f.Changed("use-timestamp") {
		p.UseTimestamp = cfg.UseTimestamp()
	}
	if !f.Changed("timestamp-format") {
		p.TimestampFormat = cfg.Timestamp.Format
	}
	if p.Steps <= 0 {
		return nil, nil, fmt.Errorf("steps must be positive, got %d", p.Steps)
	}

	if o.promptFile != "" {
		text, err := readInput(cmd.InOrStdin(), o.promptFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read prompt: %w", err)
		}
		p.Prompt = text
	}

	loraText := strings.Join(o.loras, "\n")
	if o.loraFile != "" {
		text, err := readInput(cmd.InOrStdin(), o.loraFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read loras: %w", err)
		}
		if loraText != "" {
			loraText += "\n"
		}
		loraText += text
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	req := &recorder.Request{
		Params:         p,
		CheckpointName: o.checkpoint,
		LoraInfo:       loraText,
		VAEName:        o.vae,
		Now:            time.Now().In(loc),
	}

	closeModel := func() {}
	if o.modelDir != "" {
		m, err := safetensors.LoadModelDir(o.modelDir)
		if err != nil {
			return nil, nil, fmt.Errorf("load model: %w", err)
		}
		req.Model = m.Handle
		closeModel = func() { _ = m.Close() }
	}
	return req, closeModel, nil
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
