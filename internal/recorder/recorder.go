package recorder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/yourorg/promptlog/internal/lora"
	"github.com/yourorg/promptlog/internal/metadata"
	"github.com/yourorg/promptlog/pkg/types"
)

// DefaultStripPrefix is removed from the folder to form the image path
// relative to the pipeline's output root.
const DefaultStripPrefix = "output/"

// Indexer records written runs. store.Store satisfies it.
type Indexer interface {
	SaveRun(run *types.Run) error
}

// Options configures a Recorder.
type Options struct {
	StripPrefix string
	Logger      *slog.Logger
	// Index is optional; when set every written record is also indexed.
	Index Indexer
}

// Request is one invocation of the logging step.
type Request struct {
	Params         types.GenerationParameters
	Model          *metadata.Handle
	CheckpointName string
	LoraInfo       string
	VAEName        string
	Now            time.Time
}

// Result is everything one invocation produced.
type Result struct {
	Record types.LogRecord
	Paths  types.OutputPaths
	Return types.ReturnTuple
	RunID  string
}

// Recorder builds and writes generation records.
type Recorder struct {
	stripPrefix string
	logger      *slog.Logger
	extractor   *metadata.Extractor
	index       Indexer
}

// New constructs a Recorder.
func New(opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prefix := opts.StripPrefix
	if prefix == "" {
		prefix = DefaultStripPrefix
	}
	return &Recorder{
		stripPrefix: prefix,
		logger:      logger,
		extractor:   metadata.NewExtractor(logger),
		index:       opts.Index,
	}
}

// Build writes the sidecar record for req and returns the values handed to
// the rest of the pipeline. Filesystem errors abort the call.
func (r *Recorder) Build(req Request) (*Result, error) {
	p := req.Params
	if p.Folder == "" {
		return nil, errors.New("folder is empty")
	}

	stamp := Stamp(p, req.Now)
	paths := Paths(p.Folder, r.stripPrefix, FilenameBase(p.BaseName, stamp))

	if err := os.MkdirAll(p.Folder, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}

	var md *types.ModelMetadata
	if req.Model != nil {
		md = r.extractor.Extract(req.Model)
	}
	var loras []types.LoraDescriptor
	if req.LoraInfo != "" {
		loras = lora.Parse(req.LoraInfo)
	}

	rec := Assemble(p, paths, req.Now, md, req.CheckpointName, loras, req.VAEName)
	data, err := Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if err := os.WriteFile(paths.Metadata, data, 0o644); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}
	r.logSummary(rec, paths)

	res := &Result{
		Record: rec,
		Paths:  paths,
		Return: types.ReturnTuple{
			Prompt:               p.Prompt,
			ImagePath:            paths.Image,
			Sampler:              p.Sampler,
			Scheduler:            p.Scheduler,
			Steps:                p.Steps,
			CFG:                  p.CFG,
			Seed:                 p.Seed,
			Denoise:              p.Denoise,
			ControlAfterGenerate: p.ControlAfterGenerate,
		},
	}

	if r.index != nil {
		run := newRun(rec, paths, data, req.Now)
		if err := r.index.SaveRun(run); err != nil {
			return nil, fmt.Errorf("index record: %w", err)
		}
		res.RunID = run.ID
		r.logger.Debug("indexed run", "id", run.ID)
	}
	return res, nil
}

// Stamp formats now with the strftime pattern when timestamps are enabled.
func Stamp(p types.GenerationParameters, now time.Time) string {
	if !p.UseTimestamp {
		return ""
	}
	return strftime.Format(p.TimestampFormat, now)
}

// FilenameBase appends the stamp to base, if there is one.
func FilenameBase(base, stamp string) string {
	if stamp == "" {
		return base
	}
	return base + "_" + stamp
}

// Paths derives the image path, relative to the output root, and the sidecar path.
func Paths(folder, stripPrefix, filenameBase string) types.OutputPaths {
	relative := folder
	if stripPrefix != "" {
		relative = strings.ReplaceAll(relative, stripPrefix, "")
	}
	relative = strings.TrimLeft(relative, "/")
	return types.OutputPaths{
		Image:    filepath.Join(relative, filenameBase+".png"),
		Metadata: filepath.Join(folder, filenameBase+".json"),
	}
}

// Assemble builds the record. A nil loras slice means no LoRA text was given.
func Assemble(p types.GenerationParameters, paths types.OutputPaths, now time.Time, md *types.ModelMetadata, checkpoint string, loras []types.LoraDescriptor, vae string) types.LogRecord {
	rec := types.LogRecord{
		Filename:             filepath.Base(paths.Image),
		Timestamp:            now.Format(time.RFC3339Nano),
		Prompt:               p.Prompt,
		Folder:               p.Folder,
		BaseName:             p.BaseName,
		Sampler:              p.Sampler,
		Scheduler:            p.Scheduler,
		Steps:                p.Steps,
		CFG:                  p.CFG,
		Seed:                 p.Seed,
		ControlAfterGenerate: p.ControlAfterGenerate,
		Denoise:              p.Denoise,
		UseTimestamp:         p.UseTimestamp,
		TimestampFormat:      p.TimestampFormat,
		KSampler: types.KSampler{
			Sampler:   p.Sampler,
			Scheduler: p.Scheduler,
			Steps:     p.Steps,
			CFG:       p.CFG,
			Seed:      p.Seed,
		},
		Model:          md,
		CheckpointName: nullable(checkpoint),
		LoraInfo:       loras,
		VAEName:        nullable(vae),
	}

	models := &types.ModelsInfo{Checkpoint: checkpoint, Loras: loras, VAE: vae}
	if md != nil {
		models.ModelType = md.ModelType
		models.ModelHash = md.ModelHash
	}
	if models.Len() > 0 {
		rec.Models = models
	}
	return rec
}

// Encode renders rec as indented UTF-8 JSON without escaping.
func Encode(rec types.LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadRecord loads a previously written sidecar.
func ReadRecord(path string) (*types.LogRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec types.LogRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", path, err)
	}
	return &rec, nil
}

func (r *Recorder) logSummary(rec types.LogRecord, paths types.OutputPaths) {
	if n := rec.Models.Len(); n > 0 {
		r.logger.Info("model info logged", "components", n)
		if rec.Models.Checkpoint != "" {
			r.logger.Info("checkpoint", "name", rec.Models.Checkpoint)
		}
		if len(rec.Models.Loras) > 0 {
			r.logger.Info("loras applied", "count", len(rec.Models.Loras))
		}
		if rec.Models.VAE != "" {
			r.logger.Info("vae", "name", rec.Models.VAE)
		}
	}
	r.logger.Info("saved image path", "path", paths.Image)
	r.logger.Info("logged metadata", "path", paths.Metadata)
}

func newRun(rec types.LogRecord, paths types.OutputPaths, data []byte, now time.Time) *types.Run {
	run := &types.Run{
		CreatedAt:    now,
		Prompt:       rec.Prompt,
		Folder:       rec.Folder,
		BaseName:     rec.BaseName,
		ImagePath:    paths.Image,
		MetadataPath: paths.Metadata,
		Sampler:      rec.Sampler,
		Scheduler:    rec.Scheduler,
		Steps:        rec.Steps,
		CFG:          rec.CFG,
		Seed:         rec.Seed,
		Record:       string(data),
	}
	if m := rec.Models; m != nil {
		run.Checkpoint = m.Checkpoint
		run.ModelType = (&types.ModelMetadata{ModelType: m.ModelType}).TypeLabel()
		run.ModelHash = m.ModelHash
		run.LoraCount = len(m.Loras)
		run.VAE = m.VAE
	}
	return run
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
