package recorder

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yourorg/promptlog/internal/metadata"
	"github.com/yourorg/promptlog/pkg/types"
)

var testNow = time.Date(2025, time.September, 9, 15, 10, 0, 0, time.FixedZone("PDT", -7*60*60))

func testParams(folder string) types.GenerationParameters {
	return types.GenerationParameters{
		Prompt:               "Test prompt",
		Folder:               folder,
		BaseName:             "test_log",
		Sampler:              "euler",
		Scheduler:            "normal",
		Steps:                20,
		CFG:                  7.5,
		Seed:                 2025,
		ControlAfterGenerate: false,
		Denoise:              1.0,
		UseTimestamp:         true,
		TimestampFormat:      "%d%b%Y_%H%M",
	}
}

func testModel() *metadata.Handle {
	w := metadata.NewWeights()
	w.Set("key", metadata.Float32Tensor(1))
	return &metadata.Handle{Config: map[string]any{"model_type": "SDXL"}, Weights: w}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestBuildEndToEnd(t *testing.T) {
	chdirTemp(t)

	res, err := New(Options{}).Build(Request{
		Params:         testParams("output/test"),
		Model:          testModel(),
		CheckpointName: "checkpoint1",
		LoraInfo:       "lora1:0.5:0.7\nlora2:0.8",
		VAEName:        "vae1",
		Now:            testNow,
	})
	if err != nil {
		t.Fatal(err)
	}

	wantReturn := []any{"Test prompt", filepath.Join("test", "test_log_09Sep2025_1510.png"), "euler", "normal", 20, 7.5, int64(2025), 1.0, false}
	if diff := cmp.Diff(wantReturn, res.Return.Values()); diff != "" {
		t.Fatalf("return tuple mismatch (-want +got):\n%s", diff)
	}
	wantJSON := filepath.Join("output", "test", "test_log_09Sep2025_1510.json")
	if res.Paths.Metadata != wantJSON {
		t.Fatalf("unexpected metadata path %s", res.Paths.Metadata)
	}

	data, err := os.ReadFile(wantJSON)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"filename":               "test_log_09Sep2025_1510.png",
		"timestamp":              "2025-09-09T15:10:00-07:00",
		"prompt":                 "Test prompt",
		"folder":                 "output/test",
		"base_name":              "test_log",
		"sampler":                "euler",
		"scheduler":              "normal",
		"steps":                  20.0,
		"cfg":                    7.5,
		"seed":                   2025.0,
		"control_after_generate": false,
		"denoise":                1.0,
		"use_timestamp":          true,
		"timestamp_format":       "%d%b%Y_%H%M",
		"ksampler": map[string]any{
			"sampler":   "euler",
			"scheduler": "normal",
			"steps":     20.0,
			"cfg":       7.5,
			"seed":      2025.0,
		},
		"model":           map[string]any{"model_type": "SDXL", "model_hash": "e00e5eb9444182f3"},
		"checkpoint_name": "checkpoint1",
		"lora_info": []any{
			map[string]any{"name": "lora1", "strength_model": 0.5, "strength_clip": 0.7},
			map[string]any{"name": "lora2", "strength_model": 0.8, "strength_clip": 0.8},
		},
		"vae_name": "vae1",
		"models": map[string]any{
			"checkpoint": "checkpoint1",
			"model_type": "SDXL",
			"model_hash": "e00e5eb9444182f3",
			"loras": []any{
				map[string]any{"name": "lora1", "strength_model": 0.5, "strength_clip": 0.7},
				map[string]any{"name": "lora2", "strength_model": 0.8, "strength_clip": 0.8},
			},
			"vae": "vae1",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildWithoutModels(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "plain")
	p := testParams(folder)
	p.UseTimestamp = false

	res, err := New(Options{}).Build(Request{Params: p, Now: testNow})
	if err != nil {
		t.Fatal(err)
	}
	if base := filepath.Base(res.Paths.Metadata); base != "test_log.json" {
		t.Fatalf("expected bare base name, got %s", base)
	}
	data, err := os.ReadFile(res.Paths.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if _, ok := got["models"]; ok {
		t.Fatalf("models key must be absent: %s", data)
	}
	for _, key := range []string{"model", "checkpoint_name", "lora_info", "vae_name"} {
		v, ok := got[key]
		if !ok || v != nil {
			t.Fatalf("expected %s present and null, got %v (present=%v)", key, v, ok)
		}
	}
}

func TestBuildWhitespaceLoraText(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "ws")
	res, err := New(Options{}).Build(Request{Params: testParams(folder), LoraInfo: "  \n ", Now: testNow})
	if err != nil {
		t.Fatal(err)
	}
	if res.Record.LoraInfo == nil || len(res.Record.LoraInfo) != 0 {
		t.Fatalf("expected empty non-nil lora list, got %#v", res.Record.LoraInfo)
	}
	if res.Record.Models != nil {
		t.Fatalf("expected no models section, got %+v", res.Record.Models)
	}
}

func TestBuildRoundTrip(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "rt")
	p := testParams(folder)
	p.Prompt = "猫 <cat> & \"dog\""
	res, err := New(Options{}).Build(Request{Params: p, Model: testModel(), LoraInfo: "a:0.3", VAEName: "vae", Now: testNow})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(res.Paths.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Fatalf("invalid json written")
	}
	if !strings.Contains(string(data), "猫 <cat> & \\\"dog\\\"") {
		t.Fatalf("expected literal non-ascii and html characters, got %s", data)
	}
	back, err := ReadRecord(res.Paths.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(res.Record, *back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildOverwrites(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "ow")
	p := testParams(folder)
	p.Prompt = "a much longer first prompt that leaves trailing bytes"
	r := New(Options{})
	if _, err := r.Build(Request{Params: p, Now: testNow}); err != nil {
		t.Fatal(err)
	}
	p.Prompt = "short"
	res, err := r.Build(Request{Params: p, Now: testNow})
	if err != nil {
		t.Fatal(err)
	}
	back, err := ReadRecord(res.Paths.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if back.Prompt != "short" {
		t.Fatalf("expected overwritten prompt, got %q", back.Prompt)
	}
}

func TestBuildFolderError(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(Options{}).Build(Request{Params: testParams(filepath.Join(blocker, "sub")), Now: testNow})
	if err == nil {
		t.Fatalf("expected folder creation error")
	}
}

type fakeIndex struct {
	runs []*types.Run
	err  error
}

func (f *fakeIndex) SaveRun(run *types.Run) error {
	if f.err != nil {
		return f.err
	}
	run.ID = "run-1"
	f.runs = append(f.runs, run)
	return nil
}

func TestBuildIndexesRun(t *testing.T) {
	idx := &fakeIndex{}
	folder := filepath.Join(t.TempDir(), "idx")
	res, err := New(Options{Index: idx}).Build(Request{Params: testParams(folder), Model: testModel(), CheckpointName: "ckpt", LoraInfo: "a\nb", Now: testNow})
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID != "run-1" || len(idx.runs) != 1 {
		t.Fatalf("run not indexed: %+v", idx.runs)
	}
	run := idx.runs[0]
	if run.ModelType != "SDXL" || run.LoraCount != 2 || run.Checkpoint != "ckpt" || run.MetadataPath != res.Paths.Metadata {
		t.Fatalf("unexpected run %+v", run)
	}

	idx.err = errors.New("boom")
	if _, err := New(Options{Index: idx}).Build(Request{Params: testParams(folder), Now: testNow}); err == nil {
		t.Fatalf("expected index error")
	}
}

func TestPaths(t *testing.T) {
	cases := []struct {
		folder, prefix, image string
	}{
		{"output/test", "output/", "test/x.png"},
		{"/output/test", "output/", "test/x.png"},
		{"data/output/run", "output/", "data/run/x.png"},
		{"output", "output/", "output/x.png"},
		{"output/", "output/", "x.png"},
		{"renders/a", "renders/", "a/x.png"},
	}
	for _, tc := range cases {
		got := Paths(tc.folder, tc.prefix, "x")
		if got.Image != filepath.FromSlash(tc.image) {
			t.Fatalf("Paths(%q).Image = %s, want %s", tc.folder, got.Image, tc.image)
		}
	}
}

func TestStamp(t *testing.T) {
	p := testParams("f")
	if got := Stamp(p, testNow); got != "09Sep2025_1510" {
		t.Fatalf("unexpected stamp %s", got)
	}
	if got := FilenameBase("base", ""); got != "base" {
		t.Fatalf("unexpected base %s", got)
	}
	p.UseTimestamp = false
	if got := Stamp(p, testNow); got != "" {
		t.Fatalf("expected empty stamp, got %s", got)
	}
}

func TestBuildNonFiniteLoraStrength(t *testing.T) {
	for _, line := range []string{"a:inf", "a:nan", "a:0.5:-Infinity"} {
		folder := filepath.Join(t.TempDir(), "nf")
		res, err := New(Options{}).Build(Request{Params: testParams(folder), LoraInfo: line, Now: testNow})
		if err != nil {
			t.Fatalf("%s: %v", line, err)
		}
		back, err := ReadRecord(res.Paths.Metadata)
		if err != nil {
			t.Fatalf("%s: %v", line, err)
		}
		want := []types.LoraDescriptor{{Name: "a", StrengthModel: 1, StrengthClip: 1}}
		if diff := cmp.Diff(want, back.LoraInfo); diff != "" {
			t.Fatalf("%s: lora mismatch (-want +got):\n%s", line, diff)
		}
	}
}

func TestBuildDeclaredModelTypeKept(t *testing.T) {
	cases := []struct {
		declared any
		want     any
	}{
		{"", ""},
		{json.Number("2"), 2.0},
	}
	for _, tc := range cases {
		folder := filepath.Join(t.TempDir(), "declared")
		p := testParams(folder)
		p.UseTimestamp = false
		model := &metadata.Handle{Config: map[string]any{"model_type": tc.declared}}
		res, err := New(Options{}).Build(Request{Params: p, Model: model, Now: testNow})
		if err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(res.Paths.Metadata)
		if err != nil {
			t.Fatal(err)
		}
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		wantModel := map[string]any{"model_type": tc.want}
		if diff := cmp.Diff(wantModel, got["model"]); diff != "" {
			t.Fatalf("model mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(wantModel, got["models"]); diff != "" {
			t.Fatalf("models mismatch (-want +got):\n%s", diff)
		}
	}
}
