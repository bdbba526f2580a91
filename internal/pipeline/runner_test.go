package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gopkg.in/yaml.v3"

	"github.com/KyungWonPark/Connectivity/internal/confound"
	"github.com/KyungWonPark/Connectivity/internal/dataset"
	"github.com/KyungWonPark/Connectivity/internal/extract"
	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
	"github.com/KyungWonPark/Connectivity/internal/metrics"
)

const frames = 40

func confoundSeries(f int) float64 { return 10 * math.Cos(0.5*float64(f)) }
func localSeries(f int) float64    { return math.Sin(1.3*float64(f)) + float64(f%3) }

// fixture builds a two-region study. Region 1 carries c+a, region 2 c-a,
// so the raw correlation is strongly positive and the cleaned one is -1.
type fixture struct {
	dir      string
	volumes  map[string]extract.Volume
	manifest *dataset.Manifest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	atlas := extract.NewMemVolume(4, 1, 1, 1)
	atlas.Set(0, 0, 0, 0, 1)
	atlas.Set(1, 0, 0, 0, 1)
	atlas.Set(2, 0, 0, 0, 2)
	atlas.Set(3, 0, 0, 0, 2)

	img := extract.NewMemVolume(4, 1, 1, frames)
	for f := 0; f < frames; f++ {
		c, a := confoundSeries(f), localSeries(f)
		img.Set(0, 0, 0, f, c+a)
		img.Set(1, 0, 0, f, c+a)
		img.Set(2, 0, 0, f, c-a)
		img.Set(3, 0, 0, f, c-a)
	}

	// stored regressor by frame, as MATLAB writes it
	conf := &arrayio.Array{Shape: []int{1, frames}, Data: make([]float64, frames)}
	for f := 0; f < frames; f++ {
		conf.Data[f] = confoundSeries(f)
	}
	confPath := filepath.Join(dir, "sub-01.npz")
	if err := arrayio.WriteNpz(confPath, map[string]*arrayio.Array{"R": conf}); err != nil {
		t.Fatalf("WriteNpz() error = %v", err)
	}

	return &fixture{
		dir: dir,
		volumes: map[string]extract.Volume{
			"atlas.nii":  atlas,
			"sub-01.nii": img,
			"sub-02.nii": img,
		},
		manifest: &dataset.Manifest{
			Name:  "fixture",
			Atlas: "atlas.nii",
			Subjects: []dataset.Subject{
				{ID: "sub-01", Func: "sub-01.nii", Confounds: confPath},
				{ID: "sub-02", Func: "sub-02.nii"},
			},
		},
	}
}

func (fx *fixture) open(path string) (extract.Volume, error) {
	v, ok := fx.volumes[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return v, nil
}

func (fx *fixture) options() Options {
	return Options{
		ResultDir:  filepath.Join(fx.dir, "result"),
		QueueSize:  2,
		Workers:    2,
		Transpose:  true,
		OpenVolume: fx.open,
	}
}

func readMatrix(t *testing.T, path string) *mat64.Dense {
	t.Helper()
	m, err := arrayio.NpytoMat64(path)
	if err != nil {
		t.Fatalf("NpytoMat64(%s) error = %v", path, err)
	}
	return m
}

func TestRun(t *testing.T) {
	fx := newFixture(t)
	reg := metrics.NewRegistry()

	opts := fx.options()
	opts.Metrics = reg

	res, err := New(opts).Run(context.Background(), fx.manifest)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Counts[VariantRaw] != 2 || res.Counts[VariantClean] != 1 {
		t.Errorf("Counts = %v, want raw 2 clean 1", res.Counts)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "sub-02" {
		t.Errorf("Skipped = %v, want [sub-02]", res.Skipped)
	}
	if len(res.Labels) != 2 || res.Labels[0] != 1 || res.Labels[1] != 2 {
		t.Errorf("Labels = %v, want [1 2]", res.Labels)
	}
	if filepath.Dir(res.Dir) != opts.ResultDir || filepath.Base(res.Dir) != res.RunID {
		t.Errorf("Dir = %q, want %s/<run id>", res.Dir, opts.ResultDir)
	}

	for _, name := range []string{
		"raw-sub-01.npy", "raw-sub-02.npy", "clean-sub-01.npy",
		"raw-mean.npy", "clean-mean.npy", "run.yaml",
	} {
		if _, err := os.Stat(filepath.Join(res.Dir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "clean-sub-02.npy")); !os.IsNotExist(err) {
		t.Errorf("clean-sub-02.npy should not exist, stat error = %v", err)
	}

	raw := readMatrix(t, filepath.Join(res.Dir, "raw-sub-01.npy"))
	if r := raw.At(0, 1); r < 0.5 {
		t.Errorf("raw correlation = %v, want strongly positive", r)
	}

	clean := readMatrix(t, filepath.Join(res.Dir, "clean-sub-01.npy"))
	if r := clean.At(0, 1); math.Abs(r+1) > 1e-9 {
		t.Errorf("clean correlation = %v, want -1", r)
	}
	if clean.At(0, 0) != 1 || clean.At(1, 1) != 1 {
		t.Errorf("clean diagonal = (%v, %v), want 1", clean.At(0, 0), clean.At(1, 1))
	}

	mean := readMatrix(t, filepath.Join(res.Dir, "raw-mean.npy"))
	if !mat64.EqualApprox(mean, raw, 1e-12) {
		t.Error("raw mean of identical subjects differs from the subject matrix")
	}

	if got := testutil.ToFloat64(reg.SubjectsProcessed.WithLabelValues("raw")); got != 2 {
		t.Errorf("raw subjects metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(reg.ConfoundLoads.WithLabelValues(metrics.ResultOK)); got != 1 {
		t.Errorf("confound loads metric = %v, want 1", got)
	}

	data, err := os.ReadFile(filepath.Join(res.Dir, "run.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var sum summary
	if err := yaml.Unmarshal(data, &sum); err != nil {
		t.Fatalf("run.yaml: %v", err)
	}
	if sum.RunID != res.RunID || sum.Counts["clean"] != 1 || len(sum.Subjects) != 2 {
		t.Errorf("run.yaml = %+v", sum)
	}
}

func TestRun_Limit(t *testing.T) {
	fx := newFixture(t)

	opts := fx.options()
	opts.Limit = 1
	opts.Format = arrayio.FormatCSV

	res, err := New(opts).Run(context.Background(), fx.manifest)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Counts[VariantRaw] != 1 {
		t.Errorf("raw count = %d, want 1", res.Counts[VariantRaw])
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "raw-mean.csv")); err != nil {
		t.Errorf("missing raw-mean.csv: %v", err)
	}
}

func TestRun_ConfoundKeyNotFound(t *testing.T) {
	fx := newFixture(t)
	fx.manifest.Subjects[0].ConfoundKey = "X"

	_, err := New(fx.options()).Run(context.Background(), fx.manifest)
	if !errors.Is(err, confound.ErrKeyNotFound) {
		t.Fatalf("Run() error = %v, want ErrKeyNotFound", err)
	}
	if !strings.Contains(err.Error(), "sub-01") {
		t.Errorf("Run() error = %q, want subject id", err)
	}
}

func TestRun_FrameMismatch(t *testing.T) {
	fx := newFixture(t)

	// keep the stored orientation: 1 row, so frames disagree
	opts := fx.options()
	opts.Transpose = false

	_, err := New(opts).Run(context.Background(), fx.manifest)
	if !errors.Is(err, extract.ErrFrameMismatch) {
		t.Fatalf("Run() error = %v, want ErrFrameMismatch", err)
	}
}

func TestRun_MissingImage(t *testing.T) {
	fx := newFixture(t)
	fx.manifest.Subjects[1].Func = "gone.nii"

	_, err := New(fx.options()).Run(context.Background(), fx.manifest)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Run() error = %v, want ErrNotExist", err)
	}
}

func TestRun_MissingAtlas(t *testing.T) {
	fx := newFixture(t)
	fx.manifest.Atlas = "none.nii"

	_, err := New(fx.options()).Run(context.Background(), fx.manifest)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Run() error = %v, want ErrNotExist", err)
	}
}

func TestRun_Canceled(t *testing.T) {
	fx := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fx.options()).Run(ctx, fx.manifest)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
