// Package pipeline runs connectivity extraction over every subject of a
// manifest.
//
// One producer loads images and confounds into the slots of a calc ring
// buffer; one consumer turns each slot into correlation matrices and
// accumulates the group mean:
//
//	Malloc -> extract -> Push -> Pop -> correlate -> Free
package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gonum/matrix/mat64"
	"github.com/hashicorp/go-hclog"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/KyungWonPark/Connectivity/internal/calc"
	"github.com/KyungWonPark/Connectivity/internal/confound"
	"github.com/KyungWonPark/Connectivity/internal/connectivity"
	"github.com/KyungWonPark/Connectivity/internal/dataset"
	"github.com/KyungWonPark/Connectivity/internal/extract"
	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
	"github.com/KyungWonPark/Connectivity/internal/logger"
	"github.com/KyungWonPark/Connectivity/internal/metrics"
)

// Variant names a preprocessing path
type Variant string

// Variants computed for every subject
const (
	// VariantRaw skips confound regression
	VariantRaw Variant = "raw"
	// VariantClean regresses the subject's confounds out first
	VariantClean Variant = "clean"
)

// Variants lists the variants in output order
var Variants = []Variant{VariantRaw, VariantClean}

// Options configures a Runner
type Options struct {
	ResultDir string
	Format    arrayio.Format

	QueueSize int
	Workers   int

	ConfoundKey string
	Transpose   bool
	Standardize bool

	Post connectivity.Post

	// Limit processes only the first n subjects; 0 is all
	Limit int

	Logger  hclog.Logger
	Metrics *metrics.Registry

	// OpenVolume opens images and atlases. Nil means extract.OpenNifti.
	OpenVolume func(path string) (extract.Volume, error)
}

// Result describes a finished run
type Result struct {
	RunID    string
	Dir      string
	Labels   []int
	Counts   map[Variant]int
	Outputs  []string
	Skipped  []string
	Duration time.Duration
}

// Runner executes pipeline runs
type Runner struct {
	opts   Options
	logger hclog.Logger
}

// New returns a Runner with defaults filled in
func New(opts Options) *Runner {
	if opts.Format == "" {
		opts.Format = arrayio.FormatNpy
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.ConfoundKey == "" {
		opts.ConfoundKey = confound.DefaultKey
	}
	if opts.OpenVolume == nil {
		opts.OpenVolume = extract.OpenNifti
	}

	return &Runner{
		opts:   opts,
		logger: logger.OrNull(opts.Logger).Named("runner"),
	}
}

type slot struct {
	subject dataset.Subject
	signals map[Variant]*extract.Signals
}

func newRunID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Run processes every subject of m and writes per-subject and group
// matrices into a fresh directory under the result directory. The first
// failure cancels the run.
func (r *Runner) Run(ctx context.Context, m *dataset.Manifest) (*Result, error) {
	start := time.Now()

	runID, err := newRunID()
	if err != nil {
		return nil, fmt.Errorf("pipeline: run id: %w", err)
	}
	lg := r.logger.With("run", runID)

	m = m.Head(r.opts.Limit)

	dir := filepath.Join(r.opts.ResultDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	pl := calc.Init(r.opts.QueueSize, r.opts.Workers, lg)

	atlas, err := r.opts.OpenVolume(m.Atlas)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open atlas %s: %w", m.Atlas, err)
	}
	masker, err := extract.NewLabelsMasker(atlas, pl, r.opts.Standardize, lg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: atlas %s: %w", m.Atlas, err)
	}

	withConfounds := 0
	for _, c := range m.ConfoundPaths() {
		if c != "" {
			withConfounds++
		}
	}
	lg.Info("starting run", "subjects", len(m.Subjects), "with_confounds", withConfounds,
		"regions", len(masker.Labels()), "queue", pl.QueueSize(), "workers", pl.NumWorker(), "dir", dir)

	res := &Result{
		RunID:  runID,
		Dir:    dir,
		Labels: masker.Labels(),
		Counts: make(map[Variant]int),
	}

	accs := make(map[Variant]*connectivity.Accumulator, len(Variants))
	for _, v := range Variants {
		accs[v] = connectivity.NewAccumulator(pl)
	}

	ring := make([]slot, pl.QueueSize())
	g, gctx := errgroup.WithContext(ctx)

	// producer
	g.Go(func() error {
		defer pl.Close()

		for _, s := range m.Subjects {
			idx, err := pl.Malloc(gctx)
			if err != nil {
				return err
			}

			t0 := time.Now()
			signals, err := r.load(masker, s, lg)
			if err != nil {
				return fmt.Errorf("subject %s: %w", s.ID, err)
			}
			r.opts.Metrics.ObserveSubject(time.Since(t0))

			ring[idx] = slot{subject: s, signals: signals}
			if err := pl.Push(gctx, idx); err != nil {
				return err
			}
		}
		return nil
	})

	// consumer
	g.Go(func() error {
		for {
			idx, ok := pl.Pop()
			if !ok {
				return nil
			}

			job := ring[idx]
			ring[idx] = slot{}

			for _, v := range Variants {
				sig, ok := job.signals[v]
				if !ok {
					continue
				}

				out, err := r.correlate(pl, accs[v], sig, dir, fmt.Sprintf("%s-%s", v, job.subject.ID))
				if err != nil {
					return fmt.Errorf("subject %s: %w", job.subject.ID, err)
				}
				res.Outputs = append(res.Outputs, out)
				r.opts.Metrics.IncSubject(string(v))
			}
			if _, ok := job.signals[VariantClean]; !ok {
				res.Skipped = append(res.Skipped, job.subject.ID)
			}

			pl.Free(idx)
			lg.Debug("subject done", "subject", job.subject.ID)

			if err := gctx.Err(); err != nil {
				return err
			}
		}
	})

	if err := g.Wait(); err != nil {
		lg.Error("run failed", "error", err)
		return nil, err
	}

	for _, v := range Variants {
		res.Counts[v] = accs[v].Count()
		if res.Counts[v] == 0 {
			continue
		}

		mean, err := accs[v].Mean()
		if err != nil {
			return nil, err
		}
		if err := r.opts.Post.Apply(pl, mean); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, fmt.Sprintf("%s-mean%s", v, r.opts.Format.Ext()))
		if err := arrayio.WriteMatrix(path, r.opts.Format, mean); err != nil {
			return nil, err
		}
		res.Outputs = append(res.Outputs, path)
	}

	res.Duration = time.Since(start)
	r.opts.Metrics.SetRunDuration(res.Duration)

	if err := writeSummary(filepath.Join(dir, "run.yaml"), m, res); err != nil {
		return nil, err
	}

	pushed, popped := pl.Counts()
	lg.Info("run finished", "raw", res.Counts[VariantRaw], "clean", res.Counts[VariantClean],
		"skipped", len(res.Skipped), "pushed", pushed, "popped", popped, "elapsed", res.Duration)
	return res, nil
}

// load reads one subject. The clean variant is left out when the subject
// has no confound file.
func (r *Runner) load(masker *extract.LabelsMasker, s dataset.Subject, lg hclog.Logger) (map[Variant]*extract.Signals, error) {
	img, err := r.opts.OpenVolume(s.Func)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Func, err)
	}

	out := make(map[Variant]*extract.Signals, len(Variants))

	raw, err := masker.Transform(img, nil)
	if err != nil {
		return nil, err
	}
	out[VariantRaw] = raw

	if s.Confounds == "" {
		lg.Warn("no confounds, skipping clean variant", "subject", s.ID)
		return out, nil
	}

	key := r.opts.ConfoundKey
	if s.ConfoundKey != "" {
		key = s.ConfoundKey
	}

	confounds, err := confound.Load(s.Confounds,
		confound.WithKey(key),
		confound.WithTranspose(r.opts.Transpose),
		confound.WithLogger(lg),
		confound.WithMetrics(r.opts.Metrics),
	)
	if err != nil {
		return nil, err
	}

	clean, err := masker.Transform(img, confounds)
	if err != nil {
		return nil, err
	}
	out[VariantClean] = clean

	return out, nil
}

func (r *Runner) correlate(pl *calc.PipeLine, acc *connectivity.Accumulator, sig *extract.Signals, dir, name string) (string, error) {
	corr, err := connectivity.Correlation(pl, sig.Matrix)
	if err != nil {
		return "", err
	}
	if err := acc.Add(corr); err != nil {
		return "", err
	}

	out := corr
	if r.opts.Post.FisherZ || r.opts.Post.Threshold != nil {
		out = mat64.DenseCopyOf(corr)
		if err := r.opts.Post.Apply(pl, out); err != nil {
			return "", err
		}
	}

	path := filepath.Join(dir, name+r.opts.Format.Ext())
	if err := arrayio.WriteMatrix(path, r.opts.Format, out); err != nil {
		return "", err
	}
	return path, nil
}

type summary struct {
	RunID    string         `yaml:"run_id"`
	Manifest string         `yaml:"manifest,omitempty"`
	Atlas    string         `yaml:"atlas"`
	Labels   []int          `yaml:"labels,flow"`
	Subjects []string       `yaml:"subjects"`
	Counts   map[string]int `yaml:"counts"`
	Skipped  []string       `yaml:"skipped_clean,omitempty"`
	Seconds  float64        `yaml:"seconds"`
}

func writeSummary(path string, m *dataset.Manifest, res *Result) error {
	s := summary{
		RunID:    res.RunID,
		Manifest: m.Name,
		Atlas:    m.Atlas,
		Labels:   res.Labels,
		Counts:   make(map[string]int, len(res.Counts)),
		Skipped:  res.Skipped,
		Seconds:  res.Duration.Seconds(),
	}
	for _, sub := range m.Subjects {
		s.Subjects = append(s.Subjects, sub.ID)
	}
	for v, n := range res.Counts {
		s.Counts[string(v)] = n
	}

	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("pipeline: summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pipeline: summary: %w", err)
	}
	return nil
}
