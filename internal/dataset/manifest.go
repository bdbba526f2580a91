// Package dataset describes the subjects of a study: where each functional
// image and confound file lives, and which atlas parcellates them.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidManifest is returned for manifests that fail validation
var ErrInvalidManifest = errors.New("dataset: invalid manifest")

// Subject is one functional run
type Subject struct {
	ID          string `yaml:"id"`
	Func        string `yaml:"func"`
	Confounds   string `yaml:"confounds,omitempty"`
	ConfoundKey string `yaml:"confound_key,omitempty"`
}

// Manifest is the study layout
type Manifest struct {
	Name     string    `yaml:"name,omitempty"`
	Atlas    string    `yaml:"atlas"`
	Subjects []Subject `yaml:"subjects"`
}

// Load reads and validates a manifest file. Relative paths are resolved
// against the manifest's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read manifest: %w", err)
	}

	m, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.resolve(filepath.Dir(path))
	return m, nil
}

// Parse decodes and validates a manifest. Unknown fields are rejected.
func Parse(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks required fields and id uniqueness
func (m *Manifest) Validate() error {
	var problems []string

	if m.Atlas == "" {
		problems = append(problems, "atlas is required")
	}
	if len(m.Subjects) == 0 {
		problems = append(problems, "no subjects")
	}

	seen := make(map[string]int, len(m.Subjects))
	for i, s := range m.Subjects {
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("subjects[%d]: id is required", i))
		} else if j, ok := seen[s.ID]; ok {
			problems = append(problems, fmt.Sprintf("subjects[%d]: duplicate id %q (first at subjects[%d])", i, s.ID, j))
		} else {
			seen[s.ID] = i
		}
		if s.Func == "" {
			problems = append(problems, fmt.Sprintf("subjects[%d]: func is required", i))
		}
		if strings.ContainsAny(s.ID, `/\`) {
			problems = append(problems, fmt.Sprintf("subjects[%d]: id %q must not contain a path separator", i, s.ID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(problems, "; "))
	}
	return nil
}

func (m *Manifest) resolve(dir string) {
	m.Atlas = resolvePath(dir, m.Atlas)
	for i := range m.Subjects {
		m.Subjects[i].Func = resolvePath(dir, m.Subjects[i].Func)
		m.Subjects[i].Confounds = resolvePath(dir, m.Subjects[i].Confounds)
	}
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// ConfoundPaths returns the confound file of every subject, in order. A
// subject without confounds yields an empty string.
func (m *Manifest) ConfoundPaths() []string {
	out := make([]string, len(m.Subjects))
	for i, s := range m.Subjects {
		out[i] = s.Confounds
	}
	return out
}

// Head returns a copy of m limited to its first n subjects. n <= 0 keeps all.
func (m *Manifest) Head(n int) *Manifest {
	out := *m
	if n > 0 && n < len(m.Subjects) {
		out.Subjects = m.Subjects[:n]
	}
	out.Subjects = append([]Subject(nil), out.Subjects...)
	return &out
}
