package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleManifest = `
name: rest
atlas: atlas/msdl.nii.gz
subjects:
  - id: sub-01
    func: func/sub-01.nii.gz
    confounds: conf/sub-01.npz
  - id: sub-02
    func: /abs/sub-02.nii.gz
    confounds: conf/sub-02.mat
    confound_key: X
  - id: sub-03
    func: func/sub-03.nii.gz
`

func TestLoad_ResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if m.Name != "rest" {
		t.Errorf("Name = %q, want rest", m.Name)
	}
	if want := filepath.Join(dir, "atlas/msdl.nii.gz"); m.Atlas != want {
		t.Errorf("Atlas = %q, want %q", m.Atlas, want)
	}
	if m.Subjects[1].Func != "/abs/sub-02.nii.gz" {
		t.Errorf("absolute Func rewritten to %q", m.Subjects[1].Func)
	}
	if m.Subjects[1].ConfoundKey != "X" {
		t.Errorf("ConfoundKey = %q, want X", m.Subjects[1].ConfoundKey)
	}

	want := []string{
		filepath.Join(dir, "conf/sub-01.npz"),
		filepath.Join(dir, "conf/sub-02.mat"),
		"",
	}
	if got := m.ConfoundPaths(); !reflect.DeepEqual(got, want) {
		t.Errorf("ConfoundPaths() = %v, want %v", got, want)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want ErrNotExist", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{"empty", "", "empty document"},
		{"no atlas", "subjects: [{id: a, func: a.nii}]", "atlas is required"},
		{"no subjects", "atlas: a.nii", "no subjects"},
		{"empty id", "atlas: a.nii\nsubjects: [{func: a.nii}]", "subjects[0]: id is required"},
		{"missing func", "atlas: a.nii\nsubjects: [{id: a}]", "subjects[0]: func is required"},
		{"duplicate id", "atlas: a.nii\nsubjects: [{id: a, func: x}, {id: a, func: y}]", `duplicate id "a"`},
		{"separator in id", "atlas: a.nii\nsubjects: [{id: a/b, func: x}]", "path separator"},
		{"unknown field", "atlas: a.nii\nsubject: []", "field subject not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if !errors.Is(err, ErrInvalidManifest) {
				t.Fatalf("Parse() error = %v, want ErrInvalidManifest", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestHead(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleManifest))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := m.Head(2); len(got.Subjects) != 2 || got.Subjects[1].ID != "sub-02" {
		t.Errorf("Head(2) = %+v", got.Subjects)
	}
	if got := m.Head(0); len(got.Subjects) != 3 {
		t.Errorf("Head(0) kept %d subjects, want 3", len(got.Subjects))
	}

	h := m.Head(1)
	h.Subjects[0].ID = "changed"
	if m.Subjects[0].ID != "sub-01" {
		t.Error("Head() shares subjects with its source")
	}
}
