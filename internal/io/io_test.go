package io

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

func seqDense(rows, cols int) *mat64.Dense {
	m := mat64.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, float64(i*cols+j)+0.25)
		}
	}
	return m
}

func TestWriteNpz_OpenNpz(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confounds.npz")

	arrays := map[string]*Array{
		"R":     ArrayOf(seqDense(3, 5)),
		"names": {Shape: []int{4}, Data: []float64{1, 2, 3, 4}},
	}
	if err := WriteNpz(path, arrays); err != nil {
		t.Fatalf("WriteNpz() error = %v", err)
	}

	f, err := OpenNpz(path)
	if err != nil {
		t.Fatalf("OpenNpz() error = %v", err)
	}
	defer f.Close()

	keys := f.Keys()
	if len(keys) != 2 || keys[0] != "R" || keys[1] != "names" {
		t.Fatalf("Keys() = %v, want [R names]", keys)
	}

	a, err := f.Get("R")
	if err != nil {
		t.Fatalf("Get(R) error = %v", err)
	}
	if a.Rank() != 2 || a.Shape[0] != 3 || a.Shape[1] != 5 {
		t.Fatalf("Get(R) shape = %v, want [3 5]", a.Shape)
	}
	m, err := a.Dense()
	if err != nil {
		t.Fatalf("Dense() error = %v", err)
	}
	if !mat64.Equal(m, seqDense(3, 5)) {
		t.Error("Get(R) data does not match what was written")
	}

	v, err := f.Get("names")
	if err != nil {
		t.Fatalf("Get(names) error = %v", err)
	}
	if v.Rank() != 1 || v.Len() != 4 {
		t.Errorf("Get(names) shape = %v, want [4]", v.Shape)
	}
}

func TestNpzFile_GetMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.npz")
	if err := WriteNpz(path, map[string]*Array{"R": ArrayOf(seqDense(2, 2))}); err != nil {
		t.Fatalf("WriteNpz() error = %v", err)
	}

	f, err := OpenNpz(path)
	if err != nil {
		t.Fatalf("OpenNpz() error = %v", err)
	}
	defer f.Close()

	if _, err := f.Get("missing"); !errors.Is(err, ErrNoKey) {
		t.Errorf("Get(missing) error = %v, want ErrNoKey", err)
	}
}

func TestOpenArrayFile(t *testing.T) {
	dir := t.TempDir()

	npzPath := filepath.Join(dir, "a.npz")
	if err := WriteNpz(npzPath, map[string]*Array{"R": ArrayOf(seqDense(2, 3))}); err != nil {
		t.Fatalf("WriteNpz() error = %v", err)
	}
	npyPath := filepath.Join(dir, "motion.npy")
	if err := Mat64toNpy(npyPath, seqDense(4, 2)); err != nil {
		t.Fatalf("Mat64toNpy() error = %v", err)
	}
	txtPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txtPath, []byte("not an array"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantKey string
		wantErr error
	}{
		{"npz", npzPath, "R", nil},
		{"npy", npyPath, "motion", nil},
		{"text", txtPath, "", ErrUnsupportedFormat},
		{"missing", filepath.Join(dir, "nope.npz"), "", os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := OpenArrayFile(tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("OpenArrayFile() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenArrayFile() error = %v", err)
			}
			defer f.Close()

			keys := f.Keys()
			if len(keys) != 1 || keys[0] != tt.wantKey {
				t.Fatalf("Keys() = %v, want [%s]", keys, tt.wantKey)
			}
			if _, err := f.Get(tt.wantKey); err != nil {
				t.Errorf("Get(%s) error = %v", tt.wantKey, err)
			}
		})
	}
}

func TestRowMajor(t *testing.T) {
	// 2x3 matrix [[1 2 3] [4 5 6]] stored column-major
	got := rowMajor([]int{2, 3}, []float64{1, 4, 2, 5, 3, 6})
	want := []float64{1, 2, 3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rowMajor() = %v, want %v", got, want)
		}
	}

	// 2x2x2 cube, element (i,j,k) = 100i + 10j + k
	shape := []int{2, 2, 2}
	fortran := make([]float64, 8)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				fortran[i+2*j+4*k] = float64(100*i + 10*j + k)
			}
		}
	}
	got = rowMajor(shape, fortran)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				if v := got[4*i+2*j+k]; v != float64(100*i+10*j+k) {
					t.Fatalf("rowMajor()[%d,%d,%d] = %v", i, j, k, v)
				}
			}
		}
	}
}

func TestNpytoMat64(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.npy")
	want := seqDense(6, 4)
	if err := Mat64toNpy(path, want); err != nil {
		t.Fatalf("Mat64toNpy() error = %v", err)
	}

	got, err := NpytoMat64(path)
	if err != nil {
		t.Fatalf("NpytoMat64() error = %v", err)
	}
	if !mat64.Equal(got, want) {
		t.Error("NpytoMat64() does not match written matrix")
	}
}

func TestReadNpy_Dtypes(t *testing.T) {
	tests := []struct {
		name  string
		write func(*gonpy.NpyWriter) error
		want  []float64
	}{
		{"f4", func(w *gonpy.NpyWriter) error { return w.WriteFloat32([]float32{-1.5, 0, 2, 3, 4, 5}) }, []float64{-1.5, 0, 2, 3, 4, 5}},
		{"i8", func(w *gonpy.NpyWriter) error { return w.WriteInt64([]int64{-3, 0, 1, 2, 3, 1 << 40}) }, []float64{-3, 0, 1, 2, 3, 1 << 40}},
		{"i4", func(w *gonpy.NpyWriter) error { return w.WriteInt32([]int32{-7, 1, 2, 3, 4, 5}) }, []float64{-7, 1, 2, 3, 4, 5}},
		{"i2", func(w *gonpy.NpyWriter) error { return w.WriteInt16([]int16{-32768, -1, 0, 1, 2, 32767}) }, []float64{-32768, -1, 0, 1, 2, 32767}},
		{"i1", func(w *gonpy.NpyWriter) error { return w.WriteInt8([]int8{-128, -1, 0, 1, 2, 127}) }, []float64{-128, -1, 0, 1, 2, 127}},
		{"u8", func(w *gonpy.NpyWriter) error { return w.WriteUint64([]uint64{0, 1, 2, 3, 4, 1 << 50}) }, []float64{0, 1, 2, 3, 4, 1 << 50}},
		{"u4", func(w *gonpy.NpyWriter) error { return w.WriteUint32([]uint32{0, 1, 2, 3, 4, 4000000000}) }, []float64{0, 1, 2, 3, 4, 4000000000}},
		{"u2", func(w *gonpy.NpyWriter) error { return w.WriteUint16([]uint16{0, 1, 2, 3, 4, 65535}) }, []float64{0, 1, 2, 3, 4, 65535}},
		{"u1", func(w *gonpy.NpyWriter) error { return w.WriteUint8([]uint8{0, 1, 2, 3, 4, 255}) }, []float64{0, 1, 2, 3, 4, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.name+".npy")
			w, err := gonpy.NewFileWriter(path)
			if err != nil {
				t.Fatal(err)
			}
			w.Shape = []int{2, 3}
			if err := tt.write(w); err != nil {
				t.Fatalf("write %s: %v", tt.name, err)
			}

			a, err := ReadNpy(path)
			if err != nil {
				t.Fatalf("ReadNpy() error = %v", err)
			}
			if !reflect.DeepEqual(a.Shape, []int{2, 3}) || !reflect.DeepEqual(a.Data, tt.want) {
				t.Errorf("ReadNpy() = %v %v, want [2 3] %v", a.Shape, a.Data, tt.want)
			}
		})
	}
}

func TestReadNpy_Complex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.npy")
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Shape = []int{2}
	if err := w.WriteComplex128([]complex128{1, 2i}); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadNpy(path); !errors.Is(err, ErrDtype) {
		t.Errorf("ReadNpy() error = %v, want ErrDtype", err)
	}
}

func TestMat64toCSV_CSVtoMat64(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.csv")
	want := seqDense(17, 3)
	if err := Mat64toCSV(path, want); err != nil {
		t.Fatalf("Mat64toCSV() error = %v", err)
	}

	got, err := CSVtoMat64(path)
	if err != nil {
		t.Fatalf("CSVtoMat64() error = %v", err)
	}
	if !mat64.Equal(got, want) {
		t.Error("CSVtoMat64() does not match written matrix")
	}
}

func TestCSVtoMat64_BadValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("1, 2\n3, x\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := CSVtoMat64(path); err == nil {
		t.Error("CSVtoMat64() should fail on a non-numeric field")
	}
}

func TestMat64toBin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.bin")
	if err := Mat64toBin(path, seqDense(3, 7)); err != nil {
		t.Fatalf("Mat64toBin() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 3*7*8 {
		t.Errorf("file size = %d, want %d", info.Size(), 3*7*8)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"npy", FormatNpy, false},
		{".CSV", FormatCSV, false},
		{"bin", FormatBin, false},
		{"mat", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
