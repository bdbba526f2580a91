package extract

import "fmt"

// Volume is a 4D image sampled on an integer voxel grid. A 3D image has a
// single frame.
type Volume interface {
	Dims() [4]int
	At(x, y, z, t int) float64
}

// MemVolume is a Volume held in memory, x fastest
type MemVolume struct {
	dims [4]int
	data []float64
}

// NewMemVolume returns a zeroed volume of the given size. A zero frame count
// is treated as 1.
func NewMemVolume(nx, ny, nz, nt int) *MemVolume {
	if nt < 1 {
		nt = 1
	}
	return &MemVolume{
		dims: [4]int{nx, ny, nz, nt},
		data: make([]float64, nx*ny*nz*nt),
	}
}

func (v *MemVolume) index(x, y, z, t int) int {
	return x + v.dims[0]*(y+v.dims[1]*(z+v.dims[2]*t))
}

// Dims returns x, y, z and frame counts
func (v *MemVolume) Dims() [4]int {
	return v.dims
}

// At returns the voxel value
func (v *MemVolume) At(x, y, z, t int) float64 {
	return v.data[v.index(x, y, z, t)]
}

// Set stores the voxel value
func (v *MemVolume) Set(x, y, z, t int, value float64) {
	v.data[v.index(x, y, z, t)] = value
}

func sameGrid(a, b [4]int) bool {
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2]
}

func gridString(d [4]int) string {
	return fmt.Sprintf("%dx%dx%d", d[0], d[1], d[2])
}
