package extract

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"
)

// ErrNotNifti is returned when a file is not a NIfTI-1 image this package can
// decode
var ErrNotNifti = errors.New("extract: not a NIfTI-1 image")

const niftiHeaderSize = 348

// NIfTI-1 datatype codes
const (
	dtUint8   = 2
	dtInt16   = 4
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
)

// niftiBitpix lists the datatypes nifti.Nifti1Image decodes, with the
// bitpix each one must carry. The library reads 1 and 2 byte voxels as
// unsigned, so the signed ones are reinterpreted in At.
var niftiBitpix = map[int16]int16{
	dtUint8:   8,
	dtInt8:    8,
	dtInt16:   16,
	dtUint16:  16,
	dtFloat32: 32,
	dtFloat64: 64,
}

type niftiVolume struct {
	img      nifti.Nifti1Image
	dims     [4]int
	datatype int16
	slope    float64
	inter    float64
}

// OpenNifti loads a single-file little-endian NIfTI-1 image (.nii or
// .nii.gz) into memory. Voxels are returned with scl_slope and scl_inter
// applied.
func OpenNifti(path string) (Volume, error) {
	if err := checkNifti(path); err != nil {
		return nil, err
	}

	v := &niftiVolume{}
	v.img.LoadImage(path, true)

	hdr := v.img.GetHeader()
	rank := int(hdr.Dim[0])
	for i, d := range v.img.GetDims() {
		v.dims[i] = 1
		if i < rank {
			v.dims[i] = d
		}
	}

	// GetTimeSeries counts the complete volumes present in the data block
	if got := len(v.img.GetTimeSeries(0, 0, 0)); got < v.dims[3] {
		return nil, fmt.Errorf("%w: %s: truncated, %d of %d volumes", ErrNotNifti, path, got, v.dims[3])
	}

	v.datatype = hdr.Datatype
	v.slope, v.inter = 1, 0
	if s := float64(hdr.SclSlope); s != 0 && !math.IsNaN(s) && !math.IsInf(s, 0) {
		v.slope, v.inter = s, float64(hdr.SclInter)
	}

	return v, nil
}

func (v *niftiVolume) Dims() [4]int {
	return v.dims
}

func (v *niftiVolume) At(x, y, z, t int) float64 {
	raw := v.img.GetAt(uint32(x), uint32(y), uint32(z), uint32(t))

	var val float64
	switch v.datatype {
	case dtInt8:
		val = float64(int8(uint8(raw)))
	case dtInt16:
		val = float64(int16(uint16(raw)))
	default:
		val = float64(raw)
	}

	return val*v.slope + v.inter
}

// checkNifti validates the header and the voxel offset before the image
// library sees the file. The library reports nothing on failure and panics
// on layouts it cannot decode.
func checkNifti(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotNifti, path, err)
		}
		defer gz.Close()
		r = gz
	}

	buf := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotNifti, path, err)
	}

	hdr, err := parseNiftiHeader(buf)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if skip := int64(hdr.VoxOffset) - niftiHeaderSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return fmt.Errorf("%w: %s: data offset %v past end of file", ErrNotNifti, path, hdr.VoxOffset)
		}
	}

	return nil
}

// parseNiftiHeader decodes a raw header into the library's header type and
// rejects what nifti.Nifti1Image would misread.
func parseNiftiHeader(buf []byte) (nifti.Nifti1Header, error) {
	var hdr nifti.Nifti1Header

	switch {
	case binary.LittleEndian.Uint32(buf[0:4]) == niftiHeaderSize:
	case binary.BigEndian.Uint32(buf[0:4]) == niftiHeaderSize:
		return hdr, fmt.Errorf("%w: big-endian byte order", ErrNotNifti)
	default:
		return hdr, ErrNotNifti
	}

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr); err != nil {
		return hdr, fmt.Errorf("%w: %w", ErrNotNifti, err)
	}

	if string(hdr.Magic[:]) != "n+1\x00" {
		return hdr, fmt.Errorf("%w: magic %q, want single-file n+1", ErrNotNifti, hdr.Magic[:3])
	}

	rank := int(hdr.Dim[0])
	if rank < 3 || rank > 7 {
		return hdr, fmt.Errorf("%w: rank %d", ErrNotNifti, rank)
	}
	for i := 1; i <= rank; i++ {
		if hdr.Dim[i] < 1 {
			return hdr, fmt.Errorf("%w: dim[%d] = %d", ErrNotNifti, i, hdr.Dim[i])
		}
		if i > 4 && hdr.Dim[i] > 1 {
			return hdr, fmt.Errorf("%w: dim[%d] = %d beyond time axis", ErrNotNifti, i, hdr.Dim[i])
		}
	}

	bitpix, ok := niftiBitpix[hdr.Datatype]
	if !ok {
		return hdr, fmt.Errorf("%w: unsupported datatype %d", ErrNotNifti, hdr.Datatype)
	}
	if hdr.Bitpix != bitpix {
		return hdr, fmt.Errorf("%w: datatype %d with bitpix %d", ErrNotNifti, hdr.Datatype, hdr.Bitpix)
	}

	off := float64(hdr.VoxOffset)
	if math.IsNaN(off) || off < niftiHeaderSize || off > math.MaxInt32 {
		return hdr, fmt.Errorf("%w: vox_offset %v", ErrNotNifti, hdr.VoxOffset)
	}

	return hdr, nil
}
