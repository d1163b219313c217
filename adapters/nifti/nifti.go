// Package nifti stores statistical maps as single-file NIfTI-1 images with
// float32 voxels and an MNI sform, gzip-compressed for ".gz" paths.
package nifti

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"goale/domain/core"
	"goale/domain/statmap"
)

const (
	headerSize = 348
	voxOffset  = 352

	datatypeFloat32 = 16
	datatypeFloat64 = 64
	unitsMM         = 2
	xformMNI        = 4
)

// header is the on-disk NIfTI-1 layout, field for field
type header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Store implements ports.MapWriter and ports.MapReader
type Store struct{}

// NewStore creates a NIfTI store
func NewStore() *Store { return &Store{} }

func compressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

func newHeader(v statmap.Volume, description string) header {
	g := v.Grid
	h := header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  datatypeFloat32,
		Bitpix:    32,
		VoxOffset: voxOffset,
		SclSlope:  1,
		XYZTUnits: unitsMM,
		CalMax:    float32(v.Max()),
		CalMin:    float32(v.Min()),
		QformCode: xformMNI,
		SformCode: xformMNI,
		QoffsetX:  float32(g.Origin[0]),
		QoffsetY:  float32(g.Origin[1]),
		QoffsetZ:  float32(g.Origin[2]),
		SrowX:     [4]float32{float32(g.VoxelSize), 0, 0, float32(g.Origin[0])},
		SrowY:     [4]float32{0, float32(g.VoxelSize), 0, float32(g.Origin[1])},
		SrowZ:     [4]float32{0, 0, float32(g.VoxelSize), float32(g.Origin[2])},
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	h.Dim = [8]int16{3, int16(g.Dims[0]), int16(g.Dims[1]), int16(g.Dims[2]), 1, 1, 1, 1}
	h.Pixdim = [8]float32{1, float32(g.VoxelSize), float32(g.VoxelSize), float32(g.VoxelSize), 1, 1, 1, 1}
	copy(h.Descrip[:], description)
	return h
}

// WriteMap writes v to path, creating parent directories
func (s *Store) WriteMap(ctx context.Context, v statmap.Volume, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(v.Data) != v.Grid.Len() {
		return fmt.Errorf("write %s: volume has %d voxels, grid needs %d", path, len(v.Data), v.Grid.Len())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.NewIOError("mkdir", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return core.NewIOError("create", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var zw *gzip.Writer
	if compressed(path) {
		zw = gzip.NewWriter(f)
		w = zw
	}
	bw := bufio.NewWriter(w)

	if err := encode(bw, v, "goale "+filepath.Base(path)); err != nil {
		return core.NewIOError("write", path, err)
	}
	if err := bw.Flush(); err != nil {
		return core.NewIOError("write", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return core.NewIOError("write", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return core.NewIOError("close", path, err)
	}
	return nil
}

func encode(w io.Writer, v statmap.Volume, description string) error {
	h := newHeader(v, description)
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}
	if _, err := w.Write(make([]byte, voxOffset-headerSize)); err != nil {
		return err
	}
	buf := make([]byte, 4*len(v.Data))
	for i, x := range v.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(x)))
	}
	_, err := w.Write(buf)
	return err
}

// ReadMap reads a float32 or float64 NIfTI-1 image written in little-endian
// order
func (s *Store) ReadMap(ctx context.Context, path string) (statmap.Volume, error) {
	if err := ctx.Err(); err != nil {
		return statmap.Volume{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return statmap.Volume{}, core.NewIOError("open", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if compressed(path) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return statmap.Volume{}, core.NewIOError("decompress", path, err)
		}
		defer zr.Close()
		r = zr
	}

	v, err := decode(r)
	if err != nil {
		return statmap.Volume{}, core.NewIOError("decode", path, err)
	}
	return v, nil
}

func decode(r io.Reader) (statmap.Volume, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return statmap.Volume{}, err
	}
	if h.SizeofHdr != headerSize {
		return statmap.Volume{}, fmt.Errorf("not a little-endian NIfTI-1 file (sizeof_hdr %d)", h.SizeofHdr)
	}
	if h.Dim[0] < 3 {
		return statmap.Volume{}, fmt.Errorf("expected a 3-D image, got %d dimensions", h.Dim[0])
	}
	if h.Pixdim[1] <= 0 || h.Pixdim[1] != h.Pixdim[2] || h.Pixdim[1] != h.Pixdim[3] {
		return statmap.Volume{}, fmt.Errorf("expected isotropic voxels, got %v", h.Pixdim[1:4])
	}

	g := statmap.Grid{
		Dims:      [3]int{int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3])},
		VoxelSize: float64(h.Pixdim[1]),
		Origin:    [3]float64{float64(h.SrowX[3]), float64(h.SrowY[3]), float64(h.SrowZ[3])},
	}
	if skip := int64(h.VoxOffset) - headerSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return statmap.Volume{}, err
		}
	}

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope == 0 {
		slope, inter = 1, 0
	}
	v := statmap.NewVolume(g)
	switch h.Datatype {
	case datatypeFloat32:
		buf := make([]byte, 4*len(v.Data))
		if _, err := io.ReadFull(r, buf); err != nil {
			return statmap.Volume{}, err
		}
		for i := range v.Data {
			v.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))*slope + inter
		}
	case datatypeFloat64:
		buf := make([]byte, 8*len(v.Data))
		if _, err := io.ReadFull(r, buf); err != nil {
			return statmap.Volume{}, err
		}
		for i := range v.Data {
			v.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))*slope + inter
		}
	default:
		return statmap.Volume{}, fmt.Errorf("unsupported datatype %d", h.Datatype)
	}
	return v, nil
}
