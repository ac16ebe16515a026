package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/hyperjump/benkyo/pkg/utils"
)

// ErrCorruptIndex is returned when a persisted index blob cannot be decoded.
var ErrCorruptIndex = errors.New("corrupt vector index")

const (
	indexMagic   = "BKVI"
	indexVersion = 1
	headerSize   = 16 // magic (4), version (4), dimensions (4), count (4)
)

// MarshalBinary encodes the index as: magic "BKVI", version, dimensions, count
// (uint32 little-endian each), then count*dimensions float32 little-endian values.
func (x *FlatIndex) MarshalBinary() ([]byte, error) {
	out := make([]byte, headerSize, headerSize+len(x.vectors)*x.dimensions*4)
	copy(out[0:4], indexMagic)
	binary.LittleEndian.PutUint32(out[4:8], indexVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(x.dimensions))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(x.vectors)))
	for _, vec := range x.vectors {
		out = append(out, float32SliceToBytes(vec)...)
	}
	return out, nil
}

// UnmarshalBinary replaces the index contents with the decoded blob. On error the
// index is left unchanged.
func (x *FlatIndex) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptIndex, len(data))
	}
	if string(data[0:4]) != indexMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, data[0:4])
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != indexVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	n := int(binary.LittleEndian.Uint32(data[12:16]))
	if n > 0 && dim == 0 {
		return fmt.Errorf("%w: %d vectors with zero dimensions", ErrCorruptIndex, n)
	}
	body := data[headerSize:]
	if dim > 0 && uint64(n) > uint64(len(body))/(uint64(dim)*4) {
		return fmt.Errorf("%w: truncated, header implies %d vectors of %d dimensions", ErrCorruptIndex, n, dim)
	}
	if len(body) != n*dim*4 {
		return fmt.Errorf("%w: size %d bytes, header implies %d", ErrCorruptIndex, len(data), headerSize+n*dim*4)
	}
	vectors := make([][]float32, n)
	stride := dim * 4
	for i := 0; i < n; i++ {
		vectors[i] = bytesToFloat32Slice(body[i*stride : (i+1)*stride])
	}
	if n == 0 {
		dim = 0
	}
	x.dimensions = dim
	x.vectors = vectors
	return nil
}

// Save writes the index blob to path, replacing any previous file atomically.
func (x *FlatIndex) Save(path string) error {
	data, err := x.MarshalBinary()
	if err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	return nil
}

// Load reads the index from path. A missing file reports found=false with no error
// and leaves the index unchanged.
func (x *FlatIndex) Load(path string) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read vector index: %w", err)
	}
	if err := x.UnmarshalBinary(data); err != nil {
		return true, err
	}
	return true, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
