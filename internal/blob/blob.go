package blob

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"

	"github.com/organization-ai-projects/ai-search/internal/tensor"
)

var (
	ErrNotFound     = errors.New("blob not found")
	ErrInvalidShape = errors.New("invalid blob shape")
	ErrCorrupt      = errors.New("corrupt blob encoding")
)

// headerSize is the length of the canonical encoding's shape prefix.
const headerSize = 8

// ID is the multibase (base32) text of a blob's CIDv1.
type ID string

// CID parses the id back into a CID.
func (id ID) CID() (gocid.Cid, error) {
	return gocid.Decode(string(id))
}

// Blob is an immutable dense 2-D weight matrix in row-major order.
type Blob struct {
	Shape tensor.Shape
	Data  []float32
}

// New builds a blob, validating that data matches the shape.
func New(shape tensor.Shape, data []float32) (Blob, error) {
	b := Blob{Shape: shape, Data: data}
	if err := b.validate(); err != nil {
		return Blob{}, err
	}
	return b, nil
}

// FromMat copies a matrix into a new blob.
func FromMat(m *tensor.Mat) Blob {
	data := make([]float32, 0, m.R*m.C)
	for i := 0; i < m.R; i++ {
		data = append(data, m.Row(i)...)
	}
	return Blob{Shape: m.Shape(), Data: data}
}

// Mat returns a fresh matrix holding a copy of the blob's values.
func (b Blob) Mat() tensor.Mat {
	data := make([]float32, len(b.Data))
	copy(data, b.Data)
	return tensor.NewMatFromData(b.Shape.Out, b.Shape.In, data)
}

func (b Blob) validate() error {
	if !b.Shape.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidShape, b.Shape)
	}
	if len(b.Data) != b.Shape.Size() {
		return fmt.Errorf("%w: %s with %d values", ErrInvalidShape, b.Shape, len(b.Data))
	}
	return nil
}

// Bytes returns the canonical encoding: u32le out, u32le in, then out·in
// little-endian float32 values.
func (b Blob) Bytes() []byte {
	buf := make([]byte, headerSize+4*len(b.Data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(b.Shape.Out))
	binary.LittleEndian.PutUint32(buf[4:], uint32(b.Shape.In))
	off := headerSize
	for _, v := range b.Data {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	return buf
}

// Decode parses a canonical encoding. The returned blob does not alias data.
func Decode(data []byte) (Blob, error) {
	if len(data) < headerSize {
		return Blob{}, ErrCorrupt
	}
	shape := tensor.Shape{
		Out: int(binary.LittleEndian.Uint32(data[0:])),
		In:  int(binary.LittleEndian.Uint32(data[4:])),
	}
	if !shape.Valid() || len(data)-headerSize != 4*shape.Size() {
		return Blob{}, fmt.Errorf("%w: shape %s, %d payload bytes", ErrCorrupt, shape, len(data)-headerSize)
	}
	vals := make([]float32, shape.Size())
	off := headerSize
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	return Blob{Shape: shape, Data: vals}, nil
}

// ComputeID computes the blob identity: a CIDv1 (raw codec, SHA2-256) over
// the canonical encoding, rendered as base32 multibase text.
func ComputeID(data []byte) (ID, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("multihash: %w", err)
	}
	c := gocid.NewCidV1(gocid.Raw, mh)
	encoded, err := multibase.Encode(multibase.Base32, c.Bytes())
	if err != nil {
		return "", fmt.Errorf("multibase: %w", err)
	}
	return ID(encoded), nil
}

// Hash returns the identity of b.
func (b Blob) Hash() (ID, error) {
	return ComputeID(b.Bytes())
}
