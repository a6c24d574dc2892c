// Package datamodel holds the in-memory data products exchanged between
// pipeline stages: cubes of exposures, single-plane images and ordered
// containers of either. Every model owns its pixel arrays and must be closed
// exactly once by whoever owns it when a stage hands it over.
package datamodel

import (
	"github.com/pkg/errors"
)

// ErrClosed is returned when a model is closed twice or saved after closing.
var ErrClosed = errors.New("model already closed")

// Data quality flags, one bit per condition.
const (
	DQDoNotUse uint32 = 1 << 0
	DQOutlier  uint32 = 1 << 4
)

// WCS is the coordinate transform attached to a science product. It is
// carried verbatim from model to model, never recomputed, so derived models
// share the same pointer.
type WCS struct {
	CType1, CType2 string
	CRPix1, CRPix2 float64
	CRVal1, CRVal2 float64
	CDelt1, CDelt2 float64
}

// Meta is the instrument and target metadata of a product plus free-form
// header cards.
type Meta struct {
	Telescope  string
	Instrument string
	Filter     string
	Target     string
	Cards      map[string]string
}

// Copy returns a deep copy of the metadata.
func (m Meta) Copy() Meta {
	out := m
	if m.Cards != nil {
		out.Cards = make(map[string]string, len(m.Cards))
		for k, v := range m.Cards {
			out.Cards[k] = v
		}
	}

	return out
}

// Model is the behaviour shared by every data product.
type Model interface {
	Save(path string) error
	Close() error
	Closed() bool
}

// CubeModel is a stack of image planes with per-pixel error and data quality
// arrays. Arrays are stored row-major, plane by plane.
type CubeModel struct {
	Data []float64
	Err  []float64
	DQ   []uint32

	Planes int
	Height int
	Width  int

	Meta Meta
	WCS  *WCS

	closed bool
}

// NewCube allocates a zero-filled cube.
func NewCube(planes, height, width int) *CubeModel {
	n := planes * height * width

	return &CubeModel{
		Data:   make([]float64, n),
		Err:    make([]float64, n),
		DQ:     make([]uint32, n),
		Planes: planes,
		Height: height,
		Width:  width,
	}
}

// PlaneSize is the number of pixels in one plane.
func (c *CubeModel) PlaneSize() int {
	return c.Height * c.Width
}

// Plane returns views of plane i's data, error and data quality arrays.
func (c *CubeModel) Plane(i int) (data, errArr []float64, dq []uint32) {
	n := c.PlaneSize()
	lo, hi := i*n, (i+1)*n

	return c.Data[lo:hi], c.Err[lo:hi], c.DQ[lo:hi]
}

// PlaneImage extracts plane i as a standalone image. The pixel arrays are
// copied, the metadata is copied, and the coordinate transform is shared
// verbatim with the cube.
func (c *CubeModel) PlaneImage(i int) (*ImageModel, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= c.Planes {
		return nil, errors.Errorf("plane %d out of range [0,%d)", i, c.Planes)
	}

	img := NewImage(c.Height, c.Width)
	data, errArr, dq := c.Plane(i)
	copy(img.Data, data)
	copy(img.Err, errArr)
	copy(img.DQ, dq)
	img.Meta = c.Meta.Copy()
	img.WCS = c.WCS

	return img, nil
}

// Close releases the cube. Closing twice is an error.
func (c *CubeModel) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.Data, c.Err, c.DQ = nil, nil, nil

	return nil
}

// Closed reports whether the cube has been released.
func (c *CubeModel) Closed() bool {
	return c.closed
}

// ImageModel is a single image plane with per-pixel error and data quality
// arrays, stored row-major.
type ImageModel struct {
	Data []float64
	Err  []float64
	DQ   []uint32

	Height int
	Width  int

	Meta Meta
	WCS  *WCS

	closed bool
}

// NewImage allocates a zero-filled image.
func NewImage(height, width int) *ImageModel {
	n := height * width

	return &ImageModel{
		Data:   make([]float64, n),
		Err:    make([]float64, n),
		DQ:     make([]uint32, n),
		Height: height,
		Width:  width,
	}
}

// Close releases the image. Closing twice is an error.
func (m *ImageModel) Close() error {
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.Data, m.Err, m.DQ = nil, nil, nil

	return nil
}

// Closed reports whether the image has been released.
func (m *ImageModel) Closed() bool {
	return m.closed
}
