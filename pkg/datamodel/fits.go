package datamodel

import (
	"os"
	"sort"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
)

// FITS extension names used for science products.
const (
	extSci = "SCI"
	extErr = "ERR"
	extDQ  = "DQ"
)

// Save writes the cube to path as a FITS file with SCI, ERR and DQ image
// extensions.
func (c *CubeModel) Save(path string) error {
	if c.closed {
		return ErrClosed
	}
	axes := []int{c.Width, c.Height, c.Planes}

	return writeFITS(path, c.Meta, c.WCS, axes, c.Data, c.Err, c.DQ)
}

// Save writes the image to path as a FITS file with SCI, ERR and DQ image
// extensions.
func (m *ImageModel) Save(path string) error {
	if m.closed {
		return ErrClosed
	}
	axes := []int{m.Width, m.Height}

	return writeFITS(path, m.Meta, m.WCS, axes, m.Data, m.Err, m.DQ)
}

// Open reads a cube product written by CubeModel.Save.
func Open(path string) (*CubeModel, error) {
	meta, wcs, axes, data, errArr, dq, err := readFITS(path)
	if err != nil {
		return nil, err
	}
	if len(axes) != 3 {
		return nil, errors.Errorf("%s: expected a 3-D cube, got %d axes", path, len(axes))
	}

	return &CubeModel{
		Data:   data,
		Err:    errArr,
		DQ:     dq,
		Planes: axes[2],
		Height: axes[1],
		Width:  axes[0],
		Meta:   meta,
		WCS:    wcs,
	}, nil
}

// OpenImage reads a single-plane product written by ImageModel.Save.
func OpenImage(path string) (*ImageModel, error) {
	meta, wcs, axes, data, errArr, dq, err := readFITS(path)
	if err != nil {
		return nil, err
	}
	if len(axes) != 2 {
		return nil, errors.Errorf("%s: expected a 2-D image, got %d axes", path, len(axes))
	}

	return &ImageModel{
		Data:   data,
		Err:    errArr,
		DQ:     dq,
		Height: axes[1],
		Width:  axes[0],
		Meta:   meta,
		WCS:    wcs,
	}, nil
}

func writeFITS(path string, meta Meta, wcs *WCS, axes []int, data, errArr []float64, dq []uint32) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer out.Close()

	fits, err := fitsio.Create(out)
	if err != nil {
		return errors.Wrapf(err, "unable to create FITS file %s", path)
	}
	defer fits.Close()

	prim := fitsio.NewImage(8, []int{})
	defer prim.Close()
	if err := prim.Header().Append(metaCards(meta)...); err != nil {
		return errors.Wrap(err, "unable to write primary header")
	}
	if err := fits.Write(prim); err != nil {
		return errors.Wrapf(err, "unable to write primary HDU to %s", path)
	}

	if err := writeImageHDU(fits, extSci, -64, axes, &data, wcs); err != nil {
		return errors.Wrapf(err, "unable to write SCI extension to %s", path)
	}
	if err := writeImageHDU(fits, extErr, -64, axes, &errArr, nil); err != nil {
		return errors.Wrapf(err, "unable to write ERR extension to %s", path)
	}
	raw := make([]int32, len(dq))
	for i, v := range dq {
		raw[i] = int32(v)
	}
	if err := writeImageHDU(fits, extDQ, 32, axes, &raw, nil); err != nil {
		return errors.Wrapf(err, "unable to write DQ extension to %s", path)
	}

	return nil
}

func writeImageHDU(fits *fitsio.File, name string, bitpix int, axes []int, ptr interface{}, wcs *WCS) error {
	hdu := fitsio.NewImage(bitpix, axes)
	defer hdu.Close()

	cards := []fitsio.Card{{Name: "EXTNAME", Value: name}}
	if wcs != nil {
		cards = append(cards,
			fitsio.Card{Name: "CTYPE1", Value: wcs.CType1},
			fitsio.Card{Name: "CTYPE2", Value: wcs.CType2},
			fitsio.Card{Name: "CRPIX1", Value: wcs.CRPix1},
			fitsio.Card{Name: "CRPIX2", Value: wcs.CRPix2},
			fitsio.Card{Name: "CRVAL1", Value: wcs.CRVal1},
			fitsio.Card{Name: "CRVAL2", Value: wcs.CRVal2},
			fitsio.Card{Name: "CDELT1", Value: wcs.CDelt1},
			fitsio.Card{Name: "CDELT2", Value: wcs.CDelt2},
		)
	}
	if err := hdu.Header().Append(cards...); err != nil {
		return errors.Wrap(err, "unable to append extension header")
	}
	if err := hdu.Write(ptr); err != nil {
		return errors.Wrap(err, "unable to write extension data")
	}

	return fits.Write(hdu)
}

func metaCards(meta Meta) []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "TELESCOP", Value: meta.Telescope},
		{Name: "INSTRUME", Value: meta.Instrument},
		{Name: "FILTER", Value: meta.Filter},
		{Name: "TARGNAME", Value: meta.Target},
	}

	keys := make([]string, 0, len(meta.Cards))
	for k := range meta.Cards {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cards = append(cards, fitsio.Card{Name: k, Value: meta.Cards[k]})
	}

	return cards
}

func readFITS(path string) (Meta, *WCS, []int, []float64, []float64, []uint32, error) {
	var meta Meta

	in, err := os.Open(path)
	if err != nil {
		return meta, nil, nil, nil, nil, nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer in.Close()

	fits, err := fitsio.Open(in)
	if err != nil {
		return meta, nil, nil, nil, nil, nil, errors.Wrapf(err, "unable to read FITS file %s", path)
	}
	defer fits.Close()

	meta = metaFromHeader(fits.HDU(0).Header())

	var (
		axes   []int
		data   []float64
		errArr []float64
		dq     []uint32
		wcs    *WCS
	)
	for _, hdu := range fits.HDUs()[1:] {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		switch hdu.Name() {
		case extSci:
			axes = append([]int{}, img.Header().Axes()...)
			data = make([]float64, imageLen(img.Header().Axes()))
			if err := img.Read(&data); err != nil {
				return meta, nil, nil, nil, nil, nil, errors.Wrapf(err, "unable to read SCI data from %s", path)
			}
			wcs = wcsFromHeader(img.Header())
		case extErr:
			errArr = make([]float64, imageLen(img.Header().Axes()))
			if err := img.Read(&errArr); err != nil {
				return meta, nil, nil, nil, nil, nil, errors.Wrapf(err, "unable to read ERR data from %s", path)
			}
		case extDQ:
			raw := make([]int32, imageLen(img.Header().Axes()))
			if err := img.Read(&raw); err != nil {
				return meta, nil, nil, nil, nil, nil, errors.Wrapf(err, "unable to read DQ data from %s", path)
			}
			dq = make([]uint32, len(raw))
			for i, v := range raw {
				dq[i] = uint32(v)
			}
		}
	}
	if data == nil {
		return meta, nil, nil, nil, nil, nil, errors.Errorf("%s has no SCI extension", path)
	}

	return meta, wcs, axes, data, errArr, dq, nil
}

// imageLen returns the number of pixels described by a FITS image header's
// axes; fitsio.Image.Read requires the destination slice to be allocated to
// this length before the call.
func imageLen(axes []int) int {
	if len(axes) == 0 {
		return 0
	}
	n := 1
	for _, dim := range axes {
		n *= dim
	}

	return n
}

func metaFromHeader(hdr *fitsio.Header) Meta {
	meta := Meta{}
	meta.Telescope, _ = headerString(hdr, "TELESCOP")
	meta.Instrument, _ = headerString(hdr, "INSTRUME")
	meta.Filter, _ = headerString(hdr, "FILTER")
	meta.Target, _ = headerString(hdr, "TARGNAME")

	return meta
}

func wcsFromHeader(hdr *fitsio.Header) *WCS {
	ctype1, ok := headerString(hdr, "CTYPE1")
	if !ok {
		return nil
	}

	wcs := &WCS{CType1: ctype1}
	wcs.CType2, _ = headerString(hdr, "CTYPE2")
	wcs.CRPix1, _ = headerFloat(hdr, "CRPIX1")
	wcs.CRPix2, _ = headerFloat(hdr, "CRPIX2")
	wcs.CRVal1, _ = headerFloat(hdr, "CRVAL1")
	wcs.CRVal2, _ = headerFloat(hdr, "CRVAL2")
	wcs.CDelt1, _ = headerFloat(hdr, "CDELT1")
	wcs.CDelt2, _ = headerFloat(hdr, "CDELT2")

	return wcs
}

func headerString(hdr *fitsio.Header, name string) (string, bool) {
	card := hdr.Get(name)
	if card == nil {
		return "", false
	}
	s, ok := card.Value.(string)

	return s, ok
}

func headerFloat(hdr *fitsio.Header, name string) (float64, bool) {
	card := hdr.Get(name)
	if card == nil {
		return 0, false
	}
	switch v := card.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}

	return 0, false
}
