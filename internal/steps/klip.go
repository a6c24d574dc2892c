package steps

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// Klip subtracts the stellar PSF from each target integration by projecting
// it onto a truncated Karhunen-Loeve basis built from the aligned reference
// planes.
type Klip struct {
	// Modes is the number of KL modes retained. Zero or negative keeps
	// every available mode.
	Modes int
}

// Subtract implements pipeline.Subtractor. The output cube has one plane per
// target integration and carries the target's metadata and coordinate
// transform unchanged.
func (k Klip) Subtract(ctx context.Context, targetFile string, alignedPSFs *datamodel.CubeModel) (*datamodel.CubeModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if alignedPSFs.Planes == 0 {
		return nil, errors.New("aligned reference cube has no planes")
	}

	target, err := datamodel.Open(targetFile)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open target %s", targetFile)
	}
	defer target.Close()

	if target.Height != alignedPSFs.Height || target.Width != alignedPSFs.Width {
		return nil, errors.Errorf("target %s dimensions %dx%d do not match references %dx%d",
			targetFile, target.Height, target.Width, alignedPSFs.Height, alignedPSFs.Width)
	}

	npix := alignedPSFs.PlaneSize()
	nref := alignedPSFs.Planes

	// One mean-subtracted reference plane per row.
	refs := mat.NewDense(nref, npix, nil)
	for r := 0; r < nref; r++ {
		data, _, _ := alignedPSFs.Plane(r)
		mean := stat.Mean(data, nil)
		for j, v := range data {
			refs.Set(r, j, v-mean)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(refs, mat.SVDThin) {
		return nil, errors.New("unable to factorise reference matrix")
	}
	// One KL mode per column of V, length npix.
	var basis mat.Dense
	svd.VTo(&basis)
	_, avail := basis.Dims()

	modes := k.Modes
	if modes <= 0 || modes > avail {
		modes = avail
	}

	out := datamodel.NewCube(target.Planes, target.Height, target.Width)
	out.Meta = target.Meta.Copy()
	out.WCS = target.WCS

	centered := make([]float64, npix)
	model := make([]float64, npix)
	for p := 0; p < target.Planes; p++ {
		data, errArr, dq := target.Plane(p)
		mean := stat.Mean(data, nil)
		for j, v := range data {
			centered[j] = v - mean
			model[j] = 0
		}

		for m := 0; m < modes; m++ {
			var coeff float64
			for j := 0; j < npix; j++ {
				coeff += basis.At(j, m) * centered[j]
			}
			for j := 0; j < npix; j++ {
				model[j] += coeff * basis.At(j, m)
			}
		}

		outData, outErr, outDQ := out.Plane(p)
		for j := 0; j < npix; j++ {
			outData[j] = centered[j] - model[j]
		}
		copy(outErr, errArr)
		copy(outDQ, dq)
	}

	return out, nil
}
