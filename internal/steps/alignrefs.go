package steps

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// AlignRefs registers the stacked reference PSFs onto one science target
// exposure by matching flux-weighted centroids with whole-pixel shifts.
type AlignRefs struct{}

// Align implements pipeline.Aligner. The aligned cube carries the stack's
// metadata and the target's coordinate transform.
func (AlignRefs) Align(ctx context.Context, targetFile string, psfStack *datamodel.CubeModel) (*datamodel.CubeModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := datamodel.Open(targetFile)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open target %s", targetFile)
	}
	defer target.Close()

	if target.Height != psfStack.Height || target.Width != psfStack.Width {
		return nil, errors.Errorf("target %s dimensions %dx%d do not match PSF stack %dx%d",
			targetFile, target.Height, target.Width, psfStack.Height, psfStack.Width)
	}

	targetData, _, _ := target.Plane(0)
	targetY, targetX := centroid(targetData, target.Height, target.Width)

	out := datamodel.NewCube(psfStack.Planes, psfStack.Height, psfStack.Width)
	out.Meta = psfStack.Meta.Copy()
	out.WCS = target.WCS

	for p := 0; p < psfStack.Planes; p++ {
		data, errArr, dq := psfStack.Plane(p)
		refY, refX := centroid(data, psfStack.Height, psfStack.Width)
		dy := int(math.Round(targetY - refY))
		dx := int(math.Round(targetX - refX))

		outData, outErr, outDQ := out.Plane(p)
		shiftInto(outData, data, psfStack.Height, psfStack.Width, dy, dx)
		shiftInto(outErr, errArr, psfStack.Height, psfStack.Width, dy, dx)
		shiftInto(outDQ, dq, psfStack.Height, psfStack.Width, dy, dx)
	}

	return out, nil
}

// centroid is the flux-weighted mean position of the positive pixels. A
// plane with no positive flux centres on the geometric middle.
func centroid(data []float64, height, width int) (cy, cx float64) {
	var sum, sumY, sumX float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := data[y*width+x]
			if v <= 0 {
				continue
			}
			sum += v
			sumY += v * float64(y)
			sumX += v * float64(x)
		}
	}
	if sum == 0 {
		return float64(height-1) / 2, float64(width-1) / 2
	}

	return sumY / sum, sumX / sum
}

// shiftInto copies src into dst displaced by (dy, dx), zero-filling pixels
// shifted in from outside.
func shiftInto[T float64 | uint32](dst, src []T, height, width, dy, dx int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			srcY, srcX := y-dy, x-dx
			if srcY < 0 || srcY >= height || srcX < 0 || srcX >= width {
				continue
			}
			dst[y*width+x] = src[srcY*width+srcX]
		}
	}
}
