package steps

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// Resample combines every accumulated plane into the single final product
// with an inverse-variance weighted mean, skipping pixels flagged as
// do-not-use. Metadata and coordinate transform come from the first member.
type Resample struct{}

// Resample implements pipeline.Resampler.
func (Resample) Resample(ctx context.Context, images *datamodel.ModelContainer) (*datamodel.ImageModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imgs, err := imageMembers(images)
	if err != nil {
		return nil, err
	}

	out := datamodel.NewImage(imgs[0].Height, imgs[0].Width)
	out.Meta = imgs[0].Meta.Copy()
	out.WCS = imgs[0].WCS

	npix := imgs[0].Height * imgs[0].Width
	for j := 0; j < npix; j++ {
		var sumW, sumWV float64
		for _, img := range imgs {
			if img.DQ[j]&datamodel.DQDoNotUse != 0 {
				continue
			}
			weight := 1.0
			if img.Err[j] > 0 {
				weight = 1 / (img.Err[j] * img.Err[j])
			}
			sumW += weight
			sumWV += weight * img.Data[j]
		}
		if sumW == 0 {
			// Every contributor was flagged.
			out.DQ[j] = datamodel.DQDoNotUse

			continue
		}
		out.Data[j] = sumWV / sumW
		out.Err[j] = math.Sqrt(1 / sumW)
	}

	return out, nil
}

// imageMembers asserts that every collection member is a single-plane image
// of the same dimensions.
func imageMembers(images *datamodel.ModelContainer) ([]*datamodel.ImageModel, error) {
	if images.Len() == 0 {
		return nil, errors.New("empty image collection")
	}

	imgs := make([]*datamodel.ImageModel, images.Len())
	for i, m := range images.Models() {
		img, ok := m.(*datamodel.ImageModel)
		if !ok {
			return nil, errors.Errorf("collection member %d is not a single-plane image", i)
		}
		if i > 0 && (img.Height != imgs[0].Height || img.Width != imgs[0].Width) {
			return nil, errors.Errorf("collection member %d has mismatched dimensions %dx%d", i, img.Height, img.Width)
		}
		imgs[i] = img
	}

	return imgs, nil
}
