package steps

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// DefaultOutlierSigma is the clipping threshold used when none is configured.
const DefaultOutlierSigma = 5.0

// madToSigma scales the median absolute deviation to a Gaussian sigma.
const madToSigma = 1.4826

// OutlierDetection flags pixels that deviate from the per-pixel median
// across the collection by more than Sigma scaled MADs. Flags are set in
// place on the members' DQ arrays; the input collection is returned.
type OutlierDetection struct {
	Sigma float64
}

// DetectOutliers implements pipeline.OutlierDetector.
func (d OutlierDetection) DetectOutliers(ctx context.Context, images *datamodel.ModelContainer) (*datamodel.ModelContainer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imgs, err := imageMembers(images)
	if err != nil {
		return nil, err
	}
	// Too few samples for a meaningful per-pixel statistic.
	if len(imgs) < 3 {
		return images, nil
	}

	sigma := d.Sigma
	if sigma <= 0 {
		sigma = DefaultOutlierSigma
	}

	npix := imgs[0].Height * imgs[0].Width
	values := make([]float64, len(imgs))
	devs := make([]float64, len(imgs))
	for j := 0; j < npix; j++ {
		for i, img := range imgs {
			values[i] = img.Data[j]
		}
		med := median(values)
		for i, v := range values {
			devs[i] = math.Abs(v - med)
		}
		mad := median(devs)
		if mad == 0 {
			continue
		}

		limit := sigma * madToSigma * mad
		for _, img := range imgs {
			if math.Abs(img.Data[j]-med) > limit {
				img.DQ[j] |= datamodel.DQOutlier | datamodel.DQDoNotUse
			}
		}
	}

	return images, nil
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
