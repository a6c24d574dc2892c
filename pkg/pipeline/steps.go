package pipeline

import (
	"context"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// Stacker assembles every reference PSF exposure into a single stacked cube.
// The caller owns the returned cube; the input container stays owned by the
// caller.
type Stacker interface {
	Stack(ctx context.Context, psfs *datamodel.ModelContainer) (*datamodel.CubeModel, error)
}

// Aligner registers the stacked references onto one science target exposure.
// The caller owns the returned cube.
type Aligner interface {
	Align(ctx context.Context, targetFile string, psfStack *datamodel.CubeModel) (*datamodel.CubeModel, error)
}

// Subtractor removes the stellar PSF from one science target exposure using
// the aligned references. The returned cube carries one plane per target
// integration; the caller owns it.
type Subtractor interface {
	Subtract(ctx context.Context, targetFile string, alignedPSFs *datamodel.CubeModel) (*datamodel.CubeModel, error)
}

// OutlierDetector flags outlier pixels across a collection of single-plane
// images. It may flag members in place or build a replacement collection;
// either way the returned container is the one the run carries forward, and
// ownership of it transfers to the caller.
type OutlierDetector interface {
	DetectOutliers(ctx context.Context, images *datamodel.ModelContainer) (*datamodel.ModelContainer, error)
}

// Resampler combines a collection of single-plane images into the final
// product. The caller owns the returned image.
type Resampler interface {
	Resample(ctx context.Context, images *datamodel.ModelContainer) (*datamodel.ImageModel, error)
}

// Steps bundles the five stage collaborators of a coronagraphic run. Every
// field must be set.
type Steps struct {
	StackRefs Stacker
	AlignRefs Aligner
	Klip      Subtractor
	Outliers  OutlierDetector
	Resample  Resampler
}

func (s Steps) validate() error {
	if s.StackRefs == nil || s.AlignRefs == nil || s.Klip == nil || s.Outliers == nil || s.Resample == nil {
		return ErrStepsMissing
	}

	return nil
}
