package steps_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrystanKoch/jwst/internal/steps"
	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// newImage builds a 1x2 image holding the given pixel values.
func newImage(values ...float64) *datamodel.ImageModel {
	img := datamodel.NewImage(1, len(values))
	copy(img.Data, values)

	return img
}

func TestDetectOutliersFlagsSpike(t *testing.T) {
	t.Parallel()

	// Pixel 0 varies slightly around 1 except for one wild value; pixel 1
	// is well behaved everywhere.
	collection := datamodel.ContainerFromModels(
		newImage(1.0, 2.0),
		newImage(1.1, 2.1),
		newImage(0.9, 1.9),
		newImage(1.05, 2.05),
		newImage(100, 1.95),
	)
	defer collection.Close()

	out, err := steps.OutlierDetection{}.DetectOutliers(context.Background(), collection)
	require.NoError(t, err)
	assert.Same(t, collection, out)

	flagged := datamodel.DQOutlier | datamodel.DQDoNotUse
	for i := 0; i < collection.Len(); i++ {
		img := collection.At(i).(*datamodel.ImageModel)
		if i == 4 {
			assert.Equal(t, flagged, img.DQ[0]&flagged, "spike member %d pixel 0", i)
		} else {
			assert.Zero(t, img.DQ[0], "member %d pixel 0", i)
		}
		assert.Zero(t, img.DQ[1], "member %d pixel 1", i)
	}
}

func TestDetectOutliersTooFewMembers(t *testing.T) {
	t.Parallel()

	collection := datamodel.ContainerFromModels(
		newImage(1, 2),
		newImage(100, 2),
	)
	defer collection.Close()

	out, err := steps.OutlierDetection{}.DetectOutliers(context.Background(), collection)
	require.NoError(t, err)
	assert.Same(t, collection, out)

	for i := 0; i < collection.Len(); i++ {
		img := collection.At(i).(*datamodel.ImageModel)
		assert.Zero(t, img.DQ[0])
	}
}

func TestDetectOutliersConstantPixels(t *testing.T) {
	t.Parallel()

	// Zero spread means no meaningful deviation statistic, so nothing may
	// be flagged even though one member differs.
	collection := datamodel.ContainerFromModels(
		newImage(5),
		newImage(5),
		newImage(5),
		newImage(9),
	)
	defer collection.Close()

	_, err := steps.OutlierDetection{}.DetectOutliers(context.Background(), collection)
	require.NoError(t, err)

	for i := 0; i < collection.Len(); i++ {
		img := collection.At(i).(*datamodel.ImageModel)
		assert.Zero(t, img.DQ[0], "member %d", i)
	}
}

func TestDetectOutliersEmptyCollection(t *testing.T) {
	t.Parallel()

	_, err := steps.OutlierDetection{}.DetectOutliers(context.Background(), datamodel.NewContainer())
	assert.Error(t, err)
}
