package steps_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrystanKoch/jwst/internal/steps"
	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

func TestResampleWeightedMean(t *testing.T) {
	t.Parallel()

	first := newImage(2, 4)
	first.Err = []float64{1, 1}
	first.Meta = datamodel.Meta{Telescope: "JWST", Target: "HD 1160"}
	first.WCS = &datamodel.WCS{CType1: "RA---TAN"}

	second := newImage(4, 8)
	second.Err = []float64{0.5, 0.5}

	collection := datamodel.ContainerFromModels(first, second)
	defer collection.Close()

	out, err := steps.Resample{}.Resample(context.Background(), collection)
	require.NoError(t, err)
	defer out.Close()

	// Weights 1 and 4: pixel 0 combines to (1*2 + 4*4) / 5.
	assert.InDelta(t, 3.6, out.Data[0], 1e-12)
	assert.InDelta(t, 7.2, out.Data[1], 1e-12)
	assert.InDelta(t, math.Sqrt(1.0/5), out.Err[0], 1e-12)

	assert.Equal(t, "HD 1160", out.Meta.Target)
	assert.Same(t, first.WCS, out.WCS)
}

func TestResampleSkipsFlaggedPixels(t *testing.T) {
	t.Parallel()

	first := newImage(4, 6)
	second := newImage(10, 20)
	second.DQ[1] = datamodel.DQOutlier | datamodel.DQDoNotUse

	collection := datamodel.ContainerFromModels(first, second)
	defer collection.Close()

	out, err := steps.Resample{}.Resample(context.Background(), collection)
	require.NoError(t, err)
	defer out.Close()

	// Pixel 0 averages both members with unit weights; pixel 1 keeps only
	// the unflagged contribution.
	assert.InDelta(t, 7, out.Data[0], 1e-12)
	assert.InDelta(t, 6, out.Data[1], 1e-12)
	assert.Zero(t, out.DQ[1])
}

func TestResampleAllContributorsFlagged(t *testing.T) {
	t.Parallel()

	first := newImage(4, 6)
	first.DQ[0] = datamodel.DQDoNotUse
	second := newImage(10, 20)
	second.DQ[0] = datamodel.DQDoNotUse

	collection := datamodel.ContainerFromModels(first, second)
	defer collection.Close()

	out, err := steps.Resample{}.Resample(context.Background(), collection)
	require.NoError(t, err)
	defer out.Close()

	assert.Zero(t, out.Data[0])
	assert.Equal(t, datamodel.DQDoNotUse, out.DQ[0])
	assert.InDelta(t, 13, out.Data[1], 1e-12)
}

func TestResampleRejectsCubeMember(t *testing.T) {
	t.Parallel()

	collection := datamodel.ContainerFromModels(
		newImage(1, 2),
		datamodel.NewCube(1, 1, 2),
	)
	defer collection.Close()

	_, err := steps.Resample{}.Resample(context.Background(), collection)
	assert.Error(t, err)
}

func TestResampleMismatchedDims(t *testing.T) {
	t.Parallel()

	collection := datamodel.ContainerFromModels(
		newImage(1, 2),
		datamodel.NewImage(2, 2),
	)
	defer collection.Close()

	_, err := steps.Resample{}.Resample(context.Background(), collection)
	assert.Error(t, err)
}
