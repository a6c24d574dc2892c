package datamodel_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

func TestCubeRoundTrip(t *testing.T) {
	t.Parallel()

	cube := newTestCube(t, 2, 3, 4)
	path := filepath.Join(t.TempDir(), "jw1_targ_calints.fits")
	require.NoError(t, cube.Save(path))

	got, err := datamodel.Open(path)
	require.NoError(t, err)
	defer got.Close()

	assert.Equal(t, cube.Planes, got.Planes)
	assert.Equal(t, cube.Height, got.Height)
	assert.Equal(t, cube.Width, got.Width)
	assert.Equal(t, cube.Data, got.Data)
	assert.Equal(t, cube.Err, got.Err)
	assert.Equal(t, cube.DQ, got.DQ)

	assert.Equal(t, cube.Meta.Telescope, got.Meta.Telescope)
	assert.Equal(t, cube.Meta.Instrument, got.Meta.Instrument)
	assert.Equal(t, cube.Meta.Filter, got.Meta.Filter)
	assert.Equal(t, cube.Meta.Target, got.Meta.Target)

	require.NotNil(t, got.WCS)
	assert.Equal(t, *cube.WCS, *got.WCS)
}

func TestImageRoundTrip(t *testing.T) {
	t.Parallel()

	img := datamodel.NewImage(3, 2)
	for i := range img.Data {
		img.Data[i] = float64(i) * 1.5
		img.Err[i] = 0.25
		img.DQ[i] = datamodel.DQOutlier
	}
	img.Meta = datamodel.Meta{Telescope: "JWST", Instrument: "MIRI"}

	path := filepath.Join(t.TempDir(), "jw1_targ_coroncmb.fits")
	require.NoError(t, img.Save(path))

	got, err := datamodel.OpenImage(path)
	require.NoError(t, err)
	defer got.Close()

	assert.Equal(t, img.Height, got.Height)
	assert.Equal(t, img.Width, got.Width)
	assert.Equal(t, img.Data, got.Data)
	assert.Equal(t, img.Err, got.Err)
	assert.Equal(t, img.DQ, got.DQ)
	assert.Equal(t, "MIRI", got.Meta.Instrument)
	assert.Nil(t, got.WCS)
}

func TestSaveAfterClose(t *testing.T) {
	t.Parallel()

	cube := newTestCube(t, 1, 2, 2)
	require.NoError(t, cube.Close())
	assert.ErrorIs(t, cube.Save(filepath.Join(t.TempDir(), "closed.fits")), datamodel.ErrClosed)
}

func TestOpenMissing(t *testing.T) {
	t.Parallel()

	_, err := datamodel.Open(filepath.Join(t.TempDir(), "missing.fits"))
	assert.Error(t, err)
}

func TestOpenImageRejectsCube(t *testing.T) {
	t.Parallel()

	cube := newTestCube(t, 2, 2, 2)
	path := filepath.Join(t.TempDir(), "jw1_targ_calints.fits")
	require.NoError(t, cube.Save(path))

	_, err := datamodel.OpenImage(path)
	assert.Error(t, err)
}
