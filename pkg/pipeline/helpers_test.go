package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
	"github.com/TrystanKoch/jwst/pkg/pipeline"
)

// resampledPlane identifies one accumulated plane as seen by the resampler:
// which target it came from and its plane index inside that target.
type resampledPlane struct {
	target string
	plane  float64
}

type fakeStack struct {
	mu      sync.Mutex
	calls   int
	members int
}

func (f *fakeStack) Stack(_ context.Context, psfs *datamodel.ModelContainer) (*datamodel.CubeModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.members = psfs.Len()

	cube := datamodel.NewCube(psfs.Len(), 2, 2)
	cube.Meta = datamodel.Meta{Telescope: "JWST"}

	return cube, nil
}

type fakeAlign struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (f *fakeAlign) Align(_ context.Context, targetFile string, psfStack *datamodel.CubeModel) (*datamodel.CubeModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.targets = append(f.targets, targetFile)

	cube := datamodel.NewCube(psfStack.Planes, 2, 2)
	cube.Meta = psfStack.Meta.Copy()

	return cube, nil
}

type fakeKlip struct {
	mu        sync.Mutex
	planesFor map[string]int
	failOn    string
	wcsFor    map[string]*datamodel.WCS
}

func (f *fakeKlip) Subtract(_ context.Context, targetFile string, _ *datamodel.CubeModel) (*datamodel.CubeModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == targetFile {
		return nil, assert.AnError
	}

	planes := f.planesFor[targetFile]
	cube := datamodel.NewCube(planes, 2, 2)
	cube.Meta = datamodel.Meta{Target: targetFile}
	cube.WCS = &datamodel.WCS{CType1: "RA---TAN"}
	for i := 0; i < planes; i++ {
		data, _, _ := cube.Plane(i)
		for j := range data {
			data[j] = float64(i)
		}
	}
	if f.wcsFor == nil {
		f.wcsFor = make(map[string]*datamodel.WCS)
	}
	f.wcsFor[targetFile] = cube.WCS

	return cube, nil
}

type fakeOutliers struct {
	mu    sync.Mutex
	calls int
	seen  int
}

func (f *fakeOutliers) DetectOutliers(_ context.Context, images *datamodel.ModelContainer) (*datamodel.ModelContainer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = images.Len()

	return images, nil
}

type fakeResample struct {
	mu    sync.Mutex
	calls int
	got   []resampledPlane
	wcs   []*datamodel.WCS
}

func (f *fakeResample) Resample(_ context.Context, images *datamodel.ModelContainer) (*datamodel.ImageModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, m := range images.Models() {
		img := m.(*datamodel.ImageModel)
		f.got = append(f.got, resampledPlane{target: img.Meta.Target, plane: img.Data[0]})
		f.wcs = append(f.wcs, img.WCS)
	}

	return datamodel.NewImage(2, 2), nil
}

// fakes bundles one set of stage fakes wired into a Steps value.
type fakes struct {
	stack    *fakeStack
	align    *fakeAlign
	klip     *fakeKlip
	outliers *fakeOutliers
	resample *fakeResample
}

func newFakes(planesFor map[string]int) *fakes {
	return &fakes{
		stack:    &fakeStack{},
		align:    &fakeAlign{},
		klip:     &fakeKlip{planesFor: planesFor},
		outliers: &fakeOutliers{},
		resample: &fakeResample{},
	}
}

func (f *fakes) steps() pipeline.Steps {
	return pipeline.Steps{
		StackRefs: f.stack,
		AlignRefs: f.align,
		Klip:      f.klip,
		Outliers:  f.outliers,
		Resample:  f.resample,
	}
}

type memRecorder struct {
	mu      sync.Mutex
	reports []*pipeline.RunReport
}

func (r *memRecorder) RecordRun(_ context.Context, report *pipeline.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)

	return nil
}

// writePSFCube writes a small real PSF cube to dir; the orchestrator opens
// PSF members from disk.
func writePSFCube(t *testing.T, dir, name string) string {
	t.Helper()

	cube := datamodel.NewCube(1, 2, 2)
	for i := range cube.Data {
		cube.Data[i] = float64(i + 1)
	}
	cube.Meta = datamodel.Meta{Telescope: "JWST", Instrument: "NIRCAM"}
	path := filepath.Join(dir, name)
	require.NoError(t, cube.Save(path))

	return path
}

// writeTestAsn builds an association with the given PSF and science members
// and returns its path.
func writeTestAsn(t *testing.T, dir string, psfFiles, targFiles []string) string {
	t.Helper()

	doc := `{
	"asn_type": "coron3",
	"products": [{"name": "jw99001-a3001_t001_nircam_f430m_{product_type}.fits", "members": [`
	first := true
	for _, f := range psfFiles {
		if !first {
			doc += ","
		}
		first = false
		doc += `{"expname": ` + jsonString(f) + `, "exptype": "psf"}`
	}
	for _, f := range targFiles {
		if !first {
			doc += ","
		}
		first = false
		doc += `{"expname": ` + jsonString(f) + `, "exptype": "science"}`
	}
	doc += `]}]}`

	path := filepath.Join(dir, "asn.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	return path
}

func jsonString(s string) string {
	out := `"`
	for _, r := range s {
		if r == '\\' || r == '"' {
			out += `\`
		}
		out += string(r)
	}

	return out + `"`
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	return len(entries)
}
