package steps

import (
	"context"

	"github.com/pkg/errors"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// StackRefs assembles every reference PSF cube into a single stacked cube,
// concatenating planes in container order. Metadata comes from the first
// member.
type StackRefs struct{}

// Stack implements pipeline.Stacker.
func (StackRefs) Stack(ctx context.Context, psfs *datamodel.ModelContainer) (*datamodel.CubeModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if psfs.Len() == 0 {
		return nil, errors.New("empty PSF container")
	}

	cubes := make([]*datamodel.CubeModel, 0, psfs.Len())
	total := 0
	for i, m := range psfs.Models() {
		cube, ok := m.(*datamodel.CubeModel)
		if !ok {
			return nil, errors.Errorf("PSF member %d is not a cube", i)
		}
		if len(cubes) > 0 && (cube.Height != cubes[0].Height || cube.Width != cubes[0].Width) {
			return nil, errors.Errorf("PSF member %d has mismatched dimensions %dx%d", i, cube.Height, cube.Width)
		}
		cubes = append(cubes, cube)
		total += cube.Planes
	}

	out := datamodel.NewCube(total, cubes[0].Height, cubes[0].Width)
	out.Meta = cubes[0].Meta.Copy()
	out.WCS = cubes[0].WCS

	plane := 0
	for _, cube := range cubes {
		for i := 0; i < cube.Planes; i++ {
			data, errArr, dq := cube.Plane(i)
			dstData, dstErr, dstDQ := out.Plane(plane)
			copy(dstData, data)
			copy(dstErr, errArr)
			copy(dstDQ, dq)
			plane++
		}
	}

	return out, nil
}
