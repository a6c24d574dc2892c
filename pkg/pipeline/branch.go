package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// branchResult holds one target's contribution to the accumulated
// collection: its single-plane images in plane order, the products the
// branch persisted, and the branch wall time.
type branchResult struct {
	target  string
	planes  []*datamodel.ImageModel
	saved   []SavedProduct
	elapsed time.Duration
}

func (r *branchResult) close(log *slog.Logger) {
	for _, img := range r.planes {
		closeModels(log, img)
	}
}

// runBranches drives one target subtraction branch per science member and
// fans the per-target planes into one accumulated collection, in association
// order with each target's planes contiguous. On any branch failure every
// already-produced plane is closed before the error propagates. The shared
// PSF stack stays owned by the caller.
func (p *Coron3) runBranches(ctx context.Context, log *slog.Logger, rg *runGraph, report *RunReport, targFiles []string, psfStack *datamodel.CubeModel) (*datamodel.ModelContainer, error) {
	results := make([]*branchResult, len(targFiles))

	closeResults := func() {
		for _, res := range results {
			if res != nil {
				res.close(log)
			}
		}
	}

	if p.concurrency <= 1 {
		for i, targetFile := range targFiles {
			res, err := p.runTargetBranch(ctx, log, targetFile, psfStack)
			if err != nil {
				closeResults()

				return nil, err
			}
			results[i] = res
		}
	} else {
		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(p.concurrency)
		for i, targetFile := range targFiles {
			i, targetFile := i, targetFile
			grp.Go(func() error {
				res, err := p.runTargetBranch(gctx, log, targetFile, psfStack)
				if err != nil {
					return err
				}
				results[i] = res

				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			closeResults()

			return nil, err
		}
	}

	accumulated := datamodel.NewContainer()
	for _, res := range results {
		name := filepath.Base(res.target)
		if err := rg.addStage(name, stageStack); err != nil {
			log.Warn("unable to extend run graph", "error", err)
		}
		report.Stages = append(report.Stages, StageTiming{Name: name, Elapsed: res.elapsed})
		report.Products = append(report.Products, res.saved...)
		for _, img := range res.planes {
			accumulated.Append(img)
		}
	}

	return accumulated, nil
}

// runTargetBranch executes the align/subtract/split sequence for one science
// target exposure against the shared PSF stack, which is read-only here.
func (p *Coron3) runTargetBranch(ctx context.Context, log *slog.Logger, targetFile string, psfStack *datamodel.CubeModel) (*branchResult, error) {
	start := time.Now()
	res := &branchResult{target: targetFile}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "branch %s", targetFile)
	}

	log.Debug("calling align_refs", "target", targetFile)
	aligned, err := p.steps.AlignRefs.Align(ctx, targetFile, psfStack)
	if err != nil {
		return nil, errors.Wrapf(err, "align_refs step failed for %s", targetFile)
	}

	alignPath := OutputName(p.outputDir, targetFile, SuffixPSFAlign)
	log.Info("saving psfalign file", "path", alignPath)
	if err := aligned.Save(alignPath); err != nil {
		closeModels(log, aligned)

		return nil, errors.Wrapf(err, "unable to save psfalign for %s", targetFile)
	}
	res.saved = append(res.saved, SavedProduct{Type: SuffixPSFAlign, Path: alignPath})

	if err := ctx.Err(); err != nil {
		closeModels(log, aligned)

		return nil, errors.Wrapf(err, "branch %s", targetFile)
	}

	log.Debug("calling klip", "target", targetFile)
	psfSub, err := p.steps.Klip.Subtract(ctx, targetFile, aligned)
	// The aligned references are consumed by klip either way.
	closeModels(log, aligned)
	if err != nil {
		return nil, errors.Wrapf(err, "klip step failed for %s", targetFile)
	}

	subPath := OutputName(p.outputDir, targetFile, SuffixPSFSub)
	log.Info("saving psfsub file", "path", subPath)
	if err := psfSub.Save(subPath); err != nil {
		closeModels(log, psfSub)

		return nil, errors.Wrapf(err, "unable to save psfsub for %s", targetFile)
	}
	res.saved = append(res.saved, SavedProduct{Type: SuffixPSFSub, Path: subPath})

	res.planes = make([]*datamodel.ImageModel, 0, psfSub.Planes)
	for i := 0; i < psfSub.Planes; i++ {
		img, err := psfSub.PlaneImage(i)
		if err != nil {
			res.close(log)
			closeModels(log, psfSub)

			return nil, errors.Wrapf(err, "unable to split plane %d of %s", i, targetFile)
		}
		res.planes = append(res.planes, img)
	}
	// The subtraction cube's data now lives on in the planes.
	closeModels(log, psfSub)

	res.elapsed = time.Since(start)

	return res, nil
}
