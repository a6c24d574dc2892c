package pipeline

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/TrystanKoch/jwst/pkg/association"
	"github.com/TrystanKoch/jwst/pkg/datamodel"
)

// Stage names used for timings and the run graph.
const (
	stageStack    = "stack_refs"
	stageOutlier  = "outlier_detection"
	stageResample = "resample"
)

// Coron3 drives one coronagraphic calibration run per Process call.
type Coron3 struct {
	steps       Steps
	outputDir   string
	concurrency int
	log         *slog.Logger
	graphFile   string
	recorder    RunRecorder
}

// New creates an orchestrator around the given stage collaborators.
func New(steps Steps, opts ...Option) (*Coron3, error) {
	if err := steps.validate(); err != nil {
		return nil, err
	}

	p := &Coron3{
		steps:       steps,
		concurrency: 1,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Process runs the full calibration sequence over the association at asnPath
// and persists every intermediate and final product.
//
// The returned report is non-nil whenever the association itself could be
// loaded. An association with an empty PSF or science partition yields a nil
// error and StatusAborted; a stage failure yields StatusFailed and the
// stage's error.
func (p *Coron3) Process(ctx context.Context, asnPath string) (*RunReport, error) {
	report := &RunReport{
		ID:          uuid.NewString(),
		Association: asnPath,
		Started:     time.Now(),
	}
	log := p.log.With("run", report.ID)
	log.Info("starting coron3 pipeline", "association", asnPath)

	asn, err := association.Load(asnPath)
	if err != nil {
		return p.fail(ctx, log, report, err)
	}
	if len(asn.Products) == 0 {
		return p.fail(ctx, log, report, errors.Wrap(ErrNoProducts, asnPath))
	}
	// The run produces the association's first (and only expected) product.
	prod := &asn.Products[0]

	psfFiles, targFiles := prod.Partition()
	report.PSFCount = len(psfFiles)
	report.TargetCount = len(targFiles)
	log.Debug("partitioned members", "psf", len(psfFiles), "targets", len(targFiles))

	if len(psfFiles) == 0 {
		return p.abort(ctx, log, report, "No reference PSF members found in association")
	}
	if len(targFiles) == 0 {
		return p.abort(ctx, log, report, "No science target members found in association")
	}

	rg := newRunGraph()
	if err := rg.addStage(stageStack); err != nil {
		return p.fail(ctx, log, report, err)
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, log, report, err)
	}
	psfStack, err := p.stackPSFs(ctx, log, report, psfFiles)
	if err != nil {
		return p.fail(ctx, log, report, err)
	}

	stackPath := p.productPath(prod, SuffixPSFStack)
	log.Info("saving psfstack file", "path", stackPath)
	if err := psfStack.Save(stackPath); err != nil {
		closeModels(log, psfStack)

		return p.fail(ctx, log, report, errors.Wrap(err, "unable to save psfstack"))
	}
	report.addProduct(SuffixPSFStack, stackPath)

	resampleInput, err := p.runBranches(ctx, log, rg, report, targFiles, psfStack)
	if err != nil {
		closeModels(log, psfStack)

		return p.fail(ctx, log, report, err)
	}
	// The stacked references are shared read-only across every branch and
	// are not needed past this point.
	closeModels(log, psfStack)

	branchNames := make([]string, len(targFiles))
	for i, targetFile := range targFiles {
		branchNames[i] = filepath.Base(targetFile)
	}
	if err := rg.addStage(stageOutlier, branchNames...); err != nil {
		log.Warn("unable to extend run graph", "error", err)
	}
	if err := rg.addStage(stageResample, stageOutlier); err != nil {
		log.Warn("unable to extend run graph", "error", err)
	}

	if err := ctx.Err(); err != nil {
		_ = resampleInput.Close()

		return p.fail(ctx, log, report, err)
	}
	log.Debug("calling outlier_detection", "images", resampleInput.Len())
	start := time.Now()
	detected, err := p.steps.Outliers.DetectOutliers(ctx, resampleInput)
	if err != nil {
		_ = resampleInput.Close()

		return p.fail(ctx, log, report, errors.Wrap(err, "outlier_detection step failed"))
	}
	report.addStage(stageOutlier, start)
	// Carry forward whatever the detector returned, flagged in place or not.
	resampleInput = detected

	if err := ctx.Err(); err != nil {
		_ = resampleInput.Close()

		return p.fail(ctx, log, report, err)
	}
	log.Debug("calling resample", "images", resampleInput.Len())
	start = time.Now()
	result, err := p.steps.Resample.Resample(ctx, resampleInput)
	if err != nil {
		_ = resampleInput.Close()

		return p.fail(ctx, log, report, errors.Wrap(err, "resample step failed"))
	}
	report.addStage(stageResample, start)
	if err := resampleInput.Close(); err != nil {
		log.Warn("unable to close accumulated collection", "error", err)
	}

	finalPath := p.productPath(prod, SuffixCoronCmb)
	log.Info("saving final combined product", "path", finalPath)
	if err := result.Save(finalPath); err != nil {
		closeModels(log, result)

		return p.fail(ctx, log, report, errors.Wrap(err, "unable to save final product"))
	}
	report.addProduct(SuffixCoronCmb, finalPath)
	closeModels(log, result)

	report.Status = StatusCompleted
	report.Finished = time.Now()
	log.Info("coron3 pipeline finished", "products", len(report.Products))

	if p.graphFile != "" {
		for _, st := range report.Stages {
			rg.setDuration(st.Name, st.Elapsed)
		}
		if err := rg.draw(p.graphFile); err != nil {
			log.Warn("unable to draw run graph", "error", err)
		}
	}
	p.record(ctx, log, report)

	return report, nil
}

// stackPSFs assembles every reference PSF exposure into one container and
// stacks it into a single cube. The container is closed here; the caller
// owns the returned stack.
func (p *Coron3) stackPSFs(ctx context.Context, log *slog.Logger, report *RunReport, psfFiles []string) (*datamodel.CubeModel, error) {
	psfModels, err := datamodel.ContainerFromPaths(psfFiles)
	if err != nil {
		return nil, errors.Wrap(err, "unable to assemble PSF container")
	}

	log.Debug("calling stack_refs", "members", psfModels.Len())
	start := time.Now()
	psfStack, err := p.steps.StackRefs.Stack(ctx, psfModels)
	if cerr := psfModels.Close(); cerr != nil {
		log.Warn("unable to close PSF container", "error", cerr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "stack_refs step failed")
	}
	report.addStage(stageStack, start)

	return psfStack, nil
}

func (p *Coron3) productPath(prod *association.Product, tag string) string {
	name := prod.ProductName(tag)
	if p.outputDir != "" {
		return filepath.Join(p.outputDir, name)
	}

	return name
}

// abort terminates a run over an incomplete association. Not an error: the
// caller gets a nil error and an aborted report.
func (p *Coron3) abort(ctx context.Context, log *slog.Logger, report *RunReport, reason string) (*RunReport, error) {
	log.Error(reason)
	log.Error("coron3 processing will be aborted")
	report.Status = StatusAborted
	report.AbortReason = reason
	report.Finished = time.Now()
	p.record(ctx, log, report)

	return report, nil
}

func (p *Coron3) fail(ctx context.Context, log *slog.Logger, report *RunReport, err error) (*RunReport, error) {
	report.Status = StatusFailed
	report.Finished = time.Now()
	p.record(ctx, log, report)

	return report, err
}

func (p *Coron3) record(ctx context.Context, log *slog.Logger, report *RunReport) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordRun(context.WithoutCancel(ctx), report); err != nil {
		log.Warn("unable to record run", "error", err)
	}
}

func closeModels(log *slog.Logger, models ...datamodel.Model) {
	for _, m := range models {
		if m == nil || m.Closed() {
			continue
		}
		if err := m.Close(); err != nil {
			log.Warn("unable to close model", "error", err)
		}
	}
}
