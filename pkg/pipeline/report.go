package pipeline

import (
	"context"
	"time"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusCompleted means the run saved its final combined product.
	StatusCompleted Status = "completed"
	// StatusAborted means the run stopped early over an incomplete
	// association. Aborting is not an error.
	StatusAborted Status = "aborted"
	// StatusFailed means a stage collaborator failed and the error was
	// propagated to the caller.
	StatusFailed Status = "failed"
)

// Product type tags for persisted artifacts.
const (
	SuffixPSFStack = "psfstack"
	SuffixPSFAlign = "psfalign"
	SuffixPSFSub   = "psfsub"
	SuffixCoronCmb = "coroncmb"
)

// SavedProduct records one persisted artifact of a run.
type SavedProduct struct {
	Type string
	Path string
}

// StageTiming records the wall time of one stage invocation.
type StageTiming struct {
	Name    string
	Elapsed time.Duration
}

// RunReport summarises one pipeline run for callers, the run-graph drawer
// and the provenance recorder.
type RunReport struct {
	ID          string
	Association string
	Status      Status
	AbortReason string

	PSFCount    int
	TargetCount int

	Products []SavedProduct
	Stages   []StageTiming

	Started  time.Time
	Finished time.Time
}

func (r *RunReport) addStage(name string, start time.Time) {
	r.Stages = append(r.Stages, StageTiming{Name: name, Elapsed: time.Since(start)})
}

func (r *RunReport) addProduct(tag, path string) {
	r.Products = append(r.Products, SavedProduct{Type: tag, Path: path})
}

// RunRecorder persists run reports. A nil recorder disables recording.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *RunReport) error
}
