// Package pipeline orchestrates the level-3 coronagraphic calibration run.
//
// A run turns one association of raw exposures into a single combined,
// PSF-subtracted science product. The orchestrator partitions the association
// members into reference PSF and science target lists, stacks the references
// once, drives the align/subtract/split branch for every target, accumulates
// all per-target planes into one collection, and finishes with outlier
// rejection and resampling over that collection.
//
// The numerical stages themselves are collaborators behind small interfaces;
// this package owns only the control flow, the lifecycle of the data models
// moving between stages, and the naming of persisted products. The pipeline
// stops on the first stage error, closing everything it still owns before the
// error propagates. An association with no PSF members or no science members
// is not an error: the run aborts early with a logged reason and an aborted
// status.
package pipeline
