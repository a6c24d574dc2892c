// Package steps holds the default numerical implementations of the five
// coron3 stage collaborators: reference stacking, reference alignment, KLIP
// PSF subtraction, outlier detection and resampling. The orchestrator in
// pkg/pipeline depends only on the stage interfaces; these are the
// implementations the coron3 command wires in.
package steps
