package pipeline

import (
	"log/slog"
)

// Option configures a Coron3 orchestrator.
type Option func(p *Coron3)

// WithOutputDir reroutes every persisted artifact under dir, discarding the
// input exposures' directory components.
func WithOutputDir(dir string) Option {
	return func(p *Coron3) {
		p.outputDir = dir
	}
}

// WithConcurrency runs up to n target subtraction branches in parallel. The
// default of 1 keeps the reference sequential behaviour. Whatever n, the
// accumulated collection preserves association order with each target's
// planes contiguous and in plane order.
func WithConcurrency(n int) Option {
	return func(p *Coron3) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger injects the run-scoped logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Coron3) {
		if log != nil {
			p.log = log
		}
	}
}

// WithGraphFile renders each run's stage graph as a DOT document at path.
func WithGraphFile(path string) Option {
	return func(p *Coron3) {
		p.graphFile = path
	}
}

// WithRecorder persists each run's report through rec.
func WithRecorder(rec RunRecorder) Option {
	return func(p *Coron3) {
		p.recorder = rec
	}
}
