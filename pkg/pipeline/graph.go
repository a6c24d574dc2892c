package pipeline

import (
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// runGraph records the dynamic stage graph of one run. The branch vertices
// are only known once the association has been partitioned, so the graph is
// grown stage by stage as the run advances.
type runGraph struct {
	g         graph.Graph[string, string]
	durations map[string]time.Duration
}

func newRunGraph() *runGraph {
	return &runGraph{
		g:         graph.New(graph.StringHash, graph.Directed()),
		durations: make(map[string]time.Duration),
	}
}

func (rg *runGraph) addStage(name string, parents ...string) error {
	err := rg.g.AddVertex(name)
	if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return errors.Wrapf(err, "unable to add stage %s", name)
	}

	for _, parent := range parents {
		err := rg.g.AddEdge(parent, name)
		if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return errors.Wrapf(err, "unable to link %s to %s", parent, name)
		}
	}

	return nil
}

func (rg *runGraph) setDuration(name string, elapsed time.Duration) {
	rg.durations[name] = elapsed
}
