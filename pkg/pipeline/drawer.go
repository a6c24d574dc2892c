package pipeline

import (
	"io"
	"os"
	"sort"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint
)

const maxRGB = 240

// draw renders the run graph as a DOT document at fileName. Vertices are
// coloured on a blue-to-red scale by stage duration, slowest stage reddest.
func (rg *runGraph) draw(fileName string) error {
	if err := rg.colourise(); err != nil {
		return errors.Wrap(err, "unable to colour run graph")
	}

	file, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", fileName)
	}
	defer file.Close()

	if err := rg.writeDOT(file); err != nil {
		return errors.Wrapf(err, "unable to render run graph to %s", fileName)
	}

	return nil
}

func (rg *runGraph) colourise() error {
	if len(rg.durations) == 0 {
		return nil
	}

	minValue := time.Duration(-1)
	maxValue := time.Duration(0)
	for _, elapsed := range rg.durations {
		if minValue < 0 || elapsed < minValue {
			minValue = elapsed
		}
		if elapsed > maxValue {
			maxValue = elapsed
		}
	}

	for name, elapsed := range rg.durations {
		fraction := 1.0
		if maxValue > minValue {
			fraction = float64(elapsed-minValue) / float64(maxValue-minValue)
		}

		red := maxRGB * fraction
		blue := -maxRGB*fraction + maxRGB

		colour, err := colors.RGB(uint8(red), 0, uint8(blue)) //nolint
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}

		_, properties, err := rg.g.VertexWithProperties(name)
		if err != nil {
			return errors.Wrapf(err, "unable to get vertex properties for %s", name)
		}
		properties.Attributes["color"] = colour.ToHEX().String()
		properties.Attributes["xlabel"] = elapsed.String()
	}

	return nil
}

//nolint:lll //this is a template
const dotTemplate = `strict digraph {
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}-> "{{.Target}}"{{else}}[ {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} ]{{end}};
	{{end}}
	}
	`

type statement struct {
	Source           string
	Target           string
	SourceAttributes map[string]string
}

func (rg *runGraph) writeDOT(w io.Writer) error {
	adjacencyMap, err := rg.g.AdjacencyMap()
	if err != nil {
		return errors.Wrap(err, "unable to get adjacency map")
	}

	vertices := make([]string, 0, len(adjacencyMap))
	for vertex := range adjacencyMap {
		vertices = append(vertices, vertex)
	}
	sort.Strings(vertices)

	statements := make([]statement, 0, len(vertices))
	for _, vertex := range vertices {
		_, properties, err := rg.g.VertexWithProperties(vertex)
		if err != nil {
			return errors.Wrapf(err, "unable to get vertex properties for %s", vertex)
		}
		statements = append(statements, statement{
			Source:           vertex,
			SourceAttributes: properties.Attributes,
		})

		adjacencies := make([]string, 0, len(adjacencyMap[vertex]))
		for adjacency := range adjacencyMap[vertex] {
			adjacencies = append(adjacencies, adjacency)
		}
		sort.Strings(adjacencies)
		for _, adjacency := range adjacencies {
			statements = append(statements, statement{Source: vertex, Target: adjacency})
		}
	}

	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return errors.Wrap(err, "unable to parse template")
	}

	return tpl.Execute(w, struct{ Statements []statement }{Statements: statements})
}
