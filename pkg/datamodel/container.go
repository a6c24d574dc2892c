package datamodel

import (
	"github.com/pkg/errors"
)

// openCube is an indirection over Open so container loading can be exercised
// without real files on disk.
var openCube = func(path string) (Model, error) {
	return Open(path)
}

// ModelContainer is an ordered, appendable collection of models. Iteration
// order equals insertion order; downstream stages rely on the correspondence
// between a container member and its source exposure. The container owns its
// members: closing it closes every member.
type ModelContainer struct {
	models []Model
}

// NewContainer returns an empty container.
func NewContainer() *ModelContainer {
	return &ModelContainer{}
}

// ContainerFromPaths opens every file in paths, in order, into a new
// container. If any file fails to load, every model opened so far is closed
// before the error is returned.
func ContainerFromPaths(paths []string) (*ModelContainer, error) {
	c := NewContainer()
	for _, path := range paths {
		m, err := openCube(path)
		if err != nil {
			_ = c.Close()

			return nil, errors.Wrapf(err, "unable to load container member %s", path)
		}
		c.Append(m)
	}

	return c, nil
}

// ContainerFromModels builds a container from in-memory models. Ownership of
// every model transfers to the container.
func ContainerFromModels(models ...Model) *ModelContainer {
	c := NewContainer()
	c.models = append(c.models, models...)

	return c
}

// Append adds a model to the end of the container, transferring ownership.
func (c *ModelContainer) Append(m Model) {
	c.models = append(c.models, m)
}

// Len is the number of members.
func (c *ModelContainer) Len() int {
	return len(c.models)
}

// At returns member i.
func (c *ModelContainer) At(i int) Model {
	return c.models[i]
}

// Models returns the members in insertion order.
func (c *ModelContainer) Models() []Model {
	return c.models
}

// Close closes every member. It keeps going past individual failures and
// returns the first error seen.
func (c *ModelContainer) Close() error {
	var firstErr error
	for _, m := range c.models {
		if m.Closed() {
			continue
		}
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
