/*
Copyright © 2026 the esgf authors.
This file is part of esgf.

esgf is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

esgf is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with esgf.  If not, see <http://www.gnu.org/licenses/>.
*/

package dataset

import (
	"context"
	"fmt"
)

// source provides the values of a variable.
type source interface {
	shape() []int
	kind() Kind
	// chunks returns the chunk sizes along each axis, or nil if the
	// values are held in memory.
	chunks() [][]int
	load(ctx context.Context) (*Array, error)
}

// Variable is a named n-dimensional array with labelled dimensions.
type Variable struct {
	Name  string
	Dims  []string
	Attrs Attributes
	src   source
}

// NewVariable returns an in-memory variable holding a.
func NewVariable(name string, dims []string, a *Array, attrs Attributes) (*Variable, error) {
	if len(dims) != len(a.Shape) {
		return nil, fmt.Errorf("dataset: variable %s has %d dimensions but its data has shape %v", name, len(dims), a.Shape)
	}
	if attrs == nil {
		attrs = Attributes{}
	}
	return &Variable{Name: name, Dims: append([]string{}, dims...), Attrs: attrs, src: memSource{a}}, nil
}

// Shape returns the length of each dimension of v.
func (v *Variable) Shape() []int { return copyInts(v.src.shape()) }

// Kind returns the kind of values held by v.
func (v *Variable) Kind() Kind { return v.src.kind() }

// Size returns the number of elements in v.
func (v *Variable) Size() int { return size(v.src.shape()) }

// Chunks returns the chunk sizes along each dimension of v, or nil if v is
// held in memory.
func (v *Variable) Chunks() [][]int { return v.src.chunks() }

// Lazy reports whether the values of v are read from storage on Load.
func (v *Variable) Lazy() bool { return v.src.chunks() != nil }

// Load returns the values of v, reading them from storage if needed.
func (v *Variable) Load(ctx context.Context) (*Array, error) {
	a, err := v.src.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("dataset: loading %s: %w", v.Name, err)
	}
	return a, nil
}

// Values returns the numeric values of v in row-major order.
func (v *Variable) Values(ctx context.Context) ([]float64, error) {
	if v.Kind() != Float {
		return nil, fmt.Errorf("dataset: variable %s holds text", v.Name)
	}
	a, err := v.Load(ctx)
	if err != nil {
		return nil, err
	}
	return a.Data.Elements, nil
}

// Strings returns the text values of v in row-major order.
func (v *Variable) Strings(ctx context.Context) ([]string, error) {
	if v.Kind() != Text {
		return nil, fmt.Errorf("dataset: variable %s is numeric", v.Name)
	}
	a, err := v.Load(ctx)
	if err != nil {
		return nil, err
	}
	return a.Text, nil
}

// axis returns the position of dim in v, or -1.
func (v *Variable) axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// inMemory returns the values of v if they are held in memory.
func (v *Variable) inMemory() (*Array, bool) {
	m, ok := v.src.(memSource)
	if !ok {
		return nil, false
	}
	return m.a, true
}

// isIndex reports whether v is the index coordinate of its only dimension.
func (v *Variable) isIndex() bool {
	return len(v.Dims) == 1 && v.Dims[0] == v.Name
}

func (v *Variable) with(dims []string, src source) *Variable {
	return &Variable{
		Name:  v.Name,
		Dims:  append([]string{}, dims...),
		Attrs: v.Attrs.clone(),
		src:   src,
	}
}

// memSource holds values in memory.
type memSource struct{ a *Array }

func (m memSource) shape() []int                         { return m.a.Shape }
func (m memSource) kind() Kind                           { return m.a.Kind() }
func (m memSource) chunks() [][]int                      { return nil }
func (m memSource) load(context.Context) (*Array, error) { return m.a, nil }
