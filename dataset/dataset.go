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
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Dataset is a collection of variables sharing named dimensions.
type Dataset struct {
	dims   []string
	sizes  map[string]int
	names  []string
	vars   map[string]*Variable
	coords map[string]bool

	// Attrs holds the global attributes.
	Attrs Attributes
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{
		sizes:  make(map[string]int),
		vars:   make(map[string]*Variable),
		coords: make(map[string]bool),
		Attrs:  Attributes{},
	}
}

// AddCoord adds a coordinate variable.
func (ds *Dataset) AddCoord(v *Variable) error { return ds.add(v, true) }

// AddDataVar adds a data variable.
func (ds *Dataset) AddDataVar(v *Variable) error { return ds.add(v, false) }

func (ds *Dataset) add(v *Variable, coord bool) error {
	if _, ok := ds.vars[v.Name]; ok {
		return fmt.Errorf("dataset: variable %s already exists", v.Name)
	}
	shape := v.src.shape()
	if len(shape) != len(v.Dims) {
		return fmt.Errorf("dataset: variable %s has dimensions %v but shape %v", v.Name, v.Dims, shape)
	}
	for i, d := range v.Dims {
		if n, ok := ds.sizes[d]; ok && n != shape[i] {
			return fmt.Errorf("dataset: variable %s has length %d along %s but the dataset has %d", v.Name, shape[i], d, n)
		}
	}
	if v.isIndex() && v.Lazy() {
		return fmt.Errorf("dataset: index coordinate %s must be held in memory", v.Name)
	}
	for i, d := range v.Dims {
		if _, ok := ds.sizes[d]; !ok {
			ds.dims = append(ds.dims, d)
			ds.sizes[d] = shape[i]
		}
	}
	ds.names = append(ds.names, v.Name)
	ds.vars[v.Name] = v
	ds.coords[v.Name] = coord
	return nil
}

// Dims returns the dimension names in the order they were first used.
func (ds *Dataset) Dims() []string { return append([]string{}, ds.dims...) }

// Sizes returns the length of each dimension.
func (ds *Dataset) Sizes() map[string]int {
	o := make(map[string]int, len(ds.sizes))
	for k, v := range ds.sizes {
		o[k] = v
	}
	return o
}

// Coords returns the sorted names of the coordinate variables.
func (ds *Dataset) Coords() []string { return ds.sortedNames(true) }

// DataVars returns the sorted names of the data variables.
func (ds *Dataset) DataVars() []string { return ds.sortedNames(false) }

func (ds *Dataset) sortedNames(coord bool) []string {
	var o []string
	for _, n := range ds.names {
		if ds.coords[n] == coord {
			o = append(o, n)
		}
	}
	sort.Strings(o)
	return o
}

// Variable returns the named coordinate or data variable.
func (ds *Dataset) Variable(name string) (*Variable, bool) {
	v, ok := ds.vars[name]
	return v, ok
}

// IsCoord reports whether name is a coordinate variable.
func (ds *Dataset) IsCoord(name string) bool { return ds.coords[name] }

// Index returns the values of the index coordinate of dim.
func (ds *Dataset) Index(dim string) (*Array, bool) {
	v, ok := ds.vars[dim]
	if !ok || !v.isIndex() || !ds.coords[dim] {
		return nil, false
	}
	return v.inMemory()
}

// Copy returns a shallow copy of ds sharing its variables.
func (ds *Dataset) Copy() (*Dataset, error) {
	o := New()
	for _, n := range ds.names {
		if err := o.add(ds.vars[n], ds.coords[n]); err != nil {
			return nil, err
		}
	}
	o.Attrs = ds.Attrs.clone()
	return o, nil
}

// Drop returns ds without the named variables. Names not in ds are
// ignored. Dimensions no longer used by any variable are removed.
func (ds *Dataset) Drop(names ...string) (*Dataset, error) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	o := New()
	for _, n := range ds.names {
		if drop[n] {
			continue
		}
		if err := o.add(ds.vars[n], ds.coords[n]); err != nil {
			return nil, err
		}
	}
	o.Attrs = ds.Attrs.clone()
	return o.orderDims(ds.dims), nil
}

// SetCoords returns ds with the named data variables turned into
// coordinates.
func (ds *Dataset) SetCoords(names ...string) (*Dataset, error) {
	o, err := ds.Copy()
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if _, ok := o.vars[n]; !ok {
			return nil, fmt.Errorf("dataset: cannot set %s as coordinate: no such variable", n)
		}
		o.coords[n] = true
	}
	return o, nil
}

// ExpandDims returns ds with a new leading dimension of length one for each
// dimension in order, labelled by labels. Data variables gain the new
// dimensions; coordinates are unchanged.
func (ds *Dataset) ExpandDims(labels map[string]string, order []string) (*Dataset, error) {
	for _, d := range order {
		if _, ok := labels[d]; !ok {
			return nil, fmt.Errorf("dataset: no label for new dimension %s", d)
		}
		if _, ok := ds.sizes[d]; ok {
			return nil, fmt.Errorf("dataset: dimension %s already exists", d)
		}
		if _, ok := ds.vars[d]; ok {
			return nil, fmt.Errorf("dataset: variable %s already exists", d)
		}
	}
	o := New()
	o.Attrs = ds.Attrs.clone()
	for _, d := range order {
		a, _ := NewTextArray([]int{1}, []string{labels[d]})
		v, _ := NewVariable(d, []string{d}, a, nil)
		if err := o.AddCoord(v); err != nil {
			return nil, err
		}
	}
	for _, n := range ds.names {
		v := ds.vars[n]
		if ds.coords[n] {
			if err := o.AddCoord(v); err != nil {
				return nil, err
			}
			continue
		}
		dims := append(append([]string{}, order...), v.Dims...)
		var src source = &expandSource{src: v.src, n: len(order)}
		if a, ok := v.inMemory(); ok {
			shape := append(make([]int, 0, len(dims)), src.shape()...)
			b, err := a.reshape(shape)
			if err != nil {
				return nil, err
			}
			src = memSource{b}
		}
		if err := o.AddDataVar(v.with(dims, src)); err != nil {
			return nil, err
		}
	}
	return o.orderDims(append(append([]string{}, order...), ds.dims...)), nil
}

// Compute returns a copy of ds with every variable loaded into memory.
func (ds *Dataset) Compute(ctx context.Context) (*Dataset, error) {
	loaded := make([]*Array, len(ds.names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(-1))
	for i, n := range ds.names {
		v := ds.vars[n]
		g.Go(func() error {
			a, err := v.Load(ctx)
			loaded[i] = a
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	o := New()
	o.Attrs = ds.Attrs.clone()
	for i, n := range ds.names {
		v := ds.vars[n]
		if err := o.add(v.with(v.Dims, memSource{loaded[i]}), ds.coords[n]); err != nil {
			return nil, err
		}
	}
	return o.orderDims(ds.dims), nil
}

// Chunksizes returns the chunk sizes along each dimension of the lazy
// variables in ds. It fails if two variables are chunked differently
// along the same dimension.
func (ds *Dataset) Chunksizes() (map[string][]int, error) {
	o := make(map[string][]int)
	for _, n := range ds.names {
		v := ds.vars[n]
		c := v.Chunks()
		if c == nil {
			continue
		}
		for i, d := range v.Dims {
			if prev, ok := o[d]; ok && !intsEqual(prev, c[i]) {
				return nil, fmt.Errorf("dataset: inconsistent chunks along dimension %s: %v and %v", d, prev, c[i])
			}
			o[d] = copyInts(c[i])
		}
	}
	return o, nil
}

// References returns the sorted names that variables in ds refer to through
// their coordinates, bounds or cell_measures attributes. The names need not
// be variables of ds: cell measures usually live in separate files.
func (ds *Dataset) References() []string {
	found := make(map[string]bool)
	for _, n := range ds.names {
		for _, ref := range references(ds.vars[n].Attrs) {
			if ref != n {
				found[ref] = true
			}
		}
	}
	o := make([]string, 0, len(found))
	for n := range found {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// AuxiliaryNames returns the sorted names of data variables of ds that are
// listed in names.
func (ds *Dataset) AuxiliaryNames(names []string) []string {
	var o []string
	for _, n := range names {
		if _, ok := ds.vars[n]; ok && !ds.coords[n] {
			o = append(o, n)
		}
	}
	sort.Strings(o)
	return o
}

// references returns the variable names listed in the coordinates, bounds
// and cell_measures attributes.
func references(attrs Attributes) []string {
	var o []string
	if s, ok := attrs.String("coordinates"); ok {
		o = append(o, strings.Fields(s)...)
	}
	if s, ok := attrs.String("bounds"); ok {
		o = append(o, strings.Fields(s)...)
	}
	if s, ok := attrs.String("cell_measures"); ok {
		// "area: areacella volume: volcello"
		for _, f := range strings.Fields(s) {
			if !strings.HasSuffix(f, ":") {
				o = append(o, f)
			}
		}
	}
	return o
}

// orderDims reorders the dimensions of ds to follow order, keeping any
// others after them, and drops dimensions no variable uses.
func (ds *Dataset) orderDims(order []string) *Dataset {
	used := make(map[string]bool)
	for _, v := range ds.vars {
		for _, d := range v.Dims {
			used[d] = true
		}
	}
	var dims []string
	seen := make(map[string]bool)
	for _, d := range append(append([]string{}, order...), ds.dims...) {
		if used[d] && !seen[d] {
			dims = append(dims, d)
			seen[d] = true
		}
	}
	for d := range ds.sizes {
		if !used[d] {
			delete(ds.sizes, d)
		}
	}
	ds.dims = dims
	return ds
}
