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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

var (
	// ErrNoDatasets is returned when there is nothing to combine.
	ErrNoDatasets = errors.New("dataset: no datasets")

	// ErrAlignment is returned when datasets disagree on the length or
	// index values of a shared dimension under an exact join.
	ErrAlignment = errors.New("dataset: indexes are not equal")

	// ErrNotMonotonic is returned when datasets cannot be ordered along a
	// dimension because its index is not monotonic.
	ErrNotMonotonic = errors.New("dataset: index is not monotonic")
)

// Join selects how indexes of datasets being merged are aligned.
type Join int

const (
	// JoinExact requires shared indexes to be identical.
	JoinExact Join = iota
	// JoinOverride takes indexes from the first dataset, requiring only
	// equal lengths.
	JoinOverride
)

// CombineAttrs selects how attributes of combined datasets are merged.
type CombineAttrs int

const (
	// DropConflicts keeps attributes, dropping those whose values differ.
	DropConflicts CombineAttrs = iota
	// OverrideAttrs keeps the attributes of the first dataset.
	OverrideAttrs
	// DropAttrs discards all attributes.
	DropAttrs
)

// CombineOptions control CombineByCoords.
type CombineOptions struct {
	Join  Join
	Attrs CombineAttrs
}

// DefaultCombineOptions returns an exact join that drops conflicting
// attributes.
func DefaultCombineOptions() CombineOptions {
	return CombineOptions{Join: JoinExact, Attrs: DropConflicts}
}

// CombineByCoords combines datasets into one. Datasets holding the same data
// variables are concatenated along every dimension whose index differs
// between them, ordered by those index values. The resulting groups are then
// merged. Variables that do not vary along a concatenated dimension are taken
// from the first dataset.
func CombineByCoords(dss []*Dataset, opts CombineOptions) (*Dataset, error) {
	if len(dss) == 0 {
		return nil, ErrNoDatasets
	}
	var keys []string
	groups := make(map[string][]*Dataset)
	for _, ds := range dss {
		k := groupKey(ds)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], ds)
	}
	combined := make([]*Dataset, 0, len(keys))
	for _, k := range keys {
		ds, err := combineGroup(groups[k], opts)
		if err != nil {
			return nil, err
		}
		combined = append(combined, ds)
	}
	return Merge(combined, opts)
}

// groupKey identifies datasets holding the same variables. Datasets
// without data variables are told apart by their coordinates.
func groupKey(ds *Dataset) string {
	if names := ds.DataVars(); len(names) > 0 {
		return strings.Join(names, "\x00")
	}
	return "\x00coords\x00" + strings.Join(ds.Coords(), "\x00")
}

func combineGroup(dss []*Dataset, opts CombineOptions) (*Dataset, error) {
	if len(dss) == 1 {
		return dss[0], nil
	}
	dims, err := concatDims(dss)
	if err != nil {
		return nil, err
	}
	parts := dss
	for i, dim := range dims {
		rest := dims[i+1:]
		var keys []string
		byKey := make(map[string][]*Dataset)
		for _, ds := range parts {
			k := indexKey(ds, rest)
			if _, ok := byKey[k]; !ok {
				keys = append(keys, k)
			}
			byKey[k] = append(byKey[k], ds)
		}
		next := make([]*Dataset, 0, len(keys))
		for _, k := range keys {
			members, err := orderAlong(byKey[k], dim)
			if err != nil {
				return nil, err
			}
			ds, err := Concat(members, dim, opts)
			if err != nil {
				return nil, err
			}
			next = append(next, ds)
		}
		parts = next
	}
	if len(parts) != 1 {
		return nil, fmt.Errorf("dataset: datasets along %v do not form a complete hypercube", dims)
	}
	for _, dim := range dims {
		idx, _ := parts[0].Index(dim)
		if _, ok := idx.monotonic(); !ok {
			return nil, fmt.Errorf("%w: %s is not monotonic after concatenation; datasets may overlap", ErrNotMonotonic, dim)
		}
	}
	return parts[0], nil
}

// concatDims returns the dimensions whose index values differ between
// datasets, in the dimension order of the first dataset.
func concatDims(dss []*Dataset) ([]string, error) {
	var dims []string
	for _, dim := range dss[0].dims {
		first, ok := dss[0].Index(dim)
		if !ok {
			continue
		}
		varies := false
		for _, ds := range dss[1:] {
			idx, ok := ds.Index(dim)
			if !ok {
				return nil, fmt.Errorf("dataset: dimension %s has an index in some datasets but not others", dim)
			}
			if !idx.Equal(first) {
				varies = true
			}
		}
		if !varies {
			continue
		}
		for _, ds := range dss {
			idx, _ := ds.Index(dim)
			if _, ok := idx.monotonic(); !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotMonotonic, dim)
			}
		}
		dims = append(dims, dim)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("dataset: could not find any dimension coordinates to order %d datasets holding %v",
			len(dss), dss[0].DataVars())
	}
	return dims, nil
}

func indexKey(ds *Dataset, dims []string) string {
	var b strings.Builder
	for _, d := range dims {
		idx, _ := ds.Index(d)
		if idx.Data != nil {
			fmt.Fprint(&b, idx.Data.Elements)
		} else {
			fmt.Fprintf(&b, "%q", idx.Text)
		}
		b.WriteByte(0)
	}
	return b.String()
}

// orderAlong sorts datasets by the first value of their dim index, in the
// direction the index runs.
func orderAlong(dss []*Dataset, dim string) ([]*Dataset, error) {
	o := append([]*Dataset{}, dss...)
	first, _ := o[0].Index(dim)
	dir, _ := first.monotonic()
	sort.SliceStable(o, func(i, j int) bool {
		a, _ := o[i].Index(dim)
		b, _ := o[j].Index(dim)
		return compareLabels(a.label(0), b.label(0)) == -dir
	})
	for i := 1; i < len(o); i++ {
		a, _ := o[i-1].Index(dim)
		b, _ := o[i].Index(dim)
		if compareLabels(a.label(0), b.label(0)) == 0 {
			return nil, fmt.Errorf("dataset: two datasets start at the same %s value %v", dim, a.label(0))
		}
	}
	return o, nil
}

// Concat joins datasets along dim in the given order. Variables holding dim
// are concatenated; other variables are taken from the first dataset.
func Concat(dss []*Dataset, dim string, opts CombineOptions) (*Dataset, error) {
	if len(dss) == 0 {
		return nil, ErrNoDatasets
	}
	first := dss[0]
	for _, ds := range dss[1:] {
		for _, n := range ds.names {
			v := ds.vars[n]
			if _, ok := first.vars[n]; !ok && v.axis(dim) >= 0 {
				return nil, fmt.Errorf("dataset: variable %s is present in some datasets but not others", n)
			}
		}
	}
	o := New()
	o.Attrs = combineAttrs(dss, opts.Attrs)
	for _, n := range first.names {
		v := first.vars[n]
		ax := v.axis(dim)
		if ax < 0 {
			if err := o.add(v, first.coords[n]); err != nil {
				return nil, err
			}
			continue
		}
		parts := make([]*Variable, len(dss))
		for i, ds := range dss {
			p, ok := ds.vars[n]
			if !ok || p.axis(dim) != ax || len(p.Dims) != len(v.Dims) {
				return nil, fmt.Errorf("dataset: variable %s does not have dimension %s in all datasets", n, dim)
			}
			parts[i] = p
		}
		src, err := concatSources(parts, ax)
		if err != nil {
			return nil, fmt.Errorf("dataset: concatenating %s along %s: %w", n, dim, err)
		}
		if err := o.add(v.with(v.Dims, src), first.coords[n]); err != nil {
			return nil, err
		}
	}
	return o.orderDims(first.dims), nil
}

func concatSources(parts []*Variable, axis int) (source, error) {
	srcs := make([]source, len(parts))
	arrays := make([]*Array, 0, len(parts))
	for i, p := range parts {
		srcs[i] = p.src
		if a, ok := p.inMemory(); ok {
			arrays = append(arrays, a)
		}
		if p.Kind() != parts[0].Kind() {
			return nil, fmt.Errorf("mixed %v and %v values", parts[0].Kind(), p.Kind())
		}
		ps, fs := p.src.shape(), parts[0].src.shape()
		for j := range ps {
			if j != axis && ps[j] != fs[j] {
				return nil, fmt.Errorf("shape %v does not match %v", ps, fs)
			}
		}
	}
	if len(arrays) == len(parts) {
		a, err := concatArrays(arrays, axis)
		if err != nil {
			return nil, err
		}
		return memSource{a}, nil
	}
	return &concatSource{parts: srcs, axis: axis}, nil
}

// Merge combines datasets holding different variables. Variables present in
// several datasets are taken from the first one that has them.
func Merge(dss []*Dataset, opts CombineOptions) (*Dataset, error) {
	if len(dss) == 0 {
		return nil, ErrNoDatasets
	}
	o := New()
	o.Attrs = combineAttrs(dss, opts.Attrs)
	var order []string
	for _, ds := range dss {
		order = append(order, ds.dims...)
		for _, d := range ds.dims {
			if n, ok := o.sizes[d]; ok && n != ds.sizes[d] {
				return nil, fmt.Errorf("%w: dimension %s has length %d and %d", ErrAlignment, d, n, ds.sizes[d])
			}
			if opts.Join != JoinExact {
				continue
			}
			a, ok1 := o.Index(d)
			b, ok2 := ds.Index(d)
			if ok1 && ok2 && !a.Equal(b) {
				return nil, fmt.Errorf("%w: along dimension %s", ErrAlignment, d)
			}
		}
		for _, n := range ds.names {
			if _, ok := o.vars[n]; ok {
				continue
			}
			if err := o.add(ds.vars[n], ds.coords[n]); err != nil {
				return nil, err
			}
		}
	}
	return o.orderDims(order), nil
}

func combineAttrs(dss []*Dataset, mode CombineAttrs) Attributes {
	switch mode {
	case DropAttrs:
		return Attributes{}
	case OverrideAttrs:
		return dss[0].Attrs.clone()
	}
	o := dss[0].Attrs.clone()
	dropped := make(map[string]bool)
	for _, ds := range dss[1:] {
		for k, v := range ds.Attrs {
			if dropped[k] {
				continue
			}
			prev, ok := o[k]
			switch {
			case !ok:
				o[k] = v
			case !reflect.DeepEqual(prev, v):
				delete(o, k)
				dropped[k] = true
			}
		}
	}
	return o
}
