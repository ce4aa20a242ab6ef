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
	"sort"
	"time"

	"github.com/spf13/cast"
)

var (
	// ErrLabelNotFound is returned when a selected label is not in an index.
	ErrLabelNotFound = errors.New("dataset: label not found")

	// ErrNoDimension is returned when selecting along a missing dimension.
	ErrNoDimension = errors.New("dataset: no such dimension")
)

// Selector picks positions along a dimension by index label.
type Selector interface {
	// positions returns the selected positions in the index and whether
	// the selection is a single label that removes the dimension.
	positions(index *Array, attrs Attributes) (idx []int, scalar bool, err error)
}

// Label selects a single label and removes the dimension, leaving a scalar
// coordinate.
func Label(v interface{}) Selector { return labelSelector{v} }

// Labels selects the given labels in order.
func Labels(vs ...interface{}) Selector { return labelsSelector(vs) }

// Range selects the labels between lo and hi inclusive.
func Range(lo, hi interface{}) Selector { return rangeSelector{lo, hi} }

// TimeRange selects the times between from and to inclusive on an index
// holding CF-encoded times.
func TimeRange(from, to time.Time) Selector { return timeRangeSelector{from, to} }

type labelSelector struct{ v interface{} }

func (s labelSelector) positions(index *Array, _ Attributes) ([]int, bool, error) {
	i, err := find(index, s.v)
	if err != nil {
		return nil, false, err
	}
	return []int{i}, true, nil
}

type labelsSelector []interface{}

func (s labelsSelector) positions(index *Array, _ Attributes) ([]int, bool, error) {
	o := make([]int, len(s))
	for j, v := range s {
		i, err := find(index, v)
		if err != nil {
			return nil, false, err
		}
		o[j] = i
	}
	return o, false, nil
}

type rangeSelector struct{ lo, hi interface{} }

func (s rangeSelector) positions(index *Array, _ Attributes) ([]int, bool, error) {
	lo, err := asLabel(index, s.lo)
	if err != nil {
		return nil, false, err
	}
	hi, err := asLabel(index, s.hi)
	if err != nil {
		return nil, false, err
	}
	return between(index, lo, hi), false, nil
}

type timeRangeSelector struct{ from, to time.Time }

func (s timeRangeSelector) positions(index *Array, attrs Attributes) ([]int, bool, error) {
	if index.Kind() != Float {
		return nil, false, fmt.Errorf("dataset: time selection on a text index")
	}
	units, _ := attrs.String("units")
	calendar, _ := attrs.String("calendar")
	lo, err := EncodeTime(s.from, units, calendar)
	if err != nil {
		return nil, false, err
	}
	hi, err := EncodeTime(s.to, units, calendar)
	if err != nil {
		return nil, false, err
	}
	return between(index, lo, hi), false, nil
}

func between(index *Array, lo, hi interface{}) []int {
	o := []int{}
	for i := 0; i < index.Len(); i++ {
		l := index.label(i)
		if compareLabels(l, lo) >= 0 && compareLabels(l, hi) <= 0 {
			o = append(o, i)
		}
	}
	return o
}

// asLabel converts v to the label type of index.
func asLabel(index *Array, v interface{}) (interface{}, error) {
	if index.Kind() == Text {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("dataset: label %v for a text index: %w", v, err)
		}
		return s, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, fmt.Errorf("dataset: label %v for a numeric index: %w", v, err)
	}
	return f, nil
}

func find(index *Array, v interface{}) (int, error) {
	l, err := asLabel(index, v)
	if err != nil {
		return 0, err
	}
	for i := 0; i < index.Len(); i++ {
		if compareLabels(index.label(i), l) == 0 {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrLabelNotFound, v)
}

// Sel returns ds restricted to the labels picked along each dimension.
func (ds *Dataset) Sel(sel map[string]Selector) (*Dataset, error) {
	dims := make([]string, 0, len(sel))
	for d := range sel {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	o := ds
	for _, d := range dims {
		if _, ok := o.sizes[d]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoDimension, d)
		}
		index, ok := o.Index(d)
		if !ok {
			return nil, fmt.Errorf("dataset: dimension %s has no index to select on", d)
		}
		idx, scalar, err := sel[d].positions(index, o.vars[d].Attrs)
		if err != nil {
			return nil, fmt.Errorf("dataset: selecting along %s: %w", d, err)
		}
		if o, err = o.isel(d, idx, scalar); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// isel takes positions idx along dim from every variable holding it. If drop
// is set, a single position is taken and dim is removed.
func (ds *Dataset) isel(dim string, idx []int, drop bool) (*Dataset, error) {
	o := New()
	o.Attrs = ds.Attrs.clone()
	for _, n := range ds.names {
		v := ds.vars[n]
		ax := v.axis(dim)
		if ax < 0 {
			if err := o.add(v, ds.coords[n]); err != nil {
				return nil, err
			}
			continue
		}
		dims := append([]string{}, v.Dims...)
		if drop {
			dims = append(dims[:ax], dims[ax+1:]...)
		}
		var src source = &selectSource{src: v.src, axis: ax, idx: idx, drop: drop}
		if a, ok := v.inMemory(); ok {
			b := a.take(ax, idx)
			if drop {
				var err error
				if b, err = b.reshape(src.shape()); err != nil {
					return nil, err
				}
			}
			src = memSource{b}
		}
		if err := o.add(v.with(dims, src), ds.coords[n]); err != nil {
			return nil, err
		}
	}
	return o.orderDims(ds.dims), nil
}
