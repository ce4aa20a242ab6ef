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
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
)

// Kind is the kind of values a variable holds.
type Kind int

// These are the supported kinds of variable values.
const (
	Float Kind = iota
	Text
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float64"
	case Text:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Array holds the loaded values of a variable in row-major order.
// Numeric values are held in Data and text values in Text; exactly
// one of the two is set.
type Array struct {
	Shape []int
	Data  *sparse.DenseArray
	Text  []string
}

// NewFloatArray returns a numeric array with the given shape. If values is
// not nil it must hold exactly one value per element.
func NewFloatArray(shape []int, values []float64) (*Array, error) {
	shape = copyInts(shape)
	n := size(shape)
	if values != nil && len(values) != n {
		return nil, fmt.Errorf("dataset: shape %v needs %d values but %d were given", shape, n, len(values))
	}
	d := sparse.ZerosDense(copyInts(shape)...)
	copy(d.Elements, values)
	return &Array{Shape: shape, Data: d}, nil
}

// NewTextArray returns a text array with the given shape.
func NewTextArray(shape []int, values []string) (*Array, error) {
	shape = copyInts(shape)
	n := size(shape)
	if len(values) != n {
		return nil, fmt.Errorf("dataset: shape %v needs %d values but %d were given", shape, n, len(values))
	}
	t := make([]string, n)
	copy(t, values)
	return &Array{Shape: shape, Text: t}, nil
}

// Kind returns the kind of values held by a.
func (a *Array) Kind() Kind {
	if a.Data == nil {
		return Text
	}
	return Float
}

// Len returns the number of elements in a.
func (a *Array) Len() int { return size(a.Shape) }

// Float64s returns the numeric values of a, or nil for text arrays.
func (a *Array) Float64s() []float64 {
	if a.Data == nil {
		return nil
	}
	return a.Data.Elements
}

// label returns the i-th element as a float64 or a string.
func (a *Array) label(i int) interface{} {
	if a.Data != nil {
		return a.Data.Elements[i]
	}
	return a.Text[i]
}

// Equal reports whether a and b have the same shape, kind and values.
// NaN values compare equal to each other.
func (a *Array) Equal(b *Array) bool {
	if a.Kind() != b.Kind() || !intsEqual(a.Shape, b.Shape) {
		return false
	}
	if a.Data != nil {
		return floats.Same(a.Data.Elements, b.Data.Elements)
	}
	for i, s := range a.Text {
		if b.Text[i] != s {
			return false
		}
	}
	return true
}

// monotonic returns whether a one-dimensional array is strictly increasing
// (dir=1) or strictly decreasing (dir=-1). Arrays with fewer than two
// elements are increasing.
func (a *Array) monotonic() (dir int, ok bool) {
	n := a.Len()
	if n < 2 {
		return 1, true
	}
	dir = compareLabels(a.label(1), a.label(0))
	if dir == 0 {
		return 0, false
	}
	for i := 2; i < n; i++ {
		if compareLabels(a.label(i), a.label(i-1)) != dir {
			return 0, false
		}
	}
	return dir, true
}

// compareLabels compares two labels of the same kind.
func compareLabels(a, b interface{}) int {
	switch av := a.(type) {
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	panic(fmt.Errorf("dataset: invalid label type %T", a))
}

// take returns the elements at the given positions along axis.
func (a *Array) take(axis int, idx []int) *Array {
	outer := size(a.Shape[:axis])
	inner := size(a.Shape[axis+1:])
	n := a.Shape[axis]
	shape := copyInts(a.Shape)
	shape[axis] = len(idx)
	var o *Array
	if a.Data != nil {
		o, _ = NewFloatArray(shape, nil)
	} else {
		o = &Array{Shape: shape, Text: make([]string, size(shape))}
	}
	k := 0
	for i := 0; i < outer; i++ {
		for _, j := range idx {
			start := (i*n + j) * inner
			if a.Data != nil {
				copy(o.Data.Elements[k:k+inner], a.Data.Elements[start:start+inner])
			} else {
				copy(o.Text[k:k+inner], a.Text[start:start+inner])
			}
			k += inner
		}
	}
	return o
}

// reshape returns a copy of a with a different shape of the same size.
func (a *Array) reshape(shape []int) (*Array, error) {
	if size(shape) != a.Len() {
		return nil, fmt.Errorf("dataset: cannot reshape %v into %v", a.Shape, shape)
	}
	if a.Data != nil {
		return NewFloatArray(shape, a.Data.Elements)
	}
	return NewTextArray(shape, a.Text)
}

// concatArrays joins arrays along axis. All other axes must match.
func concatArrays(parts []*Array, axis int) (*Array, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("dataset: nothing to concatenate")
	}
	first := parts[0]
	shape := copyInts(first.Shape)
	shape[axis] = 0
	for _, p := range parts {
		if p.Kind() != first.Kind() || len(p.Shape) != len(first.Shape) {
			return nil, fmt.Errorf("dataset: cannot concatenate %v array of shape %v with %v array of shape %v",
				first.Kind(), first.Shape, p.Kind(), p.Shape)
		}
		for i, s := range p.Shape {
			if i != axis && s != first.Shape[i] {
				return nil, fmt.Errorf("dataset: cannot concatenate shape %v with %v along axis %d", first.Shape, p.Shape, axis)
			}
		}
		shape[axis] += p.Shape[axis]
	}
	outer := size(shape[:axis])
	inner := size(shape[axis+1:])
	var o *Array
	if first.Data != nil {
		o, _ = NewFloatArray(shape, nil)
	} else {
		o = &Array{Shape: shape, Text: make([]string, size(shape))}
	}
	k := 0
	for i := 0; i < outer; i++ {
		for _, p := range parts {
			n := p.Shape[axis] * inner
			start := i * n
			if o.Data != nil {
				copy(o.Data.Elements[k:k+n], p.Data.Elements[start:start+n])
			} else {
				copy(o.Text[k:k+n], p.Text[start:start+n])
			}
			k += n
		}
	}
	return o, nil
}

// flatten walks a (possibly nested) slice of numbers or strings as returned
// by the netCDF reader and returns its values in row-major order together
// with the shape implied by the nesting.
func flatten(v interface{}) (nums []float64, text []string, shape []int, err error) {
	rv := reflect.ValueOf(v)
	for t := rv; t.IsValid() && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array); {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
		t = t.Index(0)
	}
	var walk func(reflect.Value) error
	walk = func(rv reflect.Value) error {
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i)); err != nil {
					return err
				}
			}
			return nil
		case reflect.Interface, reflect.Ptr:
			return walk(rv.Elem())
		case reflect.String:
			text = append(text, strings.TrimRight(rv.String(), "\x00"))
			return nil
		case reflect.Float32, reflect.Float64:
			nums = append(nums, rv.Float())
			return nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			nums = append(nums, float64(rv.Int()))
			return nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			nums = append(nums, float64(rv.Uint()))
			return nil
		}
		return fmt.Errorf("dataset: unsupported value type %v", rv.Type())
	}
	if err = walk(rv); err != nil {
		return nil, nil, nil, err
	}
	if nums != nil && text != nil {
		return nil, nil, nil, fmt.Errorf("dataset: mixed numeric and text values")
	}
	return nums, text, shape, nil
}

// Attributes holds the attributes of a variable or dataset. Numeric
// attribute values are normalised to float64 (single values) or []float64.
type Attributes map[string]interface{}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the named attribute if it holds text.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns the named attribute as a number. For multi-valued
// attributes the first value is returned.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	if s, ok := v.([]float64); ok {
		if len(s) == 0 {
			return 0, false
		}
		return s[0], true
	}
	if _, ok := v.(string); ok {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

func (a Attributes) clone() Attributes {
	o := make(Attributes, len(a))
	for k, v := range a {
		o[k] = v
	}
	return o
}

// normalizeAttr converts numeric attribute values to float64 or []float64
// and leaves other values unchanged.
func normalizeAttr(v interface{}) interface{} {
	switch t := v.(type) {
	case string, float64, []float64, []string, bool:
		return t
	case []byte:
		return strings.TrimRight(string(t), "\x00")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		nums, text, _, err := flatten(v)
		switch {
		case err != nil:
			return v
		case text != nil:
			if len(text) == 1 {
				return text[0]
			}
			return text
		case len(nums) == 1:
			return nums[0]
		}
		return nums
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return f
	}
	return v
}

// decode converts packed values to physical values: fill and missing
// values become NaN, then scale_factor and add_offset are applied.
func decode(vals []float64, attrs Attributes) {
	var missing []float64
	for _, key := range []string{"_FillValue", "missing_value"} {
		switch v := attrs[key].(type) {
		case float64:
			missing = append(missing, v)
		case []float64:
			missing = append(missing, v...)
		}
	}
	scale, hasScale := attrs.Float("scale_factor")
	offset, hasOffset := attrs.Float("add_offset")
	for i, v := range vals {
		for _, m := range missing {
			if v == m || (math.IsNaN(m) && math.IsNaN(v)) {
				v = math.NaN()
				break
			}
		}
		if hasScale {
			v *= scale
		}
		if hasOffset {
			v += offset
		}
		vals[i] = v
	}
}

// encodingAttrs are consumed by decode and not carried on decoded variables.
var encodingAttrs = []string{"_FillValue", "missing_value", "scale_factor", "add_offset"}

func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func copyInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return append(make([]int, 0, len(s)), s...)
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
