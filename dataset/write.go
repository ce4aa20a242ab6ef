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
	"os"
	"reflect"
	"strings"

	"github.com/ctessum/cdf"
)

// Write loads every variable of ds and writes it to w as a netCDF classic
// file. Numeric variables are stored as doubles and text variables as
// character arrays with an extra <name>_strlen dimension.
func Write(ctx context.Context, w *os.File, ds *Dataset) error {
	ds, err := ds.Compute(ctx)
	if err != nil {
		return err
	}
	dims := append([]string{}, ds.dims...)
	lengths := make([]int, len(dims))
	for i, d := range dims {
		lengths[i] = ds.sizes[d]
		if lengths[i] == 0 {
			return fmt.Errorf("dataset: cannot write empty dimension %s", d)
		}
	}
	strlen := make(map[string]int)
	for _, n := range ds.names {
		if a, _ := ds.vars[n].inMemory(); a.Kind() == Text {
			strlen[n] = maxLen(a.Text)
			dims = append(dims, n+"_strlen")
			lengths = append(lengths, strlen[n])
		}
	}

	h := cdf.NewHeader(dims, lengths)
	for _, k := range ds.Attrs.Keys() {
		if v, ok := cdfAttr(ds.Attrs[k]); ok {
			h.AddAttribute("", k, v)
		}
	}
	for _, n := range ds.names {
		v := ds.vars[n]
		if _, ok := strlen[n]; ok {
			h.AddVariable(n, append(append([]string{}, v.Dims...), n+"_strlen"), "")
		} else {
			h.AddVariable(n, v.Dims, []float64{0})
		}
		for _, k := range v.Attrs.Keys() {
			if val, ok := cdfAttr(v.Attrs[k]); ok {
				h.AddAttribute(n, k, val)
			}
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return fmt.Errorf("dataset: writing netcdf header: %w", err)
	}
	for _, n := range ds.names {
		a, _ := ds.vars[n].inMemory()
		end := f.Header.Lengths(n)
		wr := f.Writer(n, make([]int, len(end)), end)
		if l, ok := strlen[n]; ok {
			var b strings.Builder
			for _, s := range a.Text {
				b.WriteString(s)
				b.WriteString(strings.Repeat("\x00", l-len(s)))
			}
			_, err = wr.Write(b.String())
		} else {
			_, err = wr.Write(a.Data.Elements)
		}
		if err != nil {
			return fmt.Errorf("dataset: writing variable %s to netcdf file: %w", n, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// cdfAttr converts an attribute value to a type the classic format can hold.
func cdfAttr(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, false
		}
		return t, true
	case float64:
		return []float64{t}, true
	case []float64:
		return t, len(t) > 0
	case []string:
		return strings.Join(t, " "), len(t) > 0
	case bool:
		return fmt.Sprint(t), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		if nums, _, _, err := flatten(v); err == nil && len(nums) > 0 {
			return nums, true
		}
	}
	return nil, false
}
