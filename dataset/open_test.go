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
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/floats"
)

func TestWriteOpen(t *testing.T) {
	dir := t.TempDir()
	ds := tasDataset(t, []float64{0, 1}, []float64{-10, 0, 10}, 280)
	tas, _ := ds.Variable("tas")
	tas.Attrs["_FillValue"] = 1e20
	tas.Attrs["cell_methods"] = "area: time: mean"
	a, _ := tas.Load(context.Background())
	a.Data.Elements[4] = 1e20
	path := writeFile(t, dir, "tas.nc", ds)

	o, err := OpenFile(path, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"lat", "time"}, o.Coords()); diff != "" {
		t.Errorf("coords (-want +have):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"tas"}, o.DataVars()); diff != "" {
		t.Errorf("data vars (-want +have):\n%s", diff)
	}
	if !reflect.DeepEqual(o.Sizes(), map[string]int{"time": 2, "lat": 3}) {
		t.Errorf("sizes: have %v", o.Sizes())
	}
	if s, _ := o.Attrs.String("source_id"); s != "EC-Earth3" {
		t.Errorf("source_id: have %q", s)
	}

	v, _ := o.Variable("tas")
	if !v.Lazy() {
		t.Error("tas should be read lazily")
	}
	if !reflect.DeepEqual(v.Chunks(), [][]int{{2}, {3}}) {
		t.Errorf("chunks: have %v", v.Chunks())
	}
	if _, ok := v.Attrs["_FillValue"]; ok {
		t.Error("_FillValue should not be carried on decoded variables")
	}
	if s, _ := v.Attrs.String("units"); s != "K" {
		t.Errorf("units: have %q", s)
	}
	vals := values(t, o, "tas")
	if !math.IsNaN(vals[4]) {
		t.Errorf("fill value was not masked: %v", vals)
	}
	vals[4] = 284
	if !floats.Equal(vals, []float64{280, 281, 282, 283, 284, 285}) {
		t.Errorf("tas: have %v", vals)
	}
	if !floats.Equal(values(t, o, "lat"), []float64{-10, 0, 10}) {
		t.Errorf("lat: have %v", values(t, o, "lat"))
	}

	t.Run("drop variables", func(t *testing.T) {
		o, err := OpenFile(path, OpenOptions{DropVariables: []string{"tas"}})
		if err != nil {
			t.Fatal(err)
		}
		if len(o.DataVars()) != 0 {
			t.Errorf("data vars: have %v", o.DataVars())
		}
	})
}

func TestOpenMultiple(t *testing.T) {
	dir := t.TempDir()
	lats := []float64{-10, 0, 10}
	p2 := writeFile(t, dir, "tas_2.nc", tasDataset(t, []float64{2, 3}, lats, 6))
	p1 := writeFile(t, dir, "tas_1.nc", tasDataset(t, []float64{0, 1}, lats, 0))

	ds, err := OpenMultiple(context.Background(), []Source{FileSource(p2), FileSource(p1)}, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	v, _ := ds.Variable("tas")
	if !v.Lazy() {
		t.Error("tas should stay lazy after combining")
	}
	chunks, err := ds.Chunksizes()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunks, map[string][]int{"time": {2, 2}, "lat": {3}}) {
		t.Errorf("chunks: have %v", chunks)
	}
	want := make([]float64, 12)
	for i := range want {
		want[i] = float64(i)
	}
	if !floats.Equal(values(t, ds, "tas"), want) {
		t.Errorf("tas: have %v, want %v", values(t, ds, "tas"), want)
	}

	sel, err := ds.Sel(map[string]Selector{"time": Range(1, 2), "lat": Label(0)})
	if err != nil {
		t.Fatal(err)
	}
	v, _ = sel.Variable("tas")
	if !reflect.DeepEqual(v.Chunks(), [][]int{{1, 1}}) {
		t.Errorf("selected chunks: have %v", v.Chunks())
	}
	if !floats.Equal(values(t, sel, "tas"), []float64{4, 7}) {
		t.Errorf("selected tas: have %v", values(t, sel, "tas"))
	}

	if _, err := OpenMultiple(context.Background(), []Source{FileSource(filepath.Join(dir, "absent.nc"))}, OpenOptions{}); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestOpenReader(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tas.nc", tasDataset(t, []float64{0}, []float64{0, 1}, 5))
	var opened int
	ds, err := OpenReader("tas.nc", func() (api.ReadSeekerCloser, error) {
		opened++
		return os.Open(path)
	}, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(values(t, ds, "tas"), []float64{5, 6}) {
		t.Errorf("tas: have %v", values(t, ds, "tas"))
	}
	if opened != 2 {
		t.Errorf("opened: have %d, want 2", opened)
	}
}
