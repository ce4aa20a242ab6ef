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
	"os"
	"path/filepath"
	"testing"
)

func floatVar(t *testing.T, name string, dims []string, shape []int, vals []float64, attrs Attributes) *Variable {
	t.Helper()
	a, err := NewFloatArray(shape, vals)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewVariable(name, dims, a, attrs)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// tasDataset returns a dataset with time and lat indexes and a tas variable
// whose values are base plus their position.
func tasDataset(t *testing.T, times, lats []float64, base float64) *Dataset {
	t.Helper()
	ds := New()
	ds.Attrs["source_id"] = "EC-Earth3"
	if err := ds.AddCoord(floatVar(t, "time", []string{"time"}, []int{len(times)}, times,
		Attributes{"units": "days since 2000-01-01", "calendar": "standard"})); err != nil {
		t.Fatal(err)
	}
	if err := ds.AddCoord(floatVar(t, "lat", []string{"lat"}, []int{len(lats)}, lats, Attributes{"units": "degrees_north"})); err != nil {
		t.Fatal(err)
	}
	vals := make([]float64, len(times)*len(lats))
	for i := range vals {
		vals[i] = base + float64(i)
	}
	if err := ds.AddDataVar(floatVar(t, "tas", []string{"time", "lat"}, []int{len(times), len(lats)}, vals,
		Attributes{"units": "K"})); err != nil {
		t.Fatal(err)
	}
	return ds
}

func writeFile(t *testing.T, dir, name string, ds *Dataset) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(context.Background(), f, ds); err != nil {
		f.Close()
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func values(t *testing.T, ds *Dataset, name string) []float64 {
	t.Helper()
	v, ok := ds.Variable(name)
	if !ok {
		t.Fatalf("missing variable %s", name)
	}
	vals, err := v.Values(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return vals
}

func strs(t *testing.T, ds *Dataset, name string) []string {
	t.Helper()
	v, ok := ds.Variable(name)
	if !ok {
		t.Fatalf("missing variable %s", name)
	}
	s, err := v.Strings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return s
}
