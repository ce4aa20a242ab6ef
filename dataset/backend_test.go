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
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestOpenEngine(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tas.nc", tasDataset(t, []float64{0, 1}, []float64{0}, 0))
	ctx := context.Background()

	t.Run("named", func(t *testing.T) {
		ds, err := Open(ctx, path, "netcdf", Options{"drop_variables": "tas"})
		if err != nil {
			t.Fatal(err)
		}
		if len(ds.DataVars()) != 0 {
			t.Errorf("data vars: have %v", ds.DataVars())
		}
	})
	t.Run("guessed", func(t *testing.T) {
		ds, err := Open(ctx, []string{path}, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(ds.DataVars(), []string{"tas"}) {
			t.Errorf("data vars: have %v", ds.DataVars())
		}
	})
	t.Run("unknown", func(t *testing.T) {
		if _, err := Open(ctx, path, "zarr", nil); !errors.Is(err, ErrUnknownEngine) {
			t.Errorf("have %v, want %v", err, ErrUnknownEngine)
		}
		if _, err := Open(ctx, 42, "", nil); !errors.Is(err, ErrUnknownEngine) {
			t.Errorf("have %v, want %v", err, ErrUnknownEngine)
		}
	})
	t.Run("bad option", func(t *testing.T) {
		if _, err := Open(ctx, path, "netcdf", Options{"chunks": 10}); err == nil {
			t.Error("expected an error for an unknown option")
		}
	})
}

func TestRegister(t *testing.T) {
	mustPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected a panic", name)
			}
		}()
		f()
	}
	mustPanic("duplicate", func() { Register("netcdf", netcdfBackend{}) })
	mustPanic("nil", func() { Register("nil", nil) })

	b, ok := Lookup("netcdf")
	if !ok {
		t.Fatal("netcdf backend is not registered")
	}
	if !b.GuessCanOpen("a/b/tas.NC") || b.GuessCanOpen("tas.zarr") || b.GuessCanOpen([]string{}) {
		t.Error("unexpected GuessCanOpen result")
	}
}

func TestOptionsDecode(t *testing.T) {
	var o struct {
		Names   []string      `mapstructure:"names"`
		Check   bool          `mapstructure:"check"`
		Retries int           `mapstructure:"retries"`
		Timeout time.Duration `mapstructure:"timeout"`
	}
	err := Options{"names": "tas", "check": "false", "retries": "3", "timeout": "1m"}.Decode(&o)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(o.Names, []string{"tas"}) || o.Check || o.Retries != 3 || o.Timeout != time.Minute {
		t.Errorf("have %+v", o)
	}
}
