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
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// ErrUnknownEngine is returned by Open for an unregistered engine name or
// when no backend can open the given source.
var ErrUnknownEngine = errors.New("dataset: unknown engine")

// Options holds the keyword options passed to a backend. Each backend
// documents the keys it understands.
type Options map[string]interface{}

// Decode decodes o into the struct pointed to by out using the mapstructure
// tags on its fields. Values are converted loosely, so "true" decodes into
// a bool and a single string into a []string.
func (o Options) Decode(out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]interface{}(o)); err != nil {
		return fmt.Errorf("dataset: decoding options: %w", err)
	}
	return nil
}

// Backend opens datasets from some kind of source.
type Backend interface {
	// OpenDataset opens src.
	OpenDataset(ctx context.Context, src interface{}, opts Options) (*Dataset, error)
	// GuessCanOpen reports whether the backend can probably open src.
	GuessCanOpen(src interface{}) bool
	// Description is a one-line description of the backend.
	Description() string
	// Parameters lists the option keys the backend understands.
	Parameters() []string
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// Register makes a backend available by name. It panics if Register is
// called twice with the same name or with a nil backend.
func Register(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if b == nil {
		panic("dataset: Register backend is nil")
	}
	if _, dup := backends[name]; dup {
		panic("dataset: Register called twice for backend " + name)
	}
	backends[name] = b
}

// Backends returns the sorted names of the registered backends.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	o := make([]string, 0, len(backends))
	for n := range backends {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// Open opens src with the named engine. If engine is empty, the first
// backend in name order whose GuessCanOpen accepts src is used.
func Open(ctx context.Context, src interface{}, engine string, opts Options) (*Dataset, error) {
	if engine != "" {
		b, ok := Lookup(engine)
		if !ok {
			return nil, fmt.Errorf("%w %q; registered engines are %v", ErrUnknownEngine, engine, Backends())
		}
		return b.OpenDataset(ctx, src, opts)
	}
	for _, name := range Backends() {
		b, _ := Lookup(name)
		if b.GuessCanOpen(src) {
			return b.OpenDataset(ctx, src, opts)
		}
	}
	return nil, fmt.Errorf("%w: no engine can open %T", ErrUnknownEngine, src)
}

func init() {
	Register("netcdf", netcdfBackend{})
}

// netcdfBackend opens local netCDF files. The source is a path or a list
// of paths; several paths are combined by their coordinates.
type netcdfBackend struct{}

type netcdfOptions struct {
	DropVariables []string `mapstructure:"drop_variables"`
}

func (netcdfBackend) OpenDataset(ctx context.Context, src interface{}, opts Options) (*Dataset, error) {
	var o netcdfOptions
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}
	var paths []string
	switch s := src.(type) {
	case string:
		paths = []string{s}
	case []string:
		paths = s
	default:
		return nil, fmt.Errorf("dataset: netcdf engine cannot open %T", src)
	}
	srcs := make([]Source, len(paths))
	for i, p := range paths {
		srcs[i] = FileSource(p)
	}
	return OpenMultiple(ctx, srcs, OpenOptions{DropVariables: o.DropVariables})
}

func (netcdfBackend) GuessCanOpen(src interface{}) bool {
	isNC := func(p string) bool {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".nc", ".nc4", ".cdf", ".netcdf":
			return true
		}
		return false
	}
	switch s := src.(type) {
	case string:
		return isNC(s)
	case []string:
		for _, p := range s {
			if !isNC(p) {
				return false
			}
		}
		return len(s) > 0
	}
	return false
}

func (netcdfBackend) Description() string { return "Open netCDF files" }

func (netcdfBackend) Parameters() []string { return []string{"drop_variables"} }
