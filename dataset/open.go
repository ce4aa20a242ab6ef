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

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"golang.org/x/sync/errgroup"
)

// Opener returns a newly opened netCDF group. The caller closes it.
type Opener func() (api.Group, error)

// FileOpener opens the netCDF file at path.
func FileOpener(path string) Opener {
	return func() (api.Group, error) { return netcdf.Open(path) }
}

// ReaderOpener opens a netCDF file from the stream returned by open, which
// is called again for every read.
func ReaderOpener(open func() (api.ReadSeekerCloser, error)) Opener {
	return func() (api.Group, error) {
		r, err := open()
		if err != nil {
			return nil, err
		}
		g, err := netcdf.New(r)
		if err != nil {
			r.Close()
			return nil, err
		}
		return g, nil
	}
}

// Source names a netCDF file and how to open it.
type Source struct {
	Name string
	Open Opener
}

// FileSource returns a Source for a local file.
func FileSource(path string) Source { return Source{Name: path, Open: FileOpener(path)} }

// OpenOptions control how files are read.
type OpenOptions struct {
	// DropVariables lists variables to leave out.
	DropVariables []string
}

// OpenFile opens the netCDF file at path.
func OpenFile(path string, opts OpenOptions) (*Dataset, error) {
	return OpenSource(FileSource(path), opts)
}

// OpenReader opens the netCDF file read from the streams returned by open.
// The name is used in error messages.
func OpenReader(name string, open func() (api.ReadSeekerCloser, error), opts OpenOptions) (*Dataset, error) {
	return OpenSource(Source{Name: name, Open: ReaderOpener(open)}, opts)
}

// OpenSource reads the structure of a netCDF file. Index coordinates and
// text variables are read immediately; other variables are read on Load.
// Variables named in a coordinates attribute become coordinates.
func OpenSource(src Source, opts OpenOptions) (*Dataset, error) {
	g, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("dataset: opening %s: %w", src.Name, err)
	}
	defer g.Close()

	drop := make(map[string]bool)
	for _, n := range opts.DropVariables {
		drop[n] = true
	}
	type varInfo struct {
		name  string
		dims  []string
		attrs Attributes
		vg    api.VarGetter
		text  *Array
	}
	var infos []*varInfo
	for _, name := range g.ListVariables() {
		if drop[name] {
			continue
		}
		vg, err := g.GetVarGetter(name)
		if err != nil {
			return nil, fmt.Errorf("dataset: reading %s from %s: %w", name, src.Name, err)
		}
		info := &varInfo{name: name, dims: vg.Dimensions(), attrs: attributes(vg.Attributes()), vg: vg}
		if vg.GoType() == "string" {
			raw, err := vg.Values()
			if err != nil {
				return nil, fmt.Errorf("dataset: reading %s from %s: %w", name, src.Name, err)
			}
			_, text, shape, err := flatten(raw)
			if err != nil {
				return nil, fmt.Errorf("dataset: reading %s from %s: %w", name, src.Name, err)
			}
			info.text = &Array{Shape: shape, Text: text}
		}
		infos = append(infos, info)
	}

	// Text variables carry their shape without the character dimension.
	// Other variables report the length of their first dimension; trailing
	// dimensions are learned by reading the first record.
	sizes := make(map[string]int)
	for _, info := range infos {
		if info.text == nil {
			continue
		}
		for i, d := range info.dims {
			switch {
			case i < len(info.text.Shape):
				sizes[d] = info.text.Shape[i]
			case i == len(info.text.Shape):
				if _, ok := sizes[d]; !ok {
					sizes[d] = maxLen(info.text.Text)
				}
			}
		}
	}
	for _, info := range infos {
		if info.text != nil || len(info.dims) != 1 {
			continue
		}
		if _, ok := sizes[info.dims[0]]; !ok {
			sizes[info.dims[0]] = int(info.vg.Len())
		}
	}
	for _, info := range infos {
		if info.text != nil || len(info.dims) < 2 {
			continue
		}
		if _, ok := sizes[info.dims[0]]; !ok {
			sizes[info.dims[0]] = int(info.vg.Len())
		}
	}
	for _, info := range infos {
		if info.text != nil || len(info.dims) < 2 {
			continue
		}
		known := true
		for _, d := range info.dims[1:] {
			if _, ok := sizes[d]; !ok {
				known = false
			}
		}
		if known {
			continue
		}
		if info.vg.Len() == 0 {
			for _, d := range info.dims[1:] {
				if _, ok := sizes[d]; !ok {
					sizes[d] = 0
				}
			}
			continue
		}
		raw, err := info.vg.GetSlice(0, 1)
		if err != nil {
			return nil, fmt.Errorf("dataset: cannot determine the shape of %s in %s: %w", info.name, src.Name, err)
		}
		_, _, shape, err := flatten(raw)
		if err != nil || len(shape) != len(info.dims) {
			return nil, fmt.Errorf("dataset: cannot determine the shape of %s in %s", info.name, src.Name)
		}
		for i, d := range info.dims[1:] {
			if _, ok := sizes[d]; !ok {
				sizes[d] = shape[i+1]
			}
		}
	}

	ds := New()
	ds.Attrs = attributes(g.Attributes())
	coordNames := make(map[string]bool)
	for _, info := range infos {
		for _, ref := range references(Attributes{"coordinates": info.attrs["coordinates"]}) {
			coordNames[ref] = true
		}
	}
	for _, info := range infos {
		dims := info.dims
		shape := make([]int, len(dims))
		for i, d := range dims {
			shape[i] = sizes[d]
		}
		var v *Variable
		switch {
		case info.text != nil:
			if len(dims) > len(info.text.Shape) {
				dims, shape = dims[:len(info.text.Shape)], shape[:len(info.text.Shape)]
			}
			a, err := NewTextArray(shape, info.text.Text)
			if err != nil {
				return nil, fmt.Errorf("dataset: %s in %s: %w", info.name, src.Name, err)
			}
			v, _ = NewVariable(info.name, dims, a, info.attrs)
		case len(dims) == 1 && dims[0] == info.name:
			raw, err := info.vg.Values()
			if err != nil {
				return nil, fmt.Errorf("dataset: reading %s from %s: %w", info.name, src.Name, err)
			}
			nums, _, _, err := flatten(raw)
			if err != nil {
				return nil, fmt.Errorf("dataset: reading %s from %s: %w", info.name, src.Name, err)
			}
			decode(nums, info.attrs)
			a, err := NewFloatArray(shape, nums)
			if err != nil {
				return nil, fmt.Errorf("dataset: %s in %s: %w", info.name, src.Name, err)
			}
			v, _ = NewVariable(info.name, dims, a, withoutEncoding(info.attrs))
		default:
			v = &Variable{
				Name:  info.name,
				Dims:  append([]string{}, dims...),
				Attrs: withoutEncoding(info.attrs),
				src: &fileSource{
					open:     src.Open,
					file:     src.Name,
					name:     info.name,
					dims:     shape,
					encoding: info.attrs,
				},
			}
		}
		coord := v.isIndex() || coordNames[info.name]
		if err := ds.add(v, coord); err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", src.Name, err)
		}
	}
	return ds, nil
}

// OpenMultiple opens several files concurrently and combines them by their
// coordinates.
func OpenMultiple(ctx context.Context, srcs []Source, opts OpenOptions) (*Dataset, error) {
	if len(srcs) == 0 {
		return nil, ErrNoDatasets
	}
	dss := make([]*Dataset, len(srcs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(-1))
	for i, src := range srcs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ds, err := OpenSource(src, opts)
			dss[i] = ds
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(dss) == 1 {
		return dss[0], nil
	}
	return CombineByCoords(dss, DefaultCombineOptions())
}

func attributes(am api.AttributeMap) Attributes {
	a := Attributes{}
	if am == nil {
		return a
	}
	for _, k := range am.Keys() {
		if v, ok := am.Get(k); ok {
			a[k] = normalizeAttr(v)
		}
	}
	return a
}

func withoutEncoding(attrs Attributes) Attributes {
	o := attrs.clone()
	for _, k := range encodingAttrs {
		delete(o, k)
	}
	return o
}

func maxLen(s []string) int {
	n := 1
	for _, v := range s {
		if len(v) > n {
			n = len(v)
		}
	}
	return n
}
