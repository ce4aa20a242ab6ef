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

	"golang.org/x/sync/errgroup"
)

// fileSource reads one variable from a netCDF file each time it is loaded.
type fileSource struct {
	open     Opener
	file     string
	name     string
	dims     []int
	encoding Attributes
}

func (f *fileSource) shape() []int { return f.dims }
func (f *fileSource) kind() Kind   { return Float }

func (f *fileSource) chunks() [][]int {
	c := make([][]int, len(f.dims))
	for i, d := range f.dims {
		c[i] = []int{d}
	}
	return c
}

func (f *fileSource) load(ctx context.Context) (*Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := f.open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.file, err)
	}
	defer g.Close()
	vg, err := g.GetVarGetter(f.name)
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", f.name, f.file, err)
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", f.name, f.file, err)
	}
	nums, _, _, err := flatten(raw)
	if err != nil {
		return nil, err
	}
	if len(nums) != size(f.dims) {
		return nil, fmt.Errorf("%s in %s has %d values; expected shape %v", f.name, f.file, len(nums), f.dims)
	}
	decode(nums, f.encoding)
	return NewFloatArray(f.dims, nums)
}

// concatSource joins the values of several sources along one axis.
type concatSource struct {
	parts []source
	axis  int
}

func (c *concatSource) kind() Kind { return c.parts[0].kind() }

func (c *concatSource) shape() []int {
	s := copyInts(c.parts[0].shape())
	s[c.axis] = 0
	for _, p := range c.parts {
		s[c.axis] += p.shape()[c.axis]
	}
	return s
}

func (c *concatSource) chunks() [][]int {
	first := chunksOf(c.parts[0])
	o := make([][]int, len(first))
	for i := range first {
		if i != c.axis {
			o[i] = copyInts(first[i])
			continue
		}
		for _, p := range c.parts {
			o[i] = append(o[i], chunksOf(p)[i]...)
		}
	}
	return o
}

func (c *concatSource) load(ctx context.Context) (*Array, error) {
	arrays := make([]*Array, len(c.parts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, p := range c.parts {
		g.Go(func() error {
			a, err := p.load(ctx)
			arrays[i] = a
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return concatArrays(arrays, c.axis)
}

// expandSource adds leading axes of length one.
type expandSource struct {
	src source
	n   int
}

func (e *expandSource) kind() Kind { return e.src.kind() }

func (e *expandSource) shape() []int {
	s := make([]int, e.n, e.n+len(e.src.shape()))
	for i := range s {
		s[i] = 1
	}
	return append(s, e.src.shape()...)
}

func (e *expandSource) chunks() [][]int {
	o := make([][]int, e.n)
	for i := range o {
		o[i] = []int{1}
	}
	return append(o, chunksOf(e.src)...)
}

func (e *expandSource) load(ctx context.Context) (*Array, error) {
	a, err := e.src.load(ctx)
	if err != nil {
		return nil, err
	}
	return a.reshape(e.shape())
}

// selectSource takes positions along one axis and optionally removes the
// axis when a single position is taken.
type selectSource struct {
	src  source
	axis int
	idx  []int
	drop bool
}

func (s *selectSource) kind() Kind { return s.src.kind() }

func (s *selectSource) shape() []int {
	in := s.src.shape()
	o := make([]int, 0, len(in))
	for i, d := range in {
		switch {
		case i != s.axis:
			o = append(o, d)
		case !s.drop:
			o = append(o, len(s.idx))
		}
	}
	return o
}

func (s *selectSource) chunks() [][]int {
	in := chunksOf(s.src)
	o := make([][]int, 0, len(in))
	for i, c := range in {
		switch {
		case i != s.axis:
			o = append(o, copyInts(c))
		case !s.drop:
			o = append(o, selectedChunks(c, s.idx))
		}
	}
	return o
}

func (s *selectSource) load(ctx context.Context) (*Array, error) {
	a, err := s.src.load(ctx)
	if err != nil {
		return nil, err
	}
	a = a.take(s.axis, s.idx)
	if s.drop {
		return a.reshape(s.shape())
	}
	return a, nil
}

// selectedChunks returns the chunk sizes after taking idx from an axis
// with the given chunks. Consecutive positions falling in the same input
// chunk form one output chunk.
func selectedChunks(chunks []int, idx []int) []int {
	bounds := make([]int, len(chunks))
	end := 0
	for i, c := range chunks {
		end += c
		bounds[i] = end
	}
	chunkOf := func(j int) int {
		for i, b := range bounds {
			if j < b {
				return i
			}
		}
		return len(bounds) - 1
	}
	var o []int
	last := -1
	for _, j := range idx {
		c := chunkOf(j)
		if c == last {
			o[len(o)-1]++
			continue
		}
		o = append(o, 1)
		last = c
	}
	return o
}

// chunksOf returns the chunks of src, treating in-memory values as a
// single chunk per axis.
func chunksOf(src source) [][]int {
	if c := src.chunks(); c != nil {
		return c
	}
	s := src.shape()
	o := make([][]int, len(s))
	for i, d := range s {
		o[i] = []int{d}
	}
	return o
}

// loadConcurrency bounds the number of parts read at once.
const loadConcurrency = 4
