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
	"strings"
	"text/tabwriter"
)

// String returns a summary of ds listing its dimensions, coordinates,
// data variables and attributes.
func (ds *Dataset) String() string {
	var b strings.Builder
	b.WriteString("<dataset.Dataset>\nDimensions:  (")
	for i, d := range ds.dims {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %d", d, ds.sizes[d])
	}
	b.WriteString(")\n")
	w := tabwriter.NewWriter(&b, 0, 4, 1, ' ', 0)
	section := func(title string, names []string) {
		if len(names) == 0 {
			return
		}
		fmt.Fprintf(w, "%s:\n", title)
		for _, n := range names {
			v := ds.vars[n]
			mark := " "
			if v.isIndex() {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %s\t(%s)\t%v\t%s\n", mark, n, strings.Join(v.Dims, ", "), v.Kind(), preview(v))
		}
	}
	section("Coordinates", ds.Coords())
	section("Data variables", ds.DataVars())
	w.Flush()
	if len(ds.Attrs) > 0 {
		b.WriteString("Attributes:\n")
		for _, k := range ds.Attrs.Keys() {
			fmt.Fprintf(&b, "    %s: %v\n", k, ds.Attrs[k])
		}
	}
	return b.String()
}

func preview(v *Variable) string {
	a, ok := v.inMemory()
	if !ok {
		return fmt.Sprintf("lazy chunks=%v", v.Chunks())
	}
	const max = 4
	var parts []string
	for i := 0; i < a.Len() && i < max; i++ {
		parts = append(parts, fmt.Sprint(a.label(i)))
	}
	if a.Len() > max {
		parts = append(parts, "...")
	}
	return strings.Join(parts, " ")
}
