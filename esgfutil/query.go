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

package esgfutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bopen/esgf"
	"github.com/bopen/esgf/dataset"
)

// selection returns the facet selection made of the query file, if any,
// and args. Facets in args replace the same facets in the file.
func selection(args []string) (esgf.Selection, error) {
	sel := make(esgf.Selection)
	if path := os.ExpandEnv(Cfg.GetString("query_file")); path != "" {
		fromFile, err := readQueryFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			sel[k] = v
		}
	}
	if len(args) > 0 {
		fromArgs, err := esgf.ParseSelection(args)
		if err != nil {
			return nil, err
		}
		for k, v := range fromArgs {
			sel[k] = v
		}
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	return sel, nil
}

// readQueryFile reads a TOML file of facets, for example
//
//	source_id = "EC-Earth3-CC"
//	variable_id = ["tas", "pr"]
func readQueryFile(path string) (esgf.Selection, error) {
	m := make(map[string]interface{})
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("esgf: reading query file: %v", err)
	}
	return esgf.NewSelection(m)
}

// parseSel parses dimension selections of the form dim=value or
// dim=lo:hi. Repeating a dimension selects several labels.
func parseSel(args []string) (map[string]interface{}, error) {
	labels := make(map[string][]interface{})
	ranges := make(map[string]dataset.Selector)
	var order []string
	for _, arg := range args {
		i := strings.Index(arg, "=")
		if i <= 0 || i == len(arg)-1 {
			return nil, fmt.Errorf("esgf: invalid selection %q; want dim=value", arg)
		}
		dim, val := strings.TrimSpace(arg[:i]), strings.TrimSpace(arg[i+1:])
		if _, ok := labels[dim]; !ok {
			if _, ok := ranges[dim]; !ok {
				order = append(order, dim)
			}
		}
		if lo, hi, ok := strings.Cut(val, ":"); ok {
			if _, dup := labels[dim]; dup {
				return nil, fmt.Errorf("esgf: dimension %s has both a range and labels", dim)
			}
			ranges[dim] = dataset.Range(lo, hi)
			continue
		}
		if _, dup := ranges[dim]; dup {
			return nil, fmt.Errorf("esgf: dimension %s has both a range and labels", dim)
		}
		labels[dim] = append(labels[dim], val)
	}
	sel := make(map[string]interface{}, len(order))
	for _, dim := range order {
		if r, ok := ranges[dim]; ok {
			sel[dim] = r
			continue
		}
		if l := labels[dim]; len(l) == 1 {
			sel[dim] = l[0]
		} else {
			sel[dim] = l
		}
	}
	return sel, nil
}
