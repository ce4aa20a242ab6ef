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

package esgf

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDatasetID is returned for a dataset id that does not have the
	// parts listed in DatasetIDKeys.
	ErrDatasetID = errors.New("esgf: malformed dataset id")

	// ErrConcatDim is returned for a concatenation dimension that is not
	// one of DatasetIDKeys.
	ErrConcatDim = errors.New("esgf: invalid concatenation dimension")
)

// DatasetIDKeys are the facets that make up a dataset id, in order.
var DatasetIDKeys = []string{
	"project",
	"activity_id",
	"institution_id",
	"source_id",
	"experiment_id",
	"variant_label",
	"table_id",
	"variable_id",
	"grid_label",
	"version",
}

// ParseDatasetID splits a dataset id such as
// CMIP6.ScenarioMIP.EC-Earth-Consortium.EC-Earth3-CC.ssp245.r1i1p1f1.Amon.tas.gr.v20210113
// into its facets.
func ParseDatasetID(id string) (map[string]string, error) {
	parts := strings.Split(id, ".")
	if len(parts) != len(DatasetIDKeys) {
		return nil, fmt.Errorf("%w: %q has %d parts; expected %d", ErrDatasetID, id, len(parts), len(DatasetIDKeys))
	}
	o := make(map[string]string, len(parts))
	for i, k := range DatasetIDKeys {
		if parts[i] == "" {
			return nil, fmt.Errorf("%w: %q has an empty %s", ErrDatasetID, id, k)
		}
		o[k] = parts[i]
	}
	return o, nil
}

func checkConcatDims(dims []string) error {
	seen := make(map[string]bool)
	for _, d := range dims {
		if seen[d] {
			return fmt.Errorf("%w: %s is given twice", ErrConcatDim, d)
		}
		seen[d] = true
		ok := false
		for _, k := range DatasetIDKeys {
			if d == k {
				ok = true
			}
		}
		if !ok {
			return fmt.Errorf("%w: %q; it must be one of %v", ErrConcatDim, d, DatasetIDKeys)
		}
	}
	return nil
}
