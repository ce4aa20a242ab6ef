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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDatasetID(t *testing.T) {
	facets, err := ParseDatasetID("CMIP6.ScenarioMIP.EC-Earth-Consortium.EC-Earth3-CC.ssp245.r1i1p1f1.Amon.tas.gr.v20210113")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"project":        "CMIP6",
		"activity_id":    "ScenarioMIP",
		"institution_id": "EC-Earth-Consortium",
		"source_id":      "EC-Earth3-CC",
		"experiment_id":  "ssp245",
		"variant_label":  "r1i1p1f1",
		"table_id":       "Amon",
		"variable_id":    "tas",
		"grid_label":     "gr",
		"version":        "v20210113",
	}
	if diff := cmp.Diff(want, facets); diff != "" {
		t.Errorf("(-want +have):\n%s", diff)
	}

	for _, bad := range []string{
		"CMIP6.ScenarioMIP.EC-Earth-Consortium",
		"CMIP6.ScenarioMIP.EC-Earth-Consortium.EC-Earth3-CC.ssp245.r1i1p1f1.Amon.tas.gr.v20210113.extra",
		"CMIP6..EC-Earth-Consortium.EC-Earth3-CC.ssp245.r1i1p1f1.Amon.tas.gr.v20210113",
	} {
		if _, err := ParseDatasetID(bad); !errors.Is(err, ErrDatasetID) {
			t.Errorf("%s: have %v, want %v", bad, err, ErrDatasetID)
		}
	}
}

func TestCheckConcatDims(t *testing.T) {
	if err := checkConcatDims([]string{"experiment_id", "variant_label"}); err != nil {
		t.Error(err)
	}
	for _, bad := range [][]string{{"member_id"}, {"experiment_id", "experiment_id"}} {
		if err := checkConcatDims(bad); !errors.Is(err, ErrConcatDim) {
			t.Errorf("%v: have %v, want %v", bad, err, ErrConcatDim)
		}
	}
}
