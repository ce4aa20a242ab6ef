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

func TestNewSelection(t *testing.T) {
	sel, err := NewSelection(map[string]interface{}{
		"project":     "CMIP6",
		"variable_id": []string{"tas", "pr"},
		"query":       []interface{}{`"a.nc"`},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := Selection{"project": {"CMIP6"}, "variable_id": {"tas", "pr"}, "query": {`"a.nc"`}}
	if diff := cmp.Diff(want, sel); diff != "" {
		t.Errorf("(-want +have):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"project", "query", "variable_id"}, sel.Facets()); diff != "" {
		t.Errorf("facets (-want +have):\n%s", diff)
	}

	for _, bad := range []map[string]interface{}{
		{},
		{"project": 6},
		{"project": []interface{}{"CMIP6", 6}},
		{"project": []string{}},
		{"project": ""},
		{"": "CMIP6"},
	} {
		if _, err := NewSelection(bad); err == nil {
			t.Errorf("%v: expected an error", bad)
		}
	}
	if _, err := NewSelection(nil); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("have %v, want %v", err, ErrEmptySelection)
	}
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection([]string{"project=CMIP6", "variable_id=tas, pr", "member_id=*"})
	if err != nil {
		t.Fatal(err)
	}
	want := Selection{"project": {"CMIP6"}, "variable_id": {"tas", "pr"}, "member_id": {"*"}}
	if diff := cmp.Diff(want, sel); diff != "" {
		t.Errorf("(-want +have):\n%s", diff)
	}
	wantConstraints := map[string][]string{"project": {"CMIP6"}, "variable_id": {"tas", "pr"}}
	if diff := cmp.Diff(wantConstraints, sel.Constraints()); diff != "" {
		t.Errorf("constraints (-want +have):\n%s", diff)
	}
	if have, want := sel.String(), "member_id=* project=CMIP6 variable_id=tas,pr"; have != want {
		t.Errorf("have %s, want %s", have, want)
	}
	for _, bad := range [][]string{{"project"}, {"project="}, {"=CMIP6"}, nil} {
		if _, err := ParseSelection(bad); err == nil {
			t.Errorf("%v: expected an error", bad)
		}
	}
}
