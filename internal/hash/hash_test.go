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

package hash

import "testing"

type query struct {
	Facets map[string][]string
	Limit  int
}

func TestKey(t *testing.T) {
	a := query{Facets: map[string][]string{"source_id": {"EC-Earth3"}, "variable_id": {"tas", "pr"}}, Limit: 10}
	b := query{Facets: map[string][]string{"variable_id": {"tas", "pr"}, "source_id": {"EC-Earth3"}}, Limit: 10}
	if Key(a) != Key(b) {
		t.Errorf("equal values have different keys: %s and %s", Key(a), Key(b))
	}
	if len(Key(a)) != 32 {
		t.Errorf("key %s should have 32 hex digits", Key(a))
	}
	b.Limit = 20
	if Key(a) == Key(b) {
		t.Error("different values have the same key")
	}
	c := query{Facets: map[string][]string{"source_id": {"EC-Earth3"}, "variable_id": {"pr", "tas"}}, Limit: 10}
	if Key(a) == Key(c) {
		t.Error("facet value order should change the key")
	}
}
