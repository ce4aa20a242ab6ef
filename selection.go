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
	"sort"
	"strings"
)

// ErrEmptySelection is returned for a selection without any facet or with
// a facet that has no values.
var ErrEmptySelection = errors.New("esgf: empty selection")

// Any is the facet value that matches everything.
const Any = "*"

// QueryFacet is the facet holding free-text queries.
const QueryFacet = "query"

// Selection maps search facets to the values they may take. Values of the
// same facet are alternatives; different facets must all match.
type Selection map[string][]string

// NewSelection converts a facet mapping as passed by callers into a
// Selection. Each value may be a string or a list of strings.
func NewSelection(m map[string]interface{}) (Selection, error) {
	s := make(Selection, len(m))
	for facet, v := range m {
		switch v := v.(type) {
		case string:
			s[facet] = []string{v}
		case []string:
			s[facet] = append([]string{}, v...)
		case []interface{}:
			vals := make([]string, len(v))
			for i, e := range v {
				str, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("esgf: facet %s: value %v is a %T, not a string", facet, e, e)
				}
				vals[i] = str
			}
			s[facet] = vals
		default:
			return nil, fmt.Errorf("esgf: facet %s: unsupported value type %T", facet, v)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseSelection parses arguments of the form facet=value1,value2.
func ParseSelection(args []string) (Selection, error) {
	s := make(Selection)
	for _, arg := range args {
		facet, vals, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("esgf: invalid facet %q: want facet=value", arg)
		}
		facet = strings.TrimSpace(facet)
		for _, v := range strings.Split(vals, ",") {
			s[facet] = append(s[facet], strings.TrimSpace(v))
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that s has at least one facet and that every facet has
// a name and non-empty values.
func (s Selection) Validate() error {
	if len(s) == 0 {
		return ErrEmptySelection
	}
	for _, f := range s.Facets() {
		if f == "" {
			return fmt.Errorf("esgf: selection has an empty facet name")
		}
		vals := s[f]
		if len(vals) == 0 {
			return fmt.Errorf("%w: facet %s has no values", ErrEmptySelection, f)
		}
		for _, v := range vals {
			if v == "" {
				return fmt.Errorf("esgf: facet %s has an empty value", f)
			}
		}
	}
	return nil
}

// Facets returns the facet names of s in order.
func (s Selection) Facets() []string {
	o := make([]string, 0, len(s))
	for f := range s {
		o = append(o, f)
	}
	sort.Strings(o)
	return o
}

// Constraints returns the facets of s that restrict a search: facets whose
// values include Any are left out.
func (s Selection) Constraints() map[string][]string {
	o := make(map[string][]string, len(s))
	for f, vals := range s {
		wild := false
		for _, v := range vals {
			if v == Any {
				wild = true
			}
		}
		if !wild {
			o[f] = append([]string{}, vals...)
		}
	}
	return o
}

func (s Selection) String() string {
	parts := make([]string, 0, len(s))
	for _, f := range s.Facets() {
		parts = append(parts, f+"="+strings.Join(s[f], ","))
	}
	return strings.Join(parts, " ")
}
