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
	"context"
	"fmt"

	"github.com/bopen/esgf/dataset"
)

func init() {
	dataset.Register("esgf", backend{})
}

// backend opens the datasets matching a facet selection:
//
//	ds, err := dataset.Open(ctx, map[string]interface{}{
//		"source_id":   "EC-Earth3-CC",
//		"variable_id": []string{"tas", "pr"},
//	}, "esgf", dataset.Options{"concat_dims": "experiment_id"})
type backend struct{}

type backendOptions struct {
	DropVariables []string               `mapstructure:"drop_variables"`
	EsgpullPath   string                 `mapstructure:"esgpull_path"`
	IndexNode     string                 `mapstructure:"index_node"`
	Retries       uint64                 `mapstructure:"retries"`
	CheckFiles    bool                   `mapstructure:"check_files"`
	VerifySSL     bool                   `mapstructure:"verify_ssl"`
	ConcatDims    []string               `mapstructure:"concat_dims"`
	Download      bool                   `mapstructure:"download"`
	ShowProgress  bool                   `mapstructure:"show_progress"`
	Sel           map[string]interface{} `mapstructure:"sel"`
	SearchCache   string                 `mapstructure:"search_cache"`
}

func (backend) OpenDataset(ctx context.Context, src interface{}, opts dataset.Options) (*dataset.Dataset, error) {
	sel, err := selectionOf(src)
	if err != nil {
		return nil, err
	}
	o := backendOptions{CheckFiles: true, ShowProgress: true}
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}
	c := NewClient(sel, o.EsgpullPath, o.IndexNode)
	c.Retries = o.Retries
	c.CheckFiles = o.CheckFiles
	c.VerifySSL = o.VerifySSL
	c.SearchCacheDir = o.SearchCache
	return c.OpenDataset(ctx, OpenOptions{
		ConcatDims:    o.ConcatDims,
		DropVariables: o.DropVariables,
		Download:      o.Download,
		ShowProgress:  o.ShowProgress,
		Sel:           selectors(o.Sel),
	})
}

func (backend) GuessCanOpen(src interface{}) bool {
	switch src.(type) {
	case Selection, map[string]interface{}, map[string]string, map[string][]string:
		return true
	}
	return false
}

func (backend) Description() string { return "Open ESGF data" }

func (backend) Parameters() []string {
	return []string{
		"esgpull_path", "index_node", "concat_dims", "drop_variables", "retries",
		"check_files", "verify_ssl", "download", "show_progress", "sel", "search_cache",
	}
}

func selectionOf(src interface{}) (Selection, error) {
	switch s := src.(type) {
	case Selection:
		return s, s.Validate()
	case map[string][]string:
		sel := Selection(s)
		return sel, sel.Validate()
	case map[string]string:
		m := make(map[string]interface{}, len(s))
		for k, v := range s {
			m[k] = v
		}
		return NewSelection(m)
	case map[string]interface{}:
		return NewSelection(s)
	}
	return nil, fmt.Errorf("esgf: cannot open a %T; want a facet selection", src)
}

// selectors converts sel option values to selectors. Lists select several
// labels and other values select one.
func selectors(sel map[string]interface{}) map[string]dataset.Selector {
	if len(sel) == 0 {
		return nil
	}
	o := make(map[string]dataset.Selector, len(sel))
	for dim, v := range sel {
		switch v := v.(type) {
		case dataset.Selector:
			o[dim] = v
		case []interface{}:
			o[dim] = dataset.Labels(v...)
		case []string:
			vs := make([]interface{}, len(v))
			for i, s := range v {
				vs[i] = s
			}
			o[dim] = dataset.Labels(vs...)
		case []float64:
			vs := make([]interface{}, len(v))
			for i, f := range v {
				vs[i] = f
			}
			o[dim] = dataset.Labels(vs...)
		default:
			o[dim] = dataset.Label(v)
		}
	}
	return o
}
