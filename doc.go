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

/*
Package esgf opens climate datasets of the Earth System Grid Federation
from a search over their facets instead of from file paths.

Importing the package registers the "esgf" backend of the dataset package:

	sel := map[string]interface{}{
		"project":       "CMIP6",
		"source_id":     "EC-Earth3-CC",
		"experiment_id": []string{"ssp245", "ssp585"},
		"variable_id":   []string{"tas", "pr"},
		"table_id":      "Amon",
	}
	ds, err := dataset.Open(ctx, sel, "esgf", dataset.Options{
		"concat_dims":  "experiment_id",
		"esgpull_path": "/data/esgpull",
		"index_node":   "esgf.ceda.ac.uk",
	})

The files matching the selection are found on the index node, optionally
downloaded into the esgpull_path installation, and combined into one lazily
loaded dataset. Each facet named in concat_dims becomes a dimension along
which datasets that differ in that facet are stacked.
*/
package esgf
