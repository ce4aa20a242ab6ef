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

// Package dataset is an n-dimensional labelled dataset model for gridded
// climate data, with lazy loading of variables from netCDF files.
//
// A Dataset holds dimensions, coordinate variables, data variables and global
// attributes. Index coordinates (one-dimensional variables named like their
// dimension) are always held in memory; the remaining variables are read from
// their source files only when Load or Compute is called.
//
// Datasets are opened by backends that are registered by name, in the same
// way that database/sql drivers are:
//
//	ds, err := dataset.Open(ctx, "tas.nc", "netcdf", dataset.Options{})
//
// Packages providing other backends register themselves in an init function,
// so importing them for side effects is enough to make their engine names
// available to Open.
package dataset
