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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bopen/esgf"
	"github.com/bopen/esgf/dataset"
)

type fixture struct {
	datasetID, name string
	data            []byte
}

func fixtureID(exp string) string {
	return "CMIP6.ScenarioMIP.EC-Earth-Consortium.EC-Earth3-CC." + exp + ".r1i1p1f1.Amon.tas.gr.v20210113"
}

// fixtureFile returns a netCDF file holding two time steps of tas on two
// latitudes.
func fixtureFile(t *testing.T, exp string, base float64) []byte {
	t.Helper()
	ds := dataset.New()
	ds.Attrs["experiment_id"] = exp
	add := func(coord bool, name string, dims []string, shape []int, vals []float64, attrs dataset.Attributes) {
		a, err := dataset.NewFloatArray(shape, vals)
		if err != nil {
			t.Fatal(err)
		}
		v, err := dataset.NewVariable(name, dims, a, attrs)
		if err != nil {
			t.Fatal(err)
		}
		if coord {
			err = ds.AddCoord(v)
		} else {
			err = ds.AddDataVar(v)
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	add(true, "time", []string{"time"}, []int{2}, []float64{15, 45}, dataset.Attributes{"units": "days since 2019-01-01"})
	add(true, "lat", []string{"lat"}, []int{2}, []float64{-45, 45}, dataset.Attributes{"units": "degrees_north"})
	add(false, "tas", []string{"time", "lat"}, []int{2, 2}, []float64{base, base + 1, base + 2, base + 3}, dataset.Attributes{"units": "K"})

	f, err := os.Create(filepath.Join(t.TempDir(), "tas.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := dataset.Write(context.Background(), f, ds); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// newIndexNode returns a server acting as both the index node and the
// data node of one tas file for each of two experiments.
func newIndexNode(t *testing.T) (*httptest.Server, []fixture) {
	files := []fixture{
		{fixtureID("ssp245"), "tas_Amon_EC-Earth3-CC_ssp245_r1i1p1f1_gr_201901-201902.nc", fixtureFile(t, "ssp245", 280)},
		{fixtureID("ssp585"), "tas_Amon_EC-Earth3-CC_ssp585_r1i1p1f1_gr_201901-201902.nc", fixtureFile(t, "ssp585", 290)},
	}
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/esg-search/search" {
			var docs []map[string]interface{}
			for _, f := range files {
				sum := sha256.Sum256(f.data)
				docs = append(docs, map[string]interface{}{
					"id":            f.datasetID + "." + f.name + "|test",
					"dataset_id":    f.datasetID + "|test",
					"title":         f.name,
					"size":          len(f.data),
					"checksum":      []string{hex.EncodeToString(sum[:])},
					"checksum_type": []string{"SHA256"},
					"url":           []string{srv.URL + "/files/" + f.name + "|application/netcdf|HTTPServer"},
				})
			}
			if r.URL.Query().Get("limit") == "0" {
				docs = nil
			}
			resp := map[string]interface{}{"response": map[string]interface{}{"numFound": len(files), "docs": docs}}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				t.Error(err)
			}
			return
		}
		for _, f := range files {
			if r.URL.Path == "/files/"+f.name {
				http.ServeContent(w, r, f.name, time.Time{}, bytes.NewReader(f.data))
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, files
}

// setup points the configuration at srv and a new installation directory.
func setup(t *testing.T, srv *httptest.Server) string {
	path := filepath.Join(t.TempDir(), "esgpull")
	Cfg.Set("config", "")
	Cfg.Set("log_level", "warn")
	Cfg.Set("esgpull_path", path)
	Cfg.Set("index_node", srv.URL)
	Cfg.Set("query_file", "")
	Cfg.Set("search_cache", "")
	Cfg.Set("retries", 0)
	Cfg.Set("check_files", true)
	Cfg.Set("verify_ssl", false)
	Cfg.Set("show_progress", false)
	Cfg.Set("download", false)
	Cfg.Set("concat_dims", []string{"experiment_id"})
	Cfg.Set("drop_variables", []string{})
	Cfg.Set("sel", []string{})
	Cfg.Set("dataset_id", "")
	Cfg.Set("output", "")
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	Root.SetOut(&out)
	Root.SetErr(&out)
	Root.SetArgs(args)
	if err := Root.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestVersion(t *testing.T) {
	srv, _ := newIndexNode(t)
	setup(t, srv)
	if out := execute(t, "version"); !strings.Contains(out, "esgf v"+esgf.Version) {
		t.Errorf("version output: %q", out)
	}
}

func TestSearch(t *testing.T) {
	srv, files := newIndexNode(t)
	setup(t, srv)
	out := execute(t, "search", "variable_id=tas", "experiment_id=ssp245,ssp585")
	for _, f := range files {
		if !strings.Contains(out, f.name) || !strings.Contains(out, f.datasetID) {
			t.Errorf("output does not list %s:\n%s", f.name, out)
		}
	}
	if !strings.Contains(out, "2 files in 2 datasets") {
		t.Errorf("output has no summary:\n%s", out)
	}
}

func TestDownloadCatalog(t *testing.T) {
	srv, files := newIndexNode(t)
	path := setup(t, srv)
	if out := execute(t, "download", "variable_id=tas"); !strings.Contains(out, "downloaded 2 files") {
		t.Errorf("first download: %q", out)
	}
	if out := execute(t, "download", "variable_id=tas"); !strings.Contains(out, "downloaded 0 files") {
		t.Errorf("second download: %q", out)
	}
	for _, f := range files {
		p := filepath.Join(path, "data", filepath.FromSlash(strings.ReplaceAll(f.datasetID, ".", "/")), f.name)
		if _, err := os.Stat(p); err != nil {
			t.Error(err)
		}
	}

	out := execute(t, "catalog")
	for _, f := range files {
		if !strings.Contains(out, f.datasetID) {
			t.Errorf("catalog does not list %s:\n%s", f.datasetID, out)
		}
	}
	Cfg.Set("dataset_id", files[0].datasetID)
	out = execute(t, "catalog")
	Cfg.Set("dataset_id", "")
	if !strings.Contains(out, files[0].name) || strings.Contains(out, files[1].name) {
		t.Errorf("dataset listing:\n%s", out)
	}
}

func TestOpen(t *testing.T) {
	srv, _ := newIndexNode(t)
	setup(t, srv)
	out := execute(t, "open", "variable_id=tas")
	for _, want := range []string{"experiment_id: 2", "time: 2", "lat: 2", "tas", "dataset_ids"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestSave(t *testing.T) {
	srv, _ := newIndexNode(t)
	setup(t, srv)
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(dir, "out", "tas.nc")
		Cfg.Set("output", path)
		Cfg.Set("sel", []string{"lat=0:90"})
		execute(t, "save", "variable_id=tas")
		Cfg.Set("sel", []string{})

		ds, err := dataset.OpenFile(path, dataset.OpenOptions{})
		if err != nil {
			t.Fatal(err)
		}
		for dim, n := range map[string]int{"experiment_id": 2, "time": 2, "lat": 1} {
			if ds.Sizes()[dim] != n {
				t.Errorf("%s: have %d, want %d", dim, ds.Sizes()[dim], n)
			}
		}
		tas, _ := ds.Variable("tas")
		vals, err := tas.Values(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if want := []float64{281, 283, 291, 293}; !reflect.DeepEqual(vals, want) {
			t.Errorf("tas: have %v, want %v", vals, want)
		}
	})

	t.Run("blob", func(t *testing.T) {
		Cfg.Set("output", "file://"+filepath.ToSlash(filepath.Join(dir, "bucket", "tas.nc")))
		execute(t, "save", "variable_id=tas")
		if _, err := dataset.OpenFile(filepath.Join(dir, "bucket", "tas.nc"), dataset.OpenOptions{}); err != nil {
			t.Fatal(err)
		}
	})

	Cfg.Set("output", "")
	Root.SetArgs([]string{"save", "variable_id=tas"})
	Root.SetOut(new(bytes.Buffer))
	Root.SetErr(new(bytes.Buffer))
	if err := Root.Execute(); err == nil {
		t.Error("expected an error without an output file")
	}
}

func TestQueryFile(t *testing.T) {
	srv, _ := newIndexNode(t)
	setup(t, srv)
	path := filepath.Join(t.TempDir(), "query.toml")
	query := "source_id = \"EC-Earth3-CC\"\nvariable_id = [\"tas\", \"pr\"]\n"
	if err := os.WriteFile(path, []byte(query), 0o644); err != nil {
		t.Fatal(err)
	}
	Cfg.Set("query_file", path)
	defer Cfg.Set("query_file", "")

	sel, err := selection([]string{"variable_id=tas", "experiment_id=ssp245,ssp585"})
	if err != nil {
		t.Fatal(err)
	}
	want := esgf.Selection{
		"source_id":     {"EC-Earth3-CC"},
		"variable_id":   {"tas"},
		"experiment_id": {"ssp245", "ssp585"},
	}
	if !reflect.DeepEqual(sel, want) {
		t.Errorf("have %v, want %v", sel, want)
	}
}

func TestParseSel(t *testing.T) {
	sel, err := parseSel([]string{"lat=45", "member_id=r1i1p1f1", "member_id=r2i1p1f1", "time=0:100"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"lat":       "45",
		"member_id": []interface{}{"r1i1p1f1", "r2i1p1f1"},
		"time":      dataset.Range("0", "100"),
	}
	if !reflect.DeepEqual(sel, want) {
		t.Errorf("have %#v, want %#v", sel, want)
	}
	for _, bad := range [][]string{{"lat"}, {"=45"}, {"lat="}, {"time=0:1", "time=5"}} {
		if _, err := parseSel(bad); err == nil {
			t.Errorf("%v: expected an error", bad)
		}
	}
}

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/tas.nc": true,
		"s3://bucket/tas.nc": true,
		"file:///tmp/tas.nc": true,
		"/tmp/tas.nc":        false,
		"tas.nc":             false,
	} {
		if have := IsBlob(path); have != want {
			t.Errorf("%s: have %v, want %v", path, have, want)
		}
	}
}
