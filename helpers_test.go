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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bopen/esgf/dataset"
	"github.com/sirupsen/logrus"
)

const testVersion = "v20210113"

func testDatasetID(exp, table, variable string) string {
	return strings.Join([]string{"CMIP6", "ScenarioMIP", "EC-Earth-Consortium", "EC-Earth3-CC",
		exp, "r1i1p1f1", table, variable, "gr", testVersion}, ".")
}

func mustVar(t *testing.T, name string, dims []string, shape []int, vals []float64, attrs dataset.Attributes) *dataset.Variable {
	t.Helper()
	a, err := dataset.NewFloatArray(shape, vals)
	if err != nil {
		t.Fatal(err)
	}
	v, err := dataset.NewVariable(name, dims, a, attrs)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// grid adds a 2x3 lat/lon grid with latitude bounds to ds.
func grid(t *testing.T, ds *dataset.Dataset) {
	t.Helper()
	for _, v := range []*dataset.Variable{
		mustVar(t, "lat", []string{"lat"}, []int{2}, []float64{-45, 45},
			dataset.Attributes{"units": "degrees_north", "bounds": "lat_bnds"}),
		mustVar(t, "lon", []string{"lon"}, []int{3}, []float64{0, 120, 240},
			dataset.Attributes{"units": "degrees_east"}),
	} {
		if err := ds.AddCoord(v); err != nil {
			t.Fatal(err)
		}
	}
	bnds := mustVar(t, "lat_bnds", []string{"lat", "bnds"}, []int{2, 2}, []float64{-90, 0, 0, 90}, nil)
	if err := ds.AddDataVar(bnds); err != nil {
		t.Fatal(err)
	}
}

// monthly returns a file of one year of a monthly variable, reduced to
// two time steps. Values are base plus their position in the file.
func monthly(t *testing.T, variable, exp string, year int, base float64) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	ds.Attrs["source_id"] = "EC-Earth3-CC"
	ds.Attrs["experiment_id"] = exp
	ds.Attrs["variable_id"] = variable
	ds.Attrs["tracking_id"] = fmt.Sprintf("hdl:%s-%s-%d", variable, exp, year)
	grid(t, ds)
	t0 := float64((year - 2019) * 365)
	times := []float64{t0 + 15, t0 + 45}
	if err := ds.AddCoord(mustVar(t, "time", []string{"time"}, []int{2}, times,
		dataset.Attributes{"units": "days since 2019-01-01", "calendar": "standard", "bounds": "time_bnds"})); err != nil {
		t.Fatal(err)
	}
	tb := mustVar(t, "time_bnds", []string{"time", "bnds"}, []int{2, 2},
		[]float64{times[0] - 15, times[0] + 15, times[1] - 15, times[1] + 15}, nil)
	if err := ds.AddDataVar(tb); err != nil {
		t.Fatal(err)
	}
	vals := make([]float64, 2*2*3)
	for i := range vals {
		vals[i] = base + float64(i)
	}
	v := mustVar(t, variable, []string{"time", "lat", "lon"}, []int{2, 2, 3}, vals,
		dataset.Attributes{"units": "K", "cell_measures": "area: areacella"})
	if err := ds.AddDataVar(v); err != nil {
		t.Fatal(err)
	}
	return ds
}

func areacella(t *testing.T, exp string) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	ds.Attrs["source_id"] = "EC-Earth3-CC"
	ds.Attrs["experiment_id"] = exp
	grid(t, ds)
	v := mustVar(t, "areacella", []string{"lat", "lon"}, []int{2, 3}, []float64{1, 1, 1, 2, 2, 2},
		dataset.Attributes{"units": "m2"})
	if err := ds.AddDataVar(v); err != nil {
		t.Fatal(err)
	}
	return ds
}

func encode(t *testing.T, ds *dataset.Dataset) []byte {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "f.nc"))
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

type testFile struct {
	datasetID string
	name      string
	data      []byte
}

// testFiles returns tas and pr files of two years and the cell areas for
// the ssp245 and ssp585 experiments.
func testFiles(t *testing.T) []testFile {
	var files []testFile
	for e, exp := range []string{"ssp245", "ssp585"} {
		for v, variable := range []string{"tas", "pr"} {
			for y, year := range []int{2019, 2020} {
				base := float64(1000*e + 100*v + 10*y)
				files = append(files, testFile{
					datasetID: testDatasetID(exp, "Amon", variable),
					name:      fmt.Sprintf("%s_Amon_EC-Earth3-CC_%s_r1i1p1f1_gr_%d01-%d12.nc", variable, exp, year, year),
					data:      encode(t, monthly(t, variable, exp, year, base)),
				})
			}
		}
		files = append(files, testFile{
			datasetID: testDatasetID(exp, "fx", "areacella"),
			name:      fmt.Sprintf("areacella_fx_EC-Earth3-CC_%s_r1i1p1f1_gr.nc", exp),
			data:      encode(t, areacella(t, exp)),
		})
	}
	return files
}

// esgfServer is an index node and data node serving files.
type esgfServer struct {
	*httptest.Server
	files []testFile

	mu      sync.Mutex
	queries []string
	fetched map[string]int
}

func newESGFServer(t *testing.T, files []testFile) *esgfServer {
	s := &esgfServer{files: files, fetched: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/esg-search/search":
			s.mu.Lock()
			s.queries = append(s.queries, r.URL.Query().Get("query"))
			s.mu.Unlock()
			s.search(t, w, r)
		case strings.HasPrefix(r.URL.Path, "/thredds/fileServer/"):
			name := strings.TrimPrefix(r.URL.Path, "/thredds/fileServer/")
			for _, f := range s.files {
				if f.name == name {
					s.mu.Lock()
					s.fetched[name]++
					s.mu.Unlock()
					http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(f.data))
					return
				}
			}
			http.NotFound(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *esgfServer) search(t *testing.T, w http.ResponseWriter, r *http.Request) {
	node := strings.TrimPrefix(s.URL, "http://")
	docs := make([]map[string]interface{}, 0, len(s.files))
	for _, f := range s.files {
		sum := sha256.Sum256(f.data)
		docs = append(docs, map[string]interface{}{
			"id":            f.datasetID + "." + f.name + "|" + node,
			"instance_id":   f.datasetID + "." + f.name,
			"master_id":     f.datasetID + "." + f.name,
			"dataset_id":    f.datasetID + "|" + node,
			"title":         f.name,
			"data_node":     node,
			"version":       strings.TrimPrefix(testVersion, "v"),
			"size":          len(f.data),
			"checksum":      []string{hex.EncodeToString(sum[:])},
			"checksum_type": []string{"SHA256"},
			"url":           []string{s.URL + "/thredds/fileServer/" + f.name + "|application/netcdf|HTTPServer"},
		})
	}
	resp := map[string]interface{}{
		"response": map[string]interface{}{"numFound": len(docs), "docs": docs},
	}
	if r.URL.Query().Get("limit") == "0" {
		resp["response"] = map[string]interface{}{"numFound": len(docs), "docs": []interface{}{}}
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Error(err)
	}
}

func (s *esgfServer) searchQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.queries...)
}

func (s *esgfServer) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.fetched {
		n += c
	}
	return n
}

func testSelection(files []testFile) Selection {
	var q []string
	for _, f := range files {
		q = append(q, `"`+f.name+`"`)
	}
	return Selection{QueryFacet: q}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}
