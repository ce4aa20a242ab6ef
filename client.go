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
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bopen/esgf/catalog"
	"github.com/bopen/esgf/dataset"
	"github.com/bopen/esgf/download"
	"github.com/bopen/esgf/search"
	"github.com/sirupsen/logrus"
)

// ErrNoFiles is returned when a selection matches no files.
var ErrNoFiles = errors.New("esgf: no files match the selection")

// DefaultIndexNode returns the index node named by the ESGPULL_INDEX_NODE
// environment variable, or esgf.ceda.ac.uk.
func DefaultIndexNode() string {
	if n := os.Getenv("ESGPULL_INDEX_NODE"); n != "" {
		return n
	}
	return "esgf.ceda.ac.uk"
}

// DefaultPath returns the installation directory named by the
// ESGPULL_HOME environment variable, or .esgpull in the home directory.
func DefaultPath() string {
	if p := os.Getenv("ESGPULL_HOME"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".esgpull"
	}
	return filepath.Join(home, ".esgpull")
}

// Client finds, downloads and opens the files matching a selection. Its
// exported fields must not be changed after the first call to one of its
// methods.
type Client struct {
	Selection Selection

	// Path is the local installation directory for downloaded files.
	Path string

	IndexNode string

	// Retries is the number of times failed requests and downloads are
	// retried.
	Retries uint64

	// CheckFiles verifies the checksums of downloaded files.
	CheckFiles bool

	// VerifySSL verifies the TLS certificates of data nodes.
	VerifySSL bool

	// SearchCacheDir, if set, keeps search responses across runs.
	SearchCacheDir string

	// HTTPClient is used for all requests if set.
	HTTPClient *http.Client

	Log logrus.FieldLogger

	searchOnce sync.Once
	search     *search.Client

	filesOnce sync.Once
	files     []search.File
	filesErr  error
}

// NewClient returns a client for sel that checks downloaded files, using
// the default installation path and index node where path and indexNode
// are empty.
func NewClient(sel Selection, path, indexNode string) *Client {
	if path == "" {
		path = DefaultPath()
	}
	if indexNode == "" {
		indexNode = DefaultIndexNode()
	}
	return &Client{
		Selection:  sel,
		Path:       path,
		IndexNode:  indexNode,
		CheckFiles: true,
		Log:        logrus.StandardLogger(),
	}
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// httpClient returns the client used for data nodes.
func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	d := download.New()
	d.VerifySSL = c.VerifySSL
	return d.Client()
}

// searchKey identifies the settings of a shared search client.
type searchKey struct {
	indexNode, cacheDir string
	retries             uint64
	http                *http.Client
}

// Search clients keep their request cache workers for the life of the
// process, so clients with the same settings share one.
var (
	searchClientsMu sync.Mutex
	searchClients   = make(map[searchKey]*search.Client)
)

// searchClient returns the search client shared by all clients with the
// same index node, cache directory, retries and HTTP client. It logs to
// the logger of the first client that asked for it.
func (c *Client) searchClient() *search.Client {
	c.searchOnce.Do(func() {
		key := searchKey{c.IndexNode, c.SearchCacheDir, c.Retries, c.HTTPClient}
		searchClientsMu.Lock()
		defer searchClientsMu.Unlock()
		if s, ok := searchClients[key]; ok {
			c.search = s
			return
		}
		s := search.NewClient(c.IndexNode)
		if c.HTTPClient != nil {
			s.HTTP = c.HTTPClient
		}
		s.Retries = c.Retries
		s.CacheDir = c.SearchCacheDir
		s.Log = c.logger()
		searchClients[key] = s
		c.search = s
	})
	return c.search
}

// Query returns the search query for the selection: the latest versions of
// the matching files on all federated nodes.
func (c *Client) Query() search.Query {
	return search.Query{
		Facets:  c.Selection.Constraints(),
		Distrib: true,
		Latest:  true,
	}
}

// Files returns the files matching the selection, one record per file.
// The search is performed once per client.
func (c *Client) Files(ctx context.Context) ([]search.File, error) {
	c.filesOnce.Do(func() {
		if err := c.Selection.Validate(); err != nil {
			c.filesErr = err
			return
		}
		files, err := c.searchClient().Files(ctx, c.Query())
		if err != nil {
			c.filesErr = err
			return
		}
		if len(files) == 0 {
			c.filesErr = fmt.Errorf("%w: %s on %s", ErrNoFiles, c.Selection, c.IndexNode)
			return
		}
		c.logger().WithFields(logrus.Fields{"files": len(files), "selection": c.Selection.String()}).
			Info("esgf: found files")
		c.files = files
	})
	return c.files, c.filesErr
}

// localPath returns where f is stored in the installation.
func (c *Client) localPath(f search.File) string {
	return filepath.Join(c.Path, "data", filepath.FromSlash(f.LocalPath()), f.Filename)
}

// LocalPaths returns the local paths of the matching files, grouped by
// dataset id and sorted. The files need not exist.
func (c *Client) LocalPaths(ctx context.Context) (map[string][]string, error) {
	files, err := c.Files(ctx)
	if err != nil {
		return nil, err
	}
	o := make(map[string][]string)
	for _, f := range files {
		o[f.DatasetID] = append(o[f.DatasetID], c.localPath(f))
	}
	for _, paths := range o {
		sort.Strings(paths)
	}
	return o, nil
}

// DatasetIDs returns the sorted ids of the datasets holding the matching
// files.
func (c *Client) DatasetIDs(ctx context.Context) ([]string, error) {
	files, err := c.Files(ctx)
	if err != nil {
		return nil, err
	}
	return datasetIDs(files), nil
}

func datasetIDs(files []search.File) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, f := range files {
		if !seen[f.DatasetID] {
			seen[f.DatasetID] = true
			ids = append(ids, f.DatasetID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Download installs the local directory layout if needed, downloads the
// matching files that are not already present and records them in the
// catalog. It returns the files it downloaded. Failures of single files do
// not stop the others and are returned together.
func (c *Client) Download(ctx context.Context, showProgress bool) ([]search.File, error) {
	files, err := c.Files(ctx)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Install(c.Path)
	if err != nil {
		return nil, err
	}
	defer cat.Close()

	tasks := make([]download.Task, len(files))
	byPath := make(map[string]search.File, len(files))
	for i, f := range files {
		p := c.localPath(f)
		tasks[i] = download.Task{
			URL:          f.URL,
			Path:         p,
			Size:         f.Size,
			Checksum:     f.Checksum,
			ChecksumType: f.ChecksumType,
		}
		byPath[p] = f
		if f.URL == "" {
			return nil, fmt.Errorf("esgf: file %s has no HTTP download URL", f.ID)
		}
	}

	d := download.New()
	d.HTTP = c.HTTPClient
	d.Retries = c.Retries
	d.CheckFiles = c.CheckFiles
	d.VerifySSL = c.VerifySSL
	d.ShowProgress = showProgress
	d.Log = c.logger()
	done, dlErr := d.Download(ctx, tasks)

	// Without errors every file is present, including those skipped.
	record := done
	if dlErr == nil {
		record = tasks
	}
	downloaded := make([]search.File, len(done))
	for i, t := range done {
		downloaded[i] = byPath[t.Path]
	}
	for _, t := range record {
		f := byPath[t.Path]
		err := cat.Put(ctx, catalog.Record{
			ID:           f.InstanceID,
			DatasetID:    f.DatasetID,
			Filename:     f.Filename,
			Path:         t.Path,
			URL:          f.URL,
			Checksum:     f.Checksum,
			ChecksumType: f.ChecksumType,
			Size:         f.Size,
			Status:       catalog.StatusDone,
		})
		if err != nil {
			return downloaded, errors.Join(dlErr, err)
		}
	}
	return downloaded, dlErr
}

// OpenOptions control Client.OpenDataset.
type OpenOptions struct {
	// ConcatDims are dataset id facets that become new dimensions along
	// which the datasets are combined.
	ConcatDims []string

	// DropVariables lists variables to leave out.
	DropVariables []string

	// Download fetches the files before opening them. Otherwise files are
	// read remotely as their variables are loaded.
	Download bool

	ShowProgress bool

	// Sel selects along dimensions of the datasets. Selections along
	// ConcatDims apply to the combined dataset; the others apply to each
	// dataset before combining, and dimensions a dataset does not have are
	// ignored for it.
	Sel map[string]dataset.Selector
}

// OpenDataset opens the matching files as a single dataset. Files of the
// same dataset are combined along their varying coordinates, usually time;
// the datasets are then stacked along opts.ConcatDims and merged. Variables
// are read lazily.
func (c *Client) OpenDataset(ctx context.Context, opts OpenOptions) (*dataset.Dataset, error) {
	if err := checkConcatDims(opts.ConcatDims); err != nil {
		return nil, err
	}
	files, err := c.Files(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Download {
		if _, err := c.Download(ctx, opts.ShowProgress); err != nil {
			return nil, err
		}
	}

	sources := make(map[string][]dataset.Source)
	// Remote variables are read after OpenDataset returns.
	readCtx := context.WithoutCancel(ctx)
	client := c.httpClient()
	for _, f := range files {
		var src dataset.Source
		if opts.Download {
			src = dataset.FileSource(c.localPath(f))
		} else {
			if f.URL == "" {
				return nil, fmt.Errorf("esgf: file %s has no HTTP URL", f.ID)
			}
			src = dataset.Source{Name: f.URL, Open: dataset.HTTPOpener(readCtx, client, f.URL)}
		}
		sources[f.DatasetID] = append(sources[f.DatasetID], src)
	}
	ids := datasetIDs(files)
	for _, id := range ids {
		s := sources[id]
		sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	}

	perDataset, combined := splitSel(opts.Sel, opts.ConcatDims)
	dss := make([]*dataset.Dataset, len(ids))
	openOpts := dataset.OpenOptions{DropVariables: opts.DropVariables}
	for i, id := range ids {
		ds, err := dataset.OpenMultiple(ctx, sources[id], openOpts)
		if err != nil {
			return nil, fmt.Errorf("esgf: opening %s: %w", id, err)
		}
		dss[i] = ds
	}

	// Cell measures and bounds may be referenced from other datasets.
	refs := make(map[string]bool)
	for _, ds := range dss {
		for _, r := range ds.References() {
			refs[r] = true
		}
	}
	var names []string
	for r := range refs {
		names = append(names, r)
	}
	sort.Strings(names)

	for i, id := range ids {
		ds := dss[i]
		if aux := ds.AuxiliaryNames(names); len(aux) > 0 {
			if ds, err = ds.SetCoords(aux...); err != nil {
				return nil, err
			}
		}
		if len(opts.ConcatDims) > 0 {
			facets, err := ParseDatasetID(id)
			if err != nil {
				return nil, err
			}
			if ds, err = ds.ExpandDims(facets, opts.ConcatDims); err != nil {
				return nil, fmt.Errorf("esgf: %s: %w", id, err)
			}
		}
		if sel := selFor(ds, perDataset); len(sel) > 0 {
			if ds, err = ds.Sel(sel); err != nil {
				return nil, fmt.Errorf("esgf: %s: %w", id, err)
			}
		}
		dss[i] = ds
	}

	ds, err := dataset.CombineByCoords(dss, dataset.DefaultCombineOptions())
	if err != nil {
		return nil, fmt.Errorf("esgf: combining datasets: %w", err)
	}
	if len(combined) > 0 {
		if ds, err = ds.Sel(combined); err != nil {
			return nil, fmt.Errorf("esgf: %w", err)
		}
	}
	ds.Attrs["dataset_ids"] = ids
	c.logger().WithFields(logrus.Fields{"datasets": len(ids), "sizes": ds.Sizes()}).Debug("esgf: opened dataset")
	return ds, nil
}

// splitSel splits sel into the selectors along dimensions other than
// concatDims and those along concatDims.
func splitSel(sel map[string]dataset.Selector, concatDims []string) (other, concat map[string]dataset.Selector) {
	other = make(map[string]dataset.Selector)
	concat = make(map[string]dataset.Selector)
	isConcat := make(map[string]bool, len(concatDims))
	for _, d := range concatDims {
		isConcat[d] = true
	}
	for dim, s := range sel {
		if isConcat[dim] {
			concat[dim] = s
		} else {
			other[dim] = s
		}
	}
	return other, concat
}

// selFor returns the selectors of sel whose dimension ds has.
func selFor(ds *dataset.Dataset, sel map[string]dataset.Selector) map[string]dataset.Selector {
	sizes := ds.Sizes()
	o := make(map[string]dataset.Selector)
	for dim, s := range sel {
		if _, ok := sizes[dim]; ok {
			o[dim] = s
		}
	}
	return o
}
