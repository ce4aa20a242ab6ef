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

// Package search queries the file search API of an ESGF index node.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bopen/esgf/internal/hash"
	"github.com/cenkalti/backoff/v4"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrStatus is returned when the index node answers with an unexpected
// HTTP status.
var ErrStatus = errors.New("search: unexpected response status")

// DefaultPageSize is the number of results requested per page.
const DefaultPageSize = 100

// pageConcurrency bounds the number of pages fetched at once.
const pageConcurrency = 4

// Query describes a search.
type Query struct {
	// Facets maps facet names to accepted values. Values of one facet are
	// alternatives. The facet "query" holds free text.
	Facets map[string][]string

	// Distrib searches all federated index nodes rather than only the one
	// queried.
	Distrib bool

	// Latest restricts results to the latest version of each dataset.
	Latest bool

	// Type is the record type to search for. It defaults to "File".
	Type string

	// MaxHits limits the number of results. Zero means no limit.
	MaxHits int
}

func (q Query) values(offset, limit int) url.Values {
	v := url.Values{}
	typ := q.Type
	if typ == "" {
		typ = "File"
	}
	v.Set("type", typ)
	v.Set("format", "application/solr+json")
	v.Set("distrib", strconv.FormatBool(q.Distrib))
	if q.Latest {
		v.Set("latest", "true")
	}
	v.Set("limit", strconv.Itoa(limit))
	v.Set("offset", strconv.Itoa(offset))
	facets := make([]string, 0, len(q.Facets))
	for f := range q.Facets {
		facets = append(facets, f)
	}
	sort.Strings(facets)
	for _, f := range facets {
		if f == "query" {
			v.Set("query", strings.Join(q.Facets[f], " OR "))
			continue
		}
		for _, val := range q.Facets[f] {
			v.Add(f, val)
		}
	}
	return v
}

// File is a file record returned by the index node.
type File struct {
	ID           string
	MasterID     string
	InstanceID   string
	DatasetID    string
	Filename     string
	URL          string
	OPeNDAP      string
	Checksum     string
	ChecksumType string
	Size         int64
	DataNode     string
	Version      string
}

// LocalPath returns the directory of f relative to the data root: its
// dataset id with dots replaced by slashes.
func (f File) LocalPath() string {
	return path.Join(strings.Split(f.DatasetID, ".")...)
}

// fileFromDoc converts a Solr document to a File.
func fileFromDoc(doc map[string]interface{}) (File, error) {
	f := File{
		ID:           first(doc["id"]),
		MasterID:     first(doc["master_id"]),
		InstanceID:   first(doc["instance_id"]),
		DatasetID:    strings.SplitN(first(doc["dataset_id"]), "|", 2)[0],
		Filename:     first(doc["title"]),
		Checksum:     first(doc["checksum"]),
		ChecksumType: strings.ToUpper(first(doc["checksum_type"])),
		Size:         cast.ToInt64(doc["size"]),
		DataNode:     first(doc["data_node"]),
		Version:      first(doc["version"]),
	}
	if f.InstanceID == "" {
		f.InstanceID = strings.SplitN(f.ID, "|", 2)[0]
	}
	for _, u := range cast.ToStringSlice(doc["url"]) {
		parts := strings.Split(u, "|")
		if len(parts) < 3 {
			continue
		}
		switch parts[2] {
		case "HTTPServer":
			f.URL = parts[0]
		case "OPENDAP":
			f.OPeNDAP = strings.TrimSuffix(parts[0], ".html")
		}
	}
	if f.DatasetID == "" || f.Filename == "" {
		return f, fmt.Errorf("search: record %q has no dataset id or title", f.ID)
	}
	return f, nil
}

// first returns v as a string, or its first element if it is a list.
func first(v interface{}) string {
	if s, ok := v.([]interface{}); ok {
		if len(s) == 0 {
			return ""
		}
		v = s[0]
	}
	return cast.ToString(v)
}

type response struct {
	Response struct {
		NumFound int                      `json:"numFound"`
		Docs     []map[string]interface{} `json:"docs"`
	} `json:"response"`
}

// Client queries an index node. Its fields must not be changed after the
// first search.
type Client struct {
	// IndexNode is the host name of the index node, or a base URL
	// including the scheme.
	IndexNode string

	HTTP *http.Client

	// Limiter paces requests to the index node.
	Limiter *rate.Limiter

	PageSize int

	// Retries is the number of times a failed request is retried.
	Retries uint64

	// CacheDir, if set, is a directory where responses are kept across
	// runs.
	CacheDir string

	Log logrus.FieldLogger

	backOff func() backoff.BackOff

	initOnce sync.Once
	initErr  error
	cache    *requestcache.Cache
}

// NewClient returns a client for the given index node.
func NewClient(indexNode string) *Client {
	return &Client{
		IndexNode: indexNode,
		HTTP:      http.DefaultClient,
		Limiter:   rate.NewLimiter(rate.Limit(5), 5),
		PageSize:  DefaultPageSize,
		Retries:   3,
		Log:       logrus.StandardLogger(),
	}
}

func (c *Client) init() error {
	c.initOnce.Do(func() {
		if c.HTTP == nil {
			c.HTTP = http.DefaultClient
		}
		if c.Limiter == nil {
			c.Limiter = rate.NewLimiter(rate.Inf, 1)
		}
		if c.PageSize <= 0 {
			c.PageSize = DefaultPageSize
		}
		if c.Log == nil {
			c.Log = logrus.StandardLogger()
		}
		if c.backOff == nil {
			c.backOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
		}
		caches := []requestcache.CacheFunc{requestcache.Memory(256)}
		if c.CacheDir != "" {
			if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
				c.initErr = fmt.Errorf("search: creating cache directory: %w", err)
				return
			}
			caches = append(caches, requestcache.Disk(c.CacheDir, marshalBody, unmarshalBody))
		}
		c.cache = requestcache.NewCache(func(ctx context.Context, req interface{}) (interface{}, error) {
			return c.fetch(ctx, req.(string))
		}, pageConcurrency, caches...)
	})
	return c.initErr
}

func marshalBody(v interface{}) ([]byte, error) {
	if p, ok := v.(*interface{}); ok {
		v = *p
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("search: cannot cache %T", v)
	}
	return b, nil
}

func unmarshalBody(b []byte) (interface{}, error) { return b, nil }

func (c *Client) endpoint() string {
	base := c.IndexNode
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return strings.TrimSuffix(base, "/") + "/esg-search/search"
}

// fetch performs a GET request, retrying network failures and server
// errors.
func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	var body []byte
	op := func() error {
		if err := c.Limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("%w %s from %s", ErrStatus, resp.Status, c.IndexNode)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.backOff(), c.Retries), ctx)
	err := backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		c.Log.WithFields(logrus.Fields{"url": u, "wait": d}).Warnf("search: retrying: %v", err)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) page(ctx context.Context, q Query, offset, limit int) (*response, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	u := c.endpoint() + "?" + q.values(offset, limit).Encode()
	res, err := c.cache.NewRequest(ctx, u, hash.Key(u)).Result()
	if err != nil {
		return nil, err
	}
	var r response
	if err := json.Unmarshal(res.([]byte), &r); err != nil {
		return nil, fmt.Errorf("search: decoding response from %s: %w", c.IndexNode, err)
	}
	return &r, nil
}

// Count returns the number of records matching q.
func (c *Client) Count(ctx context.Context, q Query) (int, error) {
	r, err := c.page(ctx, q, 0, 0)
	if err != nil {
		return 0, err
	}
	return r.Response.NumFound, nil
}

// Files returns the files matching q. Records of the same file instance
// served by several data nodes are reduced to the first one found.
func (c *Client) Files(ctx context.Context, q Query) ([]File, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	limit := c.PageSize
	if q.MaxHits > 0 && q.MaxHits < limit {
		limit = q.MaxHits
	}
	r, err := c.page(ctx, q, 0, limit)
	if err != nil {
		return nil, err
	}
	total := r.Response.NumFound
	if q.MaxHits > 0 && total > q.MaxHits {
		total = q.MaxHits
	}
	c.Log.WithFields(logrus.Fields{"index_node": c.IndexNode, "hits": total}).Debug("search: found files")

	var offsets []int
	for off := len(r.Response.Docs); off < total; off += c.PageSize {
		offsets = append(offsets, off)
	}
	pages := make([]*response, len(offsets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageConcurrency)
	for i, off := range offsets {
		n := c.PageSize
		if off+n > total {
			n = total - off
		}
		g.Go(func() error {
			p, err := c.page(gctx, q, off, n)
			pages[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := r.Response.Docs
	for _, p := range pages {
		docs = append(docs, p.Response.Docs...)
	}
	files := make([]File, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		f, err := fileFromDoc(doc)
		if err != nil {
			return nil, err
		}
		if seen[f.InstanceID] {
			continue
		}
		seen[f.InstanceID] = true
		files = append(files, f)
	}
	if d := len(docs) - len(files); d > 0 {
		c.Log.WithFields(logrus.Fields{"duplicates": d}).Debug("search: dropped duplicate files")
	}
	return files, nil
}
