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

package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// httpBlockSize is the size of the byte ranges fetched by HTTPFile.
const httpBlockSize = 1 << 20

// HTTPFile reads a remote file through HTTP range requests, so netCDF
// variables can be read without downloading the whole file. Recently read
// blocks are kept in memory.
type HTTPFile struct {
	ctx    context.Context
	client *http.Client
	url    string
	size   int64
	off    int64
	blocks map[int64][]byte
	order  []int64
}

// maxBlocks bounds the number of blocks an HTTPFile keeps.
const maxBlocks = 16

// OpenHTTPFile returns a reader for the file at url. The server must
// support range requests.
func OpenHTTPFile(ctx context.Context, client *http.Client, url string) (*HTTPFile, error) {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFile{ctx: ctx, client: client, url: url, blocks: make(map[int64][]byte)}
	b, total, err := f.fetch(0)
	if err != nil {
		return nil, err
	}
	switch {
	case total >= 0:
	case len(b) < httpBlockSize:
		total = int64(len(b))
	default:
		if total, err = f.head(); err != nil {
			return nil, err
		}
	}
	f.size = total
	f.keep(0, b)
	return f, nil
}

// HTTPOpener returns an Opener reading the file at url over HTTP.
func HTTPOpener(ctx context.Context, client *http.Client, url string) Opener {
	return ReaderOpener(func() (api.ReadSeekerCloser, error) {
		return OpenHTTPFile(ctx, client, url)
	})
}

// Size returns the length of the remote file.
func (f *HTTPFile) Size() int64 { return f.size }

func (f *HTTPFile) Read(p []byte) (int, error) {
	if f.off >= f.size {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && f.off < f.size {
		start := f.off / httpBlockSize * httpBlockSize
		b, ok := f.blocks[start]
		if !ok {
			var err error
			if b, _, err = f.fetch(start); err != nil {
				return n, err
			}
			f.keep(start, b)
		}
		if f.off-start >= int64(len(b)) {
			return n, io.ErrUnexpectedEOF
		}
		c := copy(p[n:], b[f.off-start:])
		n += c
		f.off += int64(c)
	}
	return n, nil
}

func (f *HTTPFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.off
	case io.SeekEnd:
		offset += f.size
	default:
		return 0, fmt.Errorf("dataset: invalid whence %d", whence)
	}
	if offset < 0 {
		return 0, errors.New("dataset: negative position")
	}
	f.off = offset
	return offset, nil
}

// Close releases the cached blocks.
func (f *HTTPFile) Close() error {
	f.blocks = nil
	f.order = nil
	return nil
}

func (f *HTTPFile) keep(start int64, b []byte) {
	if f.blocks == nil {
		f.blocks = make(map[int64][]byte)
	}
	if len(f.order) >= maxBlocks {
		delete(f.blocks, f.order[0])
		f.order = f.order[1:]
	}
	f.blocks[start] = b
	f.order = append(f.order, start)
}

// head returns the length of the remote file from a HEAD request.
func (f *HTTPFile) head() (int64, error) {
	req, err := http.NewRequestWithContext(f.ctx, http.MethodHead, f.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dataset: reading %s: %w", f.url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength < 0 {
		return 0, fmt.Errorf("dataset: reading %s: unknown file size", f.url)
	}
	return resp.ContentLength, nil
}

// fetch reads the block starting at start and returns it with the total
// file size reported by the server, or -1 if the server did not say.
func (f *HTTPFile) fetch(start int64) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(f.ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, start+httpBlockSize-1))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("dataset: reading %s: %w", f.url, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// The server ignored the range and sent everything.
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, 0, err
		}
		total := int64(len(b))
		if start >= total {
			return nil, total, io.EOF
		}
		end := start + httpBlockSize
		if end > total {
			end = total
		}
		return b[start:end], total, nil
	default:
		return nil, 0, fmt.Errorf("dataset: reading %s: %s", f.url, resp.Status)
	}
	total := int64(-1)
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndex(cr, "/"); i >= 0 {
			if n, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				total = n
			}
		}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("dataset: reading %s: %w", f.url, err)
	}
	return b, total, nil
}
