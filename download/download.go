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

// Package download fetches files over HTTP into a local directory tree,
// checking their size and checksum.
package download

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrChecksum is returned when the checksum of a file does not match
	// the expected value.
	ErrChecksum = errors.New("download: checksum mismatch")

	// ErrSize is returned when a file does not have the expected size.
	ErrSize = errors.New("download: size mismatch")
)

// Task is a file to download.
type Task struct {
	URL  string
	Path string

	// Size is the expected size in bytes, or zero if unknown.
	Size int64

	// Checksum is the expected hex digest, of type ChecksumType
	// ("SHA256" or "MD5"). It is not checked if empty.
	Checksum     string
	ChecksumType string
}

// Downloader downloads files concurrently.
type Downloader struct {
	// HTTP is the client used for requests. If nil, a client is created
	// that verifies TLS certificates only if VerifySSL is set.
	HTTP *http.Client

	// Retries is the number of times a failed download is retried.
	Retries uint64

	// CheckFiles enables checksum verification of downloaded and
	// existing files.
	CheckFiles bool

	VerifySSL bool

	// Workers is the number of files downloaded at once.
	Workers int

	// ShowProgress logs each finished file and a summary.
	ShowProgress bool

	Log logrus.FieldLogger

	backOff func() backoff.BackOff
}

// New returns a Downloader that checks files and uses four workers.
func New() *Downloader {
	return &Downloader{
		CheckFiles: true,
		Workers:    4,
		Log:        logrus.StandardLogger(),
	}
}

// Client returns the HTTP client used for downloads.
func (d *Downloader) Client() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !d.VerifySSL},
		},
	}
}

// Download fetches the tasks whose files are not already present and valid,
// and returns the tasks it downloaded. Failed tasks do not stop the others;
// their errors are joined into the returned error.
func (d *Downloader) Download(ctx context.Context, tasks []Task) ([]Task, error) {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}
	newBackOff := d.backOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	client := d.Client()

	done := make([]bool, len(tasks))
	errs := make([]error, len(tasks))
	var files, bytes int64
	var g errgroup.Group
	g.SetLimit(workers)
	for i, t := range tasks {
		g.Go(func() error {
			ok, err := d.valid(t)
			if err != nil {
				errs[i] = err
				return nil
			}
			if ok {
				log.WithField("path", t.Path).Debug("download: file already present")
				return nil
			}
			b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), d.Retries), ctx)
			var n int64
			err = backoff.RetryNotify(func() error {
				var err error
				n, err = d.fetch(ctx, client, t)
				return err
			}, b, func(err error, wait time.Duration) {
				log.WithFields(logrus.Fields{"url": t.URL, "wait": wait}).Warnf("download: retrying: %v", err)
			})
			if err != nil {
				errs[i] = fmt.Errorf("download: %s: %w", t.URL, err)
				return nil
			}
			done[i] = true
			nf := atomic.AddInt64(&files, 1)
			atomic.AddInt64(&bytes, n)
			if d.ShowProgress {
				log.WithFields(logrus.Fields{"file": filepath.Base(t.Path), "size": humanize.Bytes(uint64(n))}).
					Infof("download: %d/%d files", nf, len(tasks))
			}
			return nil
		})
	}
	g.Wait()

	var downloaded []Task
	for i, t := range tasks {
		if done[i] {
			downloaded = append(downloaded, t)
		}
	}
	if d.ShowProgress {
		log.WithFields(logrus.Fields{
			"downloaded": len(downloaded),
			"skipped":    len(tasks) - len(downloaded),
			"size":       humanize.Bytes(uint64(bytes)),
		}).Info("download: finished")
	}
	return downloaded, errors.Join(errs...)
}

// valid reports whether the file of t already exists with the expected
// size and, if CheckFiles is set, the expected checksum.
func (d *Downloader) valid(t Task) (bool, error) {
	fi, err := os.Stat(t.Path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("download: %w", err)
	}
	if !fi.Mode().IsRegular() || (t.Size > 0 && fi.Size() != t.Size) {
		return false, nil
	}
	if !d.CheckFiles || t.Checksum == "" {
		return true, nil
	}
	h, err := newHash(t.ChecksumType)
	if err != nil {
		return false, err
	}
	f, err := os.Open(t.Path)
	if err != nil {
		return false, fmt.Errorf("download: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return false, fmt.Errorf("download: reading %s: %w", t.Path, err)
	}
	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), t.Checksum), nil
}

// fetch downloads t into a pending file that replaces t.Path only once the
// data is complete and verified.
func (d *Downloader) fetch(ctx context.Context, client *http.Client, t Task) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return 0, backoff.Permanent(err)
	}
	var h hash.Hash
	if d.CheckFiles && t.Checksum != "" {
		var err error
		if h, err = newHash(t.ChecksumType); err != nil {
			return 0, backoff.Permanent(err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("download: unexpected status %s", resp.Status)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	pf, err := renameio.NewPendingFile(t.Path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	defer pf.Cleanup()
	var w io.Writer = pf
	if h != nil {
		w = io.MultiWriter(pf, h)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, err
	}
	if t.Size > 0 && n != t.Size {
		return n, fmt.Errorf("%w: %s has %d bytes; expected %d", ErrSize, t.Path, n, t.Size)
	}
	if h != nil {
		if sum := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(sum, t.Checksum) {
			return n, fmt.Errorf("%w: %s has %s %s; expected %s", ErrChecksum, t.Path, t.ChecksumType, sum, t.Checksum)
		}
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return n, backoff.Permanent(err)
	}
	return n, nil
}

func newHash(typ string) (hash.Hash, error) {
	switch strings.ToUpper(typ) {
	case "SHA256", "":
		return sha256.New(), nil
	case "MD5":
		return md5.New(), nil
	}
	return nil, fmt.Errorf("download: unsupported checksum type %q", typ)
}
