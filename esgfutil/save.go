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
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bopen/esgf/dataset"
	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/gcsblob"  // gs:// buckets
	_ "gocloud.dev/blob/s3blob"   // s3:// buckets
)

// IsBlob returns whether the given filename represents a blob.
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// checkOutputFile makes sure the output file can be created and returns
// its location.
func checkOutputFile(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("esgf: an output file must be given with --output")
	}
	if IsBlob(path) {
		bucket, _, err := openBucket(ctx, path)
		if err != nil {
			return "", err
		}
		return path, bucket.Close()
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return "", fmt.Errorf("esgf: preparing output location: %v", err)
	}
	return path, nil
}

// openBucket opens the bucket holding the blob at path and returns it
// with the key of the blob.
func openBucket(ctx context.Context, path string) (*blob.Bucket, string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, "", fmt.Errorf("esgf: parsing url '%s': %v", path, err)
	}
	var bucketURL, key string
	if u.Scheme == "file" {
		dir := filepath.Dir(u.Path)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, "", fmt.Errorf("esgf: creating bucket directory: %v", err)
		}
		bucketURL, key = "file://"+dir, filepath.Base(u.Path)
	} else {
		bucketURL, key = u.Scheme+"://"+u.Host, strings.TrimPrefix(u.Path, "/")
		if u.RawQuery != "" {
			bucketURL += "?" + u.RawQuery
		}
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, "", fmt.Errorf("esgf: opening bucket for '%s': %v", path, err)
	}
	return bucket, key, nil
}

// saveDataset writes ds to path, which is either a local file or a blob.
// Local files are replaced atomically.
func saveDataset(ctx context.Context, ds *dataset.Dataset, path string) error {
	if IsBlob(path) {
		return saveBlob(ctx, ds, path)
	}
	return saveFile(ctx, ds, path)
}

func saveFile(ctx context.Context, ds *dataset.Dataset, path string) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("esgf: creating output file: %v", err)
	}
	defer pf.Cleanup()
	if err := dataset.Write(ctx, pf.File, ds); err != nil {
		return err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("esgf: saving output file: %v", err)
	}
	logrus.WithField("path", path).Info("esgf: saved dataset")
	return nil
}

// saveBlob writes ds to a temporary file and uploads it.
func saveBlob(ctx context.Context, ds *dataset.Dataset, path string) error {
	dir, err := os.MkdirTemp("", "esgf")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	tmp := filepath.Join(dir, "upload.nc")
	if err := saveFile(ctx, ds, tmp); err != nil {
		return err
	}
	return upload(ctx, tmp, path)
}

// upload copies the local file at from to the blob at to.
func upload(ctx context.Context, from, to string) error {
	r, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("esgf: opening file '%s' for upload: %v", from, err)
	}
	defer r.Close()
	bucket, key, err := openBucket(ctx, to)
	if err != nil {
		return err
	}
	defer bucket.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "application/netcdf"})
	if err != nil {
		return fmt.Errorf("esgf: opening writer to upload file '%s': %v", to, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("esgf: uploading file '%s' to '%s': %v", from, to, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("esgf: uploading file '%s' to '%s': %v", from, to, err)
	}
	logrus.WithField("url", to).Info("esgf: uploaded dataset")
	return nil
}
