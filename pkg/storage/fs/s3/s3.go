// Copyright 2018-2025 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package s3 provides a storage driver for tables kept in an S3 compatible
// object store. Download URLs are provider presigned GET URLs.
package s3

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/openlake/delta-sharing/pkg/errtypes"
	"github.com/openlake/delta-sharing/pkg/storage"
	"github.com/openlake/delta-sharing/pkg/storage/registry"
	"github.com/openlake/delta-sharing/pkg/utils/cfg"
)

func init() {
	registry.Register("s3", New)
}

type config struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key" validate:"required"`
	SecretKey string `mapstructure:"secret_key" validate:"required"`
}

type s3fs struct {
	c      *config
	client *minio.Client
}

// New returns an S3 storage driver.
func New(m map[string]interface{}) (storage.FS, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "s3: error decoding config")
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "s3: failed to parse endpoint")
	}
	useSSL := u.Scheme != "http"
	client, err := minio.New(u.Host, &minio.Options{
		Region: c.Region,
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "s3: failed to setup client")
	}

	return &s3fs{c: &c, client: client}, nil
}

// splitURI splits s3://bucket/prefix into bucket and prefix.
func splitURI(uri string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	if trimmed == uri || trimmed == "" {
		return "", "", errtypes.BadRequest("not an s3 uri: " + uri)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return bucket, prefix, nil
}

func key(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (fs *s3fs) ListDir(ctx context.Context, uri, dir string) ([]storage.FileInfo, error) {
	bucket, prefix, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	dirPrefix := key(prefix, dir)
	if dirPrefix != "" {
		dirPrefix += "/"
	}

	infos := []storage.FileInfo{}
	for obj := range fs.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: dirPrefix}) {
		if obj.Err != nil {
			return nil, errtypes.TemporarilyUnavailable(obj.Err.Error())
		}
		name := strings.TrimPrefix(obj.Key, dirPrefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		if dir != "" {
			name = dir + "/" + name
		}
		infos = append(infos, storage.FileInfo{Name: name, Size: obj.Size, ModTime: obj.LastModified})
	}
	if len(infos) == 0 {
		// the protocol treats a missing log directory as an empty table, the
		// reader decides, we only report absence.
		return nil, errtypes.NotFound(dir)
	}
	return infos, nil
}

func (fs *s3fs) Open(ctx context.Context, uri, name string) (io.ReadCloser, error) {
	bucket, prefix, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	obj, err := fs.client.GetObject(ctx, bucket, key(prefix, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "s3: could not get object %q from bucket %q", name, bucket)
	}
	return obj, nil
}

func (fs *s3fs) Sign(ctx context.Context, uri, name string, ttl time.Duration) (storage.SignedURL, error) {
	bucket, prefix, err := splitURI(uri)
	if err != nil {
		return storage.SignedURL{}, err
	}
	expires := time.Now().Add(ttl)
	u, err := fs.client.PresignedGetObject(ctx, bucket, key(prefix, name), ttl, nil)
	if err != nil {
		return storage.SignedURL{}, errors.Wrapf(err, "s3: could not presign object %q in bucket %q", name, bucket)
	}
	return storage.SignedURL{
		URL:                   u.String(),
		ExpirationTimestampMs: expires.UnixMilli(),
	}, nil
}
