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

// Package local provides a storage driver for tables kept on the server
// filesystem. Download URLs point at the datagateway service and carry a JWT
// signature.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openlake/delta-sharing/pkg/auth"
	"github.com/openlake/delta-sharing/pkg/errtypes"
	"github.com/openlake/delta-sharing/pkg/signedurl"
	"github.com/openlake/delta-sharing/pkg/storage"
	"github.com/openlake/delta-sharing/pkg/storage/registry"
	"github.com/openlake/delta-sharing/pkg/utils/cfg"
)

func init() {
	registry.Register("local", New)
}

type config struct {
	// Root restricts which table directories may be served.
	Root string `mapstructure:"root" validate:"required"`
	// ExternalURL is the public base URL of the datagateway service.
	ExternalURL string `mapstructure:"external_url" validate:"required"`
	// SigningSecret signs download URLs; the datagateway verifies them.
	SigningSecret string `mapstructure:"signing_secret" validate:"required"`
}

func (c *config) ApplyDefaults() {
	c.ExternalURL = strings.TrimSuffix(c.ExternalURL, "/")
}

type localfs struct {
	c      *config
	signer signedurl.Signer
}

// New returns a local filesystem storage driver.
func New(m map[string]interface{}) (storage.FS, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "local: error decoding config")
	}
	s, err := signedurl.NewJWTSignedURL(signedurl.WithSecret(c.SigningSecret))
	if err != nil {
		return nil, errors.Wrap(err, "local: error creating url signer")
	}
	return &localfs{c: &c, signer: s}, nil
}

// resolve maps (uri, name) to an absolute path and rejects escapes from the
// configured root.
func (fs *localfs) resolve(uri, name string) (string, error) {
	abs := filepath.Join(uri, filepath.FromSlash(name))
	abs = filepath.Clean(abs)
	root := filepath.Clean(fs.c.Root)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", errtypes.PermissionDenied("path escapes storage root: " + name)
	}
	return abs, nil
}

func (fs *localfs) ListDir(ctx context.Context, uri, dir string) ([]storage.FileInfo, error) {
	abs, err := fs.resolve(uri, dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if os.IsNotExist(err) {
		return nil, errtypes.NotFound(dir)
	}
	if err != nil {
		return nil, errors.Wrap(err, "local: error listing directory")
	}
	infos := make([]storage.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		name := fi.Name()
		if dir != "" && dir != "." {
			name = dir + "/" + name
		}
		infos = append(infos, storage.FileInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()})
	}
	return infos, nil
}

func (fs *localfs) Open(ctx context.Context, uri, name string) (io.ReadCloser, error) {
	abs, err := fs.resolve(uri, name)
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(abs)
	if os.IsNotExist(err) {
		return nil, errtypes.NotFound(name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "local: error opening file")
	}
	return fd, nil
}

func (fs *localfs) Sign(ctx context.Context, uri, name string, ttl time.Duration) (storage.SignedURL, error) {
	abs, err := fs.resolve(uri, name)
	if err != nil {
		return storage.SignedURL{}, err
	}
	rel, err := filepath.Rel(filepath.Clean(fs.c.Root), abs)
	if err != nil {
		return storage.SignedURL{}, errors.Wrap(err, "local: error relativizing path")
	}

	// the signature subject carries the recipient the URL was minted for.
	subject := ""
	if p, ok := auth.ContextGetPrincipal(ctx); ok {
		subject = p.Username
	}

	expires := time.Now().Add(ttl)
	u := fs.c.ExternalURL + "/" + filepath.ToSlash(rel)
	signed, err := fs.signer.Sign(u, subject, ttl)
	if err != nil {
		return storage.SignedURL{}, errors.Wrap(err, "local: error signing url")
	}
	return storage.SignedURL{
		URL:                   signed,
		ExpirationTimestampMs: expires.UnixMilli(),
	}, nil
}
