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

// Package datagateway serves the data files of locally stored tables. Access
// is granted by the JWT signature minted into the download URL, not by the
// bearer token, so expired or tampered links fail here.
package datagateway

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openlake/delta-sharing/pkg/appctx"
	"github.com/openlake/delta-sharing/pkg/rhttp/global"
	"github.com/openlake/delta-sharing/pkg/signedurl"
	"github.com/openlake/delta-sharing/pkg/utils/cfg"
)

func init() {
	global.Register("datagateway", New)
}

type config struct {
	Prefix string `mapstructure:"prefix"`
	// Root is the directory the served files live under, the same root the
	// local storage driver is configured with.
	Root string `mapstructure:"root" validate:"required"`
	// ExternalURL is the public base URL of this service, used to reconstruct
	// the URL the signature was minted for.
	ExternalURL string `mapstructure:"external_url" validate:"required"`
	// SigningSecret verifies the signatures the local storage driver minted.
	SigningSecret string `mapstructure:"signing_secret" validate:"required"`
}

func (c *config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "data"
	}
	c.ExternalURL = strings.TrimSuffix(c.ExternalURL, "/")
}

type svc struct {
	conf     *config
	verifier signedurl.Verifier
}

// New returns the data gateway service.
func New(m map[string]interface{}, _ *zerolog.Logger) (global.Service, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "datagateway: error decoding config")
	}
	v, err := signedurl.NewJWTSignedURL(signedurl.WithSecret(c.SigningSecret))
	if err != nil {
		return nil, errors.Wrap(err, "datagateway: error creating url verifier")
	}
	return &svc{conf: &c, verifier: v}, nil
}

func (s *svc) Prefix() string {
	return s.conf.Prefix
}

func (s *svc) Unprotected() []string {
	return []string{"/"}
}

func (s *svc) Close() error {
	return nil
}

func (s *svc) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleGet(w, r)
	})
}

func (s *svc) handleGet(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	signed := s.conf.ExternalURL + r.URL.Path
	if r.URL.RawQuery != "" {
		signed += "?" + r.URL.RawQuery
	}
	recipient, err := s.verifier.Verify(signed)
	if err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("datagateway: rejecting unsigned download")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	log.Debug().Str("recipient", recipient).Str("path", r.URL.Path).Msg("datagateway: serving signed download")

	abs := filepath.Join(s.conf.Root, filepath.FromSlash(r.URL.Path))
	abs = filepath.Clean(abs)
	root := filepath.Clean(s.conf.Root)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	fd, err := os.Open(abs)
	if os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("path", abs).Msg("datagateway: error opening file")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer fd.Close()

	fi, err := fd.Stat()
	if err != nil || fi.IsDir() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// ServeContent handles Range requests, parquet readers fetch footers
	// before row groups.
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), fd)
}
