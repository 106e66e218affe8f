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

// Package rhttp provides the HTTP server that hosts the registered services
// behind a chain of prioritized middlewares.
package rhttp

import (
	"context"
	"net"
	"net/http"
	"path"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openlake/delta-sharing/internal/http/interceptors/appctx"
	"github.com/openlake/delta-sharing/internal/http/interceptors/auth"
	"github.com/openlake/delta-sharing/pkg/rhttp/global"
)

type config struct {
	Network            string                            `mapstructure:"network"`
	Address            string                            `mapstructure:"address"`
	Services           map[string]map[string]interface{} `mapstructure:"services"`
	Middlewares        map[string]map[string]interface{} `mapstructure:"middlewares"`
	EnabledServices    []string                          `mapstructure:"enabled_services"`
	EnabledMiddlewares []string                          `mapstructure:"enabled_middlewares"`
}

// middlewareTriple represents a middleware with the
// priority to be chained.
type middlewareTriple struct {
	Name       string
	Priority   int
	Middleware global.Middleware
}

// Server contains the server info.
type Server struct {
	httpServer  *http.Server
	conf        *config
	listener    net.Listener
	svcs        map[string]global.Service
	handlers    map[string]http.Handler
	middlewares []*middlewareTriple
	log         zerolog.Logger
}

// New returns a new server.
func New(m interface{}, l zerolog.Logger) (*Server, error) {
	conf := &config{}
	if err := mapstructure.Decode(m, conf); err != nil {
		return nil, err
	}

	if conf.Network == "" {
		conf.Network = "tcp"
	}
	if conf.Address == "" {
		conf.Address = "0.0.0.0:8080"
	}
	// every service in the services map is enabled unless the enabled list
	// narrows it down.
	if len(conf.EnabledServices) == 0 {
		for name := range conf.Services {
			conf.EnabledServices = append(conf.EnabledServices, name)
		}
	}
	if len(conf.EnabledMiddlewares) == 0 {
		for name := range conf.Middlewares {
			conf.EnabledMiddlewares = append(conf.EnabledMiddlewares, name)
		}
	}

	s := &Server{
		// WriteTimeout stays unset, query responses are long-lived NDJSON
		// streams; request deadlines are enforced per handler.
		httpServer: &http.Server{
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		conf:       conf,
		svcs:       map[string]global.Service{},
		handlers:   map[string]http.Handler{},
		log:        l,
	}
	return s, nil
}

// Start starts the server over the given listener.
func (s *Server) Start(ln net.Listener) error {
	if err := s.registerServices(); err != nil {
		return err
	}

	if err := s.registerMiddlewares(); err != nil {
		return err
	}

	handler, err := s.getHandler()
	if err != nil {
		return err
	}
	s.httpServer.Handler = handler
	s.listener = ln

	s.log.Info().Msgf("http server listening at %s://%s", s.conf.Network, s.listener.Addr())
	err = s.httpServer.Serve(s.listener)
	if err == nil || err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the server.
func (s *Server) Stop() error {
	s.closeServices()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// GracefulStop gracefully stops the server.
func (s *Server) GracefulStop() error {
	s.closeServices()
	return s.httpServer.Shutdown(context.Background())
}

func (s *Server) closeServices() {
	for _, svc := range s.svcs {
		if err := svc.Close(); err != nil {
			s.log.Error().Err(err).Msgf("error closing service %q", svc.Prefix())
		} else {
			s.log.Info().Msgf("service %q correctly closed", svc.Prefix())
		}
	}
}

// Network return the network type.
func (s *Server) Network() string {
	return s.conf.Network
}

// Address returns the network address.
func (s *Server) Address() string {
	return s.conf.Address
}

func (s *Server) isEnabled(name string, enabled []string) bool {
	for _, key := range enabled {
		if key == name {
			return true
		}
	}
	return false
}

func (s *Server) registerMiddlewares() error {
	middlewares := []*middlewareTriple{}
	for name, newFunc := range global.NewMiddlewares {
		if s.isEnabled(name, s.conf.EnabledMiddlewares) {
			m, prio, err := newFunc(s.conf.Middlewares[name])
			if err != nil {
				return errors.Wrap(err, "rhttp: error creating new middleware: "+name)
			}
			middlewares = append(middlewares, &middlewareTriple{
				Name:       name,
				Priority:   prio,
				Middleware: m,
			})
			s.log.Info().Msgf("http middleware enabled: %s", name)
		}
	}
	s.middlewares = middlewares
	return nil
}

func (s *Server) registerServices() error {
	for name, newFunc := range global.Services {
		if s.isEnabled(name, s.conf.EnabledServices) {
			log := s.log.With().Str("service", name).Logger()
			svc, err := newFunc(s.conf.Services[name], &log)
			if err != nil {
				return errors.Wrapf(err, "rhttp: http service %s could not be started", name)
			}
			s.handlers[svc.Prefix()] = svc.Handler()
			s.svcs[svc.Prefix()] = svc
			s.log.Info().Msgf("http service enabled: %s@/%s", name, svc.Prefix())
		}
	}
	return nil
}

func (s *Server) getHandler() (http.Handler, error) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		head, tail := global.ShiftPath(r.URL.Path)
		if h, ok := s.handlers[head]; ok {
			r.URL.Path = tail
			s.log.Debug().Msgf("http routing: head=%s tail=%s svc=%s", head, r.URL.Path, head)
			h.ServeHTTP(w, r)
			return
		}

		// fallback to the root service if one is mounted at "".
		if h, ok := s.handlers[""]; ok {
			r.URL.Path = "/" + head + tail
			s.log.Debug().Msgf("http routing: head= tail=%s svc=root", r.URL.Path)
			h.ServeHTTP(w, r)
			return
		}

		s.log.Debug().Msgf("http routing: head=%s tail=%s svc=not-found", head, tail)
		w.WriteHeader(http.StatusNotFound)
	})

	// sort middlewares by priority, higher priority wraps the outermost.
	sort.SliceStable(s.middlewares, func(i, j int) bool {
		return s.middlewares[i].Priority > s.middlewares[j].Priority
	})

	handler := http.Handler(h)
	for _, triple := range s.middlewares {
		s.log.Info().Msgf("chaining http middleware %s with priority %d", triple.Name, triple.Priority)
		handler = triple.Middleware(handler)
	}

	// the auth middleware wraps everything but the endpoints the services
	// declared unprotected. It is built here because the unprotected paths are
	// only known once the services are registered.
	unprotected := []string{}
	for prefix, svc := range s.svcs {
		for _, url := range svc.Unprotected() {
			u := path.Join("/", prefix, url)
			s.log.Info().Msgf("unprotected URL: %s", u)
			unprotected = append(unprotected, u)
		}
	}
	authMiddle, err := auth.New(s.conf.Middlewares["auth"], unprotected)
	if err != nil {
		return nil, errors.Wrap(err, "rhttp: error creating auth middleware")
	}
	handler = authMiddle(handler)

	// the appctx middleware runs outermost so every handler below it,
	// including auth, finds a logger in the request context.
	handler = appctx.New(s.log)(handler)

	return handler, nil
}
