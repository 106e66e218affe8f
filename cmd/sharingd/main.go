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

// sharingd is the Delta Sharing server daemon.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	_ "github.com/openlake/delta-sharing/internal/http/interceptors/loader"
	_ "github.com/openlake/delta-sharing/internal/http/services/loader"
	_ "github.com/openlake/delta-sharing/pkg/catalog/manager/loader"
	"github.com/openlake/delta-sharing/pkg/rhttp"
	_ "github.com/openlake/delta-sharing/pkg/storage/fs/loader"
)

// set at build time with -ldflags.
var (
	version = "devel"
	commit  = ""
)

var (
	versionFlag = flag.Bool("version", false, "print the version and exit")
	configFlag  = flag.String("c", "/etc/sharingd/sharingd.toml", "location of the configuration file")
)

type logConfig struct {
	Output string `mapstructure:"output"`
	Mode   string `mapstructure:"mode"`
	Level  string `mapstructure:"level"`
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("sharingd %s %s\n", version, commit)
		os.Exit(0)
	}

	var conf map[string]interface{}
	if _, err := toml.DecodeFile(*configFlag, &conf); err != nil {
		fmt.Fprintf(os.Stderr, "error reading config file %s: %v\n", *configFlag, err)
		os.Exit(1)
	}

	log, err := newLogger(conf["log"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}

	s, err := rhttp.New(conf["http"], log.With().Str("pkg", "rhttp").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("error creating http server")
	}

	ln, err := net.Listen(s.Network(), s.Address())
	if err != nil {
		log.Fatal().Err(err).Msg("error listening")
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Start(ln)
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil {
			log.Fatal().Err(err).Msg("http server exited with error")
		}
	case sig := <-sigc:
		log.Info().Msgf("signal %q received, shutting down", sig)
		if err := s.GracefulStop(); err != nil {
			log.Error().Err(err).Msg("error during graceful shutdown")
			os.Exit(1)
		}
	}
	log.Info().Msg("sharingd stopped")
}

func newLogger(m interface{}) (*zerolog.Logger, error) {
	conf := &logConfig{}
	if m != nil {
		if err := mapstructure.Decode(m, conf); err != nil {
			return nil, err
		}
	}
	if conf.Level == "" {
		conf.Level = zerolog.InfoLevel.String()
	}

	level, err := zerolog.ParseLevel(conf.Level)
	if err != nil {
		return nil, err
	}

	var out *os.File
	switch conf.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		fd, err := os.OpenFile(conf.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
		if err != nil {
			return nil, err
		}
		out = fd
	}

	var log zerolog.Logger
	if conf.Mode == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05.000"})
	} else {
		log = zerolog.New(out)
	}
	log = log.With().Timestamp().Logger().Level(level)
	return &log, nil
}
