// Copyright 2017 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"unicode"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/naoina/toml"
)

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
}

// These settings ensure TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// daemonConfig is the full on-disk configuration for imgcommitd.
type daemonConfig struct {
	DataDir string // state directory: chain.json, audit log, IPC socket

	Backend   string // chain adapter backend; run accepts only "posix"
	NFS       bool   // posix backend: linearize concurrent I/O for an NFS-mounted chain
	WriteBack bool   // posix backend: skip O_DSYNC, trusting a write-back cache

	IPCPath  string // unix socket / named pipe path, relative to DataDir unless absolute
	HTTPAddr string // empty disables the HTTP transport
	Origins  []string

	AuthzEnabled bool // load operator card keys into an authz.Authorizer; the RPC handler does not check signatures

	MetricsDir   string // tsdb data directory; empty disables local metrics
	InfluxAddr   string // empty disables influx forwarding
	InfluxDB     string
	InfluxUser   string
	InfluxPass   string

	Dashboard bool // render a live terminal dashboard

	NAT string // netexport.Parse spec for exporting Base over NAT

	WatchQuietSeconds int // quiet period for watch-triggered auto-commit; run does not read it and starts no watcher
}

func defaultConfig() daemonConfig {
	return daemonConfig{
		DataDir:  "imgcommitd-data",
		Backend:  "posix",
		IPCPath:  "imgcommitd.ipc",
		HTTPAddr: "",
	}
}

func loadConfig(file string, cfg *daemonConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func makeConfig(ctx *cli.Context) daemonConfig {
	cfg := defaultConfig()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			fatalf("%v", err)
		}
	}
	if ctx.GlobalIsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.GlobalString(dataDirFlag.Name)
	}
	if ctx.GlobalIsSet(backendFlag.Name) {
		cfg.Backend = ctx.GlobalString(backendFlag.Name)
	}
	if ctx.GlobalIsSet(httpAddrFlag.Name) {
		cfg.HTTPAddr = ctx.GlobalString(httpAddrFlag.Name)
	}
	if ctx.GlobalIsSet(ipcPathFlag.Name) {
		cfg.IPCPath = ctx.GlobalString(ipcPathFlag.Name)
	}
	if ctx.GlobalIsSet(dashboardFlag.Name) {
		cfg.Dashboard = true
	}
	return cfg
}

// dumpConfig is the "dumpconfig" command: print the effective
// configuration, defaults and flag overrides included, as TOML.
func dumpConfig(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	io.WriteString(os.Stdout, "# effective imgcommitd configuration\n\n")
	os.Stdout.Write(out)
	return nil
}
