// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// imgcommitd is the live-commit daemon: it serves commit_start,
// commit_set_speed, commit_cancel and commit_progress over HTTP and
// IPC against a configured image-chain backend.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/pkg/reexec"
	cli "gopkg.in/urfave/cli.v1"

	"imgcommit/authz"
	"imgcommit/backend/posix"
	"imgcommit/dashboard"
	"imgcommit/internal/log"
	"imgcommit/internal/sysinfo"
	"imgcommit/metrics"
	"imgcommit/netexport"
	"imgcommit/registry"
	"imgcommit/rpc"
)

const clientIdentifier = "imgcommitd"

var (
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for chain.json, the audit log and the IPC socket",
	}
	backendFlag = cli.StringFlag{
		Name:  "backend",
		Usage: "Chain adapter backend (only posix is supported)",
		Value: "posix",
	}
	httpAddrFlag = cli.StringFlag{
		Name:  "http.addr",
		Usage: "HTTP listen address for commit_* endpoints (empty disables HTTP)",
	}
	ipcPathFlag = cli.StringFlag{
		Name:  "ipc.path",
		Usage: "IPC endpoint path, relative to datadir unless absolute",
		Value: "imgcommitd.ipc",
	}
	dashboardFlag = cli.BoolFlag{
		Name:  "dashboard",
		Usage: "Render a live terminal dashboard of running jobs",
	}
	probeHelperName = "imgcommitd-sysinfo-probe"
)

func init() {
	reexec.Register(probeHelperName, runSysinfoProbeHelper)
	if reexec.Init() {
		os.Exit(0)
	}
}

// runSysinfoProbeHelper is the reexec'd child entry point registered as
// probeHelperName: it prints a sysinfo report for the path in its first
// argument as JSON. run collects its own preflight report in-process
// and does not launch this child.
func runSysinfoProbeHelper() {
	path := "."
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	report, err := sysinfo.Collect(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	json.NewEncoder(os.Stdout).Encode(report)
}

func fatalf(format string, args ...interface{}) {
	log.Crit(fmt.Sprintf(format, args...))
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = clientIdentifier
	app.Usage = "live-commit daemon"
	app.Flags = []cli.Flag{
		configFileFlag, dataDirFlag, backendFlag, httpAddrFlag, ipcPathFlag, dashboardFlag,
	}
	app.Action = run
	app.Commands = []cli.Command{
		{
			Action: dumpConfig,
			Name:   "dumpconfig",
			Usage:  "Show the effective configuration",
			Flags:  app.Flags,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fatalf("%v", err)
	}
}

func run(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if report, err := sysinfo.Collect(cfg.DataDir); err == nil {
		if err := sysinfo.CheckHeadroom(report); err != nil {
			log.Warn("preflight headroom check failed", "err", err)
		}
	} else {
		log.Warn("preflight sysinfo collection failed", "err", err)
	}

	if cfg.Backend != "posix" {
		return fmt.Errorf("backend %q not supported by this build (only posix is wired for on-disk chains)", cfg.Backend)
	}
	resolver, err := newPathResolver(filepath.Join(cfg.DataDir, "chain.json"), cfg.NFS, false, cfg.WriteBack)
	if err != nil {
		return err
	}
	adapter := posix.New(cfg.NFS)

	reg := registry.New()
	var audit *registry.AuditLog
	if cfg.DataDir != "" {
		audit, err = registry.OpenAuditLog(filepath.Join(cfg.DataDir, "audit"))
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer audit.Close()
	}

	handler := rpc.NewHandler(adapter, reg, resolver, audit)

	var az *authz.Authorizer
	if cfg.AuthzEnabled {
		az = authz.New()
		hub, err := authz.NewCardHub(az)
		if err != nil {
			log.Warn("authz: pcsc unavailable, running without card enforcement", "err", err)
		} else {
			defer hub.Close()
		}
	}

	var store *metrics.Store
	if cfg.MetricsDir != "" {
		store, err = metrics.OpenStore(cfg.MetricsDir)
		if err != nil {
			return fmt.Errorf("open metrics store: %w", err)
		}
		defer store.Close()
	}
	var influx *metrics.InfluxReporter
	if cfg.InfluxAddr != "" {
		influx, err = metrics.NewInfluxReporter(cfg.InfluxAddr, cfg.InfluxUser, cfg.InfluxPass, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("open influx reporter: %w", err)
		}
		defer influx.Close()
	}

	if cfg.NAT != "" {
		mapper, err := netexport.Parse(cfg.NAT)
		if err != nil {
			return fmt.Errorf("parse nat spec: %w", err)
		}
		if mapper != nil {
			stop := make(chan struct{})
			defer close(stop)
			go netexport.Export(mapper, stop, "TCP", 8080, 8080, clientIdentifier)
		}
	}

	stopHTTP := func() {}
	if cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: rpc.NewHTTPHandler(handler, cfg.Origins)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server stopped", "err", err)
			}
		}()
		log.Info("serving commit_* over HTTP", "addr", cfg.HTTPAddr)
		stopHTTP = func() { srv.Close() }
	}
	defer stopHTTP()

	ipcPath := cfg.IPCPath
	if !filepath.IsAbs(ipcPath) {
		ipcPath = filepath.Join(cfg.DataDir, ipcPath)
	}
	os.Remove(ipcPath)
	l, err := rpc.ListenIPC(ipcPath)
	if err != nil {
		return fmt.Errorf("listen ipc: %w", err)
	}
	defer l.Close()
	go func() {
		if err := rpc.ServeIPC(l, handler); err != nil {
			log.Debug("ipc listener closed", "err", err)
		}
	}()
	log.Info("serving commit_* over IPC", "path", ipcPath)

	if cfg.Dashboard {
		dash, err := dashboard.New(nil)
		if err != nil {
			log.Warn("dashboard unavailable", "err", err)
		} else {
			defer dash.Close()
			go func() {
				for range time.Tick(time.Second) {
					dash.Render(nil)
				}
			}()
		}
	}

	log.Info("imgcommitd ready", "backend", cfg.Backend, "resolver", resolver.describe())
	select {}
}
