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

// imgcommitctl is the operator CLI for a running imgcommitd: it
// starts, throttles, cancels and polls commit jobs over the daemon's
// IPC endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pborman/uuid"
	cli "gopkg.in/urfave/cli.v1"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"imgcommit/rpc"
)

var ipcFlag = cli.StringFlag{
	Name:  "ipc",
	Usage: "Path to the daemon's IPC endpoint",
	Value: "imgcommitd-data/imgcommitd.ipc",
}

func main() {
	app := cli.NewApp()
	app.Name = "imgcommitctl"
	app.Usage = "operate a running imgcommitd daemon"
	app.Flags = []cli.Flag{ipcFlag}
	app.Commands = []cli.Command{
		startCommand,
		speedCommand,
		cancelCommand,
		progressCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var startCommand = cli.Command{
	Name:      "start",
	Usage:     "Start a commit job",
	ArgsUsage: "<active> <top> <base>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "device", Usage: "Owning device name (defaults to a generated id)"},
		cli.Int64Flag{Name: "speed", Usage: "Initial rate limit in bytes/sec (0 = unlimited)"},
		cli.StringFlag{Name: "on-error", Usage: "report, ignore, stop-any, or stop-enospc", Value: "report"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 3 {
			return fmt.Errorf("usage: imgcommitctl start <active> <top> <base>")
		}
		device := ctx.String("device")
		if device == "" {
			device = uuid.New()
		}
		req := rpc.StartRequest{
			Active:  ctx.Args().Get(0),
			Top:     ctx.Args().Get(1),
			Base:    ctx.Args().Get(2),
			Device:  device,
			Speed:   ctx.Int64("speed"),
			OnError: ctx.String("on-error"),
		}
		var resp rpc.StartResponse
		if err := dial(ctx, "commit_start", req, &resp); err != nil {
			return err
		}
		fmt.Println("job:", resp.JobID)
		return nil
	},
}

var speedCommand = cli.Command{
	Name:      "speed",
	Usage:     "Adjust a running job's rate limit",
	ArgsUsage: "<job-id> <bytes-per-sec>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return fmt.Errorf("usage: imgcommitctl speed <job-id> <bytes-per-sec>")
		}
		var speed int64
		if _, err := fmt.Sscanf(ctx.Args().Get(1), "%d", &speed); err != nil {
			return fmt.Errorf("invalid speed: %w", err)
		}
		req := rpc.SetSpeedRequest{JobID: ctx.Args().Get(0), Speed: speed}
		return dial(ctx, "commit_set_speed", req, nil)
	},
}

var cancelCommand = cli.Command{
	Name:      "cancel",
	Usage:     "Cancel a running job",
	ArgsUsage: "<job-id>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("usage: imgcommitctl cancel <job-id>")
		}
		return dial(ctx, "commit_cancel", ctx.Args().Get(0), nil)
	},
}

var progressCommand = cli.Command{
	Name:      "progress",
	Usage:     "Show a job's current progress",
	ArgsUsage: "<job-id>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "watch", Usage: "Keep polling and refreshing the table every second"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("usage: imgcommitctl progress <job-id>")
		}
		jobID := ctx.Args().Get(0)
		for {
			var resp rpc.ProgressResponse
			if err := dial(ctx, "commit_progress", jobID, &resp); err != nil {
				return err
			}
			printProgress(jobID, resp)
			if !ctx.Bool("watch") || terminalState(resp.State) {
				return nil
			}
			time.Sleep(time.Second)
		}
	},
}

func printProgress(jobID string, resp rpc.ProgressResponse) {
	p := message.NewPrinter(language.English)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job", "State", "Offset", "Length", "Speed", "Status"})
	table.Append([]string{
		jobID,
		resp.State,
		p.Sprintf("%d", resp.Offset),
		p.Sprintf("%d", resp.Length),
		p.Sprintf("%d/s", resp.Speed),
		fmt.Sprintf("%d", resp.Status),
	})
	table.Render()
}

func terminalState(state string) bool {
	switch state {
	case "completed", "cancelled", "errored":
		return true
	default:
		return false
	}
}

func dial(ctx *cli.Context, method string, params, result interface{}) error {
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return rpc.DialIPC(c, ctx.GlobalString(ipcFlag.Name), method, params, result)
}
