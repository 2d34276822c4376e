/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command rmemd runs a remote-memory block server for a simulated
// network-on-chip machine. It registers a named mailbox with a running
// nameserverd so that rmemclient instances on other nodes can resolve
// it, then serves ALLOC/FREE/READ/WRITE requests against an in-memory
// block store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/nameserver"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/portal"
	"github.com/nabbar/nocrt/rmemserver"
	"github.com/nabbar/nocrt/transport/memnet"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "rmemd",
		Short: "Run a remote-memory block server for a nocrt fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "rmemd.yaml", "path to the configuration file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, v, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:  "rmemd",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})

	if v != nil {
		v.OnConfigChange(func(e fsnotify.Event) {
			if lvl := v.GetString("log_level"); lvl != "" {
				log.SetLevel(hclog.LevelFromString(lvl))
				log.Info("log level reloaded", "level", lvl, "op", e.Op.String())
			}
		})
		v.WatchConfig()
	}

	topo := noc.NewTopology(cfg.NumNodes, cfg.IONodes)
	self := noc.NodeId(cfg.Self)

	// Shared in-process Fabric: see the same caveat in cmd/nameserverd.
	// rmemd only resolves names against a nameserverd sharing this Fabric
	// instance, so the two daemons must be launched inside one process
	// (or future work must replace memnet with a networked Transport).
	fab := memnet.New()

	names := nameserver.NewClient(self, noc.NodeId(cfg.NameServerNode), topo, fab)

	mbx := mailbox.New(self, topo, fab, names, cfg.PoolSize)
	prt := portal.New(self, topo, fab, cfg.PoolSize)

	srv, serr := rmemserver.NewServer(os.Getpid(), self, topo, mbx, prt, fab, log, cfg.NBlocks, cfg.ServerID, cfg.NServers)
	if serr != nil {
		return serr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("rmem server listening", "node", int(self), "blocks", cfg.NBlocks, "server_id", cfg.ServerID)
		if rerr := srv.Serve(gctx); rerr != nil {
			return rerr
		}
		return nil
	})

	return g.Wait()
}
