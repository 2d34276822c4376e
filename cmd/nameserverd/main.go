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

// Command nameserverd runs a standalone name-resolution node for a
// simulated network-on-chip machine. It boots the control mailbox at
// its own node, reserving the well-known path that the rest of the
// fleet uses to resolve mailbox and portal names to node ids.
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
	"github.com/nabbar/nocrt/transport/memnet"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "nameserverd",
		Short: "Run the name-resolution server for a nocrt fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "nameserverd.yaml", "path to the configuration file")

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
		Name:  "nameserverd",
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

	// memnet.Fabric is an in-process transport: every node sharing this
	// Fabric instance must live in this same process. A real multi-process
	// deployment would need a Transport backed by a socket or NoC-level
	// interconnect driver in its place; none is built in this repo, so
	// nameserverd and any peer daemon sharing it only make sense as
	// goroutines of a single launcher process, not as independent binaries.
	fab := memnet.New()

	mbx := mailbox.New(self, topo, fab, nil, cfg.PoolSize)

	srv, serr := nameserver.NewServer(os.Getpid(), self, topo, mbx, fab, log)
	if serr != nil {
		return serr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("nameserver listening", "node", int(self), "nodes", cfg.NumNodes)
		if rerr := srv.Serve(gctx); rerr != nil {
			return rerr
		}
		return nil
	})

	return g.Wait()
}
