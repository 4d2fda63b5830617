// Copyright 2025 The Starknet-Erigon Authors
// This file is part of Starknet-Erigon.
//
// Starknet-Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Starknet-Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Starknet-Erigon. If not, see <http://www.gnu.org/licenses/>.

// Command starknet-erigon runs the sync pipeline against a chain store,
// wiring together storage, the driver and the SQMR session layer. The
// feeder-gateway/L1 JSON-RPC clients those depend on are external
// collaborators (§6) this repository only declares interfaces for; --dev
// swaps in a small in-memory generator for local smoke-testing in their
// place, the same way `--dev` faucet chains work in other Go node CLIs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/spf13/cobra"

	"github.com/erigontech/starknet-erigon/central"
	"github.com/erigontech/starknet-erigon/l1"
	"github.com/erigontech/starknet-erigon/rpc"
	"github.com/erigontech/starknet-erigon/sqmr"
	"github.com/erigontech/starknet-erigon/storage"
	syncpkg "github.com/erigontech/starknet-erigon/sync"
)

type nodeFlags struct {
	datadir             string
	chainID             string
	pollInterval        time.Duration
	maxBaseLayerReverts uint64
	dev                 bool
	sqmrProtocol        string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "starknet-erigon",
		Short: "Starknet full-node sync pipeline",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	flags := &nodeFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the chain store and drive the sync pipeline forward",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), flags)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flags.datadir, "datadir", "./chaindata", "chain store directory")
	fs.StringVar(&flags.chainID, "chain-id", "SN_MAIN", "Starknet chain id this store was opened for")
	fs.DurationVar(&flags.pollInterval, "poll-interval", syncpkg.DefaultConfig().PollInterval, "base interval between feeder/L1 polls when idle")
	fs.Uint64Var(&flags.maxBaseLayerReverts, "max-base-layer-reverts", syncpkg.DefaultConfig().MaxBaseLayerReverts, "distinct base-layer hash mismatches tolerated before treating disagreement with L1 as fatal")
	fs.BoolVar(&flags.dev, "dev", false, "drive the pipeline against an in-memory generated chain instead of a real feeder/L1 connection")
	fs.StringVar(&flags.sqmrProtocol, "sqmr-protocol", "/starknet/sqmr/headers/1", "protocol name this node advertises support for as an SQMR inbound responder")
	return cmd
}

func runNode(ctx context.Context, flags *nodeFlags) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New()

	st, err := storage.Open(ctx, storage.Config{Path: flags.datadir, ChainID: flags.chainID}, logger)
	if err != nil {
		return fmt.Errorf("starknet-erigon: open storage: %w", err)
	}
	defer st.Close()

	feeder, l1Adapter, err := buildCollaborators(flags)
	if err != nil {
		return err
	}

	cfg := syncpkg.DefaultConfig()
	cfg.PollInterval = flags.pollInterval
	cfg.MaxBaseLayerReverts = flags.maxBaseLayerReverts

	driver, err := syncpkg.New(ctx, st, feeder, l1Adapter, cfg, logger)
	if err != nil {
		return fmt.Errorf("starknet-erigon: build driver: %w", err)
	}
	driver.SetMetrics(syncpkg.NewMetrics())

	behaviour := sqmr.NewBehaviour()
	behaviour.AddSupportedInboundProtocol(flags.sqmrProtocol)
	behaviour.SetMetrics(sqmr.NewMetrics())
	handler := sqmr.NewHandler(behaviour, nil)
	go pumpSQMR(ctx, handler, logger)

	rpcServer := rpc.New(st, flags.chainID)
	logReadyState(ctx, rpcServer, logger)

	logger.Info("starting sync pipeline", "datadir", flags.datadir, "chain_id", flags.chainID, "dev", flags.dev)
	if err := driver.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("starknet-erigon: driver: %w", err)
	}
	return nil
}

// buildCollaborators returns the feeder/L1 clients the driver polls. A real
// deployment wires in HTTP-backed implementations of central.Client and
// l1.Adapter (out of scope here, §6); --dev exercises the rest of the node
// against devChain instead.
func buildCollaborators(flags *nodeFlags) (central.Client, l1.Adapter, error) {
	if !flags.dev {
		return nil, nil, fmt.Errorf("starknet-erigon: no feeder/L1 client configured; pass --dev for a local smoke test, or embed this package with a real central.Client/l1.Adapter")
	}
	chain := newDevChain(64)
	return chain, chain, nil
}

// pumpSQMR drains the SQMR handler's queue at a steady cadence. A real
// deployment drives this from whatever event loop also feeds the handler
// wire reads (§5's single-threaded cooperative executor); polling here keeps
// the node's SQMR responder live even with no transport yet attached.
func pumpSQMR(ctx context.Context, handler *sqmr.Handler, logger log.Logger) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := handler.Pump(ctx); err != nil {
				logger.Warn("sqmr handler pump failed", "err", err)
			}
		}
	}
}

func logReadyState(ctx context.Context, server *rpc.Server, logger log.Logger) {
	n, err := server.BlockNumber(ctx)
	if err != nil {
		logger.Info("rpc facade ready, no blocks committed yet")
		return
	}
	logger.Info("rpc facade ready", "tip", n)
}
