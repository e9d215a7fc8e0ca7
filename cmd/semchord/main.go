// Command semchord runs one node of a semantic service discovery ring.
//
// Configuration comes from SEMCHORD_* environment variables; flags override
// them.
//
// # Usage
//
//	semchord --node-id=n1 --listen=127.0.0.1:7001 --http=127.0.0.1:8001
//	semchord --node-id=n2 --listen=127.0.0.1:7002 --bootstrap=127.0.0.1:7001
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"semchord/internal/app"
	"semchord/internal/config"
	"semchord/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	var (
		nodeID    = flag.String("node-id", cfg.NodeID, "Node name, unique in the ring")
		listen    = flag.String("listen", cfg.ListenAddr, "gRPC listen address")
		advertise = flag.String("advertise", cfg.AdvertiseAddr, "Address peers dial (defaults to --listen)")
		httpAddr  = flag.String("http", cfg.HTTPAddr, "Operator HTTP address (empty disables)")
		peers     = flag.String("peers", "", "Ring members as id=addr,id=addr")
		bootstrap = flag.String("bootstrap", cfg.Bootstrap, "Address of a ring member to join through")
		seedFile  = flag.String("seed-file", cfg.SeedFile, "YAML file of entries to insert at startup")
		logLevel  = flag.String("log-level", cfg.LogLevel, "debug | info | warn | error")
	)
	flag.Parse()

	cfg.NodeID = *nodeID
	cfg.ListenAddr = *listen
	cfg.AdvertiseAddr = *advertise
	cfg.HTTPAddr = *httpAddr
	cfg.Bootstrap = *bootstrap
	cfg.SeedFile = *seedFile
	cfg.LogLevel = *logLevel
	if *peers != "" {
		if cfg.Peers, err = config.ParsePeers(*peers); err != nil {
			fmt.Fprintf(os.Stderr, "invalid --peers: %v\n", err)
			os.Exit(1)
		}
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Errorf("semchord failed to start: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Errorf("semchord stopped with error: %v", err)
		os.Exit(1)
	}
}
