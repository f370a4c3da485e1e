package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/distrolab/bully-node/internal/config"
	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/logger"
	"github.com/distrolab/bully-node/internal/node"
)

func main() {
	gcdHost := flag.String("gcd-host", "127.0.0.1", "GCD host")
	gcdPort := flag.Int("gcd-port", 9090, "GCD port")
	listenHost := flag.String("listen-host", "0.0.0.0", "address to listen on for peer traffic")
	listenPort := flag.Int("listen-port", 0, "port to listen on for peer traffic (0 picks any free port)")
	days := flag.Int("days", -1, "days until this node's birthday, the first half of its identity")
	studentID := flag.Int("student-id", -1, "student id, the tiebreaker half of this node's identity")
	configFile := flag.String("config", "", "path to config.yaml (optional)")
	feignFlag := flag.Bool("feigned-failure", false, "enable the feigned-failure driver, overriding config")
	flag.Parse()

	if *days < 0 || *studentID < 0 {
		fmt.Fprintln(os.Stderr, "bullynode: --days and --student-id are required")
		os.Exit(2)
	}

	cfg, err := config.InitConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bullynode: config: %v\n", err)
		os.Exit(1)
	}
	if *feignFlag {
		cfg.FeignedFailure = true
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "bullynode: logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	opts := node.Options{
		Self:       identity.Identity{Days: *days, StudentID: *studentID},
		ListenHost: *listenHost,
		ListenPort: *listenPort,
		GCDAddr:    identity.Address{Host: *gcdHost, Port: *gcdPort}.String(),
		Config:     cfg,
	}

	log.Infow("bullynode: starting", "self", opts.Self.String(), "gcd", opts.GCDAddr)

	n := node.New(opts)
	if err := n.Run(context.Background()); err != nil {
		log.Errorw("bullynode: exiting with error", "err", err)
		os.Exit(1)
	}
	log.Infow("bullynode: exited cleanly")
}
