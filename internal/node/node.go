// Package node wires every other package into one running process: the
// listener, the dispatcher, the election engine, the courier pool, the
// failure detector, and (optionally) the feigned-failure driver. Grounded
// on gateway_controller/internal/server/server.go's Server, generalized
// from a single serial accept loop to concurrent listener dispatch plus
// background detector/feigner goroutines.
package node

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/distrolab/bully-node/internal/config"
	"github.com/distrolab/bully-node/internal/courier"
	"github.com/distrolab/bully-node/internal/detector"
	"github.com/distrolab/bully-node/internal/dispatcher"
	"github.com/distrolab/bully-node/internal/election"
	"github.com/distrolab/bully-node/internal/feigned"
	"github.com/distrolab/bully-node/internal/gcd"
	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/logger"
	"github.com/distrolab/bully-node/internal/netconn"
)

// Options carries everything the CLI entry point has already resolved:
// own identity, the address to listen on, the GCD to join through, and
// the loaded Config.
type Options struct {
	Self      identity.Identity
	ListenHost string
	ListenPort int
	GCDAddr   string
	Config    *config.Config
}

// Node is the fully-wired process. Run blocks until shutdown.
type Node struct {
	opts Options

	table  *identity.Table
	pool   *courier.Pool
	engine *election.Engine
	gcd    *gcd.Client

	mu       sync.Mutex
	listener *netconn.Listener
	disp     *dispatcher.Dispatcher

	detector *detector.Detector
	feigner  *feigned.Driver

	shutdownOnce sync.Once
	cancel       context.CancelFunc
}

// New builds a Node but does not bind the listener or contact the GCD —
// call Run for that.
func New(opts Options) *Node {
	selfAddr := identity.Address{Host: opts.ListenHost, Port: opts.ListenPort}
	table := identity.NewTable(selfAddr, opts.Self)
	pool := courier.New(opts.Config.TConnect, opts.Config.TBully)
	engine := election.New(table, pool, election.Config{
		TBully:    opts.Config.TBully,
		TFollower: opts.Config.TFollower,
	})

	n := &Node{
		opts:   opts,
		table:  table,
		pool:   pool,
		engine: engine,
		gcd:    gcd.New(opts.GCDAddr, opts.Config.TConnect),
	}

	// feignerIface is left as a true nil interface when feigning is
	// disabled; assigning the *feigned.Driver field directly would wrap a
	// nil pointer in a non-nil interface and crash the dispatcher's nil
	// check.
	var feignerIface dispatcher.Feigner
	if opts.Config.FeignedFailure {
		n.feigner = feigned.New(engine, n, n)
		pool.SetFeigner(n.feigner)
		feignerIface = n.feigner
	}
	n.disp = dispatcher.New(engine, feignerIface, opts.Config.TConnect)
	n.detector = detector.New(table, pool, engine, n, opts.Config.ProbeMinInterval, opts.Config.ProbeMaxInterval)

	return n
}

// Rejoin implements detector.Rejoiner and feigned.Rejoiner: re-HOWDY the
// GCD and merge whatever membership comes back.
func (n *Node) Rejoin() error {
	selfAddr, selfID := n.table.Self()
	members, err := n.gcd.Join(selfAddr, selfID)
	if err != nil {
		return err
	}
	n.table.Merge(members)
	return nil
}

// Relisten implements feigned.Relistener: rebind the listener on the same
// address after a simulated recovery. If that bind fails — the OS may not
// have released the old port yet — it falls back to an OS-assigned port
// rather than leave the node with no listener at all. (A bind failure at
// startup has no such fallback: Run returns it.)
func (n *Node) Relisten() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listener != nil {
		_ = n.listener.Close()
	}
	ln, err := netconn.Listen(identity.Address{Host: n.opts.ListenHost, Port: n.opts.ListenPort}.String())
	if err != nil {
		logger.Get().Warnw("node: relisten on original port failed, falling back to an OS-assigned port", "err", err)
		ln, err = netconn.Listen(identity.Address{Host: n.opts.ListenHost, Port: 0}.String())
		if err != nil {
			return err
		}
	}
	n.listener = ln
	n.rebindSelfToBoundAddr(ln)
	go n.serve(ln)
	return nil
}

// rebindSelfToBoundAddr updates the membership table's self entry to match
// whatever port the listener is actually bound to, a no-op when that is
// already self's address (a fixed, non-zero ListenPort that bound
// successfully).
func (n *Node) rebindSelfToBoundAddr(ln *netconn.Listener) {
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return
	}
	n.table.RebindSelf(identity.Address{Host: n.opts.ListenHost, Port: tcpAddr.Port})
}

// Run performs the initial HOWDY, binds the listener, starts the first
// election, and blocks until SIGINT/SIGTERM or ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	ln, err := netconn.Listen(identity.Address{Host: n.opts.ListenHost, Port: n.opts.ListenPort}.String())
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.listener = ln
	n.mu.Unlock()
	n.rebindSelfToBoundAddr(ln)
	go n.serve(ln)

	if err := n.Rejoin(); err != nil {
		return err
	}

	n.setupGracefulShutdown(cancel)

	go n.detector.Run(ctx)
	if n.feigner != nil {
		go n.feigner.Run(ctx)
	}

	n.engine.StartElection("join")

	<-ctx.Done()
	n.Shutdown()
	return nil
}

func (n *Node) serve(ln *netconn.Listener) {
	if err := ln.Serve(n.disp.Handle); err != nil {
		logger.Get().Errorw("node: listener serve error", "err", err)
	}
}

func (n *Node) setupGracefulShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Get().Infow("node: shutdown signal received")
		cancel()
	}()
}

// Shutdown closes the listener and stops background loops. Safe to call
// more than once.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.mu.Lock()
		if n.listener != nil {
			_ = n.listener.Close()
		}
		n.mu.Unlock()
		if n.cancel != nil {
			n.cancel()
		}
		logger.Get().Infow("node: shutdown complete")
	})
}

// Engine exposes the election engine for observability (e.g. status CLI
// flags or tests).
func (n *Node) Engine() *election.Engine {
	return n.engine
}

// ListenAddr returns the address this node is currently announcing itself
// at, which can differ from opts.ListenPort after an OS-assigned port or a
// feigned-recovery fallback bind.
func (n *Node) ListenAddr() identity.Address {
	addr, _ := n.table.Self()
	return addr
}
