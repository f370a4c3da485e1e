package netconn

import (
	"net"

	"github.com/pkg/errors"
)

// Listener accepts inbound TCP connections and hands each to a fresh
// handler goroutine, so a single slow client never blocks any other
// (spec.md §4.2). Grounded on
// gateway/internal/network/connection_manager.go's connectionManager,
// generalized here to concurrent per-connection dispatch instead of
// serving one client at a time.
type Listener struct {
	ln net.Listener
}

// Listen binds a TCP listener on addr. Pass ":0" (or an address with port
// 0) to let the OS assign a port.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "netconn: bind listener")
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound address, useful when addr was ":0".
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until the listener is closed, invoking handle
// in a new goroutine per connection. It returns nil when Close causes
// Accept to fail (graceful shutdown), and any other Accept error
// otherwise.
func (l *Listener) Serve(handle func(*Conn)) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if isClosedError(err) {
				return nil
			}
			return err
		}
		go handle(FromAccepted(conn))
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
