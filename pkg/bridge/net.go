package bridge

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/internal/logging"
)

const maxFrameSize = 1 << 20

// NetOption configures a Net bridge.
type NetOption func(*netConfig)

type netConfig struct {
	poolSize    int
	callBuffer  int
	dialElapsed time.Duration
}

func defaultNetConfig() netConfig {
	return netConfig{
		poolSize:    8,
		callBuffer:  64,
		dialElapsed: 15 * time.Second,
	}
}

// WithPoolSize caps the number of concurrently served connections.
func WithPoolSize(n int) NetOption {
	return func(c *netConfig) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithCallBuffer sizes the inbound call channel.
func WithCallBuffer(n int) NetOption {
	return func(c *netConfig) {
		if n > 0 {
			c.callBuffer = n
		}
	}
}

// WithDialTimeout bounds how long Dial keeps retrying before giving up.
func WithDialTimeout(d time.Duration) NetOption {
	return func(c *netConfig) {
		if d > 0 {
			c.dialElapsed = d
		}
	}
}

// Net is a TCP bridge. Frames are newline-delimited JSON: inbound lines are
// api.InboundCall, outbound lines are api.OutboundEvent. Connection handlers
// run on a worker pool; a broadcast goes to every live connection.
type Net struct {
	ln    net.Listener
	pool  *ants.Pool
	calls chan api.InboundCall
	log   *logging.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen starts a bridge accepting peer connections on addr.
func Listen(addr string, opts ...NetOption) (*Net, error) {
	cfg := defaultNetConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	n, err := newNet(cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	n.ln = ln
	n.wg.Add(1)
	go n.acceptLoop()
	return n, nil
}

// Dial starts a bridge connected to the host at addr, retrying with
// exponential backoff until the configured dial timeout elapses.
func Dial(addr string, opts ...NetOption) (*Net, error) {
	cfg := defaultNetConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	var conn net.Conn
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.dialElapsed
	err := backoff.Retry(func() error {
		var dialErr error
		conn, dialErr = net.Dial("tcp", addr)
		return dialErr
	}, bo)
	if err != nil {
		return nil, err
	}
	n, err := newNet(cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	n.track(conn)
	if err := n.submitServe(conn); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func newNet(cfg netConfig) (*Net, error) {
	pool, err := ants.NewPool(cfg.poolSize)
	if err != nil {
		return nil, err
	}
	return &Net{
		pool:   pool,
		calls:  make(chan api.InboundCall, cfg.callBuffer),
		log:    logging.New("bridge/net"),
		conns:  make(map[net.Conn]struct{}),
		closed: make(chan struct{}),
	}, nil
}

// Addr returns the listening address, or nil for a dialed bridge.
func (n *Net) Addr() net.Addr {
	if n.ln == nil {
		return nil
	}
	return n.ln.Addr()
}

// BroadcastSerializedEvent implements api.Bridge. The event is marshaled
// once and written to every live connection; a connection that fails to take
// the write is dropped.
func (n *Net) BroadcastSerializedEvent(ev api.OutboundEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.log.Errorf("marshal %s/%s: %v", ev.Module, ev.Event, err)
		return
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.Write(data)
	_ = buf.WriteByte('\n')

	for _, conn := range n.snapshot() {
		if _, err := conn.Write(buf.B); err != nil {
			n.log.Warnf("write to %s failed, dropping conn: %v", conn.RemoteAddr(), err)
			n.untrack(conn)
			_ = conn.Close()
		}
	}
}

// Calls implements api.Bridge.
func (n *Net) Calls() <-chan api.InboundCall { return n.calls }

// Close tears the bridge down: listener, connections, worker pool. The calls
// channel is closed once all handlers have returned.
func (n *Net) Close() {
	n.closeOnce.Do(func() {
		close(n.closed)
		if n.ln != nil {
			_ = n.ln.Close()
		}
		for _, conn := range n.snapshot() {
			_ = conn.Close()
		}
		n.wg.Wait()
		n.pool.Release()
		close(n.calls)
	})
}

func (n *Net) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			select {
			case <-n.closed:
			default:
				n.log.Errorf("accept: %v", err)
			}
			return
		}
		select {
		case <-n.closed:
			_ = conn.Close()
			return
		default:
		}
		n.track(conn)
		if err := n.submitServe(conn); err != nil {
			n.log.Errorf("submit handler: %v", err)
			n.untrack(conn)
			_ = conn.Close()
		}
	}
}

func (n *Net) submitServe(conn net.Conn) error {
	n.wg.Add(1)
	if err := n.pool.Submit(func() { n.serve(conn) }); err != nil {
		n.wg.Done()
		return err
	}
	return nil
}

// serve reads call frames off one connection until it closes. Malformed
// frames are skipped; the stream stays up.
func (n *Net) serve(conn net.Conn) {
	defer n.wg.Done()
	defer n.untrack(conn)
	defer func() { _ = conn.Close() }()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)
	for scanner.Scan() {
		var call api.InboundCall
		if err := json.Unmarshal(scanner.Bytes(), &call); err != nil {
			n.log.Tracef("skipping malformed frame from %s: %v", conn.RemoteAddr(), err)
			continue
		}
		select {
		case n.calls <- call:
		case <-n.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-n.closed:
		default:
			n.log.Debugf("read from %s: %v", conn.RemoteAddr(), err)
		}
	}
}

func (n *Net) track(conn net.Conn) {
	n.mu.Lock()
	n.conns[conn] = struct{}{}
	n.mu.Unlock()
}

func (n *Net) untrack(conn net.Conn) {
	n.mu.Lock()
	delete(n.conns, conn)
	n.mu.Unlock()
}

func (n *Net) snapshot() []net.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]net.Conn, 0, len(n.conns))
	for conn := range n.conns {
		out = append(out, conn)
	}
	return out
}
