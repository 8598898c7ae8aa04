package irc

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/chatwire/ircbridge/internal/metrics"
	"golang.org/x/time/rate"
)

// Outbound flood throttle, applied on the single write path. Generous
// burst so the handshake and channel joins go out immediately.
const (
	outInterval = 500 * time.Millisecond
	outBurst    = 16
)

const quitMessage = "Shutting down"

// Client supervises one IRC connection: it owns the transport, wires
// the codec and the session state machine to it, and schedules
// reconnects. At most one transport connection is live at any time.
type Client struct {
	cfg SessionConfig

	mu         sync.Mutex
	conn       net.Conn
	active     bool
	closing    bool
	since      time.Time
	lastErr    error
	retry      *time.Timer
	cancelDial context.CancelFunc

	// wmu serializes every transport write; no other component
	// touches the connection directly.
	wmu     sync.Mutex
	limiter *rate.Limiter

	// smu keeps the chunks of one Send call contiguous.
	smu sync.Mutex

	sess       *session
	dispatcher *dispatcher
}

// Status is an on-demand snapshot of the session.
type Status struct {
	Phase    Phase
	Nick     string
	Channels []string
	Since    time.Time
	LastErr  error
}

// NewClient builds a client from a resolved session config, applying
// defaults for the zero-valued knobs.
func NewClient(cfg SessionConfig) *Client {
	if cfg.Port == 0 {
		if cfg.TLS {
			cfg.Port = 6697
		} else {
			cfg.Port = 6667
		}
	}
	if cfg.Username == "" {
		cfg.Username = cfg.Nick
	}
	if cfg.RealName == "" {
		cfg.RealName = cfg.Nick
	}
	if cfg.NickservService == "" {
		cfg.NickservService = "NickServ"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 10 * time.Second
	}
	if cfg.ChunkLimit == 0 {
		cfg.ChunkLimit = 350
	}

	c := &Client{
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Every(outInterval), outBurst),
		dispatcher: newDispatcher(),
	}
	c.sess = newSession(cfg, c.sendLine, c.publish)
	return c
}

// Subscribe registers a listener for inbound chat events and returns
// its cancel function.
func (c *Client) Subscribe(fn Listener) func() {
	return c.dispatcher.subscribe(fn)
}

// Status reports the current phase, working nick and last error.
func (c *Client) Status() Status {
	phase, nick := c.sess.state()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Phase:    phase,
		Nick:     nick,
		Channels: append([]string(nil), c.cfg.Channels...),
		Since:    c.since,
		LastErr:  c.lastErr,
	}
}

// Start opens the transport and kicks off the handshake. It returns
// once the connection is wired up; registration proceeds on the read
// loop. A failed attempt still schedules a reconnect when enabled.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.active = true
	c.closing = false
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	c.sess.setPhase(PhaseConnecting)

	conn, err := c.dial()
	if err != nil {
		c.mu.Lock()
		c.active = false
		stopped := c.closing
		c.lastErr = err
		c.mu.Unlock()
		c.sess.closed()
		if !stopped {
			c.scheduleReconnect()
		}
		return err
	}

	c.mu.Lock()
	if c.closing {
		// Stop raced the dial; give the transport back.
		c.active = false
		c.mu.Unlock()
		conn.Close()
		c.sess.closed()
		return &ConnectError{Err: context.Canceled}
	}
	c.conn = conn
	c.since = time.Now()
	c.lastErr = nil
	c.mu.Unlock()

	metrics.IncConnect()
	metrics.SetConnected(true)
	log.Printf("Connected to %s", conn.RemoteAddr())

	go c.readLoop(conn)
	c.sess.begin()
	return nil
}

func (c *Client) dial() (net.Conn, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	c.mu.Lock()
	c.cancelDial = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancelDial = nil
		c.mu.Unlock()
	}()

	var conn net.Conn
	var err error
	if c.cfg.TLS {
		d := &tls.Dialer{Config: &tls.Config{ServerName: c.cfg.Host}}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrConnectTimeout
		}
		return nil, &ConnectError{Err: err}
	}
	return conn, nil
}

// Stop quits best-effort, closes the transport and cancels any pending
// reconnect. It never fails and is safe to call repeatedly.
func (c *Client) Stop() {
	c.mu.Lock()
	c.closing = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.sess.closed()
		return
	}

	c.sess.setPhase(PhaseClosing)
	c.writeTo(conn, Line{Command: "QUIT", Trailing: quitMessage, HasTrailing: true})
	conn.Close()
}

// readLoop consumes the transport byte stream until it closes, framing
// and parsing lines and feeding them to the state machine in arrival
// order.
func (c *Client) readLoop(conn net.Conn) {
	var fr Framer
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, raw := range fr.Feed(buf[:n]) {
				line := ParseLine(raw)
				if line.Command == "" {
					metrics.IncMalformed()
					log.Printf("Dropping malformed line: %q", raw)
					continue
				}
				metrics.IncLineIn()
				c.sess.handle(line)
			}
		}
		if err != nil {
			c.teardown(conn, err)
			return
		}
	}
}

// teardown runs once per connection, when its read loop exits.
func (c *Client) teardown(conn net.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.active = false
	c.since = time.Time{}
	stopped := c.closing
	if !stopped {
		c.lastErr = err
	}
	c.mu.Unlock()

	conn.Close()
	c.sess.closed()
	metrics.SetConnected(false)

	if stopped {
		log.Printf("Disconnected")
		return
	}

	log.Printf("Connection lost: %v", err)
	metrics.IncDisconnect()
	c.scheduleReconnect()
}

// scheduleReconnect arms the retry timer. The delay is fixed rather
// than exponential: transient server-side failures on this protocol
// are typically brief.
func (c *Client) scheduleReconnect() {
	if !c.cfg.AutoReconnect {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.active || c.retry != nil {
		return
	}

	delay := c.cfg.ReconnectDelay
	log.Printf("Reconnecting in %s", delay)
	c.retry = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retry = nil
		stopped := c.closing
		c.mu.Unlock()
		if stopped {
			return
		}
		metrics.IncReconnect()
		if err := c.Start(); err != nil {
			log.Printf("Reconnect failed: %v", err)
		}
	})
}

// sendLine is the session's outlet onto the write path. Write failures
// surface through the read loop's teardown, so they are only logged
// here.
func (c *Client) sendLine(l Line) {
	if err := c.writeLine(l); err != nil {
		log.Printf("Write failed: %v", err)
	}
}

// writeLine serializes one line onto the transport. All writers funnel
// through here, so lines are never interleaved.
func (c *Client) writeLine(l Line) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.writeTo(conn, l)
}

func (c *Client) writeTo(conn net.Conn, l Line) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.limiter.Wait(context.Background()); err != nil {
		return err
	}
	if _, err := conn.Write(l.Bytes()); err != nil {
		return err
	}
	metrics.IncLineOut()
	return nil
}

func (c *Client) publish(ev ChatEvent) {
	metrics.IncEventOut()
	c.dispatcher.publish(ev)
}
