package irc

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func listenerPort(ln net.Listener) int {
	return ln.Addr().(*net.TCPAddr).Port
}

func expectLine(t *testing.T, lines <-chan string, prefix string) string {
	t.Helper()
	select {
	case line := <-lines:
		if !strings.HasPrefix(line, prefix) {
			t.Fatalf("Expected line starting with %q, got %q", prefix, line)
		}
		return line
	case <-time.After(3 * time.Second):
		t.Fatalf("Timed out waiting for %q", prefix)
		return ""
	}
}

func waitPhase(t *testing.T, c *Client, want Phase) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().Phase == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Phase never reached %v, stuck at %v", want, c.Status().Phase)
}

// serveOnce accepts one connection, forwards every inbound line and
// replies with a welcome once registration completes.
func serveOnce(t *testing.T, ln net.Listener, lines chan<- string) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			line := sc.Text()
			lines <- line
			if strings.HasPrefix(line, "USER ") {
				fmt.Fprintf(conn, ":irc.test 001 bridge :Welcome\r\n")
			}
		}
	}()
}

func TestConnectHandshakeAndSend(t *testing.T) {
	ln := listen(t)
	lines := make(chan string, 64)
	serveOnce(t, ln, lines)

	c := NewClient(SessionConfig{
		Host:     "127.0.0.1",
		Port:     listenerPort(ln),
		Nick:     "bridge",
		Channels: []string{"#chan"},
	})
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	expectLine(t, lines, "NICK bridge")
	expectLine(t, lines, "USER bridge")
	expectLine(t, lines, "JOIN #chan")
	waitPhase(t, c, PhaseReady)

	st := c.Status()
	if st.Nick != "bridge" || st.Since.IsZero() || st.LastErr != nil {
		t.Errorf("Unexpected status: %+v", st)
	}

	if err := c.Send("#chan", "hello there"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	expectLine(t, lines, "PRIVMSG #chan :hello there")
}

func TestStartWhileActive(t *testing.T) {
	ln := listen(t)
	lines := make(chan string, 64)
	serveOnce(t, ln, lines)

	c := NewClient(SessionConfig{Host: "127.0.0.1", Port: listenerPort(ln), Nick: "bridge"})
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	if err := c.Start(); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("Expected ErrAlreadyConnected, got %v", err)
	}
}

func TestStopSendsQuitAndIsIdempotent(t *testing.T) {
	ln := listen(t)
	lines := make(chan string, 64)
	serveOnce(t, ln, lines)

	c := NewClient(SessionConfig{Host: "127.0.0.1", Port: listenerPort(ln), Nick: "bridge"})
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitPhase(t, c, PhaseReady)

	c.Stop()
	found := false
	for !found {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, "QUIT") {
				found = true
			}
		case <-time.After(3 * time.Second):
			t.Fatal("Server never saw QUIT")
		}
	}

	waitPhase(t, c, PhaseDisconnected)
	c.Stop()
	waitPhase(t, c, PhaseDisconnected)
}

func TestReconnectAfterAbruptClosure(t *testing.T) {
	ln := listen(t)
	accepts := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepts <- conn
		}
	}()

	c := NewClient(SessionConfig{
		Host:           "127.0.0.1",
		Port:           listenerPort(ln),
		Nick:           "bridge",
		AutoReconnect:  true,
		ReconnectDelay: 50 * time.Millisecond,
	})
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	var first net.Conn
	select {
	case first = <-accepts:
	case <-time.After(3 * time.Second):
		t.Fatal("Server never saw the first connection")
	}

	// Abrupt server-side closure must trigger one delayed redial
	first.Close()
	select {
	case conn := <-accepts:
		conn.Close()
	case <-time.After(3 * time.Second):
		t.Fatal("Client never reconnected")
	}
}

func TestNoReconnectWhenDisabled(t *testing.T) {
	ln := listen(t)
	accepts := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepts <- conn
		}
	}()

	c := NewClient(SessionConfig{
		Host:           "127.0.0.1",
		Port:           listenerPort(ln),
		Nick:           "bridge",
		AutoReconnect:  false,
		ReconnectDelay: 50 * time.Millisecond,
	})
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	first := <-accepts
	first.Close()
	waitPhase(t, c, PhaseDisconnected)

	select {
	case <-accepts:
		t.Fatal("Client reconnected although auto-reconnect is off")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestConnectRefused(t *testing.T) {
	// Grab a port that nothing listens on
	ln := listen(t)
	port := listenerPort(ln)
	ln.Close()

	c := NewClient(SessionConfig{Host: "127.0.0.1", Port: port, Nick: "bridge"})
	err := c.Start()
	if err == nil {
		c.Stop()
		t.Fatal("Start against a dead port succeeded")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected ConnectError, got %T: %v", err, err)
	}

	st := c.Status()
	if st.Phase != PhaseDisconnected || st.LastErr == nil {
		t.Errorf("Unexpected status after refusal: %+v", st)
	}
}
