package irc

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Numeric replies the session reacts to.
const (
	rplWelcome       = "001"
	errNicknameInUse = "433"
)

// Phase is the lifecycle phase of a session.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseHandshaking
	PhaseReady
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseReady:
		return "ready"
	case PhaseClosing:
		return "closing"
	}
	return "unknown"
}

// SessionConfig is the fully resolved configuration for one session.
// The core performs no environment or secret-store lookups; whatever
// resolution is needed happens before this value is built.
type SessionConfig struct {
	Host string
	Port int
	TLS  bool

	Nick     string
	Username string
	RealName string

	// ServerPass is sent as PASS before registration when set.
	ServerPass string

	Channels []string

	// NickservPass, when set, is sent as an IDENTIFY message to
	// NickservService right after the welcome reply.
	NickservPass    string
	NickservService string

	AutoReconnect  bool
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration

	// ChunkLimit bounds the length, in characters, of one outbound
	// message chunk.
	ChunkLimit int
}

// ChatEvent is one inbound chat message, as handed to listeners.
type ChatEvent struct {
	ID     string
	From   Identity
	Target string
	Direct bool
	Text   string
	Time   time.Time
}

// session is the protocol state machine for one connection. It consumes
// parsed lines and reacts by sending commands through the supervisor's
// single write path and by emitting chat events. It never touches the
// transport directly.
type session struct {
	cfg SessionConfig

	mu    sync.Mutex
	phase Phase
	nick  string

	send func(Line)
	emit func(ChatEvent)
}

func newSession(cfg SessionConfig, send func(Line), emit func(ChatEvent)) *session {
	return &session{
		cfg:  cfg,
		nick: cfg.Nick,
		send: send,
		emit: emit,
	}
}

func (s *session) state() (Phase, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.nick
}

func (s *session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// begin runs the registration handshake, right after the transport
// opened: optional PASS, then NICK and USER.
func (s *session) begin() {
	s.mu.Lock()
	s.nick = s.cfg.Nick
	s.mu.Unlock()

	if s.cfg.ServerPass != "" {
		s.send(Line{Command: "PASS", Params: []string{s.cfg.ServerPass}})
	}
	s.send(Line{Command: "NICK", Params: []string{s.cfg.Nick}})
	s.send(Line{Command: "USER", Params: []string{s.cfg.Username, "0", "*"}, Trailing: s.cfg.RealName, HasTrailing: true})

	s.setPhase(PhaseHandshaking)
}

// closed resets the session after the transport went away.
func (s *session) closed() {
	s.setPhase(PhaseDisconnected)
}

func (s *session) handle(l Line) {
	switch l.Command {
	case rplWelcome:
		s.onWelcome(l)
	case errNicknameInUse:
		s.onNickInUse()
	case "PING":
		s.onPing(l)
	case "PRIVMSG":
		s.onPrivMsg(l)
	case "NICK":
		s.onNickChange(l)
	case "JOIN":
		s.onJoin(l)
	case "ERROR":
		// The server closes the transport right after; teardown
		// happens on the EOF that follows.
		log.Printf("Server error: %s", l.Trailing)
	}
}

func (s *session) onWelcome(l Line) {
	s.mu.Lock()
	if len(l.Params) > 0 && l.Params[0] != "" {
		s.nick = l.Params[0]
	}
	s.phase = PhaseReady
	nick := s.nick
	s.mu.Unlock()

	log.Printf("Registered with server as %s", nick)

	if s.cfg.NickservPass != "" {
		s.send(Line{
			Command:     "PRIVMSG",
			Params:      []string{s.cfg.NickservService},
			Trailing:    "IDENTIFY " + s.cfg.NickservPass,
			HasTrailing: true,
		})
	}

	for _, ch := range s.cfg.Channels {
		s.send(Line{Command: "JOIN", Params: []string{ch}})
	}
}

// onNickInUse mutates the working nickname and retries, once per
// rejection. There is no attempt cap: every retry changes the nick, so
// the server accepts a sufficiently unique one eventually.
func (s *session) onNickInUse() {
	s.mu.Lock()
	if s.phase == PhaseReady {
		s.mu.Unlock()
		return
	}
	s.nick += "_"
	next := s.nick
	s.mu.Unlock()

	log.Printf("Nick in use, retrying as %s", next)
	s.send(Line{Command: "NICK", Params: []string{next}})
}

func (s *session) onPing(l Line) {
	token := l.Trailing
	if !l.HasTrailing && len(l.Params) > 0 {
		token = l.Params[0]
	}
	s.send(Line{Command: "PONG", Trailing: token, HasTrailing: true})
}

func (s *session) onPrivMsg(l Line) {
	if len(l.Params) < 1 {
		return
	}
	target := l.Params[0]
	text := l.Trailing
	if !l.HasTrailing {
		if len(l.Params) < 2 {
			return
		}
		text = l.Params[1]
	}

	s.mu.Lock()
	me := s.nick
	s.mu.Unlock()

	direct := !IsChannel(target)
	if direct && !strings.EqualFold(target, me) {
		return
	}

	s.emit(ChatEvent{
		ID:     uuid.New().String(),
		From:   ParsePrefix(l.Prefix),
		Target: target,
		Direct: direct,
		Text:   text,
		Time:   time.Now(),
	})
}

// onNickChange tracks a server-forced rename of our own nick.
func (s *session) onNickChange(l Line) {
	next := l.Trailing
	if !l.HasTrailing {
		if len(l.Params) < 1 {
			return
		}
		next = l.Params[0]
	}
	if next == "" {
		return
	}

	from := ParsePrefix(l.Prefix)
	s.mu.Lock()
	if strings.EqualFold(from.Nick, s.nick) {
		s.nick = next
	}
	s.mu.Unlock()
}

func (s *session) onJoin(l Line) {
	ch := l.Trailing
	if !l.HasTrailing && len(l.Params) > 0 {
		ch = l.Params[0]
	}

	from := ParsePrefix(l.Prefix)
	s.mu.Lock()
	mine := strings.EqualFold(from.Nick, s.nick)
	s.mu.Unlock()

	if mine && ch != "" {
		log.Printf("Joined %s", ch)
	}
}
