package irc

import (
	"bytes"
	"strings"
)

// Line is one protocol line, parsed or about to be serialized.
// Trailing is kept separate from Params so that a parameter containing
// spaces survives a round trip.
type Line struct {
	Prefix      string
	Command     string
	Params      []string
	Trailing    string
	HasTrailing bool
}

// Framer splits a raw byte stream into complete lines. An incomplete
// fragment at the end of a chunk is carried over to the next Feed call,
// so the split is independent of how the transport delivers bytes.
type Framer struct {
	buf []byte
}

// Feed appends p to the internal buffer and returns every complete line
// it now holds, without the line terminator.
func (f *Framer) Feed(p []byte) []string {
	f.buf = append(f.buf, p...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		raw := strings.TrimSuffix(string(f.buf[:i]), "\r")
		f.buf = f.buf[i+1:]
		if raw != "" {
			lines = append(lines, raw)
		}
	}
	return lines
}

func cutWord(s string) (word, rest string) {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], strings.TrimLeft(s[i+1:], " ")
	}
	return s, ""
}

// ParseLine parses a single raw line. It never fails: a malformed line
// yields a Line with an empty Command, which the caller drops. One bad
// line from the server must not take the connection down.
func ParseLine(raw string) Line {
	var l Line

	rest := strings.TrimLeft(raw, " ")
	if rest == "" {
		return l
	}

	if rest[0] == ':' {
		var prefix string
		prefix, rest = cutWord(rest)
		l.Prefix = prefix[1:]
	}
	if rest == "" {
		return l
	}

	var cmd string
	cmd, rest = cutWord(rest)
	l.Command = strings.ToUpper(cmd)

	for rest != "" {
		if rest[0] == ':' {
			l.Trailing = rest[1:]
			l.HasTrailing = true
			break
		}
		var param string
		param, rest = cutWord(rest)
		l.Params = append(l.Params, param)
	}

	return l
}

// stripBreaks removes embedded line terminators so a caller-controlled
// string can never inject a second protocol line.
func stripBreaks(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// String serializes the line without its terminator.
func (l Line) String() string {
	var b strings.Builder
	if l.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(stripBreaks(l.Prefix))
		b.WriteByte(' ')
	}
	b.WriteString(stripBreaks(l.Command))
	for _, p := range l.Params {
		b.WriteByte(' ')
		b.WriteString(stripBreaks(p))
	}
	if l.HasTrailing || l.Trailing != "" {
		b.WriteString(" :")
		b.WriteString(stripBreaks(l.Trailing))
	}
	return b.String()
}

// Bytes serializes the line as wire bytes, terminator included.
func (l Line) Bytes() []byte {
	return append([]byte(l.String()), '\r', '\n')
}

// Identity is the sender of an inbound line, split out of a
// nick[!user][@host] prefix.
type Identity struct {
	Nick string
	User string
	Host string
}

// ParsePrefix splits a prefix into its identity parts. User and Host
// stay empty when the prefix carries only a nick (or a server name).
func ParsePrefix(prefix string) Identity {
	id := Identity{Nick: prefix}
	if i := strings.IndexByte(id.Nick, '@'); i >= 0 {
		id.Host = id.Nick[i+1:]
		id.Nick = id.Nick[:i]
	}
	if i := strings.IndexByte(id.Nick, '!'); i >= 0 {
		id.User = id.Nick[i+1:]
		id.Nick = id.Nick[:i]
	}
	return id
}

// IsChannel reports whether target names a group conversation rather
// than a single user.
func IsChannel(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}
