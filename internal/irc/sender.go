package irc

import "strings"

// Send delivers text to a channel or user, split into chunks no longer
// than the configured limit. Embedded line breaks are normalized to
// spaces first. Blank text is a no-op; chunks of one call are written
// in order and never interleaved with another call's.
func (c *Client) Send(target, text string) error {
	if phase, _ := c.sess.state(); phase != PhaseReady {
		return ErrNotConnected
	}

	chunks := splitChunks(text, c.cfg.ChunkLimit)
	if len(chunks) == 0 {
		return nil
	}

	c.smu.Lock()
	defer c.smu.Unlock()
	for _, chunk := range chunks {
		l := Line{Command: "PRIVMSG", Params: []string{target}, Trailing: chunk, HasTrailing: true}
		if err := c.writeLine(l); err != nil {
			return err
		}
	}
	return nil
}

var breakReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// splitChunks normalizes line breaks to spaces and slices the result
// into chunks of at most limit characters. The limit counts runes so a
// multi-byte character is never split.
func splitChunks(text string, limit int) []string {
	text = strings.TrimSpace(breakReplacer.Replace(text))
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(chunks, string(runes))
}
