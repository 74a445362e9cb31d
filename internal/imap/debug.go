package imap

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
)

const redacted = "<redacted>"

var literalHeader = regexp.MustCompile(`\{(\d+)\+?\}\r?\n$`)

// NewWireTrace returns a go-imap debug writer that copies the exchange to w
// line by line. LOGIN arguments and SASL responses sent by the client are
// replaced, literals included.
func NewWireTrace(w io.Writer) io.Writer {
	client, server := newWireSides(w)
	return imap.NewDebugWriter(client, server)
}

func newWireSides(w io.Writer) (client, server *wireSide) {
	t := &wireTrace{w: w}
	return &wireSide{trace: t, client: true}, &wireSide{trace: t}
}

type wireTrace struct {
	mu sync.Mutex
	w  io.Writer
}

// wireSide buffers one direction of the exchange. Only the client side
// carries credentials.
type wireSide struct {
	trace  *wireTrace
	client bool
	buf    []byte

	inLogin bool // LOGIN continues after a literal
	inAuth  bool // AUTHENTICATE waits for SASL responses
	literal int  // literal bytes still to swallow
}

func (s *wireSide) Write(p []byte) (int, error) {
	s.trace.mu.Lock()
	defer s.trace.mu.Unlock()

	s.buf = append(s.buf, p...)
	for {
		if s.literal > 0 {
			n := min(s.literal, len(s.buf))
			s.buf = s.buf[n:]
			s.literal -= n
			if s.literal > 0 {
				break
			}
		}
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := string(s.buf[:i+1])
		s.buf = s.buf[i+1:]
		if s.client {
			line = s.redact(line)
		}
		if line == "" {
			continue
		}
		if _, err := io.WriteString(s.trace.w, line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func (s *wireSide) redact(line string) string {
	if s.inLogin {
		s.expectLiteral(line)
		return ""
	}

	fields := strings.Fields(line)
	if s.inAuth {
		switch len(fields) {
		case 0:
			return line
		case 1:
			return redacted + "\r\n"
		}
		s.inAuth = false
	}
	if len(fields) < 2 {
		return line
	}

	switch strings.ToUpper(fields[1]) {
	case "LOGIN":
		s.expectLiteral(line)
		return fields[0] + " LOGIN " + redacted + "\r\n"
	case "AUTHENTICATE":
		s.inAuth = true
		if len(fields) > 3 {
			return strings.Join(fields[:3], " ") + " " + redacted + "\r\n"
		}
	}
	return line
}

// expectLiteral arms the literal counter when line announces one. The
// command goes on after the literal bytes.
func (s *wireSide) expectLiteral(line string) {
	m := literalHeader.FindStringSubmatch(line)
	if m == nil {
		s.inLogin = false
		return
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		s.inLogin = false
		return
	}
	s.literal = n
	s.inLogin = true
}
