package transport

import (
	"crypto/tls"
	"net"
)

// Kind identifies how the bytes of a Stream are protected on the wire.
type Kind int

const (
	Plain Kind = iota
	TLS
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case TLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Stream is the connection handed to the protocol client once security
// negotiation has finished. Its kind is fixed for the life of the session.
type Stream struct {
	net.Conn
	kind   Kind
	replay []byte
}

func newPlain(conn net.Conn) *Stream {
	return &Stream{Conn: conn, kind: Plain}
}

// newTLS wraps an established TLS connection. replay, if set, is served to
// readers before any bytes from the connection.
func newTLS(conn *tls.Conn, replay []byte) *Stream {
	return &Stream{Conn: conn, kind: TLS, replay: replay}
}

func (s *Stream) Read(p []byte) (int, error) {
	if len(s.replay) > 0 {
		n := copy(p, s.replay)
		s.replay = s.replay[n:]
		return n, nil
	}
	return s.Conn.Read(p)
}

func (s *Stream) Kind() Kind {
	return s.kind
}

func (s *Stream) Encrypted() bool {
	return s.kind == TLS
}

// TLSState returns the negotiated TLS parameters for TLS streams.
func (s *Stream) TLSState() (tls.ConnectionState, bool) {
	conn, ok := s.Conn.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return conn.ConnectionState(), true
}
